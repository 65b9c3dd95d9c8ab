package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

// UserHandler serves listing, lookup and self-service profile routes.
type UserHandler struct {
	accounts ports.AccountService
}

func NewUserHandler(accounts ports.AccountService) *UserHandler {
	return &UserHandler{accounts: accounts}
}

// List returns active users, filtered, sorted and paginated by query string.
//
// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        page             query     int     false  "1-based page"             default(1)
// @Param        limit            query     int     false  "Page size, at most 100"   default(20)
// @Param        sort             query     string  false  "Comma separated fields, '-' for descending"
// @Param        fields           query     string  false  "Comma separated fields to return"
// @Param        includeInactive  query     bool    false  "Include deactivated accounts"
// @Success      200              {object}  listUsersResponse
// @Failure      400              {object}  errorResponse
// @Router       /api/v1/users [get]
func (h *UserHandler) List(c echo.Context) error {
	result, err := h.accounts.ListUsers(c.Request().Context(), ports.ListUsersInput{Query: c.QueryParams()})
	if err != nil {
		return err
	}

	views := make([]map[string]any, 0, len(result.Users))
	for _, u := range result.Users {
		views = append(views, userView(u, result.Fields))
	}

	return c.JSON(http.StatusOK, listUsersResponse{
		Status:     statusSuccess,
		Results:    len(views),
		Total:      result.Total,
		Page:       result.Page,
		Limit:      result.Limit,
		TotalPages: result.TotalPages,
		Data:       usersData{Users: views},
	})
}

// Get looks a user up by username. Deactivated accounts are reported
// without their data.
//
// @Summary      Get a user by username
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Param        username  path      string  true  "Username"
// @Success      200       {object}  userResponse
// @Failure      401       {object}  errorResponse
// @Failure      403       {object}  errorResponse
// @Failure      404       {object}  errorResponse
// @Router       /api/v1/users/username/{username} [get]
func (h *UserHandler) Get(c echo.Context) error {
	p := usernameParam{Username: c.Param("username")}
	if err := c.Validate(&p); err != nil {
		return domain.ErrUserNotFound
	}

	user, err := h.accounts.GetUser(c.Request().Context(), p.Username)
	if err != nil {
		return err
	}

	if !user.Active {
		return c.JSON(http.StatusOK, userResponse{Status: statusSuccess, Message: "Inactive user."})
	}
	return c.JSON(http.StatusOK, userResponse{Status: statusSuccess, Data: &userData{User: user}})
}

// UpdateProfile changes firstname, lastname or birthDate of the logged-in user.
//
// @Summary      Update profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      object  true  "Any of firstname, lastname, birthDate"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /api/v1/users/update [patch]
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var fields map[string]any
	if err := (&echo.DefaultBinder{}).BindBody(c, &fields); err != nil {
		return errInvalidPayload
	}

	updated, err := h.accounts.UpdateProfile(c.Request().Context(), user, fields)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, userResponse{Status: statusSuccess, Data: &userData{User: updated}})
}

// Deactivate hides the logged-in user's account until the next login.
//
// @Summary      Deactivate account
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  confirmPasswordRequest  true  "Current password"
// @Success      204
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/users/deactivate [delete]
func (h *UserHandler) Deactivate(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req confirmPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	if err := h.accounts.Deactivate(c.Request().Context(), user, req.CurrentPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete permanently removes the logged-in user's account.
//
// @Summary      Delete account
// @Tags         users
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  confirmPasswordRequest  true  "Current password"
// @Success      204
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/users/delete [delete]
func (h *UserHandler) Delete(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req confirmPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	if err := h.accounts.Delete(c.Request().Context(), user, req.CurrentPassword); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
