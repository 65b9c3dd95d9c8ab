package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

// BasePath is the mount point of the account routes.
const BasePath = "/api/v1/users"

var errInvalidPayload = domain.NewError(domain.KindBadRequest, "Invalid request body.")

// AuthHandler serves the session and credential flows.
type AuthHandler struct {
	accounts ports.AccountService
}

func NewAuthHandler(accounts ports.AccountService) *AuthHandler {
	return &AuthHandler{accounts: accounts}
}

// Signup creates a new account and opens a session.
//
// @Summary      Sign up
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      signupRequest  true  "Account details"
// @Success      201   {object}  sessionResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /api/v1/users/signup [post]
func (h *AuthHandler) Signup(c echo.Context) error {
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	birthDate, err := parseBirthDate(req.BirthDate)
	if err != nil {
		return err
	}

	session, err := h.accounts.Signup(c.Request().Context(), ports.SignupInput{
		Firstname:       req.Firstname,
		Lastname:        req.Lastname,
		Username:        req.Username,
		Email:           req.Email,
		BirthDate:       birthDate,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	return sendSession(c, http.StatusCreated, session)
}

// Login authenticates by email or username.
//
// @Summary      Log in
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Email or username, and password"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /api/v1/users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	session, err := h.accounts.Login(c.Request().Context(), ports.LoginInput{
		Identifier: req.Email,
		Password:   req.Password,
	})
	if err != nil {
		return err
	}
	return sendSession(c, http.StatusOK, session)
}

// ForgotPassword emails a single-use password reset link.
//
// @Summary      Request a password reset
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      emailRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /api/v1/users/forgot-password [post]
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	if err := h.accounts.ForgotPassword(c.Request().Context(), req.Email, resetLink(c, "/reset-password/")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "Token has been sent to your email address.",
	})
}

// ResetPassword redeems a password reset token.
//
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token  path      string                true  "Reset token from the email"
// @Param        body   body      resetPasswordRequest  true  "New password"
// @Success      200    {object}  sessionResponse
// @Failure      400    {object}  errorResponse
// @Failure      422    {object}  errorResponse
// @Router       /api/v1/users/reset-password/{token} [patch]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	token, err := resetToken(c)
	if err != nil {
		return err
	}

	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	session, err := h.accounts.ResetPassword(c.Request().Context(), ports.ResetPasswordInput{
		Token:           token,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	return sendSession(c, http.StatusOK, session)
}

// ChangeEmail emails a single-use link for setting a new address.
//
// @Summary      Request an email change
// @Tags         auth
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  messageResponse
// @Failure      401  {object}  errorResponse
// @Failure      500  {object}  errorResponse
// @Router       /api/v1/users/change-email [post]
func (h *AuthHandler) ChangeEmail(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	if err := h.accounts.ChangeEmail(c.Request().Context(), user, resetLink(c, "/reset-email/")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "The email reset link was sent to your email address. Please check it.",
	})
}

// ResetEmail redeems an email reset token.
//
// @Summary      Set a new email address
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        token  path      string        true  "Reset token from the email"
// @Param        body   body      emailRequest  true  "New email address"
// @Success      200    {object}  sessionResponse
// @Failure      400    {object}  errorResponse
// @Failure      409    {object}  errorResponse
// @Failure      422    {object}  errorResponse
// @Router       /api/v1/users/reset-email/{token} [patch]
func (h *AuthHandler) ResetEmail(c echo.Context) error {
	token, err := resetToken(c)
	if err != nil {
		return err
	}

	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	session, err := h.accounts.ResetEmail(c.Request().Context(), token, req.Email)
	if err != nil {
		return err
	}
	return sendSession(c, http.StatusOK, session)
}

// UpdatePassword changes the password of the logged-in user.
//
// @Summary      Update password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updatePasswordRequest  true  "Current and new password"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      403   {object}  errorResponse
// @Router       /api/v1/users/update-password [patch]
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req updatePasswordRequest
	if err := c.Bind(&req); err != nil {
		return errInvalidPayload
	}

	session, err := h.accounts.UpdatePassword(c.Request().Context(), user, ports.UpdatePasswordInput{
		CurrentPassword: req.CurrentPassword,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return err
	}
	return sendSession(c, http.StatusOK, session)
}

func sendSession(c echo.Context, status int, session *domain.Session) error {
	setSessionCookie(c, session)
	return c.JSON(status, sessionResponse{
		Status: statusSuccess,
		Token:  session.Token,
		Data:   userData{User: session.User},
	})
}

// resetToken reads the :token path parameter. Anything that cannot be a
// token we issued is rejected without a lookup.
func resetToken(c echo.Context) (string, error) {
	p := tokenParam{Token: c.Param("token")}
	if err := c.Validate(&p); err != nil {
		return "", domain.ErrTokenExpiredOrInvalid
	}
	return p.Token, nil
}

// resetLink builds the absolute link prefix a reset token is appended to.
func resetLink(c echo.Context, route string) string {
	return c.Scheme() + "://" + c.Request().Host + BasePath + route
}
