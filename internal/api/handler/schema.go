package handler

import (
	"strings"
	"time"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

const statusSuccess = "success"

// --- Requests ---

type signupRequest struct {
	Firstname       string `json:"firstname"`
	Lastname        string `json:"lastname"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	BirthDate       string `json:"birthDate" example:"1990-01-31"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

// loginRequest.Email carries either an email address or a username.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"passwordConfirm"`
}

type confirmPasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
}

type tokenParam struct {
	Token string `param:"token" validate:"required,hexadecimal,len=64"`
}

type usernameParam struct {
	Username string `param:"username" validate:"required,max=64"`
}

// --- Responses ---

type userData struct {
	User *domain.User `json:"user"`
}

type sessionResponse struct {
	Status string   `json:"status" example:"success"`
	Token  string   `json:"token"`
	Data   userData `json:"data"`
}

type userResponse struct {
	Status  string    `json:"status" example:"success"`
	Message string    `json:"message,omitempty"`
	Data    *userData `json:"data"`
}

type messageResponse struct {
	Status  string `json:"status" example:"success"`
	Message string `json:"message"`
}

type usersData struct {
	Users []map[string]any `json:"users"`
}

type listUsersResponse struct {
	Status     string    `json:"status" example:"success"`
	Results    int       `json:"results"`
	Total      int64     `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
	Data       usersData `json:"data"`
}

type errorResponse struct {
	Status string `json:"status" example:"fail"`
	Code   string `json:"code" example:"UNAUTHORIZED"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// userView renders u with only the selected public fields. The id is always
// present; an empty selection renders every public field.
func userView(u *domain.User, fields []string) map[string]any {
	all := map[string]any{
		"id":        u.ID,
		"firstname": u.Firstname,
		"lastname":  u.Lastname,
		"username":  u.Username,
		"email":     u.Email,
		"birthDate": u.BirthDate,
		"role":      u.Role,
		"createdAt": u.CreatedAt,
		"updatedAt": u.UpdatedAt,
	}
	if len(fields) == 0 {
		return all
	}

	view := map[string]any{"id": u.ID}
	for _, f := range fields {
		if v, ok := all[f]; ok {
			view[f] = v
		}
	}
	return view
}

// parseBirthDate accepts a calendar date or an RFC 3339 timestamp. An empty
// value is left to the service's required check.
func parseBirthDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, domain.Wrap(err, domain.KindValidationFailed, "birthDate must be a date (YYYY-MM-DD)")
	}
	return t.UTC(), nil
}
