package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/api/middleware"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// ctxUser returns the user injected by the Auth middleware. A missing user
// means the route was mounted without the gate.
func ctxUser(c echo.Context) (*domain.User, error) {
	user, _ := c.Get(middleware.UserKey).(*domain.User)
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	return user, nil
}
