package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/core/auth"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// RBAC enforces role-based access control. It must run after Auth.
func RBAC(allowedRoles ...domain.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, _ := c.Get(RoleKey).(domain.Role)
			if err := auth.Authorize(role, allowedRoles...); err != nil {
				return err
			}
			return next(c)
		}
	}
}
