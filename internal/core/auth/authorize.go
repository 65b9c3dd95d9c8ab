package auth

import "github.com/hsyntes/authentication-authorization-security/internal/core/domain"

// Authorize returns domain.ErrForbidden unless role is one of allowed.
func Authorize(role domain.Role, allowed ...domain.Role) error {
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return domain.ErrForbidden
}
