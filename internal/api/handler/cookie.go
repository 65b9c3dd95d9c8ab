package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

// SessionCookie is the name of the cookie carrying the session token.
const SessionCookie = "jsonwebtoken"

func setSessionCookie(c echo.Context, session *domain.Session) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
