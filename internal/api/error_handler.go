package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
)

const (
	statusFail  = "fail"
	statusError = "error"
)

// errorResponse is the canonical error envelope for all API errors.
type errorResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that:
//   - Renders *domain.Error values with their kind and status.
//   - Renders echo's own errors (unknown routes, body limit, rate limit).
//   - Logs server-side failures. Their cause is exposed as detail only when
//     exposeDetail is set; client errors never carry detail.
func NewHTTPErrorHandler(log zerolog.Logger, exposeDetail bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, resp := resolveError(err, c)
		if status >= http.StatusInternalServerError {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("code", resp.Code).
				Msg("request failed")
		}
		if status < http.StatusInternalServerError || !exposeDetail {
			resp.Detail = ""
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, resp)
	}
}

func resolveError(err error, c echo.Context) (int, errorResponse) {
	var de *domain.Error
	if errors.As(err, &de) {
		resp := errorResponse{
			Status: statusFor(de.Status),
			Code:   string(de.Kind),
			Error:  de.Message,
		}
		if de.Err != nil {
			resp.Detail = de.Err.Error()
		}
		return de.Status, resp
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := fmt.Sprintf("%v", he.Message)
		if he.Code == http.StatusNotFound && errors.Is(err, echo.ErrNotFound) {
			msg = "Unsupported URL: " + c.Request().URL.Path
		}
		resp := errorResponse{
			Status: statusFor(he.Code),
			Code:   codeFor(he.Code),
			Error:  msg,
		}
		if he.Internal != nil {
			resp.Detail = he.Internal.Error()
		}
		return he.Code, resp
	}

	// Unexpected error: return a generic message.
	return http.StatusInternalServerError, errorResponse{
		Status: statusError,
		Code:   string(domain.KindInternal),
		Error:  domain.ErrInternal.Message,
		Detail: err.Error(),
	}
}

func statusFor(code int) string {
	if code >= http.StatusInternalServerError {
		return statusError
	}
	return statusFail
}

// codeFor derives a kind-like code from an HTTP status, e.g. TOO_MANY_REQUESTS.
func codeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return string(domain.KindNotFound)
	case http.StatusInternalServerError:
		return string(domain.KindInternal)
	}
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("HTTP_%d", status)
	}
	return strings.ToUpper(strings.NewReplacer(" ", "_", "-", "_").Replace(text))
}
