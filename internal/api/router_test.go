package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

// stubAccounts implements only what the routed requests below reach.
type stubAccounts struct {
	ports.AccountService
	user    *domain.User
	listErr error
}

func (s *stubAccounts) Authenticate(_ context.Context, token string) (*domain.User, error) {
	if token != "good" {
		return nil, domain.NewError(domain.KindUnauthorized, "Authentication failed.")
	}
	return s.user, nil
}

func (s *stubAccounts) GetUser(_ context.Context, username string) (*domain.User, error) {
	return &domain.User{ID: "u2", Username: username, Active: true}, nil
}

func (s *stubAccounts) ListUsers(context.Context, ports.ListUsersInput) (*ports.ListUsersResult, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return &ports.ListUsersResult{Page: 1, Limit: 20}, nil
}

type denyAll struct{ calls int }

func (d *denyAll) Allow(string) (bool, error) {
	d.calls++
	return false, nil
}

func newTestRouter(accounts *stubAccounts, opts Options) *echo.Echo {
	opts.Registry = prometheus.NewRegistry()
	return NewRouter(Dependencies{Accounts: accounts, Log: zerolog.Nop()}, opts)
}

func serve(e *echo.Echo, req *http.Request) (*httptest.ResponseRecorder, errorResponse) {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var body errorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestRouter_UnknownRoute(t *testing.T) {
	e := newTestRouter(&stubAccounts{}, Options{})

	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/tours", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if body.Status != "fail" || body.Code != "NOT_FOUND" || body.Error != "Unsupported URL: /api/v1/tours" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestRouter_ProtectedRoute(t *testing.T) {
	e := newTestRouter(&stubAccounts{user: &domain.User{ID: "u1", Role: domain.RoleUser, Active: true}}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/username/bob", nil)
	rec, body := serve(e, req)
	if rec.Code != http.StatusUnauthorized || body.Code != string(domain.KindUnauthorized) {
		t.Fatalf("expected 401 without token, got %d %+v", rec.Code, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/username/bob", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer bad")
	rec, body = serve(e, req)
	if rec.Code != http.StatusUnauthorized || body.Error != "Authentication failed." {
		t.Fatalf("expected 401 for bad token, got %d %+v", rec.Code, body)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/users/username/bob", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec, _ = serve(e, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRouter_RoleOutsideAllowList(t *testing.T) {
	e := newTestRouter(&stubAccounts{user: &domain.User{ID: "u1", Role: domain.Role("auditor")}}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/username/bob", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec, body := serve(e, req)

	if rec.Code != http.StatusForbidden || body.Code != string(domain.KindForbidden) {
		t.Fatalf("expected 403, got %d %+v", rec.Code, body)
	}
}

func TestRouter_InternalErrorDetail(t *testing.T) {
	cause := errors.New("connection pool exhausted")

	e := newTestRouter(&stubAccounts{listErr: cause}, Options{ExposeErrorDetail: true})
	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	if rec.Code != http.StatusInternalServerError || body.Status != "error" || body.Detail != cause.Error() {
		t.Fatalf("expected exposed detail, got %d %+v", rec.Code, body)
	}
	if body.Error != "internal server error" {
		t.Fatalf("unexpected message: %q", body.Error)
	}

	e = newTestRouter(&stubAccounts{listErr: cause}, Options{})
	_, body = serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	if body.Detail != "" {
		t.Fatalf("detail must be hidden, got %q", body.Detail)
	}
}

func TestRouter_RateLimited(t *testing.T) {
	limiter := &denyAll{}
	e := NewRouter(Dependencies{
		Accounts:    &stubAccounts{},
		RateLimiter: limiter,
		Log:         zerolog.Nop(),
	}, Options{Registry: prometheus.NewRegistry()})

	rec, body := serve(e, httptest.NewRequest(http.MethodGet, "/api/v1/users", nil))
	if rec.Code != http.StatusTooManyRequests || body.Code != "TOO_MANY_REQUESTS" {
		t.Fatalf("expected 429, got %d %+v", rec.Code, body)
	}

	rec, _ = serve(e, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("probes must bypass the limiter, got %d", rec.Code)
	}
	if limiter.calls != 1 {
		t.Fatalf("expected one limiter call, got %d", limiter.calls)
	}
}

func TestRouter_BodyLimit(t *testing.T) {
	e := newTestRouter(&stubAccounts{}, Options{BodyLimit: "1K"})

	big := strings.Repeat("a", 4096)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", strings.NewReader(big))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	rec, body := serve(e, req)
	if rec.Code != http.StatusRequestEntityTooLarge || body.Status != "fail" {
		t.Fatalf("expected 413, got %d %+v", rec.Code, body)
	}
}

func TestRouter_SecurityAndCORSHeaders(t *testing.T) {
	e := newTestRouter(&stubAccounts{}, Options{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example")
	rec, _ := serve(e, req)

	if got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin); got != "*" {
		t.Fatalf("expected wildcard CORS origin, got %q", got)
	}
	if rec.Header().Get(echo.HeaderXContentTypeOptions) != "nosniff" {
		t.Fatalf("expected security headers")
	}
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatalf("expected request id")
	}
}

func TestCodeFor(t *testing.T) {
	tests := map[int]string{
		http.StatusNotFound:              "NOT_FOUND",
		http.StatusTooManyRequests:       "TOO_MANY_REQUESTS",
		http.StatusRequestEntityTooLarge: "REQUEST_ENTITY_TOO_LARGE",
		http.StatusMethodNotAllowed:      "METHOD_NOT_ALLOWED",
		http.StatusInternalServerError:   "INTERNAL_ERROR",
		599:                              "HTTP_599",
	}
	for status, want := range tests {
		if got := codeFor(status); got != want {
			t.Errorf("codeFor(%d) = %q, want %q", status, got, want)
		}
	}
}
