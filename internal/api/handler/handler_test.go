package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hsyntes/authentication-authorization-security/internal/api/middleware"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
)

const validToken = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type stubAccountService struct {
	signupFn         func(ctx context.Context, in ports.SignupInput) (*domain.Session, error)
	loginFn          func(ctx context.Context, in ports.LoginInput) (*domain.Session, error)
	forgotPasswordFn func(ctx context.Context, email, linkPrefix string) error
	resetPasswordFn  func(ctx context.Context, in ports.ResetPasswordInput) (*domain.Session, error)
	changeEmailFn    func(ctx context.Context, user *domain.User, linkPrefix string) error
	resetEmailFn     func(ctx context.Context, token, email string) (*domain.Session, error)
	updatePasswordFn func(ctx context.Context, user *domain.User, in ports.UpdatePasswordInput) (*domain.Session, error)
	updateProfileFn  func(ctx context.Context, user *domain.User, fields map[string]any) (*domain.User, error)
	deactivateFn     func(ctx context.Context, user *domain.User, current string) error
	deleteFn         func(ctx context.Context, user *domain.User, current string) error
	listUsersFn      func(ctx context.Context, in ports.ListUsersInput) (*ports.ListUsersResult, error)
	getUserFn        func(ctx context.Context, username string) (*domain.User, error)
}

func (s *stubAccountService) Signup(ctx context.Context, in ports.SignupInput) (*domain.Session, error) {
	return s.signupFn(ctx, in)
}

func (s *stubAccountService) Login(ctx context.Context, in ports.LoginInput) (*domain.Session, error) {
	return s.loginFn(ctx, in)
}

func (s *stubAccountService) ForgotPassword(ctx context.Context, email, linkPrefix string) error {
	return s.forgotPasswordFn(ctx, email, linkPrefix)
}

func (s *stubAccountService) ResetPassword(ctx context.Context, in ports.ResetPasswordInput) (*domain.Session, error) {
	return s.resetPasswordFn(ctx, in)
}

func (s *stubAccountService) ChangeEmail(ctx context.Context, user *domain.User, linkPrefix string) error {
	return s.changeEmailFn(ctx, user, linkPrefix)
}

func (s *stubAccountService) ResetEmail(ctx context.Context, token, email string) (*domain.Session, error) {
	return s.resetEmailFn(ctx, token, email)
}

func (s *stubAccountService) UpdatePassword(ctx context.Context, user *domain.User, in ports.UpdatePasswordInput) (*domain.Session, error) {
	return s.updatePasswordFn(ctx, user, in)
}

func (s *stubAccountService) UpdateProfile(ctx context.Context, user *domain.User, fields map[string]any) (*domain.User, error) {
	return s.updateProfileFn(ctx, user, fields)
}

func (s *stubAccountService) Deactivate(ctx context.Context, user *domain.User, current string) error {
	return s.deactivateFn(ctx, user, current)
}

func (s *stubAccountService) Delete(ctx context.Context, user *domain.User, current string) error {
	return s.deleteFn(ctx, user, current)
}

func (s *stubAccountService) ListUsers(ctx context.Context, in ports.ListUsersInput) (*ports.ListUsersResult, error) {
	return s.listUsersFn(ctx, in)
}

func (s *stubAccountService) GetUser(ctx context.Context, username string) (*domain.User, error) {
	return s.getUserFn(ctx, username)
}

func (s *stubAccountService) Authenticate(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrUnauthorized
}

func newContext(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	e.Validator = NewValidator()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func testSession() *domain.Session {
	return &domain.Session{
		Token:     "token123",
		ExpiresAt: time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC),
		User:      &domain.User{ID: "u1", Username: "alice", Role: domain.RoleUser, PasswordHash: "$2a$12$secret", Active: true},
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	return resp
}

func TestAuthHandler_Signup_Success(t *testing.T) {
	stub := &stubAccountService{
		signupFn: func(ctx context.Context, in ports.SignupInput) (*domain.Session, error) {
			if in.Username != "alice" || in.PasswordConfirm != "password1" {
				t.Fatalf("unexpected input: %+v", in)
			}
			if !in.BirthDate.Equal(time.Date(1990, 1, 31, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("unexpected birth date: %s", in.BirthDate)
			}
			return testSession(), nil
		},
	}
	c, rec := newContext(http.MethodPost, "/api/v1/users/signup",
		`{"firstname":"Alice","lastname":"Smith","username":"alice","email":"a@example.com","birthDate":"1990-01-31","password":"password1","passwordConfirm":"password1"}`)

	if err := NewAuthHandler(stub).Signup(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "jsonwebtoken" || cookies[0].Value != "token123" || !cookies[0].HttpOnly || !cookies[0].Secure {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	resp := decode(t, rec)
	if resp["status"] != "success" || resp["token"] != "token123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	user := resp["data"].(map[string]any)["user"].(map[string]any)
	if user["username"] != "alice" {
		t.Fatalf("unexpected user payload: %+v", user)
	}
	for _, secret := range []string{"password", "PasswordHash", "active", "Active"} {
		if _, ok := user[secret]; ok {
			t.Fatalf("response leaks %q: %+v", secret, user)
		}
	}
}

func TestAuthHandler_Signup_BadBirthDate(t *testing.T) {
	stub := &stubAccountService{
		signupFn: func(context.Context, ports.SignupInput) (*domain.Session, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	c, _ := newContext(http.MethodPost, "/api/v1/users/signup", `{"birthDate":"last tuesday"}`)

	err := NewAuthHandler(stub).Signup(c)
	if domain.KindOf(err) != domain.KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
}

func TestAuthHandler_InvalidPayload(t *testing.T) {
	h := NewAuthHandler(&stubAccountService{})

	c, _ := newContext(http.MethodPost, "/api/v1/users/login", "{")
	if err := h.Login(c); !errors.Is(err, domain.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestAuthHandler_Login_ForwardsIdentifier(t *testing.T) {
	stub := &stubAccountService{
		loginFn: func(ctx context.Context, in ports.LoginInput) (*domain.Session, error) {
			if in.Identifier != "alice" || in.Password != "password1" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return testSession(), nil
		},
	}
	c, rec := newContext(http.MethodPost, "/api/v1/users/login", `{"email":"alice","password":"password1"}`)

	if err := NewAuthHandler(stub).Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_Login_PropagatesServiceError(t *testing.T) {
	stub := &stubAccountService{
		loginFn: func(context.Context, ports.LoginInput) (*domain.Session, error) {
			return nil, domain.NewError(domain.KindUnauthorized, "Wrong password.")
		},
	}
	c, rec := newContext(http.MethodPost, "/api/v1/users/login", `{"email":"alice","password":"nope"}`)

	err := NewAuthHandler(stub).Login(c)
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Fatalf("no cookie expected on failure")
	}
}

func TestAuthHandler_ForgotPassword_BuildsLink(t *testing.T) {
	stub := &stubAccountService{
		forgotPasswordFn: func(ctx context.Context, email, linkPrefix string) error {
			if email != "a@example.com" {
				t.Fatalf("unexpected email: %s", email)
			}
			if linkPrefix != "http://example.com/api/v1/users/reset-password/" {
				t.Fatalf("unexpected link prefix: %s", linkPrefix)
			}
			return nil
		},
	}
	c, rec := newContext(http.MethodPost, "/api/v1/users/forgot-password", `{"email":"a@example.com"}`)

	if err := NewAuthHandler(stub).ForgotPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if resp := decode(t, rec); resp["message"] != "Token has been sent to your email address." {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestAuthHandler_ResetPassword(t *testing.T) {
	stub := &stubAccountService{
		resetPasswordFn: func(ctx context.Context, in ports.ResetPasswordInput) (*domain.Session, error) {
			if in.Token != validToken || in.Password != "newpassword" {
				t.Fatalf("unexpected input: %+v", in)
			}
			return testSession(), nil
		},
	}
	c, rec := newContext(http.MethodPatch, "/", `{"password":"newpassword","passwordConfirm":"newpassword"}`)
	c.SetParamNames("token")
	c.SetParamValues(validToken)

	if err := NewAuthHandler(stub).ResetPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || len(rec.Result().Cookies()) != 1 {
		t.Fatalf("expected 200 with cookie, got %d", rec.Code)
	}
}

func TestAuthHandler_ResetRejectsMalformedToken(t *testing.T) {
	stub := &stubAccountService{
		resetEmailFn: func(context.Context, string, string) (*domain.Session, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	for _, token := range []string{"short", strings.Repeat("z", 64), validToken + "00"} {
		c, _ := newContext(http.MethodPatch, "/", `{"email":"new@example.com"}`)
		c.SetParamNames("token")
		c.SetParamValues(token)

		if err := NewAuthHandler(stub).ResetEmail(c); !errors.Is(err, domain.ErrTokenExpiredOrInvalid) {
			t.Fatalf("token %q: expected invalid token, got %v", token, err)
		}
	}
}

func TestAuthHandler_ChangeEmail(t *testing.T) {
	me := &domain.User{ID: "u1", Email: "a@example.com"}
	stub := &stubAccountService{
		changeEmailFn: func(ctx context.Context, user *domain.User, linkPrefix string) error {
			if user != me || !strings.HasSuffix(linkPrefix, "/api/v1/users/reset-email/") {
				t.Fatalf("unexpected args: %+v %s", user, linkPrefix)
			}
			return nil
		},
	}

	c, _ := newContext(http.MethodPost, "/api/v1/users/change-email", "")
	if err := NewAuthHandler(stub).ChangeEmail(c); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without a user, got %v", err)
	}

	c, rec := newContext(http.MethodPost, "/api/v1/users/change-email", "")
	c.Set(middleware.UserKey, me)
	if err := NewAuthHandler(stub).ChangeEmail(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUserHandler_Get_Inactive(t *testing.T) {
	stub := &stubAccountService{
		getUserFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: "u2", Username: username, Active: false}, nil
		},
	}
	c, rec := newContext(http.MethodGet, "/", "")
	c.SetParamNames("username")
	c.SetParamValues("bob")

	if err := NewUserHandler(stub).Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	resp := decode(t, rec)
	if resp["message"] != "Inactive user." || resp["data"] != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUserHandler_Get_Active(t *testing.T) {
	stub := &stubAccountService{
		getUserFn: func(ctx context.Context, username string) (*domain.User, error) {
			return &domain.User{ID: "u2", Username: username, Active: true}, nil
		},
	}
	c, rec := newContext(http.MethodGet, "/", "")
	c.SetParamNames("username")
	c.SetParamValues("bob")

	if err := NewUserHandler(stub).Get(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	resp := decode(t, rec)
	user := resp["data"].(map[string]any)["user"].(map[string]any)
	if user["username"] != "bob" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestUserHandler_List_Projection(t *testing.T) {
	stub := &stubAccountService{
		listUsersFn: func(ctx context.Context, in ports.ListUsersInput) (*ports.ListUsersResult, error) {
			if url.Values(in.Query).Get("fields") != "username" {
				t.Fatalf("query not forwarded: %v", in.Query)
			}
			return &ports.ListUsersResult{
				Users:      []*domain.User{{ID: "u1", Username: "alice", Email: "a@example.com"}},
				Fields:     []string{"username"},
				Total:      21,
				Page:       2,
				Limit:      20,
				TotalPages: 2,
			}, nil
		},
	}
	c, rec := newContext(http.MethodGet, "/api/v1/users?fields=username&page=2", "")

	if err := NewUserHandler(stub).List(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	resp := decode(t, rec)
	if resp["results"] != float64(1) || resp["total"] != float64(21) || resp["totalPages"] != float64(2) {
		t.Fatalf("unexpected paging: %+v", resp)
	}
	users := resp["data"].(map[string]any)["users"].([]any)
	user := users[0].(map[string]any)
	if len(user) != 2 || user["id"] != "u1" || user["username"] != "alice" {
		t.Fatalf("unexpected projection: %+v", user)
	}
}

func TestUserHandler_UpdateProfile(t *testing.T) {
	me := &domain.User{ID: "u1"}
	stub := &stubAccountService{
		updateProfileFn: func(ctx context.Context, user *domain.User, fields map[string]any) (*domain.User, error) {
			if fields["firstname"] != "Alicia" {
				t.Fatalf("unexpected fields: %+v", fields)
			}
			return &domain.User{ID: "u1", Firstname: "Alicia"}, nil
		},
	}
	c, rec := newContext(http.MethodPatch, "/api/v1/users/update", `{"firstname":"Alicia"}`)
	c.Set(middleware.UserKey, me)

	if err := NewUserHandler(stub).UpdateProfile(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestUserHandler_DeactivateAndDelete(t *testing.T) {
	me := &domain.User{ID: "u1"}
	var calls []string
	stub := &stubAccountService{
		deactivateFn: func(ctx context.Context, user *domain.User, current string) error {
			calls = append(calls, "deactivate:"+current)
			return nil
		},
		deleteFn: func(ctx context.Context, user *domain.User, current string) error {
			calls = append(calls, "delete:"+current)
			return nil
		},
	}
	h := NewUserHandler(stub)

	c, rec := newContext(http.MethodDelete, "/api/v1/users/deactivate", `{"currentPassword":"password1"}`)
	c.Set(middleware.UserKey, me)
	if err := h.Deactivate(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("deactivate: err=%v code=%d", err, rec.Code)
	}

	c, rec = newContext(http.MethodDelete, "/api/v1/users/delete", `{"currentPassword":"password1"}`)
	c.Set(middleware.UserKey, me)
	if err := h.Delete(c); err != nil || rec.Code != http.StatusNoContent {
		t.Fatalf("delete: err=%v code=%d", err, rec.Code)
	}

	if len(calls) != 2 || calls[0] != "deactivate:password1" || calls[1] != "delete:password1" {
		t.Fatalf("unexpected calls: %v", calls)
	}
}

func TestReadinessHandler(t *testing.T) {
	ok := Dependency{Name: "mongodb", Ping: func(context.Context) error { return nil }}
	down := Dependency{Name: "redis", Ping: func(context.Context) error { return errors.New("connection refused") }}

	c, rec := newContext(http.MethodGet, "/health/ready", "")
	if err := NewReadinessHandler(ok).Readiness(c); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("expected 200, err=%v code=%d", err, rec.Code)
	}

	c, rec = newContext(http.MethodGet, "/health/ready", "")
	if err := NewReadinessHandler(ok, down).Readiness(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	resp := decode(t, rec)
	deps := resp["dependencies"].(map[string]any)
	if deps["redis"].(map[string]any)["status"] != "unhealthy" || deps["mongodb"].(map[string]any)["status"] != "ok" {
		t.Fatalf("unexpected dependencies: %+v", deps)
	}
}
