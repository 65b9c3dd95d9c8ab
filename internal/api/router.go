package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	"github.com/hsyntes/authentication-authorization-security/internal/api/handler"
	"github.com/hsyntes/authentication-authorization-security/internal/api/middleware"
	"github.com/hsyntes/authentication-authorization-security/internal/core/domain"
	"github.com/hsyntes/authentication-authorization-security/internal/core/ports"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/metrics"
)

const metricsSubsystem = "http"

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	Accounts ports.AccountService
	// RateLimiter is optional; nil disables rate limiting.
	RateLimiter echomiddleware.RateLimiterStore
	Readiness   []handler.Dependency
	Log         zerolog.Logger
}

// Options tune the request pipeline.
type Options struct {
	BodyLimit         string
	CORSOrigins       []string
	ExposeErrorDetail bool
	// Registry receives the HTTP metrics; nil uses the default registry.
	Registry *prometheus.Registry
}

// NewRouter builds and returns the Echo instance with all routes registered.
func NewRouter(deps Dependencies, opts Options) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.HTTPErrorHandler = NewHTTPErrorHandler(deps.Log, opts.ExposeErrorDetail)

	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}

	// --- Global middleware ---
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestIDWithConfig(echomiddleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.RequestLogger(deps.Log))
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: corsOrigins(opts.CORSOrigins),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	if opts.BodyLimit != "" {
		e.Use(echomiddleware.BodyLimit(opts.BodyLimit))
	}
	if deps.RateLimiter != nil {
		e.Use(echomiddleware.RateLimiterWithConfig(rateLimiterConfig(deps.RateLimiter)))
	}
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:                 metricsSubsystem,
		Registerer:                registerer,
		DoNotUseRequestPathFor404: true,
		Skipper:                   isOperational,
		StatusCodeResolver:        statusCode,
	}))

	// --- Handlers ---
	authHandler := handler.NewAuthHandler(deps.Accounts)
	userHandler := handler.NewUserHandler(deps.Accounts)
	protect := middleware.Auth(deps.Accounts)

	// --- Account routes ---
	users := e.Group(handler.BasePath)
	users.GET("", userHandler.List)
	users.POST("/signup", authHandler.Signup)
	users.POST("/login", authHandler.Login)
	users.POST("/forgot-password", authHandler.ForgotPassword)
	users.PATCH("/reset-password/:token", authHandler.ResetPassword)
	users.PATCH("/reset-email/:token", authHandler.ResetEmail)

	users.GET("/username/:username", userHandler.Get, protect, middleware.RBAC(domain.Roles...))
	users.POST("/change-email", authHandler.ChangeEmail, protect)
	users.PATCH("/update-password", authHandler.UpdatePassword, protect)
	users.PATCH("/update", userHandler.UpdateProfile, protect)
	users.DELETE("/deactivate", userHandler.Deactivate, protect)
	users.DELETE("/delete", userHandler.Delete, protect)

	// --- Operational endpoints (no auth required) ---
	healthHandler := handler.NewHealthHandler()
	readinessHandler := handler.NewReadinessHandler(deps.Readiness...)

	e.GET("/health", healthHandler.Liveness)           // liveness  – is the process alive?
	e.GET("/health/ready", readinessHandler.Readiness) // readiness – are dependencies up?
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: gatherer}))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	return e
}

func rateLimiterConfig(store echomiddleware.RateLimiterStore) echomiddleware.RateLimiterConfig {
	return echomiddleware.RateLimiterConfig{
		Skipper: isOperational,
		Store:   store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "Unable to identify the client.").SetInternal(err)
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			metrics.RateLimitedTotal.Inc()
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests.")
		},
	}
}

// isOperational skips probes, metrics and docs.
func isOperational(c echo.Context) bool {
	p := c.Request().URL.Path
	return strings.HasPrefix(p, "/health") || p == "/metrics" || strings.HasPrefix(p, "/swagger")
}

// statusCode reports the status the error handler will render, so request
// metrics agree with responses.
func statusCode(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

func corsOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
