// @title           Accounts API
// @version         1.0
// @description     User accounts, sessions and credential resets.
// @BasePath        /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	_ "github.com/hsyntes/authentication-authorization-security/docs"
	"github.com/hsyntes/authentication-authorization-security/internal/api"
	"github.com/hsyntes/authentication-authorization-security/internal/api/handler"
	"github.com/hsyntes/authentication-authorization-security/internal/core/auth"
	"github.com/hsyntes/authentication-authorization-security/internal/core/service"
	"github.com/hsyntes/authentication-authorization-security/internal/infrastructure/db/mongo"
	"github.com/hsyntes/authentication-authorization-security/internal/infrastructure/db/redis"
	"github.com/hsyntes/authentication-authorization-security/internal/infrastructure/mail"
	"github.com/hsyntes/authentication-authorization-security/internal/infrastructure/queue"
	"github.com/hsyntes/authentication-authorization-security/internal/pkg/config"
	"github.com/hsyntes/authentication-authorization-security/pkg/logger"
)

const (
	serviceName     = "accounts"
	shutdownTimeout = 15 * time.Second
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load(context.Background())
	if err != nil {
		logger.Init(logger.Options{Service: serviceName}).Fatal().Err(err).Msg("load config")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  !cfg.IsProduction(),
		Service: serviceName,
	})
	if envErr != nil {
		log.Debug().Msg("no .env file found; relying on existing environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- MongoDB ---
	store, err := mongo.Open(ctx, mongo.Config{
		URI:         cfg.Mongo.URI,
		Database:    cfg.Mongo.Database,
		AppName:     serviceName,
		MaxPoolSize: cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect mongodb")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("mongodb disconnect")
		}
	}()

	users := mongo.NewUserRepository(store.Database())
	if err := users.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure user indexes")
	}

	readiness := []handler.Dependency{
		{Name: "mongodb", Ping: store.Ping},
	}

	// --- Redis (rate limiting only; the service runs without it) ---
	deps := api.Dependencies{Log: log}
	rdb, err := redis.Connect(ctx, redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, rate limiting disabled")
	} else {
		defer rdb.Close()
		deps.RateLimiter = redis.NewRateLimiter(rdb, cfg.RateLimit.Max, cfg.RateLimit.Window, logger.Component("ratelimit"))
		readiness = append(readiness, handler.Dependency{Name: "redis", Ping: redis.Checker(rdb)})
	}
	deps.Readiness = readiness

	// --- Core ---
	poolCtx, stopPool := context.WithCancel(context.Background())
	defer stopPool()
	hashPool := queue.NewHashPool(cfg.Hashing.Workers, auth.NewHasher(auth.DefaultHashCost), logger.Component("hashing"))
	hashPool.Start(poolCtx)

	mailer := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
		Timeout:  cfg.Mail.Timeout,
	})

	deps.Accounts = service.NewAccountService(
		users,
		hashPool,
		auth.NewSessions(cfg.JWT.Secret, cfg.JWT.ExpiresIn),
		mailer,
		logger.Component("accounts"),
	)

	e := api.NewRouter(deps, api.Options{
		BodyLimit:         cfg.BodyLimit,
		CORSOrigins:       cfg.CORSOrigins,
		ExposeErrorDetail: !cfg.IsProduction(),
	})

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server error")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(e, log)
}

type server interface {
	Shutdown(ctx context.Context) error
}

func shutdown(srv server, log zerolog.Logger) {
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown error")
	}
}
