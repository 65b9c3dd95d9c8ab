package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const envProduction = "production"

type Config struct {
	Port        string   `env:"PORT,         default=8080"`
	Env         string   `env:"ENV,          default=development"`
	LogLevel    string   `env:"LOG_LEVEL,    default=info"`
	BodyLimit   string   `env:"BODY_LIMIT,   default=10K"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`

	JWT       JWTConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Mail      MailConfig
	RateLimit RateLimitConfig
	Hashing   HashingConfig
}

type JWTConfig struct {
	Secret    string        `env:"JWT_SECRET, required"`
	ExpiresIn time.Duration `env:"JWT_EXPIRES_IN, default=720h"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,            default=natours"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=100"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type MailConfig struct {
	Host     string        `env:"MAIL_HOST,     default=localhost"`
	Port     int           `env:"MAIL_PORT,     default=587"`
	Username string        `env:"MAIL_USERNAME"`
	Password string        `env:"MAIL_PASSWORD"`
	From     string        `env:"MAIL_FROM,     default=noreply@localhost"`
	Timeout  time.Duration `env:"MAIL_TIMEOUT,  default=10s"`
}

// RateLimitConfig bounds requests per client IP in a fixed window.
type RateLimitConfig struct {
	Max    int           `env:"RATE_LIMIT_MAX,    default=100"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW, default=1h"`
}

type HashingConfig struct {
	Workers int `env:"HASH_WORKERS, default=4"`
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, envProduction)
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.JWT.ExpiresIn <= 0 {
		return nil, fmt.Errorf("config: JWT_EXPIRES_IN must be positive")
	}
	return &cfg, nil
}
