// Package config loads the application configuration from the
// environment.
package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/wer153/biosensor-api/internal/jobs"
	"github.com/wer153/biosensor-api/pkg/db"
	"github.com/wer153/biosensor-api/pkg/logger"
	"github.com/wer153/biosensor-api/pkg/redis"
	"github.com/wer153/biosensor-api/pkg/storage"
)

var ErrParseFailed = errors.New("config: parse environment")

// Config aggregates every component configuration.
type Config struct {
	HTTP    HTTPConfig
	Auth    AuthConfig
	DB      db.Config
	Redis   redis.Config
	Storage storage.Config
	Sentry  logger.SentryConfig
	Jobs    jobs.Config
}

// HTTPConfig controls the HTTP server.
type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	CORSAllowOrigins []string `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET_KEY,required"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"24h"`
}

// Load parses the configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Join(ErrParseFailed, err)
	}
	return cfg, nil
}
