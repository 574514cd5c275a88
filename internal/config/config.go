package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration tree. It is built once at
// startup and handed out by value.
type Config struct {
	App        AppConfig
	Session    SessionConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Google     ProviderConfig `envPrefix:"GOOGLE_"`
	Facebook   ProviderConfig `envPrefix:"FACEBOOK_"`
	CRM        CRMConfig
	RateLimit  RateLimitConfig
	Monitoring MonitoringConfig
}

type AppConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development" validate:"oneof=development staging production test"`
	Port    string `env:"APP_PORT" envDefault:"10000" validate:"required,numeric"`
	Version string `env:"APP_VERSION" envDefault:"0.1.0"`

	// PublicBaseURL is where this service is reachable from browsers.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:10000" validate:"required,url"`

	// DefaultRedirectURL is used when the caller did not supply an
	// acceptable post-login destination.
	DefaultRedirectURL string   `env:"DEFAULT_REDIRECT_URL" validate:"required,url"`
	LogoutRedirectURL  string   `env:"LOGOUT_REDIRECT_URL" validate:"omitempty,url"`
	AllowedOrigins     []string `env:"REDIRECT_ALLOWED_ORIGINS" envSeparator:"," validate:"dive,url"`
	CORSOrigins        []string `env:"CORS_ORIGINS" envSeparator:","`
}

type SessionConfig struct {
	Backend       string        `env:"SESSION_BACKEND" envDefault:"redis" validate:"oneof=redis postgres"`
	TTL           time.Duration `env:"SESSION_TTL" envDefault:"24h" validate:"gt=0"`
	SweepSchedule string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"@every 15m"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	TLS      bool   `env:"REDIS_TLS" envDefault:"false"`
}

type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_DSN"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN" envDefault:"10"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// ProviderConfig holds one OAuth client registration. A provider with an
// empty ClientID is not registered.
type ProviderConfig struct {
	ClientID            string `env:"CLIENT_ID"`
	ClientSecret        string `env:"CLIENT_SECRET" validate:"required_with=ClientID"`
	RedirectURL         string `env:"REDIRECT_URL" validate:"omitempty,url"`
	ForceAccountChooser bool   `env:"FORCE_ACCOUNT_CHOOSER" envDefault:"true"`
}

// Enabled reports whether the provider has client credentials.
func (p ProviderConfig) Enabled() bool {
	return p.ClientID != ""
}

type CRMConfig struct {
	BaseURL     string        `env:"CRM_BASE_URL" validate:"omitempty,url"`
	AccessToken string        `env:"CRM_ACCESS_TOKEN" validate:"required_with=BaseURL"`
	APIVersion  string        `env:"CRM_API_VERSION" envDefault:"2024-01"`
	MarkerTag   string        `env:"CRM_MARKER_TAG" envDefault:"OAuth"`
	Timeout     time.Duration `env:"CRM_TIMEOUT" envDefault:"10s"`
}

// Enabled reports whether downstream synchronization is configured.
func (c CRMConfig) Enabled() bool {
	return c.BaseURL != ""
}

type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_PER_MIN" envDefault:"30" validate:"gte=0"`
	Burst             int  `env:"RATE_LIMIT_BURST" envDefault:"10" validate:"gte=0"`
}

type MonitoringConfig struct {
	SentryDSN        string  `env:"SENTRY_DSN"`
	SentrySampleRate float64 `env:"SENTRY_SAMPLE_RATE" envDefault:"0.2" validate:"gte=0,lte=1"`
}

// Load reads the environment (and an optional .env file) into Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}

	if cfg.App.LogoutRedirectURL == "" {
		cfg.App.LogoutRedirectURL = cfg.App.DefaultRedirectURL
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Session.Backend == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("config: DATABASE_DSN is required for the postgres session backend")
	}
	for name, p := range map[string]ProviderConfig{"google": c.Google, "facebook": c.Facebook} {
		if p.Enabled() && p.RedirectURL == "" {
			return fmt.Errorf("config: %s redirect url is required", name)
		}
	}
	if !c.Google.Enabled() && !c.Facebook.Enabled() {
		return fmt.Errorf("config: at least one oauth provider must be configured")
	}
	return nil
}
