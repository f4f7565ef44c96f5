package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/thereayou/unimeet/internal/storage"
)

const (
	BlobLocal = "local"
	BlobOSS   = "oss"
)

type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	GinMode string `env:"GIN_MODE" envDefault:"release"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL,required"`
	RedisURL       string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"24h"`

	// Пустой список пускает любой домен
	AllowedEmailDomains []string `env:"ALLOWED_EMAIL_DOMAINS" envSeparator:","`

	BlobBackend       string            `env:"BLOB_BACKEND" envDefault:"local"`
	UploadDir         string            `env:"UPLOAD_DIR" envDefault:"uploads"`
	UploadURLPrefix   string            `env:"UPLOAD_URL_PREFIX" envDefault:"/uploads"`
	MaxUploadBytes    int64             `env:"MAX_UPLOAD_BYTES" envDefault:"5242880"`
	MaxImageDimension int               `env:"MAX_IMAGE_DIMENSION" envDefault:"1600"`
	MaxEventImages    int               `env:"MAX_EVENT_IMAGES" envDefault:"5"`
	OSS               storage.OSSConfig `envPrefix:"ALI_OSS_"`

	ReaperSchedule string        `env:"REAPER_SCHEDULE" envDefault:"@every 1h"`
	ReaperGrace    time.Duration `env:"REAPER_GRACE" envDefault:"1h"`

	AuthRatePerMinute int `env:"AUTH_RATE_PER_MINUTE" envDefault:"20"`
	AuthRateBurst     int `env:"AUTH_RATE_BURST" envDefault:"5"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load читает .env.local и .env (если есть), затем переменные окружения.
// Уже выставленные переменные окружения не перетираются.
func Load() (*Config, error) {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err == nil {
			slog.Debug("loaded env file", "file", file)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromMap собирает конфиг из явного набора переменных
func FromMap(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DatabaseDriver))
	}
	switch c.BlobBackend {
	case BlobLocal, BlobOSS:
	default:
		errs = append(errs, fmt.Errorf("BLOB_BACKEND must be local or oss, got %q", c.BlobBackend))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, errors.New("JWT_TTL must be positive"))
	}
	if c.MaxEventImages < 0 {
		errs = append(errs, errors.New("MAX_EVENT_IMAGES must not be negative"))
	}
	if c.AuthRatePerMinute <= 0 || c.AuthRateBurst <= 0 {
		errs = append(errs, errors.New("AUTH_RATE_PER_MINUTE and AUTH_RATE_BURST must be positive"))
	}

	domains := c.AllowedEmailDomains[:0]
	for _, d := range c.AllowedEmailDomains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	c.AllowedEmailDomains = domains

	return errors.Join(errs...)
}
