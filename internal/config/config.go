package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"vereinskasse/backend/internal/money"
	"vereinskasse/backend/internal/till"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	Timezone             string `envconfig:"TIMEZONE" default:"Europe/Berlin"`
	TipBooking           string `envconfig:"TIP_BOOKING" default:"at_commit"`
	DaySummaryTTLSeconds int    `envconfig:"DAY_SUMMARY_TTL_SECONDS" default:"30"`
	CloseCron            string `envconfig:"CLOSE_CRON"`
	Denominations        string `envconfig:"DENOMINATIONS"`

	WriteRateLimit int `envconfig:"WRITE_RATE_LIMIT_PER_MINUTE" default:"120"`

	ReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}

	cfg.TipBooking = strings.ToLower(strings.TrimSpace(cfg.TipBooking))
	if cfg.TipBooking != "at_commit" && cfg.TipBooking != "at_close" {
		return Config{}, fmt.Errorf("TIP_BOOKING must be at_commit or at_close, got %q", cfg.TipBooking)
	}
	if cfg.DaySummaryTTLSeconds < 1 {
		cfg.DaySummaryTTLSeconds = 30
	}
	if cfg.WriteRateLimit < 1 {
		cfg.WriteRateLimit = 120
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	if _, err := cfg.TillDenominations(); err != nil {
		return Config{}, fmt.Errorf("DENOMINATIONS: %w", err)
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location is the venue time zone that decides which business day a sale
// belongs to.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c Config) DaySummaryTTL() time.Duration {
	return time.Duration(c.DaySummaryTTLSeconds) * time.Second
}

// TillDenominations are the notes and coins on the count form. DENOMINATIONS
// is a space separated list such as "50 20 10 5 2 1 0,50"; empty means the
// euro default.
func (c Config) TillDenominations() ([]money.Cents, error) {
	labels := strings.Fields(c.Denominations)
	if len(labels) == 0 {
		return till.DefaultDenominations, nil
	}
	return till.ParseDenominations(labels)
}
