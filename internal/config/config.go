package config

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	AuthMode             string        `mapstructure:"AUTH_MODE"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	DefaultOrganisation  string        `mapstructure:"DEFAULT_ORGANISATION"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	ImportTimezone       string        `mapstructure:"IMPORT_TIMEZONE"`
	ExportTimezone       string        `mapstructure:"EXPORT_TIMEZONE"`
	MultiSelectDelimiter string        `mapstructure:"MULTI_SELECT_DELIMITER"`
	ImportWorkers        int           `mapstructure:"IMPORT_WORKERS"`
	MediaBaseURL         string        `mapstructure:"MEDIA_BASE_URL"`
	MediaDownloadTimeout time.Duration `mapstructure:"MEDIA_DOWNLOAD_TIMEOUT"`
	ExportSchedules      string        `mapstructure:"EXPORT_SCHEDULES"`
	BodyLimit            string        `mapstructure:"BODY_LIMIT"`
	UploadBodyLimit      string        `mapstructure:"UPLOAD_BODY_LIMIT"`
}

var keys = []string{
	"PORT", "ENV", "AUTH_MODE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "DEFAULT_ORGANISATION",
	"CORS_ORIGINS", "IMPORT_TIMEZONE", "EXPORT_TIMEZONE", "MULTI_SELECT_DELIMITER",
	"IMPORT_WORKERS", "MEDIA_BASE_URL", "MEDIA_DOWNLOAD_TIMEOUT", "EXPORT_SCHEDULES",
	"BODY_LIMIT", "UPLOAD_BODY_LIMIT",
}

// Load reads configuration from the environment and an optional .env file.
// DATABASE_URL is only required by commands that open a pool.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8021")
	v.SetDefault("ENV", "development")
	v.SetDefault("AUTH_MODE", "")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("DEFAULT_ORGANISATION", "demo")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("IMPORT_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("EXPORT_TIMEZONE", "Asia/Kolkata")
	v.SetDefault("MULTI_SELECT_DELIMITER", ",")
	v.SetDefault("IMPORT_WORKERS", 4)
	v.SetDefault("MEDIA_BASE_URL", "http://localhost:8021/api/v1")
	v.SetDefault("MEDIA_DOWNLOAD_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "50M")

	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// ResolvedAuthMode returns AUTH_MODE when set, otherwise "development" in
// development and "external" elsewhere.
func (c *Config) ResolvedAuthMode() string {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.IsDev() {
		return "development"
	}
	return "external"
}

// ImportLocation is the zone import dates without an offset are read in.
func (c *Config) ImportLocation() (*time.Location, error) {
	return time.LoadLocation(c.ImportTimezone)
}

// Delimiter is the rune separating multi-select answers in import cells.
func (c *Config) Delimiter() rune {
	r, _ := utf8.DecodeRuneInString(c.MultiSelectDelimiter)
	return r
}

// RequireDatabase fails when DATABASE_URL is unset.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate checks that the configuration is safe to serve with.
func (c *Config) Validate() error {
	switch mode := c.ResolvedAuthMode(); mode {
	case "development":
	case "external":
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set when AUTH_MODE is \"external\" (current ENV=%q)", c.Env)
		}
	default:
		return fmt.Errorf("AUTH_MODE must be \"development\" or \"external\", got %q", mode)
	}
	if _, err := time.LoadLocation(c.ImportTimezone); err != nil {
		return fmt.Errorf("IMPORT_TIMEZONE: %w", err)
	}
	if _, err := time.LoadLocation(c.ExportTimezone); err != nil {
		return fmt.Errorf("EXPORT_TIMEZONE: %w", err)
	}
	if utf8.RuneCountInString(c.MultiSelectDelimiter) != 1 {
		return fmt.Errorf("MULTI_SELECT_DELIMITER must be a single character, got %q", c.MultiSelectDelimiter)
	}
	if c.ImportWorkers < 1 {
		return fmt.Errorf("IMPORT_WORKERS must be at least 1, got %d", c.ImportWorkers)
	}
	if c.MediaDownloadTimeout <= 0 {
		return fmt.Errorf("MEDIA_DOWNLOAD_TIMEOUT must be positive")
	}
	return nil
}
