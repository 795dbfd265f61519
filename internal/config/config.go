// Package config loads server settings from WEEKLYVOTE_* environment
// variables, then applies command-line flag overrides.
package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds server configuration
type Config struct {
	Port              int           `env:"WEEKLYVOTE_PORT" envDefault:"8081"`
	DBPath            string        `env:"WEEKLYVOTE_DB" envDefault:"weeklyvote.db"`
	AdminUser         string        `env:"WEEKLYVOTE_ADMIN_USER" envDefault:"admin"`
	AdminPassword     string        `env:"WEEKLYVOTE_ADMIN_PASSWORD"`
	LogLevel          string        `env:"WEEKLYVOTE_LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"WEEKLYVOTE_LOG_FORMAT" envDefault:"text"`
	HTTPLogging       bool          `env:"WEEKLYVOTE_HTTP_LOGGING" envDefault:"false"`
	BaseURL           string        `env:"WEEKLYVOTE_BASE_URL"`
	RiskScorerURL     string        `env:"WEEKLYVOTE_RISK_SCORER_URL"`
	RiskScorerTimeout time.Duration `env:"WEEKLYVOTE_RISK_SCORER_TIMEOUT" envDefault:"1500ms"`
	OTelEndpoint      string        `env:"WEEKLYVOTE_OTEL_ENDPOINT"`
	OTelServiceName   string        `env:"WEEKLYVOTE_OTEL_SERVICE_NAME" envDefault:"weeklyvote"`
	ShutdownTimeout   time.Duration `env:"WEEKLYVOTE_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Flag-only settings
	SeedDemo    bool
	ShowVersion bool
}

// ParseConfig reads the environment, then parses args from fs on top of it
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port (WEEKLYVOTE_PORT)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path (WEEKLYVOTE_DB)")
	fs.StringVar(&cfg.AdminUser, "adminuser", cfg.AdminUser, "Admin username (WEEKLYVOTE_ADMIN_USER)")
	fs.StringVar(&cfg.AdminPassword, "adminpw", cfg.AdminPassword, "Admin password, auto-generated if empty (WEEKLYVOTE_ADMIN_PASSWORD)")
	fs.StringVar(&cfg.LogLevel, "loglevel", cfg.LogLevel, "Log level: debug, info, warn, error (WEEKLYVOTE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "logformat", cfg.LogFormat, "Log format: text or json (WEEKLYVOTE_LOG_FORMAT)")
	fs.BoolVar(&cfg.HTTPLogging, "httplog", cfg.HTTPLogging, "Log every HTTP request (WEEKLYVOTE_HTTP_LOGGING)")
	fs.StringVar(&cfg.BaseURL, "baseurl", cfg.BaseURL, "Public base URL used in share links (WEEKLYVOTE_BASE_URL)")
	fs.StringVar(&cfg.RiskScorerURL, "riskscorer", cfg.RiskScorerURL, "Risk scorer endpoint, empty allows all (WEEKLYVOTE_RISK_SCORER_URL)")
	fs.DurationVar(&cfg.RiskScorerTimeout, "riskscorer-timeout", cfg.RiskScorerTimeout, "Risk scorer call timeout (WEEKLYVOTE_RISK_SCORER_TIMEOUT)")
	fs.StringVar(&cfg.OTelEndpoint, "otel-endpoint", cfg.OTelEndpoint, "OTLP/HTTP traces endpoint, empty disables tracing (WEEKLYVOTE_OTEL_ENDPOINT)")
	fs.BoolVar(&cfg.SeedDemo, "seed-demo", false, "Create a demo period with submissions on startup")
	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that flag and env parsing cannot
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", c.LogFormat)
	}
	if c.RiskScorerTimeout <= 0 {
		return fmt.Errorf("risk scorer timeout must be positive")
	}
	return nil
}

// Addr returns the listen address for the configured port
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
