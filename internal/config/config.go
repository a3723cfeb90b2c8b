// Package config resolves botsync settings from defaults, an optional YAML
// file, a .env file and the environment. Command-line flags are layered on
// top by the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentworkforce/botsync/internal/logging"
)

const (
	EnvAPIKey      = "CSML_CLIENT_API_KEY"
	EnvAPISecret   = "CSML_CLIENT_API_SECRET"
	EnvBaseURL     = "CSML_CLIENT_URL"
	EnvSource      = "BOTSYNC_SOURCE"
	EnvTimeout     = "BOTSYNC_TIMEOUT"
	EnvRateLimit   = "BOTSYNC_RATE_LIMIT"
	EnvLogLevel    = "BOTSYNC_LOG_LEVEL"
	EnvLogFormat   = "BOTSYNC_LOG_FORMAT"
	EnvPushgateway = "BOTSYNC_PUSHGATEWAY"

	DefaultFile   = "botsync.yaml"
	DefaultDotEnv = ".env"
)

var (
	ErrMissing = errors.New("missing required setting")
	ErrInvalid = errors.New("invalid setting")
)

// Error names the setting at fault by its environment variable.
type Error struct {
	Setting string
	Err     error
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Setting, e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Config struct {
	APIKey      string        `yaml:"api_key"`
	APISecret   string        `yaml:"api_secret"`
	BaseURL     string        `yaml:"base_url"`
	Source      string        `yaml:"source"`
	Timeout     time.Duration `yaml:"timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	LogLevel    string        `yaml:"log_level"`
	LogFormat   string        `yaml:"log_format"`
	Pushgateway string        `yaml:"pushgateway"`
}

func Default() Config {
	return Config{
		Source:    ".",
		Timeout:   30 * time.Second,
		LogLevel:  "info",
		LogFormat: "text",
	}
}

type LoadOptions struct {
	// File is the YAML file to read. When empty, DefaultFile is read if it
	// exists; an explicitly named file must exist.
	File string
	// DotEnv is the .env file to load; empty means DefaultDotEnv. A missing
	// .env file is not an error.
	DotEnv string
	// Logger receives warnings about ignored environment values.
	Logger *slog.Logger
}

// Load applies defaults, then the YAML file, then the .env file, then the
// process environment. Variables already set in the environment are never
// overridden by .env.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	logger := logging.OrDiscard(opts.Logger)

	file, explicit := opts.File, true
	if strings.TrimSpace(file) == "" {
		file, explicit = DefaultFile, false
	}
	if err := loadFile(file, &cfg); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	dotEnv := opts.DotEnv
	if strings.TrimSpace(dotEnv) == "" {
		dotEnv = DefaultDotEnv
	}
	if err := godotenv.Load(dotEnv); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", dotEnv, err)
	}

	ApplyEnv(&cfg, logger)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays set environment variables onto cfg. Unparseable numeric
// values are ignored with a warning.
func ApplyEnv(cfg *Config, logger *slog.Logger) {
	logger = logging.OrDiscard(logger)
	cfg.APIKey = envOrDefault(EnvAPIKey, cfg.APIKey)
	cfg.APISecret = envOrDefault(EnvAPISecret, cfg.APISecret)
	cfg.BaseURL = envOrDefault(EnvBaseURL, cfg.BaseURL)
	cfg.Source = envOrDefault(EnvSource, cfg.Source)
	cfg.Timeout = durationEnv(logger, EnvTimeout, cfg.Timeout)
	cfg.RateLimit = floatEnv(logger, EnvRateLimit, cfg.RateLimit)
	cfg.LogLevel = envOrDefault(EnvLogLevel, cfg.LogLevel)
	cfg.LogFormat = envOrDefault(EnvLogFormat, cfg.LogFormat)
	cfg.Pushgateway = envOrDefault(EnvPushgateway, cfg.Pushgateway)
}

// ValidateLocal checks the settings every command needs.
func (c Config) ValidateLocal() error {
	if strings.TrimSpace(c.Source) == "" {
		return &Error{Setting: EnvSource, Err: ErrMissing}
	}
	if c.Timeout <= 0 {
		return &Error{Setting: EnvTimeout, Err: ErrInvalid, Detail: "must be positive"}
	}
	if c.RateLimit < 0 {
		return &Error{Setting: EnvRateLimit, Err: ErrInvalid, Detail: "must not be negative"}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return &Error{Setting: EnvLogLevel, Err: ErrInvalid, Detail: err.Error()}
	}
	switch strings.ToLower(strings.TrimSpace(c.LogFormat)) {
	case "", "text", "json":
	default:
		return &Error{Setting: EnvLogFormat, Err: ErrInvalid, Detail: fmt.Sprintf("unknown format %q", c.LogFormat)}
	}
	return nil
}

// Validate additionally requires the studio credentials and URL.
func (c Config) Validate() error {
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	required := []struct {
		setting string
		value   string
	}{
		{EnvAPIKey, c.APIKey},
		{EnvAPISecret, c.APISecret},
		{EnvBaseURL, c.BaseURL},
	}
	for _, item := range required {
		if strings.TrimSpace(item.value) == "" {
			return &Error{Setting: item.setting, Err: ErrMissing}
		}
	}
	return nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(logger *slog.Logger, name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		logger.Warn("invalid duration, using fallback",
			slog.String("env", name), slog.String("value", raw), slog.Duration("fallback", fallback))
		return fallback
	}
	return value
}

func floatEnv(logger *slog.Logger, name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Warn("invalid number, using fallback",
			slog.String("env", name), slog.String("value", raw), slog.Float64("fallback", fallback))
		return fallback
	}
	return value
}
