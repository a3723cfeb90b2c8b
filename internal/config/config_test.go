package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allEnv = []string{
	EnvAPIKey, EnvAPISecret, EnvBaseURL, EnvSource, EnvTimeout,
	EnvRateLimit, EnvLogLevel, EnvLogFormat, EnvPushgateway,
}

// clearEnv unsets every setting for the test and restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range allEnv {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(LoadOptions{DotEnv: filepath.Join(t.TempDir(), "missing.env")})

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, ".", cfg.Source)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestLoadLayersFileThenEnv(t *testing.T) {
	clearEnv(t)
	file := writeTemp(t, "botsync.yaml", `
api_key: file-key
api_secret: file-secret
base_url: https://studio.example
source: ./bot
timeout: 5s
rate_limit: 2.5
log_format: json
`)
	t.Setenv(EnvAPIKey, "env-key")
	t.Setenv(EnvTimeout, "12s")

	cfg, err := Load(LoadOptions{File: file, DotEnv: filepath.Join(t.TempDir(), "none.env")})

	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "file-secret", cfg.APISecret)
	assert.Equal(t, "https://studio.example", cfg.BaseURL)
	assert.Equal(t, "./bot", cfg.Source)
	assert.Equal(t, 12*time.Second, cfg.Timeout)
	assert.Equal(t, 2.5, cfg.RateLimit)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NoError(t, cfg.Validate())
}

func TestLoadExplicitMissingFileFails(t *testing.T) {
	clearEnv(t)

	_, err := Load(LoadOptions{File: filepath.Join(t.TempDir(), "absent.yaml")})

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	clearEnv(t)
	file := writeTemp(t, "botsync.yaml", "timeout: [not, a, duration]\n")

	_, err := Load(LoadOptions{File: file})

	assert.ErrorContains(t, err, "parse")
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	dotEnv := writeTemp(t, ".env", "CSML_CLIENT_API_KEY=dotenv-key\nCSML_CLIENT_URL=https://dotenv.example\n")
	t.Setenv(EnvBaseURL, "https://env.example")

	cfg, err := Load(LoadOptions{DotEnv: dotEnv})

	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.APIKey)
	assert.Equal(t, "https://env.example", cfg.BaseURL)
}

func TestApplyEnvIgnoresInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvTimeout, "soon")
	t.Setenv(EnvRateLimit, "fast")
	cfg := Default()

	ApplyEnv(&cfg, nil)

	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.RateLimit)
}

func TestValidateReportsMissingSettings(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "key"
	cfg.BaseURL = "https://studio.example"

	err := cfg.Validate()

	assert.ErrorIs(t, err, ErrMissing)
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, EnvAPISecret, cfgErr.Setting)
	assert.Equal(t, "CSML_CLIENT_API_SECRET: missing required setting", err.Error())
	assert.NoError(t, cfg.ValidateLocal())
}

func TestValidateLocalRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		EnvSource:    func(c *Config) { c.Source = " " },
		EnvTimeout:   func(c *Config) { c.Timeout = 0 },
		EnvRateLimit: func(c *Config) { c.RateLimit = -1 },
		EnvLogLevel:  func(c *Config) { c.LogLevel = "loud" },
		EnvLogFormat: func(c *Config) { c.LogFormat = "xml" },
	}
	for setting, mutate := range cases {
		t.Run(setting, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			var cfgErr *Error
			require.ErrorAs(t, cfg.ValidateLocal(), &cfgErr)
			assert.Equal(t, setting, cfgErr.Setting)
		})
	}
}
