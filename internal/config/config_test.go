package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/gas-monitor/internal/apperror"
)

func validConfig() Config {
	return Config{
		RPC: RPCConfig{
			ProviderURL:    "https://mainnet.base.org",
			RequestTimeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			Limit:           5,
			BaseDelay:       time.Second,
			MaxDelay:        16 * time.Second,
			MaxTotalBackoff: 30 * time.Second,
		},
		Monitor: MonitorConfig{PollInterval: 10 * time.Second, OutputFormat: "text"},
		Log:     LogConfig{Level: "info", Format: "text", Console: true},
	}
}

func TestLoad_DefaultsAndLegacyEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROVIDER_URL", "https://rpc.example.org")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "https://rpc.example.org", cfg.RPC.ProviderURL)
	assert.Equal(t, 10*time.Second, cfg.RPC.RequestTimeout)
	assert.Equal(t, 5, cfg.Retry.Limit)
	assert.Equal(t, time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, 16*time.Second, cfg.Retry.MaxDelay)
	assert.Equal(t, 30*time.Second, cfg.Retry.MaxTotalBackoff)
	assert.Equal(t, 10*time.Second, cfg.Monitor.PollInterval)
	assert.Equal(t, "text", cfg.Monitor.OutputFormat)
	assert.Equal(t, "gas_price_monitor.log", cfg.Log.File)
	assert.True(t, cfg.Log.Console)
	assert.Equal(t, 8081, cfg.Health.Port)
}

func TestLoad_FileThenEnvThenFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gasmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  provider_url: https://file.example.org
  headers:
    x-api-key: secret
retry:
  limit: 3
  base_delay: 500ms
monitor:
  poll_interval: 30s
  output_format: json
`), 0o600))

	t.Setenv("GASMON_RETRY_LIMIT", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output", "text", "")
	flags.Duration("poll-interval", 10*time.Second, "")
	require.NoError(t, flags.Parse([]string{"--output=text"}))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "https://file.example.org", cfg.RPC.ProviderURL)
	assert.Equal(t, map[string]string{"x-api-key": "secret"}, cfg.RPC.Headers)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)
	assert.Equal(t, 7, cfg.Retry.Limit, "env overrides file")
	assert.Equal(t, "text", cfg.Monitor.OutputFormat, "changed flag overrides file")
	assert.Equal(t, 30*time.Second, cfg.Monitor.PollInterval, "unchanged flag does not override file")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_RequiresProviderURL(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROVIDER_URL", "")
	t.Setenv("GASMON_PROVIDER_URL", "")
	t.Setenv("ETH_HTTP_URL", "")

	_, err := Load("", nil)
	assert.ErrorContains(t, err, "rpc.provider_url is required")
	assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"bad scheme", func(c *Config) { c.RPC.ProviderURL = "ftp://x.org" }, "http or https"},
		{"no host", func(c *Config) { c.RPC.ProviderURL = "https://" }, "invalid rpc.provider_url"},
		{"zero timeout", func(c *Config) { c.RPC.RequestTimeout = 0 }, "request_timeout"},
		{"zero retries", func(c *Config) { c.Retry.Limit = 0 }, "retry.limit"},
		{"zero base", func(c *Config) { c.Retry.BaseDelay = 0 }, "base_delay"},
		{"max below base", func(c *Config) { c.Retry.MaxDelay = time.Millisecond }, "max_delay"},
		{"negative budget", func(c *Config) { c.Retry.MaxTotalBackoff = -time.Second }, "max_total_backoff"},
		{"zero interval", func(c *Config) { c.Monitor.PollInterval = 0 }, "poll_interval"},
		{"bad output", func(c *Config) { c.Monitor.OutputFormat = "xml" }, "output_format"},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"text above info", func(c *Config) {
			c.Monitor.OutputFormat = "text"
			c.Log.Level = "warn"
		}, "needs log.level debug or info"},
		{"json at error", func(c *Config) {
			c.Monitor.OutputFormat = "json"
			c.Log.Level = "error"
		}, ""},
		{"no log sink", func(c *Config) { c.Log.Console = false; c.Log.File = "" }, "log output disabled"},
		{"bad exporter", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.TraceExporter = "jaeger"
		}, "trace_exporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
			assert.Equal(t, apperror.CodeConfigurationError, apperror.GetCode(err))
		})
	}
}
