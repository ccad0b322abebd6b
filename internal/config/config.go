// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	RPC       RPCConfig       `mapstructure:"rpc"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Health    HealthConfig    `mapstructure:"health"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// RPCConfig holds the fee-data provider endpoint settings.
type RPCConfig struct {
	ProviderURL       string        `mapstructure:"provider_url"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"` // 0 = unlimited
	// Headers are sent with every request, e.g. an API key some providers
	// take outside the URL. Names are case-insensitive.
	Headers map[string]string `mapstructure:"headers"`
}

// RetryConfig holds per-fetch retry and backoff settings.
type RetryConfig struct {
	Limit           int           `mapstructure:"limit"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	MaxDelay        time.Duration `mapstructure:"max_delay"`
	MaxTotalBackoff time.Duration `mapstructure:"max_total_backoff"`
}

// MonitorConfig holds sampling loop settings.
type MonitorConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	OutputFormat    string        `mapstructure:"output_format"` // json | text
	MaxGasPriceGwei float64       `mapstructure:"max_gas_price_gwei"`
}

// LogConfig holds logging destinations.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // console rendering: text | json
	Console    bool   `mapstructure:"console"`
	NoColor    bool   `mapstructure:"no_color"`
	File       string `mapstructure:"file"` // empty disables file output
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	TraceExporter  string `mapstructure:"trace_exporter"` // none | console | zipkin | otlp-grpc | otlp-http
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	OTLPHeaders    string `mapstructure:"otlp_headers"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `mapstructure:"port"` // 0 disables the server
}

var (
	outputFormats  = []string{"json", "text"}
	logFormats     = []string{"json", "text"}
	logLevels      = []string{"debug", "info", "warn", "warning", "error", "critical"}
	traceExporters = []string{"none", "console", "zipkin", "otlp-grpc", "otlp-http"}
)

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"provider-url":  "rpc.provider_url",
	"log-level":     "log.level",
	"log-file":      "log.file",
	"output":        "monitor.output_format",
	"poll-interval": "monitor.poll_interval",
	"retry-limit":   "retry.limit",
}

// Load loads configuration from file, environment variables and flags.
// Flags that were not set on the command line do not override other sources.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("GASMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "GASMON_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "GASMON_ENVIRONMENT", "ENVIRONMENT")

	// RPC
	v.BindEnv("rpc.provider_url", "GASMON_PROVIDER_URL", "PROVIDER_URL", "ETH_HTTP_URL")
	v.BindEnv("rpc.request_timeout", "GASMON_REQUEST_TIMEOUT")
	v.BindEnv("rpc.requests_per_minute", "GASMON_REQUESTS_PER_MINUTE")

	// Retry
	v.BindEnv("retry.limit", "GASMON_RETRY_LIMIT", "RETRY_LIMIT")
	v.BindEnv("retry.base_delay", "GASMON_RETRY_BASE_DELAY")
	v.BindEnv("retry.max_delay", "GASMON_RETRY_MAX_DELAY")
	v.BindEnv("retry.max_total_backoff", "GASMON_RETRY_MAX_TOTAL_BACKOFF")

	// Monitor
	v.BindEnv("monitor.poll_interval", "GASMON_POLL_INTERVAL")
	v.BindEnv("monitor.output_format", "GASMON_OUTPUT_FORMAT", "OUTPUT_FORMAT")

	// Log
	v.BindEnv("log.level", "GASMON_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("log.format", "GASMON_LOG_FORMAT", "LOG_FORMAT")
	v.BindEnv("log.file", "GASMON_LOG_FILE", "LOG_FILE")

	// Telemetry
	v.BindEnv("telemetry.enabled", "GASMON_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "GASMON_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "GASMON_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.otlp_headers", "GASMON_OTEL_HEADERS", "OTEL_EXPORTER_OTLP_HEADERS")
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gas-monitor")
	v.SetDefault("app.environment", "development")

	v.SetDefault("rpc.request_timeout", "10s")
	v.SetDefault("rpc.requests_per_minute", 120)

	v.SetDefault("retry.limit", 5)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.max_delay", "16s")
	v.SetDefault("retry.max_total_backoff", "30s")

	v.SetDefault("monitor.poll_interval", "10s")
	v.SetDefault("monitor.output_format", "text")
	v.SetDefault("monitor.max_gas_price_gwei", 500)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.console", true)
	v.SetDefault("log.file", "gas_price_monitor.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "gas-monitor")
	v.SetDefault("telemetry.trace_exporter", "none")
	v.SetDefault("telemetry.prometheus_port", 9090)

	v.SetDefault("health.port", 8081)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.RPC.ProviderURL == "" {
		return invalid("rpc.provider_url is required")
	}
	u, err := url.Parse(c.RPC.ProviderURL)
	if err != nil || u.Host == "" {
		return invalid("invalid rpc.provider_url: %q", c.RPC.ProviderURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("rpc.provider_url must be http or https, got %q", u.Scheme)
	}
	if c.RPC.RequestTimeout <= 0 {
		return invalid("rpc.request_timeout must be positive")
	}
	if c.Retry.Limit < 1 {
		return invalid("retry.limit must be at least 1, got %d", c.Retry.Limit)
	}
	if c.Retry.BaseDelay <= 0 {
		return invalid("retry.base_delay must be positive")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return invalid("retry.max_delay (%s) must not be below retry.base_delay (%s)",
			c.Retry.MaxDelay, c.Retry.BaseDelay)
	}
	if c.Retry.MaxTotalBackoff < 0 {
		return invalid("retry.max_total_backoff must not be negative")
	}
	if c.Monitor.PollInterval <= 0 {
		return invalid("monitor.poll_interval must be positive")
	}
	if !slices.Contains(outputFormats, c.Monitor.OutputFormat) {
		return invalid("invalid monitor.output_format: %q", c.Monitor.OutputFormat)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return invalid("invalid log.level: %q", c.Log.Level)
	}
	// Text samples are info records; a stricter level would drop every one.
	if c.Monitor.OutputFormat == "text" && logger.ParseLevel(c.Log.Level) > logger.LevelInfo {
		return invalid("monitor.output_format text needs log.level debug or info, got %q", c.Log.Level)
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		return invalid("invalid log.format: %q", c.Log.Format)
	}
	if !c.Log.Console && c.Log.File == "" {
		return invalid("log output disabled: enable log.console or set log.file")
	}
	if c.Telemetry.Enabled && !slices.Contains(traceExporters, c.Telemetry.TraceExporter) {
		return invalid("invalid telemetry.trace_exporter: %q", c.Telemetry.TraceExporter)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return apperror.New(apperror.CodeConfigurationError, apperror.WithContext(fmt.Sprintf(format, args...)))
}
