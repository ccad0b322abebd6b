// Package main is the entry point for the gas price monitor.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/fd1az/gas-monitor/business/feemarket"
	"github.com/fd1az/gas-monitor/internal/apm"
	"github.com/fd1az/gas-monitor/internal/config"
	"github.com/fd1az/gas-monitor/internal/health"
	"github.com/fd1az/gas-monitor/internal/logger"
	"github.com/fd1az/gas-monitor/internal/metrics"
	"github.com/fd1az/gas-monitor/internal/monolith"
	"github.com/fd1az/gas-monitor/internal/shutdown"
	"github.com/fd1az/gas-monitor/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const stopTimeout = 5 * time.Second

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "gasmon",
		Short: "Gas price monitor for EVM JSON-RPC providers",
		Long: `gasmon polls a JSON-RPC provider for the current gas price and the
pending block base fee, derives the priority fee, and reports one sample per
interval as a log line or a JSON record.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath, cmd.Flags())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&configPath, "config", "", "Path to configuration file")
	flags.String("provider-url", "", "JSON-RPC provider URL")
	flags.String("log-level", "info", "Log level (debug, info, warn, error, critical)")
	flags.String("log-file", "gas_price_monitor.log", "Rotated log file, empty to disable")
	flags.String("output", "text", "Sample output format (text, json)")
	flags.Duration("poll-interval", 10*time.Second, "Time between samples")
	flags.Int("retry-limit", 5, "Attempts per sample")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gasmon %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	})

	return root
}

func run(parent context.Context, cfg *config.Config) error {
	sink, err := logger.NewSink(logger.SinkConfig{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Format:     logger.Format(cfg.Log.Format),
		Console:    cfg.Log.Console,
		NoColor:    cfg.Log.NoColor,
		FilePath:   cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to open log sink: %w", err)
	}
	defer sink.Close()

	log := logger.NewWithHandler(sink.Handler(), cfg.App.Name, logger.SpanTraceID)

	coordinator := shutdown.New(log)
	ctx, cancel := coordinator.Context(parent)
	defer cancel()

	if cfg.Monitor.OutputFormat == "text" && cfg.Log.Console {
		fmt.Fprintln(os.Stderr, ui.Banner(ui.BannerInfo{
			Version:      version,
			ProviderURL:  cfg.RPC.ProviderURL,
			PollInterval: cfg.Monitor.PollInterval,
			RetryLimit:   cfg.Retry.Limit,
			Output:       cfg.Monitor.OutputFormat,
			LogFile:      cfg.Log.File,
		}))
	}

	log.Info(ctx, "starting gas price monitor",
		"version", version,
		"commit", commit,
		"environment", cfg.App.Environment,
		"provider", ui.RedactURL(cfg.RPC.ProviderURL),
	)

	// Initialize observability if enabled
	var monoOpts []monolith.Option
	if cfg.Telemetry.Enabled {
		stop, mp, err := startTelemetry(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer stop()
		monoOpts = append(monoOpts, monolith.WithMeterProvider(mp.MeterProvider()))
	}

	if cfg.Health.Port > 0 {
		hs := health.NewServer(cfg.Health.Port, version, log)
		if err := hs.Start(ctx); err != nil {
			log.Warn(ctx, "failed to start health server", "error", err)
		} else {
			defer stopWithTimeout(hs.Stop)
			monoOpts = append(monoOpts, monolith.WithHealth(hs))
		}
	}

	// JSON records go to stdout and, when enabled, alongside the log records in the file.
	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stdout, sink.FileWriter())
	}
	monoOpts = append(monoOpts, monolith.WithOutput(out))

	// Create monolith (application container)
	mono, err := monolith.New(cfg, log, monoOpts...)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}

	modules := []monolith.Module{
		&feemarket.Module{},
	}

	if err := mono.StartModules(ctx, modules...); err != nil {
		_ = mono.Close()
		return fmt.Errorf("failed to start modules: %w", err)
	}

	runErr := mono.RunModules(ctx)

	log.Info(ctx, "shutting down gracefully")
	_ = mono.Close()

	return runErr
}

// startTelemetry installs the trace and meter providers and serves /metrics.
// The returned func flushes and stops all of them.
func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (func(), *metrics.Provider, error) {
	headers, err := apm.ParseHeaders(cfg.Telemetry.OTLPHeaders)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid telemetry.otlp_headers: %w", err)
	}

	traceProvider, err := apm.NewTraceProvider(ctx, apm.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.App.Environment,
		Exporter:    apm.Exporter(cfg.Telemetry.TraceExporter),
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     headers,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start tracing: %w", err)
	}

	metricsCfg := metrics.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Prometheus:  cfg.Telemetry.PrometheusPort > 0,
		OTLPHeaders: headers,
	}
	if apm.Exporter(cfg.Telemetry.TraceExporter) == apm.ExporterOTLPGRPC {
		metricsCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}

	mp, err := metrics.NewProvider(ctx, metricsCfg)
	if err != nil {
		_ = traceProvider.Stop()
		return nil, nil, fmt.Errorf("failed to start metrics: %w", err)
	}

	var promServer *metrics.Server
	if metricsCfg.Prometheus {
		promServer, err = metrics.ServePrometheus(ctx, cfg.Telemetry.PrometheusPort, mp.Handler(), log)
		if err != nil {
			log.Warn(ctx, "failed to start prometheus server", "error", err)
		}
	}

	stop := func() {
		if promServer != nil {
			stopWithTimeout(promServer.Stop)
		}
		stopWithTimeout(mp.Shutdown)
		if err := traceProvider.Stop(); err != nil {
			log.Warn(context.Background(), "failed to flush traces", "error", err)
		}
	}
	return stop, mp, nil
}

func stopWithTimeout(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	_ = fn(ctx)
}
