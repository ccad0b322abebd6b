// Package feemarket implements the fee-market monitoring bounded context.
package feemarket

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/gas-monitor/business/feemarket/app"
	"github.com/fd1az/gas-monitor/business/feemarket/infra/ethereum"
	"github.com/fd1az/gas-monitor/business/feemarket/infra/reporter"
	"github.com/fd1az/gas-monitor/internal/monolith"
)

// sampleMaxAgeIntervals is how many poll intervals may pass without a
// successful sample before the readiness check fails.
const sampleMaxAgeIntervals = 3

// Module implements the fee-market bounded context.
type Module struct {
	supervisor *app.Supervisor
	monitor    *app.Monitor
}

// Startup builds the adapter, supervisor, fetcher, reporter and monitor and
// registers health checks. No connection is opened until Run.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	log := mono.Logger()

	dialer := ethereum.NewDialer(ethereum.Config{
		URL:               cfg.RPC.ProviderURL,
		RequestTimeout:    cfg.RPC.RequestTimeout,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
	}, mono.HTTPClient(), log)

	supervisor, err := app.NewSupervisor(dialer, cfg.RPC.RequestTimeout, log)
	if err != nil {
		return fmt.Errorf("failed to create supervisor: %w", err)
	}

	backoff := app.NewBackoffPolicy(app.BackoffConfig{
		BaseDelay:       cfg.Retry.BaseDelay,
		MaxDelay:        cfg.Retry.MaxDelay,
		MaxTotalBackoff: cfg.Retry.MaxTotalBackoff,
	})

	fetcher, err := app.NewFetcher(app.FetcherConfig{
		RetryLimit:      cfg.Retry.Limit,
		MaxGasPriceGwei: cfg.Monitor.MaxGasPriceGwei,
	}, backoff, log)
	if err != nil {
		return fmt.Errorf("failed to create fetcher: %w", err)
	}

	rep, err := reporter.New(reporter.Format(cfg.Monitor.OutputFormat), mono.Output(), log)
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}

	m.supervisor = supervisor
	m.monitor = app.NewMonitor(cfg.Monitor.PollInterval, supervisor, fetcher, rep, log)

	if hs := mono.Health(); hs != nil {
		hs.RegisterCheck("rpc_connection", app.ConnectionCheck(supervisor))
		hs.RegisterCheck("fee_sample", app.SampleFreshnessCheck(m.monitor,
			sampleMaxAgeIntervals*cfg.Monitor.PollInterval, time.Now))
	}

	log.Debug(ctx, "fee market module ready",
		"poll_interval", cfg.Monitor.PollInterval.String(),
		"retry_limit", cfg.Retry.Limit,
		"output", cfg.Monitor.OutputFormat)

	return nil
}

// Run blocks in the monitor loop until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	return m.monitor.Run(ctx)
}

// Close releases the provider connection.
func (m *Module) Close() {
	if m.supervisor != nil {
		m.supervisor.Close()
	}
}

// Monitor exposes the loop for callers that need its state.
func (m *Module) Monitor() *app.Monitor {
	return m.monitor
}
