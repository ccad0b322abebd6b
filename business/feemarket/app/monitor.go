package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

// Monitor samples the fee market once per poll interval until its context
// is cancelled. Cycles never overlap.
type Monitor struct {
	interval   time.Duration
	supervisor *Supervisor
	fetcher    *Fetcher
	reporter   Reporter
	logger     logger.LoggerInterface

	state      atomic.Value // domain.MonitorState
	lastSample atomic.Pointer[domain.FeeSample]
	stopOnce   sync.Once
}

// NewMonitor creates a Monitor.
func NewMonitor(interval time.Duration, sup *Supervisor, f *Fetcher, r Reporter, log logger.LoggerInterface) *Monitor {
	m := &Monitor{
		interval:   interval,
		supervisor: sup,
		fetcher:    f,
		reporter:   r,
		logger:     log,
	}
	m.state.Store(domain.MonitorIdle)
	return m
}

// Run drives the sampling loop. Cancellation is observed between cycles and
// during the interval sleep, never in the middle of a fetch. Run returns nil
// once stopped.
func (m *Monitor) Run(ctx context.Context) error {
	defer m.stop(ctx)

	if ctx.Err() != nil {
		return nil
	}

	m.logger.Info(ctx, "starting gas price monitoring", "poll_interval", m.interval)

	for {
		m.cycle(ctx)

		if ctx.Err() != nil {
			return nil
		}

		m.state.Store(domain.MonitorSleeping)
		if !sleepCtx(ctx, m.interval) {
			return nil
		}
	}
}

// cycle runs one connect-fetch-report pass.
func (m *Monitor) cycle(ctx context.Context) {
	// In-flight network calls are not pre-empted by a stop request.
	work := context.WithoutCancel(ctx)

	if !m.supervisor.Connected() {
		m.state.Store(domain.MonitorConnecting)
	}
	conn, err := m.supervisor.EnsureConnected(work)
	if err != nil {
		return
	}

	if ctx.Err() != nil {
		return
	}

	m.state.Store(domain.MonitorFetching)
	sample, err := m.fetcher.Fetch(work, conn)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && fe.Connectivity {
			m.supervisor.Invalidate(work, "transport failures exhausted fetch")
		}
		m.logger.Warn(ctx, "failed to fetch fee data in this cycle", "error", err)
		return
	}

	m.lastSample.Store(sample)

	if err := m.reporter.Report(work, sample); err != nil {
		m.logger.Error(ctx, "failed to report fee sample",
			apperror.LogFields(apperror.Wrap(err, apperror.CodeReportFailed, "report"))...)
	}
}

func (m *Monitor) stop(ctx context.Context) {
	m.stopOnce.Do(func() {
		m.state.Store(domain.MonitorStopped)
		m.logger.Info(ctx, "fee monitoring stopped")
	})
}

// State returns the loop state.
func (m *Monitor) State() domain.MonitorState {
	return m.state.Load().(domain.MonitorState)
}

// LastSample returns the most recent successful sample, or nil.
func (m *Monitor) LastSample() *domain.FeeSample {
	return m.lastSample.Load()
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
