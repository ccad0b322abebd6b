package app

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/shutdown"
)

// eventLog records the order of calls across fakes.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) add(ev string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

func newTestMonitor(t *testing.T, d Dialer, r Reporter, retryLimit int) (*Monitor, *Supervisor, *logCapture) {
	t.Helper()
	log, capture := newTestLogger()

	sup, err := NewSupervisor(d, time.Second, log)
	require.NoError(t, err)

	f, err := NewFetcher(FetcherConfig{RetryLimit: retryLimit},
		NewBackoffPolicy(roomyBackoff, fixedJitter(0.5)), log,
		WithSleeper(func(time.Duration) {}))
	require.NoError(t, err)

	return NewMonitor(time.Millisecond, sup, f, r, log), sup, capture
}

func TestMonitor_AlreadyStopped(t *testing.T) {
	d := &mockDialer{}
	r := &mockReporter{}
	m, _, capture := newTestMonitor(t, d, r, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx))
	assert.Equal(t, domain.MonitorStopped, m.State())
	assert.Equal(t, 1, capture.count(t, "INFO", "fee monitoring stopped"))
	d.AssertNotCalled(t, "Dial", mock.Anything)
}

func TestMonitor_ReportsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &mockQuerier{}
	q.On("QueryFeeState", mock.Anything).Return(fullState(), nil)

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q, nil).Once()

	reports := 0
	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.AnythingOfType("*domain.FeeSample")).Return(nil).Run(func(mock.Arguments) {
		reports++
		if reports == 3 {
			cancel()
		}
	})

	m, _, capture := newTestMonitor(t, d, r, 3)
	require.NoError(t, m.Run(ctx))

	assert.Equal(t, 3, reports)
	require.NotNil(t, m.LastSample())
	assert.Equal(t, 50.0, m.LastSample().GasPriceGwei)
	assert.Equal(t, 1, capture.count(t, "INFO", "starting gas price monitoring"))
	assert.Equal(t, 1, capture.count(t, "INFO", "fee monitoring stopped"))
	d.AssertExpectations(t)
}

func TestMonitor_ReconnectsBeforeFetchAfterConnectivityFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := &eventLog{}

	q1 := &mockQuerier{}
	q1.On("QueryFeeState", mock.Anything).Return(nil, transportErr()).Run(func(mock.Arguments) { events.add("query1") })
	q1.On("Close").Run(func(mock.Arguments) { events.add("close1") })

	q2 := &mockQuerier{}
	q2.On("QueryFeeState", mock.Anything).Return(fullState(), nil).Run(func(mock.Arguments) { events.add("query2") })

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q1, nil).Once().Run(func(mock.Arguments) { events.add("dial") })
	d.On("Dial", mock.Anything).Return(q2, nil).Once().Run(func(mock.Arguments) { events.add("dial") })

	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) { cancel() })

	m, sup, capture := newTestMonitor(t, d, r, 2)
	require.NoError(t, m.Run(ctx))

	assert.Equal(t, []string{"dial", "query1", "query1", "close1", "dial", "query2"}, events.list())
	assert.Equal(t, int64(1), sup.Reconnects())
	assert.Equal(t, 1, capture.count(t, "WARN", "failed to fetch fee data in this cycle"))
}

func TestMonitor_ConnectFailureRetriedNextCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &mockQuerier{}
	q.On("QueryFeeState", mock.Anything).Return(fullState(), nil)

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(nil, errors.New("no route to host")).Twice()
	d.On("Dial", mock.Anything).Return(q, nil).Once()

	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) { cancel() })

	m, _, capture := newTestMonitor(t, d, r, 1)
	require.NoError(t, m.Run(ctx))

	d.AssertNumberOfCalls(t, "Dial", 3)
	q.AssertNumberOfCalls(t, "QueryFeeState", 1)
	assert.Equal(t, 2, capture.count(t, "CRITICAL", "failed to connect to fee data provider"))
}

func TestMonitor_ReportErrorDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := &mockQuerier{}
	q.On("QueryFeeState", mock.Anything).Return(fullState(), nil)

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q, nil)

	calls := 0
	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.Anything).Return(errors.New("disk full")).Run(func(mock.Arguments) {
		calls++
		if calls == 2 {
			cancel()
		}
	})

	m, _, capture := newTestMonitor(t, d, r, 1)
	require.NoError(t, m.Run(ctx))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, capture.count(t, "ERROR", "failed to report fee sample"))
}

func TestMonitor_StopDuringSleepIsPrompt(t *testing.T) {
	q := &mockQuerier{}
	q.On("QueryFeeState", mock.Anything).Return(fullState(), nil)

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q, nil)

	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.Anything).Return(nil)

	log, capture := newTestLogger()
	sup, err := NewSupervisor(d, time.Second, log)
	require.NoError(t, err)
	f, err := NewFetcher(FetcherConfig{RetryLimit: 1}, NewBackoffPolicy(roomyBackoff), log)
	require.NoError(t, err)
	m := NewMonitor(time.Hour, sup, f, r, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.State() == domain.MonitorSleeping }, time.Second, time.Millisecond)
	cancel()
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop while sleeping")
	}
	assert.Equal(t, 1, capture.count(t, "INFO", "fee monitoring stopped"))
}

// signalRelay stands in for signal.Notify and keeps the registered channel.
type signalRelay struct {
	mu sync.Mutex
	ch chan<- os.Signal
}

func (s *signalRelay) notify(c chan<- os.Signal, _ ...os.Signal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = c
}

func (s *signalRelay) stop(chan<- os.Signal) {}

func (s *signalRelay) send(sig os.Signal) {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	ch <- sig
}

func TestMonitor_InterruptThenTerminateStopsOnce(t *testing.T) {
	q := &mockQuerier{}
	q.On("QueryFeeState", mock.Anything).Return(fullState(), nil)
	q.On("Close").Maybe()

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q, nil)

	r := &mockReporter{}
	r.On("Report", mock.Anything, mock.Anything).Return(nil)

	log, capture := newTestLogger()
	sup, err := NewSupervisor(d, time.Second, log)
	require.NoError(t, err)
	f, err := NewFetcher(FetcherConfig{RetryLimit: 1}, NewBackoffPolicy(roomyBackoff), log)
	require.NoError(t, err)
	m := NewMonitor(time.Hour, sup, f, r, log)

	relay := &signalRelay{}
	coordinator := shutdown.New(log, shutdown.WithNotify(relay.notify, relay.stop))
	ctx, cancel := coordinator.Context(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return m.State() == domain.MonitorSleeping }, time.Second, time.Millisecond)
	relay.send(os.Interrupt)
	relay.send(syscall.SIGTERM)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after signals")
	}

	assert.Equal(t, os.Interrupt, <-coordinator.Signal())
	assert.Equal(t, domain.MonitorStopped, m.State())
	assert.Eventually(t, func() bool {
		return capture.count(t, "DEBUG", "shutdown already in progress") == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, capture.count(t, "", "shutdown requested"))
	assert.Equal(t, 1, capture.count(t, "", "fee monitoring stopped"))
}
