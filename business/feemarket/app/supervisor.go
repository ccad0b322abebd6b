package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apm"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

// Supervisor owns at most one live provider connection and re-establishes it
// on demand after an invalidation.
type Supervisor struct {
	dialer      Dialer
	dialTimeout time.Duration
	logger      logger.LoggerInterface

	mu          sync.Mutex
	conn        FeeStateQuerier
	established bool

	// read by health checks from other goroutines
	state      atomic.Value // domain.ConnectionState
	reconnects atomic.Int64

	tracer  apm.Tracer
	metrics *supervisorMetrics
}

// NewSupervisor creates a Supervisor. No connection is made until EnsureConnected.
func NewSupervisor(dialer Dialer, dialTimeout time.Duration, log logger.LoggerInterface) (*Supervisor, error) {
	m, err := newSupervisorMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	s := &Supervisor{
		dialer:      dialer,
		dialTimeout: dialTimeout,
		logger:      log,
		tracer:      apm.NewTracer(tracerName),
		metrics:     m,
	}
	s.state.Store(domain.StateDisconnected)
	return s, nil
}

// EnsureConnected returns the live connection, dialing a new one if none
// exists. A failed dial is logged and returned without retrying.
func (s *Supervisor) EnsureConnected(ctx context.Context) (FeeStateQuerier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return s.conn, nil
	}

	ctx, span := s.tracer.Start(ctx, "rpc.connect")
	defer span.End()

	s.setState(ctx, domain.StateConnecting)

	dialCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.dialTimeout)
	defer cancel()

	conn, err := s.dialer.Dial(dialCtx)
	if err != nil {
		err = apperror.Wrap(err, apperror.CodeEthereumConnectionFailed, "dial fee data provider")
		s.setState(ctx, domain.StateDisconnected)
		span.NoticeError(err)
		s.logger.Critical(ctx, "failed to connect to fee data provider", apperror.LogFields(err)...)
		return nil, err
	}

	if s.established {
		n := s.reconnects.Add(1)
		s.metrics.reconnects.Add(ctx, 1)
		span.SetAttributes(attribute.Int64("reconnects", n))
		s.logger.Info(ctx, "reconnected to fee data provider", "reconnects", n)
	} else {
		s.logger.Info(ctx, "connected to fee data provider")
	}

	s.conn = conn
	s.established = true
	s.setState(ctx, domain.StateConnected)
	span.SetStatus(codes.Ok, "connected")

	return conn, nil
}

// Invalidate drops the current connection so the next EnsureConnected redials.
func (s *Supervisor) Invalidate(ctx context.Context, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return
	}

	s.conn.Close()
	s.conn = nil
	s.setState(ctx, domain.StateDisconnected)
	s.logger.Warn(ctx, "connection invalidated", "reason", reason)
}

// Connected reports whether a live connection is held.
func (s *Supervisor) Connected() bool {
	return s.State() == domain.StateConnected
}

// State returns the connection state.
func (s *Supervisor) State() domain.ConnectionState {
	return s.state.Load().(domain.ConnectionState)
}

// Reconnects returns how many times the connection was re-established.
func (s *Supervisor) Reconnects() int64 {
	return s.reconnects.Load()
}

// Close releases the connection, if any.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.state.Store(domain.StateDisconnected)
}

func (s *Supervisor) setState(ctx context.Context, state domain.ConnectionState) {
	s.state.Store(state)
	s.metrics.connectionState.Record(ctx, state.Gauge())
}
