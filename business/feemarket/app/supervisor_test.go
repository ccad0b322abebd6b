package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
)

func newTestSupervisor(t *testing.T, d Dialer) (*Supervisor, *logCapture) {
	t.Helper()
	log, capture := newTestLogger()
	s, err := NewSupervisor(d, time.Second, log)
	require.NoError(t, err)
	return s, capture
}

func TestSupervisor_DialsOnceAndReuses(t *testing.T) {
	q := &mockQuerier{}
	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q, nil).Once()

	s, _ := newTestSupervisor(t, d)
	assert.Equal(t, domain.StateDisconnected, s.State())

	c1, err := s.EnsureConnected(context.Background())
	require.NoError(t, err)
	c2, err := s.EnsureConnected(context.Background())
	require.NoError(t, err)

	assert.Same(t, q, c1)
	assert.Same(t, q, c2)
	assert.Equal(t, domain.StateConnected, s.State())
	assert.True(t, s.Connected())
	assert.Zero(t, s.Reconnects())
	d.AssertExpectations(t)
}

func TestSupervisor_DialHasDeadlineAndIgnoresCancel(t *testing.T) {
	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(&mockQuerier{}, nil).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		assert.NoError(t, ctx.Err())
	})

	s, _ := newTestSupervisor(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.EnsureConnected(ctx)
	require.NoError(t, err)
}

func TestSupervisor_DialFailureIsCriticalAndNotRetried(t *testing.T) {
	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(nil, errors.New("dial tcp: connection refused")).Once()

	s, capture := newTestSupervisor(t, d)

	conn, err := s.EnsureConnected(context.Background())
	assert.Nil(t, conn)
	assert.Equal(t, apperror.CodeEthereumConnectionFailed, apperror.GetCode(err))
	assert.Equal(t, domain.StateDisconnected, s.State())
	assert.Equal(t, 1, capture.count(t, "CRITICAL", "failed to connect to fee data provider"))
	d.AssertNumberOfCalls(t, "Dial", 1)
}

func TestSupervisor_InvalidateForcesRedial(t *testing.T) {
	q1, q2 := &mockQuerier{}, &mockQuerier{}
	q1.On("Close").Once()
	q2.On("Close").Once()

	d := &mockDialer{}
	d.On("Dial", mock.Anything).Return(q1, nil).Once()
	d.On("Dial", mock.Anything).Return(q2, nil).Once()

	s, capture := newTestSupervisor(t, d)
	ctx := context.Background()

	_, err := s.EnsureConnected(ctx)
	require.NoError(t, err)

	s.Invalidate(ctx, "test")
	assert.Equal(t, domain.StateDisconnected, s.State())
	s.Invalidate(ctx, "again") // no-op without a connection

	c, err := s.EnsureConnected(ctx)
	require.NoError(t, err)
	assert.Same(t, q2, c)
	assert.Equal(t, int64(1), s.Reconnects())
	assert.Equal(t, 1, capture.count(t, "WARN", "connection invalidated"))

	s.Close()
	assert.Equal(t, domain.StateDisconnected, s.State())

	q1.AssertExpectations(t)
	q2.AssertExpectations(t)
	d.AssertExpectations(t)
}
