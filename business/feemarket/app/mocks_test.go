package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

type mockQuerier struct {
	mock.Mock
}

func (m *mockQuerier) QueryFeeState(ctx context.Context) (*domain.FeeState, error) {
	args := m.Called(ctx)
	st, _ := args.Get(0).(*domain.FeeState)
	return st, args.Error(1)
}

func (m *mockQuerier) Close() {
	m.Called()
}

type mockDialer struct {
	mock.Mock
}

func (m *mockDialer) Dial(ctx context.Context) (FeeStateQuerier, error) {
	args := m.Called(ctx)
	q, _ := args.Get(0).(FeeStateQuerier)
	return q, args.Error(1)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) Report(ctx context.Context, s *domain.FeeSample) error {
	return m.Called(ctx, s).Error(0)
}

// logCapture records JSON log lines.
type logCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *logCapture) lines(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(c.buf.Bytes()))
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	return out
}

// count returns how many lines carry msg at the given level ("" matches any).
func (c *logCapture) count(t *testing.T, level, msg string) int {
	n := 0
	for _, l := range c.lines(t) {
		if l["msg"] == msg && (level == "" || l["level"] == level) {
			n++
		}
	}
	return n
}

func newTestLogger() (*logger.Logger, *logCapture) {
	c := &logCapture{}
	return logger.New(c, logger.LevelDebug, "test", nil), c
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

func fullState() *domain.FeeState {
	block := uint64(100)
	return &domain.FeeState{GasPrice: gwei(50), BaseFee: gwei(30), BlockNumber: &block}
}

func transportErr() error {
	return apperror.Transport("eth_gasPrice", errors.New("connection refused"))
}

// sleepRecorder collects backoff waits without sleeping.
type sleepRecorder struct {
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.waits = append(s.waits, d)
}
