package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

func ptr[T any](v T) *T { return &v }

func fullSample() *domain.FeeSample {
	return &domain.FeeSample{
		GasPriceGwei:    50,
		BaseFeeGwei:     ptr(30.0),
		PriorityFeeGwei: ptr(20.0),
		BlockNumber:     ptr(uint64(123)),
		FetchedAt:       time.Now(),
		Attempts:        1,
	}
}

func TestTextLine(t *testing.T) {
	tests := []struct {
		name   string
		sample *domain.FeeSample
		want   string
	}{
		{
			name:   "full",
			sample: fullSample(),
			want:   "Gas Price: 50.00 gwei | Base Fee: 30.00 gwei | Priority Fee: 20.00 gwei | Block: 123",
		},
		{
			name:   "gas price only",
			sample: &domain.FeeSample{GasPriceGwei: 0.123456},
			want:   "Gas Price: 0.12 gwei | Base Fee: n/a | Priority Fee: n/a | Block: n/a",
		},
		{
			name:   "rounding and negative",
			sample: &domain.FeeSample{GasPriceGwei: 1.005, BaseFeeGwei: ptr(1.5), PriorityFeeGwei: ptr(-0.495)},
			want:   "Gas Price: 1.01 gwei | Base Fee: 1.50 gwei | Priority Fee: -0.50 gwei | Block: n/a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextLine(tt.sample))
		})
	}
}

func TestJSONLine(t *testing.T) {
	line, err := JSONLine(fullSample())
	require.NoError(t, err)
	assert.JSONEq(t, `{"gas_price_gwei":50,"base_fee_gwei":30,"priority_fee_gwei":20,"block_number":123}`, string(line))
	assert.Equal(t, byte('\n'), line[len(line)-1])

	line, err = JSONLine(&domain.FeeSample{GasPriceGwei: 7.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"gas_price_gwei":7.5,"base_fee_gwei":null,"priority_fee_gwei":null,"block_number":null}`, string(line))
}

func TestReporter_JSON(t *testing.T) {
	var out, logs bytes.Buffer
	r, err := New(FormatJSON, &out, logger.New(&logs, logger.LevelDebug, "test", nil))
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), fullSample()))
	require.NoError(t, r.Report(context.Background(), fullSample()))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &m))
	assert.Equal(t, 50.0, m["gas_price_gwei"])
	assert.Zero(t, logs.Len(), "json records bypass the logger")
}

func TestReporter_Text(t *testing.T) {
	var logs bytes.Buffer
	r, err := New(FormatText, nil, logger.New(&logs, logger.LevelDebug, "test", nil))
	require.NoError(t, err)

	require.NoError(t, r.Report(context.Background(), fullSample()))

	var m map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(logs.Bytes()), &m))
	assert.Equal(t, "INFO", m["level"])
	assert.Equal(t, "Gas Price: 50.00 gwei | Base Fee: 30.00 gwei | Priority Fee: 20.00 gwei | Block: 123", m["msg"])
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestReporter_WriteFailure(t *testing.T) {
	var logs bytes.Buffer
	r, err := New(FormatJSON, failingWriter{}, logger.New(&logs, logger.LevelDebug, "test", nil))
	require.NoError(t, err)

	err = r.Report(context.Background(), fullSample())
	assert.Equal(t, apperror.CodeReportFailed, apperror.GetCode(err))
}

func TestNew_Validation(t *testing.T) {
	log := logger.New(&bytes.Buffer{}, logger.LevelInfo, "", nil)

	_, err := New("xml", nil, log)
	assert.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(err))

	_, err = New(FormatJSON, nil, log)
	assert.Equal(t, apperror.CodeInvalidInput, apperror.GetCode(err))
}
