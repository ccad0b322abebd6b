// Package reporter renders fee samples as structured JSON lines or
// human-readable log lines.
package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

// Format selects the output rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

const absent = "n/a"

// record is the JSON shape of one sample. Absent fields encode as null.
type record struct {
	GasPriceGwei    float64  `json:"gas_price_gwei"`
	BaseFeeGwei     *float64 `json:"base_fee_gwei"`
	PriorityFeeGwei *float64 `json:"priority_fee_gwei"`
	BlockNumber     *uint64  `json:"block_number"`
}

// Reporter emits one record per sample. JSON records go to out; text records
// go through the logger at info level.
type Reporter struct {
	format Format
	out    io.Writer
	logger logger.LoggerInterface

	mu sync.Mutex
}

// New creates a Reporter.
func New(format Format, out io.Writer, log logger.LoggerInterface) (*Reporter, error) {
	switch format {
	case FormatJSON:
		if out == nil {
			return nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("json output needs a writer"))
		}
	case FormatText:
	default:
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("unknown output format %q", format)))
	}

	return &Reporter{format: format, out: out, logger: log}, nil
}

// Report emits s.
func (r *Reporter) Report(ctx context.Context, s *domain.FeeSample) error {
	if r.format == FormatText {
		r.logger.Info(ctx, TextLine(s))
		return nil
	}

	line, err := JSONLine(s)
	if err != nil {
		return apperror.New(apperror.CodeReportFailed, apperror.WithCause(err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.out.Write(line); err != nil {
		return apperror.New(apperror.CodeReportFailed, apperror.WithCause(err))
	}
	return nil
}

// JSONLine encodes s as a newline-terminated JSON object.
func JSONLine(s *domain.FeeSample) ([]byte, error) {
	b, err := json.Marshal(record{
		GasPriceGwei:    s.GasPriceGwei,
		BaseFeeGwei:     s.BaseFeeGwei,
		PriorityFeeGwei: s.PriorityFeeGwei,
		BlockNumber:     s.BlockNumber,
	})
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextLine renders s with two decimal places.
func TextLine(s *domain.FeeSample) string {
	var sb strings.Builder
	sb.WriteString("Gas Price: ")
	sb.WriteString(gweiString(&s.GasPriceGwei))
	sb.WriteString(" | Base Fee: ")
	sb.WriteString(gweiString(s.BaseFeeGwei))
	sb.WriteString(" | Priority Fee: ")
	sb.WriteString(gweiString(s.PriorityFeeGwei))
	sb.WriteString(" | Block: ")
	if s.BlockNumber != nil {
		sb.WriteString(strconv.FormatUint(*s.BlockNumber, 10))
	} else {
		sb.WriteString(absent)
	}
	return sb.String()
}

func gweiString(v *float64) string {
	if v == nil {
		return absent
	}
	return decimal.NewFromFloat(*v).StringFixed(2) + " gwei"
}
