package app

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apm"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/logger"
)

// RetryState tracks progress within a single Fetch call.
type RetryState struct {
	Attempt   int
	TotalWait time.Duration
}

// FetchError reports a fetch that produced no sample.
type FetchError struct {
	Attempts        int
	BudgetExhausted bool // stopped early because the backoff budget ran out
	Last            error

	// Connectivity is set when any attempt of the exhausted fetch failed at the
	// transport level; the monitor then drops the connection.
	Connectivity bool
}

func (e *FetchError) Error() string {
	reason := "retry limit reached"
	if e.BudgetExhausted {
		reason = "backoff budget exhausted"
	}
	return fmt.Sprintf("%s: %s after %d attempts: %v", apperror.CodeFetchExhausted, reason, e.Attempts, e.Last)
}

func (e *FetchError) Unwrap() error {
	return e.Last
}

// FetcherConfig holds the retry bounds for one fetch.
type FetcherConfig struct {
	RetryLimit      int
	MaxGasPriceGwei float64 // warn above this price, 0 disables
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithSleeper replaces time.Sleep for backoff waits.
func WithSleeper(fn func(time.Duration)) FetcherOption {
	return func(f *Fetcher) {
		f.sleep = fn
	}
}

// WithClock replaces time.Now for sample timestamps.
func WithClock(fn func() time.Time) FetcherOption {
	return func(f *Fetcher) {
		f.now = fn
	}
}

// Fetcher queries a connection repeatedly until it yields a sample or the
// retry limit or backoff budget is reached.
type Fetcher struct {
	cfg     FetcherConfig
	backoff *BackoffPolicy
	logger  logger.LoggerInterface
	sleep   func(time.Duration)
	now     func() time.Time

	maxGasPriceWei *big.Int // nil disables the warning

	tracer  apm.Tracer
	metrics *fetchMetrics
}

// NewFetcher creates a Fetcher.
func NewFetcher(cfg FetcherConfig, backoff *BackoffPolicy, log logger.LoggerInterface, opts ...FetcherOption) (*Fetcher, error) {
	if cfg.RetryLimit < 1 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("retry limit must be at least 1, got %d", cfg.RetryLimit)))
	}

	m, err := newFetchMetrics()
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	f := &Fetcher{
		cfg:     cfg,
		backoff: backoff,
		logger:  log,
		sleep:   time.Sleep,
		now:     time.Now,
		tracer:  apm.NewTracer(tracerName),
		metrics: m,
	}
	if cfg.MaxGasPriceGwei > 0 {
		f.maxGasPriceWei = domain.GweiToWei(cfg.MaxGasPriceGwei)
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Fetch returns the first successful sample from conn. Failed attempts are
// logged and retried; the returned error is always a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, conn FeeStateQuerier) (*domain.FeeSample, error) {
	ctx, span := f.tracer.Start(ctx, "fee.fetch", attribute.Int("retry_limit", f.cfg.RetryLimit))
	defer span.End()

	var (
		st       RetryState
		attempts int
		last     error
		fe       FetchError
	)

	for st.Attempt = 0; st.Attempt < f.cfg.RetryLimit; st.Attempt++ {
		attempts++
		f.metrics.attempts.Add(ctx, 1)

		state, err := f.query(ctx, conn)
		if err == nil {
			sample := domain.NewFeeSample(state, f.now(), attempts)
			f.inspect(ctx, state, sample)
			f.record(ctx, sample)

			span.SetAttributes(
				attribute.Int("attempts", attempts),
				attribute.Float64("gas_price_gwei", sample.GasPriceGwei),
			)
			span.SetStatus(codes.Ok, "fetched")
			f.logger.Debug(ctx, "fee data fetched", append(sample.LogArgs(), "attempts", attempts)...)
			return sample, nil
		}

		err = apperror.AtAttempt(err, attempts)
		last = err
		if apperror.IsTransport(err) {
			fe.Connectivity = true
			f.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("class", "transport")))
			f.logger.Warn(ctx, "fee data request failed",
				"attempt", attempts, "retry_limit", f.cfg.RetryLimit, "error", err)
		} else {
			f.metrics.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(apperror.GetCode(err)))))
			args := append([]any{"attempt", attempts, "retry_limit", f.cfg.RetryLimit}, apperror.LogFields(err)...)
			f.logger.Error(ctx, "unexpected error fetching fee data", args...)
		}

		if attempts == f.cfg.RetryLimit {
			break
		}

		delay := f.backoff.NextDelay(st.Attempt, st.TotalWait)
		if delay <= 0 {
			fe.BudgetExhausted = true
			break
		}

		f.metrics.backoff.Record(ctx, delay.Seconds())
		f.logger.Debug(ctx, "backing off before retry",
			"attempt", attempts, "delay", delay, "total_wait", st.TotalWait)
		f.sleep(delay)
		st.TotalWait += delay
	}

	fe.Attempts = attempts
	fe.Last = last

	f.metrics.exhausted.Add(ctx, 1)
	span.NoticeError(&fe)
	f.logger.Error(ctx, "giving up on fee data",
		"attempts", attempts,
		"total_wait", st.TotalWait,
		"budget_exhausted", fe.BudgetExhausted,
		"error", last)

	return nil, &fe
}

// inspect logs data-quality problems that still yield a usable sample.
func (f *Fetcher) inspect(ctx context.Context, state *domain.FeeState, s *domain.FeeSample) {
	if s.BaseFeeGwei == nil {
		f.logger.Warn(ctx, "pending block lacks base fee, reporting gas price only",
			"gas_price_gwei", s.GasPriceGwei)
	}
	if s.HasNegativePriorityFee() {
		f.logger.Warn(ctx, "gas price below base fee, priority fee is negative", s.LogArgs()...)
	}
	if f.maxGasPriceWei != nil && state.GasPrice.Cmp(f.maxGasPriceWei) > 0 {
		f.logger.Warn(ctx, "gas price exceeds max",
			"gas_price_gwei", s.GasPriceGwei, "max_gas_price_gwei", f.cfg.MaxGasPriceGwei)
	}
}

func (f *Fetcher) record(ctx context.Context, s *domain.FeeSample) {
	f.metrics.gasPriceGwei.Record(ctx, s.GasPriceGwei)
	if s.BaseFeeGwei != nil {
		f.metrics.baseFeeGwei.Record(ctx, *s.BaseFeeGwei)
	}
	if s.PriorityFeeGwei != nil {
		f.metrics.priorityFeeGwei.Record(ctx, *s.PriorityFeeGwei)
	}
}

// query runs one attempt. A panicking adapter yields CodeInternalError so the
// attempt is retried like any other failure.
func (f *Fetcher) query(ctx context.Context, conn FeeStateQuerier) (state *domain.FeeState, err error) {
	defer func() {
		if r := recover(); r != nil {
			state = nil
			err = apperror.New(apperror.CodeInternalError, apperror.WithContext(fmt.Sprintf("panic: %v", r)))
		}
	}()

	state, err = conn.QueryFeeState(ctx)
	if err != nil {
		return nil, err
	}
	return state, checkFeeState(state)
}

// checkFeeState rejects states without a usable gas price.
func checkFeeState(state *domain.FeeState) error {
	switch {
	case state == nil || state.GasPrice == nil:
		return apperror.New(apperror.CodeFeeDataMalformed, apperror.WithContext("gas price missing"))
	case state.GasPrice.Sign() < 0:
		return apperror.New(apperror.CodeFeeDataMalformed,
			apperror.WithContext("negative gas price "+state.GasPrice.String()))
	case state.BaseFee != nil && state.BaseFee.Sign() < 0:
		// treat as absent rather than failing the attempt
		state.BaseFee = nil
	}
	return nil
}
