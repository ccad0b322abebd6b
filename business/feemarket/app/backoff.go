package app

import (
	"math/rand/v2"
	"time"
)

const (
	jitterMin  = 0.8
	jitterSpan = 0.4
)

// BackoffConfig bounds the delays between fetch attempts.
type BackoffConfig struct {
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	MaxTotalBackoff time.Duration // budget for all sleeps within one fetch
}

// BackoffPolicy computes capped exponential delays with multiplicative jitter.
type BackoffPolicy struct {
	cfg    BackoffConfig
	jitter func() float64
}

// BackoffOption configures a BackoffPolicy.
type BackoffOption func(*BackoffPolicy)

// WithJitterSource replaces the random source. fn must return values in [0, 1).
func WithJitterSource(fn func() float64) BackoffOption {
	return func(p *BackoffPolicy) {
		p.jitter = fn
	}
}

// NewBackoffPolicy creates a BackoffPolicy.
func NewBackoffPolicy(cfg BackoffConfig, opts ...BackoffOption) *BackoffPolicy {
	p := &BackoffPolicy{
		cfg:    cfg,
		jitter: rand.Float64,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NextDelay returns how long to wait after the given zero-based attempt,
// given the time already spent sleeping. Zero means the budget is spent and
// the caller must stop retrying.
func (p *BackoffPolicy) NextDelay(attempt int, totalWait time.Duration) time.Duration {
	remaining := p.cfg.MaxTotalBackoff - totalWait
	if remaining <= 0 {
		return 0
	}

	delay := time.Duration(float64(p.exponential(attempt)) * (jitterMin + jitterSpan*p.jitter()))
	// zero is reserved for a spent budget
	delay = max(delay, 1)
	if delay > remaining {
		delay = remaining
	}
	return delay
}

// exponential returns min(BaseDelay * 2^attempt, MaxDelay) without overflowing.
func (p *BackoffPolicy) exponential(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 63 || p.cfg.BaseDelay > p.cfg.MaxDelay>>attempt {
		return p.cfg.MaxDelay
	}
	return p.cfg.BaseDelay << attempt
}
