// Package app contains the sampling services and port definitions for the fee market context.
package app

import (
	"context"

	"github.com/fd1az/gas-monitor/business/feemarket/domain"
)

// FeeStateQuerier is a live connection to a fee-data provider.
type FeeStateQuerier interface {
	// QueryFeeState retrieves the current gas price and pending block fee data.
	QueryFeeState(ctx context.Context) (*domain.FeeState, error)

	// Close releases the underlying connection.
	Close()
}

// Dialer establishes connections to the fee-data provider.
type Dialer interface {
	// Dial connects and verifies the endpoint is live.
	Dial(ctx context.Context) (FeeStateQuerier, error)
}

// Reporter emits one record per successful sample.
type Reporter interface {
	Report(ctx context.Context, sample *domain.FeeSample) error
}
