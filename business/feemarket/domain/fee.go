// Package domain contains the core domain types for the fee market context.
package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// gweiExp is the decimal exponent converting wei to gwei.
const gweiExp = -9

// FeeState is the raw fee-market state reported by a node, in wei.
type FeeState struct {
	GasPrice    *big.Int
	BaseFee     *big.Int // nil when the pending block carries no base fee
	BlockNumber *uint64
}

// FeeSample is one successful observation of the fee market, in gwei.
// Optional fields are nil when the node did not report them.
type FeeSample struct {
	GasPriceGwei    float64
	BaseFeeGwei     *float64
	PriorityFeeGwei *float64
	BlockNumber     *uint64
	FetchedAt       time.Time
	Attempts        int
}

// WeiToGwei converts a wei amount to gwei.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, gweiExp).Float64()
	return f
}

// GweiToWei converts a gwei amount to wei, truncating sub-wei precision.
func GweiToWei(gwei float64) *big.Int {
	return decimal.NewFromFloat(gwei).Shift(-gweiExp).BigInt()
}

// PriorityFee derives gas price minus base fee. It returns nil when the base
// fee is absent or zero. The result may be negative if the node reports a
// gas price below the base fee.
func PriorityFee(gasPrice, baseFee *big.Int) *big.Int {
	if gasPrice == nil || baseFee == nil || baseFee.Sign() == 0 {
		return nil
	}
	return new(big.Int).Sub(gasPrice, baseFee)
}

// NewFeeSample converts a FeeState into a FeeSample.
func NewFeeSample(state *FeeState, fetchedAt time.Time, attempts int) *FeeSample {
	s := &FeeSample{
		GasPriceGwei: WeiToGwei(state.GasPrice),
		FetchedAt:    fetchedAt,
		Attempts:     attempts,
	}

	if state.BaseFee != nil {
		base := WeiToGwei(state.BaseFee)
		s.BaseFeeGwei = &base
	}

	if prio := PriorityFee(state.GasPrice, state.BaseFee); prio != nil {
		p := WeiToGwei(prio)
		s.PriorityFeeGwei = &p
	}

	if state.BlockNumber != nil {
		n := *state.BlockNumber
		s.BlockNumber = &n
	}

	return s
}

// HasNegativePriorityFee reports whether the derived priority fee is below zero.
func (s *FeeSample) HasNegativePriorityFee() bool {
	return s.PriorityFeeGwei != nil && *s.PriorityFeeGwei < 0
}

// LogArgs renders the sample as slog key/value pairs; absent fields are omitted.
func (s *FeeSample) LogArgs() []any {
	args := []any{"gas_price_gwei", s.GasPriceGwei}
	if s.BaseFeeGwei != nil {
		args = append(args, "base_fee_gwei", *s.BaseFeeGwei)
	}
	if s.PriorityFeeGwei != nil {
		args = append(args, "priority_fee_gwei", *s.PriorityFeeGwei)
	}
	if s.BlockNumber != nil {
		args = append(args, "block_number", *s.BlockNumber)
	}
	return args
}
