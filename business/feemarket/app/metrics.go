package app

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const (
	tracerName = "github.com/fd1az/gas-monitor/business/feemarket/app"
	meterName  = "github.com/fd1az/gas-monitor/business/feemarket/app"
)

// fetchMetrics holds OTEL metric instruments for the fetcher.
type fetchMetrics struct {
	attempts        metric.Int64Counter
	failures        metric.Int64Counter
	exhausted       metric.Int64Counter
	backoff         metric.Float64Histogram
	gasPriceGwei    metric.Float64Gauge
	baseFeeGwei     metric.Float64Gauge
	priorityFeeGwei metric.Float64Gauge
}

func newFetchMetrics() (*fetchMetrics, error) {
	meter := otel.Meter(meterName)
	m := &fetchMetrics{}
	var err error

	m.attempts, err = meter.Int64Counter(
		"fee_fetch_attempts_total",
		metric.WithDescription("Total fee data requests"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.failures, err = meter.Int64Counter(
		"fee_fetch_failures_total",
		metric.WithDescription("Failed fee data requests by error class"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	m.exhausted, err = meter.Int64Counter(
		"fee_fetch_exhausted_total",
		metric.WithDescription("Fetches that gave up without a sample"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	m.backoff, err = meter.Float64Histogram(
		"fee_backoff_seconds",
		metric.WithDescription("Backoff delays between fee data requests"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.gasPriceGwei, err = meter.Float64Gauge(
		"gas_price_gwei",
		metric.WithDescription("Current gas price in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return nil, err
	}

	m.baseFeeGwei, err = meter.Float64Gauge(
		"base_fee_gwei",
		metric.WithDescription("Pending block base fee in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return nil, err
	}

	m.priorityFeeGwei, err = meter.Float64Gauge(
		"priority_fee_gwei",
		metric.WithDescription("Derived priority fee in gwei"),
		metric.WithUnit("gwei"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// supervisorMetrics holds OTEL metric instruments for the connection supervisor.
type supervisorMetrics struct {
	reconnects      metric.Int64Counter
	connectionState metric.Int64Gauge
}

func newSupervisorMetrics() (*supervisorMetrics, error) {
	meter := otel.Meter(meterName)
	m := &supervisorMetrics{}
	var err error

	m.reconnects, err = meter.Int64Counter(
		"rpc_reconnects_total",
		metric.WithDescription("Connections re-established after an invalidation"),
		metric.WithUnit("{reconnect}"),
	)
	if err != nil {
		return nil, err
	}

	m.connectionState, err = meter.Int64Gauge(
		"rpc_connection_state",
		metric.WithDescription("RPC connection state (0=disconnected, 1=connecting, 2=connected)"),
		metric.WithUnit("{state}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
