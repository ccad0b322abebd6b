// Package httpclient builds http.Clients instrumented with OTEL tracing and metrics.
package httpclient

import (
	"maps"
	"time"

	"go.opentelemetry.io/otel/metric"
)

type options struct {
	meterProvider  metric.MeterProvider
	providerName   string
	requestTimeout time.Duration
	headers        map[string]string
}

// ClientOption configures New.
type ClientOption func(*options)

func newOptions(opts ...ClientOption) *options {
	o := &options{
		providerName:   "default",
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithMeterProvider counts requests on mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithProviderName labels request metrics. Empty keeps "default".
func WithProviderName(name string) ClientOption {
	return func(o *options) {
		if name != "" {
			o.providerName = name
		}
	}
}

// WithRequestTimeout bounds each request, including reading the body.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(o *options) {
		o.requestTimeout = timeout
	}
}

// WithHeaders adds headers to every request that does not already carry them.
// Repeated calls merge, later values winning.
func WithHeaders(headers map[string]string) ClientOption {
	return func(o *options) {
		if o.headers == nil {
			o.headers = make(map[string]string, len(headers))
		}
		maps.Copy(o.headers, headers)
	}
}
