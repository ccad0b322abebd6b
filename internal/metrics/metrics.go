// Package metrics configures the OTEL meter provider with Prometheus and
// OTLP readers and serves the Prometheus scrape endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"

	"github.com/fd1az/gas-monitor/internal/logger"
)

// Config selects metric readers.
type Config struct {
	ServiceName  string
	Prometheus   bool
	OTLPEndpoint string // empty disables the OTLP push reader
	OTLPHeaders  map[string]string
	Insecure     bool
}

// Provider owns the meter provider and the Prometheus registry it feeds.
type Provider struct {
	mp       *sdkmetric.MeterProvider
	registry *prom.Registry
}

// NewProvider builds the readers in cfg and installs the provider globally.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{}
	var opts []sdkmetric.Option

	if cfg.Prometheus {
		p.registry = prom.NewRegistry()
		exp, err := prometheus.New(prometheus.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("prometheus exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(exp))
	}

	if cfg.OTLPEndpoint != "" {
		grpcOpts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpointURL(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithHeaders(cfg.OTLPHeaders),
		}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exp, err := otlpmetricgrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	}

	opts = append(opts, sdkmetric.WithResource(
		resource.NewSchemaless(semconv.ServiceNameKey.String(cfg.ServiceName)),
	))

	p.mp = sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(p.mp)

	return p, nil
}

// MeterProvider returns the underlying provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.mp
}

// Handler serves the Prometheus registry, or 404 when Prometheus is disabled.
func (p *Provider) Handler() http.Handler {
	if p.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops all readers.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.mp.Shutdown(ctx)
}

// Server exposes /metrics.
type Server struct {
	server *http.Server
	logger logger.LoggerInterface
}

// ServePrometheus binds port and serves h at /metrics in the background.
func ServePrometheus(ctx context.Context, port int, h http.Handler, log logger.LoggerInterface) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	s := &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: log,
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "metrics server stopped", "error", err)
		}
	}()

	log.Info(ctx, "serving metrics", "addr", ln.Addr().String(), "path", "/metrics")
	return s, nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
