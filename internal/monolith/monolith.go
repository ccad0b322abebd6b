// Package monolith provides the application container and module interface.
package monolith

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"go.opentelemetry.io/otel/metric"

	"github.com/fd1az/gas-monitor/internal/config"
	"github.com/fd1az/gas-monitor/internal/health"
	"github.com/fd1az/gas-monitor/internal/httpclient"
	"github.com/fd1az/gas-monitor/internal/logger"
)

const userAgent = "gas-monitor"

// Monolith is the main application container providing access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	HTTPClient() *http.Client
	// Health returns nil when the health server is disabled.
	Health() *health.Server
	Output() io.Writer
}

// Module represents a bounded context module that wires itself from the container.
type Module interface {
	Startup(context.Context, Monolith) error
}

// Runner is a module with a foreground loop that returns when ctx is cancelled.
type Runner interface {
	Run(context.Context) error
}

// Closer is a module holding resources released on shutdown.
type Closer interface {
	Close()
}

// Option configures the container.
type Option func(*app)

// WithHealth attaches a health server that modules register checks on.
func WithHealth(s *health.Server) Option {
	return func(a *app) {
		a.health = s
	}
}

// WithOutput sets the destination for machine-readable records. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *app) {
		a.output = w
	}
}

// WithMeterProvider sets the provider used by the shared HTTP client.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(a *app) {
		a.meterProvider = mp
	}
}

// app implements the Monolith interface.
type app struct {
	config        *config.Config
	logger        logger.LoggerInterface
	httpClient    *http.Client
	health        *health.Server
	output        io.Writer
	meterProvider metric.MeterProvider

	mu      sync.Mutex
	started []Module
}

// New creates a new Monolith instance.
func New(cfg *config.Config, log logger.LoggerInterface, opts ...Option) (*app, error) {
	a := &app{
		config: cfg,
		logger: log,
		output: os.Stdout,
	}
	for _, opt := range opts {
		opt(a)
	}

	clientOpts := []httpclient.ClientOption{
		httpclient.WithProviderName("rpc"),
		httpclient.WithRequestTimeout(cfg.RPC.RequestTimeout),
		httpclient.WithHeaders(map[string]string{"User-Agent": userAgent}),
		httpclient.WithHeaders(cfg.RPC.Headers),
	}
	if a.meterProvider != nil {
		clientOpts = append(clientOpts, httpclient.WithMeterProvider(a.meterProvider))
	}

	client, err := httpclient.New(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	a.httpClient = client

	return a, nil
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) HTTPClient() *http.Client {
	return a.httpClient
}

func (a *app) Health() *health.Server {
	return a.health
}

func (a *app) Output() io.Writer {
	return a.output
}

// StartModules starts all provided modules in order. The first failure stops
// the sequence; modules already started are still closed by Close.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
		a.mu.Lock()
		a.started = append(a.started, m)
		a.mu.Unlock()
	}
	return nil
}

// RunModules runs every started Runner concurrently and waits for all of them.
func (a *app) RunModules(ctx context.Context) error {
	a.mu.Lock()
	modules := append([]Module(nil), a.started...)
	a.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, m := range modules {
		r, ok := m.(Runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	return errors.Join(errs...)
}

// Close closes started modules in reverse order and idle HTTP connections.
func (a *app) Close() error {
	a.mu.Lock()
	modules := a.started
	a.started = nil
	a.mu.Unlock()

	for i := len(modules) - 1; i >= 0; i-- {
		if c, ok := modules[i].(Closer); ok {
			c.Close()
		}
	}
	a.httpClient.CloseIdleConnections()
	return nil
}
