// Package shutdown turns process termination signals into context cancellation.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fd1az/gas-monitor/internal/logger"
)

// NotifyFunc registers c to receive the given signals. signal.Notify by default.
type NotifyFunc func(c chan<- os.Signal, sig ...os.Signal)

// Coordinator cancels a context exactly once on the first termination signal.
type Coordinator struct {
	logger  logger.LoggerInterface
	signals []os.Signal
	notify  NotifyFunc
	stop    func(c chan<- os.Signal)

	ch       chan os.Signal
	once     sync.Once
	stopOnce sync.Once
	done     chan struct{}
	received chan os.Signal
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotify replaces signal.Notify and signal.Stop.
func WithNotify(notify NotifyFunc, stop func(c chan<- os.Signal)) Option {
	return func(c *Coordinator) {
		c.notify = notify
		c.stop = stop
	}
}

// WithSignals overrides the default SIGINT and SIGTERM.
func WithSignals(sig ...os.Signal) Option {
	return func(c *Coordinator) {
		c.signals = sig
	}
}

// New creates a Coordinator.
func New(log logger.LoggerInterface, opts ...Option) *Coordinator {
	c := &Coordinator{
		logger:   log,
		signals:  []os.Signal{os.Interrupt, syscall.SIGTERM},
		notify:   signal.Notify,
		stop:     signal.Stop,
		ch:       make(chan os.Signal, 2),
		done:     make(chan struct{}),
		received: make(chan os.Signal, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Context returns a child of parent that is cancelled on the first signal.
// It must be called once. The returned cancel func releases the signal handlers.
func (c *Coordinator) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	c.notify(c.ch, c.signals...)
	go c.watch(ctx, cancel)

	return ctx, func() {
		cancel()
		c.Stop()
	}
}

func (c *Coordinator) watch(ctx context.Context, cancel context.CancelFunc) {
	for {
		select {
		case <-c.done:
			return
		case sig := <-c.ch:
			first := false
			c.once.Do(func() {
				first = true
				c.logger.Info(ctx, "shutdown requested", "signal", sig.String())
				c.received <- sig
				cancel()
			})
			if !first {
				c.logger.Debug(ctx, "shutdown already in progress", "signal", sig.String())
			}
		}
	}
}

// Signal returns a channel that yields the signal that triggered shutdown.
func (c *Coordinator) Signal() <-chan os.Signal {
	return c.received
}

// Stop deregisters the signal handlers. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.stop(c.ch)
		close(c.done)
	})
}
