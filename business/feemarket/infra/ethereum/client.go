// Package ethereum provides the JSON-RPC fee-data adapter backed by go-ethereum.
package ethereum

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/gas-monitor/business/feemarket/app"
	"github.com/fd1az/gas-monitor/business/feemarket/domain"
	"github.com/fd1az/gas-monitor/internal/apperror"
	"github.com/fd1az/gas-monitor/internal/circuitbreaker"
	"github.com/fd1az/gas-monitor/internal/logger"
	"github.com/fd1az/gas-monitor/internal/ratelimit"
)

const tracerName = "github.com/fd1az/gas-monitor/business/feemarket/infra/ethereum"

var pendingBlock = big.NewInt(int64(rpc.PendingBlockNumber))

// Config holds adapter settings.
type Config struct {
	URL               string
	RequestTimeout    time.Duration // per RPC call
	RequestsPerMinute int           // 0 = unlimited
	BreakerFailures   uint32        // consecutive transport failures before the breaker opens
}

// Dialer connects to an HTTP JSON-RPC endpoint. The rate limiter and circuit
// breaker it owns are shared by every connection it creates.
type Dialer struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cb         *circuitbreaker.CircuitBreaker[*domain.FeeState]
	logger     logger.LoggerInterface
	tracer     trace.Tracer
}

// NewDialer creates a Dialer. httpClient may be nil to use http.DefaultClient.
func NewDialer(cfg Config, httpClient *http.Client, log logger.LoggerInterface) *Dialer {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	d := &Dialer{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    ratelimit.New(cfg.RequestsPerMinute),
		logger:     log,
		tracer:     otel.Tracer(tracerName),
	}

	cbCfg := circuitbreaker.DefaultConfig("fee-rpc")
	if cfg.BreakerFailures > 0 {
		cbCfg.ConsecutiveFailures = cfg.BreakerFailures
	}
	cbCfg.IsSuccessful = func(err error) bool {
		return err == nil || !apperror.IsTransport(err)
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state change",
			"breaker", name, "from", from.String(), "to", to.String())
	}
	d.cb = circuitbreaker.New[*domain.FeeState](cbCfg)

	return d
}

// Dial opens a client and checks liveness with eth_chainId.
func (d *Dialer) Dial(ctx context.Context) (app.FeeStateQuerier, error) {
	ctx, span := d.tracer.Start(ctx, "eth.dial")
	defer span.End()

	rc, err := rpc.DialOptions(ctx, d.cfg.URL, rpc.WithHTTPClient(d.httpClient))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dial failed")
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("dial"))
	}
	client := ethclient.NewClient(rc)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(callCtx)
	if err != nil {
		client.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "liveness check failed")
		return nil, apperror.New(apperror.CodeEthereumConnectionFailed,
			apperror.WithCause(err),
			apperror.WithContext("eth_chainId liveness check"))
	}

	span.SetAttributes(attribute.String("chain_id", chainID.String()))
	span.SetStatus(codes.Ok, "connected")
	d.logger.Info(ctx, "fee data provider is live", "chain_id", chainID.String())

	return &FeeClient{
		client:  client,
		chainID: chainID,
		timeout: d.cfg.RequestTimeout,
		limiter: d.limiter,
		cb:      d.cb,
		logger:  d.logger,
		tracer:  d.tracer,
	}, nil
}

// FeeClient is one live connection to the provider.
type FeeClient struct {
	client  *ethclient.Client
	chainID *big.Int
	timeout time.Duration
	limiter *ratelimit.Limiter
	cb      *circuitbreaker.CircuitBreaker[*domain.FeeState]
	logger  logger.LoggerInterface
	tracer  trace.Tracer
}

// ChainID returns the chain ID reported at dial time.
func (c *FeeClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// QueryFeeState fetches the gas price and the pending block header. A header
// that cannot be read for non-transport reasons yields a gas-price-only state.
func (c *FeeClient) QueryFeeState(ctx context.Context) (*domain.FeeState, error) {
	ctx, span := c.tracer.Start(ctx, "eth.query_fee_state")
	defer span.End()

	state, err := c.cb.Execute(func() (*domain.FeeState, error) {
		return c.query(ctx)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return nil, err
	}

	span.SetAttributes(attribute.String("gas_price_wei", state.GasPrice.String()))
	span.SetStatus(codes.Ok, "fetched")
	return state, nil
}

func (c *FeeClient) query(ctx context.Context) (*domain.FeeState, error) {
	gasPrice, err := call(ctx, c, "eth_gasPrice", c.client.SuggestGasPrice)
	if err != nil {
		return nil, err
	}

	state := &domain.FeeState{GasPrice: gasPrice}

	header, err := call(ctx, c, "eth_getBlockByNumber", func(ctx context.Context) (*types.Header, error) {
		return c.client.HeaderByNumber(ctx, pendingBlock)
	})
	if err != nil {
		if apperror.IsTransport(err) {
			return nil, err
		}
		c.logger.Debug(ctx, "pending block unavailable", apperror.LogFields(err)...)
		return state, nil
	}

	if header.BaseFee != nil {
		state.BaseFee = new(big.Int).Set(header.BaseFee)
	}
	if header.Number != nil && header.Number.IsUint64() {
		block := header.Number.Uint64()
		state.BlockNumber = &block
	}

	return state, nil
}

// call runs one rate-limited RPC with its own timeout.
func call[T any](ctx context.Context, c *FeeClient, method string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(callCtx); err != nil {
		return zero, err
	}

	res, err := fn(callCtx)
	if err != nil {
		return zero, classify(method, err)
	}
	return res, nil
}

// Close closes the underlying RPC client.
func (c *FeeClient) Close() {
	c.client.Close()
}
