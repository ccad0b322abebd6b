package ethereum

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/fd1az/gas-monitor/internal/apperror"
)

// rpcLimitExceeded is the JSON-RPC code providers use for quota exhaustion.
const rpcLimitExceeded = -32005

// classify wraps an RPC failure in an app error. Transport-class failures get
// CodeRPCTransport; everything else CodeEthereumRPCError.
func classify(method string, err error) error {
	if isTransportError(err) {
		return apperror.Transport(method, err)
	}
	return apperror.New(apperror.CodeEthereumRPCError,
		apperror.WithContext(method),
		apperror.WithCause(err))
}

// isTransportError reports whether err came from the network or from an
// overloaded provider rather than from the request itself.
func isTransportError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET):
		return true
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode() == rpcLimitExceeded
	}

	return false
}
