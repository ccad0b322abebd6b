package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput Code = "INVALID_INPUT"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// System errors
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"
)

// Fee monitor error codes
const (
	// Connection lifecycle
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"

	// RPC calls
	CodeRPCTransport     Code = "RPC_TRANSPORT"
	CodeEthereumRPCError Code = "ETHEREUM_RPC_ERROR"
	CodeRateLimited      Code = "RATE_LIMITED"

	// Fee data
	CodeFeeDataMalformed Code = "FEE_DATA_MALFORMED"
	CodeFetchExhausted   Code = "FETCH_EXHAUSTED"

	// Output
	CodeReportFailed Code = "REPORT_FAILED"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
