package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput: "Invalid input provided",

	CodeConfigurationError: "Configuration error",

	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",

	CodeRPCTransport:     "RPC transport failure",
	CodeEthereumRPCError: "Ethereum RPC call failed",
	CodeRateLimited:      "Outbound RPC rate limit reached",

	CodeFeeDataMalformed: "Fee data missing or malformed",
	CodeFetchExhausted:   "Fee fetch retries exhausted",

	CodeReportFailed: "Failed to emit fee sample",

	CodeCircuitOpen: "Circuit breaker is open",
}
