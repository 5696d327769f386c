package lofter

import "errors"

// Client errors.
//
// Design decision: We define specific error types rather than wrapping all
// errors generically. This allows callers to handle different failure modes
// appropriately (e.g., retry an API error code, but fail fast on a bad
// proxy address).
var (
	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrRequestFailed is returned when a request still fails after all
	// transport-level retry attempts.
	ErrRequestFailed = errors.New("request failed after retries")

	// ErrAPIError is returned when the response decoded cleanly but its
	// envelope carries a non-zero status code.
	ErrAPIError = errors.New("api returned an error code")

	// ErrMissingData is returned when a successful envelope has no data
	// payload where one is required.
	ErrMissingData = errors.New("response envelope has no data payload")
)
