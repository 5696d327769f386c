package config

import "errors"

// Configuration validation errors.
// These are returned by Config.Validate so callers can report the exact
// problem and tests can match with errors.Is.
var (
	// ErrNoTarget is returned when no crawl targets were provided.
	ErrNoTarget = errors.New("no targets provided")

	// ErrInvalidTimeout is returned when the request timeout is zero or negative.
	ErrInvalidTimeout = errors.New("timeout must be positive")

	// ErrInvalidRetries is returned when a retry count is below one.
	// One attempt means "try once, no retry"; zero would skip the
	// request entirely.
	ErrInvalidRetries = errors.New("retry count must be at least 1")

	// ErrInvalidWorkers is returned when the worker count is below one.
	ErrInvalidWorkers = errors.New("worker count must be at least 1")

	// ErrInvalidBatchSize is returned when the batch size is below one.
	ErrInvalidBatchSize = errors.New("batch size must be at least 1")

	// ErrInvalidDelay is returned when a delay duration is negative.
	ErrInvalidDelay = errors.New("delays must not be negative")

	// ErrConflictingReportFormats is returned when both JSON and
	// Markdown output were requested.
	ErrConflictingReportFormats = errors.New("--json and --markdown are mutually exclusive")
)
