package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while still printing a readable message.
var (
	// ErrInvalidIndexURL is returned when the index URL is empty or not an absolute http(s) URL.
	ErrInvalidIndexURL = errors.New("invalid index URL: must be an absolute http or https URL")

	// ErrEmptyOutputDir is returned when the output directory is blank.
	ErrEmptyOutputDir = errors.New("invalid output directory: must not be empty")

	// ErrInvalidTimeout is returned when the timeout is negative.
	// Use 0 to disable the per-request timeout.
	ErrInvalidTimeout = errors.New("invalid timeout: must be non-negative")

	// ErrInvalidConcurrency is returned when the concurrency bound is negative.
	// Use 0 for unbounded concurrency.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be non-negative")

	// ErrEmptySelector is returned when the content selector is blank.
	ErrEmptySelector = errors.New("invalid selector: must not be empty")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	// Use 0 for the default limit.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is not "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address: must be host:port")

	// ErrConflictingNetwork is returned when both --proxy and --tor are specified.
	ErrConflictingNetwork = errors.New("conflicting network options: --proxy and --tor cannot be used together")

	// ErrInvalidTorStartupTimeout is returned when Tor is enabled with a non-positive startup timeout.
	ErrInvalidTorStartupTimeout = errors.New("invalid tor startup timeout: must be positive")
)
