package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"loftergrab/internal/model"
)

// Default configuration values.
// These mirror the tuning the Lofter mobile API tolerates in practice;
// the comment endpoints rate-limit aggressively when polled faster.
const (
	// DefaultTimeout is the per-request timeout. The comment API answers
	// in well under a second when healthy, but the CDN occasionally
	// stalls; 15 seconds keeps slow responses without hanging the pool.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxRetries is the attempt count for a whole-fetch retry and
	// for each transport request. Three attempts rides out transient CDN
	// errors without hammering a post that is genuinely gone.
	DefaultMaxRetries = 3

	// DefaultL2MaxRetries is the attempt count for a single reply-batch
	// request. Replies are supplementary data, so we give up sooner than
	// for the main fetch.
	DefaultL2MaxRetries = 2

	// DefaultRetryBaseDelay is the unit all backoff formulas scale.
	// One second matches the pacing the Lofter API expects from the
	// official client after an error.
	DefaultRetryBaseDelay = 1 * time.Second

	// DefaultL1PageDelay is the pause between L1 comment pages.
	// 50ms is enough to stay under the per-IP page rate limit.
	DefaultL1PageDelay = 50 * time.Millisecond

	// DefaultL2RequestDelay is the pause before each reply-batch request.
	// The L2 endpoint is limited far harder than the L1 endpoint and
	// starts returning error codes when hit more than about once a second.
	DefaultL2RequestDelay = 1 * time.Second

	// DefaultMaxWorkers is the reply-resolution worker count.
	// Five workers saturate the allowed request rate given the one-second
	// L2 delay; more workers only queue on the delay.
	DefaultMaxWorkers = 5

	// DefaultBatchSize is the number of posts crawled concurrently when
	// multiple targets are given.
	DefaultBatchSize = 3

	// DefaultScope is the output bucket used when the caller does not
	// supply one.
	DefaultScope = "default"

	// DefaultOutputDir is where comment artifacts are written, relative
	// to the working directory unless overridden.
	DefaultOutputDir = "lofter_data"

	// AppName is the application name used for XDG directory paths.
	AppName = "loftergrab"
)

// Config holds all configuration options for loftergrab.
// It is populated from CLI flags and the optional config file, then
// passed through the application explicitly rather than via globals.
//
// Design decision: We use a single flat struct instead of nested structs
// (e.g., FetchConfig, ReportConfig) for simplicity. The number of options
// is manageable, and nesting would add complexity without significant benefit.
type Config struct {
	// Timeout is the per-HTTP-request timeout.
	Timeout time.Duration

	// MaxRetries is the attempt count for the whole-fetch retry loop and
	// for individual transport requests.
	MaxRetries int

	// L2MaxRetries is the attempt count for one reply-batch request.
	L2MaxRetries int

	// RetryBaseDelay is the unit scaled by the backoff formulas.
	// Smaller values make retries snappier at the cost of more load on
	// an already unhappy endpoint.
	RetryBaseDelay time.Duration

	// L1PageDelay is the pause between successive L1 comment pages.
	L1PageDelay time.Duration

	// L2RequestDelay is the pause before each reply-batch request.
	L2RequestDelay time.Duration

	// MaxWorkers is the size of the reply-resolution worker pool.
	MaxWorkers int

	// BatchSize is the number of posts crawled concurrently.
	BatchSize int

	// GroupByQuote selects the formatter's grouped mode, where comments
	// quoting the same text are emitted together under one header.
	// When false, comments are emitted in arrival order with inline
	// quote prefixes.
	GroupByQuote bool

	// Scope is the logical output bucket for persisted artifacts.
	Scope string

	// OutputDir is the root directory for persisted comment artifacts.
	OutputDir string

	// DBDir is the directory holding the crawl archive database.
	// When empty, runs are not archived.
	DBDir string

	// SaveToDB indicates whether runs are recorded in the archive.
	SaveToDB bool

	// Cookie is an optional authentication cookie sent with every API
	// request, in "name=value" form. Needed only for comments on
	// followers-only posts. Never logged.
	Cookie string

	// Proxy is an optional SOCKS5 proxy address in "host:port" form.
	// All API traffic is routed through it when set.
	Proxy string

	// UserAgent overrides the client identification header when set.
	UserAgent string

	// ConfigFilePath is the explicit config file path, if the user gave
	// one. Empty means search the standard locations.
	ConfigFilePath string

	// File holds settings loaded from the config file, including
	// per-blog overrides. Nil when no config file was found.
	File *File

	// JSONReport selects JSON report output on stdout.
	// Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects Markdown report output on stdout.
	// Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the report destination path. Empty means stdout.
	ReportFile string

	// NoPersist disables writing the JSON and transcript artifacts.
	NoPersist bool

	// Verbose enables debug-level logging.
	Verbose bool

	// Targets is the list of posts to crawl.
	Targets []model.Target
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because most defaults are non-zero (delays, retry counts),
// and the constructor doubles as documentation of what the defaults are.
func NewConfig() *Config {
	return &Config{
		Timeout:        DefaultTimeout,
		MaxRetries:     DefaultMaxRetries,
		L2MaxRetries:   DefaultL2MaxRetries,
		RetryBaseDelay: DefaultRetryBaseDelay,
		L1PageDelay:    DefaultL1PageDelay,
		L2RequestDelay: DefaultL2RequestDelay,
		MaxWorkers:     DefaultMaxWorkers,
		BatchSize:      DefaultBatchSize,
		GroupByQuote:   true,
		Scope:          DefaultScope,
		OutputDir:      DefaultOutputDir,
	}
}

// XDGDataDir returns the XDG data directory for loftergrab.
// On Linux: ~/.local/share/loftergrab
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for loftergrab.
// On Linux: ~/.config/loftergrab
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
// It returns the first problem found; fixing one error often makes
// later ones irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxRetries < 1 {
		return ErrInvalidRetries
	}
	if c.L2MaxRetries < 1 {
		return ErrInvalidRetries
	}
	if c.MaxWorkers < 1 {
		return ErrInvalidWorkers
	}
	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.L1PageDelay < 0 || c.L2RequestDelay < 0 {
		return ErrInvalidDelay
	}
	if c.RetryBaseDelay <= 0 {
		return ErrInvalidDelay
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// ForBlog returns the effective configuration for one blog, applying any
// per-blog overrides from the config file on top of the base config.
// The receiver is not modified.
func (c *Config) ForBlog(blogID string) *Config {
	out := *c
	if c.File == nil {
		return &out
	}

	bc := c.File.BlogConfig(blogID)
	if bc.MaxWorkers > 0 {
		out.MaxWorkers = bc.MaxWorkers
	}
	if bc.L1PageDelayMs > 0 {
		out.L1PageDelay = time.Duration(bc.L1PageDelayMs) * time.Millisecond
	}
	if bc.L2RequestDelayMs > 0 {
		out.L2RequestDelay = time.Duration(bc.L2RequestDelayMs) * time.Millisecond
	}
	if bc.GroupByQuote != nil {
		out.GroupByQuote = *bc.GroupByQuote
	}
	if bc.Cookie != "" {
		out.Cookie = bc.Cookie
	}
	return &out
}
