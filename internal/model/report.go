package model

import "time"

// CrawlReport is the result of crawling one post's comment thread.
// It accumulates state as pipeline steps run: the fetch step fills the
// thread, the insight step fills the stats, and the archive step records
// the run. The report is what gets rendered, persisted, and stored.
type CrawlReport struct {
	// === Target ===

	// Target identifies the crawled post.
	Target Target `json:"target"`

	// Scope is the caller-supplied logical bucket for persisted output.
	// Unrelated crawls with different scopes never collide on file paths.
	Scope string `json:"scope,omitempty"`

	// DateCrawled is when the crawl started.
	DateCrawled time.Time `json:"date_crawled"`

	// === Results ===

	// Thread holds the aggregated hot/all comment lists.
	Thread Thread `json:"thread"`

	// Stats holds derived thread statistics, filled by the insight step.
	Stats *Stats `json:"stats,omitempty"`

	// PagesFetched is the number of L1 pages retrieved.
	PagesFetched int `json:"pages_fetched"`

	// ReplyShortfalls counts L1 comments whose resolved reply count
	// stayed below the API's l2Count hint.
	ReplyShortfalls int `json:"reply_shortfalls,omitempty"`

	// === Status ===

	// TimedOut is true when the crawl was cut short by cancellation.
	TimedOut bool `json:"timed_out,omitempty"`

	// Error holds the step error, if any. Excluded from JSON; the
	// message is serialized separately.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error_message,omitempty"`

	// PerformedSteps lists pipeline steps that ran, in order.
	PerformedSteps []string `json:"performed_steps,omitempty"`
}

// NewCrawlReport creates an empty report for the given target and scope.
func NewCrawlReport(target Target, scope string) *CrawlReport {
	return &CrawlReport{
		Target:      target,
		Scope:       scope,
		DateCrawled: time.Now(),
	}
}

// SetError records an error on the report, keeping both the error value
// for callers and the message for serialization.
func (r *CrawlReport) SetError(err error) {
	if err == nil {
		return
	}
	r.Error = err
	r.ErrorMessage = err.Error()
}
