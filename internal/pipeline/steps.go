package pipeline

import (
	"context"
	"log/slog"

	"loftergrab/internal/crawler"
	"loftergrab/internal/database"
	"loftergrab/internal/insight"
	"loftergrab/internal/model"
)

// FetchStep runs the comment fetcher and fills the report's thread.
// This is the step every other step builds on.
type FetchStep struct {
	// fetcher walks the comment pages and resolves replies.
	fetcher *crawler.Fetcher

	// logger for structured logging.
	logger *slog.Logger
}

// FetchStepOption configures a FetchStep.
type FetchStepOption func(*FetchStep)

// WithFetchLogger sets a custom logger for the fetch step.
func WithFetchLogger(logger *slog.Logger) FetchStepOption {
	return func(s *FetchStep) {
		s.logger = logger
	}
}

// NewFetchStep creates the comment fetching step.
func NewFetchStep(fetcher *crawler.Fetcher, opts ...FetchStepOption) *FetchStep {
	s := &FetchStep{
		fetcher: fetcher,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *FetchStep) Name() string {
	return "fetch_comments"
}

// Run executes the fetch step. The fetcher absorbs transient failures
// itself; the only error surfaced here is context cancellation, which
// also marks the report as timed out so readers know the thread may be
// partial.
func (s *FetchStep) Run(ctx context.Context, report *model.CrawlReport) error {
	res := s.fetcher.FetchAll(ctx, report.Target)

	report.Thread = res.Thread
	report.PagesFetched = res.PagesFetched
	report.ReplyShortfalls = res.ReplyShortfalls

	if err := ctx.Err(); err != nil {
		report.TimedOut = true
		return err
	}

	s.logger.Debug("thread fetched",
		"post_id", report.Target.PostID,
		"comments", len(res.Thread.All),
		"hot", len(res.Thread.Hot),
		"pages", res.PagesFetched,
	)

	return nil
}

// InsightStep computes thread statistics and attaches them to the report.
type InsightStep struct{}

// NewInsightStep creates the statistics step.
func NewInsightStep() *InsightStep {
	return &InsightStep{}
}

// Name returns the step name.
func (s *InsightStep) Name() string {
	return "insight"
}

// Run executes the statistics step. Analysis is pure and cannot fail.
func (s *InsightStep) Run(_ context.Context, report *model.CrawlReport) error {
	report.Stats = insight.Analyze(report.Thread)
	return nil
}

// PersistStep writes the JSON and transcript artifacts for the fetched
// thread. A nil persister disables the step.
type PersistStep struct {
	// persister writes the artifacts. May be nil.
	persister *crawler.Persister

	// logger for structured logging.
	logger *slog.Logger
}

// PersistStepOption configures a PersistStep.
type PersistStepOption func(*PersistStep)

// WithPersistLogger sets a custom logger for the persist step.
func WithPersistLogger(logger *slog.Logger) PersistStepOption {
	return func(s *PersistStep) {
		s.logger = logger
	}
}

// NewPersistStep creates the artifact persistence step.
func NewPersistStep(persister *crawler.Persister, opts ...PersistStepOption) *PersistStep {
	s := &PersistStep{
		persister: persister,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *PersistStep) Name() string {
	return "persist_artifacts"
}

// Run executes the persistence step. Empty threads leave no artifacts,
// matching the single-post processing path.
func (s *PersistStep) Run(_ context.Context, report *model.CrawlReport) error {
	if s.persister == nil {
		s.logger.Debug("artifact persistence disabled")
		return nil
	}
	if report.Thread.Empty() {
		s.logger.Debug("no artifacts for an empty thread",
			"post_id", report.Target.PostID,
		)
		return nil
	}

	return s.persister.Persist(report.Target, report.Thread, report.Scope)
}

// ArchiveStep saves the run to the archive database. A nil database
// disables the step.
type ArchiveStep struct {
	// db is the archive. May be nil.
	db *database.ArchiveDB

	// logger for structured logging.
	logger *slog.Logger
}

// ArchiveStepOption configures an ArchiveStep.
type ArchiveStepOption func(*ArchiveStep)

// WithArchiveLogger sets a custom logger for the archive step.
func WithArchiveLogger(logger *slog.Logger) ArchiveStepOption {
	return func(s *ArchiveStep) {
		s.logger = logger
	}
}

// NewArchiveStep creates the run archiving step.
func NewArchiveStep(db *database.ArchiveDB, opts ...ArchiveStepOption) *ArchiveStep {
	s := &ArchiveStep{
		db:     db,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *ArchiveStep) Name() string {
	return "archive_run"
}

// Run executes the archive step. Empty and failed runs are archived
// too; a crawl that found nothing is still history worth querying.
func (s *ArchiveStep) Run(ctx context.Context, report *model.CrawlReport) error {
	if s.db == nil {
		s.logger.Debug("archive disabled")
		return nil
	}

	runID, err := s.db.SaveRun(ctx, report)
	if err != nil {
		return err
	}

	s.logger.Debug("run archived",
		"run_id", runID,
		"post_id", report.Target.PostID,
	)

	return nil
}

// DefaultPipeline assembles the standard crawl pipeline: fetch the
// thread, compute statistics, write artifacts, archive the run.
// The persister and database may be nil to disable their steps.
func DefaultPipeline(fetcher *crawler.Fetcher, persister *crawler.Persister, db *database.ArchiveDB, opts ...Option) *Pipeline {
	p := New(opts...)
	p.AddSteps(
		NewFetchStep(fetcher),
		NewInsightStep(),
		NewPersistStep(persister),
		NewArchiveStep(db),
	)
	return p
}
