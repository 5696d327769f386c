package crawler

import (
	"context"
	"log/slog"

	"loftergrab/internal/database"
	"loftergrab/internal/model"
)

// Renderer turns a fetched thread into display text. The concrete
// formatters live in internal/report.
type Renderer interface {
	Render(thread model.Thread) string
}

// Processor is the one-call facade over fetching, persistence, archiving
// and rendering. Commands that walk one post at a time drive this instead
// of wiring the pieces themselves.
type Processor struct {
	fetcher   *Fetcher
	renderer  Renderer
	persister *Persister
	archive   *database.ArchiveDB
	logger    *slog.Logger
}

// ProcessorOption is a functional option for configuring a Processor.
type ProcessorOption func(*Processor)

// WithPersister attaches artifact persistence to each processed post.
// Without it, fetched threads are rendered but not written anywhere.
func WithPersister(persister *Persister) ProcessorOption {
	return func(p *Processor) {
		p.persister = persister
	}
}

// WithArchive records every processed post in the crawl archive,
// including posts whose fetch came back empty.
func WithArchive(db *database.ArchiveDB) ProcessorOption {
	return func(p *Processor) {
		p.archive = db
	}
}

// WithProcessorLogger sets the logger. If not set, slog.Default() is used.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a Processor around a fetcher and a renderer.
func NewProcessor(fetcher *Fetcher, renderer Renderer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		fetcher:  fetcher,
		renderer: renderer,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ProcessComments fetches the complete comment thread for one post,
// records the run when an archive is attached, persists the artifacts
// when a persister is attached, and returns the rendered text. The empty
// string means the post has no comments or the fetch failed after every
// retry; the two are indistinguishable here, matching how the fetcher
// degrades.
func (p *Processor) ProcessComments(ctx context.Context, target model.Target, scope string) string {
	res := p.fetcher.FetchAll(ctx, target)

	if p.archive != nil {
		report := model.NewCrawlReport(target, scope)
		report.Thread = res.Thread
		report.PagesFetched = res.PagesFetched
		report.ReplyShortfalls = res.ReplyShortfalls
		report.TimedOut = ctx.Err() != nil
		if _, err := p.archive.SaveRun(ctx, report); err != nil {
			p.logger.Warn("run not archived",
				"post_id", target.PostID,
				"error", err,
			)
		}
	}

	if res.Thread.Empty() {
		p.logger.Info("no comments to process",
			"post_id", target.PostID,
			"blog_id", target.BlogID,
		)
		return ""
	}

	if p.persister != nil {
		if err := p.persister.Persist(target, res.Thread, scope); err != nil {
			p.logger.Warn("artifact persistence incomplete",
				"post_id", target.PostID,
				"error", err,
			)
		}
	}

	return p.renderer.Render(res.Thread)
}
