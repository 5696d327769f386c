package crawler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"loftergrab/internal/config"
	"loftergrab/internal/lofter"
	"loftergrab/internal/model"
)

// CommentAPI is the slice of the Lofter API the fetcher consumes.
// *lofter.Client satisfies it.
type CommentAPI interface {
	// L1Page fetches one page of top-level comments starting at offset.
	L1Page(ctx context.Context, target model.Target, offset int) (*lofter.L1Page, error)

	// ReplyBatch fetches the reply batch for one top-level comment.
	// API-side errors come back inside the envelope, not as an error.
	ReplyBatch(ctx context.Context, target model.Target, commentID string) (*lofter.Envelope, error)
}

// Result is the outcome of one complete comment fetch.
type Result struct {
	// Thread holds the aggregated comments. Empty when the post has no
	// comments or when every fetch attempt failed.
	Thread model.Thread

	// PagesFetched is the number of comment pages retrieved on the
	// attempt that produced Thread.
	PagesFetched int

	// ReplyShortfalls counts the comments whose resolved replies fell
	// short of the count the API promised.
	ReplyShortfalls int
}

// taggedRaw is a deduplicated raw comment tagged with its hot-list
// origin, pending reply resolution.
type taggedRaw struct {
	raw lofter.RawComment
	hot bool
}

// Fetcher walks a post's comment pages and resolves every comment's
// replies into a model.Thread.
//
// Design decision: FetchAll returns a Result, never an error, because:
//  1. A crawl over many posts must keep going when one post fails
//  2. The empty thread is already the meaningful degraded outcome
//  3. Callers branch on emptiness, not on failure cause
type Fetcher struct {
	api            CommentAPI
	delay          DelayPolicy
	maxRetries     int
	l2MaxRetries   int
	maxWorkers     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// FetcherOption is a functional option for configuring a Fetcher.
type FetcherOption func(*Fetcher)

// WithLogger sets the logger for crawl progress and failures.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) FetcherOption {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher creates a Fetcher from the resolved configuration.
func NewFetcher(api CommentAPI, delay DelayPolicy, cfg *config.Config, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		api:            api,
		delay:          delay,
		maxRetries:     cfg.MaxRetries,
		l2MaxRetries:   cfg.L2MaxRetries,
		maxWorkers:     cfg.MaxWorkers,
		retryBaseDelay: cfg.RetryBaseDelay,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FetchAll retrieves the complete comment thread for one post.
//
// A failure to fetch the very first page fails the whole attempt and
// the fetch is retried from scratch, up to the configured number of
// attempts. Failures after the first page keep the pages collected so
// far. When every attempt fails, or the context is cancelled, the
// result carries an empty thread.
func (f *Fetcher) FetchAll(ctx context.Context, target model.Target) Result {
	var lastErr error

	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		f.logger.Info("fetching comments",
			"post_id", target.PostID,
			"blog_id", target.BlogID,
			"attempt", attempt,
			"max_attempts", f.maxRetries,
		)

		res, err := f.fetchOnce(ctx, target)
		if err == nil {
			return res
		}
		lastErr = err

		if ctx.Err() != nil {
			break
		}

		if attempt < f.maxRetries {
			wait := fetchRetryWait(attempt, f.retryBaseDelay)
			f.logger.Warn("comment fetch failed, retrying",
				"post_id", target.PostID,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
			if sleepContext(ctx, wait) != nil {
				break
			}
		}
	}

	f.logger.Warn("giving up on comment fetch, returning empty thread",
		"post_id", target.PostID,
		"error", lastErr,
	)
	return Result{Thread: emptyThread()}
}

// fetchOnce runs one full fetch attempt: paginate, deduplicate, then
// resolve replies. The error return is non-nil only when the first page
// could not be fetched or the context was cancelled; those are the
// conditions FetchAll retries or aborts on.
func (f *Fetcher) fetchOnce(ctx context.Context, target model.Target) (Result, error) {
	seen := make(map[string]bool)
	var tagged []taggedRaw
	offset := 0
	pages := 0

	for {
		if pages > 0 {
			if err := f.delay.Sleep(ctx, DelayBetweenL1Pages); err != nil {
				return Result{}, err
			}
		}

		page, err := f.api.L1Page(ctx, target, offset)
		if err != nil {
			if pages == 0 {
				return Result{}, err
			}
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			f.logger.Warn("comment page fetch failed, keeping pages collected so far",
				"post_id", target.PostID,
				"page", pages+1,
				"error", err,
			)
			break
		}
		pages++

		fresh := mergePage(page, seen)
		f.logger.Debug("comment page fetched",
			"post_id", target.PostID,
			"page", pages,
			"normal", len(page.List),
			"hot", len(page.HotList),
			"unique", len(fresh),
		)

		// A page with nothing new means the cursor has started
		// repeating records. Stop before looping forever.
		if len(fresh) == 0 {
			break
		}
		tagged = append(tagged, fresh...)

		if page.NextOffset == lofter.NoMorePages {
			break
		}
		offset = page.NextOffset
	}

	if len(tagged) == 0 {
		return Result{Thread: emptyThread(), PagesFetched: pages}, nil
	}

	// Resolve replies concurrently. Results are written by index so the
	// thread keeps page-arrival order no matter which worker finishes
	// first.
	comments := make([]model.Comment, len(tagged))
	shortfalls := 0
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.maxWorkers)

	for i, tr := range tagged {
		i, tr := i, tr
		g.Go(func() error {
			c, short := f.resolveComment(gctx, target, tr)

			mu.Lock()
			comments[i] = c
			shortfalls += short
			mu.Unlock()

			// Reply failures degrade to a comment without replies.
			// Never fail the group; that would cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	thread := model.Thread{
		Hot: make([]model.Comment, 0),
		All: comments,
	}
	for _, c := range comments {
		if c.Hot {
			thread.Hot = append(thread.Hot, c)
		}
	}

	f.logger.Info("comment fetch complete",
		"post_id", target.PostID,
		"pages", pages,
		"comments", len(comments),
		"hot", len(thread.Hot),
		"replies", thread.ReplyCount(),
	)

	return Result{Thread: thread, PagesFetched: pages, ReplyShortfalls: shortfalls}, nil
}

// mergePage flattens one page into deduplicated raw comments. Hot
// comments come first, then the normal list, so a record present in
// both keeps its hot tag. Records without an ID are dropped; records
// already seen on this or earlier pages are skipped.
func mergePage(page *lofter.L1Page, seen map[string]bool) []taggedRaw {
	fresh := make([]taggedRaw, 0, len(page.HotList)+len(page.List))

	for _, raw := range page.HotList {
		id := rawID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, taggedRaw{raw: raw, hot: true})
	}

	for _, raw := range page.List {
		id := rawID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, taggedRaw{raw: raw, hot: false})
	}

	return fresh
}

// resolveComment normalizes one top-level comment and assembles its
// full reply set from the replies embedded in the page plus, when the
// API reports more than the page carried, a fetched reply batch.
// It returns the comment and 1 when the resolved replies still fell
// short of the promised count, 0 otherwise.
//
// Reply failures never fail the comment: when the reply endpoint is
// unreachable the comment keeps whatever replies the page embedded.
func (f *Fetcher) resolveComment(ctx context.Context, target model.Target, tr taggedRaw) (model.Comment, int) {
	c := normalizeComment(tr.raw, model.KindL1)
	c.Hot = tr.hot

	seen := make(map[string]bool, len(tr.raw.L2Comments))
	replies := make([]model.Comment, 0, len(tr.raw.L2Comments))
	for _, raw := range tr.raw.L2Comments {
		id := rawID(raw)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		replies = append(replies, normalizeComment(raw, model.KindL2))
	}

	if tr.raw.L2Count > len(tr.raw.L2Comments) {
		for _, raw := range f.fetchReplies(ctx, target, c.ID) {
			id := rawID(raw)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			replies = append(replies, normalizeComment(raw, model.KindL2))
		}
	}

	if len(replies) > 0 {
		c.Replies = replies
	}

	if c.ExpectedReplyCount > len(replies) {
		f.logger.Warn("fewer replies than expected",
			"comment_id", c.ID,
			"expected", c.ExpectedReplyCount,
			"found", len(replies),
		)
		return c, 1
	}

	return c, 0
}

// fetchReplies retrieves the reply batch for one comment, retrying both
// transport failures and API-side error codes. A well-formed response
// that simply contains no recognizable replies is a terminal answer and
// is not retried.
func (f *Fetcher) fetchReplies(ctx context.Context, target model.Target, commentID string) []lofter.RawComment {
	for attempt := 0; attempt < f.l2MaxRetries; attempt++ {
		// The reply endpoint throttles aggressively. Pace every
		// attempt, not just the first.
		if err := f.delay.Sleep(ctx, DelayBeforeL2Request); err != nil {
			return nil
		}

		env, err := f.api.ReplyBatch(ctx, target, commentID)
		if err == nil && env.Code == 0 {
			replies, shape := extractReplies(env)
			if len(replies) == 0 {
				f.logger.Debug("reply batch contained no replies",
					"comment_id", commentID,
				)
				return nil
			}
			f.logger.Debug("reply batch decoded",
				"comment_id", commentID,
				"shape", shape,
				"count", len(replies),
			)
			return replies
		}

		if err != nil {
			f.logger.Debug("reply batch request failed",
				"comment_id", commentID,
				"attempt", attempt+1,
				"error", err,
			)
		} else {
			f.logger.Debug("reply batch returned an error code",
				"comment_id", commentID,
				"attempt", attempt+1,
				"code", env.Code,
				"msg", env.Msg,
			)
		}

		if attempt < f.l2MaxRetries-1 {
			if sleepContext(ctx, replyRetryWait(attempt, f.retryBaseDelay)) != nil {
				return nil
			}
		}
	}

	f.logger.Warn("reply batch failed, keeping comment without fetched replies",
		"comment_id", commentID,
		"attempts", f.l2MaxRetries,
	)
	return nil
}

// fetchRetryWait returns the pause before retrying a whole comment
// fetch. attempt is 1-based, so the waits grow as 2x, 4x, 6x the base
// delay.
func fetchRetryWait(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * 2 * base
}

// replyRetryWait returns the pause before retrying a reply batch.
// attempt is the 0-based attempt that just failed, so the waits grow as
// 2x, 4x the base delay. The schedule looks like fetchRetryWait today
// but the two are tuned independently; the reply endpoint tolerates far
// less traffic than the page endpoint.
func replyRetryWait(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt+1) * 2 * base
}

// emptyThread returns a thread with allocated, empty lists so callers
// and serializers see [] rather than null.
func emptyThread() model.Thread {
	return model.Thread{
		Hot: make([]model.Comment, 0),
		All: make([]model.Comment, 0),
	}
}
