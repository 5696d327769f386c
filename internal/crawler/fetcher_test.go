package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"loftergrab/internal/config"
	"loftergrab/internal/lofter"
	"loftergrab/internal/model"
)

// mockAPI implements CommentAPI with pluggable behavior per test.
type mockAPI struct {
	l1Page     func(ctx context.Context, target model.Target, offset int) (*lofter.L1Page, error)
	replyBatch func(ctx context.Context, target model.Target, commentID string) (*lofter.Envelope, error)

	l1Calls    atomic.Int32
	replyCalls atomic.Int32
}

func (m *mockAPI) L1Page(ctx context.Context, target model.Target, offset int) (*lofter.L1Page, error) {
	m.l1Calls.Add(1)
	return m.l1Page(ctx, target, offset)
}

func (m *mockAPI) ReplyBatch(ctx context.Context, target model.Target, commentID string) (*lofter.Envelope, error) {
	m.replyCalls.Add(1)
	if m.replyBatch == nil {
		return &lofter.Envelope{}, nil
	}
	return m.replyBatch(ctx, target, commentID)
}

// noDelay skips all pacing so tests run instantly.
type noDelay struct{}

func (noDelay) Sleep(ctx context.Context, _ DelayKind) error { return ctx.Err() }

func testConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.RetryBaseDelay = time.Millisecond
	return cfg
}

func testTarget() model.Target {
	return model.Target{PostID: "1069536298", BlogID: "507745"}
}

func newTestFetcher(api CommentAPI, cfg *config.Config) *Fetcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewFetcher(api, noDelay{}, cfg, WithLogger(logger))
}

func rawComment(id, content string) lofter.RawComment {
	return lofter.RawComment{ID: json.Number(id), Content: content}
}

func commentIDs(comments []model.Comment) []string {
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.ID)
	}
	return ids
}

func equalIDs(got []model.Comment, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i, c := range got {
		if c.ID != want[i] {
			return false
		}
	}
	return true
}

func TestFetcherFetchAllSinglePage(t *testing.T) {
	t.Parallel()

	hot := rawComment("100", "hot take")
	normal := rawComment("101", "  first  ")
	normal.PublishTime = 1700000000000
	normal.LikeCount = 7
	normal.IPLocation = "上海"
	normal.Publisher = &lofter.RawBlogInfo{
		BlogNickName: "小明",
		BlogID:       json.Number("507745"),
		BlogName:     "xiaoming",
		SmallLogo:    "https://example.com/a.png",
	}
	normal.L2Count = 1
	normal.L2Comments = []lofter.RawComment{rawComment("201", "embedded reply")}

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, offset int) (*lofter.L1Page, error) {
			if offset != 0 {
				return nil, fmt.Errorf("unexpected offset %d", offset)
			}
			return &lofter.L1Page{
				HotList:    []lofter.RawComment{hot},
				List:       []lofter.RawComment{hot, normal, rawComment("102", "second")},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "100", "101", "102") {
		t.Fatalf("unexpected comment order: %v", commentIDs(res.Thread.All))
	}
	if !equalIDs(res.Thread.Hot, "100") {
		t.Errorf("expected hot list [100], got %v", commentIDs(res.Thread.Hot))
	}
	if !res.Thread.All[0].Hot {
		t.Error("expected comment 100 to keep its hot tag")
	}
	if res.Thread.All[1].Hot {
		t.Error("expected comment 101 to be a normal comment")
	}
	if res.PagesFetched != 1 {
		t.Errorf("expected 1 page fetched, got %d", res.PagesFetched)
	}
	if res.ReplyShortfalls != 0 {
		t.Errorf("expected no reply shortfalls, got %d", res.ReplyShortfalls)
	}

	// All expected replies were embedded in the page, so the reply
	// endpoint must not be contacted.
	if calls := api.replyCalls.Load(); calls != 0 {
		t.Errorf("expected no reply batch calls, got %d", calls)
	}

	got := res.Thread.All[1]
	if got.Content != "first" {
		t.Errorf("expected trimmed content %q, got %q", "first", got.Content)
	}
	if got.PublishedAt == "" || got.PublishedAtMillis != 1700000000000 {
		t.Errorf("expected formatted publish time, got %q (%d)", got.PublishedAt, got.PublishedAtMillis)
	}
	if got.LikeCount != 7 || got.IPLocation != "上海" {
		t.Errorf("unexpected like count or location: %d, %q", got.LikeCount, got.IPLocation)
	}
	if got.Author.DisplayName != "小明" || got.Author.ID != "507745" {
		t.Errorf("unexpected author: %+v", got.Author)
	}
	if got.Kind != model.KindL1 {
		t.Errorf("expected kind L1, got %v", got.Kind)
	}
	if len(got.Replies) != 1 || got.Replies[0].ID != "201" || got.Replies[0].Kind != model.KindL2 {
		t.Errorf("unexpected replies: %+v", got.Replies)
	}
	if got.ExpectedReplyCount != 1 {
		t.Errorf("expected reply count hint 1, got %d", got.ExpectedReplyCount)
	}
}

func TestFetcherPaginatesUntilNoMorePages(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, offset int) (*lofter.L1Page, error) {
			switch offset {
			case 0:
				return &lofter.L1Page{
					List:       []lofter.RawComment{rawComment("1", "a"), rawComment("2", "b")},
					NextOffset: 20,
				}, nil
			case 20:
				// The API repeats the last record of the previous page
				// at the cursor boundary.
				return &lofter.L1Page{
					List:       []lofter.RawComment{rawComment("2", "b"), rawComment("3", "c")},
					NextOffset: lofter.NoMorePages,
				}, nil
			default:
				return nil, fmt.Errorf("unexpected offset %d", offset)
			}
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "1", "2", "3") {
		t.Fatalf("unexpected comment order: %v", commentIDs(res.Thread.All))
	}
	if res.PagesFetched != 2 {
		t.Errorf("expected 2 pages fetched, got %d", res.PagesFetched)
	}
	if calls := api.l1Calls.Load(); calls != 2 {
		t.Errorf("expected 2 page requests, got %d", calls)
	}
}

func TestFetcherStopsWhenPageOnlyRepeats(t *testing.T) {
	t.Parallel()

	// The cursor keeps advancing but the records never change. Without
	// the duplicate guard this would paginate forever.
	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, offset int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{rawComment("1", "a"), rawComment("2", "b")},
				NextOffset: offset + 20,
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "1", "2") {
		t.Fatalf("unexpected comments: %v", commentIDs(res.Thread.All))
	}
	if calls := api.l1Calls.Load(); calls != 2 {
		t.Errorf("expected pagination to stop after 2 requests, got %d", calls)
	}
}

func TestFetcherDropsRecordsWithoutID(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List: []lofter.RawComment{
					rawComment("", "no id"),
					rawComment("1", "kept"),
				},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "1") {
		t.Fatalf("expected only comment 1, got %v", commentIDs(res.Thread.All))
	}
}

func TestFetcherFetchesMissingReplies(t *testing.T) {
	t.Parallel()

	parent := rawComment("10", "parent")
	parent.L2Count = 3
	parent.L2Comments = []lofter.RawComment{rawComment("201", "embedded")}

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{parent},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, commentID string) (*lofter.Envelope, error) {
			if commentID != "10" {
				return nil, fmt.Errorf("unexpected comment id %s", commentID)
			}
			// The batch repeats the embedded reply and includes one
			// record without an id; both must be filtered out.
			return &lofter.Envelope{
				Data: json.RawMessage(`{"list":[
					{"id":201,"content":"embedded"},
					{"id":202,"content":"fetched"},
					{"content":"no id"},
					{"id":203,"content":"also fetched"}
				]}`),
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if len(res.Thread.All) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(res.Thread.All))
	}
	if !equalIDs(res.Thread.All[0].Replies, "201", "202", "203") {
		t.Fatalf("unexpected replies: %v", commentIDs(res.Thread.All[0].Replies))
	}
	if res.ReplyShortfalls != 0 {
		t.Errorf("expected no shortfall, got %d", res.ReplyShortfalls)
	}
	if calls := api.replyCalls.Load(); calls != 1 {
		t.Errorf("expected 1 reply batch call, got %d", calls)
	}
}

func TestFetcherCountsReplyShortfall(t *testing.T) {
	t.Parallel()

	parent := rawComment("10", "parent")
	parent.L2Count = 5
	parent.L2Comments = []lofter.RawComment{rawComment("201", "embedded")}

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{parent},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, _ string) (*lofter.Envelope, error) {
			return &lofter.Envelope{
				Data: json.RawMessage(`{"list":[{"id":202,"content":"only one"}]}`),
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if got := res.Thread.All[0]; !equalIDs(got.Replies, "201", "202") {
		t.Fatalf("unexpected replies: %v", commentIDs(got.Replies))
	}
	if res.Thread.All[0].ExpectedReplyCount != 5 {
		t.Errorf("expected the API hint to survive, got %d", res.Thread.All[0].ExpectedReplyCount)
	}
	if res.ReplyShortfalls != 1 {
		t.Errorf("expected 1 shortfall, got %d", res.ReplyShortfalls)
	}
}

func TestFetcherRetriesReplyBatch(t *testing.T) {
	t.Parallel()

	parent := rawComment("10", "parent")
	parent.L2Count = 1

	var attempts atomic.Int32
	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{parent},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, _ string) (*lofter.Envelope, error) {
			if attempts.Add(1) == 1 {
				return &lofter.Envelope{Code: 500, Msg: "internal error"}, nil
			}
			return &lofter.Envelope{
				Data: json.RawMessage(`{"list":[{"id":201,"content":"after retry"}]}`),
			}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All[0].Replies, "201") {
		t.Fatalf("unexpected replies: %v", commentIDs(res.Thread.All[0].Replies))
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 reply batch attempts, got %d", got)
	}
}

func TestFetcherKeepsCommentWhenReplyBatchExhausted(t *testing.T) {
	t.Parallel()

	parent := rawComment("10", "parent")
	parent.L2Count = 2
	parent.L2Comments = []lofter.RawComment{rawComment("201", "embedded")}

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{parent},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, _ string) (*lofter.Envelope, error) {
			return nil, errors.New("connection reset")
		},
	}

	cfg := testConfig()
	res := newTestFetcher(api, cfg).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All[0].Replies, "201") {
		t.Fatalf("expected embedded reply to survive, got %v", commentIDs(res.Thread.All[0].Replies))
	}
	if res.ReplyShortfalls != 1 {
		t.Errorf("expected 1 shortfall, got %d", res.ReplyShortfalls)
	}
	if calls := api.replyCalls.Load(); calls != int32(cfg.L2MaxRetries) {
		t.Errorf("expected %d reply batch attempts, got %d", cfg.L2MaxRetries, calls)
	}
}

func TestFetcherDoesNotRetryEmptyReplyBatch(t *testing.T) {
	t.Parallel()

	parent := rawComment("10", "parent")
	parent.L2Count = 2

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{
				List:       []lofter.RawComment{parent},
				NextOffset: lofter.NoMorePages,
			}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, _ string) (*lofter.Envelope, error) {
			// Well-formed success with nothing in it. The replies were
			// deleted server-side; asking again will not change that.
			return &lofter.Envelope{Data: json.RawMessage(`{"list":[]}`)}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if len(res.Thread.All[0].Replies) != 0 {
		t.Fatalf("expected no replies, got %v", commentIDs(res.Thread.All[0].Replies))
	}
	if calls := api.replyCalls.Load(); calls != 1 {
		t.Errorf("expected a single reply batch call, got %d", calls)
	}
}

func TestFetcherRetriesWhenFirstPageFails(t *testing.T) {
	t.Parallel()

	api := &mockAPI{}
	api.l1Page = func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
		if api.l1Calls.Load() < 3 {
			return nil, errors.New("gateway timeout")
		}
		return &lofter.L1Page{
			List:       []lofter.RawComment{rawComment("1", "finally")},
			NextOffset: lofter.NoMorePages,
		}, nil
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "1") {
		t.Fatalf("expected the third attempt to succeed, got %v", commentIDs(res.Thread.All))
	}
	if calls := api.l1Calls.Load(); calls != 3 {
		t.Errorf("expected 3 page requests, got %d", calls)
	}
}

func TestFetcherReturnsEmptyThreadWhenAllAttemptsFail(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return nil, errors.New("gateway timeout")
		},
	}

	cfg := testConfig()
	res := newTestFetcher(api, cfg).FetchAll(context.Background(), testTarget())

	if !res.Thread.Empty() {
		t.Fatalf("expected empty thread, got %d comments", len(res.Thread.All))
	}
	if res.Thread.All == nil || res.Thread.Hot == nil {
		t.Error("expected allocated empty lists, got nil")
	}
	if calls := api.l1Calls.Load(); calls != int32(cfg.MaxRetries) {
		t.Errorf("expected %d attempts, got %d", cfg.MaxRetries, calls)
	}
}

func TestFetcherKeepsPartialThreadOnMidPaginationFailure(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, offset int) (*lofter.L1Page, error) {
			if offset == 0 {
				return &lofter.L1Page{
					List:       []lofter.RawComment{rawComment("1", "a")},
					NextOffset: 20,
				}, nil
			}
			return nil, errors.New("gateway timeout")
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !equalIDs(res.Thread.All, "1") {
		t.Fatalf("expected the first page to survive, got %v", commentIDs(res.Thread.All))
	}
	if res.PagesFetched != 1 {
		t.Errorf("expected 1 page fetched, got %d", res.PagesFetched)
	}

	// A partial thread is a success. The whole fetch must not restart.
	if calls := api.l1Calls.Load(); calls != 2 {
		t.Errorf("expected 2 page requests, got %d", calls)
	}
}

func TestFetcherEmptyPostIsNotRetried(t *testing.T) {
	t.Parallel()

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{NextOffset: lofter.NoMorePages}, nil
		},
	}

	res := newTestFetcher(api, testConfig()).FetchAll(context.Background(), testTarget())

	if !res.Thread.Empty() {
		t.Fatalf("expected empty thread, got %d comments", len(res.Thread.All))
	}
	if res.PagesFetched != 1 {
		t.Errorf("expected 1 page fetched, got %d", res.PagesFetched)
	}
	if calls := api.l1Calls.Load(); calls != 1 {
		t.Errorf("expected a single page request, got %d", calls)
	}
}

func TestFetcherContextCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &mockAPI{
		l1Page: func(ctx context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return nil, ctx.Err()
		},
	}

	cfg := testConfig()
	cfg.RetryBaseDelay = time.Minute

	start := time.Now()
	res := newTestFetcher(api, cfg).FetchAll(ctx, testTarget())

	if !res.Thread.Empty() {
		t.Fatalf("expected empty thread, got %d comments", len(res.Thread.All))
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("expected prompt return on cancellation, took %v", elapsed)
	}
	if calls := api.l1Calls.Load(); calls != 1 {
		t.Errorf("expected no retries after cancellation, got %d requests", calls)
	}
}

func TestFetcherPreservesOrderAcrossConcurrentWorkers(t *testing.T) {
	t.Parallel()

	const total = 8

	comments := make([]lofter.RawComment, 0, total)
	for i := 1; i <= total; i++ {
		c := rawComment(strconv.Itoa(i), fmt.Sprintf("comment %d", i))
		c.L2Count = 1
		comments = append(comments, c)
	}

	api := &mockAPI{
		l1Page: func(_ context.Context, _ model.Target, _ int) (*lofter.L1Page, error) {
			return &lofter.L1Page{List: comments, NextOffset: lofter.NoMorePages}, nil
		},
		replyBatch: func(_ context.Context, _ model.Target, commentID string) (*lofter.Envelope, error) {
			// Earlier comments sleep longer so later workers finish
			// first. The output order must not care.
			n, _ := strconv.Atoi(commentID)
			time.Sleep(time.Duration(total-n) * 2 * time.Millisecond)
			data := fmt.Sprintf(`{"list":[{"id":%d,"content":"reply"}]}`, 100+n)
			return &lofter.Envelope{Data: json.RawMessage(data)}, nil
		},
	}

	cfg := testConfig()
	cfg.MaxWorkers = 4

	res := newTestFetcher(api, cfg).FetchAll(context.Background(), testTarget())

	want := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		want = append(want, strconv.Itoa(i))
	}
	if !equalIDs(res.Thread.All, want...) {
		t.Fatalf("expected page order to survive concurrency, got %v", commentIDs(res.Thread.All))
	}
	for i, c := range res.Thread.All {
		wantReply := strconv.Itoa(100 + i + 1)
		if !equalIDs(c.Replies, wantReply) {
			t.Errorf("comment %s: expected reply %s, got %v", c.ID, wantReply, commentIDs(c.Replies))
		}
	}
}

func TestMergePage(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{"3": true}
	page := &lofter.L1Page{
		HotList: []lofter.RawComment{
			rawComment("1", "hot"),
			rawComment("", "hot without id"),
		},
		List: []lofter.RawComment{
			rawComment("1", "hot again"),
			rawComment("2", "normal"),
			rawComment("3", "seen on an earlier page"),
		},
	}

	fresh := mergePage(page, seen)

	if len(fresh) != 2 {
		t.Fatalf("expected 2 fresh records, got %d", len(fresh))
	}
	if fresh[0].raw.ID != "1" || !fresh[0].hot {
		t.Errorf("expected record 1 first with hot tag, got %+v", fresh[0])
	}
	if fresh[1].raw.ID != "2" || fresh[1].hot {
		t.Errorf("expected record 2 second without hot tag, got %+v", fresh[1])
	}
	if !seen["1"] || !seen["2"] {
		t.Error("expected merged ids to be recorded as seen")
	}
}

func TestRetryWaits(t *testing.T) {
	t.Parallel()

	base := time.Second

	fetchWaits := []time.Duration{
		fetchRetryWait(1, base),
		fetchRetryWait(2, base),
		fetchRetryWait(3, base),
	}
	wantFetch := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	for i, got := range fetchWaits {
		if got != wantFetch[i] {
			t.Errorf("fetchRetryWait(%d) = %v, want %v", i+1, got, wantFetch[i])
		}
	}

	replyWaits := []time.Duration{
		replyRetryWait(0, base),
		replyRetryWait(1, base),
	}
	wantReply := []time.Duration{2 * time.Second, 4 * time.Second}
	for i, got := range replyWaits {
		if got != wantReply[i] {
			t.Errorf("replyRetryWait(%d) = %v, want %v", i, got, wantReply[i])
		}
	}
}
