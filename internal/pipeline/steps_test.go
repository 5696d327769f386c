package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"loftergrab/internal/config"
	"loftergrab/internal/crawler"
	"loftergrab/internal/database"
	"loftergrab/internal/lofter"
	"loftergrab/internal/model"
)

// stubAPI serves one fixed comment page.
type stubAPI struct {
	page *lofter.L1Page
}

func (s *stubAPI) L1Page(context.Context, model.Target, int) (*lofter.L1Page, error) {
	return s.page, nil
}

func (s *stubAPI) ReplyBatch(context.Context, model.Target, string) (*lofter.Envelope, error) {
	return &lofter.Envelope{}, nil
}

func newStepFetcher(api crawler.CommentAPI) *crawler.Fetcher {
	cfg := config.NewConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.L1PageDelay = 0
	cfg.L2RequestDelay = 0
	return crawler.NewFetcher(api, crawler.NewFixedDelayPolicy(cfg), cfg,
		crawler.WithLogger(discardLogger()))
}

func stepThreadReport() *model.CrawlReport {
	report := newTestReport()
	report.Thread = model.Thread{
		Hot: []model.Comment{{ID: "1", Content: "好", Hot: true, Kind: model.KindL1}},
		All: []model.Comment{
			{ID: "1", Content: "好", Hot: true, Kind: model.KindL1},
			{ID: "2", Content: "不错", Kind: model.KindL1},
		},
	}
	return report
}

func TestFetchStep(t *testing.T) {
	t.Parallel()

	t.Run("fills the report thread", func(t *testing.T) {
		t.Parallel()

		api := &stubAPI{page: &lofter.L1Page{
			List: []lofter.RawComment{
				{ID: "100", Content: "第一"},
				{ID: "101", Content: "第二"},
			},
			NextOffset: lofter.NoMorePages,
		}}
		step := NewFetchStep(newStepFetcher(api), WithFetchLogger(discardLogger()))

		report := newTestReport()
		if err := step.Run(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if step.Name() != "fetch_comments" {
			t.Errorf("unexpected step name %q", step.Name())
		}
		if len(report.Thread.All) != 2 {
			t.Fatalf("expected 2 comments, got %d", len(report.Thread.All))
		}
		if report.PagesFetched != 1 {
			t.Errorf("expected 1 page fetched, got %d", report.PagesFetched)
		}
		if report.TimedOut {
			t.Error("expected no timeout flag")
		}
	})

	t.Run("cancellation marks the report timed out", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		api := &stubAPI{page: &lofter.L1Page{NextOffset: lofter.NoMorePages}}
		step := NewFetchStep(newStepFetcher(api), WithFetchLogger(discardLogger()))

		report := newTestReport()
		if err := step.Run(ctx, report); err == nil {
			t.Fatal("expected a cancellation error")
		}
		if !report.TimedOut {
			t.Error("expected the report to be marked timed out")
		}
	})
}

func TestInsightStep(t *testing.T) {
	t.Parallel()

	step := NewInsightStep()
	if step.Name() != "insight" {
		t.Errorf("unexpected step name %q", step.Name())
	}

	report := stepThreadReport()
	if err := step.Run(context.Background(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Stats == nil {
		t.Fatal("expected stats to be attached")
	}
	if report.Stats.TotalComments != 2 || report.Stats.HotComments != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
}

// memStorage collects artifact writes in memory.
type memStorage struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memStorage) Write(scope, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[scope+"/"+name] = append([]byte(nil), data...)
	return nil
}

func (m *memStorage) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func TestPersistStep(t *testing.T) {
	t.Parallel()

	t.Run("writes both artifacts", func(t *testing.T) {
		t.Parallel()

		storage := &memStorage{}
		persister := crawler.NewPersister(storage, crawler.WithPersisterLogger(discardLogger()))
		step := NewPersistStep(persister, WithPersistLogger(discardLogger()))

		if step.Name() != "persist_artifacts" {
			t.Errorf("unexpected step name %q", step.Name())
		}

		report := stepThreadReport()
		if err := step.Run(context.Background(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if storage.count() != 2 {
			t.Errorf("expected 2 artifacts, got %d", storage.count())
		}
		m := storage.files
		if _, ok := m["default/comments_1069536298_507745.json"]; !ok {
			t.Error("expected the JSON artifact under the report scope")
		}
		if _, ok := m["default/comments_formatted_1069536298_507745.txt"]; !ok {
			t.Error("expected the transcript artifact under the report scope")
		}
	})

	t.Run("skips empty threads", func(t *testing.T) {
		t.Parallel()

		storage := &memStorage{}
		persister := crawler.NewPersister(storage, crawler.WithPersisterLogger(discardLogger()))
		step := NewPersistStep(persister, WithPersistLogger(discardLogger()))

		if err := step.Run(context.Background(), newTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if storage.count() != 0 {
			t.Error("expected no artifacts for an empty thread")
		}
	})

	t.Run("nil persister disables the step", func(t *testing.T) {
		t.Parallel()

		step := NewPersistStep(nil, WithPersistLogger(discardLogger()))
		if err := step.Run(context.Background(), stepThreadReport()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestArchiveStep(t *testing.T) {
	t.Parallel()

	t.Run("saves the run", func(t *testing.T) {
		t.Parallel()

		db, err := database.Open(t.TempDir(), database.DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		step := NewArchiveStep(db, WithArchiveLogger(discardLogger()))
		if step.Name() != "archive_run" {
			t.Errorf("unexpected step name %q", step.Name())
		}

		if err := step.Run(context.Background(), stepThreadReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		runs, err := db.ListRuns(context.Background(), database.RunFilter{})
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 {
			t.Fatalf("expected 1 archived run, got %d", len(runs))
		}
		if runs[0].TotalComments != 2 {
			t.Errorf("expected 2 comments in the archived run, got %d", runs[0].TotalComments)
		}
	})

	t.Run("nil database disables the step", func(t *testing.T) {
		t.Parallel()

		step := NewArchiveStep(nil, WithArchiveLogger(discardLogger()))
		if err := step.Run(context.Background(), stepThreadReport()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	api := &stubAPI{page: &lofter.L1Page{NextOffset: lofter.NoMorePages}}
	p := DefaultPipeline(newStepFetcher(api), nil, nil, WithLogger(discardLogger()))

	names := p.StepNames()
	expected := []string{"fetch_comments", "insight", "persist_artifacts", "archive_run"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d steps, got %d", len(expected), len(names))
	}
	for i, name := range names {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}
