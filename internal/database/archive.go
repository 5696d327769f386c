package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"loftergrab/internal/model"
)

// ErrRunNotFound is returned when a referenced run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// ArchiveDB provides SQLite-based storage for crawl runs.
// It manages connection pooling and provides methods for saving and
// querying archived runs.
//
// Design decision: We use one database file for all blogs and posts
// rather than one file per scope. This keeps cross-post queries (list
// everything crawled today) cheap and makes backup a single-file copy.
type ArchiveDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures ArchiveDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates an ArchiveDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*ArchiveDB, error) {
	dbPath := filepath.Join(dbDir, "loftergrab.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string. mode=rw prevents creating
	// new files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer. Runs are saved one at a time
	// even when the crawl itself fans out, so a single connection is
	// enough and sidesteps SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &ArchiveDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *ArchiveDB) Close() error {
	return adb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (adb *ArchiveDB) createTables() error {
	schema := `
	-- Crawl runs store one row per completed fetch of a post
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id TEXT NOT NULL,
		blog_id TEXT NOT NULL,
		scope TEXT,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		pages_fetched INTEGER DEFAULT 0,
		total_comments INTEGER DEFAULT 0,
		hot_comments INTEGER DEFAULT 0,
		total_replies INTEGER DEFAULT 0,
		reply_shortfalls INTEGER DEFAULT 0,
		timed_out INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target ON crawl_runs(post_id, blog_id);
	CREATE INDEX IF NOT EXISTS idx_runs_crawled_at ON crawl_runs(crawled_at);

	-- Comments store the flattened thread of a run, replies included
	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		comment_id TEXT NOT NULL,
		parent_id TEXT,
		kind TEXT NOT NULL,
		hot INTEGER DEFAULT 0,
		author TEXT,
		content TEXT,
		like_count INTEGER DEFAULT 0,
		published_at TEXT,
		quote TEXT,
		ip_location TEXT,
		UNIQUE(run_id, comment_id)
	);

	CREATE INDEX IF NOT EXISTS idx_comments_run ON comments(run_id);
	CREATE INDEX IF NOT EXISTS idx_comments_id ON comments(comment_id);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// Run is one archived crawl of a post.
type Run struct {
	ID              int64     `json:"id"`
	PostID          string    `json:"post_id"`
	BlogID          string    `json:"blog_id"`
	Scope           string    `json:"scope"`
	CrawledAt       time.Time `json:"crawled_at"`
	PagesFetched    int       `json:"pages_fetched"`
	TotalComments   int       `json:"total_comments"`
	HotComments     int       `json:"hot_comments"`
	TotalReplies    int       `json:"total_replies"`
	ReplyShortfalls int       `json:"reply_shortfalls"`
	TimedOut        bool      `json:"timed_out"`
	ErrorMessage    string    `json:"error_message,omitempty"`
}

// StoredComment is one flattened comment row of a run. L1 comments have
// an empty ParentID; replies carry their L1 parent's id.
type StoredComment struct {
	RunID       int64      `json:"run_id"`
	CommentID   string     `json:"comment_id"`
	ParentID    string     `json:"parent_id,omitempty"`
	Kind        model.Kind `json:"kind"`
	Hot         bool       `json:"hot,omitempty"`
	Author      string     `json:"author"`
	Content     string     `json:"content"`
	LikeCount   int        `json:"like_count"`
	PublishedAt string     `json:"published_at,omitempty"`
	Quote       string     `json:"quote,omitempty"`
	IPLocation  string     `json:"ip_location,omitempty"`
}

// SaveRun archives one finished crawl: a run row plus one comment row
// per comment and reply in the thread. Returns the new run id.
func (adb *ArchiveDB) SaveRun(ctx context.Context, report *model.CrawlReport) (int64, error) {
	tx, err := adb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (post_id, blog_id, scope, pages_fetched, total_comments, hot_comments, total_replies, reply_shortfalls, timed_out, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Target.PostID,
		report.Target.BlogID,
		report.Scope,
		report.PagesFetched,
		len(report.Thread.All),
		len(report.Thread.Hot),
		report.Thread.ReplyCount(),
		report.ReplyShortfalls,
		report.TimedOut,
		report.ErrorMessage,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	// OR IGNORE keeps the first row if the API ever hands back the same
	// comment id twice across parents.
	stmt, err := tx.PrepareContext(ctx, `
	INSERT OR IGNORE INTO comments (run_id, comment_id, parent_id, kind, hot, author, content, like_count, published_at, quote, ip_location)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare comment insert: %w", err)
	}
	defer stmt.Close()

	insert := func(c model.Comment, parentID string) error {
		_, err := stmt.ExecContext(ctx,
			runID,
			c.ID,
			parentID,
			string(c.Kind),
			c.Hot,
			c.Author.DisplayName,
			c.Content,
			c.LikeCount,
			c.PublishedAt,
			c.Quote,
			c.IPLocation,
		)
		return err
	}

	// The hot list repeats entries from All, so only All is flattened.
	// The hot flag on each row preserves the promotion.
	for _, c := range report.Thread.All {
		if err := insert(c, ""); err != nil {
			return 0, fmt.Errorf("failed to insert comment %s: %w", c.ID, err)
		}
		for _, r := range c.Replies {
			if err := insert(r, c.ID); err != nil {
				return 0, fmt.Errorf("failed to insert reply %s: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit run: %w", err)
	}

	return runID, nil
}

// GetRun retrieves one archived run by id. Returns nil without an error
// when the id does not exist.
func (adb *ArchiveDB) GetRun(ctx context.Context, id int64) (*Run, error) {
	query := `
	SELECT id, post_id, blog_id, scope, crawled_at, pages_fetched, total_comments, hot_comments, total_replies, reply_shortfalls, timed_out, error
	FROM crawl_runs
	WHERE id = ?
	`

	var run Run
	var crawledAt string
	var errorMessage sql.NullString
	var scope sql.NullString

	err := adb.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.PostID,
		&run.BlogID,
		&scope,
		&crawledAt,
		&run.PagesFetched,
		&run.TotalComments,
		&run.HotComments,
		&run.TotalReplies,
		&run.ReplyShortfalls,
		&run.TimedOut,
		&errorMessage,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	run.CrawledAt = parseTimestamp(crawledAt)
	run.Scope = scope.String
	run.ErrorMessage = errorMessage.String

	return &run, nil
}

// RunFilter narrows a ListRuns query. The zero value lists everything.
type RunFilter struct {
	// PostID and BlogID restrict the listing to one post when both are
	// set. Setting only one of them is treated as no target filter.
	PostID string
	BlogID string

	// Since keeps only runs crawled at or after this instant.
	Since time.Time

	// Limit caps the number of returned runs. Zero means no cap.
	Limit int
}

// ListRuns returns archived runs, newest first.
func (adb *ArchiveDB) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `
	SELECT id, post_id, blog_id, scope, crawled_at, pages_fetched, total_comments, hot_comments, total_replies, reply_shortfalls, timed_out, error
	FROM crawl_runs
	WHERE 1=1
	`
	args := make([]interface{}, 0)

	if filter.PostID != "" && filter.BlogID != "" {
		query += " AND post_id = ? AND blog_id = ?"
		args = append(args, filter.PostID, filter.BlogID)
	}
	if !filter.Since.IsZero() {
		// CURRENT_TIMESTAMP stores UTC, so the bound must be UTC too.
		query += " AND crawled_at >= ?"
		args = append(args, filter.Since.UTC().Format("2006-01-02 15:04:05"))
	}

	query += " ORDER BY crawled_at DESC, id DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := adb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var run Run
		var crawledAt string
		var errorMessage sql.NullString
		var scope sql.NullString

		err := rows.Scan(
			&run.ID,
			&run.PostID,
			&run.BlogID,
			&scope,
			&crawledAt,
			&run.PagesFetched,
			&run.TotalComments,
			&run.HotComments,
			&run.TotalReplies,
			&run.ReplyShortfalls,
			&run.TimedOut,
			&errorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		run.CrawledAt = parseTimestamp(crawledAt)
		run.Scope = scope.String
		run.ErrorMessage = errorMessage.String
		results = append(results, run)
	}

	return results, rows.Err()
}

// CommentsForRun returns the flattened comments of one run in their
// stored order: page order for L1 comments, each one directly followed
// by its replies.
func (adb *ArchiveDB) CommentsForRun(ctx context.Context, runID int64) ([]StoredComment, error) {
	query := `
	SELECT run_id, comment_id, parent_id, kind, hot, author, content, like_count, published_at, quote, ip_location
	FROM comments
	WHERE run_id = ?
	ORDER BY id
	`

	rows, err := adb.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var results []StoredComment
	for rows.Next() {
		var c StoredComment
		var kind string
		var parentID, author, content, publishedAt, quote, ipLocation sql.NullString

		err := rows.Scan(
			&c.RunID,
			&c.CommentID,
			&parentID,
			&kind,
			&c.Hot,
			&author,
			&content,
			&c.LikeCount,
			&publishedAt,
			&quote,
			&ipLocation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}

		c.Kind = model.Kind(kind)
		c.ParentID = parentID.String
		c.Author = author.String
		c.Content = content.String
		c.PublishedAt = publishedAt.String
		c.Quote = quote.String
		c.IPLocation = ipLocation.String
		results = append(results, c)
	}

	return results, rows.Err()
}

// CommentChange pairs the stored states of one comment across two runs.
type CommentChange struct {
	Before StoredComment `json:"before"`
	After  StoredComment `json:"after"`
}

// RunDiff describes how a thread changed between two archived runs.
type RunDiff struct {
	// Added holds comments present in the newer run only.
	Added []StoredComment `json:"added"`

	// Removed holds comments present in the older run only. On Lofter
	// these are almost always deletions.
	Removed []StoredComment `json:"removed"`

	// Changed holds comments present in both runs whose content or like
	// count differs.
	Changed []CommentChange `json:"changed"`
}

// DiffRuns compares the comment rows of two runs, conventionally an
// older and a newer crawl of the same post.
func (adb *ArchiveDB) DiffRuns(ctx context.Context, oldID, newID int64) (*RunDiff, error) {
	for _, id := range []int64{oldID, newID} {
		run, err := adb.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
		}
	}

	oldComments, err := adb.CommentsForRun(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newComments, err := adb.CommentsForRun(ctx, newID)
	if err != nil {
		return nil, err
	}

	oldByID := make(map[string]StoredComment, len(oldComments))
	for _, c := range oldComments {
		oldByID[c.CommentID] = c
	}

	diff := &RunDiff{}
	seen := make(map[string]bool, len(newComments))
	for _, c := range newComments {
		seen[c.CommentID] = true
		before, ok := oldByID[c.CommentID]
		if !ok {
			diff.Added = append(diff.Added, c)
			continue
		}
		if before.Content != c.Content || before.LikeCount != c.LikeCount {
			diff.Changed = append(diff.Changed, CommentChange{Before: before, After: c})
		}
	}
	for _, c := range oldComments {
		if !seen[c.CommentID] {
			diff.Removed = append(diff.Removed, c)
		}
	}

	return diff, nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	time.RFC3339,              // Full RFC3339 format
	time.RFC3339Nano,          // RFC3339 with nanoseconds
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple
// formats, because SQLite may return timestamps in different formats
// depending on configuration. Returns zero time when nothing matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
