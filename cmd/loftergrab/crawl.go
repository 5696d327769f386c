package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"loftergrab/internal/config"
	"loftergrab/internal/crawler"
	"loftergrab/internal/database"
	"loftergrab/internal/lofter"
	"loftergrab/internal/log"
	"loftergrab/internal/model"
	"loftergrab/internal/pipeline"
	"loftergrab/internal/report"
	"loftergrab/internal/storage"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [postId:blogId | url]...",
		Short: "Crawl the comment threads of Lofter posts",
		Long: `Crawl downloads the complete comment thread of one or more Lofter
posts. For each post it fetches every page of first-level comments,
the hot comment list, and the full reply chain behind every
"N replies" stub, then prints a report, writes the JSON and transcript
artifacts, and records the run in the local archive.

Targets are given as postId:blogId pairs or as post URLs carrying the
postId and blogId query parameters.

Examples:
  # Crawl a single post
  loftergrab crawl 1069536298:507745

  # Crawl by URL
  loftergrab crawl "https://www.lofter.com/front/blog/view.do?postId=1069536298&blogId=507745"

  # Crawl several posts into a named scope
  loftergrab crawl --scope novel2024 132:507745 145:507745

  # JSON report to a file, nothing recorded in the archive
  loftergrab crawl --json -o report.json --no-archive 1069536298:507745

  # Comments in arrival order instead of grouped by quote
  loftergrab crawl --ordered 1069536298:507745

Configuration file (.loftergrab) example:
  cookie: "LOFTER-PHONE-LOGIN-AUTH=..."
  blogs:
    "507745":
      maxWorkers: 2
      l2RequestDelayMs: 2000`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd)

	// Report flags are crawl-only; watch always prints the transcript.
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// addCrawlFlags registers the crawl-behavior flags shared by the crawl
// and watch commands.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .loftergrab in current or home directory)")
	cmd.Flags().StringP("scope", "s", config.DefaultScope,
		"Output bucket the persisted artifacts are grouped under")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each API request")
	cmd.Flags().IntP("workers", "w", config.DefaultMaxWorkers,
		"Reply-resolution workers per post")
	cmd.Flags().IntP("batch", "b", config.DefaultBatchSize,
		"Number of posts crawled concurrently")
	cmd.Flags().Bool("ordered", false,
		"Render comments in arrival order instead of grouping by quote")
	cmd.Flags().String("proxy", "",
		"SOCKS5 proxy address for API traffic (host:port)")
	cmd.Flags().String("cookie", "",
		"Authentication cookie for followers-only posts (name=value)")
	cmd.Flags().String("data-dir", "",
		"Directory for comment artifacts (default: lofter_data)")
	cmd.Flags().Bool("no-archive", false,
		"Skip recording runs in the archive database")
	cmd.Flags().Bool("no-artifacts", false,
		"Skip writing the JSON and transcript artifacts")
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	cfg.JSONReport, err = cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	cfg.ReportFile, err = cmd.Flags().GetString("output")
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := lofter.NewClient(cfg, lofter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	return runCrawl(ctx, cfg, client, logger)
}

// buildConfig creates a Config from cobra command flags. It reads only
// the flags registered by addCrawlFlags, so both crawl and watch can
// use it.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()

	var err error

	cfg.Scope, err = cmd.Flags().GetString("scope")
	if err != nil {
		return nil, err
	}

	cfg.Timeout, err = cmd.Flags().GetDuration("timeout")
	if err != nil {
		return nil, err
	}

	cfg.MaxWorkers, err = cmd.Flags().GetInt("workers")
	if err != nil {
		return nil, err
	}

	cfg.BatchSize, err = cmd.Flags().GetInt("batch")
	if err != nil {
		return nil, err
	}

	ordered, err := cmd.Flags().GetBool("ordered")
	if err != nil {
		return nil, err
	}

	cfg.Proxy, err = cmd.Flags().GetString("proxy")
	if err != nil {
		return nil, err
	}

	cfg.Cookie, err = cmd.Flags().GetString("cookie")
	if err != nil {
		return nil, err
	}

	cfg.OutputDir, err = cmd.Flags().GetString("data-dir")
	if err != nil {
		return nil, err
	}

	noArchive, err := cmd.Flags().GetBool("no-archive")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noArchive
	cfg.DBDir = config.XDGDataDir()

	cfg.NoPersist, err = cmd.Flags().GetBool("no-artifacts")
	if err != nil {
		return nil, err
	}

	cfg.ConfigFilePath, err = cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly named config file must exist; the default locations
	// are optional.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	}

	applyFileSettings(cfg)

	// The flag wins over the config file.
	if ordered {
		cfg.GroupByQuote = false
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = config.DefaultOutputDir
	}

	for _, arg := range args {
		target, err := model.ParseTarget(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid target %q: %w", arg, err)
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	return cfg, nil
}

// applyFileSettings copies file-level settings into the config for
// everything the command line did not already set.
func applyFileSettings(cfg *config.Config) {
	if cfg.File == nil {
		return
	}
	if cfg.Cookie == "" {
		cfg.Cookie = cfg.File.Cookie
	}
	if cfg.Proxy == "" {
		cfg.Proxy = cfg.File.Proxy
	}
	cfg.UserAgent = cfg.File.UserAgent
	if cfg.OutputDir == "" {
		cfg.OutputDir = cfg.File.OutputDir
	}
	if cfg.File.GroupByQuote != nil {
		cfg.GroupByQuote = *cfg.File.GroupByQuote
	}
}

// getVerboseFlag reads the verbose flag from the command or its root.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// runCrawl executes the crawl against the given API client. The client
// is passed in so tests can point it at a local server.
func runCrawl(ctx context.Context, cfg *config.Config, client *lofter.Client, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return errors.New("no targets provided (specify one or more postId:blogId pairs or post URLs)")
	}

	logger.Info("starting crawl",
		"targets", len(cfg.Targets),
		"scope", cfg.Scope,
		"batch_size", cfg.BatchSize,
		"archive", cfg.SaveToDB,
	)

	var db *database.ArchiveDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer db.Close()
		logger.Info("archive opened", "dir", cfg.DBDir)
	}

	var persister *crawler.Persister
	if !cfg.NoPersist {
		persister = crawler.NewPersister(storage.NewDir(cfg.OutputDir), crawler.WithPersisterLogger(logger))
	}

	if len(cfg.Targets) > 1 && cfg.BatchSize > 1 {
		return runBatchCrawl(ctx, cfg, client, db, persister, logger)
	}
	return runSequentialCrawl(ctx, cfg, client, db, persister, logger)
}

// newCrawlPipeline assembles the full pipeline for one target.
func newCrawlPipeline(client *lofter.Client, cfg *config.Config, db *database.ArchiveDB, persister *crawler.Persister, logger *slog.Logger) *pipeline.Pipeline {
	fetcher := crawler.NewFetcher(client, crawler.NewFixedDelayPolicy(cfg), cfg, crawler.WithLogger(logger))
	return pipeline.DefaultPipeline(fetcher, persister, db, pipeline.WithLogger(logger))
}

// runSequentialCrawl crawls targets one at a time, applying any
// per-blog overrides from the config file.
func runSequentialCrawl(ctx context.Context, cfg *config.Config, client *lofter.Client, db *database.ArchiveDB, persister *crawler.Persister, logger *slog.Logger) error {
	for _, target := range cfg.Targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		blogCfg := cfg.ForBlog(target.BlogID)

		// A per-blog cookie needs its own client; the other overrides
		// act at the fetcher level.
		targetClient := client
		if blogCfg.Cookie != cfg.Cookie {
			var err error
			targetClient, err = lofter.NewClient(blogCfg,
				lofter.WithBaseURL(client.BaseURL()),
				lofter.WithLogger(logger),
			)
			if err != nil {
				return fmt.Errorf("failed to create API client for blog %s: %w", target.BlogID, err)
			}
		}

		p := newCrawlPipeline(targetClient, blogCfg, db, persister, logger)
		crawlReport := model.NewCrawlReport(target, cfg.Scope)

		fmt.Printf("Crawling post %s (blog %s)...\n", target.PostID, target.BlogID)
		startTime := time.Now()

		if err := p.Execute(ctx, crawlReport); err != nil {
			// The pipeline absorbs step failures into the report, so an
			// Execute error means the crawl was cancelled mid-flight.
			logger.Error("crawl interrupted", "target", target.String(), "error", err)
			if outErr := outputReport(blogCfg, crawlReport); outErr != nil {
				logger.Error("report failed", "target", target.String(), "error", outErr)
			}
			return err
		}

		elapsed := time.Since(startTime)
		fmt.Printf("Crawl completed in %s\n\n", elapsed.Round(time.Millisecond))

		if err := outputReport(blogCfg, crawlReport); err != nil {
			logger.Error("report failed", "target", target.String(), "error", err)
		}
	}

	return nil
}

// runBatchCrawl crawls multiple targets concurrently.
func runBatchCrawl(ctx context.Context, cfg *config.Config, client *lofter.Client, db *database.ArchiveDB, persister *crawler.Persister, logger *slog.Logger) error {
	fmt.Printf("Starting batch crawl of %d posts (concurrency: %d)...\n\n",
		len(cfg.Targets), cfg.BatchSize)

	if cfg.File != nil && len(cfg.File.Blogs) > 0 {
		logger.Warn("per-blog overrides are ignored in batch mode",
			"blog_count", len(cfg.File.Blogs))
		fmt.Fprintf(os.Stderr, "Warning: Per-blog configuration is ignored in batch mode. Use --batch 1 to apply per-blog settings.\n\n")
	}

	startTime := time.Now()

	processor := pipeline.NewBatchProcessor(
		func() *pipeline.Pipeline {
			return newCrawlPipeline(client, cfg, db, persister, logger)
		},
		pipeline.WithConcurrency(cfg.BatchSize),
		pipeline.WithBatchLogger(logger),
	)

	reports, err := processor.ProcessBatch(ctx, cfg.Targets, cfg.Scope)

	for i, crawlReport := range reports {
		if crawlReport == nil {
			// The batch was cancelled before this target started.
			logger.Warn("crawl skipped", "target", cfg.Targets[i].String())
			continue
		}

		fmt.Printf("[%d/%d] %s: %d comments\n",
			i+1, len(reports), crawlReport.Target.String(), len(crawlReport.Thread.All))
		if outErr := outputReport(cfg, crawlReport); outErr != nil {
			logger.Error("report failed", "target", crawlReport.Target.String(), "error", outErr)
		}
	}

	elapsed := time.Since(startTime)
	fmt.Printf("\nBatch crawl completed in %s\n", elapsed.Round(time.Millisecond))

	return err
}

// outputReport writes the crawl report in the requested format, to the
// report file when one is configured and to stdout otherwise.
func outputReport(cfg *config.Config, crawlReport *model.CrawlReport) error {
	var output *os.File
	if cfg.ReportFile != "" && cfg.ReportFile != "-" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// 0600: crawled threads may come from followers-only posts.
		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		output = f
	} else {
		output = os.Stdout
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewTextWriter(output, cfg.GroupByQuote)
	}

	_, err := writer.Write(crawlReport)
	return err
}
