package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"loftergrab/internal/config"
	"loftergrab/internal/crawler"
	"loftergrab/internal/database"
	"loftergrab/internal/lofter"
	"loftergrab/internal/log"
	"loftergrab/internal/report"
	"loftergrab/internal/storage"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [postId:blogId | url]...",
		Short: "Re-crawl posts on a schedule",
		Long: `Watch crawls the given posts on a schedule and keeps running until
interrupted. Each tick runs the same fetch, artifact and archive path
as the crawl command, so the archive accumulates a run history that
the history command can diff.

The schedule is a standard cron expression or an HH:MM daily
shorthand.

Examples:
  # Crawl every hour
  loftergrab watch 1069536298:507745

  # Crawl daily at 07:30
  loftergrab watch --schedule 07:30 1069536298:507745

  # Cron expression: every 15 minutes
  loftergrab watch --schedule "*/15 * * * *" 1069536298:507745`,
		Args: cobra.ArbitraryArgs,
		RunE: runWatchCmd,
	}

	addCrawlFlags(cmd)
	cmd.Flags().String("schedule", "@hourly",
		"Crawl schedule: cron expression or HH:MM daily shorthand")
	cmd.Flags().Bool("log-json", false,
		"Write logs as JSON, for runs whose stderr goes to a file")

	return cmd
}

// dailyShorthand matches the HH:MM schedule form.
var dailyShorthand = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// parseSchedule turns the schedule flag into a cron spec. The HH:MM
// shorthand becomes a daily cron entry; anything else must parse as a
// standard cron expression.
func parseSchedule(s string) (string, error) {
	if m := dailyShorthand.FindStringSubmatch(s); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return "", fmt.Errorf("invalid daily schedule %q", s)
		}
		return fmt.Sprintf("%d %d * * *", minute, hour), nil
	}

	if _, err := cron.ParseStandard(s); err != nil {
		return "", fmt.Errorf("invalid schedule %q: %w", s, err)
	}
	return s, nil
}

// runWatchCmd executes the watch command.
func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	schedule, err := cmd.Flags().GetString("schedule")
	if err != nil {
		return err
	}

	spec, err := parseSchedule(schedule)
	if err != nil {
		return err
	}

	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return err
	}

	cfg.Verbose = getVerboseFlag(cmd)
	logger := log.NewSecureLogger(os.Stderr, cfg.Verbose)
	if logJSON {
		logger = log.NewSecureJSONLogger(os.Stderr, cfg.Verbose)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := lofter.NewClient(cfg, lofter.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	return runWatch(ctx, cfg, client, spec, logger)
}

// runWatch crawls the targets once right away and then on every
// schedule tick, until the context is cancelled.
func runWatch(ctx context.Context, cfg *config.Config, client *lofter.Client, spec string, logger *slog.Logger) error {
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("no targets provided (specify one or more postId:blogId pairs or post URLs)")
	}

	var db *database.ArchiveDB
	if cfg.SaveToDB {
		var err error
		db, err = database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer db.Close()
	}

	processors, err := buildWatchProcessors(cfg, client, db, logger)
	if err != nil {
		return err
	}

	tick := func() {
		for i, target := range cfg.Targets {
			if ctx.Err() != nil {
				return
			}
			text := processors[i].ProcessComments(ctx, target, cfg.Scope)
			if text == "" {
				continue
			}
			fmt.Print(text)
		}
	}

	logger.Info("watch started",
		"targets", len(cfg.Targets),
		"schedule", spec,
		"archive", cfg.SaveToDB,
	)

	// First crawl right away; the schedule only covers repeats.
	tick()

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})))
	if _, err := c.AddFunc(spec, tick); err != nil {
		return fmt.Errorf("failed to schedule crawl: %w", err)
	}
	c.Start()

	<-ctx.Done()
	logger.Info("shutting down, waiting for the running crawl to finish")

	// Stop's context resolves once in-flight jobs have drained.
	<-c.Stop().Done()
	return nil
}

// buildWatchProcessors assembles one processor per target, applying any
// per-blog overrides from the config file.
func buildWatchProcessors(cfg *config.Config, client *lofter.Client, db *database.ArchiveDB, logger *slog.Logger) ([]*crawler.Processor, error) {
	var persister *crawler.Persister
	if !cfg.NoPersist {
		persister = crawler.NewPersister(storage.NewDir(cfg.OutputDir), crawler.WithPersisterLogger(logger))
	}

	processors := make([]*crawler.Processor, 0, len(cfg.Targets))
	for _, target := range cfg.Targets {
		blogCfg := cfg.ForBlog(target.BlogID)

		targetClient := client
		if blogCfg.Cookie != cfg.Cookie {
			var err error
			targetClient, err = lofter.NewClient(blogCfg,
				lofter.WithBaseURL(client.BaseURL()),
				lofter.WithLogger(logger),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create API client for blog %s: %w", target.BlogID, err)
			}
		}

		fetcher := crawler.NewFetcher(targetClient, crawler.NewFixedDelayPolicy(blogCfg), blogCfg, crawler.WithLogger(logger))

		opts := []crawler.ProcessorOption{crawler.WithProcessorLogger(logger)}
		if persister != nil {
			opts = append(opts, crawler.WithPersister(persister))
		}
		if db != nil {
			opts = append(opts, crawler.WithArchive(db))
		}

		processors = append(processors,
			crawler.NewProcessor(fetcher, report.NewTextFormatter(blogCfg.GroupByQuote), opts...))
	}

	return processors, nil
}

// cronLogger adapts slog to the cron logger interface. Scheduler
// chatter goes to debug; only real errors surface by default.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
