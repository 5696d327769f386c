package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/width"

	"loftergrab/internal/config"
	"loftergrab/internal/database"
	"loftergrab/internal/model"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [postId:blogId | url]",
		Short: "Inspect and diff archived crawl runs",
		Long: `History queries the local archive that crawl runs are recorded in.

Without flags it lists the most recent runs, newest first. Give a
target to restrict the listing to one post.

Examples:
  # List recent runs
  loftergrab history

  # List runs for one post
  loftergrab history 1069536298:507745

  # Runs from the last two days
  loftergrab history --since 48h

  # Show the comments recorded in run 12
  loftergrab history --show 12

  # What changed between run 12 and run 17
  loftergrab history --diff 12:17

  # Machine-readable output
  loftergrab history --json --show 12`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().BoolP("list", "l", false,
		"List archived runs (the default action)")
	cmd.Flags().Int64("show", 0,
		"Show the run with this ID, including its comments")
	cmd.Flags().String("diff", "",
		"Diff two runs of the same post, given as oldID:newID")
	cmd.Flags().Duration("since", 0,
		"Only list runs newer than this age (e.g. 48h)")
	cmd.Flags().Int("limit", 20,
		"Maximum number of runs to list")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output in Markdown format")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, args []string) error {
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	markdownOutput, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}

	showID, err := cmd.Flags().GetInt64("show")
	if err != nil {
		return err
	}

	diffSpec, err := cmd.Flags().GetString("diff")
	if err != nil {
		return err
	}

	// Validate the arguments before opening the database.
	var filter database.RunFilter
	if len(args) > 0 {
		target, err := model.ParseTarget(args[0])
		if err != nil {
			return fmt.Errorf("invalid target %q: %w", args[0], err)
		}
		filter.PostID = target.PostID
		filter.BlogID = target.BlogID
	}

	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return err
	}
	if since > 0 {
		filter.Since = time.Now().Add(-since)
	}

	filter.Limit, err = cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	var oldID, newID int64
	if diffSpec != "" {
		oldID, newID, err = parseDiffSpec(diffSpec)
		if err != nil {
			return err
		}
	}

	db, err := database.Open(config.XDGDataDir(), database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open archive database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	switch {
	case showID > 0:
		return showRun(ctx, db, showID, jsonOutput, markdownOutput)
	case diffSpec != "":
		return diffRuns(ctx, db, oldID, newID, jsonOutput, markdownOutput)
	default:
		return listRuns(ctx, db, filter, jsonOutput, markdownOutput)
	}
}

// parseDiffSpec splits an oldID:newID pair.
func parseDiffSpec(spec string) (int64, int64, error) {
	oldPart, newPart, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid diff spec %q (expected oldID:newID)", spec)
	}

	oldID, err := strconv.ParseInt(oldPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run ID %q in diff spec", oldPart)
	}

	newID, err := strconv.ParseInt(newPart, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run ID %q in diff spec", newPart)
	}

	return oldID, newID, nil
}

// listRuns lists archived runs, newest first.
func listRuns(ctx context.Context, db *database.ArchiveDB, filter database.RunFilter, jsonOutput, markdownOutput bool) error {
	runs, err := db.ListRuns(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return encodeJSON(runs)
	}

	if len(runs) == 0 {
		fmt.Println("No archived runs found.")
		fmt.Println("\nUse 'loftergrab crawl <postId:blogId>' to crawl a post.")
		return nil
	}

	if markdownOutput {
		fmt.Println("| ID | Date | Post | Scope | Comments | Status |")
		fmt.Println("|----|------|------|-------|----------|--------|")
		for _, run := range runs {
			fmt.Printf("| %d | %s | %s:%s | %s | %d (%d hot) | %s |\n",
				run.ID, run.CrawledAt.Format("2006-01-02 15:04"),
				run.PostID, run.BlogID, run.Scope,
				run.TotalComments, run.HotComments, runStatus(run))
		}
		return nil
	}

	fmt.Printf("Archived runs (%d):\n\n", len(runs))
	fmt.Printf("  %-6s  %-20s  %-24s  %-10s  %s\n", "ID", "Date", "Post", "Scope", "Comments")
	fmt.Println("  " + strings.Repeat("-", 78))
	for _, run := range runs {
		comments := fmt.Sprintf("%d (%d hot)", run.TotalComments, run.HotComments)
		if status := runStatus(run); status != "ok" {
			comments += " [" + status + "]"
		}
		fmt.Printf("  %-6d  %-20s  %-24s  %-10s  %s\n",
			run.ID,
			run.CrawledAt.Format("2006-01-02 15:04:05"),
			run.PostID+":"+run.BlogID,
			run.Scope,
			comments,
		)
	}
	fmt.Println("\nUse 'loftergrab history --show <id>' to see the comments of a run.")
	fmt.Println("Use 'loftergrab history --diff <oldID>:<newID>' to compare two runs.")

	return nil
}

// runStatus compresses a run's error state into a short marker.
func runStatus(run database.Run) string {
	switch {
	case run.ErrorMessage != "":
		return "failed"
	case run.TimedOut:
		return "partial"
	default:
		return "ok"
	}
}

// showRun prints one archived run with its comments.
func showRun(ctx context.Context, db *database.ArchiveDB, runID int64, jsonOutput, markdownOutput bool) error {
	run, err := db.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load run %d: %w", runID, err)
	}
	if run == nil {
		return fmt.Errorf("run %d not found (use 'loftergrab history' to list runs)", runID)
	}

	comments, err := db.CommentsForRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load comments for run %d: %w", runID, err)
	}

	if jsonOutput {
		return encodeJSON(struct {
			Run      *database.Run            `json:"run"`
			Comments []database.StoredComment `json:"comments"`
		}{run, comments})
	}

	if markdownOutput {
		fmt.Printf("# Run %d\n\n", run.ID)
		fmt.Printf("Post `%s` on blog `%s`, crawled %s.\n\n",
			run.PostID, run.BlogID, run.CrawledAt.Format("2006-01-02 15:04:05"))
		fmt.Println("| ID | Kind | Author | Likes | Content |")
		fmt.Println("|----|------|--------|-------|---------|")
		for _, c := range comments {
			fmt.Printf("| %s | %s | %s | %d | %s |\n",
				c.CommentID, c.Kind, c.Author, c.LikeCount, truncateDisplay(c.Content, 40))
		}
		return nil
	}

	fmt.Printf("Run %d: post %s (blog %s)\n", run.ID, run.PostID, run.BlogID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\nCrawled:    %s\n", run.CrawledAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Scope:      %s\n", run.Scope)
	fmt.Printf("Pages:      %d\n", run.PagesFetched)
	fmt.Printf("Comments:   %d (%d hot, %d replies)\n", run.TotalComments, run.HotComments, run.TotalReplies)
	if run.ReplyShortfalls > 0 {
		fmt.Printf("Shortfalls: %d\n", run.ReplyShortfalls)
	}
	if run.TimedOut {
		fmt.Println("Status:     partial (cancelled mid-crawl)")
	}
	if run.ErrorMessage != "" {
		fmt.Printf("Error:      %s\n", run.ErrorMessage)
	}

	if len(comments) == 0 {
		fmt.Println("\nNo comments recorded for this run.")
		return nil
	}

	fmt.Printf("\nComments (%d):\n", len(comments))
	for _, c := range comments {
		indent := "  "
		if c.Kind == model.KindL2 {
			indent = "      "
		}
		marker := " "
		if c.Hot {
			marker = "*"
		}
		fmt.Printf("%s%s %-12s  %s  %-4d  %s\n",
			indent, marker, c.CommentID,
			padDisplay(c.Author, 16),
			c.LikeCount,
			truncateDisplay(c.Content, 48),
		)
	}

	return nil
}

// diffRuns prints what changed between two archived runs.
func diffRuns(ctx context.Context, db *database.ArchiveDB, oldID, newID int64, jsonOutput, markdownOutput bool) error {
	diff, err := db.DiffRuns(ctx, oldID, newID)
	if err != nil {
		return fmt.Errorf("failed to diff runs: %w", err)
	}

	if jsonOutput {
		return encodeJSON(diff)
	}

	if markdownOutput {
		fmt.Printf("# Run Diff: %d vs %d\n", oldID, newID)
		if len(diff.Added) > 0 {
			fmt.Printf("\n## Added (%d)\n\n", len(diff.Added))
			for _, c := range diff.Added {
				fmt.Printf("- **%s** %s: %s\n", c.CommentID, c.Author, truncateDisplay(c.Content, 60))
			}
		}
		if len(diff.Removed) > 0 {
			fmt.Printf("\n## Removed (%d)\n\n", len(diff.Removed))
			for _, c := range diff.Removed {
				fmt.Printf("- **%s** %s: %s\n", c.CommentID, c.Author, truncateDisplay(c.Content, 60))
			}
		}
		if len(diff.Changed) > 0 {
			fmt.Printf("\n## Changed (%d)\n\n", len(diff.Changed))
			for _, ch := range diff.Changed {
				fmt.Printf("- **%s** %s: %s\n", ch.After.CommentID, ch.After.Author, describeChange(ch))
			}
		}
		if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Changed) == 0 {
			fmt.Println("\nNo differences.")
		}
		return nil
	}

	fmt.Printf("Run diff: %d vs %d\n", oldID, newID)
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\nAdded: %d  Removed: %d  Changed: %d\n",
		len(diff.Added), len(diff.Removed), len(diff.Changed))

	if len(diff.Added) > 0 {
		fmt.Printf("\nAdded (%d):\n", len(diff.Added))
		for _, c := range diff.Added {
			fmt.Printf("  [+] %s %s: %s\n", c.CommentID, c.Author, truncateDisplay(c.Content, 48))
		}
	}
	if len(diff.Removed) > 0 {
		fmt.Printf("\nRemoved (%d):\n", len(diff.Removed))
		for _, c := range diff.Removed {
			fmt.Printf("  [-] %s %s: %s\n", c.CommentID, c.Author, truncateDisplay(c.Content, 48))
		}
	}
	if len(diff.Changed) > 0 {
		fmt.Printf("\nChanged (%d):\n", len(diff.Changed))
		for _, ch := range diff.Changed {
			fmt.Printf("  [~] %s %s: %s\n", ch.After.CommentID, ch.After.Author, describeChange(ch))
		}
	}
	if len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Changed) == 0 {
		fmt.Println("\nNo differences.")
	}

	return nil
}

// describeChange summarizes what differs between the two stored states
// of a comment.
func describeChange(ch database.CommentChange) string {
	var parts []string
	if ch.Before.Content != ch.After.Content {
		parts = append(parts, "content edited")
	}
	if ch.Before.LikeCount != ch.After.LikeCount {
		parts = append(parts, fmt.Sprintf("likes %d -> %d", ch.Before.LikeCount, ch.After.LikeCount))
	}
	return strings.Join(parts, ", ")
}

// encodeJSON writes v to stdout as indented JSON.
func encodeJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// displayWidth returns the number of terminal cells s occupies. East
// Asian wide and fullwidth runes take two cells; everything else one.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		w += runeWidth(r)
	}
	return w
}

func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// padDisplay pads s with spaces to the given display width. CJK text
// breaks %-*s alignment because Printf counts runes, not cells.
func padDisplay(s string, cells int) string {
	w := displayWidth(s)
	if w >= cells {
		return s
	}
	return s + strings.Repeat(" ", cells-w)
}

// truncateDisplay flattens s to one line and shortens it to at most the
// given display width, appending "..." when anything was cut.
func truncateDisplay(s string, cells int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if displayWidth(s) <= cells {
		return s
	}

	w := 0
	var b strings.Builder
	for _, r := range s {
		rw := runeWidth(r)
		if w+rw > cells-3 {
			break
		}
		w += rw
		b.WriteRune(r)
	}
	return b.String() + "..."
}
