package report

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"loftergrab/internal/insight"
	"loftergrab/internal/model"
)

// MarkdownWriter outputs reports in Markdown format.
// This format is designed for documentation and sharing.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the full report in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	if report.Stats == nil {
		report.Stats = insight.Analyze(report.Thread)
	}

	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeSummary(md, report)
	w.writeTopLiked(md, report.Stats)
	w.writeLocations(md, report.Stats)
	w.writeHotComments(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Comment Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Post ID", "`" + report.Target.PostID + "`"},
			{"Blog ID", "`" + report.Target.BlogID + "`"},
			{"Scope", report.Scope},
			{"Crawl Date", report.DateCrawled.Format("2006-01-02 15:04:05 MST")},
			{"Pages Fetched", strconv.Itoa(report.PagesFetched)},
			{"Status", w.getStatusText(report)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on report state.
func (w *MarkdownWriter) getStatusText(report *model.CrawlReport) string {
	if report.TimedOut {
		return "⚠️ Cancelled (partial results)"
	}
	if report.ErrorMessage != "" {
		return "❌ Error - " + report.ErrorMessage
	}
	return "✅ Complete"
}

// writeSummary writes the thread summary section.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, report *model.CrawlReport) {
	stats := report.Stats

	md.H2("Thread Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Comments", strconv.Itoa(stats.TotalComments)},
			{"Hot comments", strconv.Itoa(stats.HotComments)},
			{"Replies", strconv.Itoa(stats.TotalReplies)},
			{"Expected replies", strconv.Itoa(stats.ExpectedReplies)},
			{"Reply shortfalls", strconv.Itoa(stats.ReplyShortfalls)},
			{"Quote groups", strconv.Itoa(stats.QuoteClusters)},
			{"**Total likes**", "**" + strconv.Itoa(stats.TotalLikes) + "**"},
		},
	})
	md.PlainText("")

	w.writeAlert(md, report)
}

// writeAlert writes an appropriate alert based on the crawl outcome.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, report *model.CrawlReport) {
	stats := report.Stats

	switch {
	case report.ErrorMessage != "":
		md.Cautionf("The crawl failed: %s", report.ErrorMessage)
	case report.TimedOut:
		md.Warningf(
			"The crawl was cancelled before finishing. Counts cover %d fetched page(s) only.",
			report.PagesFetched,
		)
	case stats.ReplyShortfalls > 0:
		md.Importantf(
			"%d comment(s) resolved fewer replies than the API promised. The gap usually means deleted replies.",
			stats.ReplyShortfalls,
		)
	case stats.TotalComments == 0:
		md.Note("The post has no comments.")
	default:
		md.Tip("Complete thread captured. Every promised reply was resolved.")
	}
	md.PlainText("")
}

// writeTopLiked writes the most-liked comments section.
func (w *MarkdownWriter) writeTopLiked(md *markdown.Markdown, stats *model.Stats) {
	md.H2("Most Liked Comments")
	md.PlainText("")

	if len(stats.TopLiked) == 0 {
		md.PlainText("No comment has any likes.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(stats.TopLiked))
	for i, tc := range stats.TopLiked {
		author := tc.Author
		if author == "" {
			author = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			tableCell(author, 20),
			strconv.Itoa(tc.LikeCount),
			tableCell(tc.Preview, 60),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"Rank", "Author", "Likes", "Content"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeLocations writes the commenter location section with a
// distribution chart.
func (w *MarkdownWriter) writeLocations(md *markdown.Markdown, stats *model.Stats) {
	md.H2("Commenter Locations")
	md.PlainText("")

	if len(stats.IPLocations) == 0 {
		md.PlainText("No location labels were reported.")
		md.PlainText("")
		return
	}

	locations := make([]locationCount, 0, len(stats.IPLocations))
	for label, count := range stats.IPLocations {
		locations = append(locations, locationCount{label: label, count: count})
	}

	// Deterministic order: most comments first, ties alphabetical.
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].count != locations[j].count {
			return locations[i].count > locations[j].count
		}
		return locations[i].label < locations[j].label
	})

	rows := make([][]string, 0, len(locations))
	for _, lc := range locations {
		rows = append(rows, []string{lc.label, strconv.Itoa(lc.count)})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Location", "Comments"},
		Rows:   rows,
	})

	w.writePieChart(md, locations)
}

// locationCount pairs a location label with its comment count.
type locationCount struct {
	label string
	count int
}

// writePieChart writes a mermaid pie chart for the location distribution.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, locations []locationCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Commenter Location Distribution"),
		piechart.WithShowData(true),
	)

	for _, lc := range locations {
		chart.LabelAndIntValue(lc.label, uint64(lc.count))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeHotComments writes the promoted comments section.
func (w *MarkdownWriter) writeHotComments(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Hot Comments")
	md.PlainText("")

	if len(report.Thread.Hot) == 0 {
		md.PlainText("The API promoted no comments on this post.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(report.Thread.Hot))
	for _, c := range report.Thread.Hot {
		author := c.Author.DisplayName
		if author == "" {
			author = "-"
		}
		rows = append(rows, []string{
			c.ID,
			tableCell(author, 20),
			strconv.Itoa(c.LikeCount),
			strconv.Itoa(len(c.Replies)),
			tableCell(c.Content, 60),
		})
	}

	md.Table(markdown.TableSet{
		Header: []string{"ID", "Author", "Likes", "Replies", "Content"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainText("*Report generated by loftergrab*")
}

// tableCell makes text safe for a one-line table cell: newlines
// collapse to spaces, the cut is by rune so CJK content never splits
// mid-character, and pipes are escaped last so the escape pair itself
// cannot be cut.
func tableCell(s string, maxRunes int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) > maxRunes {
		s = string(runes[:maxRunes]) + "..."
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
