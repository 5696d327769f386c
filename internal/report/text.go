package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"

	"loftergrab/internal/model"
)

// entryIndent is one indentation level in the text layout.
const entryIndent = "    "

// TextFormatter renders a thread in the canonical plain-text layout:
// a [Hot Comments] section followed by an [All Comments] section, each
// formatted by the same list rule.
//
// Design decision: Rendering is a pure string function separate from
// TextWriter because:
//  1. The same layout is returned by the processor facade and written
//     to the terminal, with no I/O in the common path
//  2. Determinism is testable on bytes without an io.Writer in the way
//  3. A formatter value pins the mode once instead of threading a flag
type TextFormatter struct {
	// groupByQuote selects grouped mode. In grouped mode comments are
	// bucketed by their quote text; in ordered mode they print in
	// page-arrival order with the quote inlined into the header.
	groupByQuote bool
}

// NewTextFormatter creates a formatter in the given mode.
func NewTextFormatter(groupByQuote bool) *TextFormatter {
	return &TextFormatter{groupByQuote: groupByQuote}
}

// Render produces the report text for one thread. The same thread
// always renders to the same bytes.
func (f *TextFormatter) Render(thread model.Thread) string {
	var sb strings.Builder

	sb.WriteString("[Hot Comments]\n")
	f.renderList(&sb, thread.Hot)
	sb.WriteString("\n[All Comments]\n")
	f.renderList(&sb, thread.All)

	return sb.String()
}

func (f *TextFormatter) renderList(sb *strings.Builder, comments []model.Comment) {
	if f.groupByQuote {
		f.renderGrouped(sb, comments)
		return
	}
	f.renderOrdered(sb, comments)
}

// renderGrouped prints quote buckets in first-seen order, then the
// comments without a quote. The comment index restarts in every bucket.
func (f *TextFormatter) renderGrouped(sb *strings.Builder, comments []model.Comment) {
	keys, buckets, unquoted := groupByQuote(comments)

	for _, key := range keys {
		fmt.Fprintf(sb, "----------(%s)----------\n", key)
		for idx, c := range buckets[key] {
			fmt.Fprintf(sb, "---------- (L0-%d)\n", idx+1)
			writeEntry(sb, c)
			writeReplies(sb, c.Replies)
			sb.WriteString("\n")
		}
	}

	for idx, c := range unquoted {
		fmt.Fprintf(sb, "---------- (L0-%d)\n", idx+1)
		writeEntry(sb, c)
		writeReplies(sb, c.Replies)
		sb.WriteString("\n")
	}
}

// renderOrdered prints comments in page-arrival order with a global
// index. A quoted comment carries its quote inline in the header line,
// verbatim as the API sent it.
func (f *TextFormatter) renderOrdered(sb *strings.Builder, comments []model.Comment) {
	for idx, c := range comments {
		if c.Quote != "" {
			fmt.Fprintf(sb, "----------(%s)---------- (L0-%d)\n", c.Quote, idx+1)
		} else {
			fmt.Fprintf(sb, "---------- (L0-%d)\n", idx+1)
		}
		writeEntry(sb, c)
		writeReplies(sb, c.Replies)
		sb.WriteString("\n")
	}
}

// groupByQuote partitions comments into buckets keyed by the trimmed,
// NFC-normalized quote text, in first-seen order, plus the comments
// with no quote. NFC folding keeps visually identical quotes that
// arrive in different composition forms in one bucket.
func groupByQuote(comments []model.Comment) ([]string, map[string][]model.Comment, []model.Comment) {
	var keys []string
	buckets := make(map[string][]model.Comment)
	var unquoted []model.Comment

	for _, c := range comments {
		key := norm.NFC.String(strings.TrimSpace(c.Quote))
		if key == "" {
			unquoted = append(unquoted, c)
			continue
		}
		if _, ok := buckets[key]; !ok {
			keys = append(keys, key)
		}
		buckets[key] = append(buckets[key], c)
	}

	return keys, buckets, unquoted
}

// writeEntry renders one comment's fields. An empty content still gets
// its line; entries are never silently dropped.
func writeEntry(sb *strings.Builder, c model.Comment) {
	author := c.Author.DisplayName
	if author == "" {
		author = "Unknown"
	}

	sb.WriteString("----------\n")
	fmt.Fprintf(sb, "Author: %s\n", author)
	fmt.Fprintf(sb, "Content: %s\n", c.Content)
	fmt.Fprintf(sb, "Time: %s\n", c.PublishedAt)
	fmt.Fprintf(sb, "Likes: %d\n", c.LikeCount)
	if c.IPLocation != "" {
		fmt.Fprintf(sb, "IP: %s\n", c.IPLocation)
	}
}

// writeReplies renders the reply block one indent level deeper than the
// parent. Replies carry no IP line. A blank line follows every reply.
func writeReplies(sb *strings.Builder, replies []model.Comment) {
	if len(replies) == 0 {
		return
	}

	const indent = entryIndent
	const fieldIndent = entryIndent + entryIndent

	fmt.Fprintf(sb, "%s---Replies---\n", indent)
	for idx, r := range replies {
		author := r.Author.DisplayName
		if author == "" {
			author = "Unknown"
		}

		fmt.Fprintf(sb, "%s---------- (L2-%d)\n", indent, idx+1)
		fmt.Fprintf(sb, "%sAuthor: %s\n", fieldIndent, author)
		fmt.Fprintf(sb, "%sContent: %s\n", fieldIndent, r.Content)
		fmt.Fprintf(sb, "%sTime: %s\n", fieldIndent, r.PublishedAt)
		fmt.Fprintf(sb, "%sLikes: %d\n", fieldIndent, r.LikeCount)
		sb.WriteString("\n")
	}
}

// TextWriter outputs the rendered thread as plain text.
// This is the terminal-facing format.
type TextWriter struct {
	baseWriter

	formatter *TextFormatter
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, groupByQuote bool) *TextWriter {
	return &TextWriter{
		baseWriter: newBaseWriter(output),
		formatter:  NewTextFormatter(groupByQuote),
	}
}

// Write renders the report's thread and writes it to the output.
func (w *TextWriter) Write(report *model.CrawlReport) (int, error) {
	return w.output.Write([]byte(w.formatter.Render(report.Thread)))
}
