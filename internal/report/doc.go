// Package report renders crawled comment threads for output.
//
// This package contains writers for different output formats:
//   - TextWriter: the canonical plain-text thread layout for terminal
//     display, in grouped-by-quote or original order
//   - JSONWriter: structured JSON output for tool integration
//   - MarkdownWriter: a summary document for sharing
//
// It also holds the two pure renderers the writers and the persister
// build on: TextFormatter for the full thread layout and Transcript for
// the lossy id/content listing.
//
// Design decision: We separate report writing from report data
// structures (which are in the model package) to follow the single
// responsibility principle. This allows adding new output formats
// without modifying the core data structures.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
