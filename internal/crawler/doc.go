// Package crawler retrieves the complete comment tree of a Lofter post.
//
// # Architecture
//
// The package is built around the Fetcher type, which pages through a
// post's top-level comments, resolves each comment's replies with a
// bounded worker pool, and assembles everything into a model.Thread.
// The Processor type composes fetching with formatting and persistence
// into the single operation callers use day to day.
//
// # Components
//
//   - Fetcher: pagination, deduplication, concurrent reply resolution,
//     retry policy
//   - Processor: fetch + persist + render facade
//   - Persister: writes the structured thread and a line transcript
//   - DelayPolicy: the pacing hook invoked before rate-limited requests
//
// # Failure model
//
// Nothing in this package fails loudly. Transport and API errors are
// retried, then degrade to the smallest safe unit: a comment without
// replies, or an empty thread for the whole fetch. Callers see an empty
// result, never an error, and cannot distinguish "the post has no
// comments" from "the fetch failed"; the log carries the difference.
//
// # Politeness
//
// The Lofter comment endpoints rate-limit aggressively. All pacing goes
// through the DelayPolicy hook:
//   - a short pause between comment pages
//   - a longer pause before every reply-batch request
//
// # Usage
//
//	client, _ := lofter.NewClient(cfg)
//	fetcher := crawler.NewFetcher(client, crawler.NewFixedDelayPolicy(cfg), cfg)
//	result := fetcher.FetchAll(ctx, target)
package crawler
