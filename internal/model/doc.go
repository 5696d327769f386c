// Package model defines the core data structures for loftergrab.
// It contains the canonical comment record, the aggregated thread result,
// crawl targets, and the crawl report produced by the pipeline.
package model
