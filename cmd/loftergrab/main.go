// Package main provides the entry point for the loftergrab CLI.
//
// loftergrab downloads the complete comment thread of Lofter posts
// through the mobile API: every page of first-level comments, the hot
// comment list, and the full reply chain behind every "N replies" stub.
//
// Usage:
//
//	loftergrab crawl 1069536298:507745
//	loftergrab crawl --scope novel2024 <url>...
//	loftergrab history --diff 12:17
//	loftergrab watch --schedule 07:30 1069536298:507745
//
// See --help for all available options.
package main

// main is the entry point for loftergrab.
func main() {
	Execute()
}
