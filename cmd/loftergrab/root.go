package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for loftergrab.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loftergrab",
		Short: "Comment crawler for Lofter posts",
		Long: `loftergrab downloads the complete comment thread of Lofter posts,
including the hot comment list and the full reply chain behind every
"N replies" stub.

Crawled threads are printed as a formatted transcript, persisted as
JSON and text artifacts, and recorded in a local archive so later
crawls of the same post can be compared.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
