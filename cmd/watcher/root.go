package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	// Version is the current version number.
	Version = "0.1.0"
)

var (
	cfgFile string
	debug   bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "watcher",
	Short: "Bulletin processing engine",
	Long: `watcher ingests scanned government bulletins, drives them through
an extraction, cleaning, chunking, enrichment and indexing pipeline,
and orchestrates analysis workflows over the results.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress startup output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
