package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "securecheck",
	Short: "securecheck - message inspection rules engine",
	Long: `securecheck classifies conversational messages against a library of
threat rules and reports the action to take for each match.

It provides:
  - Staged matching: keywords, regular expressions, semantic similarity
  - A stateful flag machine for recognizing multi-message attacks
  - Threshold/window gating for rate-limited rules
  - Durable conversation state via SQLite or Redis
  - An HTTP backend for proxy plugins and test harnesses`,
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
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
