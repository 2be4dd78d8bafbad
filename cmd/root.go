package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tripweave/orchestrator/pkg/logger"
)

// Version is the current release.
const Version = "0.1.0"

var (
	cfgFile  string
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:   "tripweave",
	Short: "Agent orchestration core for travel planning",
	Long: `tripweave coordinates specialized travel-planning workers: it builds
a task graph per trip request, dispatches searches across registered
workers, resolves conflicts among the results and escalates what it
cannot resolve to a human before assembling the final itinerary.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if logLevel != "" {
			logger.SetLevelFromString(logLevel)
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
