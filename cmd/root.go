// Package cmd contains the compass CLI commands.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/forexcompass/compass/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "compass",
	Short: "Forex Compass - a forex education agent",
	Long: `Forex Compass answers forex education questions over the A2A protocol,
grounding its answers in a PostgreSQL knowledge base of scraped lessons
and market news.

  compass serve    start the agent HTTP server
  compass worker   start the ingestion worker
  compass version  show version information`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the process logger. DEBUG in the environment switches
// to debug level; logs go to stderr as JSON.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level, JSON: true})
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newVersionCmd())
}
