// Package cli implements the harvester command line.
package cli

import (
	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest job posting details from a durable work queue",
	Long: `harvester keeps a durable queue of job posting URLs, fetches each posting
with retries, stores the raw page and a readable summary, and removes the URL
only after every sink accepted it. Configuration comes from the environment
and an optional .env file.`,
	SilenceUsage: true,
}

// Execute runs the root command. A non-nil error means the process should
// exit with status 1.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging (overrides LOG_LEVEL)")
}
