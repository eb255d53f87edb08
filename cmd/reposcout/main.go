// reposcout — asynchronous open-source project search.
//
// A single binary with one sub-command per process role:
//   - worker  consumes search jobs from Redis and publishes results
//   - api     HTTP gateway that submits searches and waits for results
//   - search  submits one search from the command line
//   - migrate applies the audit ledger schema
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"reposcout/search-service/internal/config"
	"reposcout/search-service/internal/logger"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reposcout",
	Short: "Search, rank and describe open-source projects through a Redis job queue",
	Long: `reposcout accepts structured project searches, queues them in Redis and lets
a pool of workers fetch candidates from GitHub, rank them by stars, forks,
freshness and license, and fill in missing descriptions.

Run one or more "reposcout worker" processes next to "reposcout api", or submit
a single search with "reposcout search".`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = c
		log = logger.Setup(cfg.LogLevel).With("version", version)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "optional YAML config file (environment variables take precedence)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
