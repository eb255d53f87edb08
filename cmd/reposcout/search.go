package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"reposcout/search-service/internal/jobstatus"
	"reposcout/search-service/internal/model"
	"reposcout/search-service/internal/queue"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Submit one project search and print the result envelope",
	Long: `search enqueues a single job and waits for a running worker to publish its
result. The envelope is written to stdout as JSON. A search that ends in the
error state still prints its envelope and exits non-zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		topic, _ := flags.GetString("topic")
		language, _ := flags.GetString("language")
		maintained, _ := flags.GetBool("maintained")
		limit, _ := flags.GetInt("limit")
		timeout, _ := flags.GetDuration("timeout")
		if timeout <= 0 {
			timeout = cfg.AwaitTimeout
		}

		filters := model.SearchFilters{
			Topic:          topic,
			Language:       language,
			OnlyMaintained: maintained,
			Limit:          limit,
		}
		if flags.Changed("min-stars") {
			minStars, _ := flags.GetInt("min-stars")
			filters.MinStars = &minStars
		}

		rdb, err := connectRedis(cmd.Context())
		if err != nil {
			return err
		}
		defer rdb.Close()

		result, err := newQueue(rdb).Submit(cmd.Context(), filters, timeout)
		if errors.Is(err, queue.ErrTimeout) {
			return fmt.Errorf("%w; is a worker running?", err)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
		if result.Status == jobstatus.StatusError {
			return fmt.Errorf("search failed: %s", result.Error)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("topic", "", "free-text topic to search for (required)")
	searchCmd.Flags().String("language", "", "restrict to a primary language, e.g. Go")
	searchCmd.Flags().Int("min-stars", 0, "minimum star count")
	searchCmd.Flags().Bool("maintained", false, "only projects pushed to within the maintenance window")
	searchCmd.Flags().Int("limit", model.DefaultLimit, fmt.Sprintf("number of projects to return (1-%d)", model.MaxLimit))
	searchCmd.Flags().Duration("timeout", 0, "how long to wait for the result (default AWAIT_TIMEOUT)")
	_ = searchCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(searchCmd)
}
