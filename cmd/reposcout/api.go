package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reposcout/search-service/internal/gateway"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Serve the HTTP search gateway",
	Long: `api serves POST /search, GET /jobs/{id}/status and GET /health on API_PORT.
A search is enqueued and the request waits up to AWAIT_TIMEOUT for the
worker's result; on timeout it answers 504 with the job id so the caller can
poll the status route.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rdb, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()

		var history gateway.History
		store, pool := openAudit(ctx)
		if pool != nil {
			defer pool.Close()
			history = store
		}

		h := gateway.NewHandler(newQueue(rdb), history, cfg.AwaitTimeout, version, log)
		srv := &http.Server{
			Addr:        fmt.Sprintf(":%d", cfg.APIPort),
			Handler:     h.Routes(),
			ReadTimeout: 10 * time.Second,
			// a search holds the response for up to the await timeout
			WriteTimeout: cfg.AwaitTimeout + 10*time.Second,
		}
		serveHTTP(srv, stop)

		<-ctx.Done()
		log.Info("shutting down…")
		shutdownHTTP(srv)
		log.Info("stopped.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)
}
