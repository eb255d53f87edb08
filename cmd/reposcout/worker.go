package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"reposcout/search-service/internal/enrich"
	"reposcout/search-service/internal/grpcserver"
	"reposcout/search-service/internal/pipeline"
	"reposcout/search-service/internal/scheduler"
	"reposcout/search-service/internal/source"
	"reposcout/search-service/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume search jobs from Redis and publish results",
	Long: `worker pops jobs from the shared request list, runs the search pipeline for
each one and publishes exactly one result envelope per job. Run several
worker processes to scale out; each job is delivered to exactly one of them.

The worker also serves HTTP /health on HEALTH_PORT and the gRPC health
protocol on GRPC_PORT, driven by a periodic Redis ping.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rdb, err := connectRedis(ctx)
		if err != nil {
			return err
		}
		defer rdb.Close()

		store, pool := openAudit(ctx)
		if pool != nil {
			defer pool.Close()
		}

		src := source.NewGitHubClient(source.Config{
			BaseURL:          cfg.GitHubAPIURL,
			Token:            cfg.GitHubToken,
			MaintainedMonths: cfg.MaintainedWindowMonths,
			UserAgent:        "reposcout/" + version,
			Timeout:          cfg.HTTPTimeout,
		})
		if cfg.GitHubToken == "" {
			log.Warn("GITHUB_TOKEN not set — unauthenticated search limits apply")
		}
		enr := enrich.NewTavilyClient(enrich.Config{
			BaseURL:     cfg.TavilyAPIURL,
			APIKey:      cfg.TavilyAPIKey,
			MaxResults:  cfg.EnrichMaxResults,
			Concurrency: cfg.EnrichConcurrency,
			Timeout:     cfg.HTTPTimeout,
		}, log)
		if !enr.Enabled() {
			log.Info("TAVILY_API_KEY not set — description enrichment disabled")
		}

		var recorder worker.OutcomeRecorder
		if store != nil {
			recorder = store
		}
		w := worker.NewWorker(newQueue(rdb), pipeline.New(src, enr, log), recorder, worker.Config{
			PollTimeout: cfg.PollTimeout,
			Backoff:     cfg.WorkerBackoff,
		}, log)

		// ── gRPC health ─────────────────────────────────────────────────────
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		gs := grpcserver.NewServer(log)
		go func() {
			if err := gs.Serve(lis); err != nil {
				log.Error("gRPC server error", "err", err)
				stop()
			}
		}()

		// ── HTTP health ─────────────────────────────────────────────────────
		mux := http.NewServeMux()
		mux.HandleFunc("/health", healthHandler("reposcout-worker"))
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.HealthPort),
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		serveHTTP(srv, stop)

		// ── Scheduler ───────────────────────────────────────────────────────
		sched := scheduler.New(log)
		if err := sched.AddHealthProbe(cfg.HealthSchedule, "redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, gs.SetServing); err != nil {
			return err
		}
		if store != nil {
			if err := sched.AddPrune(cfg.PruneSchedule, store, cfg.AuditRetention); err != nil {
				return err
			}
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}

		// ── Job loop ────────────────────────────────────────────────────────
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx) }()

		<-ctx.Done()
		log.Info("shutting down…")

		select {
		case err = <-done:
		case <-time.After(shutdownTimeout):
			err = fmt.Errorf("worker did not stop within %s", shutdownTimeout)
		}
		sched.Stop(5 * time.Second)
		gs.Stop(5 * time.Second)
		shutdownHTTP(srv)
		log.Info("stopped.")
		return err
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
