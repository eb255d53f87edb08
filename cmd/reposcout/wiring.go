package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"reposcout/search-service/internal/audit"
	"reposcout/search-service/internal/db"
	"reposcout/search-service/internal/queue"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 30 * time.Second
)

func connectRedis(ctx context.Context) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	log.Info("connecting to Redis…")
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	log.Info("Redis connected ✓")
	return rdb, nil
}

// openAudit returns a nil store and pool when no DATABASE_URL is configured.
// A configured but unreachable database is logged and the ledger disabled.
func openAudit(ctx context.Context) (*audit.Store, *pgxpool.Pool) {
	if !cfg.AuditEnabled() {
		log.Info("DATABASE_URL not set — audit ledger disabled")
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Warn("audit ledger unavailable — continuing without it", "err", err)
		return nil, nil
	}
	log.Info("PostgreSQL connected ✓")
	return audit.NewStore(pool), pool
}

func newQueue(rdb *redis.Client) *queue.Queue {
	return queue.New(rdb, queue.Config{
		StatusTTL:   cfg.JobTTL,
		TerminalTTL: cfg.TerminalStatusTTL,
		ResultTTL:   cfg.ResultTTL,
	}, log)
}

// healthHandler reports process liveness for the worker role.
func healthHandler(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": service,
			"version": version,
		})
	}
}

// serveHTTP runs srv in the background; a listen failure cancels the process.
func serveHTTP(srv *http.Server, stop context.CancelFunc) {
	go func() {
		log.Info("HTTP listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error", "addr", srv.Addr, "err", err)
			stop()
		}
	}()
}

func shutdownHTTP(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("HTTP shutdown error", "addr", srv.Addr, "err", err)
	}
}
