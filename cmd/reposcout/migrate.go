package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"reposcout/search-service/internal/audit"
	"reposcout/search-service/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the audit ledger schema to DATABASE_URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.AuditEnabled() {
			return errors.New("DATABASE_URL is required for migrate")
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*connectTimeout)
		defer cancel()

		pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		return audit.Migrate(ctx, pool, log)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
