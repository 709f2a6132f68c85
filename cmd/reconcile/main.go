// Command reconcile runs the maintenance jobs: topic ranking sync and reply
// count repair. Both are safe to interrupt and re-run.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"Fedipub/internal/config"
	"Fedipub/internal/db/migrations"
)

var (
	cfg     *config.Config
	db      *sql.DB
	logger  *slog.Logger
	rootCmd = &cobra.Command{
		Use:           "reconcile",
		Short:         "Maintenance jobs for the Fedipub database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logger = cfg.NewLogger()
			slog.SetDefault(logger)

			db, err = sql.Open("postgres", cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			if err := db.PingContext(cmd.Context()); err != nil {
				return fmt.Errorf("failed to ping database: %w", err)
			}
			return migrations.Up(db)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if db != nil {
				_ = db.Close()
			}
		},
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
