package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"Fedipub/internal/core/replycounts"
	postgresRepo "Fedipub/internal/db/postgres"
)

func init() {
	var (
		batchSize int
		delay     time.Duration
		cutoff    string
		zeroOnly  bool
		dryRun    bool
	)
	replyCmd := &cobra.Command{
		Use:   "reply-counts",
		Short: "Repair stored reply counters that drifted from live replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := replycounts.Options{
				BatchSize: cfg.ReplyRepairBatchSize,
				Delay:     cfg.ReplyRepairDelay,
				ZeroOnly:  zeroOnly,
				DryRun:    dryRun,
			}
			if cmd.Flags().Changed("batch-size") {
				opts.BatchSize = batchSize
			}
			if cmd.Flags().Changed("delay") {
				opts.Delay = delay
			}
			if cutoff != "" {
				t, err := time.Parse(time.RFC3339, cutoff)
				if err != nil {
					return fmt.Errorf("invalid --cutoff: %w", err)
				}
				opts.Cutoff = t
			}
			if opts.BatchSize <= 0 {
				return fmt.Errorf("--batch-size must be positive")
			}

			repairer := replycounts.NewRepairer(postgresRepo.NewReplyCountStore(db), logger)
			stats, err := repairer.Run(cmd.Context(), opts)
			_, _ = fmt.Fprintf(os.Stdout, "scanned=%d mismatched=%d fixed=%d raced=%d batches=%d dry_run=%t\n",
				stats.Scanned, stats.Mismatched, stats.Fixed, stats.Raced, stats.Batches, opts.DryRun)
			return err
		},
	}
	replyCmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Posts scanned per batch (default FEDIPUB_REPLY_REPAIR_BATCH_SIZE)")
	replyCmd.Flags().DurationVarP(&delay, "delay", "d", 0, "Pause between batches (default FEDIPUB_REPLY_REPAIR_DELAY)")
	replyCmd.Flags().StringVar(&cutoff, "cutoff", "", "Only posts created before this RFC3339 time (default now)")
	replyCmd.Flags().BoolVar(&zeroOnly, "zero-only", false, "Only fix posts stored with zero replies")
	replyCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report mismatches without writing")
	rootCmd.AddCommand(replyCmd)
}
