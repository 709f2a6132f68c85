// Package replycounts repairs stored reply counters that drifted from the
// number of live replies.
package replycounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Candidate is a post whose stored counter disagrees with its live replies.
type Candidate struct {
	PostID int64
	Stored int
	Actual int
}

// Batch is one keyset page of scanned posts.
type Batch struct {
	Candidates []Candidate
	// LastID is the highest post id scanned; the next batch starts after it.
	LastID  int64
	Scanned int
}

// Store reads and conditionally writes reply counters.
type Store interface {
	// FindBatch scans up to limit non-deleted posts with id > afterID created
	// before cutoff, returning the ones whose counter is wrong. In zero-only
	// mode only posts with a stored zero and at least one live reply qualify.
	FindBatch(ctx context.Context, afterID int64, limit int, cutoff time.Time, zeroOnly bool) (Batch, error)

	// UpdateReplyCount sets the counter to actual only if it still equals
	// expected. It reports false when a concurrent write got there first.
	UpdateReplyCount(ctx context.Context, postID int64, expected, actual int) (bool, error)
}

// Options configure one repair run.
type Options struct {
	// Cutoff excludes posts created at or after it; zero means now.
	Cutoff    time.Time
	BatchSize int
	Delay     time.Duration
	ZeroOnly  bool
	DryRun    bool
}

// Stats summarizes one repair run.
type Stats struct {
	Scanned    int
	Mismatched int
	Fixed      int
	Raced      int
	Batches    int
}

// Repairer walks posts in id order and fixes their reply counters. Every
// batch commits on its own, so an interrupted run keeps its progress and a
// repeated run finds nothing left to fix.
type Repairer struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRepairer creates a repairer.
func NewRepairer(store Store, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repairer{store: store, logger: logger, now: time.Now, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run repairs counters batch by batch. Cancellation is honoured between
// batches; the stats gathered so far are returned with the context error.
func (r *Repairer) Run(ctx context.Context, opts Options) (Stats, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.Cutoff.IsZero() {
		opts.Cutoff = r.now()
	}

	r.logger.Info("reply count repair starting",
		"batch_size", opts.BatchSize,
		"delay", opts.Delay,
		"cutoff", opts.Cutoff,
		"zero_only", opts.ZeroOnly,
		"dry_run", opts.DryRun)

	var stats Stats
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		batch, err := r.store.FindBatch(ctx, afterID, opts.BatchSize, opts.Cutoff, opts.ZeroOnly)
		if err != nil {
			return stats, fmt.Errorf("failed to scan posts after %d: %w", afterID, err)
		}
		if batch.Scanned == 0 {
			break
		}
		stats.Batches++
		stats.Scanned += batch.Scanned
		stats.Mismatched += len(batch.Candidates)

		for _, c := range batch.Candidates {
			if opts.DryRun {
				r.logger.Info("would fix reply count", "post_id", c.PostID, "stored", c.Stored, "actual", c.Actual)
				continue
			}
			updated, err := r.store.UpdateReplyCount(ctx, c.PostID, c.Stored, c.Actual)
			if err != nil {
				return stats, fmt.Errorf("failed to update reply count of post %d: %w", c.PostID, err)
			}
			if !updated {
				stats.Raced++
				replyRepairsTotal.WithLabelValues("raced").Inc()
				r.logger.Warn("reply count changed concurrently, skipping", "post_id", c.PostID, "expected", c.Stored)
				continue
			}
			stats.Fixed++
			replyRepairsTotal.WithLabelValues("fixed").Inc()
			r.logger.Debug("fixed reply count", "post_id", c.PostID, "from", c.Stored, "to", c.Actual)
		}

		if batch.LastID <= afterID {
			return stats, fmt.Errorf("scan did not advance past post %d", afterID)
		}
		afterID = batch.LastID
		if batch.Scanned < opts.BatchSize {
			break
		}
		if err := r.sleep(ctx, opts.Delay); err != nil {
			return stats, err
		}
	}

	r.logger.Info("reply count repair finished",
		"scanned", stats.Scanned,
		"mismatched", stats.Mismatched,
		"fixed", stats.Fixed,
		"raced", stats.Raced,
		"batches", stats.Batches,
		"dry_run", opts.DryRun)
	return stats, nil
}
