package topics

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/result"
	"context"
	"fmt"
	"log/slog"
	"slices"
)

// Store holds topics and their ranked account mappings.
type Store interface {
	// EnsureTopic creates or renames the topic and returns its id.
	EnsureTopic(ctx context.Context, topic Topic) (int64, error)

	// GetRanks returns account id -> rank for the topic.
	GetRanks(ctx context.Context, topicID int64) (map[int64]int, error)

	// ApplyRanks upserts and deletes mappings of one topic in a single
	// transaction.
	ApplyRanks(ctx context.Context, topicID int64, upserts map[int64]int, removals []int64) error
}

// Stats summarizes one run.
type Stats struct {
	Topics        int
	FailedTopics  int
	Added         int
	Updated       int
	Removed       int
	Unchanged     int
	SkippedActors int
}

// TopicStats summarizes the reconciliation of one topic.
type TopicStats struct {
	Added         int
	Updated       int
	Removed       int
	Unchanged     int
	SkippedActors int
}

// Reconciler syncs each topic's ranked accounts with a Source.
type Reconciler struct {
	store       Store
	source      Source
	accounts    accounts.Ensurer
	logger      *slog.Logger
	maxPerTopic int
}

// NewReconciler creates a reconciler. maxPerTopic caps the accounts fetched
// per topic.
func NewReconciler(store Store, source Source, ensurer accounts.Ensurer, maxPerTopic int, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerTopic <= 0 {
		maxPerTopic = 200
	}
	return &Reconciler{
		store:       store,
		source:      source,
		accounts:    ensurer,
		maxPerTopic: maxPerTopic,
		logger:      logger,
	}
}

// Run reconciles every topic in turn. A topic that fails is logged and
// skipped; earlier topics stay committed. Only context cancellation stops
// the run early.
func (r *Reconciler) Run(ctx context.Context, topics []Topic) (Stats, error) {
	var stats Stats
	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Topics++
		ts, err := r.ReconcileTopic(ctx, topic)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.FailedTopics++
			topicRunsTotal.WithLabelValues("failed").Inc()
			r.logger.Error("topic reconciliation failed", "topic", topic.Slug, "error", err)
			continue
		}
		topicRunsTotal.WithLabelValues("ok").Inc()
		stats.Added += ts.Added
		stats.Updated += ts.Updated
		stats.Removed += ts.Removed
		stats.Unchanged += ts.Unchanged
		stats.SkippedActors += ts.SkippedActors
	}

	r.logger.Info("topic reconciliation finished",
		"topics", stats.Topics,
		"failed", stats.FailedTopics,
		"added", stats.Added,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"unchanged", stats.Unchanged,
		"skipped_actors", stats.SkippedActors)
	return stats, nil
}

// ReconcileTopic brings one topic's mappings in line with the source. Ranks
// are 1-indexed and contiguous over the accounts that could be resolved.
// Nothing is written when the stored ranks already match.
func (r *Reconciler) ReconcileTopic(ctx context.Context, topic Topic) (TopicStats, error) {
	var stats TopicStats

	topicID, err := r.store.EnsureTopic(ctx, topic)
	if err != nil {
		return stats, fmt.Errorf("failed to ensure topic %s: %w", topic.Slug, err)
	}

	apIDs, err := r.source.Fetch(ctx, topic.Slug, r.maxPerTopic)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch accounts for topic %s: %w", topic.Slug, err)
	}

	desired := make(map[int64]int, len(apIDs))
	rank := 0
	for _, apID := range apIDs {
		res, err := r.accounts.EnsureByApID(ctx, apID)
		if err != nil {
			return stats, fmt.Errorf("failed to map %s: %w", apID, err)
		}
		if result.IsError(res) {
			reason := accounts.MatchEnsureError(result.GetError(res),
				func() string { return "actor not found" },
			)
			stats.SkippedActors++
			r.logger.Warn("skipping unresolvable account", "topic", topic.Slug, "actor", apID, "reason", reason)
			continue
		}
		id := result.GetValue(res).ID()
		if _, dup := desired[id]; dup {
			continue
		}
		rank++
		desired[id] = rank
	}

	existing, err := r.store.GetRanks(ctx, topicID)
	if err != nil {
		return stats, fmt.Errorf("failed to load ranks for topic %s: %w", topic.Slug, err)
	}

	upserts := make(map[int64]int)
	for id, want := range desired {
		have, ok := existing[id]
		switch {
		case !ok:
			upserts[id] = want
			stats.Added++
		case have != want:
			upserts[id] = want
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	var removals []int64
	for id := range existing {
		if _, keep := desired[id]; !keep {
			removals = append(removals, id)
		}
	}
	slices.Sort(removals)
	stats.Removed = len(removals)

	if len(upserts) == 0 && len(removals) == 0 {
		return stats, nil
	}
	if err := r.store.ApplyRanks(ctx, topicID, upserts, removals); err != nil {
		return TopicStats{SkippedActors: stats.SkippedActors}, fmt.Errorf("failed to apply ranks for topic %s: %w", topic.Slug, err)
	}
	topicMappingWritesTotal.WithLabelValues("upsert").Add(float64(len(upserts)))
	topicMappingWritesTotal.WithLabelValues("delete").Add(float64(len(removals)))
	return stats, nil
}
