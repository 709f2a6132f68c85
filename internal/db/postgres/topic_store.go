package postgres

import (
	"Fedipub/internal/core/topics"
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/lib/pq"
)

type postgresTopicStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTopicStore creates the PostgreSQL store behind topic reconciliation
func NewTopicStore(db *sql.DB, logger *slog.Logger) topics.Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresTopicStore{db: db, logger: logger}
}

// EnsureTopic creates the topic or renames it. An unchanged topic is not
// written.
func (s *postgresTopicStore) EnsureTopic(ctx context.Context, topic topics.Topic) (int64, error) {
	id, _, err := insertOrGet(ctx, s.db, `
		INSERT INTO topics (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		WHERE topics.name IS DISTINCT FROM EXCLUDED.name
		RETURNING id`, []any{topic.Slug, topic.Name},
		`SELECT id FROM topics WHERE slug = $1`, topic.Slug)
	if err != nil {
		return 0, fmt.Errorf("failed to ensure topic %s: %w", topic.Slug, err)
	}
	return id, nil
}

// GetRanks returns account id -> rank for the topic
func (s *postgresTopicStore) GetRanks(ctx context.Context, topicID int64) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT account_id, rank_in_topic FROM account_topics WHERE topic_id = $1`, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ranks of topic %d: %w", topicID, err)
	}
	defer func() { _ = rows.Close() }()

	ranks := make(map[int64]int)
	for rows.Next() {
		var accountID int64
		var rank int
		if err := rows.Scan(&accountID, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan rank: %w", err)
		}
		ranks[accountID] = rank
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ranks of topic %d: %w", topicID, err)
	}
	return ranks, nil
}

// ApplyRanks deletes removals and upserts ranks for one topic in a single
// transaction. Rows of other topics are never touched.
func (s *postgresTopicStore) ApplyRanks(ctx context.Context, topicID int64, upserts map[int64]int, removals []int64) error {
	if len(upserts) == 0 && len(removals) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction for topic %d: %w", topicID, err)
	}
	defer rollback(tx, s.logger, "topic_id", topicID)

	if len(removals) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM account_topics WHERE topic_id = $1 AND account_id = ANY($2)`,
			topicID, pq.Array(removals)); err != nil {
			return fmt.Errorf("failed to delete mappings of topic %d: %w", topicID, err)
		}
	}

	if len(upserts) > 0 {
		accountIDs := make([]int64, 0, len(upserts))
		for id := range upserts {
			accountIDs = append(accountIDs, id)
		}
		slices.Sort(accountIDs)
		ranks := make([]int64, len(accountIDs))
		for i, id := range accountIDs {
			ranks[i] = int64(upserts[id])
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO account_topics (account_id, topic_id, rank_in_topic)
			SELECT u.account_id, $1, u.rank_in_topic
			FROM unnest($2::bigint[], $3::int[]) AS u(account_id, rank_in_topic)
			ON CONFLICT (account_id, topic_id) DO UPDATE
			SET rank_in_topic = EXCLUDED.rank_in_topic, updated_at = NOW()
			WHERE account_topics.rank_in_topic <> EXCLUDED.rank_in_topic`,
			topicID, pq.Array(accountIDs), pq.Array(ranks)); err != nil {
			return fmt.Errorf("failed to upsert mappings of topic %d: %w", topicID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mappings of topic %d: %w", topicID, err)
	}
	return nil
}
