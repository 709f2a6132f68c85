package postgres

import (
	"Fedipub/internal/core/replycounts"
	"context"
	"database/sql"
	"fmt"
	"time"
)

type postgresReplyCountStore struct {
	db *sql.DB
}

// NewReplyCountStore creates the PostgreSQL store behind reply count repair
func NewReplyCountStore(db *sql.DB) replycounts.Store {
	return &postgresReplyCountStore{db: db}
}

// FindBatch scans the next keyset page of live posts and compares each
// stored counter with a live count of non-deleted replies.
func (s *postgresReplyCountStore) FindBatch(ctx context.Context, afterID int64, limit int, cutoff time.Time, zeroOnly bool) (replycounts.Batch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.reply_count,
			(SELECT COUNT(*) FROM posts c WHERE c.in_reply_to = p.id AND c.deleted_at IS NULL)
		FROM posts p
		WHERE p.id > $1 AND p.deleted_at IS NULL AND p.created_at < $2
		ORDER BY p.id
		LIMIT $3`, afterID, cutoff, limit)
	if err != nil {
		return replycounts.Batch{}, fmt.Errorf("failed to scan posts after %d: %w", afterID, err)
	}
	defer func() { _ = rows.Close() }()

	var batch replycounts.Batch
	for rows.Next() {
		var c replycounts.Candidate
		if err := rows.Scan(&c.PostID, &c.Stored, &c.Actual); err != nil {
			return replycounts.Batch{}, fmt.Errorf("failed to scan reply count: %w", err)
		}
		batch.Scanned++
		batch.LastID = c.PostID

		mismatch := c.Stored != c.Actual
		if zeroOnly {
			mismatch = c.Stored == 0 && c.Actual > 0
		}
		if mismatch {
			batch.Candidates = append(batch.Candidates, c)
		}
	}
	if err := rows.Err(); err != nil {
		return replycounts.Batch{}, fmt.Errorf("error iterating posts after %d: %w", afterID, err)
	}
	return batch, nil
}

// UpdateReplyCount writes actual only while the stored counter still equals
// expected. Zero rows affected means a concurrent write changed it first.
func (s *postgresReplyCountStore) UpdateReplyCount(ctx context.Context, postID int64, expected, actual int) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET reply_count = $3
		WHERE id = $1 AND reply_count = $2 AND deleted_at IS NULL`,
		postID, expected, actual)
	if err != nil {
		return false, fmt.Errorf("failed to update reply count of post %d: %w", postID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected for post %d: %w", postID, err)
	}
	return n == 1, nil
}
