package postgres

import (
	"Fedipub/internal/core/feeds"
	"Fedipub/internal/core/posts"
	"context"
	"database/sql"
	"fmt"
)

type postgresFeedRepo struct {
	db *sql.DB
}

// NewFeedRepository creates a new PostgreSQL feed repository
func NewFeedRepository(db *sql.DB) feeds.Repository {
	return &postgresFeedRepo{db: db}
}

// Fanout inserts entry into the feed of sourceID's internal followers and of
// sourceID itself when it is internal. Owners that block the post's author
// are skipped.
func (r *postgresFeedRepo) Fanout(ctx context.Context, entry feeds.Entry, sourceID int64) (int64, error) {
	query := `
		INSERT INTO feeds (owner_id, post_id, author_id, reposted_by_id, post_type, audience, published_at)
		SELECT owners.owner_id, $2::bigint, $3::bigint, $4::bigint, $5::text, $6::text, $7::timestamptz
		FROM (
			SELECT f.follower_id AS owner_id
			FROM follows f
			JOIN accounts a ON a.id = f.follower_id
			WHERE f.following_id = $1 AND a.ap_private_key IS NOT NULL
			UNION
			SELECT a.id
			FROM accounts a
			WHERE a.id = $1 AND a.ap_private_key IS NOT NULL
		) owners
		WHERE NOT EXISTS (
			SELECT 1 FROM blocks b WHERE b.blocker_id = owners.owner_id AND b.blocked_id = $3
		)
		ON CONFLICT (owner_id, post_id, (COALESCE(reposted_by_id, 0))) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		sourceID, entry.PostID, entry.AuthorID, entry.RepostedByID,
		string(entry.PostType), string(entry.Audience), entry.PublishedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to fan out post %d from %d: %w", entry.PostID, sourceID, err)
	}
	return res.RowsAffected()
}

// RemovePost drops every entry for the post
func (r *postgresFeedRepo) RemovePost(ctx context.Context, postID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM feeds WHERE post_id = $1`, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove post %d from feeds: %w", postID, err)
	}
	return res.RowsAffected()
}

// RemoveRepost drops the entries created by one repost
func (r *postgresFeedRepo) RemoveRepost(ctx context.Context, postID, reposterID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM feeds WHERE post_id = $1 AND reposted_by_id = $2`, postID, reposterID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove repost of %d by %d: %w", postID, reposterID, err)
	}
	return res.RowsAffected()
}

// RemoveSource drops what sourceID authored or reposted from ownerID's feed
func (r *postgresFeedRepo) RemoveSource(ctx context.Context, ownerID, sourceID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM feeds
		WHERE owner_id = $1
		  AND (reposted_by_id = $2 OR (reposted_by_id IS NULL AND author_id = $2))`,
		ownerID, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to remove %d from feed of %d: %w", sourceID, ownerID, err)
	}
	return res.RowsAffected()
}

// List returns the owner's feed, newest first
func (r *postgresFeedRepo) List(ctx context.Context, ownerID int64, limit int) ([]feeds.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT owner_id, post_id, author_id, reposted_by_id, post_type, audience, published_at
		FROM feeds
		WHERE owner_id = $1
		ORDER BY published_at DESC, id DESC
		LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed of %d: %w", ownerID, err)
	}
	defer func() { _ = rows.Close() }()

	var entries []feeds.Entry
	for rows.Next() {
		var (
			e             feeds.Entry
			repostedBy    sql.NullInt64
			typ, audience string
		)
		if err := rows.Scan(&e.OwnerID, &e.PostID, &e.AuthorID, &repostedBy, &typ, &audience, &e.PublishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feed entry: %w", err)
		}
		if repostedBy.Valid {
			e.RepostedByID = &repostedBy.Int64
		}
		e.PostType = posts.Type(typ)
		e.Audience = posts.Audience(audience)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feed of %d: %w", ownerID, err)
	}
	return entries, nil
}
