package postgres

import (
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/posts"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresPostRepo struct {
	db       *sql.DB
	accounts accounts.Repository
	emitter  events.Emitter
	logger   *slog.Logger
}

// NewPostRepository creates a new PostgreSQL post repository. Authors and
// mentioned accounts are loaded through accountRepo.
func NewPostRepository(db *sql.DB, accountRepo accounts.Repository, emitter events.Emitter, logger *slog.Logger) posts.Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &postgresPostRepo{db: db, accounts: accountRepo, emitter: emitter, logger: logger}
}

const postColumns = `
	id, uuid, type, audience, author_id, title, excerpt, summary, content, image_url, url,
	metadata, attachments, reading_time_minutes, like_count, repost_count, reply_count,
	in_reply_to, thread_root, ap_id, published_at, deleted_at`

func hasPendingChanges(post *posts.Post) bool {
	return post.IsUpdateDirty() || post.IsNewlyDeleted() ||
		post.IsLikeCountDirty() || post.IsRepostCountDirty() ||
		!post.LikeChanges().IsEmpty() || !post.RepostChanges().IsEmpty() || !post.MentionChanges().IsEmpty()
}

// Save persists the post and its pending relation changes in one
// transaction. Events are emitted only after the commit; a handler failure
// is returned wrapped in *events.HandlerError while the write stays durable.
func (r *postgresPostRepo) Save(ctx context.Context, post *posts.Post) error {
	if post.HasID() && !hasPendingChanges(post) {
		return nil
	}
	author := post.Author()
	if author == nil || !author.HasID() {
		return fmt.Errorf("failed to save post %s: %w", post.ApID(), posts.ErrAccountNotPersisted)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction for post %s: %w", post.ApID(), err)
	}
	defer rollback(tx, r.logger, "ap_id", post.ApID())

	var pending []events.Event
	id := post.ID()
	var outcome InsertOutcome

	switch {
	case !post.HasID():
		newID, inserted, err := r.insert(ctx, tx, post)
		if err != nil {
			return err
		}
		id, outcome = newID, inserted
		if outcome == Created {
			pending = append(pending, events.PostCreated{PostID: id})
			if parent := post.InReplyTo(); parent != nil && !post.IsDeleted() {
				if err := r.adjustReplyCount(ctx, tx, *parent, +1); err != nil {
					return err
				}
			}
		}

	case post.IsNewlyDeleted():
		deleted, err := r.markDeleted(ctx, tx, post)
		if err != nil {
			return err
		}
		if deleted {
			pending = append(pending, events.PostDeleted{PostID: id, AccountID: author.ID()})
		}

	default:
		if post.IsUpdateDirty() {
			if err := r.updateContent(ctx, tx, post); err != nil {
				return err
			}
			pending = append(pending, events.PostUpdated{PostID: id})
		}
		if post.IsLikeCountDirty() || post.IsRepostCountDirty() {
			if _, err := tx.ExecContext(ctx,
				`UPDATE posts SET like_count = $2, repost_count = $3, updated_at = NOW() WHERE id = $1`,
				id, post.LikeCount(), post.RepostCount()); err != nil {
				return fmt.Errorf("failed to update counts of post %d: %w", id, err)
			}
		}
	}

	var refreshed *[2]int
	if !post.IsDeleted() {
		relationEvents, err := r.applyRelations(ctx, tx, id, post)
		if err != nil {
			return err
		}
		pending = append(pending, relationEvents...)

		if post.IsInternal() && (!post.LikeChanges().IsEmpty() || !post.RepostChanges().IsEmpty()) {
			var counts [2]int
			if err := tx.QueryRowContext(ctx, `
				UPDATE posts SET
					like_count = (SELECT COUNT(*) FROM likes WHERE post_id = $1),
					repost_count = (SELECT COUNT(*) FROM reposts WHERE post_id = $1)
				WHERE id = $1
				RETURNING like_count, repost_count`, id).Scan(&counts[0], &counts[1]); err != nil {
				return fmt.Errorf("failed to refresh counts of post %d: %w", id, err)
			}
			refreshed = &counts
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit post %s: %w", post.ApID(), err)
	}

	if outcome == AlreadyExists {
		stored, err := r.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to reload post %s after insert conflict: %w", post.ApID(), err)
		}
		if err := post.Adopt(stored); err != nil {
			return err
		}
	} else {
		if err := post.AssignID(id); err != nil {
			return err
		}
		if refreshed != nil {
			post.RefreshCounts(refreshed[0], refreshed[1])
		}
	}
	post.ClearDirtyFlags()

	return emitAll(ctx, r.emitter, pending)
}

func (r *postgresPostRepo) insert(ctx context.Context, tx *sql.Tx, post *posts.Post) (int64, InsertOutcome, error) {
	metadata, attachments, err := encodeJSONColumns(post)
	if err != nil {
		return 0, 0, err
	}
	var deletedAt sql.NullTime
	if post.IsDeleted() {
		deletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	}

	query := `
		INSERT INTO posts (
			uuid, type, audience, author_id, title, excerpt, summary, content, image_url, url,
			metadata, attachments, reading_time_minutes, like_count, repost_count,
			in_reply_to, thread_root, ap_id, published_at, deleted_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20
		)
		ON CONFLICT (ap_id) DO NOTHING
		RETURNING id`

	id, outcome, err := insertOrGet(ctx, tx, query, []any{
		post.UUID(), string(post.Type()), string(post.Audience()), post.Author().ID(),
		post.Title(), post.Excerpt(), post.Summary(), post.Content(), post.ImageURL(), post.URL(),
		metadata, attachments, post.ReadingTimeMinutes(), post.LikeCount(), post.RepostCount(),
		post.InReplyTo(), post.ThreadRoot(), post.ApID(), post.PublishedAt(), deletedAt,
	}, `SELECT id FROM posts WHERE ap_id = $1`, post.ApID())
	if err != nil {
		return 0, 0, fmt.Errorf("failed to insert post %s: %w", post.ApID(), err)
	}
	if outcome == AlreadyExists {
		r.logger.Debug("post already stored, adopting existing row", "ap_id", post.ApID(), "post_id", id)
	}
	return id, outcome, nil
}

func (r *postgresPostRepo) updateContent(ctx context.Context, tx *sql.Tx, post *posts.Post) error {
	metadata, attachments, err := encodeJSONColumns(post)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE posts
		SET title = $2, excerpt = $3, summary = $4, content = $5, image_url = $6,
			metadata = $7, attachments = $8, reading_time_minutes = $9, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL`,
		post.ID(), post.Title(), post.Excerpt(), post.Summary(), post.Content(), post.ImageURL(),
		metadata, attachments, post.ReadingTimeMinutes())
	if err != nil {
		return fmt.Errorf("failed to update post %d: %w", post.ID(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected for post %d: %w", post.ID(), err)
	}
	if n == 0 {
		return posts.ErrNotFound
	}
	return nil
}

// markDeleted tombstones the row, drops its likes and reposts and gives the
// parent its reply back. It reports false when the row was already deleted.
func (r *postgresPostRepo) markDeleted(ctx context.Context, tx *sql.Tx, post *posts.Post) (bool, error) {
	var inReplyTo sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		UPDATE posts
		SET deleted_at = NOW(), type = 'tombstone',
			title = NULL, excerpt = NULL, summary = NULL, content = NULL, image_url = NULL,
			metadata = NULL, attachments = '[]', reading_time_minutes = 0, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING in_reply_to`, post.ID()).Scan(&inReplyTo)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete post %d: %w", post.ID(), err)
	}

	if inReplyTo.Valid {
		if err := r.adjustReplyCount(ctx, tx, inReplyTo.Int64, -1); err != nil {
			return false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE post_id = $1`, post.ID()); err != nil {
		return false, fmt.Errorf("failed to delete likes of post %d: %w", post.ID(), err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM reposts WHERE post_id = $1`, post.ID()); err != nil {
		return false, fmt.Errorf("failed to delete reposts of post %d: %w", post.ID(), err)
	}
	return true, nil
}

func (r *postgresPostRepo) adjustReplyCount(ctx context.Context, tx *sql.Tx, postID int64, delta int) error {
	if _, err := tx.ExecContext(ctx,
		`UPDATE posts SET reply_count = GREATEST(0, reply_count + $2) WHERE id = $1`,
		postID, delta); err != nil {
		return fmt.Errorf("failed to adjust reply count of post %d: %w", postID, err)
	}
	return nil
}

// applyRelations writes the like, repost and mention diffs. Removing a like
// emits nothing; removing a repost emits PostDereposted.
func (r *postgresPostRepo) applyRelations(ctx context.Context, tx *sql.Tx, id int64, post *posts.Post) ([]events.Event, error) {
	var pending []events.Event

	likes := post.LikeChanges()
	if len(likes.Removed) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM likes WHERE post_id = $1 AND account_id = ANY($2)`,
			id, pq.Array(likes.Removed)); err != nil {
			return nil, fmt.Errorf("failed to delete likes of post %d: %w", id, err)
		}
	}
	if len(likes.Added) > 0 {
		added, err := queryColumn[int64](ctx, tx, `
			INSERT INTO likes (account_id, post_id)
			SELECT unnest($2::bigint[]), $1
			ON CONFLICT DO NOTHING
			RETURNING account_id`,
			id, pq.Array(likes.Added))
		if err != nil {
			return nil, fmt.Errorf("failed to insert likes of post %d: %w", id, err)
		}
		for _, accountID := range inRecordedOrder(likes.Added, added) {
			pending = append(pending, events.PostLiked{PostID: id, AccountID: accountID})
		}
	}

	reposts := post.RepostChanges()
	if len(reposts.Added) > 0 {
		added, err := queryColumn[int64](ctx, tx, `
			INSERT INTO reposts (account_id, post_id)
			SELECT unnest($2::bigint[]), $1
			ON CONFLICT DO NOTHING
			RETURNING account_id`,
			id, pq.Array(reposts.Added))
		if err != nil {
			return nil, fmt.Errorf("failed to insert reposts of post %d: %w", id, err)
		}
		for _, accountID := range inRecordedOrder(reposts.Added, added) {
			pending = append(pending, events.PostReposted{PostID: id, AccountID: accountID})
		}
	}
	if len(reposts.Removed) > 0 {
		removed, err := queryColumn[int64](ctx, tx,
			`DELETE FROM reposts WHERE post_id = $1 AND account_id = ANY($2) RETURNING account_id`,
			id, pq.Array(reposts.Removed))
		if err != nil {
			return nil, fmt.Errorf("failed to delete reposts of post %d: %w", id, err)
		}
		for _, accountID := range inRecordedOrder(reposts.Removed, removed) {
			pending = append(pending, events.PostDereposted{PostID: id, AccountID: accountID})
		}
	}

	mentions := post.MentionChanges()
	if len(mentions.Removed) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM mentions WHERE post_id = $1 AND account_id = ANY($2)`,
			id, pq.Array(mentions.Removed)); err != nil {
			return nil, fmt.Errorf("failed to delete mentions of post %d: %w", id, err)
		}
	}
	if len(mentions.Added) > 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mentions (post_id, account_id)
			SELECT $1, unnest($2::bigint[])
			ON CONFLICT DO NOTHING`,
			id, pq.Array(mentions.Added)); err != nil {
			return nil, fmt.Errorf("failed to insert mentions of post %d: %w", id, err)
		}
	}

	return pending, nil
}

// GetByID retrieves a post by its database id. Deleted posts come back as
// tombstones.
func (r *postgresPostRepo) GetByID(ctx context.Context, id int64) (*posts.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	return r.load(ctx, row)
}

// GetByApID retrieves a post by its federation identifier.
func (r *postgresPostRepo) GetByApID(ctx context.Context, apID string) (*posts.Post, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE ap_id = $1`, apID)
	return r.load(ctx, row)
}

func (r *postgresPostRepo) load(ctx context.Context, row *sql.Row) (*posts.Post, error) {
	var (
		data                  posts.Data
		typ, audience         string
		authorID              int64
		metadata, attachments []byte
		inReplyTo, threadRoot sql.NullInt64
		deletedAt             sql.NullTime
		id                    uuid.UUID
	)
	err := row.Scan(
		&data.ID, &id, &typ, &audience, &authorID,
		&data.Title, &data.Excerpt, &data.Summary, &data.Content, &data.ImageURL, &data.URL,
		&metadata, &attachments, &data.ReadingTimeMinutes, &data.LikeCount, &data.RepostCount, &data.ReplyCount,
		&inReplyTo, &threadRoot, &data.ApID, &data.PublishedAt, &deletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, posts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}

	data.UUID = id
	data.Type = posts.Type(typ)
	data.Audience = posts.Audience(audience)
	if inReplyTo.Valid {
		data.InReplyTo = &inReplyTo.Int64
	}
	if threadRoot.Valid {
		data.ThreadRoot = &threadRoot.Int64
	}
	if deletedAt.Valid {
		data.DeletedAt = &deletedAt.Time
	}
	if len(metadata) > 0 {
		data.Metadata = &posts.Metadata{}
		if err := json.Unmarshal(metadata, data.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata of post %d: %w", data.ID, err)
		}
	}
	if len(attachments) > 0 {
		if err := json.Unmarshal(attachments, &data.Attachments); err != nil {
			return nil, fmt.Errorf("failed to decode attachments of post %d: %w", data.ID, err)
		}
	}

	data.Author, err = r.accounts.GetByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load author %d of post %d: %w", authorID, data.ID, err)
	}

	if !deletedAt.Valid {
		data.Mentions, err = r.loadMentions(ctx, data.ID)
		if err != nil {
			return nil, err
		}
	}

	return posts.Rehydrate(data)
}

func (r *postgresPostRepo) loadMentions(ctx context.Context, postID int64) ([]*accounts.Account, error) {
	ids, err := queryColumn[int64](ctx, r.db,
		`SELECT account_id FROM mentions WHERE post_id = $1 ORDER BY account_id`, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mentions of post %d: %w", postID, err)
	}
	mentioned := make([]*accounts.Account, 0, len(ids))
	for _, id := range ids {
		account, err := r.accounts.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load mentioned account %d: %w", id, err)
		}
		mentioned = append(mentioned, account)
	}
	return mentioned, nil
}

func encodeJSONColumns(post *posts.Post) (sql.NullString, string, error) {
	var metadata sql.NullString
	if m := post.Metadata(); m != nil {
		b, err := json.Marshal(m)
		if err != nil {
			return sql.NullString{}, "", fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = sql.NullString{String: string(b), Valid: true}
	}
	attachments := post.Attachments()
	if attachments == nil {
		attachments = []posts.Attachment{}
	}
	b, err := json.Marshal(attachments)
	if err != nil {
		return sql.NullString{}, "", fmt.Errorf("failed to encode attachments: %w", err)
	}
	return metadata, string(b), nil
}
