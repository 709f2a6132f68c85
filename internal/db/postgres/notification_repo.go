package postgres

import (
	"Fedipub/internal/core/notifications"
	"context"
	"database/sql"
	"fmt"
)

type postgresNotificationRepo struct {
	db *sql.DB
}

// NewNotificationRepository creates a new PostgreSQL notification repository
func NewNotificationRepository(db *sql.DB) notifications.Repository {
	return &postgresNotificationRepo{db: db}
}

// Create inserts a notification and fills in its id and creation time
func (r *postgresNotificationRepo) Create(ctx context.Context, n *notifications.Notification) error {
	query := `
		INSERT INTO notifications (recipient_id, actor_id, post_id, in_reply_to_post_id, type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, read, created_at`

	err := r.db.QueryRowContext(ctx, query,
		n.RecipientID, n.ActorID, n.PostID, n.InReplyToPostID, string(n.Type),
	).Scan(&n.ID, &n.Read, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create %s notification for account %d: %w", n.Type, n.RecipientID, err)
	}
	return nil
}

// DeleteForPost removes notifications about the post or replying to it
func (r *postgresNotificationRepo) DeleteForPost(ctx context.Context, postID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE post_id = $1 OR in_reply_to_post_id = $1`, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications for post %d: %w", postID, err)
	}
	return res.RowsAffected()
}

// DeleteFromActor removes the recipient's notifications caused by actor
func (r *postgresNotificationRepo) DeleteFromActor(ctx context.Context, recipientID, actorID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE recipient_id = $1 AND actor_id = $2`, recipientID, actorID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete notifications from %d for %d: %w", actorID, recipientID, err)
	}
	return res.RowsAffected()
}

// MarkAllRead marks every unread notification of the recipient as read
func (r *postgresNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET read = TRUE WHERE recipient_id = $1 AND NOT read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read for %d: %w", recipientID, err)
	}
	return res.RowsAffected()
}

// ListForRecipient returns the newest notifications first
func (r *postgresNotificationRepo) ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*notifications.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, recipient_id, actor_id, post_id, in_reply_to_post_id, type, read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY id DESC
		LIMIT $2`, recipientID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications for %d: %w", recipientID, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*notifications.Notification
	for rows.Next() {
		var (
			n               notifications.Notification
			postID, replyTo sql.NullInt64
			typ             string
		)
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.ActorID, &postID, &replyTo, &typ, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Type = notifications.Type(typ)
		if postID.Valid {
			n.PostID = &postID.Int64
		}
		if replyTo.Valid {
			n.InReplyToPostID = &replyTo.Int64
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return result, nil
}

// CountUnread returns the number of unread notifications of the recipient
func (r *postgresNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT read`, recipientID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications for %d: %w", recipientID, err)
	}
	return count, nil
}
