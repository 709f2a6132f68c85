// Package notifications projects domain events into per-account
// notifications for internal accounts.
package notifications

import (
	"context"
	"time"
)

// Type is the kind of activity a notification reports.
type Type string

const (
	TypeLike    Type = "like"
	TypeRepost  Type = "repost"
	TypeReply   Type = "reply"
	TypeFollow  Type = "follow"
	TypeMention Type = "mention"
)

// Notification tells an internal account that another account acted on it
// or on one of its posts.
type Notification struct {
	CreatedAt       time.Time `json:"createdAt"`
	PostID          *int64    `json:"postId,omitempty"`
	InReplyToPostID *int64    `json:"inReplyToPostId,omitempty"`
	Type            Type      `json:"type"`
	ID              int64     `json:"id"`
	RecipientID     int64     `json:"recipientId"`
	ActorID         int64     `json:"actorId"`
	Read            bool      `json:"read"`
}

// Repository stores notifications.
type Repository interface {
	// Create inserts a notification.
	Create(ctx context.Context, n *Notification) error

	// DeleteForPost removes every notification about the post, including
	// replies to it.
	DeleteForPost(ctx context.Context, postID int64) (int64, error)

	// DeleteFromActor removes the recipient's notifications caused by actor.
	DeleteFromActor(ctx context.Context, recipientID, actorID int64) (int64, error)

	// MarkAllRead marks the recipient's unread notifications as read.
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)

	// ListForRecipient returns the newest notifications first.
	ListForRecipient(ctx context.Context, recipientID int64, limit int) ([]*Notification, error)

	// CountUnread returns the number of unread notifications.
	CountUnread(ctx context.Context, recipientID int64) (int, error)
}
