package posts

import "context"

// Repository persists Post aggregates.
type Repository interface {
	// Save inserts or updates the post and applies its pending like, repost
	// and mention changes in one transaction. A concurrent insert of the same
	// federation id resolves to one row and one PostCreated event. Events are
	// emitted after commit in the order the changes were recorded; a handler
	// failure is returned as *events.HandlerError with the data already durable.
	Save(ctx context.Context, post *Post) error

	// GetByID returns ErrNotFound when no row matches. Deleted posts are
	// returned as tombstones.
	GetByID(ctx context.Context, id int64) (*Post, error)

	// GetByApID returns ErrNotFound when no row matches. Deleted posts are
	// returned as tombstones.
	GetByApID(ctx context.Context, apID string) (*Post, error)
}
