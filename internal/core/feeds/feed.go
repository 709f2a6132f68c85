// Package feeds materializes the home feeds of internal accounts from post
// and repost events.
package feeds

import (
	"Fedipub/internal/core/posts"
	"context"
	"time"
)

// Entry is one row of an internal account's feed.
type Entry struct {
	PublishedAt  time.Time      `json:"publishedAt"`
	RepostedByID *int64         `json:"repostedById,omitempty"`
	PostType     posts.Type     `json:"postType"`
	Audience     posts.Audience `json:"audience"`
	OwnerID      int64          `json:"ownerId"`
	PostID       int64          `json:"postId"`
	AuthorID     int64          `json:"authorId"`
}

// Repository stores feed entries.
type Repository interface {
	// Fanout copies entry into the feed of every internal account that
	// follows sourceID, and into sourceID's own feed when it is internal.
	// Existing entries are left alone. Returns the number of rows inserted.
	Fanout(ctx context.Context, entry Entry, sourceID int64) (int64, error)

	// RemovePost drops the post from every feed.
	RemovePost(ctx context.Context, postID int64) (int64, error)

	// RemoveRepost drops the entries created by reposterID's repost of postID.
	RemoveRepost(ctx context.Context, postID, reposterID int64) (int64, error)

	// RemoveSource drops entries authored or reposted by sourceID from
	// ownerID's feed.
	RemoveSource(ctx context.Context, ownerID, sourceID int64) (int64, error)

	// List returns ownerID's feed, newest first.
	List(ctx context.Context, ownerID int64, limit int) ([]Entry, error)
}
