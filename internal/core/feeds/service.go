package feeds

import (
	"Fedipub/internal/core/events"
	"Fedipub/internal/core/posts"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// PostReader loads posts referenced by events.
type PostReader interface {
	GetByID(ctx context.Context, id int64) (*posts.Post, error)
}

// Service keeps feeds in step with post events.
type Service struct {
	repo   Repository
	posts  PostReader
	logger *slog.Logger
}

// NewService creates a feed projection.
func NewService(repo Repository, posts PostReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, posts: posts, logger: logger}
}

// Register subscribes the projection to the bus.
func (s *Service) Register(bus *events.Bus) {
	events.Subscribe(bus, s.onPostCreated)
	events.Subscribe(bus, s.onPostReposted)
	events.Subscribe(bus, s.onPostDereposted)
	events.Subscribe(bus, s.onPostDeleted)
	events.Subscribe(bus, s.onAccountUnfollowed)
	events.Subscribe(bus, s.onAccountBlocked)
}

// Feed returns ownerID's feed, newest first.
func (s *Service) Feed(ctx context.Context, ownerID int64, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, ownerID, limit)
}

// feedable reports whether a post belongs in follower feeds. Replies and
// direct messages do not.
func feedable(p *posts.Post) bool {
	if p.IsDeleted() || p.IsReply() {
		return false
	}
	switch p.Audience() {
	case posts.AudiencePublic, posts.AudienceFollowersOnly:
		return true
	default:
		return false
	}
}

func entryFor(p *posts.Post) Entry {
	return Entry{
		PostID:      p.ID(),
		AuthorID:    p.Author().ID(),
		PostType:    p.Type(),
		Audience:    p.Audience(),
		PublishedAt: p.PublishedAt(),
	}
}

func (s *Service) load(ctx context.Context, id int64) (*posts.Post, error) {
	p, err := s.posts.GetByID(ctx, id)
	if errors.Is(err, posts.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load post %d: %w", id, err)
	}
	return p, nil
}

func (s *Service) onPostCreated(ctx context.Context, e events.PostCreated) error {
	p, err := s.load(ctx, e.PostID)
	if err != nil || p == nil || !feedable(p) {
		return err
	}
	n, err := s.repo.Fanout(ctx, entryFor(p), p.Author().ID())
	if err != nil {
		return fmt.Errorf("failed to add post %d to feeds: %w", p.ID(), err)
	}
	s.logger.Debug("post added to feeds", "post_id", p.ID(), "feeds", n)
	return nil
}

func (s *Service) onPostReposted(ctx context.Context, e events.PostReposted) error {
	p, err := s.load(ctx, e.PostID)
	if err != nil || p == nil {
		return err
	}
	if p.IsDeleted() || p.Audience() != posts.AudiencePublic {
		return nil
	}
	entry := entryFor(p)
	reposter := e.AccountID
	entry.RepostedByID = &reposter
	if _, err := s.repo.Fanout(ctx, entry, reposter); err != nil {
		return fmt.Errorf("failed to add repost of %d to feeds: %w", p.ID(), err)
	}
	return nil
}

func (s *Service) onPostDereposted(ctx context.Context, e events.PostDereposted) error {
	if _, err := s.repo.RemoveRepost(ctx, e.PostID, e.AccountID); err != nil {
		return fmt.Errorf("failed to remove repost of %d from feeds: %w", e.PostID, err)
	}
	return nil
}

func (s *Service) onPostDeleted(ctx context.Context, e events.PostDeleted) error {
	if _, err := s.repo.RemovePost(ctx, e.PostID); err != nil {
		return fmt.Errorf("failed to remove post %d from feeds: %w", e.PostID, err)
	}
	return nil
}

func (s *Service) onAccountUnfollowed(ctx context.Context, e events.AccountUnfollowed) error {
	if _, err := s.repo.RemoveSource(ctx, e.FollowerID, e.AccountID); err != nil {
		return fmt.Errorf("failed to remove unfollowed account %d from feed: %w", e.AccountID, err)
	}
	return nil
}

func (s *Service) onAccountBlocked(ctx context.Context, e events.AccountBlocked) error {
	if _, err := s.repo.RemoveSource(ctx, e.BlockerID, e.AccountID); err != nil {
		return fmt.Errorf("failed to remove blocked account %d from feed: %w", e.AccountID, err)
	}
	return nil
}
