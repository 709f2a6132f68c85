package notifications

import (
	"Fedipub/internal/core/accounts"
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

// AccountReader loads accounts referenced by events.
type AccountReader interface {
	GetByID(ctx context.Context, id int64) (*accounts.Account, error)
	IsBlocking(ctx context.Context, blockerID, targetID int64) (bool, error)
}

// Service turns domain events into notifications. Handler errors are
// returned so that a failed projection surfaces from the repository Save
// that emitted the event.
type Service struct {
	repo     Repository
	posts    PostReader
	accounts AccountReader
	logger   *slog.Logger
}

// NewService creates a notification projection.
func NewService(repo Repository, posts PostReader, accounts AccountReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, posts: posts, accounts: accounts, logger: logger}
}

// Register subscribes the projection to the bus.
func (s *Service) Register(bus *events.Bus) {
	events.Subscribe(bus, s.onPostLiked)
	events.Subscribe(bus, s.onPostReposted)
	events.Subscribe(bus, s.onPostCreated)
	events.Subscribe(bus, s.onPostDeleted)
	events.Subscribe(bus, s.onAccountFollowed)
	events.Subscribe(bus, s.onAccountBlocked)
	events.Subscribe(bus, s.onNotificationsRead)
}

// List returns the recipient's newest notifications.
func (s *Service) List(ctx context.Context, recipientID int64, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.ListForRecipient(ctx, recipientID, limit)
}

// UnreadCount returns how many notifications the recipient has not read.
func (s *Service) UnreadCount(ctx context.Context, recipientID int64) (int, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

func (s *Service) onPostLiked(ctx context.Context, e events.PostLiked) error {
	return s.notifyAuthor(ctx, TypeLike, e.PostID, e.AccountID)
}

func (s *Service) onPostReposted(ctx context.Context, e events.PostReposted) error {
	return s.notifyAuthor(ctx, TypeRepost, e.PostID, e.AccountID)
}

func (s *Service) notifyAuthor(ctx context.Context, typ Type, postID, actorID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if errors.Is(err, posts.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load post %d: %w", postID, err)
	}
	if post.IsDeleted() {
		return nil
	}
	return s.create(ctx, post.Author(), &Notification{
		Type:    typ,
		ActorID: actorID,
		PostID:  &postID,
	})
}

func (s *Service) onPostCreated(ctx context.Context, e events.PostCreated) error {
	post, err := s.posts.GetByID(ctx, e.PostID)
	if errors.Is(err, posts.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load post %d: %w", e.PostID, err)
	}
	actorID := post.Author().ID()
	postID := post.ID()

	var parentAuthorID int64
	if parentID := post.InReplyTo(); parentID != nil {
		parent, err := s.posts.GetByID(ctx, *parentID)
		switch {
		case errors.Is(err, posts.ErrNotFound):
		case err != nil:
			return fmt.Errorf("failed to load parent post %d: %w", *parentID, err)
		default:
			parentAuthorID = parent.Author().ID()
			pid := parent.ID()
			if err := s.create(ctx, parent.Author(), &Notification{
				Type:            TypeReply,
				ActorID:         actorID,
				PostID:          &postID,
				InReplyToPostID: &pid,
			}); err != nil {
				return err
			}
		}
	}

	for _, mentioned := range post.Mentions() {
		if mentioned.ID() == parentAuthorID {
			continue
		}
		if err := s.create(ctx, mentioned, &Notification{
			Type:    TypeMention,
			ActorID: actorID,
			PostID:  &postID,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) onAccountFollowed(ctx context.Context, e events.AccountFollowed) error {
	recipient, err := s.accounts.GetByID(ctx, e.AccountID)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load account %d: %w", e.AccountID, err)
	}
	return s.create(ctx, recipient, &Notification{Type: TypeFollow, ActorID: e.FollowerID})
}

func (s *Service) onPostDeleted(ctx context.Context, e events.PostDeleted) error {
	if _, err := s.repo.DeleteForPost(ctx, e.PostID); err != nil {
		return fmt.Errorf("failed to remove notifications for post %d: %w", e.PostID, err)
	}
	return nil
}

func (s *Service) onAccountBlocked(ctx context.Context, e events.AccountBlocked) error {
	if _, err := s.repo.DeleteFromActor(ctx, e.BlockerID, e.AccountID); err != nil {
		return fmt.Errorf("failed to remove notifications from blocked account %d: %w", e.AccountID, err)
	}
	return nil
}

func (s *Service) onNotificationsRead(ctx context.Context, e events.NotificationsRead) error {
	n, err := s.repo.MarkAllRead(ctx, e.AccountID)
	if err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	s.logger.Debug("notifications marked read", "account_id", e.AccountID, "count", n)
	return nil
}

// create stores n for recipient unless the recipient is external, is the
// actor, or blocks the actor.
func (s *Service) create(ctx context.Context, recipient *accounts.Account, n *Notification) error {
	if !recipient.IsInternal() || recipient.ID() == n.ActorID {
		return nil
	}
	blocked, err := s.accounts.IsBlocking(ctx, recipient.ID(), n.ActorID)
	if err != nil {
		return fmt.Errorf("failed to check block: %w", err)
	}
	if blocked {
		s.logger.Debug("skipping notification from blocked account",
			"recipient_id", recipient.ID(), "actor_id", n.ActorID, "type", string(n.Type))
		return nil
	}
	n.RecipientID = recipient.ID()
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("failed to create %s notification: %w", n.Type, err)
	}
	return nil
}
