package accounts

import (
	"Fedipub/internal/core/result"
	"context"
)

// Repository persists Account aggregates.
type Repository interface {
	// Save inserts or updates the account and applies its pending follow,
	// block and domain block changes in one transaction. Events are emitted
	// after commit; a handler failure is returned as *events.HandlerError.
	Save(ctx context.Context, account *Account) error

	// GetByID returns ErrAccountNotFound when no row matches.
	GetByID(ctx context.Context, id int64) (*Account, error)

	// GetByApID returns ErrAccountNotFound when no row matches.
	GetByApID(ctx context.Context, apID string) (*Account, error)

	// GetBySite resolves the single internal account of a site host.
	GetBySite(ctx context.Context, host string) (result.Result[*Account, SiteLookupError], error)

	// IsBlocking reports whether blocker blocks target, directly or through
	// a block of target's domain.
	IsBlocking(ctx context.Context, blockerID, targetID int64) (bool, error)

	// CreateSite registers a site host and links it to an internal account.
	CreateSite(ctx context.Context, host string, account *Account) error
}

// ActorProfile is what an ActorResolver learns about a remote actor.
type ActorProfile struct {
	ApID              string
	PreferredUsername string
	Name              string
	Summary           string
	IconURL           string
	ImageURL          string
	URL               string
	PublicKeyPEM      string
	Endpoints         Endpoints
	CustomFields      []CustomField
}

// ActorResolver fetches remote actor documents.
type ActorResolver interface {
	ResolveActor(ctx context.Context, apID string) result.Result[*ActorProfile, ResolveError]
}

// Ensurer maps a federation identifier to a persisted account, creating it
// from the remote actor when it is not known yet.
type Ensurer interface {
	EnsureByApID(ctx context.Context, apID string) (result.Result[*Account, EnsureError], error)
}
