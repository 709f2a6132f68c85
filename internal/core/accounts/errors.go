package accounts

import (
	"Fedipub/internal/core/result"
	"errors"
	"fmt"
)

// Sentinel errors for account operations
var (
	// ErrAccountNotFound is returned when a lookup finds no matching account
	ErrAccountNotFound = errors.New("account not found")

	// ErrMissingKeyPair is returned when an internal account is built without keys
	ErrMissingKeyPair = errors.New("internal account requires a key pair")

	// ErrIDAlreadyAssigned is returned when a persisted account is given a different id
	ErrIDAlreadyAssigned = errors.New("account id already assigned")

	// ErrNotPersisted is returned when a relation targets an account that has no id yet
	ErrNotPersisted = errors.New("account has not been persisted")

	// ErrSelfRelation is returned when an account tries to follow or block itself
	ErrSelfRelation = errors.New("account cannot follow or block itself")

	// ErrDifferentApID is returned when an account adopts a stored account with another ap id
	ErrDifferentApID = errors.New("stored account has a different ap id")
)

// SiteLookupError is the error kind returned by Repository.GetBySite.
type SiteLookupError string

const (
	SiteNotFound            SiteLookupError = "site-not-found"
	SiteAccountNotFound     SiteLookupError = "account-not-found"
	MultipleAccountsForSite SiteLookupError = "multiple-accounts-for-site"
)

// MatchSiteLookupError calls the function for kind and returns its value.
func MatchSiteLookupError[R any](kind SiteLookupError, siteNotFound, accountNotFound, multipleAccounts func() R) R {
	switch kind {
	case SiteNotFound:
		return siteNotFound()
	case SiteAccountNotFound:
		return accountNotFound()
	case MultipleAccountsForSite:
		return multipleAccounts()
	}
	return result.Unhandled[R](kind)
}

// EnsureError is the error kind returned by Service.EnsureByApID.
type EnsureError string

const (
	// EnsureActorNotFound covers every resolution failure: the remote actor
	// could not be fetched or did not describe a usable account.
	EnsureActorNotFound EnsureError = "actor-not-found"
)

// MatchEnsureError calls the function for kind and returns its value.
func MatchEnsureError[R any](kind EnsureError, actorNotFound func() R) R {
	switch kind {
	case EnsureActorNotFound:
		return actorNotFound()
	}
	return result.Unhandled[R](kind)
}

// ResolveError is the error kind an ActorResolver reports.
type ResolveError string

const (
	ResolveNotFound    ResolveError = "not-found"
	ResolveInvalid     ResolveError = "invalid-actor"
	ResolveUnavailable ResolveError = "upstream-unavailable"
)

// MatchResolveError calls the function for kind and returns its value.
func MatchResolveError[R any](kind ResolveError, notFound, invalid, unavailable func() R) R {
	switch kind {
	case ResolveNotFound:
		return notFound()
	case ResolveInvalid:
		return invalid()
	case ResolveUnavailable:
		return unavailable()
	}
	return result.Unhandled[R](kind)
}

// InvalidAccountError describes a field that failed validation.
type InvalidAccountError struct {
	Field  string
	Reason string
}

func (e *InvalidAccountError) Error() string {
	return fmt.Sprintf("invalid account %s: %s", e.Field, e.Reason)
}
