package accounts

import (
	"Fedipub/internal/core/result"
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Service looks up accounts and lazily creates external ones.
type Service struct {
	repo     Repository
	resolver ActorResolver
	logger   *slog.Logger
}

// NewService creates an account service. A nil logger falls back to slog.Default().
func NewService(repo Repository, resolver ActorResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, logger: logger}
}

// EnsureByApID returns the stored account for apID, resolving and saving the
// remote actor when none exists. Resolution failures are reported as
// EnsureActorNotFound; only storage failures are returned as errors.
func (s *Service) EnsureByApID(ctx context.Context, apID string) (result.Result[*Account, EnsureError], error) {
	existing, err := s.repo.GetByApID(ctx, apID)
	if err == nil {
		return result.Ok[*Account, EnsureError](existing), nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return result.Result[*Account, EnsureError]{}, fmt.Errorf("failed to look up account %s: %w", apID, err)
	}

	resolved := s.resolver.ResolveActor(ctx, apID)
	if result.IsError(resolved) {
		reason := MatchResolveError(result.GetError(resolved),
			func() string { return "actor not found" },
			func() string { return "actor document is invalid" },
			func() string { return "actor host unavailable" },
		)
		s.logger.Warn("actor resolution failed", "ap_id", apID, "reason", reason)
		return result.Error[*Account](EnsureActorNotFound), nil
	}

	profile := result.GetValue(resolved)
	// The actor may live under a canonical id other than the one requested.
	if profile.ApID != "" && profile.ApID != apID {
		canonical, err := s.repo.GetByApID(ctx, profile.ApID)
		if err == nil {
			return result.Ok[*Account, EnsureError](canonical), nil
		}
		if !errors.Is(err, ErrAccountNotFound) {
			return result.Result[*Account, EnsureError]{}, fmt.Errorf("failed to look up account %s: %w", profile.ApID, err)
		}
	}

	account, err := NewExternal(externalDataFromProfile(apID, profile))
	if err != nil {
		s.logger.Warn("remote actor is not a usable account", "ap_id", apID, "error", err)
		return result.Error[*Account](EnsureActorNotFound), nil
	}

	if err := s.repo.Save(ctx, account); err != nil {
		return result.Result[*Account, EnsureError]{}, fmt.Errorf("failed to save account %s: %w", apID, err)
	}

	s.logger.Info("created external account", "ap_id", apID, "account_id", account.ID())
	return result.Ok[*Account, EnsureError](account), nil
}

func externalDataFromProfile(apID string, p *ActorProfile) ExternalAccountData {
	data := ExternalAccountData{
		ApID:      apID,
		Endpoints: p.Endpoints,
		Profile: Profile{
			Username:       p.PreferredUsername,
			Name:           p.Name,
			Bio:            p.Summary,
			AvatarURL:      p.IconURL,
			BannerImageURL: p.ImageURL,
			URL:            p.URL,
			CustomFields:   p.CustomFields,
		},
	}
	if p.ApID != "" {
		data.ApID = p.ApID
	}
	if data.URL == "" {
		data.URL = data.ApID
	}
	if p.PublicKeyPEM != "" {
		data.Keys = &KeyPair{PublicKey: p.PublicKeyPEM}
	}
	return data
}
