package site

import (
	"Fedipub/internal/api/handlers"
	"Fedipub/internal/core/accounts"
	"Fedipub/internal/core/result"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// AccountLookup is the part of accounts.Repository the handler needs.
type AccountLookup interface {
	GetBySite(ctx context.Context, host string) (result.Result[*accounts.Account, accounts.SiteLookupError], error)
}

// GetAccountHandler serves the internal account of a site.
type GetAccountHandler struct {
	accounts AccountLookup
	logger   *slog.Logger
}

// NewGetAccountHandler creates a new site account handler
func NewGetAccountHandler(lookup AccountLookup, logger *slog.Logger) *GetAccountHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetAccountHandler{accounts: lookup, logger: logger}
}

// AccountView is the public representation of an account.
type AccountView struct {
	ID             int64                  `json:"id"`
	UUID           string                 `json:"uuid"`
	ApID           string                 `json:"apId"`
	Handle         string                 `json:"handle"`
	Username       string                 `json:"username"`
	Name           string                 `json:"name"`
	Bio            string                 `json:"bio"`
	AvatarURL      string                 `json:"avatarUrl,omitempty"`
	BannerImageURL string                 `json:"bannerImageUrl,omitempty"`
	URL            string                 `json:"url"`
	Inbox          string                 `json:"inbox"`
	Outbox         string                 `json:"outbox"`
	CustomFields   []accounts.CustomField `json:"customFields"`
}

// NewAccountView copies the public fields of an account.
func NewAccountView(a *accounts.Account) AccountView {
	fields := a.CustomFields()
	if fields == nil {
		fields = []accounts.CustomField{}
	}
	return AccountView{
		ID:             a.ID(),
		UUID:           a.UUID().String(),
		ApID:           a.ApID(),
		Handle:         a.Handle(),
		Username:       a.Username(),
		Name:           a.Name(),
		Bio:            a.Bio(),
		AvatarURL:      a.AvatarURL(),
		BannerImageURL: a.BannerImageURL(),
		URL:            a.URL(),
		Inbox:          a.Endpoints().Inbox,
		Outbox:         a.Endpoints().Outbox,
		CustomFields:   fields,
	}
}

type lookupFailure struct {
	status    int
	errorType string
	message   string
}

// HandleGetAccount handles GET /v1/sites/{host}/account
func (h *GetAccountHandler) HandleGetAccount(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	if host == "" {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", "host is required")
		return
	}

	res, err := h.accounts.GetBySite(r.Context(), host)
	if err != nil {
		h.logger.Error("failed to look up site account", "host", host, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		return
	}

	if result.IsError(res) {
		e := accounts.MatchSiteLookupError(result.GetError(res),
			func() lookupFailure {
				return lookupFailure{http.StatusNotFound, "SiteNotFound", "No site is registered for this host"}
			},
			func() lookupFailure {
				return lookupFailure{http.StatusNotFound, "AccountNotFound", "The site has no account"}
			},
			func() lookupFailure {
				return lookupFailure{http.StatusConflict, "MultipleAccountsForSite", "The site has more than one account"}
			},
		)
		handlers.WriteError(w, e.status, e.errorType, e.message)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, NewAccountView(result.GetValue(res)))
}
