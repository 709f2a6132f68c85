package feed

import (
	"Fedipub/internal/api/handlers"
	"Fedipub/internal/core/feeds"
	"context"
	"log/slog"
	"net/http"
)

// Reader is the read side of the feed projection.
type Reader interface {
	Feed(ctx context.Context, ownerID int64, limit int) ([]feeds.Entry, error)
}

// GetFeedHandler serves an internal account's home feed
type GetFeedHandler struct {
	reader Reader
	logger *slog.Logger
}

// NewGetFeedHandler creates a new feed handler
func NewGetFeedHandler(reader Reader, logger *slog.Logger) *GetFeedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetFeedHandler{reader: reader, logger: logger}
}

// FeedResponse is the body of a feed page
type FeedResponse struct {
	Entries []feeds.Entry `json:"entries"`
}

// HandleGetFeed handles GET /v1/accounts/{accountID}/feed?limit=20
func (h *GetFeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	accountID, err := handlers.AccountIDParam(r)
	if err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	limit, err := handlers.ParseLimit(r)
	if err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	entries, err := h.reader.Feed(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("failed to load feed", "account_id", accountID, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		return
	}
	if entries == nil {
		entries = []feeds.Entry{}
	}
	handlers.WriteJSON(w, http.StatusOK, FeedResponse{Entries: entries})
}
