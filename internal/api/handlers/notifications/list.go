package notifications

import (
	"Fedipub/internal/api/handlers"
	"Fedipub/internal/core/notifications"
	"context"
	"log/slog"
	"net/http"
)

// Reader is the read side of the notification projection.
type Reader interface {
	List(ctx context.Context, recipientID int64, limit int) ([]*notifications.Notification, error)
	UnreadCount(ctx context.Context, recipientID int64) (int, error)
}

// ListHandler serves an account's notifications
type ListHandler struct {
	reader Reader
	logger *slog.Logger
}

// NewListHandler creates a new notification list handler
func NewListHandler(reader Reader, logger *slog.Logger) *ListHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ListHandler{reader: reader, logger: logger}
}

// ListResponse is the body of a notification list
type ListResponse struct {
	Notifications []*notifications.Notification `json:"notifications"`
	UnreadCount   int                           `json:"unreadCount"`
}

// HandleList handles GET /v1/accounts/{accountID}/notifications?limit=20
func (h *ListHandler) HandleList(w http.ResponseWriter, r *http.Request) {
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

	list, err := h.reader.List(r.Context(), accountID, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "account_id", accountID, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		return
	}
	unread, err := h.reader.UnreadCount(r.Context(), accountID)
	if err != nil {
		h.logger.Error("failed to count unread notifications", "account_id", accountID, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		return
	}

	if list == nil {
		list = []*notifications.Notification{}
	}
	handlers.WriteJSON(w, http.StatusOK, ListResponse{Notifications: list, UnreadCount: unread})
}
