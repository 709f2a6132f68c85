package notifications

import (
	"Fedipub/internal/api/handlers"
	"Fedipub/internal/core/events"
	"log/slog"
	"net/http"
)

// MarkReadHandler marks an account's notifications as read by emitting
// NotificationsRead; the projection does the write.
type MarkReadHandler struct {
	emitter events.Emitter
	logger  *slog.Logger
}

// NewMarkReadHandler creates a new mark-read handler
func NewMarkReadHandler(emitter events.Emitter, logger *slog.Logger) *MarkReadHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarkReadHandler{emitter: emitter, logger: logger}
}

// HandleMarkRead handles POST /v1/accounts/{accountID}/notifications/read
func (h *MarkReadHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	accountID, err := handlers.AccountIDParam(r)
	if err != nil {
		handlers.WriteError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	if err := h.emitter.EmitAsync(r.Context(), events.NotificationsRead{AccountID: accountID}); err != nil {
		h.logger.Error("failed to mark notifications read", "account_id", accountID, "error", err)
		handlers.WriteError(w, http.StatusInternalServerError, "InternalServerError", "An internal error occurred")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
