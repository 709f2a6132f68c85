package routes

import (
	"Fedipub/internal/api/handlers/feed"
	"Fedipub/internal/api/handlers/notifications"
	"Fedipub/internal/core/events"
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// RegisterAccountRoutes registers the notification and feed endpoints of an
// internal account. Callers are trusted; authentication happens upstream.
func RegisterAccountRoutes(
	r chi.Router,
	notificationReader notifications.Reader,
	feedReader feed.Reader,
	emitter events.Emitter,
	logger *slog.Logger,
) {
	listHandler := notifications.NewListHandler(notificationReader, logger)
	markReadHandler := notifications.NewMarkReadHandler(emitter, logger)
	getFeedHandler := feed.NewGetFeedHandler(feedReader, logger)

	r.Route("/v1/accounts/{accountID}", func(r chi.Router) {
		r.Get("/notifications", listHandler.HandleList)
		r.Post("/notifications/read", markReadHandler.HandleMarkRead)
		r.Get("/feed", getFeedHandler.HandleGetFeed)
	})
}
