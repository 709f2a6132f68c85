package routes

import (
	"Fedipub/internal/api/handlers/site"
	"log/slog"

	"github.com/go-chi/chi/v5"
)

// RegisterSiteRoutes registers site lookup endpoints
func RegisterSiteRoutes(r chi.Router, lookup site.AccountLookup, logger *slog.Logger) {
	getAccountHandler := site.NewGetAccountHandler(lookup, logger)

	// GET /v1/sites/{host}/account
	r.Get("/v1/sites/{host}/account", getAccountHandler.HandleGetAccount)
}
