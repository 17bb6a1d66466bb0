// Package api exposes the health check and the admin HTTP surface for
// account registration and manual update passes.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"readz/internal/storage"
	"readz/internal/tracker"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(store *storage.Store, t *tracker.Tracker) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(RequestLogger)
	r.Use(Recovery)

	r.Get("/healthz", Health())

	r.Route("/api", func(api chi.Router) {
		api.Post("/groups", UpsertGroup(store))

		api.Get("/accounts", GetAccounts(store))
		api.Post("/accounts", RegisterAccount(store))
		api.Delete("/accounts/{discordID}", UnregisterAccount(store))

		api.Post("/run", RunPass(t))
	})

	return r
}

// Health returns the liveness handler for GET /healthz.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
