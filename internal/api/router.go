package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vaultlens/internal/vaultservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *vaultservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/vaults", h.ListVaults)
	r.Route("/vaults/{id}", func(r chi.Router) {
		r.Get("/", h.GetVault)
		r.Get("/report", h.Report)
		r.Get("/metrics", h.Metrics)
		r.Get("/hubs", h.Hubs)
		r.Get("/orphans", h.Orphans)
		r.Get("/broken-links", h.BrokenLinks)
		r.Get("/clusters", h.Clusters)
		r.Get("/notes/*", h.NoteMetrics)
		r.Get("/scans/latest", h.LatestScan)
		r.Post("/scan", h.Scan)
		r.Post("/analyze", h.Analyze)
	})

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
