package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jamesgiroux/dayos/internal/enrich"
	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/syncengine"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *entityservice.Service, orch *enrich.Orchestrator, engine *syncengine.Engine, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, orch, engine)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Entity CRUD.
	r.Get("/entities", h.ListEntities)
	r.Post("/entities", h.CreateEntity)
	r.Get("/entities/{kind}/{slug}", h.GetEntity)
	r.Put("/entities/{kind}/{slug}", h.UpdateEntity)
	r.Delete("/entities/{kind}/{slug}", h.DeleteEntity)

	// Generated narrative.
	r.Get("/entities/{kind}/{slug}/narrative", h.GetNarrative)

	// Activity log.
	r.Get("/entities/{kind}/{slug}/activity", h.ListActivity)
	r.Post("/entities/{kind}/{slug}/activity", h.LogActivity)

	// Enrichment trigger.
	r.Post("/entities/{kind}/{slug}/enrich", h.EnrichEntity)

	// Search.
	r.Get("/search", h.Search)

	// Full reconciliation.
	r.Post("/scan", h.Scan)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
