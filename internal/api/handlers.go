package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/enrich"
	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/slug"
	"github.com/jamesgiroux/dayos/internal/syncengine"
)

const maxBodyBytes = 1 << 20

// Handler holds API route handlers.
type Handler struct {
	svc    *entityservice.Service
	orch   *enrich.Orchestrator
	engine *syncengine.Engine
}

// NewHandler creates a new Handler.
func NewHandler(svc *entityservice.Service, orch *enrich.Orchestrator, engine *syncengine.Engine) *Handler {
	return &Handler{svc: svc, orch: orch, engine: engine}
}

// entityKey extracts and validates the {kind}/{slug} pair from the URL.
// The slug check keeps traversal attempts out of the workspace layer.
func entityKey(r *http.Request) (models.Key, error) {
	kind, err := models.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		return models.Key{}, err
	}
	sl := chi.URLParam(r, "slug")
	if !slug.Valid(sl) {
		return models.Key{}, errors.New("invalid slug")
	}
	return models.Key{Kind: kind, Slug: sl}, nil
}

// ListEntities handles GET /api/entities.
//
//	@Summary		List entities, optionally filtered by kind
//	@Tags			entities
//	@Produce		json
//	@Param			kind	query		string	false	"Entity kind"	Enums(account, project, person)
//	@Success		200		{object}	EntityListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	var kind models.Kind
	if raw := r.URL.Query().Get("kind"); raw != "" {
		parsed, err := models.ParseKind(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("unknown kind"))
			return
		}
		kind = parsed
	}

	items, err := h.svc.List(r.Context(), kind)
	if err != nil {
		slog.Error("list entities failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: items, Total: len(items)})
}

// CreateEntity handles POST /api/entities.
//
//	@Summary		Create an entity; the slug is derived from the name
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateEntityRequest	true	"Entity to create"
//	@Success		201		{object}	EntityDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities [post]
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	kind, _ := models.ParseKind(req.Kind)

	detail, err := h.svc.Create(r.Context(), kind, req.Name, req.Fields)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrAlreadyExists):
			writeJSON(w, http.StatusConflict, errorBody("entity already exists"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("slug already taken by a different entity"))
		case errors.Is(err, apperr.ErrParse):
			writeJSON(w, http.StatusBadRequest, errorBody("name does not produce a usable slug"))
		default:
			slog.Error("create entity failed", slog.String("name", req.Name), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, detail)
}

// GetEntity handles GET /api/entities/{kind}/{slug}.
//
//	@Summary		Get a single entity
//	@Tags			entities
//	@Produce		json
//	@Param			kind	path		string	true	"Entity kind"
//	@Param			slug	path		string	true	"Entity slug"
//	@Success		200		{object}	EntityDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	detail, err := h.svc.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get entity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// UpdateEntity handles PUT /api/entities/{kind}/{slug}.
//
//	@Summary		Replace an entity's name and fields with optimistic concurrency
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			kind		path	string				true	"Entity kind"
//	@Param			slug		path	string				true	"Entity slug"
//	@Param			If-Match	header	string				false	"Canonical fingerprint for optimistic concurrency"
//	@Param			body		body	UpdateEntityRequest	true	"Replacement name and fields"
//	@Success		200		{object}	EntityDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug} [put]
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var req UpdateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	ifMatch := trimETag(r.Header.Get("If-Match"))

	detail, err := h.svc.Update(r.Context(), key, req.Name, req.Fields, ifMatch)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConflict):
			writeJSON(w, http.StatusConflict, errorBody("fingerprint mismatch"))
		default:
			slog.Error("update entity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// DeleteEntity handles DELETE /api/entities/{kind}/{slug}.
//
//	@Summary		Delete an entity and its generated artifacts
//	@Tags			entities
//	@Param			kind	path	string	true	"Entity kind"
//	@Param			slug	path	string	true	"Entity slug"
//	@Success		204		"Entity deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug} [delete]
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.svc.Delete(r.Context(), key); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete entity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetNarrative handles GET /api/entities/{kind}/{slug}/narrative.
//
//	@Summary		Get the generated narrative Markdown
//	@Tags			entities
//	@Produce		text/markdown
//	@Param			kind	path	string	true	"Entity kind"
//	@Param			slug	path	string	true	"Entity slug"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug}/narrative [get]
func (h *Handler) GetNarrative(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	md, err := h.svc.Narrative(r.Context(), key)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get narrative failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeMarkdown(w, http.StatusOK, md)
}

// ListActivity handles GET /api/entities/{kind}/{slug}/activity.
//
//	@Summary		List recent activity for an entity
//	@Tags			activity
//	@Produce		json
//	@Param			kind	path		string	true	"Entity kind"
//	@Param			slug	path		string	true	"Entity slug"
//	@Param			limit	query		int		false	"Max entries"
//	@Success		200		{object}	map[string][]ActivityEntry
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug}/activity [get]
func (h *Handler) ListActivity(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.svc.Activity(r.Context(), key, limit)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("list activity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"activity": activityEntries(entries),
	})
}

// LogActivity handles POST /api/entities/{kind}/{slug}/activity.
//
//	@Summary		Append an activity note to an entity
//	@Tags			activity
//	@Accept			json
//	@Produce		json
//	@Param			kind	path		string				true	"Entity kind"
//	@Param			slug	path		string				true	"Entity slug"
//	@Param			body	body		LogActivityRequest	true	"Activity note"
//	@Success		201		{object}	map[string]string
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug}/activity [post]
func (h *Handler) LogActivity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var req LogActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if err := h.svc.LogActivity(r.Context(), key, req.OccurredAt, req.Note); err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrParse):
			writeJSON(w, http.StatusBadRequest, errorBody("note is required"))
		default:
			slog.Error("log activity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "logged"})
}

// EnrichEntity handles POST /api/entities/{kind}/{slug}/enrich.
//
//	@Summary		Run the enrichment pipeline for one entity
//	@Tags			enrich
//	@Produce		json
//	@Param			kind	path		string	true	"Entity kind"
//	@Param			slug	path		string	true	"Entity slug"
//	@Param			force	query		bool	false	"Resynthesize even when the brief is current"
//	@Success		200		{object}	EnrichResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{kind}/{slug}/enrich [post]
func (h *Handler) EnrichEntity(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	res, err := h.orch.Enrich(r.Context(), key, force)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrCall):
			writeJSON(w, http.StatusBadGateway, errorBody("enrichment command failed"))
		case errors.Is(err, apperr.ErrParse):
			writeJSON(w, http.StatusBadGateway, errorBody("enrichment reply unusable"))
		default:
			slog.Error("enrich entity failed", slog.String("entity", key.String()), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, EnrichResponse{
		RunID:    res.RunID,
		Kind:     key.Kind,
		Slug:     key.Slug,
		Skipped:  res.Skipped,
		Mode:     res.Mode,
		Revision: res.Revision,
	})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across entities
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string][]SearchResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results": searchResults(results),
	})
}

// Scan handles POST /api/scan.
//
//	@Summary		Run a full workspace reconciliation
//	@Tags			scan
//	@Produce		json
//	@Success		200	{object}	syncengine.ScanReport
//	@Security		BearerAuth
//	@Router			/scan [post]
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.ScanAll(r.Context())
	if err != nil {
		slog.Error("scan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// trimETag strips surrounding quotes if present (standard ETag format).
func trimETag(v string) string {
	if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
		return v[1 : len(v)-1]
	}
	return v
}
