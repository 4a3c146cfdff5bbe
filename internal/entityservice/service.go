// Package entityservice coordinates canonical files, the mirror and the
// sync engine behind one API used by both the HTTP handlers and the MCP
// tools.
package entityservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/slug"
	"github.com/jamesgiroux/dayos/internal/syncengine"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// Activity breadcrumbs written on entity mutations.
const (
	noteCreated = "record created"
	noteUpdated = "record updated"
)

// EntityDetail is the full representation of an entity.
type EntityDetail struct {
	Kind         models.Kind    `json:"kind"`
	Slug         string         `json:"slug"`
	Name         string         `json:"name"`
	Fields       map[string]any `json:"fields"`
	Fingerprint  string         `json:"fingerprint"`
	LastModified time.Time      `json:"last_modified"`
}

// EntityListItem is a lightweight item in a list response.
type EntityListItem struct {
	Kind         models.Kind `json:"kind"`
	Slug         string      `json:"slug"`
	Name         string      `json:"name"`
	LastModified time.Time   `json:"last_modified"`
}

// Service coordinates workspace and mirror operations. Writes go to the
// canonical file first, then reconcile synchronously so the mirror and the
// narrative are converged before the call returns.
type Service struct {
	ws     *workspace.Store
	mirror mirror.Store
	engine *syncengine.Engine
	regen  *narrative.Regenerator
	logger *slog.Logger
}

// NewService creates a new entity service.
func NewService(ws *workspace.Store, m mirror.Store, engine *syncengine.Engine, regen *narrative.Regenerator, logger *slog.Logger) *Service {
	return &Service{ws: ws, mirror: m, engine: engine, regen: regen, logger: logger}
}

// Create derives the slug from the name, writes the canonical file and
// reconciles. A slug held by an entity with a different name is ErrConflict;
// re-creating the same name is ErrAlreadyExists. An unreadable canonical
// file already at the slug refuses the create: the file is jointly owned,
// and an external writer's botched edit must never be silently replaced.
func (s *Service) Create(_ context.Context, kind models.Kind, name string, fields map[string]any) (*EntityDetail, error) {
	sl := slug.Make(name)
	if sl == "" {
		return nil, apperr.ErrParse
	}
	key := models.Key{Kind: kind, Slug: sl}

	existing, _, err := s.ws.ReadCanonical(key)
	switch {
	case err == nil:
		if existing.Name == name {
			return nil, apperr.ErrAlreadyExists
		}
		return nil, apperr.ErrConflict
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}

	rec := &models.CanonicalRecord{Kind: kind, Name: name, Fields: fields}
	fp, err := s.ws.WriteCanonical(key, rec)
	if err != nil {
		return nil, err
	}
	s.logActivity(key, noteCreated)
	if _, err := s.engine.Reconcile(key); err != nil {
		return nil, err
	}
	return s.detail(key, rec, fp), nil
}

// Get reads an entity's canonical record.
func (s *Service) Get(_ context.Context, key models.Key) (*EntityDetail, error) {
	rec, fp, err := s.ws.ReadCanonical(key)
	if err != nil {
		return nil, err
	}
	return s.detail(key, rec, fp), nil
}

// Update replaces the entity's name and fields with optimistic concurrency:
// a non-empty ifMatch must equal the current fingerprint or the update is
// rejected with ErrConflict.
func (s *Service) Update(_ context.Context, key models.Key, name string, fields map[string]any, ifMatch string) (*EntityDetail, error) {
	existing, fp, err := s.ws.ReadCanonical(key)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != fp {
		return nil, apperr.ErrConflict
	}
	if name == "" {
		name = existing.Name
	}

	rec := &models.CanonicalRecord{Kind: key.Kind, Name: name, Fields: fields}
	newFP, err := s.ws.WriteCanonical(key, rec)
	if err != nil {
		return nil, err
	}
	s.logActivity(key, noteUpdated)
	if _, err := s.engine.Reconcile(key); err != nil {
		return nil, err
	}
	return s.detail(key, rec, newFP), nil
}

// Delete removes the entity directory and its mirror row.
func (s *Service) Delete(_ context.Context, key models.Key) error {
	if !s.ws.HasCanonical(key) {
		return apperr.ErrNotFound
	}
	if err := s.ws.RemoveEntity(key); err != nil {
		return err
	}
	return s.mirror.Delete(key)
}

// List returns entities from the mirror, all kinds when kind is empty.
func (s *Service) List(_ context.Context, kind models.Kind) ([]EntityListItem, error) {
	rows, err := s.mirror.List(kind)
	if err != nil {
		return nil, err
	}
	items := make([]EntityListItem, len(rows))
	for i, r := range rows {
		items[i] = EntityListItem{
			Kind:         r.Key.Kind,
			Slug:         r.Key.Slug,
			Name:         r.Name,
			LastModified: r.LastModified,
		}
	}
	return items, nil
}

// Narrative returns the generated Markdown for an entity.
func (s *Service) Narrative(_ context.Context, key models.Key) ([]byte, error) {
	return s.ws.ReadNarrative(key)
}

// Activity returns the most recent activity entries for an entity.
func (s *Service) Activity(_ context.Context, key models.Key, limit int) ([]mirror.ActivityEntry, error) {
	if !s.ws.HasCanonical(key) {
		return nil, apperr.ErrNotFound
	}
	entries, err := s.mirror.RecentActivity(key, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []mirror.ActivityEntry{}
	}
	return entries, nil
}

// LogActivity appends a timestamped note to an entity's activity log and
// refreshes the narrative so the entry shows up without a canonical write.
func (s *Service) LogActivity(_ context.Context, key models.Key, occurredAt time.Time, note string) error {
	if strings.TrimSpace(note) == "" {
		return apperr.ErrParse
	}
	if !s.ws.HasCanonical(key) {
		return apperr.ErrNotFound
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	if err := s.mirror.AppendActivity(key, occurredAt, note); err != nil {
		return err
	}
	if err := s.regen.Regenerate(key); err != nil {
		s.logger.Warn("entityservice: narrative refresh failed",
			slog.String("entity", key.String()),
			slog.String("error", err.Error()))
	}
	return nil
}

// Search delegates full-text search to the mirror.
func (s *Service) Search(_ context.Context, query string, limit int) ([]mirror.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []mirror.SearchResult{}, nil
	}
	results, err := s.mirror.Search(query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []mirror.SearchResult{}
	}
	return results, nil
}

// logActivity records a mutation breadcrumb. Failures are logged, not
// returned: the canonical write already succeeded and the log is advisory.
func (s *Service) logActivity(key models.Key, note string) {
	if err := s.mirror.AppendActivity(key, time.Now().UTC(), note); err != nil {
		s.logger.Warn("entityservice: append activity failed",
			slog.String("entity", key.String()),
			slog.String("error", err.Error()))
	}
}

func (s *Service) detail(key models.Key, rec *models.CanonicalRecord, fp string) *EntityDetail {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	return &EntityDetail{
		Kind:         key.Kind,
		Slug:         key.Slug,
		Name:         rec.Name,
		Fields:       fields,
		Fingerprint:  fp,
		LastModified: rec.LastModified,
	}
}
