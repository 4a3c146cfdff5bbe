package intel

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// Store reads and writes intelligence records through the workspace,
// migrating legacy dossiers on first read.
type Store struct {
	ws     *workspace.Store
	logger *slog.Logger
}

// NewStore wires the intelligence store onto a workspace.
func NewStore(ws *workspace.Store, logger *slog.Logger) *Store {
	return &Store{ws: ws, logger: logger}
}

// Read returns the entity's intelligence record. When no record exists but
// a legacy dossier does, the dossier is migrated exactly once: the converted
// record is written as intelligence.json and the dossier left untouched, so
// the presence of intelligence.json is the migration evidence. An entity
// with neither file yields apperr.ErrNotFound. An unreadable dossier yields
// apperr.ErrMigration so legacy data is never silently shadowed.
func (s *Store) Read(key models.Key) (*Record, error) {
	data, err := s.ws.ReadIntelligence(key)
	if err == nil {
		return Decode(data)
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	legacy, derr := s.ws.ReadDossier(key)
	if derr != nil {
		if errors.Is(derr, apperr.ErrNotFound) {
			return nil, fmt.Errorf("intel: no record for %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("intel: read dossier for %s: %v: %w", key, derr, apperr.ErrMigration)
	}

	rec, merr := migrateDossier(key.Kind, legacy)
	if merr != nil {
		return nil, fmt.Errorf("intel: migrate dossier for %s: %v: %w", key, merr, apperr.ErrMigration)
	}
	if err := s.Write(key, rec); err != nil {
		return nil, fmt.Errorf("intel: persist migrated record for %s: %v: %w", key, err, apperr.ErrMigration)
	}
	s.logger.Info("intel: migrated legacy dossier",
		slog.String("entity", key.String()),
		slog.Int("revision", rec.Revision))
	return rec, nil
}

// Write validates and atomically persists the record.
func (s *Store) Write(key models.Key, rec *Record) error {
	data, err := rec.Encode()
	if err != nil {
		return err
	}
	return s.ws.WriteIntelligence(key, data)
}
