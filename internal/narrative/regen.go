package narrative

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

const recentActivityLimit = 10

// Regenerator renders and overwrites narrative files. Intelligence or
// activity problems degrade the document rather than failing it — the
// artifact is advisory, so a narrative with canonical data only still beats
// no narrative.
type Regenerator struct {
	ws     *workspace.Store
	intel  *intel.Store
	mirror mirror.Store
	logger *slog.Logger
}

// NewRegenerator wires a Regenerator.
func NewRegenerator(ws *workspace.Store, intelStore *intel.Store, m mirror.Store, logger *slog.Logger) *Regenerator {
	return &Regenerator{ws: ws, intel: intelStore, mirror: m, logger: logger}
}

// Regenerate rebuilds one entity's narrative from its current canonical
// record, intelligence record, and recent activity.
func (r *Regenerator) Regenerate(key models.Key) error {
	rec, _, err := r.ws.ReadCanonical(key)
	if err != nil {
		return err
	}

	brief, err := r.intel.Read(key)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		r.logger.Warn("narrative: intelligence unavailable",
			slog.String("entity", key.String()),
			slog.String("error", err.Error()))
	}

	activity, err := r.mirror.RecentActivity(key, recentActivityLimit)
	if err != nil {
		r.logger.Warn("narrative: activity unavailable",
			slog.String("entity", key.String()),
			slog.String("error", err.Error()))
	}

	doc := Render(Input{
		Key:      key,
		Record:   rec,
		Intel:    brief,
		Activity: activity,
		Now:      time.Now(),
	})
	return r.ws.WriteNarrative(key, doc)
}
