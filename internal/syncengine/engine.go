// Package syncengine converges the SQLite mirror and the generated
// narratives with the canonical files on disk. Canonical files win every
// conflict; the engine never writes a canonical file.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// Events emitted through OnEvent.
const (
	// EventSynced fires after an entity's mirror row was inserted or updated.
	EventSynced = "entity.synced"
	// EventDeleted fires after an entity's mirror row was removed.
	EventDeleted = "entity.deleted"
	// EventScanned fires after a full workspace scan completes. The key is
	// the zero value.
	EventScanned = "workspace.scanned"
)

// scanConcurrency bounds parallel reconciles during a full scan.
const scanConcurrency = 4

// EventCallback receives mirror change notifications. Callbacks run on the
// reconcile path and must not block.
type EventCallback func(event string, key models.Key)

// Engine keeps the relational mirror and the narrative artifacts in step
// with the canonical records.
type Engine struct {
	ws     *workspace.Store
	mirror mirror.Store
	regen  *narrative.Regenerator
	logger *slog.Logger

	// OnEvent, when set, is invoked after every mirror change.
	OnEvent EventCallback
}

// New creates a sync engine over the given workspace and mirror.
func New(ws *workspace.Store, m mirror.Store, regen *narrative.Regenerator, logger *slog.Logger) *Engine {
	return &Engine{ws: ws, mirror: m, regen: regen, logger: logger}
}

func (e *Engine) emit(event string, key models.Key) {
	if e.OnEvent != nil {
		e.OnEvent(event, key)
	}
}

// Reconcile converges one entity: it reads the canonical file, compares its
// fingerprint with the mirror row, and upserts the row and regenerates the
// narrative when they differ. It reports whether the mirror changed.
//
// A narrative failure does not fail the reconcile. The mirror is already
// converged at that point, so returning an error would leave the fingerprints
// equal and the narrative permanently stale; the artifact is advisory and the
// next successful write catches it up.
func (e *Engine) Reconcile(key models.Key) (bool, error) {
	rec, fp, err := e.ws.ReadCanonical(key)
	if err != nil {
		return false, err
	}

	row, err := e.mirror.Get(key)
	if err != nil {
		return false, err
	}
	if row != nil && row.Fingerprint == fp {
		return false, nil
	}

	err = e.mirror.Upsert(mirror.EntityRow{
		Key:          key,
		Name:         rec.Name,
		Fields:       rec.Fields,
		LastModified: rec.LastModified,
		Fingerprint:  fp,
	})
	if err != nil {
		return false, err
	}

	if err := e.regen.Regenerate(key); err != nil {
		e.logger.Warn("sync: narrative regeneration failed",
			slog.String("entity", key.String()),
			slog.String("error", err.Error()))
	}

	e.logger.Debug("sync: entity reconciled",
		slog.String("entity", key.String()),
		slog.String("fingerprint", fp))
	e.emit(EventSynced, key)
	return true, nil
}

// ScanReport summarizes a full workspace scan.
type ScanReport struct {
	Checked int `json:"checked"`
	Synced  int `json:"synced"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

// ScanAll reconciles every entity in the workspace and prunes mirror rows
// whose canonical file disappeared. Per-entity failures are logged and
// counted, never fatal; the scan visits everything it can.
func (e *Engine) ScanAll(ctx context.Context) (ScanReport, error) {
	keys, err := e.ws.ListAll()
	if err != nil {
		return ScanReport{}, fmt.Errorf("sync: list workspace: %w", err)
	}

	var (
		mu     sync.Mutex
		report = ScanReport{Checked: len(keys)}
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			changed, err := e.Reconcile(key)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				e.logger.Warn("sync: reconcile failed",
					slog.String("entity", key.String()),
					slog.String("error", err.Error()))
				return nil
			}
			if changed {
				report.Synced++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	known := make(map[models.Key]bool, len(keys))
	for _, key := range keys {
		known[key] = true
	}
	synced, err := e.mirror.SyncedFingerprints()
	if err != nil {
		return report, err
	}
	for key := range synced {
		if known[key] {
			continue
		}
		if err := e.mirror.Delete(key); err != nil {
			report.Failed++
			e.logger.Warn("sync: prune mirror row",
				slog.String("entity", key.String()),
				slog.String("error", err.Error()))
			continue
		}
		report.Removed++
		e.emit(EventDeleted, key)
	}

	e.logger.Info("sync: scan complete",
		slog.Int("checked", report.Checked),
		slog.Int("synced", report.Synced),
		slog.Int("removed", report.Removed),
		slog.Int("failed", report.Failed))
	e.emit(EventScanned, models.Key{})
	return report, nil
}
