package syncengine

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// scanDebounce is how long the watcher waits after a removal or rename
// before running a full scan, so a burst of events folds into one pass.
const scanDebounce = 200 * time.Millisecond

// Watch observes the workspace until ctx is cancelled. Writes to a
// canonical file reconcile that entity directly; removals and renames fall
// back to a debounced full scan, since those events do not say what the
// directory now contains.
func (e *Engine) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sync: create watcher: %w", err)
	}
	defer watcher.Close()

	root := e.ws.Root()
	if err := addDirsRecursive(watcher, root); err != nil {
		return fmt.Errorf("sync: watch workspace: %w", err)
	}

	var (
		mu      sync.Mutex
		pending *time.Timer
	)
	defer func() {
		mu.Lock()
		if pending != nil {
			pending.Stop()
		}
		mu.Unlock()
	}()

	scheduleScan := func() {
		mu.Lock()
		defer mu.Unlock()
		if pending != nil {
			pending.Stop()
		}
		pending = time.AfterFunc(scanDebounce, func() {
			if _, err := e.ScanAll(ctx); err != nil {
				e.logger.Warn("sync: rescan failed", slog.String("error", err.Error()))
			}
		})
	}

	e.logger.Info("sync: watching workspace", slog.String("dir", root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			e.handleEvent(watcher, event, scheduleScan)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("sync: watcher error", slog.String("error", err.Error()))
		}
	}
}

func (e *Engine) handleEvent(watcher *fsnotify.Watcher, event fsnotify.Event, scheduleScan func()) {
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addDirsRecursive(watcher, event.Name); err != nil {
				e.logger.Warn("sync: watch new dir",
					slog.String("dir", event.Name),
					slog.String("error", err.Error()))
			}
			e.reconcileTree(event.Name)
			return
		}
	}

	if base != workspace.CanonicalFile {
		// Narrative, intelligence and dossier writes never feed back into
		// the mirror. A removed or renamed directory still needs a rescan.
		if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
			scheduleScan()
		}
		return
	}

	key, ok := e.keyFromPath(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if _, err := e.Reconcile(key); err != nil {
			e.logger.Warn("sync: reconcile failed",
				slog.String("entity", key.String()),
				slog.String("error", err.Error()))
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		if err := e.mirror.Delete(key); err != nil {
			e.logger.Warn("sync: delete mirror row",
				slog.String("entity", key.String()),
				slog.String("error", err.Error()))
			return
		}
		e.logger.Debug("sync: entity removed", slog.String("entity", key.String()))
		e.emit(EventDeleted, key)
		scheduleScan()
	}
}

// reconcileTree reconciles every canonical file under dir. It runs when a
// directory appears whole, e.g. restored from a backup, where the watcher
// may have missed the file events inside it.
func (e *Engine) reconcileTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != workspace.CanonicalFile {
			return err
		}
		key, ok := e.keyFromPath(path)
		if !ok {
			return nil
		}
		if _, err := e.Reconcile(key); err != nil {
			e.logger.Warn("sync: reconcile failed",
				slog.String("entity", key.String()),
				slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("sync: walk new dir",
			slog.String("dir", dir),
			slog.String("error", err.Error()))
	}
}

// keyFromPath maps {root}/{kind dir}/{slug}/canonical.json to its key.
func (e *Engine) keyFromPath(path string) (models.Key, bool) {
	rel, err := filepath.Rel(e.ws.Root(), path)
	if err != nil {
		return models.Key{}, false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 || parts[2] != workspace.CanonicalFile {
		return models.Key{}, false
	}
	kind, ok := models.KindFromDir(parts[0])
	if !ok {
		return models.Key{}, false
	}
	return models.Key{Kind: kind, Slug: parts[1]}, true
}

func addDirsRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != root {
			return fs.SkipDir
		}
		return watcher.Add(path)
	})
}
