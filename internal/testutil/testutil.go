// Package testutil provides shared test helpers for setting up workspaces
// and mirror databases.
package testutil

import (
	"log/slog"
	"os"
	"testing"

	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

// TestMirror creates a temporary SQLite mirror that is automatically
// cleaned up.
func TestMirror(t *testing.T) *mirror.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dayos-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := mirror.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace with the kind directories in
// place.
func TestWorkspace(t *testing.T) *workspace.Store {
	t.Helper()
	ws, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

// TestLogger returns a logger that only surfaces errors, keeping test
// output quiet.
func TestLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
