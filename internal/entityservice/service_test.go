package entityservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/syncengine"
	"github.com/jamesgiroux/dayos/internal/testutil"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

func newService(t *testing.T) (*Service, *workspace.Store, *mirror.DB) {
	t.Helper()
	ws := testutil.TestWorkspace(t)
	db := testutil.TestMirror(t)
	logger := testutil.TestLogger(t)
	regen := narrative.NewRegenerator(ws, intel.NewStore(ws, logger), db, logger)
	engine := syncengine.New(ws, db, regen, logger)
	return NewService(ws, db, engine, regen, logger), ws, db
}

func TestCreateDerivesSlugAndConverges(t *testing.T) {
	svc, ws, db := newService(t)
	ctx := context.Background()

	detail, err := svc.Create(ctx, models.KindAccount, "Acme Corp!", map[string]any{"tier": "enterprise"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if detail.Slug != "acme-corp" {
		t.Errorf("slug = %q, want acme-corp", detail.Slug)
	}
	if detail.Fingerprint == "" {
		t.Error("fingerprint missing")
	}

	key := models.Key{Kind: models.KindAccount, Slug: "acme-corp"}
	if !ws.HasCanonical(key) {
		t.Error("canonical file missing after create")
	}
	row, err := db.Get(key)
	if err != nil || row == nil {
		t.Fatalf("mirror row = (%v, %v), want converged row", row, err)
	}
	if row.Fingerprint != detail.Fingerprint {
		t.Errorf("mirror fingerprint = %q, want %q", row.Fingerprint, detail.Fingerprint)
	}
	md, err := ws.ReadNarrative(key)
	if err != nil {
		t.Fatalf("narrative missing after create: %v", err)
	}
	if !strings.Contains(string(md), "# Acme Corp!") {
		t.Errorf("narrative heading wrong:\n%s", md)
	}

	entries, err := db.RecentActivity(key, 5)
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Note != "record created" {
		t.Errorf("breadcrumb entries = %+v", entries)
	}
}

func TestCreateCollisions(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, models.KindAccount, "Acme Corp", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Create(ctx, models.KindAccount, "Acme Corp", nil); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("same name again = %v, want ErrAlreadyExists", err)
	}
	// Different name, same derived slug.
	if _, err := svc.Create(ctx, models.KindAccount, "Acme  Corp", nil); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("slug collision = %v, want ErrConflict", err)
	}
	// Same slug under a different kind is a separate namespace.
	if _, err := svc.Create(ctx, models.KindProject, "Acme Corp", nil); err != nil {
		t.Errorf("same slug across kinds = %v, want nil", err)
	}
	// A name with no sluggable characters.
	if _, err := svc.Create(ctx, models.KindPerson, "!!!", nil); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("unsluggable name = %v, want ErrParse", err)
	}
}

func TestCreateRefusesCorruptExternalFile(t *testing.T) {
	svc, ws, _ := newService(t)
	ctx := context.Background()

	// An external writer left a half-written file at the derived slug.
	dir := filepath.Join(ws.Root(), "accounts", "acme-co")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	corrupt := []byte(`{"name": "Acme Co", "fields": {`)
	path := filepath.Join(dir, "canonical.json")
	if err := os.WriteFile(path, corrupt, 0o644); err != nil {
		t.Fatalf("seed corrupt file: %v", err)
	}

	if _, err := svc.Create(ctx, models.KindAccount, "Acme Co", nil); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("create over corrupt file = %v, want ErrParse", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != string(corrupt) {
		t.Error("corrupt external file was overwritten")
	}
}

func TestUpdateFingerprintGate(t *testing.T) {
	svc, ws, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.KindProject, "Apollo Launch", map[string]any{"status": "active"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := models.Key{Kind: models.KindProject, Slug: created.Slug}

	updated, err := svc.Update(ctx, key, "Apollo Launch", map[string]any{"status": "at_risk"}, created.Fingerprint)
	if err != nil {
		t.Fatalf("update with current fingerprint: %v", err)
	}
	if updated.Fingerprint == created.Fingerprint {
		t.Error("fingerprint did not change after update")
	}

	_, err = svc.Update(ctx, key, "Apollo Launch", nil, created.Fingerprint)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale fingerprint = %v, want ErrConflict", err)
	}

	// Empty ifMatch skips the gate.
	if _, err := svc.Update(ctx, key, "Apollo Launch", nil, ""); err != nil {
		t.Errorf("update without ifMatch = %v", err)
	}

	md, err := ws.ReadNarrative(key)
	if err != nil {
		t.Fatalf("read narrative: %v", err)
	}
	if !strings.Contains(string(md), "record updated") {
		t.Errorf("narrative missing update breadcrumb:\n%s", md)
	}
}

func TestUpdateMissingEntity(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.Update(context.Background(), models.Key{Kind: models.KindPerson, Slug: "ghost"}, "Ghost", nil, "")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteEntity(t *testing.T) {
	svc, ws, db := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.KindAccount, "Globex", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := models.Key{Kind: models.KindAccount, Slug: created.Slug}

	if err := svc.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ws.HasCanonical(key) {
		t.Error("canonical file survived delete")
	}
	row, err := db.Get(key)
	if err != nil {
		t.Fatalf("get row: %v", err)
	}
	if row != nil {
		t.Error("mirror row survived delete")
	}
	if err := svc.Delete(ctx, key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestLogActivityRefreshesNarrative(t *testing.T) {
	svc, ws, _ := newService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.KindPerson, "Dana Kim", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	key := models.Key{Kind: models.KindPerson, Slug: created.Slug}

	if err := svc.LogActivity(ctx, key, time.Time{}, "grabbed coffee, discussed the platform migration"); err != nil {
		t.Fatalf("log activity: %v", err)
	}
	md, err := ws.ReadNarrative(key)
	if err != nil {
		t.Fatalf("read narrative: %v", err)
	}
	if !strings.Contains(string(md), "grabbed coffee") {
		t.Errorf("narrative missing fresh activity:\n%s", md)
	}

	if err := svc.LogActivity(ctx, key, time.Time{}, "   "); !errors.Is(err, apperr.ErrParse) {
		t.Errorf("blank note = %v, want ErrParse", err)
	}
	ghost := models.Key{Kind: models.KindPerson, Slug: "ghost"}
	if err := svc.LogActivity(ctx, ghost, time.Time{}, "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ghost entity = %v, want ErrNotFound", err)
	}
}

func TestListAndSearch(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	for _, c := range []struct {
		kind models.Kind
		name string
	}{
		{models.KindAccount, "Acme Corp"},
		{models.KindAccount, "Globex"},
		{models.KindProject, "Apollo Launch"},
	} {
		if _, err := svc.Create(ctx, c.kind, c.name, map[string]any{"summary": "workspace fixture"}); err != nil {
			t.Fatalf("create %s: %v", c.name, err)
		}
	}

	all, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("list all = %d, want 3", len(all))
	}
	accounts, err := svc.List(ctx, models.KindAccount)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("accounts = %d, want 2", len(accounts))
	}

	hits, err := svc.Search(ctx, "Globex", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].Key.Slug != "globex" {
		t.Errorf("search hits = %+v", hits)
	}

	empty, err := svc.Search(ctx, "   ", 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("blank query = (%v, %v), want empty result", empty, err)
	}
}
