package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/models"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewCreatesKindDirs(t *testing.T) {
	s := tempStore(t)
	for _, k := range models.Kinds() {
		info, err := os.Stat(filepath.Join(s.Root(), k.Dir()))
		if err != nil {
			t.Fatalf("stat %s: %v", k.Dir(), err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", k.Dir())
		}
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindAccount, Slug: "acme"}
	rec := &models.CanonicalRecord{
		Kind: models.KindAccount,
		Name: "Acme Corp",
		Fields: map[string]any{
			"industry": "manufacturing",
			"tier":     "strategic",
		},
	}

	wroteFP, err := s.WriteCanonical(key, rec)
	if err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}
	if wroteFP == "" {
		t.Fatal("empty fingerprint from write")
	}
	if rec.LastModified.IsZero() {
		t.Error("WriteCanonical did not stamp last_modified")
	}

	got, readFP, err := s.ReadCanonical(key)
	if err != nil {
		t.Fatalf("ReadCanonical: %v", err)
	}
	if readFP != wroteFP {
		t.Errorf("fingerprint mismatch: wrote %s read %s", wroteFP, readFP)
	}
	if got.Name != "Acme Corp" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Fields["industry"] != "manufacturing" {
		t.Errorf("Fields = %v", got.Fields)
	}
}

func TestRewriteChangesFingerprint(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindProject, Slug: "apollo"}
	rec := &models.CanonicalRecord{Kind: models.KindProject, Name: "Apollo"}

	fp1, err := s.WriteCanonical(key, rec)
	if err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}
	rec.Fields = map[string]any{"status": "active"}
	fp2, err := s.WriteCanonical(key, rec)
	if err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}
	if fp1 == fp2 {
		t.Error("fingerprint unchanged after content change")
	}
}

func TestReadCanonicalMissing(t *testing.T) {
	s := tempStore(t)
	_, _, err := s.ReadCanonical(models.Key{Kind: models.KindPerson, Slug: "nobody"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReadCanonicalMalformed(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindAccount, Slug: "broken"}
	path := filepath.Join(s.Root(), "accounts", "broken", "canonical.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := s.ReadCanonical(key)
	if !errors.Is(err, apperr.ErrParse) {
		t.Errorf("err = %v, want ErrParse", err)
	}
}

func TestNarrativeRoundTrip(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindPerson, Slug: "jane-doe"}
	if _, err := s.ReadNarrative(key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing narrative err = %v, want ErrNotFound", err)
	}
	doc := []byte("# Jane Doe\n\nIntroductions.\n")
	if err := s.WriteNarrative(key, doc); err != nil {
		t.Fatalf("WriteNarrative: %v", err)
	}
	got, err := s.ReadNarrative(key)
	if err != nil {
		t.Fatalf("ReadNarrative: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("narrative = %q", got)
	}
}

func TestIntelligenceRoundTrip(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindAccount, Slug: "acme"}
	if _, err := s.ReadIntelligence(key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing intelligence err = %v, want ErrNotFound", err)
	}
	blob := []byte(`{"revision":1}` + "\n")
	if err := s.WriteIntelligence(key, blob); err != nil {
		t.Fatalf("WriteIntelligence: %v", err)
	}
	got, err := s.ReadIntelligence(key)
	if err != nil {
		t.Fatalf("ReadIntelligence: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("intelligence = %q", got)
	}
}

func TestReadDossierMissing(t *testing.T) {
	s := tempStore(t)
	_, err := s.ReadDossier(models.Key{Kind: models.KindProject, Slug: "apollo"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSkipsDirsWithoutCanonical(t *testing.T) {
	s := tempStore(t)
	keyA := models.Key{Kind: models.KindAccount, Slug: "acme"}
	if _, err := s.WriteCanonical(keyA, &models.CanonicalRecord{Kind: models.KindAccount, Name: "Acme"}); err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}
	// A directory with only a narrative is not an entity.
	orphan := models.Key{Kind: models.KindAccount, Slug: "ghost"}
	if err := s.WriteNarrative(orphan, []byte("# Ghost\n")); err != nil {
		t.Fatalf("WriteNarrative: %v", err)
	}

	keys, err := s.List(models.KindAccount)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != keyA {
		t.Errorf("keys = %v, want [%v]", keys, keyA)
	}
}

func TestListAll(t *testing.T) {
	s := tempStore(t)
	want := []models.Key{
		{Kind: models.KindAccount, Slug: "acme"},
		{Kind: models.KindProject, Slug: "apollo"},
		{Kind: models.KindPerson, Slug: "jane-doe"},
	}
	for _, key := range want {
		rec := &models.CanonicalRecord{Kind: key.Kind, Name: key.Slug}
		if _, err := s.WriteCanonical(key, rec); err != nil {
			t.Fatalf("WriteCanonical %v: %v", key, err)
		}
	}

	got, err := s.ListAll()
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRemoveEntity(t *testing.T) {
	s := tempStore(t)
	key := models.Key{Kind: models.KindProject, Slug: "apollo"}
	if _, err := s.WriteCanonical(key, &models.CanonicalRecord{Kind: models.KindProject, Name: "Apollo"}); err != nil {
		t.Fatalf("WriteCanonical: %v", err)
	}
	if err := s.WriteNarrative(key, []byte("# Apollo\n")); err != nil {
		t.Fatalf("WriteNarrative: %v", err)
	}

	if err := s.RemoveEntity(key); err != nil {
		t.Fatalf("RemoveEntity: %v", err)
	}
	if s.HasCanonical(key) {
		t.Error("canonical still present after RemoveEntity")
	}
	if _, _, err := s.ReadCanonical(key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
