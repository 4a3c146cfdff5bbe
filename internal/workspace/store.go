// Package workspace implements the on-disk entity store: one directory per
// entity holding its canonical record, its synthesized intelligence record,
// and its generated narrative. All writes go through an atomic
// write-to-temp → fsync → rename sequence so no reader ever observes a
// partially written file.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/fingerprint"
	"github.com/jamesgiroux/dayos/internal/models"
)

// File names inside an entity directory. Canonical and intelligence data
// never share a file; the narrative is generated output only.
const (
	CanonicalFile    = "canonical.json"
	IntelligenceFile = "intelligence.json"
	NarrativeFile    = "narrative.md"
	DossierFile      = "dossier.json"
)

// Store resolves entity directories and performs record I/O.
type Store struct {
	fs *fsRoot
}

// New creates a Store rooted at dir and ensures the per-kind directories
// exist. The root itself must already exist.
func New(dir string) (*Store, error) {
	fs, err := newFSRoot(dir)
	if err != nil {
		return nil, err
	}
	for _, k := range models.Kinds() {
		if err := os.MkdirAll(filepath.Join(fs.root, k.Dir()), 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create %s dir: %w", k.Dir(), err)
		}
	}
	return &Store{fs: fs}, nil
}

// Root returns the absolute workspace root path.
func (s *Store) Root() string { return s.fs.root }

// EntityDir returns the absolute directory for one entity.
func (s *Store) EntityDir(key models.Key) string {
	return filepath.Join(s.fs.root, key.Kind.Dir(), key.Slug)
}

func entityPath(key models.Key, file string) (string, error) {
	if key.Slug == "" {
		return "", fmt.Errorf("workspace: empty slug for kind %s", key.Kind)
	}
	return filepath.Join(key.Kind.Dir(), key.Slug, file), nil
}

// ReadCanonical loads and decodes an entity's canonical record and returns
// the fingerprint of the exact bytes read. A missing file is
// apperr.ErrNotFound; undecodable content is apperr.ErrParse.
func (s *Store) ReadCanonical(key models.Key) (*models.CanonicalRecord, string, error) {
	rel, err := entityPath(key, CanonicalFile)
	if err != nil {
		return nil, "", err
	}
	data, err := s.fs.read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", fmt.Errorf("workspace: canonical record %s: %w", key, apperr.ErrNotFound)
		}
		return nil, "", err
	}
	rec, err := models.DecodeCanonical(data)
	if err != nil {
		return nil, "", fmt.Errorf("workspace: %s: %w", key, err)
	}
	if rec.Kind == "" {
		rec.Kind = key.Kind
	}
	return rec, fingerprint.Sum(data), nil
}

// WriteCanonical stamps last_modified, serializes the record, and atomically
// replaces canonical.json. It returns the fingerprint of the written bytes.
func (s *Store) WriteCanonical(key models.Key, rec *models.CanonicalRecord) (string, error) {
	rel, err := entityPath(key, CanonicalFile)
	if err != nil {
		return "", err
	}
	rec.LastModified = time.Now().UTC().Truncate(time.Second)
	data, err := rec.Encode()
	if err != nil {
		return "", err
	}
	if err := s.fs.write(rel, data); err != nil {
		return "", err
	}
	return fingerprint.Sum(data), nil
}

// HasCanonical reports whether the entity's canonical file exists.
func (s *Store) HasCanonical(key models.Key) bool {
	rel, err := entityPath(key, CanonicalFile)
	if err != nil {
		return false
	}
	return s.fs.exists(rel)
}

// ReadNarrative returns the generated narrative bytes, apperr.ErrNotFound
// when none has been generated yet.
func (s *Store) ReadNarrative(key models.Key) ([]byte, error) {
	rel, err := entityPath(key, NarrativeFile)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workspace: narrative %s: %w", key, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// WriteNarrative atomically replaces the narrative artifact. The file is
// write-only output: nothing in the engine ever reads it back for state.
func (s *Store) WriteNarrative(key models.Key, data []byte) error {
	rel, err := entityPath(key, NarrativeFile)
	if err != nil {
		return err
	}
	return s.fs.write(rel, data)
}

// ReadIntelligence returns the raw intelligence.json bytes,
// apperr.ErrNotFound when the record has never been synthesized.
func (s *Store) ReadIntelligence(key models.Key) ([]byte, error) {
	rel, err := entityPath(key, IntelligenceFile)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workspace: intelligence record %s: %w", key, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// WriteIntelligence atomically replaces intelligence.json.
func (s *Store) WriteIntelligence(key models.Key, data []byte) error {
	rel, err := entityPath(key, IntelligenceFile)
	if err != nil {
		return err
	}
	return s.fs.write(rel, data)
}

// ReadDossier returns the raw legacy single-blob record, apperr.ErrNotFound
// when the entity never had one.
func (s *Store) ReadDossier(key models.Key) ([]byte, error) {
	rel, err := entityPath(key, DossierFile)
	if err != nil {
		return nil, err
	}
	data, err := s.fs.read(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("workspace: dossier %s: %w", key, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// RemoveEntity deletes the entity's directory subtree.
func (s *Store) RemoveEntity(key models.Key) error {
	if key.Slug == "" {
		return fmt.Errorf("workspace: empty slug for kind %s", key.Kind)
	}
	return s.fs.removeDir(filepath.Join(key.Kind.Dir(), key.Slug))
}

// List returns the keys of every entity of one kind that has a canonical
// record on disk, sorted by slug.
func (s *Store) List(kind models.Kind) ([]models.Key, error) {
	slugs, err := s.fs.subdirs(kind.Dir())
	if err != nil {
		return nil, err
	}
	var out []models.Key
	for _, sl := range slugs {
		key := models.Key{Kind: kind, Slug: sl}
		if s.HasCanonical(key) {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

// ListAll returns every entity key across all kinds.
func (s *Store) ListAll() ([]models.Key, error) {
	var out []models.Key
	for _, k := range models.Kinds() {
		keys, err := s.List(k)
		if err != nil {
			return nil, err
		}
		out = append(out, keys...)
	}
	return out, nil
}
