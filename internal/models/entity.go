// Package models defines the domain types for dayos entities.
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
)

// Kind identifies the class of a tracked entity.
type Kind string

const (
	KindAccount Kind = "account"
	KindProject Kind = "project"
	KindPerson  Kind = "person"
)

// Kinds returns every supported entity kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindAccount, KindProject, KindPerson}
}

// ParseKind validates a kind string from config, URLs, or tool arguments.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAccount, KindProject, KindPerson:
		return Kind(s), nil
	}
	return "", fmt.Errorf("models: unknown entity kind %q", s)
}

// Dir returns the workspace directory name holding entities of this kind.
func (k Kind) Dir() string {
	switch k {
	case KindAccount:
		return "accounts"
	case KindProject:
		return "projects"
	case KindPerson:
		return "people"
	}
	return string(k)
}

func (k Kind) String() string { return string(k) }

// KindFromDir maps a workspace directory name back to its kind.
func KindFromDir(dir string) (Kind, bool) {
	for _, k := range Kinds() {
		if k.Dir() == dir {
			return k, true
		}
	}
	return "", false
}

// Key uniquely identifies one entity across every store.
type Key struct {
	Kind Kind   `json:"kind"`
	Slug string `json:"slug"`
}

func (k Key) String() string { return string(k.Kind) + "/" + k.Slug }

// CanonicalRecord is the authoritative structured data for one entity. The
// file is jointly owned: the application and external tools may both write
// it, so no field here records who wrote last — change detection is purely
// fingerprint-based.
type CanonicalRecord struct {
	Kind         Kind           `json:"kind,omitempty"`
	Name         string         `json:"name"`
	Fields       map[string]any `json:"fields"`
	LastModified time.Time      `json:"last_modified"`
}

// DecodeCanonical parses canonical.json bytes. Malformed content, an unknown
// kind, or a record with no name yields apperr.ErrParse. The kind may be
// omitted entirely — the entity's directory already determines it, and
// external writers are not required to repeat it in the file.
func DecodeCanonical(data []byte) (*CanonicalRecord, error) {
	var rec CanonicalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("models: decode canonical record: %v: %w", err, apperr.ErrParse)
	}
	if rec.Kind != "" {
		if _, err := ParseKind(string(rec.Kind)); err != nil {
			return nil, fmt.Errorf("models: canonical record kind %q: %w", rec.Kind, apperr.ErrParse)
		}
	}
	if rec.Name == "" {
		return nil, fmt.Errorf("models: canonical record has no name: %w", apperr.ErrParse)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	return &rec, nil
}

// Encode serializes the record as pretty-printed JSON with a trailing
// newline, the shape external tools are expected to edit.
func (r *CanonicalRecord) Encode() ([]byte, error) {
	rec := *r
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	data, err := json.MarshalIndent(&rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("models: encode canonical record: %w", err)
	}
	return append(data, '\n'), nil
}
