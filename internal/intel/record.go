// Package intel owns the synthesized intelligence record: its JSON codec,
// its file-backed store, and the one-time migration of legacy dossier blobs.
package intel

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
)

// Synthesis modes. Initial runs see no prior record; incremental runs
// receive the prior summary as context.
const (
	ModeInitial     = "initial"
	ModeIncremental = "incremental"
)

// Record is one entity's synthesized brief. SourceFingerprint ties the
// record to the exact canonical bytes it was derived from; a mismatch means
// the record is stale.
type Record struct {
	Revision          int       `json:"revision"`
	Mode              string    `json:"mode"`
	GeneratedAt       time.Time `json:"generated_at"`
	SourceFingerprint string    `json:"source_entity_fingerprint"`
	Summary           string    `json:"summary"`
	Highlights        []string  `json:"highlights"`
	Risks             []string  `json:"risks"`
	NextSteps         []string  `json:"next_steps"`
}

// Decode parses a stored intelligence record. Structural problems are
// reported as apperr.ErrParse.
func Decode(data []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("intel: decode record: %v: %w", err, apperr.ErrParse)
	}
	if r.Revision < 1 {
		return nil, fmt.Errorf("intel: revision %d out of range: %w", r.Revision, apperr.ErrParse)
	}
	if r.Mode != ModeInitial && r.Mode != ModeIncremental {
		return nil, fmt.Errorf("intel: unknown mode %q: %w", r.Mode, apperr.ErrParse)
	}
	return &r, nil
}

// Encode serializes the record as indented JSON with a trailing newline,
// matching the canonical file convention.
func (r *Record) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("intel: encode record: %w", err)
	}
	return append(data, '\n'), nil
}
