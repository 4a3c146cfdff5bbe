// Package enrich implements the enrichment pipeline: bounded context
// assembly, prompt building, the external call, and the orchestration that
// turns a reply into a new intelligence record.
package enrich

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
)

// Context budgets, in bytes. MinBudget leaves room for the identity section
// of any reasonably named entity.
const (
	DefaultBudget = 10_000
	MinBudget     = 512
)

// Snapshot carries the raw inputs the assembler renders. Prior and Activity
// are optional.
type Snapshot struct {
	Key         models.Key
	Record      *models.CanonicalRecord
	Fingerprint string
	Prior       *intel.Record
	Activity    []mirror.ActivityEntry
}

// budgetBuilder accumulates text while it fits; add reports whether the
// piece landed.
type budgetBuilder struct {
	b         strings.Builder
	remaining int
}

func (bb *budgetBuilder) add(s string) bool {
	if len(s) > bb.remaining {
		return false
	}
	bb.b.WriteString(s)
	bb.remaining -= len(s)
	return true
}

// AssembleContext renders a snapshot into bounded prompt context. Sections
// land in priority order (identity, prior brief, canonical fields, recent
// activity) and assembly stops at the first line that would overflow the
// budget, so values are never cut mid-line and nothing outranks a section
// that failed to land. Pure and deterministic for a given snapshot.
func AssembleContext(snap Snapshot, budget int) string {
	if budget < MinBudget {
		budget = MinBudget
	}
	bb := &budgetBuilder{remaining: budget}

	idLines := []string{
		fmt.Sprintf("Entity: %s (%s)\n", snap.Record.Name, snap.Key),
		fmt.Sprintf("Fingerprint: %s\n", snap.Fingerprint),
	}
	if !snap.Record.LastModified.IsZero() {
		idLines = append(idLines, fmt.Sprintf("Last modified: %s\n", snap.Record.LastModified.UTC().Format(time.RFC3339)))
	}
	for _, line := range idLines {
		if !bb.add(line) {
			return bb.b.String()
		}
	}

	if snap.Prior != nil && snap.Prior.Summary != "" {
		sec := fmt.Sprintf("\nPrior brief (revision %d):\n%s\n", snap.Prior.Revision, snap.Prior.Summary)
		if !bb.add(sec) {
			return bb.b.String()
		}
	}

	if len(snap.Record.Fields) > 0 {
		if !bb.add("\nFields:\n") {
			return bb.b.String()
		}
		keys := make([]string, 0, len(snap.Record.Fields))
		for k := range snap.Record.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line := fmt.Sprintf("- %s: %s\n", k, fieldText(snap.Record.Fields[k]))
			if !bb.add(line) {
				return bb.b.String()
			}
		}
	}

	if len(snap.Activity) > 0 {
		if !bb.add("\nRecent activity:\n") {
			return bb.b.String()
		}
		for _, a := range snap.Activity {
			line := fmt.Sprintf("- %s: %s\n", a.OccurredAt.UTC().Format("2006-01-02"), a.Note)
			if !bb.add(line) {
				return bb.b.String()
			}
		}
	}

	return bb.b.String()
}

// fieldText renders one field value on a single line. Canonical fields are
// free-form JSON, so scalars go through cast; anything it cannot coerce
// falls back to fmt.
func fieldText(v any) string {
	switch vv := v.(type) {
	case []any:
		parts := make([]string, 0, len(vv))
		for _, item := range vv {
			parts = append(parts, fieldText(item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(vv, ", ")
	default:
		if s, err := cast.ToStringE(v); err == nil {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
}
