// Package narrative generates the human-readable Markdown artifact for an
// entity. The artifact is fully derived: it is overwritten on every
// regeneration and nothing in the engine ever reads it back.
package narrative

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
)

// Input carries everything a narrative is rendered from. Intel and Activity
// are optional; Now is injected so rendering stays deterministic.
type Input struct {
	Key      models.Key
	Record   *models.CanonicalRecord
	Intel    *intel.Record
	Activity []mirror.ActivityEntry
	Now      time.Time
}

// Render produces the Markdown document. Pure: same input, same bytes.
func Render(in Input) []byte {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", in.Record.Name)
	fmt.Fprintf(&b, "*%s — `%s`*\n\n", in.Key.Kind, in.Key.String())

	if in.Intel != nil {
		b.WriteString("## Brief\n\n")
		if in.Intel.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", in.Intel.Summary)
		}
		writeBullets(&b, "Highlights", in.Intel.Highlights)
		writeBullets(&b, "Risks", in.Intel.Risks)
		writeBullets(&b, "Next steps", in.Intel.NextSteps)
		fmt.Fprintf(&b, "*Revision %d (%s), generated %s.*\n\n",
			in.Intel.Revision, in.Intel.Mode, in.Intel.GeneratedAt.UTC().Format("2006-01-02 15:04"))
	}

	if len(in.Record.Fields) > 0 {
		b.WriteString("## Details\n\n")
		keys := make([]string, 0, len(in.Record.Fields))
		for k := range in.Record.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- **%s**: %s\n", k, formatValue(in.Record.Fields[k]))
		}
		b.WriteString("\n")
	}

	if len(in.Activity) > 0 {
		b.WriteString("## Recent activity\n\n")
		for _, a := range in.Activity {
			fmt.Fprintf(&b, "- %s — %s\n", a.OccurredAt.UTC().Format("2006-01-02"), a.Note)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "---\n\n*Generated %s. This file is overwritten on every sync; edit `canonical.json` instead.*\n",
		in.Now.UTC().Format("2006-01-02 15:04"))

	return []byte(b.String())
}

func writeBullets(b *strings.Builder, heading string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "### %s\n\n", heading)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// formatValue renders a free-form field value on one line. Lists are
// comma-joined; everything else takes its default formatting.
func formatValue(v any) string {
	switch vv := v.(type) {
	case []any:
		parts := make([]string, 0, len(vv))
		for _, item := range vv {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(vv, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}
