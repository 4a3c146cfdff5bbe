package intel

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/jamesgiroux/dayos/internal/models"
)

// dossierAliases maps each intelligence field to the legacy dossier keys
// that feed it, per kind, in lookup order. Older exports named the same
// concepts differently for each entity kind.
var dossierAliases = map[models.Kind]map[string][]string{
	models.KindAccount: {
		"summary":    {"overview"},
		"highlights": {"wins"},
		"risks":      {"concerns", "risks"},
		"next_steps": {"playbook", "next_steps"},
	},
	models.KindProject: {
		"summary":    {"status_summary", "overview"},
		"highlights": {"milestones", "wins"},
		"risks":      {"blockers", "risks"},
		"next_steps": {"next", "next_steps"},
	},
	models.KindPerson: {
		"summary":    {"bio", "overview"},
		"highlights": {"strengths", "highlights"},
		"risks":      {"watchouts", "risks"},
		"next_steps": {"follow_ups", "next_steps"},
	},
}

// migrateDossier converts a legacy single-blob dossier into a Record. The
// result is revision 1 in initial mode with an empty source fingerprint, so
// the next enrichment runs incrementally on top of it.
func migrateDossier(kind models.Kind, data []byte) (*Record, error) {
	var blob map[string]any
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("dossier is not a JSON object: %v", err)
	}
	aliases, ok := dossierAliases[kind]
	if !ok {
		return nil, fmt.Errorf("no dossier mapping for kind %q", kind)
	}

	rec := &Record{
		Revision:          1,
		Mode:              ModeInitial,
		GeneratedAt:       dossierTimestamp(blob),
		SourceFingerprint: "",
		Summary:           strings.TrimSpace(cast.ToString(firstPresent(blob, aliases["summary"]))),
		Highlights:        toList(firstPresent(blob, aliases["highlights"])),
		Risks:             toList(firstPresent(blob, aliases["risks"])),
		NextSteps:         toList(firstPresent(blob, aliases["next_steps"])),
	}
	return rec, nil
}

// firstPresent returns the value of the first alias present in the blob.
func firstPresent(blob map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := blob[k]; ok {
			return v
		}
	}
	return nil
}

// toList coerces a legacy value into a string list. Lists keep their
// elements (coerced individually, so numbers and bools survive); a lone
// scalar becomes a one-element list; blanks are dropped.
func toList(v any) []string {
	switch vv := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s := strings.TrimSpace(cast.ToString(item)); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		if s := strings.TrimSpace(cast.ToString(v)); s != "" {
			return []string{s}
		}
		return nil
	}
}

// dossierTimestamp extracts an RFC 3339 timestamp from the legacy
// `updated` or `generated_at` keys, falling back to the migration time.
func dossierTimestamp(blob map[string]any) time.Time {
	for _, k := range []string{"updated", "generated_at"} {
		raw := cast.ToString(blob[k])
		if raw == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			return ts.UTC()
		}
	}
	return time.Now().UTC().Truncate(time.Second)
}
