package intel

import (
	"reflect"
	"testing"

	"github.com/jamesgiroux/dayos/internal/models"
)

func TestMigrateDossierPerKind(t *testing.T) {
	cases := []struct {
		name    string
		kind    models.Kind
		data    string
		summary string
		high    []string
		risks   []string
		next    []string
	}{
		{
			name: "account aliases",
			kind: models.KindAccount,
			data: `{"overview":"Key account.","wins":["exec buy-in"],
				"concerns":["budget freeze"],"playbook":["plan workshop"]}`,
			summary: "Key account.",
			high:    []string{"exec buy-in"},
			risks:   []string{"budget freeze"},
			next:    []string{"plan workshop"},
		},
		{
			name: "project aliases",
			kind: models.KindProject,
			data: `{"status_summary":"On schedule.","milestones":["beta shipped"],
				"blockers":["vendor API limits"],"next":["load test"]}`,
			summary: "On schedule.",
			high:    []string{"beta shipped"},
			risks:   []string{"vendor API limits"},
			next:    []string{"load test"},
		},
		{
			name: "person aliases",
			kind: models.KindPerson,
			data: `{"bio":"Staff engineer.","strengths":["systems thinking"],
				"watchouts":["stretched thin"],"follow_ups":["intro to platform team"]}`,
			summary: "Staff engineer.",
			high:    []string{"systems thinking"},
			risks:   []string{"stretched thin"},
			next:    []string{"intro to platform team"},
		},
		{
			name:    "fallback aliases",
			kind:    models.KindProject,
			data:    `{"overview":"Fallback summary.","wins":["w"],"risks":["r"],"next_steps":["n"]}`,
			summary: "Fallback summary.",
			high:    []string{"w"},
			risks:   []string{"r"},
			next:    []string{"n"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := migrateDossier(tc.kind, []byte(tc.data))
			if err != nil {
				t.Fatalf("migrateDossier: %v", err)
			}
			if rec.Revision != 1 || rec.Mode != ModeInitial || rec.SourceFingerprint != "" {
				t.Errorf("header = %d/%q/%q", rec.Revision, rec.Mode, rec.SourceFingerprint)
			}
			if rec.Summary != tc.summary {
				t.Errorf("Summary = %q, want %q", rec.Summary, tc.summary)
			}
			if !reflect.DeepEqual(rec.Highlights, tc.high) {
				t.Errorf("Highlights = %v, want %v", rec.Highlights, tc.high)
			}
			if !reflect.DeepEqual(rec.Risks, tc.risks) {
				t.Errorf("Risks = %v, want %v", rec.Risks, tc.risks)
			}
			if !reflect.DeepEqual(rec.NextSteps, tc.next) {
				t.Errorf("NextSteps = %v, want %v", rec.NextSteps, tc.next)
			}
		})
	}
}

func TestMigrateDossierCoercion(t *testing.T) {
	// Legacy exports were loose with types: scalars where lists belong,
	// numbers inside lists, blank entries.
	data := `{
		"overview": "  padded  ",
		"wins": "single win",
		"concerns": ["real concern", 42, "", true],
		"playbook": []
	}`
	rec, err := migrateDossier(models.KindAccount, []byte(data))
	if err != nil {
		t.Fatalf("migrateDossier: %v", err)
	}
	if rec.Summary != "padded" {
		t.Errorf("Summary = %q", rec.Summary)
	}
	if !reflect.DeepEqual(rec.Highlights, []string{"single win"}) {
		t.Errorf("Highlights = %v", rec.Highlights)
	}
	if !reflect.DeepEqual(rec.Risks, []string{"real concern", "42", "true"}) {
		t.Errorf("Risks = %v", rec.Risks)
	}
	if rec.NextSteps != nil {
		t.Errorf("NextSteps = %v, want nil", rec.NextSteps)
	}
}

func TestMigrateDossierNotObject(t *testing.T) {
	if _, err := migrateDossier(models.KindAccount, []byte(`["a","b"]`)); err == nil {
		t.Error("expected error for non-object dossier")
	}
	if _, err := migrateDossier(models.KindAccount, []byte(`{bad`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestMigrateDossierBadTimestampTolerated(t *testing.T) {
	rec, err := migrateDossier(models.KindPerson, []byte(`{"bio":"x","updated":"last week"}`))
	if err != nil {
		t.Fatalf("migrateDossier: %v", err)
	}
	if rec.GeneratedAt.IsZero() {
		t.Error("expected fallback timestamp, got zero")
	}
}
