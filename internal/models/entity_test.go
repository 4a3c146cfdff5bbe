package models

import (
	"errors"
	"strings"
	"testing"

	"github.com/jamesgiroux/dayos/internal/apperr"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"account", "project", "person"} {
		k, err := ParseKind(s)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", s, err)
		}
		if k.String() != s {
			t.Errorf("kind = %q, want %q", k, s)
		}
	}
	if _, err := ParseKind("team"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestKindDir(t *testing.T) {
	cases := map[Kind]string{
		KindAccount: "accounts",
		KindProject: "projects",
		KindPerson:  "people",
	}
	for k, want := range cases {
		if got := k.Dir(); got != want {
			t.Errorf("%s.Dir() = %q, want %q", k, got, want)
		}
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	rec := &CanonicalRecord{
		Kind: KindAccount,
		Name: "Acme Co",
		Fields: map[string]any{
			"status": "active",
			"owner":  "jane",
		},
	}
	data, err := rec.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.HasSuffix(string(data), "\n") {
		t.Error("encoded record should end with a newline")
	}

	got, err := DecodeCanonical(data)
	if err != nil {
		t.Fatalf("DecodeCanonical: %v", err)
	}
	if got.Name != "Acme Co" || got.Kind != KindAccount {
		t.Errorf("identity mismatch: %+v", got)
	}
	if got.Fields["status"] != "active" || got.Fields["owner"] != "jane" {
		t.Errorf("fields mismatch: %+v", got.Fields)
	}
}

func TestDecodeCanonicalRejectsMalformed(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"invalid json", `{"kind": "account",`},
		{"unknown kind", `{"kind": "robot", "name": "R2"}`},
		{"missing name", `{"kind": "person"}`},
	}
	for _, tc := range cases {
		_, err := DecodeCanonical([]byte(tc.data))
		if err == nil {
			t.Errorf("%s: expected error", tc.name)
			continue
		}
		if !errors.Is(err, apperr.ErrParse) {
			t.Errorf("%s: error %v should match apperr.ErrParse", tc.name, err)
		}
	}
}

func TestDecodeCanonicalDefaultsFields(t *testing.T) {
	rec, err := DecodeCanonical([]byte(`{"kind": "project", "name": "Apollo"}`))
	if err != nil {
		t.Fatalf("DecodeCanonical: %v", err)
	}
	if rec.Fields == nil {
		t.Error("fields should default to an empty map")
	}
}
