// Package parser decodes enrichment replies into draft intelligence
// content. Replies arrive in one of two tagged variants: a JSON object
// (bare or inside a fenced code block), or a single pipe-delimited line.
// Anything else is a parse failure — a reply that cannot be decoded is
// never written anywhere.
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/jamesgiroux/dayos/internal/apperr"
)

var fencedRe = regexp.MustCompile("(?s)```(?:json)?[ \t]*\r?\n(.*?)```")

// Draft is the decoded body of an enrichment reply, before the orchestrator
// stamps revision, mode, and fingerprint.
type Draft struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Risks      []string `json:"risks"`
	NextSteps  []string `json:"next_steps"`
}

// Parse decodes a reply. It tries the JSON variant first (fenced block,
// then the bare reply), then the pipe-delimited fallback. A reply matching
// neither variant, or one with an empty summary, yields apperr.ErrParse.
func Parse(reply string) (*Draft, error) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return nil, fmt.Errorf("parser: empty reply: %w", apperr.ErrParse)
	}

	if m := fencedRe.FindStringSubmatch(trimmed); m != nil {
		if d, ok := parseJSON(m[1]); ok {
			return d, nil
		}
	}
	if d, ok := parseJSON(trimmed); ok {
		return d, nil
	}
	if d, ok := parsePipe(trimmed); ok {
		return d, nil
	}
	return nil, fmt.Errorf("parser: reply matches no known format: %w", apperr.ErrParse)
}

// parseJSON attempts the JSON variant. The object must decode and carry a
// non-empty summary.
func parseJSON(raw string) (*Draft, bool) {
	var d Draft
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &d); err != nil {
		return nil, false
	}
	d.Summary = strings.TrimSpace(d.Summary)
	if d.Summary == "" {
		return nil, false
	}
	d.Highlights = cleanList(d.Highlights)
	d.Risks = cleanList(d.Risks)
	d.NextSteps = cleanList(d.NextSteps)
	return &d, true
}

// parsePipe attempts the fallback variant: the first line containing a pipe
// is split positionally into summary | highlights | risks | next_steps,
// with list cells split on semicolons. An empty summary cell fails.
func parsePipe(raw string) (*Draft, bool) {
	for _, line := range strings.Split(raw, "\n") {
		if !strings.Contains(line, "|") {
			continue
		}
		cells := strings.Split(line, "|")
		d := Draft{Summary: strings.TrimSpace(cells[0])}
		if d.Summary == "" {
			return nil, false
		}
		if len(cells) > 1 {
			d.Highlights = splitCell(cells[1])
		}
		if len(cells) > 2 {
			d.Risks = splitCell(cells[2])
		}
		if len(cells) > 3 {
			d.NextSteps = splitCell(cells[3])
		}
		return &d, true
	}
	return nil, false
}

// splitCell splits a pipe cell on semicolons, dropping blanks.
func splitCell(cell string) []string {
	var out []string
	for _, item := range strings.Split(cell, ";") {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanList trims entries and drops blanks, preserving order.
func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
