package enrich

import (
	"fmt"

	"github.com/jamesgiroux/dayos/internal/intel"
)

const responseFormat = `Reply with exactly one JSON object and no surrounding prose:
{"summary": "...", "highlights": ["..."], "risks": ["..."], "next_steps": ["..."]}`

const initialTemplate = `You maintain briefs in a personal work journal. Write the first brief for the entity below from its raw records: a few sentences of summary, then concrete highlights, risks, and next steps.

%s

` + responseFormat

const incrementalTemplate = `You maintain briefs in a personal work journal. The entity below already has a brief, included as "Prior brief". Update it against the current records: keep what still holds, revise what changed, drop what no longer applies.

%s

` + responseFormat

// SelectMode is deterministic: initial when no prior record exists,
// incremental otherwise. Staleness (fingerprint drift) is the
// orchestrator's concern, not the prompt's.
func SelectMode(prior *intel.Record) string {
	if prior == nil {
		return intel.ModeInitial
	}
	return intel.ModeIncremental
}

// BuildPrompt renders the mode's template around the assembled context.
func BuildPrompt(mode, contextText string) string {
	if mode == intel.ModeInitial {
		return fmt.Sprintf(initialTemplate, contextText)
	}
	return fmt.Sprintf(incrementalTemplate, contextText)
}
