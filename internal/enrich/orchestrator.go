package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/parser"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

const activityLimit = 10

// Step names carried by StepError.
const (
	StepContext   = "context"
	StepMigrate   = "migrate"
	StepInvoke    = "invoke"
	StepParse     = "parse"
	StepWrite     = "write"
	StepNarrative = "narrative"
)

// StepError identifies the entity and pipeline stage a run failed at, so a
// caller can decide whether and when to retry.
type StepError struct {
	Key  models.Key
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("enrich %s: step %s: %v", e.Key, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(key models.Key, step string, err error) *StepError {
	return &StepError{Key: key, Step: step, Err: err}
}

// Result describes one run.
type Result struct {
	RunID    string     `json:"run_id"`
	Key      models.Key `json:"key"`
	Skipped  bool       `json:"skipped"`
	Mode     string     `json:"mode,omitempty"`
	Revision int        `json:"revision,omitempty"`
}

// BatchResult summarizes an EnrichAll pass.
type BatchResult struct {
	Enriched int `json:"enriched"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Orchestrator sequences one entity's enrichment: assemble context, build
// the prompt, invoke the external call, parse the reply, write the
// intelligence record, regenerate the narrative. Any step's failure aborts
// the run with nothing written. The orchestrator never retries; retry
// policy belongs to its caller.
type Orchestrator struct {
	ws      *workspace.Store
	mirror  mirror.Store
	intel   *intel.Store
	regen   *narrative.Regenerator
	invoker Invoker
	budget  int
	logger  *slog.Logger

	// OnEnriched, when set, is called after each successful run.
	OnEnriched func(key models.Key, revision int)
}

// New wires an orchestrator. A budget below MinBudget is raised to it.
func New(ws *workspace.Store, m mirror.Store, intelStore *intel.Store, regen *narrative.Regenerator, invoker Invoker, budget int, logger *slog.Logger) *Orchestrator {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Orchestrator{
		ws:      ws,
		mirror:  m,
		intel:   intelStore,
		regen:   regen,
		invoker: invoker,
		budget:  budget,
		logger:  logger,
	}
}

// Enrich runs the pipeline for one entity. When the prior record's source
// fingerprint already matches the canonical fingerprint the run is skipped
// before any external call, unless force is set. Force still increments the
// revision.
func (o *Orchestrator) Enrich(ctx context.Context, key models.Key, force bool) (*Result, error) {
	runID := uuid.NewString()
	log := o.logger.With(slog.String("run_id", runID), slog.String("entity", key.String()))

	rec, fp, err := o.ws.ReadCanonical(key)
	if err != nil {
		return nil, stepErr(key, StepContext, err)
	}

	prior, err := o.intel.Read(key)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			prior = nil
		case errors.Is(err, apperr.ErrMigration):
			return nil, stepErr(key, StepMigrate, err)
		default:
			return nil, stepErr(key, StepContext, err)
		}
	}

	if prior != nil && prior.SourceFingerprint == fp && !force {
		log.Debug("enrich: record up to date, skipping")
		return &Result{RunID: runID, Key: key, Skipped: true, Mode: prior.Mode, Revision: prior.Revision}, nil
	}

	activity, aerr := o.mirror.RecentActivity(key, activityLimit)
	if aerr != nil {
		log.Warn("enrich: activity unavailable", slog.String("error", aerr.Error()))
	}

	mode := SelectMode(prior)
	snapshot := Snapshot{Key: key, Record: rec, Fingerprint: fp, Prior: prior, Activity: activity}
	prompt := BuildPrompt(mode, AssembleContext(snapshot, o.budget))

	reply, err := o.invoker.Invoke(ctx, prompt)
	if err != nil {
		return nil, stepErr(key, StepInvoke, err)
	}

	draft, err := parser.Parse(reply)
	if err != nil {
		return nil, stepErr(key, StepParse, err)
	}

	revision := 1
	if prior != nil {
		revision = prior.Revision + 1
	}
	next := &intel.Record{
		Revision:          revision,
		Mode:              mode,
		GeneratedAt:       time.Now().UTC().Truncate(time.Second),
		SourceFingerprint: fp,
		Summary:           draft.Summary,
		Highlights:        draft.Highlights,
		Risks:             draft.Risks,
		NextSteps:         draft.NextSteps,
	}
	if err := o.intel.Write(key, next); err != nil {
		return nil, stepErr(key, StepWrite, err)
	}
	if err := o.regen.Regenerate(key); err != nil {
		return nil, stepErr(key, StepNarrative, err)
	}

	log.Info("enrich: record synthesized",
		slog.String("mode", mode),
		slog.Int("revision", revision))
	if o.OnEnriched != nil {
		o.OnEnriched(key, revision)
	}
	return &Result{RunID: runID, Key: key, Mode: mode, Revision: revision}, nil
}

// EnrichAll runs Enrich over every entity in the workspace. Per-entity
// failures are logged and counted, never fatal to the batch.
func (o *Orchestrator) EnrichAll(ctx context.Context, force bool) (BatchResult, error) {
	keys, err := o.ws.ListAll()
	if err != nil {
		return BatchResult{}, err
	}
	var res BatchResult
	for _, key := range keys {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		r, err := o.Enrich(ctx, key, force)
		if err != nil {
			res.Failed++
			o.logger.Warn("enrich: entity failed",
				slog.String("entity", key.String()),
				slog.String("error", err.Error()))
			continue
		}
		if r.Skipped {
			res.Skipped++
		} else {
			res.Enriched++
		}
	}
	return res, nil
}
