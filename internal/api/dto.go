package api

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/mirror"
	"github.com/jamesgiroux/dayos/internal/models"
)

// CreateEntityRequest is the request body for creating an entity.
type CreateEntityRequest struct {
	Kind   string         `json:"kind" example:"account" validate:"required"`
	Name   string         `json:"name" example:"Acme Corp" validate:"required"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Validate checks the request.
func (r *CreateEntityRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Kind, validation.Required,
			validation.In(string(models.KindAccount), string(models.KindProject), string(models.KindPerson))),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// UpdateEntityRequest is the request body for replacing an entity's name and
// fields.
type UpdateEntityRequest struct {
	Name   string         `json:"name" example:"Acme Corp" validate:"required"`
	Fields map[string]any `json:"fields"`
}

// Validate checks the request.
func (r *UpdateEntityRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
	)
}

// LogActivityRequest is the request body for appending an activity entry.
type LogActivityRequest struct {
	OccurredAt time.Time `json:"occurred_at,omitempty"`
	Note       string    `json:"note" example:"kickoff call went well" validate:"required"`
}

// Validate checks the request.
func (r *LogActivityRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Note, validation.Required, validation.Length(1, 2000)),
	)
}

// EntityDetail is the full entity response type (aliased from the domain layer).
type EntityDetail = entityservice.EntityDetail

// EntityListItem is a lightweight item in a list response (aliased from the domain layer).
type EntityListItem = entityservice.EntityListItem

// EntityListResponse wraps entity listings.
type EntityListResponse struct {
	Entities []EntityListItem `json:"entities" validate:"required"`
	Total    int              `json:"total" example:"42" validate:"required"`
}

// ActivityEntry is a single activity log entry in API responses.
type ActivityEntry struct {
	ID         int64     `json:"id" example:"7" validate:"required"`
	OccurredAt time.Time `json:"occurred_at"`
	Note       string    `json:"note" example:"kickoff call went well" validate:"required"`
}

func activityEntries(entries []mirror.ActivityEntry) []ActivityEntry {
	out := make([]ActivityEntry, len(entries))
	for i, e := range entries {
		out[i] = ActivityEntry{ID: e.ID, OccurredAt: e.OccurredAt, Note: e.Note}
	}
	return out
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Kind    models.Kind `json:"kind" example:"account" validate:"required"`
	Slug    string      `json:"slug" example:"acme-corp" validate:"required"`
	Name    string      `json:"name" example:"Acme Corp" validate:"required"`
	Snippet string      `json:"snippet" example:"...matched text..."`
}

func searchResults(results []mirror.SearchResult) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{Kind: r.Key.Kind, Slug: r.Key.Slug, Name: r.Name, Snippet: r.Snippet}
	}
	return out
}

// EnrichResponse summarizes an enrichment run for one entity.
type EnrichResponse struct {
	RunID    string      `json:"run_id" validate:"required"`
	Kind     models.Kind `json:"kind" example:"account" validate:"required"`
	Slug     string      `json:"slug" example:"acme-corp" validate:"required"`
	Skipped  bool        `json:"skipped"`
	Mode     string      `json:"mode,omitempty" example:"initial"`
	Revision int         `json:"revision,omitempty" example:"1"`
}
