// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the dayos workspace to LLM agents via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/enrich"
	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/slug"
)

// Server wraps the MCP server with dayos tools.
type Server struct {
	mcp   *server.MCPServer
	svc   *entityservice.Service
	intel *intel.Store
	orch  *enrich.Orchestrator
}

// New creates a new MCP server with all dayos tools registered.
func New(svc *entityservice.Service, intelStore *intel.Store, orch *enrich.Orchestrator) *Server {
	s := &Server{svc: svc, intel: intelStore, orch: orch}

	s.mcp = server.NewMCPServer(
		"dayos",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List tracked entities, optionally filtered by kind."),
		mcp.WithString("kind", mcp.Description("Optional kind filter: account, project or person")),
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("read_entity",
		mcp.WithDescription("Read one entity's canonical record, including the fingerprint "+
			"that ties briefs and mirror rows to this exact version."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind: account, project or person")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entity slug (e.g. acme-corp)")),
	), s.readEntity)

	s.mcp.AddTool(mcp.NewTool("create_entity",
		mcp.WithDescription("Create a new entity. The slug is derived from the name. "+
			"Free-form fields MUST follow the canonical record contract; read it first via "+
			"the dayos://record-format resource."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind: account, project or person")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Human-readable entity name")),
		mcp.WithString("fields", mcp.Description("Optional JSON object of free-form fields")),
	), s.createEntity)

	s.mcp.AddTool(mcp.NewTool("log_activity",
		mcp.WithDescription("Append a timestamped activity note to an entity. Notes feed "+
			"the enrichment context and the narrative's activity section."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind: account, project or person")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entity slug")),
		mcp.WithString("note", mcp.Required(), mcp.Description("Free-text note describing what happened")),
	), s.logActivity)

	s.mcp.AddTool(mcp.NewTool("search_entities",
		mcp.WithDescription("Full-text search through entity names and field values."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchEntities)

	s.mcp.AddTool(mcp.NewTool("read_brief",
		mcp.WithDescription("Read the synthesized intelligence brief for an entity: summary, "+
			"highlights, risks, next steps, plus revision and a staleness flag."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind: account, project or person")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entity slug")),
	), s.readBrief)

	s.mcp.AddTool(mcp.NewTool("enrich_entity",
		mcp.WithDescription("Run the enrichment pipeline for one entity. Skips when the "+
			"existing brief already matches the canonical fingerprint unless force is set."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("Entity kind: account, project or person")),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Entity slug")),
		mcp.WithBoolean("force", mcp.Description("Resynthesize even when the brief is current")),
	), s.enrichEntity)

	// Resource: canonical record contract.
	s.mcp.AddResource(
		mcp.NewResource("dayos://record-format", "Canonical Record Contract",
			mcp.WithResourceDescription("Canonical record format that external workspace writers must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// entityKey resolves the kind and slug arguments shared by the entity tools.
func entityKey(req mcp.CallToolRequest) (models.Key, error) {
	kindArg, err := req.RequireString("kind")
	if err != nil {
		return models.Key{}, err
	}
	kind, err := models.ParseKind(kindArg)
	if err != nil {
		return models.Key{}, err
	}
	slugArg, err := req.RequireString("slug")
	if err != nil {
		return models.Key{}, err
	}
	if !slug.Valid(slugArg) {
		return models.Key{}, fmt.Errorf("invalid slug: %q", slugArg)
	}
	return models.Key{Kind: kind, Slug: slugArg}, nil
}

func (s *Server) listEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var kind models.Kind
	if v := req.GetString("kind", ""); v != "" {
		parsed, err := models.ParseKind(v)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		kind = parsed
	}
	items, err := s.svc.List(ctx, kind)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := entityKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) createEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kindArg, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	kind, err := models.ParseKind(kindArg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var fields map[string]any
	if raw := req.GetString("fields", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("fields is not a JSON object: %v", err)), nil
		}
	}

	detail, err := s.svc.Create(ctx, kind, name, fields)
	switch {
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError(fmt.Sprintf("entity already exists: %s/%s", kind, slug.Make(name))), nil
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError(fmt.Sprintf("slug %q already taken by a different entity", slug.Make(name))), nil
	case errors.Is(err, apperr.ErrParse):
		return mcp.NewToolResultError(fmt.Sprintf("name %q does not produce a usable slug", name)), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(detail, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) logActivity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := entityKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := req.RequireString("note")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	err = s.svc.LogActivity(ctx, key, time.Time{}, note)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	case errors.Is(err, apperr.ErrParse):
		return mcp.NewToolResultError("note is empty"), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("logged: %s", key)), nil
}

type searchHit struct {
	Kind    string `json:"kind"`
	Slug    string `json:"slug"`
	Name    string `json:"name"`
	Snippet string `json:"snippet,omitempty"`
}

func (s *Server) searchEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	hits := make([]searchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, searchHit{
			Kind:    string(r.Key.Kind),
			Slug:    r.Key.Slug,
			Name:    r.Name,
			Snippet: r.Snippet,
		})
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readBrief(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := entityKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.intel.Read(key)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("no brief synthesized yet for %s: run enrich_entity first", key)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(struct {
		*intel.Record
		Stale bool `json:"stale"`
	}{rec, rec.SourceFingerprint != detail.Fingerprint}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

type enrichOutcome struct {
	RunID    string `json:"run_id"`
	Kind     string `json:"kind"`
	Slug     string `json:"slug"`
	Skipped  bool   `json:"skipped"`
	Mode     string `json:"mode,omitempty"`
	Revision int    `json:"revision,omitempty"`
}

func (s *Server) enrichEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := entityKey(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	force := req.GetBool("force", false)

	res, err := s.orch.Enrich(ctx, key, force)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", key)), nil
	case errors.Is(err, apperr.ErrCall):
		return mcp.NewToolResultError(fmt.Sprintf("enrichment command failed: %v", err)), nil
	case errors.Is(err, apperr.ErrParse):
		return mcp.NewToolResultError(fmt.Sprintf("enrichment reply unusable: %v", err)), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(enrichOutcome{
		RunID:    res.RunID,
		Kind:     string(res.Key.Kind),
		Slug:     res.Key.Slug,
		Skipped:  res.Skipped,
		Mode:     res.Mode,
		Revision: res.Revision,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readRecordFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "dayos://record-format",
			MIMEType: "text/markdown",
			Text:     RecordFormatContract,
		},
	}, nil
}
