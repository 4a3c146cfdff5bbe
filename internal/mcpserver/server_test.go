package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/jamesgiroux/dayos/internal/enrich"
	"github.com/jamesgiroux/dayos/internal/entityservice"
	"github.com/jamesgiroux/dayos/internal/intel"
	"github.com/jamesgiroux/dayos/internal/models"
	"github.com/jamesgiroux/dayos/internal/narrative"
	"github.com/jamesgiroux/dayos/internal/syncengine"
	"github.com/jamesgiroux/dayos/internal/testutil"
	"github.com/jamesgiroux/dayos/internal/workspace"
)

const stubReply = `{"summary": "Steady quarter with two open risks.", "highlights": ["Renewal signed"], "risks": ["Champion exit"], "next_steps": ["Schedule QBR"]}`

type stubInvoker struct {
	reply string
	err   error
}

func (s *stubInvoker) Invoke(_ context.Context, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func testServer(t *testing.T) (*Server, *workspace.Store) {
	t.Helper()

	ws := testutil.TestWorkspace(t)
	db := testutil.TestMirror(t)
	logger := testutil.TestLogger(t)

	intelStore := intel.NewStore(ws, logger)
	regen := narrative.NewRegenerator(ws, intelStore, db, logger)
	engine := syncengine.New(ws, db, regen, logger)
	svc := entityservice.NewService(ws, db, engine, regen, logger)
	orch := enrich.New(ws, db, intelStore, regen, &stubInvoker{reply: stubReply}, 0, logger)

	return New(svc, intelStore, orch), ws
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go doesn't expose a direct "call tool" test helper, so we call the
	// handler functions directly.
	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_entities":
		result, err = srv.listEntities(ctx, req)
	case "read_entity":
		result, err = srv.readEntity(ctx, req)
	case "create_entity":
		result, err = srv.createEntity(ctx, req)
	case "log_activity":
		result, err = srv.logActivity(ctx, req)
	case "search_entities":
		result, err = srv.searchEntities(ctx, req)
	case "read_brief":
		result, err = srv.readBrief(ctx, req)
	case "enrich_entity":
		result, err = srv.enrichEntity(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadEntity(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_entity", map[string]interface{}{
		"kind":   "account",
		"name":   "Acme Corp",
		"fields": `{"tier": "enterprise"}`,
	})
	if r.IsError {
		t.Fatalf("create failed: %s", resultText(r))
	}
	var created struct {
		Slug        string `json:"slug"`
		Fingerprint string `json:"fingerprint"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &created); err != nil {
		t.Fatalf("create result not JSON: %v", err)
	}
	if created.Slug != "acme-corp" {
		t.Errorf("slug = %q, want acme-corp", created.Slug)
	}
	if created.Fingerprint == "" {
		t.Error("fingerprint missing from create result")
	}

	r = callTool(t, srv, "read_entity", map[string]interface{}{
		"kind": "account",
		"slug": "acme-corp",
	})
	if r.IsError {
		t.Fatalf("read failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"tier": "enterprise"`) {
		t.Errorf("read result missing field:\n%s", resultText(r))
	}
}

func TestCreateEntityRejectsCollisionsAndBadInput(t *testing.T) {
	srv, _ := testServer(t)

	_ = callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "project", "name": "Apollo Launch",
	})

	r := callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "project", "name": "Apollo Launch",
	})
	if !r.IsError || !strings.Contains(resultText(r), "already exists") {
		t.Errorf("duplicate create = %q, want already-exists error", resultText(r))
	}

	r = callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "widget", "name": "Nope",
	})
	if !r.IsError {
		t.Error("unknown kind accepted")
	}

	r = callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "person", "name": "Dana Kim", "fields": `{not json`,
	})
	if !r.IsError || !strings.Contains(resultText(r), "not a JSON object") {
		t.Errorf("malformed fields = %q, want JSON error", resultText(r))
	}
}

func TestReadEntityMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_entity", map[string]interface{}{
		"kind": "account", "slug": "ghost",
	})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("missing entity = %q, want not-found error", resultText(r))
	}
}

func TestListEntities(t *testing.T) {
	srv, _ := testServer(t)
	for _, c := range [][2]string{
		{"account", "Acme Corp"},
		{"account", "Globex"},
		{"project", "Apollo Launch"},
	} {
		_ = callTool(t, srv, "create_entity", map[string]interface{}{"kind": c[0], "name": c[1]})
	}

	r := callTool(t, srv, "list_entities", map[string]interface{}{})
	var all []map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &all); err != nil {
		t.Fatalf("list result not JSON: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("list all = %d entities, want 3", len(all))
	}

	r = callTool(t, srv, "list_entities", map[string]interface{}{"kind": "account"})
	var accounts []map[string]any
	if err := json.Unmarshal([]byte(resultText(r)), &accounts); err != nil {
		t.Fatalf("filtered list not JSON: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("accounts = %d, want 2", len(accounts))
	}

	r = callTool(t, srv, "list_entities", map[string]interface{}{"kind": "widget"})
	if !r.IsError {
		t.Error("unknown kind filter accepted")
	}
}

func TestLogActivity(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_entity", map[string]interface{}{"kind": "person", "name": "Dana Kim"})

	r := callTool(t, srv, "log_activity", map[string]interface{}{
		"kind": "person", "slug": "dana-kim", "note": "intro call, wants platform demo",
	})
	if r.IsError {
		t.Fatalf("log failed: %s", resultText(r))
	}
	if resultText(r) != "logged: person/dana-kim" {
		t.Errorf("log result = %q", resultText(r))
	}

	r = callTool(t, srv, "log_activity", map[string]interface{}{
		"kind": "person", "slug": "ghost", "note": "x",
	})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("ghost log = %q, want not-found error", resultText(r))
	}

	r = callTool(t, srv, "log_activity", map[string]interface{}{
		"kind": "person", "slug": "dana-kim", "note": "   ",
	})
	if !r.IsError {
		t.Error("blank note accepted")
	}
}

func TestSearchEntities(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "account", "name": "Initech",
		"fields": `{"notes": "migration uniquetoken pending"}`,
	})
	_ = callTool(t, srv, "create_entity", map[string]interface{}{
		"kind": "account", "name": "Globex",
	})

	r := callTool(t, srv, "search_entities", map[string]interface{}{"query": "uniquetoken"})
	var hits []searchHit
	if err := json.Unmarshal([]byte(resultText(r)), &hits); err != nil {
		t.Fatalf("search result not JSON: %v\n%s", err, resultText(r))
	}
	if len(hits) != 1 || hits[0].Slug != "initech" {
		t.Errorf("hits = %+v, want single initech hit", hits)
	}

	r = callTool(t, srv, "search_entities", map[string]interface{}{"query": "zzz-no-such-term"})
	if resultText(r) != "no matches" {
		t.Errorf("empty search = %q, want no matches", resultText(r))
	}
}

func TestEnrichAndReadBrief(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_entity", map[string]interface{}{"kind": "account", "name": "Acme Corp"})

	// No brief before the first run.
	r := callTool(t, srv, "read_brief", map[string]interface{}{"kind": "account", "slug": "acme-corp"})
	if !r.IsError || !strings.Contains(resultText(r), "no brief synthesized yet") {
		t.Errorf("brief before enrich = %q", resultText(r))
	}

	r = callTool(t, srv, "enrich_entity", map[string]interface{}{"kind": "account", "slug": "acme-corp"})
	if r.IsError {
		t.Fatalf("enrich failed: %s", resultText(r))
	}
	var outcome enrichOutcome
	if err := json.Unmarshal([]byte(resultText(r)), &outcome); err != nil {
		t.Fatalf("enrich result not JSON: %v", err)
	}
	if outcome.Skipped || outcome.Revision != 1 || outcome.RunID == "" {
		t.Errorf("first run outcome = %+v", outcome)
	}

	r = callTool(t, srv, "read_brief", map[string]interface{}{"kind": "account", "slug": "acme-corp"})
	if r.IsError {
		t.Fatalf("read_brief failed: %s", resultText(r))
	}
	var brief struct {
		Revision int    `json:"revision"`
		Summary  string `json:"summary"`
		Stale    bool   `json:"stale"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &brief); err != nil {
		t.Fatalf("brief not JSON: %v", err)
	}
	if brief.Revision != 1 || brief.Stale {
		t.Errorf("brief = %+v, want revision 1 and not stale", brief)
	}
	if !strings.Contains(brief.Summary, "Steady quarter") {
		t.Errorf("summary = %q", brief.Summary)
	}

	// Unchanged canonical data skips the second run.
	r = callTool(t, srv, "enrich_entity", map[string]interface{}{"kind": "account", "slug": "acme-corp"})
	if err := json.Unmarshal([]byte(resultText(r)), &outcome); err != nil {
		t.Fatalf("second enrich result not JSON: %v", err)
	}
	if !outcome.Skipped {
		t.Errorf("second run = %+v, want skipped", outcome)
	}

	// Force bypasses the skip and bumps the revision.
	r = callTool(t, srv, "enrich_entity", map[string]interface{}{
		"kind": "account", "slug": "acme-corp", "force": true,
	})
	if err := json.Unmarshal([]byte(resultText(r)), &outcome); err != nil {
		t.Fatalf("forced enrich result not JSON: %v", err)
	}
	if outcome.Skipped || outcome.Revision != 2 {
		t.Errorf("forced run = %+v, want revision 2", outcome)
	}
}

func TestBriefGoesStaleAfterCanonicalEdit(t *testing.T) {
	srv, ws := testServer(t)
	_ = callTool(t, srv, "create_entity", map[string]interface{}{"kind": "project", "name": "Apollo Launch"})
	_ = callTool(t, srv, "enrich_entity", map[string]interface{}{"kind": "project", "slug": "apollo-launch"})

	var brief struct {
		Stale bool `json:"stale"`
	}
	readBrief := func() {
		t.Helper()
		r := callTool(t, srv, "read_brief", map[string]interface{}{"kind": "project", "slug": "apollo-launch"})
		if err := json.Unmarshal([]byte(resultText(r)), &brief); err != nil {
			t.Fatalf("brief not JSON: %v", err)
		}
	}

	// Activity notes don't touch the canonical file.
	_ = callTool(t, srv, "log_activity", map[string]interface{}{
		"kind": "project", "slug": "apollo-launch", "note": "scope change agreed",
	})
	readBrief()
	if brief.Stale {
		t.Error("activity note alone marked the brief stale")
	}

	// An out-of-band canonical edit does.
	key := models.Key{Kind: models.KindProject, Slug: "apollo-launch"}
	rec, _, err := ws.ReadCanonical(key)
	if err != nil {
		t.Fatalf("read canonical: %v", err)
	}
	rec.Fields["status"] = "at_risk"
	if _, err := ws.WriteCanonical(key, rec); err != nil {
		t.Fatalf("write canonical: %v", err)
	}
	readBrief()
	if !brief.Stale {
		t.Error("canonical edit did not mark the brief stale")
	}
}

func TestEnrichEntityMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "enrich_entity", map[string]interface{}{"kind": "account", "slug": "ghost"})
	if !r.IsError || !strings.Contains(resultText(r), "not found") {
		t.Errorf("ghost enrich = %q, want not-found error", resultText(r))
	}
}

func TestRecordFormatResource(t *testing.T) {
	srv, _ := testServer(t)
	contents, err := srv.readRecordFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("read resource: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d items, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("contents[0] is %T, want TextResourceContents", contents[0])
	}
	if tc.URI != "dayos://record-format" || tc.MIMEType != "text/markdown" {
		t.Errorf("resource metadata = %q %q", tc.URI, tc.MIMEType)
	}
	if !strings.Contains(tc.Text, "canonical.json") {
		t.Error("contract text missing canonical.json")
	}
}
