package mcpserver

// RecordFormatContract describes the canonical record format that external
// writers (agents, scripts, humans with a text editor) must follow when
// creating or editing entities directly in the workspace.
const RecordFormatContract = `# Dayos Canonical Record Contract

Every tracked entity lives in its own directory and owns exactly one
hand-editable file. The sync engine reconciles the rest.

## Layout

` + "```" + `
{workspace}/
  accounts/{slug}/canonical.json      # authoritative, jointly owned
  projects/{slug}/canonical.json
  people/{slug}/canonical.json
  .../{slug}/intelligence.json        # GENERATED - never hand-edit
  .../{slug}/narrative.md             # GENERATED - never hand-edit
` + "```" + `

## canonical.json

` + "```" + `json
{
  "kind": "account",
  "name": "Acme Corp",
  "fields": {
    "tier": "enterprise",
    "notes": "free-form values: strings, numbers, lists, nested objects"
  },
  "last_modified": "2025-06-01T12:00:00Z"
}
` + "```" + `

## Rules

1. **One entity, one directory.** The slug is the directory name: lowercase,
   kebab-case, derived from the name (` + "`" + `Acme Corp` + "`" + ` -> ` + "`" + `acme-corp` + "`" + `).
2. **` + "`" + `kind` + "`" + ` and ` + "`" + `name` + "`" + ` are required.** ` + "`" + `kind` + "`" + ` must be ` + "`" + `account` + "`" + `,
   ` + "`" + `project` + "`" + ` or ` + "`" + `person` + "`" + ` and must match the parent kind directory.
3. **` + "`" + `fields` + "`" + ` is free-form JSON.** Any keys, any JSON values. Omitting it is
   the same as ` + "`" + `{}` + "`" + `.
4. **` + "`" + `last_modified` + "`" + ` is advisory.** Dayos stamps it on its own writes;
   external writers may omit or leave it stale. Change detection compares a
   fingerprint of the exact file bytes, never this timestamp.
5. **Write the whole file.** Partial edits are fine in an editor, but a
   programmatic writer should write the complete JSON document in one rename
   so the watcher never sees a half-written record.
6. **Never edit generated files.** ` + "`" + `intelligence.json` + "`" + ` is owned by the
   enrichment pipeline and ` + "`" + `narrative.md` + "`" + ` is regenerated destructively;
   edits to either are lost without warning.
7. **Delete by removing the directory.** The next scan prunes the mirror row.
8. **Encoding** is UTF-8 with a trailing newline.

## Example: creating an entity by hand

` + "```" + `bash
mkdir -p workspace/projects/apollo-launch
cat > workspace/projects/apollo-launch/canonical.json <<'EOF'
{
  "kind": "project",
  "name": "Apollo Launch",
  "fields": {
    "status": "active",
    "stakeholders": ["dana-kim", "acme-corp"]
  }
}
EOF
` + "```" + `

The watcher picks the file up, mirrors it, and generates the narrative.
`
