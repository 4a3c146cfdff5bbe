package mirror

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/models"
)

// EntityRow is one entity's projection in the mirror.
type EntityRow struct {
	Key          models.Key
	Name         string
	Fields       map[string]any
	LastModified time.Time
	Fingerprint  string
}

// ActivityEntry is one logged event for an entity.
type ActivityEntry struct {
	ID         int64
	Key        models.Key
	OccurredAt time.Time
	Note       string
}

// SearchResult is one search hit.
type SearchResult struct {
	Key     models.Key
	Name    string
	Snippet string
}

// Store defines the mirror operations the rest of the engine depends on.
// Consumers take this interface rather than *DB so tests can count calls.
type Store interface {
	Upsert(row EntityRow) error
	Get(key models.Key) (*EntityRow, error)
	Delete(key models.Key) error
	List(kind models.Kind) ([]EntityRow, error)
	SyncedFingerprints() (map[models.Key]string, error)
	AppendActivity(key models.Key, occurredAt time.Time, note string) error
	RecentActivity(key models.Key, limit int) ([]ActivityEntry, error)
	Search(query string, limit int) ([]SearchResult, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)

// flattenFields renders a fields map as searchable text, one "key: value"
// line per field in sorted key order.
func flattenFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, fields[k])
	}
	return b.String()
}

// Upsert inserts or replaces an entity row and its FTS entry in one
// transaction.
func (db *DB) Upsert(row EntityRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("mirror: begin tx: %v: %w", err, apperr.ErrStore)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	fieldsJSON, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("mirror: marshal fields: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO entities (kind, slug, name, fields, last_modified, synced_fingerprint)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, slug) DO UPDATE SET
			name               = excluded.name,
			fields             = excluded.fields,
			last_modified      = excluded.last_modified,
			synced_fingerprint = excluded.synced_fingerprint
	`, string(row.Key.Kind), row.Key.Slug, row.Name, string(fieldsJSON), row.LastModified, row.Fingerprint)
	if err != nil {
		return fmt.Errorf("mirror: upsert entity: %v: %w", err, apperr.ErrStore)
	}

	// FTS upsert (no-op when the FTS5 tag is absent).
	if err := ftsUpsert(tx, row.Key, row.Name, flattenFields(row.Fields)); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns the mirrored row for an entity, or nil when the entity has
// never been synced. Absence is not an error: the sync engine decides what
// a missing row means.
func (db *DB) Get(key models.Key) (*EntityRow, error) {
	var (
		row        EntityRow
		fieldsJSON string
	)
	err := db.conn.QueryRow(`
		SELECT name, fields, last_modified, synced_fingerprint
		FROM entities WHERE kind = ? AND slug = ?
	`, string(key.Kind), key.Slug).Scan(&row.Name, &fieldsJSON, &row.LastModified, &row.Fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mirror: get %s: %v: %w", key, err, apperr.ErrStore)
	}
	row.Key = key
	if err := json.Unmarshal([]byte(fieldsJSON), &row.Fields); err != nil {
		return nil, fmt.Errorf("mirror: decode fields for %s: %v: %w", key, err, apperr.ErrStore)
	}
	return &row, nil
}

// Delete removes an entity row, its FTS entry, and its activity log.
func (db *DB) Delete(key models.Key) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("mirror: begin tx: %v: %w", err, apperr.ErrStore)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, key)
	_, _ = tx.Exec(`DELETE FROM activity WHERE kind = ? AND slug = ?`, string(key.Kind), key.Slug)
	_, _ = tx.Exec(`DELETE FROM entities WHERE kind = ? AND slug = ?`, string(key.Kind), key.Slug)

	return tx.Commit()
}

// List returns mirrored entities ordered by kind then slug. An empty kind
// lists every entity.
func (db *DB) List(kind models.Kind) ([]EntityRow, error) {
	query := `SELECT kind, slug, name, fields, last_modified, synced_fingerprint FROM entities`
	args := []any{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY kind, slug`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("mirror: list entities: %v: %w", err, apperr.ErrStore)
	}
	defer rows.Close()

	var out []EntityRow
	for rows.Next() {
		var (
			row        EntityRow
			kindStr    string
			fieldsJSON string
		)
		if err := rows.Scan(&kindStr, &row.Key.Slug, &row.Name, &fieldsJSON, &row.LastModified, &row.Fingerprint); err != nil {
			return nil, err
		}
		row.Key.Kind = models.Kind(kindStr)
		if err := json.Unmarshal([]byte(fieldsJSON), &row.Fields); err != nil {
			return nil, fmt.Errorf("mirror: decode fields for %s: %v: %w", row.Key, err, apperr.ErrStore)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// SyncedFingerprints returns the fingerprint every mirrored entity was last
// synced from, keyed by entity. The sync engine diffs this map against disk.
func (db *DB) SyncedFingerprints() (map[models.Key]string, error) {
	rows, err := db.conn.Query(`SELECT kind, slug, synced_fingerprint FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("mirror: synced fingerprints: %v: %w", err, apperr.ErrStore)
	}
	defer rows.Close()

	out := make(map[models.Key]string)
	for rows.Next() {
		var (
			kindStr string
			slug    string
			fp      string
		)
		if err := rows.Scan(&kindStr, &slug, &fp); err != nil {
			return nil, err
		}
		out[models.Key{Kind: models.Kind(kindStr), Slug: slug}] = fp
	}
	return out, rows.Err()
}

// AppendActivity records one activity line for an entity.
func (db *DB) AppendActivity(key models.Key, occurredAt time.Time, note string) error {
	_, err := db.conn.Exec(`
		INSERT INTO activity (kind, slug, occurred_at, note) VALUES (?, ?, ?, ?)
	`, string(key.Kind), key.Slug, occurredAt, note)
	if err != nil {
		return fmt.Errorf("mirror: append activity: %v: %w", err, apperr.ErrStore)
	}
	return nil
}

// RecentActivity returns an entity's newest activity entries, newest first.
func (db *DB) RecentActivity(key models.Key, limit int) ([]ActivityEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, occurred_at, note
		FROM activity
		WHERE kind = ? AND slug = ?
		ORDER BY occurred_at DESC, id DESC
		LIMIT ?
	`, string(key.Kind), key.Slug, limit)
	if err != nil {
		return nil, fmt.Errorf("mirror: recent activity: %v: %w", err, apperr.ErrStore)
	}
	defer rows.Close()

	var out []ActivityEntry
	for rows.Next() {
		e := ActivityEntry{Key: key}
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.Note); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
