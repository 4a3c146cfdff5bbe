//go:build sqlite_fts5

package mirror

import (
	"database/sql"
	"fmt"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS entities_fts USING fts5(
			kind UNINDEXED,
			slug UNINDEXED,
			name,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, key models.Key, name, body string) error {
	_, _ = tx.Exec(`DELETE FROM entities_fts WHERE kind = ? AND slug = ?`, string(key.Kind), key.Slug)
	_, err := tx.Exec(`INSERT INTO entities_fts (kind, slug, name, body) VALUES (?, ?, ?, ?)`,
		string(key.Kind), key.Slug, name, body)
	if err != nil {
		return fmt.Errorf("mirror: upsert fts: %v: %w", err, apperr.ErrStore)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, key models.Key) {
	_, _ = tx.Exec(`DELETE FROM entities_fts WHERE kind = ? AND slug = ?`, string(key.Kind), key.Slug)
}

// Search performs an FTS5 full-text search over entity names and flattened
// fields and returns matches with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT kind,
		       slug,
		       name,
		       snippet(entities_fts, 3, '<b>', '</b>', '...', 64)
		FROM entities_fts
		WHERE entities_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("mirror: search: %v: %w", err, apperr.ErrStore)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r       SearchResult
			kindStr string
		)
		if err := rows.Scan(&kindStr, &r.Key.Slug, &r.Name, &r.Snippet); err != nil {
			return nil, err
		}
		r.Key.Kind = models.Kind(kindStr)
		out = append(out, r)
	}
	return out, rows.Err()
}
