//go:build !sqlite_fts5

package mirror

import (
	"database/sql"
	"fmt"

	"github.com/jamesgiroux/dayos/internal/apperr"
	"github.com/jamesgiroux/dayos/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback over the entities table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Key, _, _ string) error {
	// Name and fields are already stored in the entities table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ models.Key) {}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT kind, slug, name, substr(fields, 1, 200)
		FROM entities
		WHERE name LIKE ? OR fields LIKE ?
		ORDER BY kind, slug
		LIMIT ?
	`, like, like, limit)
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
