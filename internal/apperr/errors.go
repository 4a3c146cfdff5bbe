// Package apperr defines the sentinel errors shared across the engine.
package apperr

import "errors"

var (
	// ErrNotFound marks a missing canonical or intelligence file. Recoverable:
	// callers may create the record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a slug collision or a stale fingerprint on update.
	ErrConflict = errors.New("conflict")
	// ErrAlreadyExists marks creation of an entity that is already present.
	ErrAlreadyExists = errors.New("already exists")
	// ErrParse marks a malformed file or enrichment reply.
	ErrParse = errors.New("parse failure")
	// ErrStore marks a failed relational-store operation; the entity's sync
	// is deferred to the next scan.
	ErrStore = errors.New("store failure")
	// ErrCall marks a failed or timed-out enrichment invocation.
	ErrCall = errors.New("enrichment call failure")
	// ErrMigration marks an unreadable legacy dossier; the original file is
	// left intact and the next read retries.
	ErrMigration = errors.New("migration failure")
)
