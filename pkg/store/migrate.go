package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// currentSchemaVersion is the schema version this binary understands. If an
// existing database reports a higher version, [Migrate] refuses to open it.
const currentSchemaVersion = 1

// ddlV1 creates every table and index this engine needs, starting from an
// empty database. Indexes cover every column an engine-level query filters
// or orders on (entity name lookup, observation listing, relationship
// endpoint lookup).
const ddlV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    id      INTEGER PRIMARY KEY CHECK (id = 1),
    version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL UNIQUE,
    type       TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_updated_at ON entities (updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_entities_type        ON entities (type);

CREATE TABLE IF NOT EXISTS observations (
    id         TEXT PRIMARY KEY,
    entity_id  TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    content    TEXT NOT NULL,
    source     TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_observations_entity_id  ON observations (entity_id);
CREATE INDEX IF NOT EXISTS idx_observations_created_at ON observations (created_at DESC);

CREATE TABLE IF NOT EXISTS relationships (
    id            TEXT PRIMARY KEY,
    from_entity   TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    to_entity     TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    relation_type TEXT NOT NULL DEFAULT 'relates_to',
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships (from_entity);
CREATE INDEX IF NOT EXISTS idx_relationships_to   ON relationships (to_entity);

CREATE TABLE IF NOT EXISTS embeddings (
    id            TEXT PRIMARY KEY,
    entity_id     TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
    observation_id TEXT NOT NULL REFERENCES observations (id) ON DELETE CASCADE,
    vector        BLOB NOT NULL,
    text_content  TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_embeddings_observation_id ON embeddings (observation_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_entity_id             ON embeddings (entity_id);
`

// Migrate brings the database at db to [currentSchemaVersion]. It is
// idempotent and safe to call on every process start: the DDL statements
// are all CREATE-IF-NOT-EXISTS, and the version row is seeded only once.
//
// If the stored version exceeds currentSchemaVersion, Migrate refuses to
// proceed — this binary is older than the data and must not touch it.
func Migrate(ctx context.Context, db *sql.DB) error {
	version, err := readVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: read version: %w", err)
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("migrate: database schema version %d is newer than this binary understands (%d)", version, currentSchemaVersion)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, ddlV1); err != nil {
		return fmt.Errorf("migrate: apply schema v1: %w", err)
	}

	if version == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (id, version) VALUES (1, ?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("migrate: seed schema_version: %w", err)
		}
	} else if version < currentSchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ? WHERE id = 1`, currentSchemaVersion); err != nil {
			return fmt.Errorf("migrate: bump schema_version: %w", err)
		}
	}

	return tx.Commit()
}

// readVersion returns 0 when the schema_version table does not yet exist
// (a brand-new database) or has no row, and the stored version otherwise.
func readVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	row := db.QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`)
	err := row.Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		return 0, nil
	case err != nil:
		// schema_version table itself doesn't exist yet on a fresh database.
		if isNoSuchTable(err) {
			return 0, nil
		}
		return 0, err
	default:
		return version, nil
	}
}

func isNoSuchTable(err error) bool {
	if err == nil {
		return false
	}
	// go-sqlcipher surfaces SQLite errors as plain strings; matching the
	// message is the portable way to distinguish "table missing" (expected
	// on a fresh database) from a genuine I/O or corruption failure.
	msg := err.Error()
	return strings.Contains(msg, "no such table")
}
