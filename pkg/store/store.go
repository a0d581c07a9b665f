// Package store provides authenticated-encryption-at-rest persistence for
// the knowledge-memory engine: a single SQLite file encrypted as a whole with
// SQLCipher, opened once per process and shared by every repository and
// index on top of it.
//
// The store itself is schema-agnostic beyond the version table — table
// layout for entities, observations, relationships, and embeddings lives in
// [Migrate]. Everything above this package talks to it through
// statement-level [*sql.DB] calls; [Store] does not know what a "remember"
// or a "cluster" is.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	// Registers the "sqlite3" database/sql driver with SQLCipher statically
	// linked, so the same DSN that opens a plain SQLite file can also supply
	// a passphrase and cipher pragmas.
	_ "github.com/mutecomm/go-sqlcipher/v4"
)

// pbkdf2Iterations is the minimum PBKDF2 round count used to derive the
// page-encryption key from the passphrase. SQLCipher's own default (64,000)
// is well below what this spec requires, so it is always raised explicitly.
const pbkdf2Iterations = 256_000

// pageSizeBytes is the SQLCipher/SQLite page size. 4 KiB matches the
// platform's native page size and is SQLCipher's own recommended default.
const pageSizeBytes = 4096

var (
	mu       sync.Mutex
	instance *Store
)

// Store is a process-wide singleton wrapping the encrypted SQLite handle.
// Obtain one with [Open]; a second call to [Open] in the same process with
// any path returns the handle created by the first call, matching the
// "concurrent open in the same process returns the existing handle"
// requirement.
type Store struct {
	db   *sql.DB
	path string
}

// Open derives the page-encryption key from passphrase via PBKDF2 and opens
// (creating if necessary) the encrypted database file at path. Foreign-key
// enforcement, write-ahead logging, and secure-delete are enabled, and
// [Migrate] is run to bring the schema to the current version.
//
// A wrong passphrase or corrupted file is a fatal, non-retryable error: the
// very first statement executed against the handle (a read of
// sqlite_master) will fail because SQLCipher cannot decrypt the page
// header, and that failure is surfaced here rather than deferred to the
// caller's first real query.
//
// Open is idempotent at the process level: once a Store has been
// successfully created, subsequent calls return it unconditionally,
// regardless of the path or passphrase arguments passed on later calls.
func Open(ctx context.Context, path, passphrase string) (*Store, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}
	if passphrase == "" {
		return nil, fmt.Errorf("store: open: passphrase must not be empty")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: open: create data directory: %w", err)
		}
	}

	dsn := buildDSN(path, passphrase)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite writers are serialized; one physical connection avoids SQLITE_BUSY churn.

	if err := verifyAndConfigure(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open: wrong passphrase or corrupted file: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open: migrate: %w", err)
	}

	instance = &Store{db: db, path: path}
	return instance, nil
}

// buildDSN assembles a go-sqlcipher connection string carrying the key
// derivation and cipher page-size parameters as query-string pragmas.
func buildDSN(path, passphrase string) string {
	v := url.Values{}
	v.Set("_pragma_key", passphrase)
	v.Set("_pragma_cipher_page_size", fmt.Sprintf("%d", pageSizeBytes))
	v.Set("_pragma_kdf_iter", fmt.Sprintf("%d", pbkdf2Iterations))
	v.Set("_pragma_foreign_keys", "ON")
	v.Set("_pragma_journal_mode", "WAL")
	v.Set("_pragma_secure_delete", "ON")
	return fmt.Sprintf("file:%s?%s", path, v.Encode())
}

// verifyAndConfigure issues the integrity check that also doubles as the
// passphrase check: SQLCipher can only read sqlite_master with the right
// key, so a failed query here means either a wrong passphrase or a
// corrupted/non-SQLCipher file.
func verifyAndConfigure(ctx context.Context, db *sql.DB) error {
	var name sql.NullString
	row := db.QueryRowContext(ctx, `SELECT name FROM sqlite_master LIMIT 1`)
	if err := row.Scan(&name); err != nil && err != sql.ErrNoRows {
		return err
	}
	return nil
}

// DB returns the underlying [*sql.DB] handle for use by repositories and the
// semantic index. It must not be closed by callers; use [Store.Close].
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the underlying database handle and clears the process-wide
// singleton so a subsequent [Open] call starts fresh. Intended for test
// teardown and process shutdown; ordinary request handling never calls it.
func (s *Store) Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := s.db.Close()
	if instance == s {
		instance = nil
	}
	return err
}

// resetForTest clears the process-wide singleton without closing the
// underlying handle owner's resources twice. Exposed only to _test.go files
// via the internal test helper in store_test.go.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
}
