package store

import (
	"context"
	"path/filepath"
	"testing"
)

func freshPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "hippocampus.db")
}

func TestOpenCreatesFileAndSchema(t *testing.T) {
	t.Cleanup(resetForTest)
	ctx := context.Background()

	s, err := Open(ctx, freshPath(t), "correct horse battery staple")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	var version int
	if err := s.DB().QueryRowContext(ctx, `SELECT version FROM schema_version WHERE id = 1`).Scan(&version); err != nil {
		t.Fatalf("read schema_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Fatalf("schema_version = %d, want %d", version, currentSchemaVersion)
	}

	for _, table := range []string{"entities", "observations", "relationships", "embeddings"} {
		var name string
		if err := s.DB().QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name); err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestOpenRejectsEmptyPassphrase(t *testing.T) {
	t.Cleanup(resetForTest)

	if _, err := Open(context.Background(), freshPath(t), ""); err == nil {
		t.Fatal("expected error for empty passphrase, got nil")
	}
}

func TestOpenReturnsExistingSingleton(t *testing.T) {
	t.Cleanup(resetForTest)
	ctx := context.Background()
	path := freshPath(t)

	first, err := Open(ctx, path, "passphrase-one")
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	defer first.Close()

	second, err := Open(ctx, "/ignored/different/path.db", "totally-different-passphrase")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if second != first {
		t.Fatal("second Open returned a different *Store; want the same process-wide singleton")
	}
}

func TestOpenWrongPassphraseFails(t *testing.T) {
	t.Cleanup(resetForTest)
	ctx := context.Background()
	path := freshPath(t)

	s, err := Open(ctx, path, "the-right-one")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	resetForTest()

	if _, err := Open(ctx, path, "the-wrong-one"); err == nil {
		t.Fatal("expected error opening existing file with wrong passphrase, got nil")
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Cleanup(resetForTest)
	ctx := context.Background()
	path := freshPath(t)

	s, err := Open(ctx, path, "passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := Migrate(ctx, s.DB()); err != nil {
		t.Fatalf("second Migrate call: %v", err)
	}
}

func TestMigrateRejectsNewerSchema(t *testing.T) {
	t.Cleanup(resetForTest)
	ctx := context.Background()
	path := freshPath(t)

	s, err := Open(ctx, path, "passphrase")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if _, err := s.DB().ExecContext(ctx, `UPDATE schema_version SET version = ? WHERE id = 1`, currentSchemaVersion+1); err != nil {
		t.Fatalf("bump schema_version: %v", err)
	}

	if err := Migrate(ctx, s.DB()); err == nil {
		t.Fatal("expected Migrate to refuse a schema version newer than it understands")
	}
}
