package repository_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/karrolcia/hippocampus-go/pkg/repository"
	"github.com/karrolcia/hippocampus-go/pkg/store"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := store.Open(ctx, path, "test-passphrase")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func TestEntitiesCreateAndGet(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	ctx := context.Background()

	created, err := entities.Create(ctx, "Alice", "person")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	byName, err := entities.GetByName(ctx, "Alice")
	if err != nil {
		t.Fatalf("GetByName: %v", err)
	}
	if byName.ID != created.ID || byName.Type != "person" {
		t.Fatalf("GetByName mismatch: %+v vs %+v", byName, created)
	}

	byID, err := entities.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if byID.Name != "Alice" {
		t.Fatalf("GetByID mismatch: %+v", byID)
	}
}

func TestEntitiesDuplicateNameFails(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	ctx := context.Background()

	if _, err := entities.Create(ctx, "Alice", "person"); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := entities.Create(ctx, "Alice", "person"); err == nil {
		t.Fatal("expected error creating duplicate entity name, got nil")
	}
}

func TestEntitiesDeleteCascadesObservations(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	observations := repository.NewObservations(db)
	ctx := context.Background()

	ent, err := entities.Create(ctx, "Bob", "person")
	if err != nil {
		t.Fatalf("Create entity: %v", err)
	}
	obs, err := observations.Create(ctx, ent.ID, "likes coffee", "test")
	if err != nil {
		t.Fatalf("Create observation: %v", err)
	}

	if err := entities.Delete(ctx, ent.ID); err != nil {
		t.Fatalf("Delete entity: %v", err)
	}

	if _, err := observations.Get(ctx, obs.ID); err == nil {
		t.Fatal("expected observation to be cascade-deleted with its entity")
	}
}

func TestObservationsDeleteByEntity(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	observations := repository.NewObservations(db)
	ctx := context.Background()

	ent, err := entities.Create(ctx, "Carol", "person")
	if err != nil {
		t.Fatalf("Create entity: %v", err)
	}
	if _, err := observations.Create(ctx, ent.ID, "first", "test"); err != nil {
		t.Fatalf("Create observation: %v", err)
	}
	if _, err := observations.Create(ctx, ent.ID, "second", "test"); err != nil {
		t.Fatalf("Create observation: %v", err)
	}

	n, err := observations.DeleteByEntity(ctx, ent.ID)
	if err != nil {
		t.Fatalf("DeleteByEntity: %v", err)
	}
	if n != 2 {
		t.Fatalf("DeleteByEntity removed %d rows, want 2", n)
	}

	remaining, err := observations.ListByEntity(ctx, ent.ID)
	if err != nil {
		t.Fatalf("ListByEntity: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("expected no remaining observations, got %d", len(remaining))
	}
}

func TestRelationshipsBFS(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	relationships := repository.NewRelationships(db)
	ctx := context.Background()

	a, _ := entities.Create(ctx, "A", "")
	b, _ := entities.Create(ctx, "B", "")
	c, _ := entities.Create(ctx, "C", "")
	d, _ := entities.Create(ctx, "D", "")

	// A -> B -> C, and A -> D directly (unreachable via B).
	if _, err := relationships.Create(ctx, a.ID, b.ID, ""); err != nil {
		t.Fatalf("Create A->B: %v", err)
	}
	if _, err := relationships.Create(ctx, b.ID, c.ID, ""); err != nil {
		t.Fatalf("Create B->C: %v", err)
	}
	if _, err := relationships.Create(ctx, a.ID, d.ID, ""); err != nil {
		t.Fatalf("Create A->D: %v", err)
	}

	depth1, err := relationships.BFS(ctx, a.ID, 1)
	if err != nil {
		t.Fatalf("BFS depth 1: %v", err)
	}
	if len(depth1) != 2 {
		t.Fatalf("BFS depth 1 from A: got %d neighbors, want 2 (B, D)", len(depth1))
	}

	depth2, err := relationships.BFS(ctx, a.ID, 2)
	if err != nil {
		t.Fatalf("BFS depth 2: %v", err)
	}
	if len(depth2) != 3 {
		t.Fatalf("BFS depth 2 from A: got %d neighbors, want 3 (B, D, C)", len(depth2))
	}

	var sawC bool
	for _, n := range depth2 {
		if n.Name == "C" {
			sawC = true
			if n.Depth != 2 {
				t.Fatalf("C should be at depth 2, got %d", n.Depth)
			}
		}
	}
	if !sawC {
		t.Fatal("expected C to be reachable at depth 2")
	}
}

func TestRelationshipsExists(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	relationships := repository.NewRelationships(db)
	ctx := context.Background()

	a, _ := entities.Create(ctx, "A", "")
	b, _ := entities.Create(ctx, "B", "")

	exists, err := relationships.ExistsBetween(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("ExistsBetween (before): %v", err)
	}
	if exists {
		t.Fatal("relationship should not exist yet")
	}

	if _, err := relationships.Create(ctx, a.ID, b.ID, repository.DefaultRelationType); err != nil {
		t.Fatalf("Create: %v", err)
	}

	exists, err = relationships.ExistsBetween(ctx, a.ID, b.ID)
	if err != nil {
		t.Fatalf("ExistsBetween (after): %v", err)
	}
	if !exists {
		t.Fatal("relationship should exist after Create")
	}
}

func TestEntitiesFindByPrefixAndType(t *testing.T) {
	db := newTestDB(t)
	entities := repository.NewEntities(db)
	ctx := context.Background()

	if _, err := entities.Create(ctx, "Project Alpha", "project"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := entities.Create(ctx, "Project Beta", "project"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := entities.Create(ctx, "Dana", "person"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	found, err := entities.Find(ctx, repository.EntityFilter{NamePrefix: "Project"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("Find by prefix: got %d, want 2", len(found))
	}

	found, err = entities.Find(ctx, repository.EntityFilter{Type: "person"})
	if err != nil {
		t.Fatalf("Find by type: %v", err)
	}
	if len(found) != 1 || found[0].Name != "Dana" {
		t.Fatalf("Find by type: got %+v", found)
	}
}
