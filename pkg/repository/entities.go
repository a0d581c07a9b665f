package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entities provides CRUD access to the entities table.
type Entities struct {
	db *sql.DB
}

// NewEntities wraps db for entity access.
func NewEntities(db *sql.DB) *Entities {
	return &Entities{db: db}
}

// Create inserts a new entity, generating its ID and timestamps. The name
// must be unique; a duplicate name returns an error wrapping the driver's
// constraint violation.
func (e *Entities) Create(ctx context.Context, name, entityType string) (Entity, error) {
	now := time.Now().UTC()
	ent := Entity{
		ID:        uuid.NewString(),
		Name:      name,
		Type:      entityType,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO entities (id, name, type, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		ent.ID, ent.Name, ent.Type, ent.CreatedAt.Format(time.RFC3339Nano), ent.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entity{}, fmt.Errorf("repository: create entity: %w", err)
	}
	return ent, nil
}

// FindOrCreate returns the entity named name, creating it with entityType if
// it does not yet exist. Two concurrent calls racing on the same new name
// will have one succeed and one fail on the UNIQUE constraint; the failing
// caller retries the lookup rather than surfacing the constraint error,
// making the net effect an atomic upsert from the caller's perspective.
func (e *Entities) FindOrCreate(ctx context.Context, name, entityType string) (Entity, error) {
	ent, err := e.GetByName(ctx, name)
	if err == nil {
		return ent, nil
	}

	ent, createErr := e.Create(ctx, name, entityType)
	if createErr == nil {
		return ent, nil
	}

	// Lost the race to a concurrent creator; the row should exist now.
	ent, err = e.GetByName(ctx, name)
	if err != nil {
		return Entity{}, fmt.Errorf("repository: find or create entity %q: %w", name, createErr)
	}
	return ent, nil
}

// SearchByNameSubstring returns up to 10 entities whose name contains q,
// case-insensitively.
func (e *Entities) SearchByNameSubstring(ctx context.Context, q string) ([]Entity, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, name, type, created_at, updated_at FROM entities WHERE name LIKE ? COLLATE NOCASE ORDER BY updated_at DESC LIMIT 10`,
		"%"+q+"%")
	if err != nil {
		return nil, fmt.Errorf("repository: search entities by name substring %q: %w", q, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: search entities by name substring %q: scan: %w", q, err)
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

// GetByName returns the entity with the given name, or an error wrapping
// [sql.ErrNoRows] if none exists.
func (e *Entities) GetByName(ctx context.Context, name string) (Entity, error) {
	row := e.db.QueryRowContext(ctx,
		`SELECT id, name, type, created_at, updated_at FROM entities WHERE name = ?`, name)
	ent, err := scanEntity(row)
	if err != nil {
		return Entity{}, fmt.Errorf("repository: get entity %q: %w", name, err)
	}
	return ent, nil
}

// GetByID returns the entity with the given ID, or an error wrapping
// [sql.ErrNoRows] if none exists.
func (e *Entities) GetByID(ctx context.Context, id string) (Entity, error) {
	row := e.db.QueryRowContext(ctx,
		`SELECT id, name, type, created_at, updated_at FROM entities WHERE id = ?`, id)
	ent, err := scanEntity(row)
	if err != nil {
		return Entity{}, fmt.Errorf("repository: get entity by id %q: %w", id, err)
	}
	return ent, nil
}

// Touch updates an entity's updated_at timestamp to now, used whenever a
// new observation is attached so "recently touched" ordering reflects
// activity rather than just creation.
func (e *Entities) Touch(ctx context.Context, id string) error {
	res, err := e.db.ExecContext(ctx,
		`UPDATE entities SET updated_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("repository: touch entity %q: %w", id, err)
	}
	return checkRowsAffected(res, "touch entity", id)
}

// Delete removes an entity along with its observations, relationships, and
// embeddings via ON DELETE CASCADE.
func (e *Entities) Delete(ctx context.Context, id string) error {
	res, err := e.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repository: delete entity %q: %w", id, err)
	}
	return checkRowsAffected(res, "delete entity", id)
}

// EntityFilter narrows a [Entities.Find] call.
type EntityFilter struct {
	NamePrefix string
	Type       string
	Limit      int
}

// Find returns entities matching filter, most recently touched first.
func (e *Entities) Find(ctx context.Context, filter EntityFilter) ([]Entity, error) {
	var clauses []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return "?"
	}

	if filter.NamePrefix != "" {
		clauses = append(clauses, "name LIKE "+next(filter.NamePrefix+"%"))
	}
	if filter.Type != "" {
		clauses = append(clauses, "type = "+next(filter.Type))
	}

	query := "SELECT id, name, type, created_at, updated_at FROM entities"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY updated_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " LIMIT " + next(limit)

	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: find entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		ent, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: find entities: scan: %w", err)
		}
		out = append(out, ent)
	}
	return out, rows.Err()
}

// Count returns the total number of entities in the store.
func (e *Entities) Count(ctx context.Context) (int, error) {
	var n int
	if err := e.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: count entities: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (Entity, error) {
	var ent Entity
	var created, updated string
	if err := row.Scan(&ent.ID, &ent.Name, &ent.Type, &created, &updated); err != nil {
		return Entity{}, err
	}
	var err error
	if ent.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Entity{}, fmt.Errorf("parse created_at: %w", err)
	}
	if ent.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return Entity{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return ent, nil
}

func checkRowsAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %q: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %q: %w", op, id, sql.ErrNoRows)
	}
	return nil
}
