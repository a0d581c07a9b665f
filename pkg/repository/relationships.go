package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Relationships provides CRUD and traversal access to the relationships
// table. Traversal (BFS neighbor expansion) runs in-process rather than as a
// recursive SQL CTE: the graph is expected to fit comfortably in memory for
// a single-user store, and plain Go control flow is easier to bound and
// reason about than nested WITH RECURSIVE visited-array tracking.
type Relationships struct {
	db *sql.DB
}

// NewRelationships wraps db for relationship access.
func NewRelationships(db *sql.DB) *Relationships {
	return &Relationships{db: db}
}

// Create inserts a directed edge from fromEntity to toEntity. If relType is
// empty, [DefaultRelationType] is used.
func (r *Relationships) Create(ctx context.Context, fromEntity, toEntity, relType string) (Relationship, error) {
	if relType == "" {
		relType = DefaultRelationType
	}
	rel := Relationship{
		ID:           uuid.NewString(),
		FromEntity:   fromEntity,
		ToEntity:     toEntity,
		RelationType: relType,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO relationships (id, from_entity, to_entity, relation_type, created_at) VALUES (?, ?, ?, ?, ?)`,
		rel.ID, rel.FromEntity, rel.ToEntity, rel.RelationType, rel.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Relationship{}, fmt.Errorf("repository: create relationship: %w", err)
	}
	return rel, nil
}

// DeleteByEntity removes every relationship touching entityID in either
// direction.
func (r *Relationships) DeleteByEntity(ctx context.Context, entityID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM relationships WHERE from_entity = ? OR to_entity = ?`, entityID, entityID)
	if err != nil {
		return 0, fmt.Errorf("repository: delete relationships for entity %q: %w", entityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: delete relationships for entity %q: rows affected: %w", entityID, err)
	}
	return n, nil
}

// ExistsBetween reports whether any relationship exists between a and b in
// either direction, regardless of type — the unordered-pair uniqueness
// check used before inserting an auto-detected relationship.
func (r *Relationships) ExistsBetween(ctx context.Context, a, b string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM relationships
		WHERE (from_entity = ? AND to_entity = ?) OR (from_entity = ? AND to_entity = ?)
	`, a, b, b, a).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("repository: exists between %q and %q: %w", a, b, err)
	}
	return n > 0, nil
}

// Delete removes a single relationship by ID.
func (r *Relationships) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repository: delete relationship %q: %w", id, err)
	}
	return checkRowsAffected(res, "delete relationship", id)
}

// ListByEntity returns every relationship touching entityID, in either
// direction.
func (r *Relationships) ListByEntity(ctx context.Context, entityID string) ([]Relationship, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, from_entity, to_entity, relation_type, created_at FROM relationships WHERE from_entity = ? OR to_entity = ?`,
		entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("repository: list relationships for %q: %w", entityID, err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// neighborRow is the shape used internally while walking the adjacency list
// breadth-first.
type neighborRow struct {
	id   string
	name string
	typ  string
}

// adjacency returns the immediate neighbors of entityID (both directions),
// one row per edge, used as the expansion step of [Relationships.BFS].
func (r *Relationships) adjacency(ctx context.Context, entityID string) ([]neighborRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.type
		FROM relationships rel
		JOIN entities e ON e.id = CASE WHEN rel.from_entity = ? THEN rel.to_entity ELSE rel.from_entity END
		WHERE rel.from_entity = ? OR rel.to_entity = ?
	`, entityID, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("repository: adjacency for %q: %w", entityID, err)
	}
	defer rows.Close()

	var out []neighborRow
	for rows.Next() {
		var n neighborRow
		if err := rows.Scan(&n.id, &n.name, &n.typ); err != nil {
			return nil, fmt.Errorf("repository: adjacency for %q: scan: %w", entityID, err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// BFS walks the relationship graph outward from seedID up to maxDepth hops,
// visiting each entity at most once, and returns every entity reached
// (excluding the seed itself) annotated with its hop distance.
func (r *Relationships) BFS(ctx context.Context, seedID string, maxDepth int) ([]NeighborInfo, error) {
	if maxDepth <= 0 {
		return nil, nil
	}

	visited := map[string]bool{seedID: true}
	frontier := []string{seedID}
	var out []NeighborInfo

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			neighbors, err := r.adjacency(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.id] {
					continue
				}
				visited[n.id] = true
				out = append(out, NeighborInfo{ID: n.id, Depth: depth, Name: n.name, Type: n.typ})
				next = append(next, n.id)
			}
		}
		frontier = next
	}

	return out, nil
}

// Count returns the total number of relationships in the store.
func (r *Relationships) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: count relationships: %w", err)
	}
	return n, nil
}

func scanRelationships(rows *sql.Rows) ([]Relationship, error) {
	var out []Relationship
	for rows.Next() {
		var rel Relationship
		var created string
		if err := rows.Scan(&rel.ID, &rel.FromEntity, &rel.ToEntity, &rel.RelationType, &created); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		var err error
		if rel.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
