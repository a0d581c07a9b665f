package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LexicalSearchFilter narrows a [Observations.LexicalSearch] call.
type LexicalSearchFilter struct {
	Query string
	Limit int
	Type  string
	Since time.Time
}

// ObservationWithEntity pairs an observation with its owning entity's name
// and type, the shape lexical search and fusion need without a second round
// trip per row.
type ObservationWithEntity struct {
	Observation
	EntityName string
	EntityType string
}

// Observations provides CRUD access to the observations table.
type Observations struct {
	db *sql.DB
}

// NewObservations wraps db for observation access.
func NewObservations(db *sql.DB) *Observations {
	return &Observations{db: db}
}

// Create inserts a new observation attached to entityID.
func (o *Observations) Create(ctx context.Context, entityID, content, source string) (Observation, error) {
	obs := Observation{
		ID:        uuid.NewString(),
		EntityID:  entityID,
		Content:   content,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO observations (id, entity_id, content, source, created_at) VALUES (?, ?, ?, ?, ?)`,
		obs.ID, obs.EntityID, obs.Content, obs.Source, obs.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return Observation{}, fmt.Errorf("repository: create observation: %w", err)
	}
	return obs, nil
}

// Get returns a single observation by ID.
func (o *Observations) Get(ctx context.Context, id string) (Observation, error) {
	row := o.db.QueryRowContext(ctx,
		`SELECT id, entity_id, content, source, created_at FROM observations WHERE id = ?`, id)
	obs, err := scanObservation(row)
	if err != nil {
		return Observation{}, fmt.Errorf("repository: get observation %q: %w", id, err)
	}
	return obs, nil
}

// ListByEntity returns every observation for entityID, oldest first.
func (o *Observations) ListByEntity(ctx context.Context, entityID string) ([]Observation, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, entity_id, content, source, created_at FROM observations WHERE entity_id = ? ORDER BY created_at ASC`,
		entityID)
	if err != nil {
		return nil, fmt.Errorf("repository: list observations for %q: %w", entityID, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: list observations for %q: scan: %w", entityID, err)
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// LexicalSearch returns observations whose content or owning entity name
// contains filter.Query (case-insensitive substring), newest first, capped
// at filter.Limit (clamped to 50).
func (o *Observations) LexicalSearch(ctx context.Context, filter LexicalSearchFilter) ([]ObservationWithEntity, error) {
	clauses := []string{"(o.content LIKE ? COLLATE NOCASE OR e.name LIKE ? COLLATE NOCASE)"}
	like := "%" + filter.Query + "%"
	args := []any{like, like}

	if filter.Type != "" {
		clauses = append(clauses, "e.type = ?")
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "o.created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	args = append(args, limit)

	query := `
		SELECT o.id, o.entity_id, o.content, o.source, o.created_at, e.name, e.type
		FROM observations o
		JOIN entities e ON e.id = o.entity_id
		WHERE ` + strings.Join(clauses, " AND ") + `
		ORDER BY o.created_at DESC
		LIMIT ?
	`

	rows, err := o.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: lexical search: %w", err)
	}
	defer rows.Close()

	var out []ObservationWithEntity
	for rows.Next() {
		var owe ObservationWithEntity
		var created string
		if err := rows.Scan(&owe.ID, &owe.EntityID, &owe.Content, &owe.Source, &created, &owe.EntityName, &owe.EntityType); err != nil {
			return nil, fmt.Errorf("repository: lexical search: scan: %w", err)
		}
		if owe.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("repository: lexical search: parse created_at: %w", err)
		}
		out = append(out, owe)
	}
	return out, rows.Err()
}

// FetchByIDs returns the observations with the given ids, in the same
// order as ids. Missing ids are silently omitted from the result.
func (o *Observations) FetchByIDs(ctx context.Context, ids []string) ([]Observation, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := o.db.QueryContext(ctx,
		`SELECT id, entity_id, content, source, created_at FROM observations WHERE id IN (`+strings.Join(placeholders, ",")+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("repository: fetch observations by ids: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]Observation, len(ids))
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("repository: fetch observations by ids: scan: %w", err)
		}
		byID[obs.ID] = obs
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Observation, 0, len(ids))
	for _, id := range ids {
		if obs, ok := byID[id]; ok {
			out = append(out, obs)
		}
	}
	return out, nil
}

// DeleteByEntity removes every observation belonging to entityID.
func (o *Observations) DeleteByEntity(ctx context.Context, entityID string) (int64, error) {
	res, err := o.db.ExecContext(ctx, `DELETE FROM observations WHERE entity_id = ?`, entityID)
	if err != nil {
		return 0, fmt.Errorf("repository: delete observations for entity %q: %w", entityID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("repository: delete observations for entity %q: rows affected: %w", entityID, err)
	}
	return n, nil
}

// Delete removes a single observation by ID, cascading to its embedding.
func (o *Observations) Delete(ctx context.Context, id string) error {
	res, err := o.db.ExecContext(ctx, `DELETE FROM observations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("repository: delete observation %q: %w", id, err)
	}
	return checkRowsAffected(res, "delete observation", id)
}

// CountByEntity returns how many observations entityID has.
func (o *Observations) CountByEntity(ctx context.Context, entityID string) (int, error) {
	var n int
	err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations WHERE entity_id = ?`, entityID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("repository: count observations for %q: %w", entityID, err)
	}
	return n, nil
}

// Count returns the total number of observations in the store.
func (o *Observations) Count(ctx context.Context) (int, error) {
	var n int
	if err := o.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("repository: count observations: %w", err)
	}
	return n, nil
}

func scanObservation(row rowScanner) (Observation, error) {
	var obs Observation
	var created string
	if err := row.Scan(&obs.ID, &obs.EntityID, &obs.Content, &obs.Source, &created); err != nil {
		return Observation{}, err
	}
	var err error
	if obs.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return Observation{}, fmt.Errorf("parse created_at: %w", err)
	}
	return obs, nil
}
