// Package semanticindex provides nearest-neighbor lookup over observation
// embeddings via an exhaustive in-process cosine-similarity scan.
//
// An approximate nearest-neighbor index (HNSW, IVF, or similar) is out of
// scope: the target corpus size for a single-user memory store is small
// enough that a linear scan over unit vectors, implemented as a dot
// product, is both fast enough and exact. See the module's design notes
// for the reasoning behind not adopting pgvector or a dedicated ANN
// library here.
package semanticindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Match is a single semantic search hit.
type Match struct {
	ObservationID string
	EntityID      string
	Text          string
	Score         float32 // cosine similarity in [-1, 1]
}

// Index stores and searches observation embeddings against the shared
// database handle's embeddings table.
type Index struct {
	db  *sql.DB
	dim int
}

// New wraps db for embedding storage and search, expecting every stored
// vector to have exactly dim float32 components.
func New(db *sql.DB, dim int) *Index {
	return &Index{db: db, dim: dim}
}

// Put stores vec as the embedding for observationID (belonging to
// entityID), replacing any prior embedding for that observation.
func (idx *Index) Put(ctx context.Context, entityID, observationID, text string, vec []float32) error {
	if len(vec) != idx.dim {
		return fmt.Errorf("semanticindex: put: vector has %d dimensions, want %d", len(vec), idx.dim)
	}
	blob := encodeVector(vec)
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO embeddings (id, entity_id, observation_id, vector, text_content, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(observation_id) DO UPDATE SET vector = excluded.vector, text_content = excluded.text_content
	`, uuid.NewString(), entityID, observationID, blob, text, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("semanticindex: put: %w", err)
	}
	return nil
}

// Delete removes the embedding for observationID, if any.
func (idx *Index) Delete(ctx context.Context, observationID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM embeddings WHERE observation_id = ?`, observationID)
	if err != nil {
		return fmt.Errorf("semanticindex: delete: %w", err)
	}
	return nil
}

// Search returns the topK embeddings most similar to query by cosine
// similarity, scanning every stored vector. If entityID is non-empty,
// search is restricted to that entity's observations (used by write-path
// dedup, which only compares against the same entity's existing facts).
func (idx *Index) Search(ctx context.Context, query []float32, entityID string, topK int) ([]Match, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("semanticindex: search: query has %d dimensions, want %d", len(query), idx.dim)
	}

	var rows *sql.Rows
	var err error
	if entityID != "" {
		rows, err = idx.db.QueryContext(ctx,
			`SELECT observation_id, entity_id, text_content, vector FROM embeddings WHERE entity_id = ?`, entityID)
	} else {
		rows, err = idx.db.QueryContext(ctx,
			`SELECT observation_id, entity_id, text_content, vector FROM embeddings`)
	}
	if err != nil {
		return nil, fmt.Errorf("semanticindex: search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ObservationID, &m.EntityID, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("semanticindex: search: scan: %w", err)
		}
		vec, err := decodeVector(blob, idx.dim)
		if err != nil {
			return nil, fmt.Errorf("semanticindex: search: decode stored vector: %w", err)
		}
		m.Score = cosineSimilarity(query, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semanticindex: search: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// SearchFilter narrows a [Index.SearchFiltered] call to entities of a given
// type and/or observations created on or after a given time. An empty Type
// and zero Since mean "no restriction".
type SearchFilter struct {
	Type  string
	Since time.Time
}

// SearchFiltered behaves like [Index.Search] but additionally restricts the
// scan to embeddings whose owning entity matches filter.Type (when set) and
// whose observation was created on or after filter.Since (when set), the
// scoping recall applies before ranking by similarity.
func (idx *Index) SearchFiltered(ctx context.Context, query []float32, filter SearchFilter, topK int) ([]Match, error) {
	if len(query) != idx.dim {
		return nil, fmt.Errorf("semanticindex: search: query has %d dimensions, want %d", len(query), idx.dim)
	}

	clauses := []string{"1=1"}
	var args []any
	if filter.Type != "" {
		clauses = append(clauses, "e.type = ?")
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		clauses = append(clauses, "em.created_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}

	query2 := `
		SELECT em.observation_id, em.entity_id, em.text_content, em.vector
		FROM embeddings em
		JOIN entities e ON e.id = em.entity_id
		WHERE ` + joinClauses(clauses)

	rows, err := idx.db.QueryContext(ctx, query2, args...)
	if err != nil {
		return nil, fmt.Errorf("semanticindex: search filtered: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var blob []byte
		if err := rows.Scan(&m.ObservationID, &m.EntityID, &m.Text, &blob); err != nil {
			return nil, fmt.Errorf("semanticindex: search filtered: scan: %w", err)
		}
		vec, err := decodeVector(blob, idx.dim)
		if err != nil {
			return nil, fmt.Errorf("semanticindex: search filtered: decode stored vector: %w", err)
		}
		m.Score = cosineSimilarity(query, vec)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("semanticindex: search filtered: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += " AND " + c
	}
	return out
}

// StoredVector is a single embedding row as loaded for clustering, carrying
// the raw vector rather than a similarity score.
type StoredVector struct {
	ObservationID string
	EntityID      string
	Text          string
	Vector        []float32
}

// ListVectors returns every stored embedding, optionally scoped to
// entityID, as raw vectors for clustering ([pkg/engine]'s consolidation
// pass, which needs pairwise comparisons rather than a ranked search).
func (idx *Index) ListVectors(ctx context.Context, entityID string) ([]StoredVector, error) {
	var rows *sql.Rows
	var err error
	if entityID != "" {
		rows, err = idx.db.QueryContext(ctx,
			`SELECT observation_id, entity_id, text_content, vector FROM embeddings WHERE entity_id = ?`, entityID)
	} else {
		rows, err = idx.db.QueryContext(ctx,
			`SELECT observation_id, entity_id, text_content, vector FROM embeddings`)
	}
	if err != nil {
		return nil, fmt.Errorf("semanticindex: list vectors: %w", err)
	}
	defer rows.Close()

	var out []StoredVector
	for rows.Next() {
		var sv StoredVector
		var blob []byte
		if err := rows.Scan(&sv.ObservationID, &sv.EntityID, &sv.Text, &blob); err != nil {
			return nil, fmt.Errorf("semanticindex: list vectors: scan: %w", err)
		}
		sv.Vector, err = decodeVector(blob, idx.dim)
		if err != nil {
			return nil, fmt.Errorf("semanticindex: list vectors: decode stored vector: %w", err)
		}
		out = append(out, sv)
	}
	return out, rows.Err()
}

// cosineSimilarity computes the dot product of two unit vectors, which
// equals cosine similarity when both inputs are already unit length (as
// every vector produced by pkg/embedder is).
func cosineSimilarity(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// encodeVector serializes vec as little-endian float32s, the on-disk
// representation spec.md calls for.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector is the inverse of encodeVector, verifying the blob has
// exactly dim float32 components.
func decodeVector(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("expected %d bytes for %d dimensions, got %d", dim*4, dim, len(blob))
	}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
