// Package engine implements the memory operations exposed as MCP tools:
// write-path dedup ([Engine.Remember]), retrieval fusion ([Engine.Recall]),
// context assembly ([Engine.Context]), mutation ([Engine.Update],
// [Engine.Merge], [Engine.Forget]), consolidation ([Engine.Consolidate]),
// and export ([Engine.Export]).
//
// Engine composes the lower-level [pkg/repository] CRUD wrappers, the
// [pkg/semanticindex] similarity scan, and an [pkg/embedder.Provider]; it
// owns all dedup thresholds, fusion ordering, and traversal policy that the
// layers beneath it know nothing about.
package engine

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/embedder"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
	"github.com/karrolcia/hippocampus-go/pkg/semanticindex"
)

// Engine wires the repositories, semantic index, and embedder together
// behind the memory operations. The zero value is not usable; construct
// with [New].
type Engine struct {
	entities      *repository.Entities
	observations  *repository.Observations
	relationships *repository.Relationships
	index         *semanticindex.Index
	embed         embedder.Provider
	metrics       *observe.Metrics
	logger        *slog.Logger
}

// Option configures optional Engine dependencies.
type Option func(*Engine)

// WithMetrics attaches an [observe.Metrics] instance. If omitted,
// [observe.DefaultMetrics] is used.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger attaches a structured logger. If omitted, [slog.Default] is used.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New constructs an Engine over db (already migrated, see [pkg/store]) and
// emb, the embedding backend used for write-path dedup, semantic search,
// and consolidation.
func New(db *sql.DB, emb embedder.Provider, opts ...Option) *Engine {
	e := &Engine{
		entities:      repository.NewEntities(db),
		observations:  repository.NewObservations(db),
		relationships: repository.NewRelationships(db),
		index:         semanticindex.New(db, emb.Dimensions()),
		embed:         emb,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// Stats summarizes the store's size, used by operational tooling and not
// exposed as an MCP tool.
type Stats struct {
	EntityCount       int
	ObservationCount  int
	RelationshipCount int
}

// Stats reports entity, observation, and relationship counts.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	entityCount, err := e.entities.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	obsCount, err := e.observations.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	relCount, err := e.relationships.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{EntityCount: entityCount, ObservationCount: obsCount, RelationshipCount: relCount}, nil
}
