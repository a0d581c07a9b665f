package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
)

// semanticFallbackFloor is the minimum similarity a semantic-search hit must
// clear for context assembly to resolve a topic to that observation's
// owning entity.
const semanticFallbackFloor = 0.2

// semanticFallbackTopK bounds how many candidates the semantic fallback
// considers when resolving a topic.
const semanticFallbackTopK = 5

// DefaultContextDepth is the hop count a tool-dispatch layer should apply
// when a caller omits depth entirely. maxContextDepth bounds the range
// Context will honor.
const (
	DefaultContextDepth = 1
	maxContextDepth     = 3
)

// ContextInput is an entity context-assembly request. Depth is the final
// resolved hop count: since 0 is a valid depth (direct observations and
// relationships only, no BFS expansion), applying the documented default
// of 1 when a caller omits it is the tool-dispatch layer's job, not this
// type's — Depth here is clamped to [0,3] but never defaulted.
type ContextInput struct {
	Topic string
	Depth int
}

// RelatedEntity is a BFS-reached neighbor with its own observations.
type RelatedEntity struct {
	ID           string
	Name         string
	Type         string
	Depth        int
	Observations []repository.Observation
}

// ContextResult is the outcome of a [Engine.Context] call.
type ContextResult struct {
	Success        bool
	EntityID       string
	EntityName     string
	EntityType     string
	Observations   []repository.Observation
	Relationships  []repository.Relationship
	RelatedEntities []RelatedEntity
	Message        string
}

// Context resolves topic to an entity — exact name, then case-insensitive
// substring, then semantic fallback — and assembles that entity's
// observations, direct relationships, and BFS-expanded neighbors out to
// depth hops, each with their own observations.
func (e *Engine) Context(ctx context.Context, in ContextInput) (ContextResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpContext, outcome, time.Since(start).Seconds())
	}()

	depth := in.Depth
	if depth < 0 {
		depth = 0
	}
	if depth > maxContextDepth {
		depth = maxContextDepth
	}

	ent, err := e.resolveEntity(ctx, in.Topic)
	if err != nil {
		outcome = observe.OutcomeError
		return ContextResult{}, fmt.Errorf("engine: context: resolve entity: %w", err)
	}
	if ent == nil {
		outcome = observe.OutcomeNotFound
		return ContextResult{
			Success: false,
			Message: fmt.Sprintf("No entity found for topic %q.", in.Topic),
		}, nil
	}

	observations, err := e.observations.ListByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return ContextResult{}, fmt.Errorf("engine: context: list observations: %w", err)
	}
	reverseObservations(observations)

	relationships, err := e.relationships.ListByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return ContextResult{}, fmt.Errorf("engine: context: list relationships: %w", err)
	}

	neighbors, err := e.relationships.BFS(ctx, ent.ID, depth)
	if err != nil {
		outcome = observe.OutcomeError
		return ContextResult{}, fmt.Errorf("engine: context: bfs: %w", err)
	}

	related := make([]RelatedEntity, 0, len(neighbors))
	for _, n := range neighbors {
		obs, err := e.observations.ListByEntity(ctx, n.ID)
		if err != nil {
			outcome = observe.OutcomeError
			return ContextResult{}, fmt.Errorf("engine: context: list neighbor observations: %w", err)
		}
		reverseObservations(obs)
		related = append(related, RelatedEntity{
			ID:           n.ID,
			Name:         n.Name,
			Type:         n.Type,
			Depth:        n.Depth,
			Observations: obs,
		})
	}

	return ContextResult{
		Success:         true,
		EntityID:        ent.ID,
		EntityName:      ent.Name,
		EntityType:      ent.Type,
		Observations:    observations,
		Relationships:   relationships,
		RelatedEntities: related,
	}, nil
}

// resolveEntity implements the three-step entity-resolution order: exact
// name, case-insensitive substring, semantic fallback. Returns nil, nil if
// no step resolves a match.
func (e *Engine) resolveEntity(ctx context.Context, topic string) (*repository.Entity, error) {
	if ent, err := e.entities.GetByName(ctx, topic); err == nil {
		return &ent, nil
	}

	substring, err := e.entities.SearchByNameSubstring(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("search by name substring: %w", err)
	}
	if len(substring) > 0 {
		return &substring[0], nil
	}

	vec, err := e.embed.Embed(ctx, topic)
	if err != nil {
		// Embedder unavailable: resolution falls back to "not found" rather
		// than failing the whole call.
		return nil, nil
	}
	matches, err := e.index.Search(ctx, vec, "", semanticFallbackTopK)
	if err != nil {
		return nil, fmt.Errorf("semantic fallback search: %w", err)
	}
	if len(matches) == 0 || matches[0].Score < semanticFallbackFloor {
		return nil, nil
	}

	ent, err := e.entities.GetByID(ctx, matches[0].EntityID)
	if err != nil {
		return nil, fmt.Errorf("get entity for semantic fallback match: %w", err)
	}
	return &ent, nil
}

// reverseObservations flips a slice in place, turning [Observations.ListByEntity]'s
// oldest-first order into newest-first.
func reverseObservations(obs []repository.Observation) {
	for i, j := 0, len(obs)-1; i < j; i, j = i+1, j-1 {
		obs[i], obs[j] = obs[j], obs[i]
	}
}
