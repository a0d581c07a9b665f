package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
	"github.com/karrolcia/hippocampus-go/pkg/semanticindex"
)

// semanticFloor is the minimum cosine similarity a semantic recall hit must
// clear to be considered signal rather than noise.
const semanticFloor = 0.15

// defaultRecallLimit and maxRecallLimit bound the number of memories a
// recall call returns.
const (
	defaultRecallLimit = 10
	maxRecallLimit     = 50
)

// RecallInput is a retrieval-fusion request.
type RecallInput struct {
	Query string
	Limit int
	Type  string
	Since time.Time
}

// Memory is a single fused recall hit. Similarity is zero for hits found
// only by lexical search.
type Memory struct {
	ObservationID string
	Entity        string
	Type          string
	Content       string
	Source        string
	RememberedAt  time.Time
	Similarity    float32
	HasSimilarity bool
}

// RecallResult is the outcome of a [Engine.Recall] call.
type RecallResult struct {
	Success bool
	Count   int
	Memories []Memory
}

// Recall runs semantic and lexical search concurrently and fuses their
// results: semantic hits first in descending-similarity order, then
// lexical hits not already present, deduplicated by observation id and
// truncated to limit. A semantic search failure (embedder unavailable)
// degrades to lexical-only rather than failing the call.
func (e *Engine) Recall(ctx context.Context, in RecallInput) (RecallResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpRecall, outcome, time.Since(start).Seconds())
	}()

	limit := in.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	if limit > maxRecallLimit {
		limit = maxRecallLimit
	}

	var semanticMatches []semanticindex.Match
	var lexicalRows []repository.ObservationWithEntity

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := e.semanticRecall(gctx, in.Query, in.Type, in.Since)
		if err != nil {
			e.logger.WarnContext(ctx, "recall: semantic search degraded", "error", err)
			return nil
		}
		semanticMatches = matches
		return nil
	})
	g.Go(func() error {
		rows, err := e.observations.LexicalSearch(gctx, repository.LexicalSearchFilter{
			Query: in.Query,
			Limit: maxRecallLimit,
			Type:  in.Type,
			Since: in.Since,
		})
		if err != nil {
			return fmt.Errorf("engine: recall: lexical search: %w", err)
		}
		lexicalRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		outcome = observe.OutcomeError
		return RecallResult{}, err
	}

	seen := make(map[string]bool, len(semanticMatches)+len(lexicalRows))
	var memories []Memory

	for _, m := range semanticMatches {
		if seen[m.ObservationID] {
			continue
		}
		ent, err := e.entities.GetByID(ctx, m.EntityID)
		if err != nil {
			continue
		}
		obs, err := e.observations.Get(ctx, m.ObservationID)
		if err != nil {
			continue
		}
		seen[m.ObservationID] = true
		memories = append(memories, Memory{
			ObservationID: obs.ID,
			Entity:        ent.Name,
			Type:          ent.Type,
			Content:       obs.Content,
			Source:        obs.Source,
			RememberedAt:  obs.CreatedAt,
			Similarity:    m.Score,
			HasSimilarity: true,
		})
	}

	for _, row := range lexicalRows {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		memories = append(memories, Memory{
			ObservationID: row.ID,
			Entity:        row.EntityName,
			Type:          row.EntityType,
			Content:       row.Content,
			Source:        row.Source,
			RememberedAt:  row.CreatedAt,
		})
	}

	if len(memories) > limit {
		memories = memories[:limit]
	}

	return RecallResult{Success: true, Count: len(memories), Memories: memories}, nil
}

// semanticRecall embeds query and ranks stored observations by similarity,
// filtered to the semantic floor and the requested type/since scope.
func (e *Engine) semanticRecall(ctx context.Context, query, entityType string, since time.Time) ([]semanticindex.Match, error) {
	vec, err := e.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := e.index.SearchFiltered(ctx, vec, semanticindex.SearchFilter{Type: entityType, Since: since}, 0)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var out []semanticindex.Match
	for _, m := range matches {
		if m.Score >= semanticFloor {
			out = append(out, m)
		}
	}
	return out, nil
}
