package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
)

// dedupThreshold is the minimum cosine similarity against an existing
// observation for [Engine.Remember] to treat new content as a near-duplicate
// rather than a distinct fact.
const dedupThreshold = 0.85

// maxEntityNameLength bounds the optional entity name on a Remember call.
const maxEntityNameLength = 200

// defaultEntityName is used when a Remember call omits an entity.
const defaultEntityName = "general"

// maxAutoDetectCandidates caps how many recently-touched entities are
// scanned for relationship auto-detection on each Remember call.
const maxAutoDetectCandidates = 500

// minCandidateNameLength excludes short, high-false-positive-rate entity
// names (and "general" itself) from relationship auto-detection.
const minCandidateNameLength = 3

// RememberInput is the write-path request.
type RememberInput struct {
	Content string
	Entity  string
	Type    string
	Source  string
}

// RememberResult is the outcome of a [Engine.Remember] call.
type RememberResult struct {
	Success             bool
	ObservationID       string
	Deduplicated        bool
	Replaced            bool
	ReplacedObservation string
	LinkedEntities      []string
	Message             string
}

// Remember stores a new fact, deduplicating against the owning entity's
// existing observations by cosine similarity and auto-detecting
// relationships to other entities mentioned by name in the content.
//
// A near-duplicate (similarity ≥ [dedupThreshold]) whose existing content is
// at least as long as the new content is skipped (Deduplicated=true). A
// near-duplicate with shorter existing content is superseded: the old
// observation and embedding are deleted and a new one created in their
// place (Replaced=true).
func (e *Engine) Remember(ctx context.Context, in RememberInput) (RememberResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpRemember, outcome, time.Since(start).Seconds())
	}()

	content, err := validateContent(in.Content)
	if err != nil {
		outcome = observe.OutcomeInvalid
		return RememberResult{Success: false, Message: err.Error()}, nil
	}

	entityName := strings.TrimSpace(in.Entity)
	if entityName == "" {
		entityName = defaultEntityName
	}
	if len(entityName) > maxEntityNameLength {
		outcome = observe.OutcomeInvalid
		return RememberResult{Success: false, Message: "entity name exceeds 200 characters"}, nil
	}

	ent, err := e.entities.FindOrCreate(ctx, entityName, in.Type)
	if err != nil {
		outcome = observe.OutcomeError
		return RememberResult{}, fmt.Errorf("engine: remember: %w", err)
	}

	vec, err := e.embed.Embed(ctx, content)
	if err != nil {
		outcome = observe.OutcomeError
		return RememberResult{}, fmt.Errorf("engine: remember: embed: %w", err)
	}

	matches, err := e.index.Search(ctx, vec, ent.ID, 1)
	if err != nil {
		outcome = observe.OutcomeError
		return RememberResult{}, fmt.Errorf("engine: remember: search existing embeddings: %w", err)
	}

	if len(matches) > 0 && matches[0].Score >= dedupThreshold {
		best := matches[0]
		if len(best.Text) >= len(content) {
			e.metrics.RecordDedupDecision(ctx, observe.DecisionSkipped)
			return RememberResult{
				Success:       true,
				Deduplicated:  true,
				ObservationID: best.ObservationID,
				Message:       "content deduplicated against an existing observation",
			}, nil
		}

		if err := e.index.Delete(ctx, best.ObservationID); err != nil {
			outcome = observe.OutcomeError
			return RememberResult{}, fmt.Errorf("engine: remember: delete superseded embedding: %w", err)
		}
		if err := e.observations.Delete(ctx, best.ObservationID); err != nil {
			outcome = observe.OutcomeError
			return RememberResult{}, fmt.Errorf("engine: remember: delete superseded observation: %w", err)
		}

		obs, err := e.createObservation(ctx, ent.ID, content, in.Source, vec)
		if err != nil {
			outcome = observe.OutcomeError
			return RememberResult{}, err
		}

		e.metrics.RecordDedupDecision(ctx, observe.DecisionReplaced)
		linked, err := e.autoDetectRelationships(ctx, ent, content)
		if err != nil {
			outcome = observe.OutcomeError
			return RememberResult{}, fmt.Errorf("engine: remember: relationship auto-detection: %w", err)
		}

		return RememberResult{
			Success:             true,
			Replaced:            true,
			ReplacedObservation: best.Text,
			ObservationID:       obs.ID,
			LinkedEntities:      linked,
		}, nil
	}

	obs, err := e.createObservation(ctx, ent.ID, content, in.Source, vec)
	if err != nil {
		outcome = observe.OutcomeError
		return RememberResult{}, err
	}
	e.metrics.RecordDedupDecision(ctx, observe.DecisionInserted)

	linked, err := e.autoDetectRelationships(ctx, ent, content)
	if err != nil {
		outcome = observe.OutcomeError
		return RememberResult{}, fmt.Errorf("engine: remember: relationship auto-detection: %w", err)
	}

	return RememberResult{
		Success:        true,
		ObservationID:  obs.ID,
		LinkedEntities: linked,
	}, nil
}

// createObservation inserts obs and its embedding, and touches the owning
// entity so recency ordering reflects the write.
func (e *Engine) createObservation(ctx context.Context, entityID, content, source string, vec []float32) (repository.Observation, error) {
	obs, err := e.observations.Create(ctx, entityID, content, source)
	if err != nil {
		return repository.Observation{}, fmt.Errorf("engine: create observation: %w", err)
	}
	if err := e.index.Put(ctx, entityID, obs.ID, content, vec); err != nil {
		return repository.Observation{}, fmt.Errorf("engine: store embedding: %w", err)
	}
	if err := e.entities.Touch(ctx, entityID); err != nil {
		return repository.Observation{}, fmt.Errorf("engine: touch entity: %w", err)
	}
	return obs, nil
}

// autoDetectRelationships scans up to [maxAutoDetectCandidates] recently
// touched entities for mentions of their name in content, linking source to
// any candidate it finds that isn't already related. It returns the names
// of entities newly linked.
func (e *Engine) autoDetectRelationships(ctx context.Context, source repository.Entity, content string) ([]string, error) {
	candidates, err := e.entities.Find(ctx, repository.EntityFilter{Limit: maxAutoDetectCandidates})
	if err != nil {
		return nil, fmt.Errorf("list candidate entities: %w", err)
	}

	var linked []string
	for _, candidate := range candidates {
		if candidate.ID == source.ID {
			continue
		}
		if strings.EqualFold(candidate.Name, defaultEntityName) {
			continue
		}
		if len(candidate.Name) < minCandidateNameLength {
			continue
		}

		re, err := candidateNameRegex(candidate.Name)
		if err != nil {
			continue
		}
		if !re.MatchString(content) {
			continue
		}

		exists, err := e.relationships.ExistsBetween(ctx, source.ID, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("check existing relationship with %q: %w", candidate.Name, err)
		}
		if exists {
			continue
		}

		if _, err := e.relationships.Create(ctx, source.ID, candidate.ID, ""); err != nil {
			return nil, fmt.Errorf("create relationship with %q: %w", candidate.Name, err)
		}
		linked = append(linked, candidate.Name)
	}
	return linked, nil
}

// separatorRun matches the characters treated as interchangeable within an
// entity name when compiling its detection regex: hyphens, underscores, and
// whitespace runs all match each other.
var separatorRun = regexp.MustCompile(`[-_\s]+`)

// candidateNameRegex compiles a case-insensitive, word-boundary-anchored
// regex that matches candidate name's words in sequence, treating any run
// of hyphen/underscore/whitespace between them as equivalent.
func candidateNameRegex(name string) (*regexp.Regexp, error) {
	words := separatorRun.Split(strings.TrimSpace(name), -1)
	escaped := make([]string, len(words))
	for i, w := range words {
		escaped[i] = regexp.QuoteMeta(w)
	}
	pattern := `(?i)\b` + strings.Join(escaped, `[-_\s]+`) + `\b`
	return regexp.Compile(pattern)
}
