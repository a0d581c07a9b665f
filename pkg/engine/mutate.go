package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/pkg/repository"
)

// UpdateInput replaces a single observation's content by inserting a new
// observation (with a new id) and then deleting the old one, preserving its
// source.
type UpdateInput struct {
	Entity      string
	OldContent  string
	NewContent  string
}

// UpdateResult is the outcome of a [Engine.Update] call.
type UpdateResult struct {
	Success       bool
	ObservationID string
	Message       string
}

// Update finds entity and the observation whose content exactly equals
// OldContent (linear scan), then creates a new observation and embedding
// with NewContent preserving the original's source, deletes the old
// observation and embedding, and touches the entity. Fails softly if the
// entity or exact-match observation is missing.
func (e *Engine) Update(ctx context.Context, in UpdateInput) (UpdateResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpUpdate, outcome, time.Since(start).Seconds())
	}()

	ent, err := e.entities.GetByName(ctx, in.Entity)
	if err != nil {
		outcome = observe.OutcomeNotFound
		return UpdateResult{Success: false, Message: fmt.Sprintf("No entity named %q.", in.Entity)}, nil
	}

	existing, err := e.observations.ListByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return UpdateResult{}, fmt.Errorf("engine: update: list observations: %w", err)
	}

	var target *repository.Observation
	for i := range existing {
		if existing[i].Content == in.OldContent {
			target = &existing[i]
			break
		}
	}
	if target == nil {
		outcome = observe.OutcomeNotFound
		return UpdateResult{Success: false, Message: "No observation with that exact content was found."}, nil
	}

	content, err := validateContent(in.NewContent)
	if err != nil {
		outcome = observe.OutcomeInvalid
		return UpdateResult{Success: false, Message: err.Error()}, nil
	}

	vec, err := e.embed.Embed(ctx, content)
	if err != nil {
		outcome = observe.OutcomeError
		return UpdateResult{}, fmt.Errorf("engine: update: embed: %w", err)
	}

	obs, err := e.createObservation(ctx, ent.ID, content, target.Source, vec)
	if err != nil {
		outcome = observe.OutcomeError
		return UpdateResult{}, fmt.Errorf("engine: update: %w", err)
	}

	if err := e.index.Delete(ctx, target.ID); err != nil {
		outcome = observe.OutcomeError
		return UpdateResult{}, fmt.Errorf("engine: update: delete old embedding: %w", err)
	}
	if err := e.observations.Delete(ctx, target.ID); err != nil {
		outcome = observe.OutcomeError
		return UpdateResult{}, fmt.Errorf("engine: update: delete old observation: %w", err)
	}

	return UpdateResult{Success: true, ObservationID: obs.ID}, nil
}

// MergeInput combines several observations into one new observation.
type MergeInput struct {
	ObservationIDs []string
	Content        string
}

// MergeResult is the outcome of a [Engine.Merge] call.
type MergeResult struct {
	Success           bool
	NewObservationID  string
	MergedCount       int
	EntityName        string
	Message           string
}

// Merge fetches every observation in ObservationIDs, rejects the call if
// any id is missing or if they span more than one entity, preserves the
// first non-empty source among the originals, embeds Content, creates the
// merged observation and embedding, then deletes every original
// observation and embedding. Validation runs entirely before any mutation,
// so a rejected merge leaves the store untouched.
func (e *Engine) Merge(ctx context.Context, in MergeInput) (MergeResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpMerge, outcome, time.Since(start).Seconds())
	}()

	originals, err := e.observations.FetchByIDs(ctx, in.ObservationIDs)
	if err != nil {
		outcome = observe.OutcomeError
		return MergeResult{}, fmt.Errorf("engine: merge: fetch observations: %w", err)
	}
	if len(originals) != len(in.ObservationIDs) {
		outcome = observe.OutcomeError
		return MergeResult{}, ErrObservationMissing
	}

	entityID := originals[0].EntityID
	var source string
	for _, o := range originals {
		if o.EntityID != entityID {
			outcome = observe.OutcomeError
			return MergeResult{}, ErrCrossEntityMerge
		}
		if source == "" && o.Source != "" {
			source = o.Source
		}
	}

	content, err := validateContent(in.Content)
	if err != nil {
		outcome = observe.OutcomeInvalid
		return MergeResult{Success: false, Message: err.Error()}, nil
	}

	ent, err := e.entities.GetByID(ctx, entityID)
	if err != nil {
		outcome = observe.OutcomeError
		return MergeResult{}, fmt.Errorf("engine: merge: get entity: %w", err)
	}

	vec, err := e.embed.Embed(ctx, content)
	if err != nil {
		outcome = observe.OutcomeError
		return MergeResult{}, fmt.Errorf("engine: merge: embed: %w", err)
	}

	merged, err := e.createObservation(ctx, entityID, content, source, vec)
	if err != nil {
		outcome = observe.OutcomeError
		return MergeResult{}, fmt.Errorf("engine: merge: %w", err)
	}

	for _, o := range originals {
		if err := e.index.Delete(ctx, o.ID); err != nil {
			outcome = observe.OutcomeError
			return MergeResult{}, fmt.Errorf("engine: merge: delete original embedding %q: %w", o.ID, err)
		}
		if err := e.observations.Delete(ctx, o.ID); err != nil {
			outcome = observe.OutcomeError
			return MergeResult{}, fmt.Errorf("engine: merge: delete original observation %q: %w", o.ID, err)
		}
	}

	return MergeResult{
		Success:          true,
		NewObservationID: merged.ID,
		MergedCount:      len(originals),
		EntityName:       ent.Name,
	}, nil
}

// ForgetInput identifies a single observation or an entire entity to
// remove. Exactly one of Entity or ObservationID must be set.
type ForgetInput struct {
	Entity        string
	ObservationID string
}

// DeletedCounts reports how many rows of each kind a [Engine.Forget] call
// removed.
type DeletedCounts struct {
	Observations  int64
	Embeddings    int64
	Relationships int64
	Entities      int64
}

// ForgetResult is the outcome of a [Engine.Forget] call.
type ForgetResult struct {
	Success bool
	Deleted DeletedCounts
	Message string
}

// Forget removes a single observation by id, or an entire entity and
// everything attached to it by name. Exactly one of Entity or
// ObservationID is required; providing both or neither is a precondition
// violation.
func (e *Engine) Forget(ctx context.Context, in ForgetInput) (ForgetResult, error) {
	start := time.Now()
	outcome := observe.OutcomeOK
	defer func() {
		e.metrics.RecordOperation(ctx, observe.OpForget, outcome, time.Since(start).Seconds())
	}()

	hasEntity := in.Entity != ""
	hasObservation := in.ObservationID != ""
	if !hasEntity && !hasObservation {
		outcome = observe.OutcomeError
		return ForgetResult{}, ErrNoForgetTarget
	}
	if hasEntity && hasObservation {
		outcome = observe.OutcomeError
		return ForgetResult{}, ErrAmbiguousForgetTarget
	}

	if hasObservation {
		if _, err := e.observations.Get(ctx, in.ObservationID); err != nil {
			outcome = observe.OutcomeNotFound
			return ForgetResult{Success: false, Message: "No observation with that id was found."}, nil
		}
		if err := e.index.Delete(ctx, in.ObservationID); err != nil {
			outcome = observe.OutcomeError
			return ForgetResult{}, fmt.Errorf("engine: forget: delete embedding: %w", err)
		}
		if err := e.observations.Delete(ctx, in.ObservationID); err != nil {
			outcome = observe.OutcomeError
			return ForgetResult{}, fmt.Errorf("engine: forget: delete observation: %w", err)
		}
		return ForgetResult{
			Success: true,
			Deleted: DeletedCounts{Observations: 1, Embeddings: 1},
		}, nil
	}

	ent, err := e.entities.GetByName(ctx, in.Entity)
	if err != nil {
		outcome = observe.OutcomeNotFound
		return ForgetResult{Success: false, Message: fmt.Sprintf("No entity named %q.", in.Entity)}, nil
	}

	obsList, err := e.observations.ListByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return ForgetResult{}, fmt.Errorf("engine: forget: list observations: %w", err)
	}
	for _, o := range obsList {
		if err := e.index.Delete(ctx, o.ID); err != nil {
			outcome = observe.OutcomeError
			return ForgetResult{}, fmt.Errorf("engine: forget: delete embedding %q: %w", o.ID, err)
		}
	}

	obsDeleted, err := e.observations.DeleteByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return ForgetResult{}, fmt.Errorf("engine: forget: delete observations: %w", err)
	}
	relDeleted, err := e.relationships.DeleteByEntity(ctx, ent.ID)
	if err != nil {
		outcome = observe.OutcomeError
		return ForgetResult{}, fmt.Errorf("engine: forget: delete relationships: %w", err)
	}
	if err := e.entities.Delete(ctx, ent.ID); err != nil {
		outcome = observe.OutcomeError
		return ForgetResult{}, fmt.Errorf("engine: forget: delete entity: %w", err)
	}

	return ForgetResult{
		Success: true,
		Deleted: DeletedCounts{
			Observations:  obsDeleted,
			Embeddings:    int64(len(obsList)),
			Relationships: relDeleted,
			Entities:      1,
		},
	}, nil
}
