package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/karrolcia/hippocampus-go/pkg/engine"
)

func TestUpdateReplacesExactMatch(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	remembered, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice", Source: "chat"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Update(ctx, engine.UpdateInput{Entity: "Alice", OldContent: "Alice likes tea", NewContent: "Alice likes coffee"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ObservationID == remembered.ObservationID {
		t.Fatal("expected a new observation id after update")
	}

	ctxRes, err := e.Context(ctx, engine.ContextInput{Topic: "Alice"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(ctxRes.Observations) != 1 || ctxRes.Observations[0].Content != "Alice likes coffee" {
		t.Fatalf("expected the observation to be replaced, got %+v", ctxRes.Observations)
	}
}

func TestUpdateFailsSoftlyWhenEntityMissing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Update(ctx, engine.UpdateInput{Entity: "Nobody", OldContent: "x", NewContent: "y"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false for a missing entity")
	}
}

func TestUpdateFailsSoftlyWhenContentMissing(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Update(ctx, engine.UpdateInput{Entity: "Alice", OldContent: "Alice likes coffee", NewContent: "irrelevant"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false when no observation matches OldContent exactly")
	}
}

func TestMergeCombinesObservations(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Remember(ctx, engine.RememberInput{Content: "likes tea", Entity: "Alice", Source: "chat"})
	if err != nil {
		t.Fatalf("Remember a: %v", err)
	}
	b, err := e.Remember(ctx, engine.RememberInput{Content: "dislikes coffee", Entity: "Alice"})
	if err != nil {
		t.Fatalf("Remember b: %v", err)
	}

	res, err := e.Merge(ctx, engine.MergeInput{
		ObservationIDs: []string{a.ObservationID, b.ObservationID},
		Content:        "likes tea, dislikes coffee",
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.Success || res.MergedCount != 2 || res.EntityName != "Alice" {
		t.Fatalf("unexpected result: %+v", res)
	}

	ctxRes, err := e.Context(ctx, engine.ContextInput{Topic: "Alice"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(ctxRes.Observations) != 1 {
		t.Fatalf("expected exactly one merged observation, got %d", len(ctxRes.Observations))
	}
	if ctxRes.Observations[0].Source != "chat" {
		t.Fatalf("expected merge to preserve the first non-empty source, got %q", ctxRes.Observations[0].Source)
	}
}

func TestMergeRejectsCrossEntityObservations(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Remember(ctx, engine.RememberInput{Content: "fact a", Entity: "Alice"})
	if err != nil {
		t.Fatalf("Remember a: %v", err)
	}
	b, err := e.Remember(ctx, engine.RememberInput{Content: "fact b", Entity: "Bob"})
	if err != nil {
		t.Fatalf("Remember b: %v", err)
	}

	_, err = e.Merge(ctx, engine.MergeInput{ObservationIDs: []string{a.ObservationID, b.ObservationID}, Content: "combined"})
	if !errors.Is(err, engine.ErrCrossEntityMerge) {
		t.Fatalf("expected ErrCrossEntityMerge, got %v", err)
	}
}

func TestMergeRejectsMissingObservation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	a, err := e.Remember(ctx, engine.RememberInput{Content: "fact a", Entity: "Alice"})
	if err != nil {
		t.Fatalf("Remember a: %v", err)
	}

	_, err = e.Merge(ctx, engine.MergeInput{ObservationIDs: []string{a.ObservationID, "does-not-exist"}, Content: "combined"})
	if !errors.Is(err, engine.ErrObservationMissing) {
		t.Fatalf("expected ErrObservationMissing, got %v", err)
	}
}

func TestForgetByObservationID(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	remembered, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Forget(ctx, engine.ForgetInput{ObservationID: remembered.ObservationID})
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !res.Success || res.Deleted.Observations != 1 || res.Deleted.Embeddings != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestForgetByEntity(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "fact one", Entity: "Alice"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := e.Remember(ctx, engine.RememberInput{Content: "fact two", Entity: "Alice"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Forget(ctx, engine.ForgetInput{Entity: "Alice"})
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if !res.Success || res.Deleted.Observations != 2 || res.Deleted.Entities != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	ctxRes, err := e.Context(ctx, engine.ContextInput{Topic: "Alice"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if ctxRes.Success {
		t.Fatal("expected the entity to be gone after Forget")
	}
}

func TestForgetRejectsAmbiguousTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Forget(ctx, engine.ForgetInput{Entity: "Alice", ObservationID: "some-id"})
	if !errors.Is(err, engine.ErrAmbiguousForgetTarget) {
		t.Fatalf("expected ErrAmbiguousForgetTarget, got %v", err)
	}
}

func TestForgetRejectsEmptyTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Forget(ctx, engine.ForgetInput{})
	if !errors.Is(err, engine.ErrNoForgetTarget) {
		t.Fatalf("expected ErrNoForgetTarget, got %v", err)
	}
}
