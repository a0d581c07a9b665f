package engine_test

import (
	"context"
	"testing"

	"github.com/karrolcia/hippocampus-go/pkg/engine"
)

func TestContextExactNameResolution(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice", Type: "person"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Context(ctx, engine.ContextInput{Topic: "Alice"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if !res.Success || res.EntityName != "Alice" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Observations) != 1 {
		t.Fatalf("expected one observation, got %d", len(res.Observations))
	}
}

func TestContextSubstringResolution(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "fact", Entity: "Alice Smith"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Context(ctx, engine.ContextInput{Topic: "alice"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if !res.Success || res.EntityName != "Alice Smith" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestContextNoMatchReturnsSoftFailure(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Context(ctx, engine.ContextInput{Topic: "nobody"})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if res.Success {
		t.Fatalf("expected Success=false, got %+v", res)
	}
	if res.Message == "" {
		t.Fatal("expected a message explaining the miss")
	}
}

func TestContextIncludesRelationshipsAndNeighbors(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "works at Acme Corp", Entity: "Bob"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := e.Remember(ctx, engine.RememberInput{Content: "Bob is a great colleague at Acme Corp", Entity: "Carol"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Context(ctx, engine.ContextInput{Topic: "Carol", Depth: 1})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(res.Relationships) == 0 {
		t.Fatal("expected at least one direct relationship")
	}
	if len(res.RelatedEntities) == 0 {
		t.Fatal("expected at least one BFS-reached neighbor")
	}
	if res.RelatedEntities[0].Name != "Bob" {
		t.Fatalf("expected Bob as related entity, got %+v", res.RelatedEntities)
	}
	if len(res.RelatedEntities[0].Observations) == 0 {
		t.Fatal("expected the neighbor's own observations to be included")
	}
}

func TestContextDepthZeroExcludesNeighbors(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "works at Acme Corp", Entity: "Bob"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if _, err := e.Remember(ctx, engine.RememberInput{Content: "Bob is a great colleague at Acme Corp", Entity: "Carol"}); err != nil {
		t.Fatalf("Remember: %v", err)
	}

	res, err := e.Context(ctx, engine.ContextInput{Topic: "Carol", Depth: 0})
	if err != nil {
		t.Fatalf("Context: %v", err)
	}
	if len(res.RelatedEntities) != 0 {
		t.Fatalf("expected no related entities at depth 0, got %+v", res.RelatedEntities)
	}
}
