package engine_test

import (
	"context"
	"testing"

	"github.com/karrolcia/hippocampus-go/pkg/engine"
)

// fakeProvider maps specific input strings to caller-supplied vectors,
// letting a test control similarity precisely instead of relying on
// [embeddertest.Provider]'s hash-derived (effectively uncorrelated)
// vectors for distinct inputs.
type fakeProvider struct {
	vectors  map[string][]float32
	dim      int
	embedErr error
}

func newFakeProvider(dim int) *fakeProvider {
	return &fakeProvider{vectors: make(map[string][]float32), dim: dim}
}

func (p *fakeProvider) set(text string, vec []float32) { p.vectors[text] = vec }

func (p *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	if v, ok := p.vectors[text]; ok {
		return v, nil
	}
	v := make([]float32, p.dim)
	v[0] = 1
	return v, nil
}

func (p *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (p *fakeProvider) Dimensions() int { return p.dim }
func (p *fakeProvider) ModelID() string { return "fake" }

func TestRememberInsertsNewObservation(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if !res.Success || res.Deduplicated || res.Replaced {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ObservationID == "" {
		t.Fatal("expected an observation id")
	}
}

func TestRememberDefaultsEntityToGeneral(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Remember(ctx, engine.RememberInput{Content: "a fact with no entity"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRememberRejectsEmptyContent(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	res, err := e.Remember(ctx, engine.RememberInput{Content: "   \x01\x02  "})
	if err != nil {
		t.Fatalf("Remember returned error for invalid input, want soft failure: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false for empty-after-sanitization content")
	}
}

func TestRememberRejectsOversizedEntityName(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	longName := make([]byte, 201)
	for i := range longName {
		longName[i] = 'a'
	}

	res, err := e.Remember(ctx, engine.RememberInput{Content: "fact", Entity: string(longName)})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if res.Success {
		t.Fatal("expected Success=false for oversized entity name")
	}
}

func TestRememberSkipsExactDuplicate(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice"})
	if err != nil || !first.Success {
		t.Fatalf("first Remember: %+v, %v", first, err)
	}

	second, err := e.Remember(ctx, engine.RememberInput{Content: "Alice likes tea", Entity: "Alice"})
	if err != nil {
		t.Fatalf("second Remember: %v", err)
	}
	if !second.Deduplicated {
		t.Fatalf("expected deduplication, got %+v", second)
	}
	if second.ObservationID != first.ObservationID {
		t.Fatalf("deduplicated result should reference the original observation id")
	}
}

func TestRememberReplacesShorterNearDuplicate(t *testing.T) {
	db := newTestDB(t)
	prov := newFakeProvider(4)
	e := engine.New(db, prov)
	ctx := context.Background()

	shared := []float32{0, 1, 0, 0}
	prov.set("short", shared)
	prov.set("a much longer and more detailed version of the fact", shared)

	first, err := e.Remember(ctx, engine.RememberInput{Content: "short", Entity: "Bob"})
	if err != nil || !first.Success {
		t.Fatalf("first Remember: %+v, %v", first, err)
	}

	second, err := e.Remember(ctx, engine.RememberInput{
		Content: "a much longer and more detailed version of the fact",
		Entity:  "Bob",
	})
	if err != nil {
		t.Fatalf("second Remember: %v", err)
	}
	if !second.Replaced {
		t.Fatalf("expected replacement, got %+v", second)
	}
	if second.ReplacedObservation != "short" {
		t.Fatalf("ReplacedObservation = %q, want %q", second.ReplacedObservation, "short")
	}
}

func TestRememberAutoDetectsRelationship(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.Remember(ctx, engine.RememberInput{Content: "works at Acme Corp", Entity: "Bob"}); err != nil {
		t.Fatalf("seed Remember: %v", err)
	}

	res, err := e.Remember(ctx, engine.RememberInput{Content: "Bob often talks about Acme Corp projects", Entity: "Carol"})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	found := false
	for _, name := range res.LinkedEntities {
		if name == "Bob" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Bob to be auto-linked, got %+v", res.LinkedEntities)
	}
}
