// Package embeddertest provides a deterministic, hash-based [Provider]
// implementation for tests that need stable embeddings without a running
// Ollama daemon.
package embeddertest

import (
	"context"
	"hash/fnv"
	"math"
)

const dimensions = 384

// Provider deterministically derives a unit vector from each input string's
// hash, so the same text always embeds to the same vector and distinct
// texts embed to (with overwhelming probability) distinct vectors.
//
// Exported fields let a test force an error or inspect every call made.
type Provider struct {
	EmbedErr      error
	EmbedBatchErr error
	Calls         []string
}

// New returns a ready-to-use deterministic provider.
func New() *Provider {
	return &Provider{}
}

// Embed returns text's deterministic embedding, or EmbedErr if set.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.Calls = append(p.Calls, text)
	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	return vectorFor(text), nil
}

// EmbedBatch embeds each text via the same deterministic derivation.
func (p *Provider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	p.Calls = append(p.Calls, texts...)
	if p.EmbedBatchErr != nil {
		return nil, p.EmbedBatchErr
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

// Dimensions returns 384, matching the production all-minilm provider.
func (p *Provider) Dimensions() int { return dimensions }

// ModelID returns a fixed test model identifier.
func (p *Provider) ModelID() string { return "embeddertest-fnv384" }

// vectorFor expands text's FNV-1a hash into a 384-dimension unit vector via
// a simple linear-congruential stream seeded from the hash, so the result
// is reproducible across runs and platforms without relying on math/rand's
// global state.
func vectorFor(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dimensions)
	state := seed
	var sumSquares float64
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		v := float32(int32(state>>32)) / float32(math.MaxInt32)
		vec[i] = v
		sumSquares += float64(v) * float64(v)
	}

	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return vec
	}
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec
}
