// Package embedder turns text into fixed-dimension unit vectors for
// semantic search and write-path dedup.
//
// The only production implementation is [OllamaProvider], a thin HTTP
// client against a local Ollama daemon hardcoded to the all-minilm model
// (384 dimensions). The [Provider] interface exists so the engine and
// semantic index depend on neither Ollama nor HTTP directly; tests use
// [github.com/karrolcia/hippocampus-go/pkg/embedder/embeddertest] instead.
package embedder

import "context"

// Provider embeds text into unit-length float32 vectors.
type Provider interface {
	// Embed returns the unit vector for a single piece of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds multiple texts in one round trip where the backend
	// supports it. The returned slice has the same length and order as
	// texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions reports the fixed vector length this provider produces.
	Dimensions() int

	// ModelID identifies the embedding model backing this provider. The
	// semantic index does not store it with the vectors.
	ModelID() string
}
