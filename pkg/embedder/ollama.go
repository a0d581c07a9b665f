package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/karrolcia/hippocampus-go/internal/observe"
	"github.com/karrolcia/hippocampus-go/internal/resilience"
)

// modelName is the only embedding model this provider ever loads. Spec calls
// for a fixed 384-dimension vector space; all-minilm is the smallest Ollama
// embedding model that produces one, and pinning it avoids having to detect
// and migrate dimensionality across model changes.
const modelName = "all-minilm"

// modelDimensions is all-minilm's known output width.
const modelDimensions = 384

const defaultTimeout = 30 * time.Second

// OllamaProvider embeds text by calling a local Ollama daemon's /api/embed
// endpoint. The model is pulled lazily on first use and cached by Ollama
// itself under its configured model directory; callers do not need to
// pre-pull it.
type OllamaProvider struct {
	client  *http.Client
	breaker *resilience.CircuitBreaker
	metrics *observe.Metrics

	mu      sync.RWMutex
	baseURL string

	ensureOnce sync.Once
	ensureErr  error
}

// OllamaOption configures optional [OllamaProvider] dependencies.
type OllamaOption func(*OllamaProvider)

// WithOllamaMetrics attaches an [observe.Metrics] instance that embed calls
// report their duration and failure outcome to. If omitted,
// [observe.DefaultMetrics] is used.
func WithOllamaMetrics(m *observe.Metrics) OllamaOption {
	return func(p *OllamaProvider) { p.metrics = m }
}

// NewOllamaProvider returns a provider talking to the Ollama daemon at
// baseURL (e.g. "http://localhost:11434"). Embed calls are guarded by a
// circuit breaker so a daemon that has gone unresponsive fails fast instead
// of letting every write and recall hang on the HTTP timeout.
func NewOllamaProvider(baseURL string, opts ...OllamaOption) *OllamaProvider {
	p := &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "ollama-embedder"}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// SetEndpoint repoints the provider at a new Ollama base URL. Safe to call
// concurrently with in-flight Embed/EmbedBatch calls; it takes effect on the
// next request. Used to hot-reload the endpoint from a config file change
// without restarting the process.
func (p *OllamaProvider) SetEndpoint(baseURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseURL = baseURL
}

func (p *OllamaProvider) endpoint() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseURL
}

// Dimensions returns 384, all-minilm's fixed output width.
func (p *OllamaProvider) Dimensions() int { return modelDimensions }

// ModelID returns "all-minilm".
func (p *OllamaProvider) ModelID() string { return modelName }

// EnsureModel pulls all-minilm into the local Ollama model cache if it is
// not already present. It runs at most once per process; later calls reuse
// the first call's outcome.
func (p *OllamaProvider) EnsureModel(ctx context.Context) error {
	p.ensureOnce.Do(func() {
		p.ensureErr = p.pull(ctx)
	})
	return p.ensureErr
}

func (p *OllamaProvider) pull(ctx context.Context) error {
	body, err := json.Marshal(map[string]any{"model": modelName, "stream": false})
	if err != nil {
		return fmt.Errorf("embedder: ollama: marshal pull request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint()+"/api/pull", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("embedder: ollama: build pull request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedder: ollama: pull %s: %w", modelName, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedder: ollama: pull %s: status %d", modelName, resp.StatusCode)
	}
	return nil
}

// Embed returns the unit-length embedding vector for text.
func (p *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.EnsureModel(ctx); err != nil {
		return nil, err
	}
	vecs, err := p.callEmbed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds every text in a single request to Ollama's batch-capable
// /api/embed endpoint.
func (p *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := p.EnsureModel(ctx); err != nil {
		return nil, err
	}
	return p.callEmbed(ctx, texts)
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (p *OllamaProvider) callEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embedRequest{Model: modelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama: marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint()+"/api/embed", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("embedder: ollama: build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	var out embedResponse
	err = p.breaker.Execute(func() error {
		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("embedder: ollama: embed request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("embedder: ollama: embed request: status %d: %s", resp.StatusCode, string(body))
		}

		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("embedder: ollama: decode embed response: %w", err)
		}
		return nil
	})
	p.metrics.RecordEmbedderCall(ctx, time.Since(start).Seconds(), err != nil)
	if err != nil {
		if err == resilience.ErrCircuitOpen {
			return nil, fmt.Errorf("embedder: ollama: %w", err)
		}
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedder: ollama: expected %d embeddings, got %d", len(texts), len(out.Embeddings))
	}

	for i, vec := range out.Embeddings {
		if len(vec) != modelDimensions {
			return nil, fmt.Errorf("embedder: ollama: embedding %d has %d dimensions, want %d", i, len(vec), modelDimensions)
		}
		out.Embeddings[i] = normalize(vec)
	}
	return out.Embeddings, nil
}

// normalize defensively L2-normalizes vec in place and returns it. Ollama's
// embeddings are already near unit length, but downstream cosine-similarity
// comparisons assume it exactly, so it is enforced here rather than trusted.
func normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
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
