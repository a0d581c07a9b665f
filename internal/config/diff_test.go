package config_test

import (
	"testing"

	"github.com/karrolcia/hippocampus-go/internal/config"
)

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{WritePerMinute: 20, ReadPerMinute: 60},
		Embedder:  config.EmbedderConfig{Endpoint: "http://localhost:11434"},
	}
	d := config.Diff(cfg, cfg)
	if d.RateLimitChanged {
		t.Error("expected RateLimitChanged=false for identical configs")
	}
	if d.EmbedderEndpointChanged {
		t.Error("expected EmbedderEndpointChanged=false for identical configs")
	}
}

func TestDiffRateLimitChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{RateLimit: config.RateLimitConfig{WritePerMinute: 20, ReadPerMinute: 60}}
	new := &config.Config{RateLimit: config.RateLimitConfig{WritePerMinute: 5, ReadPerMinute: 60}}

	d := config.Diff(old, new)
	if !d.RateLimitChanged {
		t.Error("expected RateLimitChanged=true")
	}
	if d.NewRateLimit.WritePerMinute != 5 {
		t.Errorf("NewRateLimit.WritePerMinute = %d, want 5", d.NewRateLimit.WritePerMinute)
	}
}

func TestDiffEmbedderEndpointChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Embedder: config.EmbedderConfig{Endpoint: "http://localhost:11434"}}
	new := &config.Config{Embedder: config.EmbedderConfig{Endpoint: "http://ollama:11434"}}

	d := config.Diff(old, new)
	if !d.EmbedderEndpointChanged {
		t.Error("expected EmbedderEndpointChanged=true")
	}
	if d.NewEmbedderEndpoint != "http://ollama:11434" {
		t.Errorf("NewEmbedderEndpoint = %q, want override", d.NewEmbedderEndpoint)
	}
}

func TestDiffIgnoresPassphraseAndDBPath(t *testing.T) {
	t.Parallel()
	old := &config.Config{Passphrase: "old-secret", DBPath: "/old.db"}
	new := &config.Config{Passphrase: "new-secret", DBPath: "/new.db"}

	d := config.Diff(old, new)
	if d.RateLimitChanged || d.EmbedderEndpointChanged {
		t.Error("passphrase/db_path changes must not surface as a hot-reloadable diff")
	}
}

func TestDiffMultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		RateLimit: config.RateLimitConfig{WritePerMinute: 20, ReadPerMinute: 60},
		Embedder:  config.EmbedderConfig{Endpoint: "http://localhost:11434"},
	}
	new := &config.Config{
		RateLimit: config.RateLimitConfig{WritePerMinute: 5, ReadPerMinute: 15},
		Embedder:  config.EmbedderConfig{Endpoint: "http://ollama:11434"},
	}

	d := config.Diff(old, new)
	if !d.RateLimitChanged {
		t.Error("expected RateLimitChanged=true")
	}
	if !d.EmbedderEndpointChanged {
		t.Error("expected EmbedderEndpointChanged=true")
	}
}
