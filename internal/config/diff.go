package config

// ConfigDiff describes what changed between two configs reloaded by a
// [Watcher]. Only fields that are safe to apply without a process restart
// are tracked — the passphrase and db_path require reopening the store, so
// they are deliberately excluded; a watcher firing on a passphrase change
// is a configuration error, not a hot-reload.
type ConfigDiff struct {
	RateLimitChanged        bool
	NewRateLimit            RateLimitConfig
	EmbedderEndpointChanged bool
	NewEmbedderEndpoint     string
}

// Diff compares old and new configs and returns what changed among the
// fields safe to hot-reload.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.RateLimit != new.RateLimit {
		d.RateLimitChanged = true
		d.NewRateLimit = new.RateLimit
	}

	if old.Embedder.Endpoint != new.Embedder.Endpoint {
		d.EmbedderEndpointChanged = true
		d.NewEmbedderEndpoint = new.Embedder.Endpoint
	}

	return d
}
