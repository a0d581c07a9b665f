package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// envPassphrase is the only source the store passphrase is ever read from.
// It is deliberately never accepted in the YAML side-file so a config file
// checked into version control cannot leak it.
const envPassphrase = "HIPPOCAMPUS_PASSPHRASE"

const (
	envDBPath           = "HIPPOCAMPUS_DB_PATH"
	envHost             = "HIPPOCAMPUS_HOST"
	envPort             = "HIPPOCAMPUS_PORT"
	envEmbedderCacheDir = "HIPPOCAMPUS_EMBEDDER_CACHE_DIR"
	envEmbedderEndpoint = "HIPPOCAMPUS_EMBEDDER_ENDPOINT"
	envRateLimitWrite   = "HIPPOCAMPUS_RATE_LIMIT_WRITE"
	envRateLimitRead    = "HIPPOCAMPUS_RATE_LIMIT_READ"
)

// Load builds a [Config] from the environment, optionally overlaying
// non-secret fields from the YAML file at yamlPath (pass "" to skip it),
// then validates the result.
func Load(yamlPath string) (*Config, error) {
	cfg := &Config{
		DBPath: DefaultDBPath,
		Host:   DefaultHost,
		Port:   DefaultPort,
		Embedder: EmbedderConfig{
			Endpoint: DefaultEmbedderURL,
		},
		RateLimit: RateLimitConfig{
			WritePerMinute: DefaultRateLimitWrite,
			ReadPerMinute:  DefaultRateLimitRead,
		},
	}

	if yamlPath != "" {
		f, err := os.Open(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", yamlPath, err)
		}
		defer f.Close()
		if err := decodeYAML(f, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", yamlPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment
// overrides on top, and validates the result. Useful in tests where
// configs are constructed from string literals rather than files.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{
		DBPath: DefaultDBPath,
		Host:   DefaultHost,
		Port:   DefaultPort,
		Embedder: EmbedderConfig{
			Endpoint: DefaultEmbedderURL,
		},
		RateLimit: RateLimitConfig{
			WritePerMinute: DefaultRateLimitWrite,
			ReadPerMinute:  DefaultRateLimitRead,
		},
	}
	if err := decodeYAML(r, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeYAML(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return err
	}
	return nil
}

// applyEnvOverrides lets environment variables win over YAML-supplied
// values, and is the only place the passphrase is ever populated from.
func applyEnvOverrides(cfg *Config) {
	cfg.Passphrase = os.Getenv(envPassphrase)

	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envHost); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv(envPort); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		} else {
			slog.Warn("ignoring invalid port in environment", "value", v)
		}
	}
	if v := os.Getenv(envEmbedderCacheDir); v != "" {
		cfg.Embedder.CacheDir = v
	}
	if v := os.Getenv(envEmbedderEndpoint); v != "" {
		cfg.Embedder.Endpoint = v
	}
	if v := os.Getenv(envRateLimitWrite); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.WritePerMinute = n
		} else {
			slog.Warn("ignoring invalid write rate limit in environment", "value", v)
		}
	}
	if v := os.Getenv(envRateLimitRead); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.ReadPerMinute = n
		} else {
			slog.Warn("ignoring invalid read rate limit in environment", "value", v)
		}
	}
}

// Validate checks that cfg contains a coherent set of values, joining every
// hard failure into one error. Soft issues (a rate limit of zero disables
// throttling) are logged as warnings rather than rejected.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Passphrase == "" {
		errs = append(errs, fmt.Errorf("%s is required", envPassphrase))
	}
	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db_path must not be empty"))
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range [0, 65535]", cfg.Port))
	}
	if cfg.Embedder.Endpoint == "" {
		errs = append(errs, errors.New("embedder.endpoint must not be empty"))
	}

	if cfg.RateLimit.WritePerMinute <= 0 {
		slog.Warn("rate_limit.write_per_minute is 0 or negative; write throttling disabled")
	}
	if cfg.RateLimit.ReadPerMinute <= 0 {
		slog.Warn("rate_limit.read_per_minute is 0 or negative; read throttling disabled")
	}

	return errors.Join(errs...)
}
