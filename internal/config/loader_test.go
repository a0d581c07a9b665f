package config_test

import (
	"os"
	"strings"
	"testing"

	"github.com/karrolcia/hippocampus-go/internal/config"
)

func TestLoadFromReaderAppliesDefaults(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.DBPath != config.DefaultDBPath {
		t.Errorf("DBPath = %q, want %q", cfg.DBPath, config.DefaultDBPath)
	}
	if cfg.Port != config.DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, config.DefaultPort)
	}
	if cfg.Embedder.Endpoint != config.DefaultEmbedderURL {
		t.Errorf("Embedder.Endpoint = %q, want %q", cfg.Embedder.Endpoint, config.DefaultEmbedderURL)
	}
	if cfg.RateLimit.WritePerMinute != config.DefaultRateLimitWrite {
		t.Errorf("RateLimit.WritePerMinute = %d, want %d", cfg.RateLimit.WritePerMinute, config.DefaultRateLimitWrite)
	}
}

func TestLoadFromReaderYAMLOverridesNonSecretDefaults(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")

	yaml := `
db_path: /var/lib/hippocampus/custom.db
rate_limit:
  write_per_minute: 5
  read_per_minute: 15
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.DBPath != "/var/lib/hippocampus/custom.db" {
		t.Errorf("DBPath = %q, want override", cfg.DBPath)
	}
	if cfg.RateLimit.WritePerMinute != 5 {
		t.Errorf("RateLimit.WritePerMinute = %d, want 5", cfg.RateLimit.WritePerMinute)
	}
}

func TestLoadFromReaderRejectsPassphraseInYAML(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "")

	yaml := `passphrase: should-be-ignored`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error: passphrase must come from environment, YAML has no such field")
	}
}

func TestValidateMissingPassphraseFails(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "")

	_, err := config.LoadFromReader(strings.NewReader(""))
	if err == nil {
		t.Fatal("expected error for missing passphrase, got nil")
	}
	if !strings.Contains(err.Error(), "HIPPOCAMPUS_PASSPHRASE") {
		t.Errorf("error should mention HIPPOCAMPUS_PASSPHRASE, got: %v", err)
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")

	yaml := `port: 99999`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range port, got nil")
	}
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")
	t.Setenv("HIPPOCAMPUS_DB_PATH", "/env/override.db")

	yaml := `db_path: /yaml/path.db`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.DBPath != "/env/override.db" {
		t.Errorf("DBPath = %q, want env override to win", cfg.DBPath)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")

	f, err := os.CreateTemp(t.TempDir(), "config-*.yaml")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.WriteString("db_path: /from/file.db\n"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	cfg, err := config.Load(f.Name())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/from/file.db" {
		t.Errorf("DBPath = %q, want /from/file.db", cfg.DBPath)
	}
}

func TestLoadWithoutYAMLPathUsesEnvOnly(t *testing.T) {
	t.Setenv("HIPPOCAMPUS_PASSPHRASE", "test-passphrase")
	t.Setenv("HIPPOCAMPUS_DB_PATH", "/env/only.db")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/env/only.db" {
		t.Errorf("DBPath = %q, want /env/only.db", cfg.DBPath)
	}
}
