package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Relay.EditEveryChars != DefaultEditEveryChars {
		t.Fatalf("unexpected edit_every_chars: %d", cfg.Relay.EditEveryChars)
	}
	if cfg.Relay.MaxFileBytes != DefaultMaxFileBytes {
		t.Fatalf("unexpected max_file_bytes: %d", cfg.Relay.MaxFileBytes)
	}
	if !cfg.Channel.AutoStart {
		t.Fatalf("expected auto start by default")
	}
	if cfg.Dify.StreamTimeoutDuration() != 30*time.Second {
		t.Fatalf("unexpected stream timeout: %s", cfg.Dify.StreamTimeoutDuration())
	}
}

func TestLoadOverridesFromFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[relay]
edit_every_chars = 40

[dify]
request_timeout = "45s"

[postgres]
database = "bridge"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("PLUGBOT_SECRETS_KEY", "from-env")
	t.Setenv("PLUGBOT_PG_PORT", "6543")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Relay.EditEveryChars != 40 {
		t.Fatalf("expected 40, got %d", cfg.Relay.EditEveryChars)
	}
	if cfg.Dify.RequestTimeoutDuration() != 45*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Dify.RequestTimeoutDuration())
	}
	if cfg.Postgres.Database != "bridge" || cfg.Postgres.Port != 6543 {
		t.Fatalf("unexpected postgres config: %+v", cfg.Postgres)
	}
	if cfg.Secrets.Key != "from-env" {
		t.Fatalf("expected env secret key, got %q", cfg.Secrets.Key)
	}
}

func TestParseDurationFallback(t *testing.T) {
	t.Parallel()

	if got := parseDuration("nonsense", time.Second); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := parseDuration("-5s", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback for negative, got %s", got)
	}
	if got := (ChannelConfig{}).StopTimeoutDuration(); got != 10*time.Second {
		t.Fatalf("unexpected stop timeout: %s", got)
	}
}
