package infra

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("MUSIC_POLL_INTERVAL", "")
	t.Setenv("MUSIC_MAX_ATTEMPTS", "")
	t.Setenv("MUSIC_CALLBACK_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MusicPollInterval != 10*time.Second {
		t.Fatalf("MusicPollInterval = %s, want 10s", cfg.MusicPollInterval)
	}
	if cfg.MusicMaxAttempts != 60 {
		t.Fatalf("MusicMaxAttempts = %d, want 60", cfg.MusicMaxAttempts)
	}
	if cfg.MusicCallbackURL != "https://example.com/callback" {
		t.Fatalf("MusicCallbackURL = %q", cfg.MusicCallbackURL)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error without DATABASE_URL")
	}
}

func TestLoadConfigParsesDurationsAndLists(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("MUSIC_POLL_INTERVAL", "3")
	t.Setenv("WORKER_STALE_AFTER", "90s")
	t.Setenv("MUSIC_FAILURE_STATUSES", " SENSITIVE_WORD_ERROR, ,CREATE_TASK_FAILED ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MusicPollInterval != 3*time.Second {
		t.Fatalf("MusicPollInterval = %s, want 3s", cfg.MusicPollInterval)
	}
	if cfg.WorkerStaleAfter != 90*time.Second {
		t.Fatalf("WorkerStaleAfter = %s, want 90s", cfg.WorkerStaleAfter)
	}
	want := []string{"SENSITIVE_WORD_ERROR", "CREATE_TASK_FAILED"}
	if len(cfg.MusicFailureStatuses) != len(want) {
		t.Fatalf("MusicFailureStatuses = %#v, want %#v", cfg.MusicFailureStatuses, want)
	}
	for i := range want {
		if cfg.MusicFailureStatuses[i] != want[i] {
			t.Fatalf("MusicFailureStatuses[%d] = %q, want %q", i, cfg.MusicFailureStatuses[i], want[i])
		}
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://app.example.com" {
		t.Fatalf("AllowedOrigins mismatch: %#v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRejectsNonPositiveAttempts(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("MUSIC_MAX_ATTEMPTS", "0")
	if _, err := LoadConfig(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}
