package cli

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"ledger/internal/config"
	"ledger/internal/log"
)

func TestSetupLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		logger := SetupLogger(tt.level, "json")
		if !logger.Enabled(context.Background(), tt.want) {
			t.Errorf("%s: level %v should be enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && logger.Enabled(context.Background(), tt.want-4) {
			t.Errorf("%s: level below %v should be disabled", tt.level, tt.want)
		}
	}
}

func TestEnsureSessionSecret(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})

	mem := &config.Config{DataBackend: "memory"}
	EnsureSessionSecret(logger, mem)
	if len(mem.SessionSecret) != 64 {
		t.Fatalf("expected generated 64 char secret, got %q", mem.SessionSecret)
	}

	kept := &config.Config{DataBackend: "memory", SessionSecret: "preset"}
	EnsureSessionSecret(logger, kept)
	if kept.SessionSecret != "preset" {
		t.Fatal("existing secret was replaced")
	}

	sqlite := &config.Config{DataBackend: "sqlite"}
	EnsureSessionSecret(logger, sqlite)
	if sqlite.SessionSecret != "" {
		t.Fatal("secret must not be generated for persistent backends")
	}
}
