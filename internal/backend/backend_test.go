package backend

import (
	"context"
	"io"
	"path/filepath"
	"testing"

	"ledger/internal/config"
	"ledger/internal/core"
	"ledger/internal/log"
	sheetsmem "ledger/internal/sheets/memory"
)

func testFactory() Factory {
	return NewFactory(log.New(log.Config{Output: io.Discard}))
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"unknown", Config{Type: "sheets"}, true},
		{"amqp without queue", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost", AMQPExchange: "ledger"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}
	cfg, err := FromAppConfig(&config.Config{
		DataBackend:         "postgres",
		DatabaseURL:         "postgres://ledger@localhost/ledger",
		AMQPURL:             "amqp://localhost",
		AMQPExchange:        "ledger",
		AMQPQueue:           "ledger_events",
		GoogleSpreadsheetID: "sheet-id",
		GoogleSheetName:     "Ledger",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != PostgresBackend || cfg.DatabaseURL == "" || cfg.GoogleSpreadsheetID != "sheet-id" || cfg.AMQPQueue != "ledger_events" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestCreateBackend(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []Config{
		{Type: MemoryBackend},
		{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "nested", "ledger.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			result, err := testFactory().CreateBackend(ctx, cfg)
			if err != nil {
				t.Fatal(err)
			}
			if result.Events != nil {
				t.Fatal("no broker configured, events should be nil")
			}
			if err := result.Store.Ping(ctx); err != nil {
				t.Fatal(err)
			}
			if n, err := result.Store.CountUsers(ctx); err != nil || n != 0 {
				t.Fatalf("fresh store: %d users, %v", n, err)
			}
			if _, err := result.Store.CreateTransaction(ctx, core.Transaction{
				Type: core.Expense, Description: "x", Amount: core.Money{Cents: 1}, Date: core.NewDate(2024, 1, 1),
			}); err != nil {
				t.Fatal(err)
			}
			if err := result.Cleanup(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestCreateMirrorFallsBackToMemory(t *testing.T) {
	mirror, err := testFactory().CreateMirror(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mirror.(*sheetsmem.Store); !ok {
		t.Fatalf("expected memory mirror, got %T", mirror)
	}
}
