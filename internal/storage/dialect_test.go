package storage

import (
	"testing"
	"time"
)

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	if got := DialectSQLite.Rebind(q); got != q {
		t.Fatalf("sqlite should keep placeholders, got %q", got)
	}
	want := "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3"
	if got := DialectPostgres.Rebind(q); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNullTimeScan(t *testing.T) {
	cases := []any{
		"2024-01-02 03:04:05.123456+00:00",
		"2024-01-02 03:04:05",
		[]byte("2024-01-02T03:04:05Z"),
		time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	for _, src := range cases {
		var ts time.Time
		if err := (nullTime{&ts}).Scan(src); err != nil {
			t.Fatalf("scan %v: %v", src, err)
		}
		if ts.Year() != 2024 || ts.Hour() != 3 {
			t.Fatalf("scan %v: got %v", src, ts)
		}
	}
	var ts time.Time
	if err := (nullTime{&ts}).Scan("yesterday"); err == nil {
		t.Fatalf("expected parse error")
	}
}
