package core

import (
	"errors"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"1000.00", 100000, true},
		{"-1", 0, false},
		{"+1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"1e3", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
		{"99999999999999", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:         "0.00",
		1:         "0.01",
		70000:     "700.00",
		123456789: "1234567.89",
		-2550:     "-25.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: got %q want %q", cents, got, want)
		}
	}
}

func TestMoneyArithmeticIsExact(t *testing.T) {
	var sum Money
	for i := 0; i < 1000; i++ {
		sum = sum.Add(Money{Cents: 10})
	}
	if sum.Cents != 10000 || sum.String() != "100.00" {
		t.Fatalf("expected 100.00, got %s", sum)
	}
	if got := (Money{Cents: 100000}).Sub(Money{Cents: 30000}); got.String() != "700.00" {
		t.Fatalf("expected 700.00, got %s", got)
	}
}

func TestParseMoneyNotNumeric(t *testing.T) {
	tests := []struct {
		in         string
		notNumeric bool
	}{
		{"abc", true},
		{"12.3.4", true},
		{"1e3", true},
		{"0", false},
		{"-5", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseMoney(tt.in)
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("ParseMoney(%q) = %v, want ErrInvalidAmount", tt.in, err)
		}
		if got := errors.Is(err, ErrAmountNotNumeric); got != tt.notNumeric {
			t.Errorf("ParseMoney(%q) not numeric = %v, want %v", tt.in, got, tt.notNumeric)
		}
	}
}
