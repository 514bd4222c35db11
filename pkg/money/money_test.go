package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr error
	}{
		{name: "whole units", input: "500", want: 50000},
		{name: "two decimals", input: "500.25", want: 50025},
		{name: "one decimal", input: "10.5", want: 1050},
		{name: "trailing zeros", input: "10.500", want: 1050},
		{name: "zero", input: "0", want: 0},
		{name: "negative", input: "-3.75", want: -375},
		{name: "sub-cent precision", input: "0.005", wantErr: ErrPrecision},
		{name: "sub-cent precision nonzero", input: "12.345", wantErr: ErrPrecision},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse(%q) err = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) failed: %v", tt.input, err)
			}
			if got.Cents() != tt.want {
				t.Errorf("Parse(%q) = %d cents, want %d", tt.input, got.Cents(), tt.want)
			}
		})
	}
}

func TestParseInvalidString(t *testing.T) {
	if _, err := Parse("not-a-number"); err == nil {
		t.Error("Expected error for non-numeric input")
	}
}

func TestFromDecimalRange(t *testing.T) {
	huge := decimal.New(1, 30)
	if _, err := FromDecimal(huge); !errors.Is(err, ErrRange) {
		t.Errorf("Expected ErrRange, got %v", err)
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		cents int64
		want  string
	}{
		{cents: 50000, want: "500.00"},
		{cents: 123450, want: "1234.50"},
		{cents: 5, want: "0.05"},
		{cents: 0, want: "0.00"},
		{cents: -375, want: "-3.75"},
	}

	for _, tt := range tests {
		if got := FromCents(tt.cents).String(); got != tt.want {
			t.Errorf("FromCents(%d).String() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := FromCents(100000)
	b := FromCents(50000)

	if got := a.Sub(b).Add(b); got != a {
		t.Errorf("Sub then Add should round-trip, got %v", got)
	}
	if !b.IsPositive() {
		t.Error("500.00 should be positive")
	}
	if FromCents(0).IsPositive() {
		t.Error("zero should not be positive")
	}
	if FromCents(-1).IsPositive() {
		t.Error("negative amount should not be positive")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Amount Amount `json:"amount"`
	}

	// Number and string forms must decode to the same amount.
	for _, raw := range []string{`{"amount": 500.25}`, `{"amount": "500.25"}`} {
		var p payload
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", raw, err)
		}
		if p.Amount.Cents() != 50025 {
			t.Errorf("Unmarshal(%s) = %d cents, want 50025", raw, p.Amount.Cents())
		}
	}

	out, err := json.Marshal(payload{Amount: FromCents(50025)})
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"amount":"500.25"}` {
		t.Errorf("Marshal = %s, want quoted decimal string", out)
	}
}

func TestJSONRejectsSubCent(t *testing.T) {
	var a Amount
	if err := json.Unmarshal([]byte(`0.005`), &a); !errors.Is(err, ErrPrecision) {
		t.Errorf("Expected ErrPrecision, got %v", err)
	}
}
