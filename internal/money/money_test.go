package money

import (
	"math"
	"testing"
)

func TestParseDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"45.90", 4590},
		{"45,90", 4590},
		{"45", 4500},
		{"45.9", 4590},
		{"0.05", 5},
		{".50", 50},
		{"-12.34", -1234},
		{"  7.00 ", 700},
		{"1.005", 101},
		{"1.004", 100},
	}
	for _, tc := range cases {
		got, err := ParseDecimal(tc.in)
		if err != nil {
			t.Fatalf("ParseDecimal(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDecimal(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseDecimal_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "12a.00", "1.2x", "."} {
		if _, err := ParseDecimal(in); err == nil {
			t.Fatalf("ParseDecimal(%q): expected error", in)
		}
	}
}

func TestFromFloat(t *testing.T) {
	if got := FromFloat(45.90); got != 4590 {
		t.Fatalf("expected 4590, got %d", got)
	}
	if got := FromFloat(0.1 + 0.2); got != 30 {
		t.Fatalf("expected 30, got %d", got)
	}
	if got := FromFloat(math.NaN()); got != 0 {
		t.Fatalf("expected NaN to collapse to 0, got %d", got)
	}
	if got := FromFloat(math.Inf(-1)); got != 0 {
		t.Fatalf("expected Inf to collapse to 0, got %d", got)
	}
}

func TestFormat(t *testing.T) {
	if got := Format(4590); got != "45.90" {
		t.Fatalf("expected 45.90, got %s", got)
	}
	if got := Format(5); got != "0.05" {
		t.Fatalf("expected 0.05, got %s", got)
	}
	if got := Format(-1234); got != "-12.34" {
		t.Fatalf("expected -12.34, got %s", got)
	}
	if got := Format(math.MinInt64); got != "-92233720368547758.08" {
		t.Fatalf("expected -92233720368547758.08, got %s", got)
	}
	if got := Format(math.MaxInt64); got != "92233720368547758.07" {
		t.Fatalf("expected 92233720368547758.07, got %s", got)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	for minor := int64(0); minor < 10000; minor += 37 {
		parsed, err := ParseDecimal(Format(minor))
		if err != nil {
			t.Fatalf("round trip %d: %v", minor, err)
		}
		if parsed != minor {
			t.Fatalf("round trip %d -> %d", minor, parsed)
		}
	}
}
