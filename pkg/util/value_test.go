package util

import (
	"math"
	"testing"
)

func TestParseValue(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want float64
	}{
		{"1k", 1e3},
		{"180n", 180e-9},
		{"1u", 1e-6},
		{"2.5meg", 2.5e6},
		{"2.5MEG", 2.5e6},
		{"10mV", 10e-3},
		{"-0.7", -0.7},
		{"1e-12", 1e-12},
		{"3.9", 3.9},
		{".5", 0.5},
		{"27", 27},
		{"1mil", 25.4e-6},
		{"5V", 5},
	}
	for _, tt := range tests {
		got, err := ParseValue(tt.in)
		if err != nil {
			t.Fatalf("ParseValue(%q): %v", tt.in, err)
		}
		if math.Abs(got-tt.want) > 1e-12*math.Abs(tt.want) {
			t.Errorf("ParseValue(%q) = %g, want %g", tt.in, got, tt.want)
		}
	}

	for _, bad := range []string{"", "abc", "1.2.3", "--1"} {
		if _, err := ParseValue(bad); err == nil {
			t.Errorf("ParseValue(%q) accepted", bad)
		}
	}
}

func TestFormatValueFactor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		v    float64
		unit string
		want string
	}{
		{1.5, "V", "1.500 V"},
		{2.5e-3, "A", "2.500 mA"},
		{4.2e-6, "A", "4.200 uA"},
		{0, "A", "0.000 A"},
		{1.2e-15, "F", "1.200 fF"},
		{-3e-9, "A", "-3.000 nA"},
	}
	for _, tt := range tests {
		if got := FormatValueFactor(tt.v, tt.unit); got != tt.want {
			t.Errorf("FormatValueFactor(%g) = %q, want %q", tt.v, got, tt.want)
		}
	}
}
