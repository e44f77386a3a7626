package units

import (
	"errors"
	"testing"
)

func TestParseMinutes(t *testing.T) {
	tests := []struct {
		input string
		want  float64
	}{
		{"7h15m", 435},
		{"7h15", 435},
		{"7H5M", 425},
		{"135m", 135},
		{"45", 45},
		{"7:15", 435},
		{"0:05", 5},
		{"7.25", 435},
		{"7.5", 450},
		{"  8h0m ", 480},
	}
	for _, tt := range tests {
		got, err := ParseMinutes(tt.input)
		if err != nil {
			t.Errorf("ParseMinutes(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMinutes(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseMinutes_Unsupported(t *testing.T) {
	for _, input := range []string{"", "abc", "7h", "7:155", "-5", "7.", "h15"} {
		if _, err := ParseMinutes(input); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseMinutes(%q) error = %v, want ErrUnsupportedFormat", input, err)
		}
	}
}

func TestParseMinutes_OversizedDigits(t *testing.T) {
	inputs := []string{
		"99999999999999999999h90",
		"99999999999999999999h30m",
		"99999999999999999999",
		"99999999999999999999:30",
		"1h99999999999999999999m",
		"9999999999999999h0m",
	}
	for _, input := range inputs {
		got, err := ParseMinutes(input)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("ParseMinutes(%q) = %v, %v; want ErrUnsupportedFormat", input, got, err)
		}
	}
}

func TestParseCount(t *testing.T) {
	if n, ok := ParseCount(" 10432 "); !ok || n != 10432 {
		t.Errorf("ParseCount(\" 10432 \") = %d, %v", n, ok)
	}
	for _, input := range []string{"-1", "ten", "10.5", "99999999999999999999"} {
		if _, ok := ParseCount(input); ok {
			t.Errorf("ParseCount(%q) accepted", input)
		}
	}
}
