package policy

import (
	"errors"
	"testing"
)

func TestParseDuration_Units(t *testing.T) {
	cases := map[string]int64{
		"1h":   3600,
		"1d":   86400,
		"1w":   604800,
		"1m":   2419200,
		"1y":   29030400,
		"4w":   2419200,
		"1w2d": 777600,
		"2h30": 0, // invalid, checked below
	}
	for in, want := range cases {
		got, err := ParseDuration(in)
		if want == 0 {
			if !errors.Is(err, ErrBadDuration) {
				t.Fatalf("ParseDuration(%q): want ErrBadDuration, got %v", in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseDuration(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseDuration(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestParseDuration_MonthIsFourWeeks(t *testing.T) {
	m, err := ParseDuration("1m")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	w, err := ParseDuration("4w")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if m != w {
		t.Fatalf("1m = %d, 4w = %d; want equal", m, w)
	}
}

func TestParseDuration_Rejects(t *testing.T) {
	for _, in := range []string{"", "h", "1", "1x", "1h ", " 1h", "h1", "1.5h", "-1h", "1h2x"} {
		if _, err := ParseDuration(in); !errors.Is(err, ErrBadDuration) {
			t.Fatalf("ParseDuration(%q): want ErrBadDuration, got %v", in, err)
		}
	}
}

func TestParseDuration_CompoundOrderInsensitive(t *testing.T) {
	a, err := ParseDuration("2d1w")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	b, err := ParseDuration("1w2d")
	if err != nil {
		t.Fatalf("ParseDuration: %v", err)
	}
	if a != b {
		t.Fatalf("2d1w = %d, 1w2d = %d; want equal", a, b)
	}
}
