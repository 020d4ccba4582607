package timecode

import (
	"errors"
	"math"
	"testing"
)

// TestParseValid checks grammar acceptance and second conversion.
func TestParseValid(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"00:00:00", 0},
		{"01:01:01.500", 3661.5},
		{"00:00:10", 10},
		{"100:00:00", 360000},
		{"00:01:30.5", 90.5},
		{"00:00:00.025", 0.025},
		{"  00:02:00  ", 120},
		// Grammar-only validation: out-of-range minutes still parse.
		{"12:60:00", 12*3600 + 60*60},
	}

	for _, tc := range cases {
		got, err := Parse(tc.text)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", tc.text, err)
		}
		if math.Abs(got-tc.want) > 0.0005 {
			t.Fatalf("Parse(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

// TestParseInvalid checks rejection of malformed timecodes.
func TestParseInvalid(t *testing.T) {
	for _, text := range []string{
		"",
		"1:2:3",
		"-1:00:00",
		"00:00",
		"00-00-00",
		"00:00:00.1234",
		"0:0:0",
		"aa:bb:cc",
	} {
		if _, err := Parse(text); !errors.Is(err, ErrInvalidTimecode) {
			t.Fatalf("Parse(%q) error = %v, want ErrInvalidTimecode", text, err)
		}
	}
}

// TestFormat checks canonical rendering with and without fraction.
func TestFormat(t *testing.T) {
	cases := []struct {
		seconds float64
		want    string
	}{
		{0.0, "00:00:00"},
		{3661.5, "01:01:01.500"},
		{10, "00:00:10"},
		{360000, "100:00:00"},
		{90.025, "00:01:30.025"},
		{59.9999, "00:01:00"},
	}

	for _, tc := range cases {
		if got := Format(tc.seconds); got != tc.want {
			t.Fatalf("Format(%v) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

// TestRoundTrip verifies parse(format(parse(t))) stays within 1ms.
func TestRoundTrip(t *testing.T) {
	for _, text := range []string{
		"00:00:00",
		"01:01:01.500",
		"12:34:56.789",
		"99:59:59.001",
		"00:00:01.1",
	} {
		first, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", text, err)
		}
		second, err := Parse(Format(first))
		if err != nil {
			t.Fatalf("reparse of %q error = %v", Format(first), err)
		}
		if math.Abs(first-second) > 0.001 {
			t.Fatalf("round trip of %q drifted: %v -> %v", text, first, second)
		}
	}
}
