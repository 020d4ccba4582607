// Package timecode converts between HH:MM:SS(.mmm) strings and seconds.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidTimecode is returned for text outside the timecode grammar.
var ErrInvalidTimecode = errors.New("timecode must be HH:MM:SS or HH:MM:SS.mmm")

// Hours may have any digit count; minutes and seconds are exactly two
// digits. Range sanity (e.g. minutes < 60) is intentionally not checked.
var timePattern = regexp.MustCompile(`^(\d+):(\d{2}):(\d{2})(?:\.(\d{1,3}))?$`)

// Parse converts a timecode string into seconds with millisecond precision.
func Parse(text string) (float64, error) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return 0, ErrInvalidTimecode
	}

	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, ErrInvalidTimecode
	}
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])

	millis := 0
	if m[4] != "" {
		padded := m[4] + strings.Repeat("0", 3-len(m[4]))
		millis, _ = strconv.Atoi(padded)
	}

	return float64(hours*3600+minutes*60+seconds) + float64(millis)/1000, nil
}

// Format renders non-negative seconds as a canonical timecode. The 3-digit
// fractional suffix appears only when the millisecond-rounded fraction is
// non-zero. Negative input is out of contract.
func Format(seconds float64) string {
	total := int64(math.Round(seconds * 1000))
	hours := total / 3_600_000
	minutes := total % 3_600_000 / 60_000
	secs := total % 60_000 / 1000
	millis := total % 1000

	if millis == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, millis)
}
