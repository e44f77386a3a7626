// Package units converts between human duration input and minutes.
package units

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUnsupportedFormat is returned for input that matches none of the accepted forms.
var ErrUnsupportedFormat = errors.New("unsupported duration format")

// maxHours bounds the hour component so hours*60+mins cannot overflow.
const maxHours = 1 << 40

var (
	hoursMinutesRe = regexp.MustCompile(`^(?:(\d+)h)?(\d+)m?$`)
	clockRe        = regexp.MustCompile(`^(\d+):(\d{1,2})$`)
	decimalHoursRe = regexp.MustCompile(`^\d+(?:\.\d+)?$`)
)

// ParseMinutes converts a duration string to minutes. Accepted forms, tried in order:
//
//	"7h15m", "7h15", "135m", "135"  hours and minutes (a bare integer is minutes)
//	"7:15"                          clock style
//	"7.25"                          decimal hours
func ParseMinutes(text string) (float64, error) {
	s := strings.ToLower(strings.TrimSpace(text))

	if m := hoursMinutesRe.FindStringSubmatch(s); m != nil {
		return hoursAndMinutes(text, m[1], m[2])
	}

	if m := clockRe.FindStringSubmatch(s); m != nil {
		return hoursAndMinutes(text, m[1], m[2])
	}

	if decimalHoursRe.MatchString(s) {
		hours, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, text)
		}
		return hours * 60, nil
	}

	return 0, fmt.Errorf("%w: %q (use e.g. 7h15m, 7:15 or 7.25)", ErrUnsupportedFormat, text)
}

// hoursAndMinutes combines the digit groups of a match. Groups too large
// for an int, or beyond maxHours, are rejected.
func hoursAndMinutes(text, h, m string) (float64, error) {
	var hours int
	if h != "" {
		n, err := strconv.Atoi(h)
		if err != nil || n > maxHours {
			return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, text)
		}
		hours = n
	}
	mins, err := strconv.Atoi(m)
	if err != nil || mins > maxHours*60 {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, text)
	}
	return float64(hours*60 + mins), nil
}

// ParseCount parses a non-negative integer count such as a step total.
func ParseCount(text string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
