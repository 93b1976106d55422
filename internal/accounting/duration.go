package accounting

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var unitPattern = regexp.MustCompile(`(\d+\.?\d*)\s*([hms])`)

// MaxDuration bounds every user supplied duration and the accumulated
// adjustment of a session.
const MaxDuration = 7 * 24 * time.Hour

var units = map[string]time.Duration{"h": time.Hour, "m": time.Minute, "s": time.Second}

// scaled converts value units into a duration, refusing anything above MaxDuration.
func scaled(value float64, unit time.Duration, input string) (time.Duration, error) {
	if math.IsNaN(value) || value < 0 {
		return 0, fmt.Errorf("cannot parse duration: %s", input)
	}
	if value*float64(unit) > float64(MaxDuration) {
		return 0, fmt.Errorf("duration %s exceeds %s", input, FormatDuration(MaxDuration))
	}
	return time.Duration(value * float64(unit)), nil
}

// ParseDuration parses a user supplied duration. Accepted forms are "H:MM",
// unit sequences such as "1h 20m", "90m" or "45s", and a bare number of minutes.
func ParseDuration(input string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}

	if parts := strings.Split(s, ":"); len(parts) == 2 {
		hours, errH := strconv.Atoi(strings.TrimSpace(parts[0]))
		minutes, errM := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errH == nil && errM == nil && hours >= 0 && minutes >= 0 {
			return scaled(float64(hours)*60+float64(minutes), time.Minute, input)
		}
	}

	if matches := unitPattern.FindAllStringSubmatch(s, -1); len(matches) > 0 {
		var total time.Duration
		for _, m := range matches {
			value, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, fmt.Errorf("cannot parse duration: %s", input)
			}
			part, err := scaled(value, units[m[2]], input)
			if err != nil {
				return 0, err
			}
			if total += part; total > MaxDuration {
				return 0, fmt.Errorf("duration %s exceeds %s", input, FormatDuration(MaxDuration))
			}
		}
		return total.Truncate(time.Second), nil
	}

	minutes, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("cannot parse duration: %s", input)
	}
	d, err := scaled(minutes, time.Minute, input)
	if err != nil {
		return 0, err
	}
	return d.Truncate(time.Second), nil
}

// ParseAdjustment parses the adjust form input. A leading sign makes it a
// relative delta ("+15m", "-1h"); anything else is an absolute effective time.
func ParseAdjustment(input string) (value time.Duration, relative bool, err error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, false, fmt.Errorf("empty duration")
	}
	sign := time.Duration(1)
	switch s[0] {
	case '+':
		relative = true
		s = s[1:]
	case '-':
		relative = true
		sign = -1
		s = s[1:]
	}
	d, err := ParseDuration(s)
	if err != nil {
		return 0, false, err
	}
	return sign * d, relative, nil
}

// FormatDuration renders d as "1h 20m", "45m 10s" or "0m". Seconds are only
// shown for durations under an hour.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "0m"
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60

	var parts []string
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if secs > 0 && hours == 0 {
		parts = append(parts, fmt.Sprintf("%ds", secs))
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}

// FormatSigned renders a delta with an explicit sign.
func FormatSigned(d time.Duration) string {
	if d < 0 {
		return "-" + FormatDuration(-d)
	}
	return "+" + FormatDuration(d)
}
