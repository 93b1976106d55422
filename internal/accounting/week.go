package accounting

import (
	"fmt"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/domain"
)

// WeekAnchor is the fixed boundary weeks start at: a weekday at local midnight.
type WeekAnchor struct {
	Start    time.Weekday
	Location *time.Location
}

// Window is a half-open [Start, End) week.
type Window struct {
	Start time.Time
	End   time.Time
}

// Key returns the week key: the local calendar date of the week start.
func (w Window) Key() string {
	return w.Start.Format(domain.WeekKeyLayout)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// WindowAt returns the week containing now. It is computed from the clock on
// every call; nothing about the current week is cached.
func (a WeekAnchor) WindowAt(now time.Time) Window {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	offset := (int(local.Weekday()) - int(a.Start) + 7) % 7
	y, m, d := local.Date()
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, loc)
	end := time.Date(y, m, d-offset+7, 0, 0, 0, 0, loc)
	return Window{Start: start, End: end}
}

// ParseWeekday parses a weekday name such as "monday" or "Sun".
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || (len(n) >= 3 && strings.HasPrefix(full, n)) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("unknown weekday %q", name)
}
