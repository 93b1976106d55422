package domain

import "time"

// WeekKeyLayout is the layout of the week key: the calendar date of the week start.
const WeekKeyLayout = "2006-01-02"

// Allocation is a weekly target for a subject.
type Allocation struct {
	ID            string    `json:"allocation_id"`
	UserID        string    `json:"user_id"`
	Subject       string    `json:"subject"`
	Week          string    `json:"week"`
	TargetMinutes int       `json:"target_minutes"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SubjectProgress is the weekly progress for one subject.
type SubjectProgress struct {
	Subject            string `json:"subject"`
	HasTarget          bool   `json:"has_target"`
	TargetMinutes      int    `json:"target_minutes"`
	AccumulatedMinutes int    `json:"accumulated_minutes"`
	SessionsCounted    int    `json:"sessions_counted"`
}

// Percent returns accumulated time as a percentage of the target.
func (p SubjectProgress) Percent() float64 {
	if p.TargetMinutes <= 0 {
		return 0
	}
	return float64(p.AccumulatedMinutes) / float64(p.TargetMinutes) * 100
}

// Progress is the weekly allocation report for an owner.
type Progress struct {
	UserID    string            `json:"user_id"`
	Week      string            `json:"week"`
	WeekStart time.Time         `json:"week_start"`
	WeekEnd   time.Time         `json:"week_end"`
	At        time.Time         `json:"at"`
	Subjects  []SubjectProgress `json:"subjects"`
}
