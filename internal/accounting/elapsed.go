// Package accounting derives effective session time from stored session fields.
//
// Everything here is a pure function of the session and the instant it is
// evaluated at: there are no running counters, so the same stored row always
// yields the same figure for the same instant.
package accounting

import (
	"time"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Breakdown is the decomposition of a session's effective time at an instant.
type Breakdown struct {
	Span       time.Duration // wall clock from start to stop (or now)
	Paused     time.Duration // folded pauses plus the pause in progress
	Adjustment time.Duration
	Raw        time.Duration // Span - Paused + Adjustment, may be negative
	Effective  time.Duration // Raw floored at zero
}

// Compute returns the full decomposition of s at now.
func Compute(s *domain.Session, now time.Time) Breakdown {
	end := now
	if at, ok := s.StoppedAt(); ok {
		end = at
	}
	span := end.Sub(s.StartedAt)

	paused := s.PausedTotal
	if since, ok := s.PauseStartedAt(); ok {
		if current := now.Sub(since); current > 0 {
			paused += current
		}
	}

	raw := span - paused + s.Adjustment
	effective := raw
	if effective < 0 {
		effective = 0
	}
	return Breakdown{
		Span:       span,
		Paused:     paused,
		Adjustment: s.Adjustment,
		Raw:        raw,
		Effective:  effective,
	}
}

// Elapsed returns the effective elapsed time of s at now, never negative.
func Elapsed(s *domain.Session, now time.Time) time.Duration {
	return Compute(s, now).Effective
}

// PausedAt returns the total paused time of s at now, including a pause in progress.
func PausedAt(s *domain.Session, now time.Time) time.Duration {
	return Compute(s, now).Paused
}

// ClampAdjustment returns the part of delta that can be applied to s without
// driving its effective time below zero, and whether delta had to be reduced.
func ClampAdjustment(s *domain.Session, delta time.Duration, now time.Time) (time.Duration, bool) {
	raw := Compute(s, now).Raw
	if delta >= -raw {
		return delta, false
	}
	return -raw, true
}

// AdjustmentFor returns the delta that makes the effective time of s equal target.
func AdjustmentFor(s *domain.Session, target time.Duration, now time.Time) time.Duration {
	return target - Compute(s, now).Raw
}
