package service

import (
	"fmt"
	"time"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/domain"
)

// The transitions below mutate the session they are given and never touch
// storage. Callers pass a copy read inside the transaction.

func startSession(id, owner, subject, goal string, now time.Time) *domain.Session {
	return &domain.Session{
		ID:        id,
		UserID:    owner,
		Subject:   subject,
		Goal:      goal,
		StartedAt: now,
		Phase:     domain.Running{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func pauseSession(s *domain.Session, now time.Time) error {
	if _, ok := s.Phase.(domain.Running); !ok {
		return domain.IllegalTransition(s, domain.EventPause)
	}
	s.Phase = domain.Paused{Since: now}
	s.UpdatedAt = now
	return nil
}

// foldPause moves the pause in progress into PausedTotal.
func foldPause(s *domain.Session, now time.Time) {
	if since, ok := s.PauseStartedAt(); ok {
		if d := now.Sub(since); d > 0 {
			s.PausedTotal += d
		}
	}
}

func resumeSession(s *domain.Session, now time.Time) error {
	if _, ok := s.Phase.(domain.Paused); !ok {
		return domain.IllegalTransition(s, domain.EventResume)
	}
	foldPause(s, now)
	s.Phase = domain.Running{}
	s.UpdatedAt = now
	return nil
}

func clockOutSession(s *domain.Session, note string, now time.Time) error {
	if !s.Status().Open() {
		return domain.IllegalTransition(s, domain.EventClockOut)
	}
	foldPause(s, now)
	s.Phase = domain.Stopped{At: now}
	if note != "" {
		s.Note = note
	}
	s.UpdatedAt = now
	return nil
}

func adjustSession(s *domain.Session, delta time.Duration, now time.Time) (*domain.AdjustmentResult, error) {
	switch s.Phase.(type) {
	case domain.Stopped, domain.Confirmed:
	default:
		return nil, domain.IllegalTransition(s, domain.EventAdjust)
	}
	applied, clamped := accounting.ClampAdjustment(s, delta, now)
	if s.Adjustment+applied > accounting.MaxDuration {
		return nil, fmt.Errorf("%w: total adjustment would exceed %s", domain.ErrInvalidInput, accounting.FormatDuration(accounting.MaxDuration))
	}
	s.Adjustment += applied
	s.UpdatedAt = now
	return &domain.AdjustmentResult{
		RequestedMs: delta.Milliseconds(),
		AppliedMs:   applied.Milliseconds(),
		Clamped:     clamped,
	}, nil
}

func confirmSession(s *domain.Session, now time.Time) error {
	p, ok := s.Phase.(domain.Stopped)
	if !ok {
		return domain.IllegalTransition(s, domain.EventConfirm)
	}
	s.Phase = domain.Confirmed{StoppedAt: p.At, ConfirmedAt: now}
	s.UpdatedAt = now
	return nil
}

func reopenSession(s *domain.Session, now time.Time) error {
	p, ok := s.Phase.(domain.Confirmed)
	if !ok {
		return domain.IllegalTransition(s, domain.EventReopen)
	}
	s.Phase = domain.Stopped{At: p.StoppedAt}
	s.UpdatedAt = now
	return nil
}

func editSessionGoal(s *domain.Session, goal string, now time.Time) {
	s.Goal = goal
	s.UpdatedAt = now
}
