package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/repository"
	"github.com/radhhh/flae-bot/policy"
)

const (
	maxSubjectLength = 100
	maxTextLength    = 500
)

// ClockIn starts a new active session for the invoking user.
func (s *Service) ClockIn(ctx context.Context, inv domain.Invocation, subject, goal string) (*domain.Outcome, error) {
	subject = strings.TrimSpace(subject)
	goal = strings.TrimSpace(goal)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	if len(subject) > maxSubjectLength || len(goal) > maxTextLength {
		return nil, fmt.Errorf("%w: subject or goal too long", domain.ErrInvalidInput)
	}

	return s.mutate(ctx, inv, domain.EventClockIn, func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error) {
		existing, err := tx.GetOpenSession(ctx, inv.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to get open session: %w", err)
		}
		if existing != nil {
			return nil, &domain.DuplicateSessionError{Existing: existing}
		}

		sess := startSession(s.newID(), inv.UserID, subject, goal, now)
		if err := tx.CreateSession(ctx, sess); err != nil {
			if errors.Is(err, domain.ErrDuplicateSession) {
				// Lost a race on the open-session index; retry to report the winner.
				return nil, fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
			}
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		return &domain.Outcome{Session: sess}, nil
	})
}

// Pause pauses the target session, or the user's open session when sessionID is empty.
func (s *Service) Pause(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error) {
	return s.transition(ctx, inv, domain.EventPause, sessionID, true, func(sess *domain.Session, now time.Time) error {
		return pauseSession(sess, now)
	})
}

// Resume resumes the target session, or the user's open session when sessionID is empty.
func (s *Service) Resume(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error) {
	return s.transition(ctx, inv, domain.EventResume, sessionID, true, func(sess *domain.Session, now time.Time) error {
		return resumeSession(sess, now)
	})
}

// ClockOut stops the target session, or the user's open session when sessionID is empty.
func (s *Service) ClockOut(ctx context.Context, inv domain.Invocation, sessionID, note string) (*domain.Outcome, error) {
	note = strings.TrimSpace(note)
	if len(note) > maxTextLength {
		return nil, fmt.Errorf("%w: note too long", domain.ErrInvalidInput)
	}
	return s.transition(ctx, inv, domain.EventClockOut, sessionID, true, func(sess *domain.Session, now time.Time) error {
		return clockOutSession(sess, note, now)
	})
}

// Adjust adds delta to the manual adjustment of a stopped or confirmed
// session. A delta that would make effective time negative is clamped, and the
// outcome reports both the requested and the applied value.
func (s *Service) Adjust(ctx context.Context, inv domain.Invocation, sessionID string, delta time.Duration) (*domain.Outcome, error) {
	if delta > accounting.MaxDuration || delta < -accounting.MaxDuration {
		return nil, fmt.Errorf("%w: adjustment exceeds %s", domain.ErrInvalidInput, accounting.FormatDuration(accounting.MaxDuration))
	}
	return s.adjust(ctx, inv, sessionID, func(sess *domain.Session, now time.Time) time.Duration {
		return delta
	})
}

// AdjustTo adjusts a stopped or confirmed session so its effective time equals target.
func (s *Service) AdjustTo(ctx context.Context, inv domain.Invocation, sessionID string, target time.Duration) (*domain.Outcome, error) {
	if target < 0 {
		return nil, fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidInput)
	}
	if target > accounting.MaxDuration {
		return nil, fmt.Errorf("%w: duration exceeds %s", domain.ErrInvalidInput, accounting.FormatDuration(accounting.MaxDuration))
	}
	return s.adjust(ctx, inv, sessionID, func(sess *domain.Session, now time.Time) time.Duration {
		return accounting.AdjustmentFor(sess, target, now)
	})
}

func (s *Service) adjust(ctx context.Context, inv domain.Invocation, sessionID string, delta func(*domain.Session, time.Time) time.Duration) (*domain.Outcome, error) {
	return s.mutate(ctx, inv, domain.EventAdjust, func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error) {
		sess, err := s.resolve(ctx, tx, inv, domain.EventAdjust, sessionID, false)
		if err != nil {
			return nil, err
		}
		result, err := adjustSession(sess, delta(sess, now), now)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		return &domain.Outcome{Session: sess, Adjustment: result}, nil
	})
}

// Confirm finalizes a stopped session so it counts toward allocations.
func (s *Service) Confirm(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error) {
	return s.transition(ctx, inv, domain.EventConfirm, sessionID, false, func(sess *domain.Session, now time.Time) error {
		return confirmSession(sess, now)
	})
}

// Reopen returns a confirmed session to the stopped state, subject to the
// configured reopen window.
func (s *Service) Reopen(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error) {
	return s.mutate(ctx, inv, domain.EventReopen, func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error) {
		sess, err := s.resolve(ctx, tx, inv, domain.EventReopen, sessionID, false)
		if err != nil {
			return nil, err
		}
		confirmedAt, ok := sess.ConfirmedAt()
		if !ok {
			return nil, domain.IllegalTransition(sess, domain.EventReopen)
		}

		window := s.anchor().WindowAt(now)
		allowed, err := s.policyEngine.AllowReopen(ctx, policy.ReopenInput{
			Window:      s.config.ReopenWindow,
			StartedAt:   sess.StartedAt,
			ConfirmedAt: confirmedAt,
			Now:         now,
			WeekStart:   window.Start,
			WeekEnd:     window.End,
		})
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, &domain.TransitionError{From: sess.Status(), Event: domain.EventReopen, Session: sess.Clone(), Cause: domain.ErrReopenNotAllowed}
		}

		if err := reopenSession(sess, now); err != nil {
			return nil, err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		return &domain.Outcome{Session: sess}, nil
	})
}

// EditGoal replaces the goal of a session in any state.
func (s *Service) EditGoal(ctx context.Context, inv domain.Invocation, sessionID, goal string) (*domain.Outcome, error) {
	goal = strings.TrimSpace(goal)
	if len(goal) > maxTextLength {
		return nil, fmt.Errorf("%w: goal too long", domain.ErrInvalidInput)
	}
	return s.transition(ctx, inv, domain.EventEditGoal, sessionID, false, func(sess *domain.Session, now time.Time) error {
		editSessionGoal(sess, goal, now)
		return nil
	})
}

// Status returns the user's open session, or their latest one when none is
// open. It fails with domain.ErrNotFound when the user has no sessions.
func (s *Service) Status(ctx context.Context, owner string) (*domain.Outcome, error) {
	now := s.now()
	var sess *domain.Session
	err := s.store.Snapshot(ctx, func(ctx context.Context, r repository.Reader) error {
		var err error
		if sess, err = r.GetOpenSession(ctx, owner); err != nil {
			return fmt.Errorf("failed to get open session: %w", err)
		}
		if sess == nil {
			if sess, err = r.GetLatestSession(ctx, owner); err != nil {
				return fmt.Errorf("failed to get latest session: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, domain.ErrNotFound
	}
	return &domain.Outcome{At: now, Session: sess}, nil
}

// transition applies a state change to the resolved session and writes it back.
func (s *Service) transition(ctx context.Context, inv domain.Invocation, event domain.Event, sessionID string, openOnly bool, apply func(*domain.Session, time.Time) error) (*domain.Outcome, error) {
	return s.mutate(ctx, inv, event, func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error) {
		sess, err := s.resolve(ctx, tx, inv, event, sessionID, openOnly)
		if err != nil {
			return nil, err
		}
		if err := apply(sess, now); err != nil {
			return nil, err
		}
		if err := tx.UpdateSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to update session: %w", err)
		}
		return &domain.Outcome{Session: sess}, nil
	})
}

// resolve loads the session an event applies to. An explicit sessionID must
// belong to the invoking user; a foreign or unknown id is reported as not
// found. Without an id, the user's open session is used, falling back to the
// latest session unless openOnly is set.
func (s *Service) resolve(ctx context.Context, tx repository.Tx, inv domain.Invocation, event domain.Event, sessionID string, openOnly bool) (*domain.Session, error) {
	if sessionID != "" {
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get session: %w", err)
		}
		if sess == nil || sess.UserID != inv.UserID {
			return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
		}
		return sess, nil
	}

	sess, err := tx.GetOpenSession(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}
	if sess != nil {
		return sess, nil
	}
	if openOnly {
		return nil, &domain.NoActiveSessionError{Event: event}
	}

	sess, err = tx.GetLatestSession(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	if sess == nil {
		return nil, &domain.NoActiveSessionError{Event: event}
	}
	return sess, nil
}

// Session returns one of the owner's sessions. A session owned by someone
// else is reported as domain.ErrNotFound.
func (s *Service) Session(ctx context.Context, owner, sessionID string) (*domain.Outcome, error) {
	now := s.now()
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess == nil || sess.UserID != owner {
		return nil, fmt.Errorf("%w: session %s", domain.ErrNotFound, sessionID)
	}
	return &domain.Outcome{At: now, Session: sess}, nil
}
