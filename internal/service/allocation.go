package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/repository"
)

// maxTargetMinutes is the number of minutes in a week.
const maxTargetMinutes = 7 * 24 * 60

// SetAllocation sets the weekly target for subject in the current week,
// replacing any earlier target for that week. Other weeks are untouched.
func (s *Service) SetAllocation(ctx context.Context, inv domain.Invocation, subject string, minutes int) (*domain.Outcome, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" || len(subject) > maxSubjectLength {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInvalidInput)
	}
	if minutes < 0 || minutes > maxTargetMinutes {
		return nil, fmt.Errorf("%w: %d minutes", domain.ErrInvalidTarget, minutes)
	}

	return s.mutate(ctx, inv, domain.EventSetAllocation, func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error) {
		a := &domain.Allocation{
			ID:            s.newID(),
			UserID:        inv.UserID,
			Subject:       subject,
			Week:          s.anchor().WindowAt(now).Key(),
			TargetMinutes: minutes,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.UpsertAllocation(ctx, a); err != nil {
			return nil, fmt.Errorf("failed to upsert allocation: %w", err)
		}
		return &domain.Outcome{Allocation: a}, nil
	})
}

// Progress reports the user's allocation progress for the current week. Every
// subject with a target or with a session started this week is listed;
// accumulated time counts only sessions whose status the policy counts.
func (s *Service) Progress(ctx context.Context, owner string) (*domain.Progress, error) {
	now := s.now()
	window := s.anchor().WindowAt(now)

	counted, err := s.policyEngine.CountedStatuses(ctx, s.config.CountUnconfirmed)
	if err != nil {
		return nil, err
	}
	countable := make(map[domain.SessionStatus]bool, len(counted))
	for _, st := range counted {
		countable[st] = true
	}

	var (
		allocations []domain.Allocation
		sessions    []domain.Session
	)
	err = s.store.Snapshot(ctx, func(ctx context.Context, r repository.Reader) error {
		var err error
		if allocations, err = r.ListAllocations(ctx, owner, window.Key()); err != nil {
			return fmt.Errorf("failed to list allocations: %w", err)
		}
		if sessions, err = r.ListSessionsStartedBetween(ctx, owner, window.Start, window.End); err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	type tally struct {
		row   domain.SubjectProgress
		total time.Duration
	}
	bySubject := make(map[string]*tally)
	var order []string
	get := func(subject string) *tally {
		t, ok := bySubject[subject]
		if !ok {
			t = &tally{row: domain.SubjectProgress{Subject: subject}}
			bySubject[subject] = t
			order = append(order, subject)
		}
		return t
	}

	for _, a := range allocations {
		t := get(a.Subject)
		t.row.HasTarget = true
		t.row.TargetMinutes = a.TargetMinutes
	}
	for i := range sessions {
		sess := &sessions[i]
		t := get(sess.Subject)
		if !countable[sess.Status()] {
			continue
		}
		t.total += accounting.Elapsed(sess, now)
		t.row.SessionsCounted++
	}

	out := &domain.Progress{
		UserID:    owner,
		Week:      window.Key(),
		WeekStart: window.Start,
		WeekEnd:   window.End,
		At:        now,
		Subjects:  make([]domain.SubjectProgress, 0, len(order)),
	}
	for _, subject := range order {
		t := bySubject[subject]
		t.row.AccumulatedMinutes = int(t.total / time.Minute)
		out.Subjects = append(out.Subjects, t.row)
	}
	// Targets first, largest first, then untargeted subjects by name.
	sort.SliceStable(out.Subjects, func(i, j int) bool {
		a, b := out.Subjects[i], out.Subjects[j]
		if a.HasTarget != b.HasTarget {
			return a.HasTarget
		}
		if a.TargetMinutes != b.TargetMinutes {
			return a.TargetMinutes > b.TargetMinutes
		}
		return a.Subject < b.Subject
	})
	return out, nil
}
