package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/repository"
)

// maxAttempts bounds how often a conflicting transaction is re-run.
const maxAttempts = 3

// mutation applies one operation inside a transaction and returns its outcome.
type mutation func(ctx context.Context, tx repository.Tx, now time.Time) (*domain.Outcome, error)

// mutate runs fn for inv with idempotency and conflict retry. A previously
// applied invocation id replays its stored outcome without calling fn.
func (s *Service) mutate(ctx context.Context, inv domain.Invocation, action domain.Event, fn mutation) (*domain.Outcome, error) {
	if inv.UserID == "" {
		return nil, fmt.Errorf("%w: missing user", domain.ErrInvalidInput)
	}

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var out *domain.Outcome
		out, err = s.mutateOnce(ctx, inv, action, fn)
		if !errors.Is(err, domain.ErrTransactionConflict) {
			return out, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("WARN: %s for user %s conflicted (attempt %d/%d): %v", action, inv.UserID, attempt, maxAttempts, err)
	}
	return nil, err
}

func (s *Service) mutateOnce(ctx context.Context, inv domain.Invocation, action domain.Event, fn mutation) (*domain.Outcome, error) {
	now := s.now()
	var out *domain.Outcome

	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.LockOwner(ctx, inv.UserID); err != nil {
			return fmt.Errorf("failed to lock owner: %w", err)
		}
		if inv.ID != "" {
			rec, err := tx.GetInteraction(ctx, inv.ID)
			if err != nil {
				return fmt.Errorf("failed to get interaction: %w", err)
			}
			if rec != nil {
				if rec.UserID != inv.UserID || rec.Action != action {
					return fmt.Errorf("%w: interaction %s was already used for another action", domain.ErrInvalidInput, inv.ID)
				}
				replay, err := rec.DecodeOutcome()
				if err != nil {
					return err
				}
				out = replay
				return nil
			}
		}

		o, err := fn(ctx, tx, now)
		if err != nil {
			return err
		}
		o.InteractionID = inv.ID
		o.Action = action
		o.At = now

		if inv.ID != "" {
			rec, err := domain.NewInteractionRecord(inv, o, now)
			if err != nil {
				return err
			}
			if err := tx.SaveInteraction(ctx, rec); err != nil {
				return fmt.Errorf("failed to save interaction: %w", err)
			}
			if err := s.pruneInteractions(ctx, tx, inv.UserID, now); err != nil {
				return err
			}
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pruneInteractions drops the owner's idempotency records that are past
// retention or beyond the per-owner cap.
func (s *Service) pruneInteractions(ctx context.Context, tx repository.Tx, owner string, now time.Time) error {
	before := now.Add(-s.config.IdempotencyRetention)
	if _, err := tx.PruneInteractions(ctx, owner, before, s.config.IdempotencyMaxRecords); err != nil {
		return fmt.Errorf("failed to prune interactions: %w", err)
	}
	return nil
}
