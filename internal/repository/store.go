// Package repository defines the storage interface and implementations.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/domain"
)

// Reader holds the read operations shared by the store and its transactions.
// Lookups return (nil, nil) when nothing matches.
type Reader interface {
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOpenSession(ctx context.Context, userID string) (*domain.Session, error)
	GetLatestSession(ctx context.Context, userID string) (*domain.Session, error)
	ListSessionsStartedBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Session, error)
	ListAllocations(ctx context.Context, userID string, week string) ([]domain.Allocation, error)
}

// Tx is a single all-or-nothing unit of work. Session reads inside a Tx hold
// the owner's rows until the transaction ends.
type Tx interface {
	Reader

	// LockOwner serializes this transaction against every other transaction
	// that locks the same owner, until commit or rollback.
	LockOwner(ctx context.Context, userID string) error

	// CreateSession fails with domain.ErrDuplicateSession when the owner
	// already has an open session.
	CreateSession(ctx context.Context, session *domain.Session) error
	// UpdateSession writes the session if its stored version still equals
	// session.Version, then bumps the version. A stale version fails with
	// domain.ErrTransactionConflict.
	UpdateSession(ctx context.Context, session *domain.Session) error

	UpsertAllocation(ctx context.Context, allocation *domain.Allocation) error

	GetInteraction(ctx context.Context, interactionID string) (*domain.InteractionRecord, error)
	SaveInteraction(ctx context.Context, record *domain.InteractionRecord) error
	// PruneInteractions removes the owner's records older than before and
	// anything beyond the newest keep records.
	PruneInteractions(ctx context.Context, userID string, before time.Time, keep int) (int64, error)
}

// Store defines the interface for data persistence.
type Store interface {
	Reader

	// WithinTx runs fn in one transaction. The transaction commits only if
	// fn returns nil; a cancelled ctx rolls it back.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// Snapshot runs fn in a read-only transaction so that every read it
	// makes sees the same committed state.
	Snapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error

	// Lifecycle
	Close() error
}

// Open returns the store selected by the configuration.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.StoreDriver {
	case "", config.DriverSQLite:
		return NewSQLiteStore(cfg.DatabaseURL)
	case config.DriverPostgres:
		return NewPostgresStore(cfg.DatabaseURL)
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func msToTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullableMs(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func nullableTime(ms *int64) *time.Time {
	if ms == nil {
		return nil
	}
	t := msToTime(*ms)
	return &t
}
