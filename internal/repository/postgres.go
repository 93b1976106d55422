package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/radhhh/flae-bot/internal/domain"
)

// PostgreSQL error codes the store reacts to.
const (
	PgErrUniqueViolation      = "23505" // unique_violation
	PgErrSerializationFailure = "40001" // serialization_failure
	PgErrDeadlockDetected     = "40P01" // deadlock_detected
	PgErrLockNotAvailable     = "55P03" // lock_not_available
)

const connectAttempts = 5

type sessionModel struct {
	ID             string  `gorm:"column:session_id;primaryKey;type:varchar(64)"`
	UserID         string  `gorm:"column:user_id;type:varchar(64);not null;index:idx_sessions_user_started,priority:1"`
	Subject        string  `gorm:"column:subject;type:varchar(100);not null"`
	Goal           *string `gorm:"column:goal;type:text"`
	Note           *string `gorm:"column:note;type:text"`
	Status         string  `gorm:"column:status;type:varchar(24);not null"`
	StartedAt      int64   `gorm:"column:started_at;not null;index:idx_sessions_user_started,priority:2"`
	PausedTotalMs  int64   `gorm:"column:paused_total_ms;not null;default:0;check:paused_total_ms >= 0"`
	AdjustmentMs   int64   `gorm:"column:adjustment_ms;not null;default:0"`
	PauseStartedAt *int64  `gorm:"column:pause_started_at"`
	StoppedAt      *int64  `gorm:"column:stopped_at"`
	ConfirmedAt    *int64  `gorm:"column:confirmed_at"`
	Version        int64   `gorm:"column:version;not null;default:1"`
	CreatedAt      int64   `gorm:"column:created_at;autoCreateTime:false;not null"`
	UpdatedAt      int64   `gorm:"column:updated_at;autoUpdateTime:false;not null"`
}

func (sessionModel) TableName() string { return "sessions" }

type allocationModel struct {
	ID            string `gorm:"column:allocation_id;primaryKey;type:varchar(64)"`
	UserID        string `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_allocations_owner_week,priority:1"`
	Subject       string `gorm:"column:subject;type:varchar(100);not null;uniqueIndex:idx_allocations_owner_week,priority:2"`
	Week          string `gorm:"column:week;type:varchar(10);not null;uniqueIndex:idx_allocations_owner_week,priority:3"`
	TargetMinutes int    `gorm:"column:target_minutes;not null;check:target_minutes >= 0"`
	CreatedAt     int64  `gorm:"column:created_at;autoCreateTime:false;not null"`
	UpdatedAt     int64  `gorm:"column:updated_at;autoUpdateTime:false;not null"`
}

func (allocationModel) TableName() string { return "allocations" }

// Outcome is kept as TEXT: jsonb would reorder keys and break the fingerprint.
type interactionModel struct {
	ID          string `gorm:"column:interaction_id;primaryKey;type:varchar(64)"`
	UserID      string `gorm:"column:user_id;type:varchar(64);not null;index:idx_interactions_user_created,priority:1"`
	Action      string `gorm:"column:action;type:varchar(24);not null"`
	Fingerprint string `gorm:"column:fingerprint;type:char(64);not null"`
	Outcome     string `gorm:"column:outcome;type:text;not null"`
	CreatedAt   int64  `gorm:"column:created_at;autoCreateTime:false;not null;index:idx_interactions_user_created,priority:2"`
}

func (interactionModel) TableName() string { return "interactions" }

// PostgresStore implements Store on PostgreSQL through gorm. Reads inside a
// transaction take row locks (SELECT ... FOR UPDATE).
type PostgresStore struct {
	pgQueries
}

type pgQueries struct {
	db   *gorm.DB
	lock bool
}

// NewPostgresStore connects to PostgreSQL and migrates the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := range connectAttempts {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
		if err == nil {
			break
		}
		log.Printf("WARN: postgres connection attempt %d failed: %v", i+1, err)
		time.Sleep(time.Duration(i+1) * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	s := &PostgresStore{pgQueries{db: db}}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate() error {
	if err := s.db.AutoMigrate(&sessionModel{}, &allocationModel{}, &interactionModel{}); err != nil {
		return err
	}
	// gorm tags cannot express a partial index.
	return s.db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON sessions(user_id) WHERE status IN ('ACTIVE', 'PAUSED')`).Error
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithinTx runs fn inside a transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, pgQueries{db: tx, lock: true})
	})
	return translatePgErr(err)
}

// Snapshot runs fn inside a read-only repeatable read transaction.
func (s *PostgresStore) Snapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, pgQueries{db: tx})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	return translatePgErr(err)
}

// LockOwner takes a transaction-scoped advisory lock on the owner.
func (q pgQueries) LockOwner(ctx context.Context, userID string) error {
	return translatePgErr(q.db.WithContext(ctx).Exec(`SELECT pg_advisory_xact_lock(hashtext(?))`, userID).Error)
}

func (q pgQueries) query(ctx context.Context) *gorm.DB {
	db := q.db.WithContext(ctx)
	if q.lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

func (q pgQueries) first(ctx context.Context, where string, args ...interface{}) (*domain.Session, error) {
	var m sessionModel
	err := q.query(ctx).Where(where, args...).Order("started_at DESC, created_at DESC").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr(err)
	}
	return m.toDomain()
}

// GetSession retrieves a session by ID.
func (q pgQueries) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return q.first(ctx, "session_id = ?", sessionID)
}

// GetOpenSession retrieves the owner's active or paused session.
func (q pgQueries) GetOpenSession(ctx context.Context, userID string) (*domain.Session, error) {
	return q.first(ctx, "user_id = ? AND status IN ?", userID,
		[]string{string(domain.SessionStatusActive), string(domain.SessionStatusPaused)})
}

// GetLatestSession retrieves the owner's most recently started session.
func (q pgQueries) GetLatestSession(ctx context.Context, userID string) (*domain.Session, error) {
	return q.first(ctx, "user_id = ?", userID)
}

// ListSessionsStartedBetween lists the owner's sessions started in [from, to).
func (q pgQueries) ListSessionsStartedBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Session, error) {
	var rows []sessionModel
	err := q.db.WithContext(ctx).
		Where("user_id = ? AND started_at >= ? AND started_at < ?", userID, from.UnixMilli(), to.UnixMilli()).
		Order("started_at ASC").Find(&rows).Error
	if err != nil {
		return nil, translatePgErr(err)
	}
	out := make([]domain.Session, 0, len(rows))
	for _, m := range rows {
		s, err := m.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

// CreateSession inserts a new session.
func (q pgQueries) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.Version == 0 {
		session.Version = 1
	}
	m := sessionFromDomain(session)
	err := q.db.WithContext(ctx).Create(&m).Error
	if isPgUnique(err) {
		return domain.ErrDuplicateSession
	}
	return translatePgErr(err)
}

// UpdateSession writes a session guarded by its version.
func (q pgQueries) UpdateSession(ctx context.Context, session *domain.Session) error {
	m := sessionFromDomain(session)
	res := q.db.WithContext(ctx).Model(&sessionModel{}).
		Where("session_id = ? AND version = ?", session.ID, session.Version).
		Updates(map[string]interface{}{
			"subject":          m.Subject,
			"goal":             m.Goal,
			"note":             m.Note,
			"status":           m.Status,
			"started_at":       m.StartedAt,
			"paused_total_ms":  m.PausedTotalMs,
			"adjustment_ms":    m.AdjustmentMs,
			"pause_started_at": m.PauseStartedAt,
			"stopped_at":       m.StoppedAt,
			"confirmed_at":     m.ConfirmedAt,
			"updated_at":       m.UpdatedAt,
			"version":          gorm.Expr("version + 1"),
		})
	if isPgUnique(res.Error) {
		return domain.ErrDuplicateSession
	}
	if res.Error != nil {
		return translatePgErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: session %s changed concurrently", domain.ErrTransactionConflict, session.ID)
	}
	session.Version++
	return nil
}

// ListAllocations lists the owner's allocations for a week.
func (q pgQueries) ListAllocations(ctx context.Context, userID string, week string) ([]domain.Allocation, error) {
	var rows []allocationModel
	err := q.db.WithContext(ctx).Where("user_id = ? AND week = ?", userID, week).
		Order("target_minutes DESC, subject ASC").Find(&rows).Error
	if err != nil {
		return nil, translatePgErr(err)
	}
	out := make([]domain.Allocation, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// UpsertAllocation creates or replaces the target for (owner, subject, week).
func (q pgQueries) UpsertAllocation(ctx context.Context, a *domain.Allocation) error {
	m := allocationModel{
		ID:            a.ID,
		UserID:        a.UserID,
		Subject:       a.Subject,
		Week:          a.Week,
		TargetMinutes: a.TargetMinutes,
		CreatedAt:     a.CreatedAt.UnixMilli(),
		UpdatedAt:     a.UpdatedAt.UnixMilli(),
	}
	err := q.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "subject"}, {Name: "week"}},
		DoUpdates: clause.AssignmentColumns([]string{"target_minutes", "updated_at"}),
	}).Create(&m).Error
	if err != nil {
		return translatePgErr(err)
	}

	var stored allocationModel
	err = q.db.WithContext(ctx).Where("user_id = ? AND subject = ? AND week = ?", a.UserID, a.Subject, a.Week).
		First(&stored).Error
	if err != nil {
		return translatePgErr(err)
	}
	a.ID = stored.ID
	a.CreatedAt = msToTime(stored.CreatedAt)
	return nil
}

// GetInteraction retrieves an idempotency record.
func (q pgQueries) GetInteraction(ctx context.Context, interactionID string) (*domain.InteractionRecord, error) {
	var m interactionModel
	err := q.db.WithContext(ctx).Where("interaction_id = ?", interactionID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translatePgErr(err)
	}
	return &domain.InteractionRecord{
		InteractionID: m.ID,
		UserID:        m.UserID,
		Action:        domain.Event(m.Action),
		Fingerprint:   m.Fingerprint,
		Outcome:       []byte(m.Outcome),
		CreatedAt:     msToTime(m.CreatedAt),
	}, nil
}

// SaveInteraction inserts an idempotency record.
func (q pgQueries) SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) error {
	err := q.db.WithContext(ctx).Create(&interactionModel{
		ID:          rec.InteractionID,
		UserID:      rec.UserID,
		Action:      string(rec.Action),
		Fingerprint: rec.Fingerprint,
		Outcome:     string(rec.Outcome),
		CreatedAt:   rec.CreatedAt.UnixMilli(),
	}).Error
	if isPgUnique(err) {
		return fmt.Errorf("%w: interaction %s recorded concurrently", domain.ErrTransactionConflict, rec.InteractionID)
	}
	return translatePgErr(err)
}

// PruneInteractions removes expired and surplus idempotency records for an owner.
func (q pgQueries) PruneInteractions(ctx context.Context, userID string, before time.Time, keep int) (int64, error) {
	res := q.db.WithContext(ctx).Exec(
		`DELETE FROM interactions WHERE user_id = ? AND (created_at < ? OR interaction_id NOT IN (
			SELECT interaction_id FROM interactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?))`,
		userID, before.UnixMilli(), userID, keep)
	if res.Error != nil {
		return 0, translatePgErr(res.Error)
	}
	return res.RowsAffected, nil
}

func sessionFromDomain(s *domain.Session) sessionModel {
	pause, stop, confirm := domain.PhaseColumns(s.Phase)
	return sessionModel{
		ID:             s.ID,
		UserID:         s.UserID,
		Subject:        s.Subject,
		Goal:           optionalString(s.Goal),
		Note:           optionalString(s.Note),
		Status:         string(s.Status()),
		StartedAt:      s.StartedAt.UnixMilli(),
		PausedTotalMs:  s.PausedTotal.Milliseconds(),
		AdjustmentMs:   s.Adjustment.Milliseconds(),
		PauseStartedAt: nullableMs(pause),
		StoppedAt:      nullableMs(stop),
		ConfirmedAt:    nullableMs(confirm),
		Version:        s.Version,
		CreatedAt:      s.CreatedAt.UnixMilli(),
		UpdatedAt:      s.UpdatedAt.UnixMilli(),
	}
}

func (m sessionModel) toDomain() (*domain.Session, error) {
	phase, err := domain.NewPhase(domain.SessionStatus(m.Status),
		nullableTime(m.PauseStartedAt), nullableTime(m.StoppedAt), nullableTime(m.ConfirmedAt))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", m.ID, err)
	}
	s := &domain.Session{
		ID:          m.ID,
		UserID:      m.UserID,
		Subject:     m.Subject,
		StartedAt:   msToTime(m.StartedAt),
		PausedTotal: msToDuration(m.PausedTotalMs),
		Adjustment:  msToDuration(m.AdjustmentMs),
		Phase:       phase,
		Version:     m.Version,
		CreatedAt:   msToTime(m.CreatedAt),
		UpdatedAt:   msToTime(m.UpdatedAt),
	}
	if m.Goal != nil {
		s.Goal = *m.Goal
	}
	if m.Note != nil {
		s.Note = *m.Note
	}
	return s, nil
}

func (m allocationModel) toDomain() domain.Allocation {
	return domain.Allocation{
		ID:            m.ID,
		UserID:        m.UserID,
		Subject:       m.Subject,
		Week:          m.Week,
		TargetMinutes: m.TargetMinutes,
		CreatedAt:     msToTime(m.CreatedAt),
		UpdatedAt:     msToTime(m.UpdatedAt),
	}
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isPgUnique(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == PgErrUniqueViolation
}

// translatePgErr maps serialization failures, deadlocks and lock timeouts
// onto domain.ErrTransactionConflict.
func translatePgErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case PgErrSerializationFailure, PgErrDeadlockDetected, PgErrLockNotAvailable:
			return fmt.Errorf("%w: %s", domain.ErrTransactionConflict, pgErr.Message)
		}
	}
	return err
}
