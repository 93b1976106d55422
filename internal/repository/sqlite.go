package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/radhhh/flae-bot/internal/domain"
)

// SQLiteStore implements Store using SQLite.
//
// Transactions are opened with BEGIN IMMEDIATE, which takes the database
// write lock up front: two invocations for the same owner serialize on it and
// the later one reads the state the earlier one committed.
type SQLiteStore struct {
	sqliteQueries
	db *sql.DB
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type sqliteQueries struct {
	q queryer
}

type sqliteTx struct {
	sqliteQueries
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{sqliteQueries: sqliteQueries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "file:flae.db?mode=rwc"
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_txlock=") {
		dsn += sep + "_txlock=immediate"
		sep = "&"
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		dsn += sep + "_busy_timeout=5000"
	}
	return dsn
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			goal TEXT,
			note TEXT,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			paused_total_ms INTEGER NOT NULL DEFAULT 0 CHECK (paused_total_ms >= 0),
			adjustment_ms INTEGER NOT NULL DEFAULT 0,
			pause_started_at INTEGER,
			stopped_at INTEGER,
			confirmed_at INTEGER,
			version INTEGER NOT NULL DEFAULT 1,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		// At most one open session per owner.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_one_open ON sessions(user_id) WHERE status IN ('ACTIVE', 'PAUSED')`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON sessions(user_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS allocations (
			allocation_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			subject TEXT NOT NULL,
			week TEXT NOT NULL,
			target_minutes INTEGER NOT NULL CHECK (target_minutes >= 0),
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			UNIQUE (user_id, subject, week)
		)`,
		`CREATE TABLE IF NOT EXISTS interactions (
			interaction_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			action TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			outcome TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_user_created ON interactions(user_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithinTx runs fn inside a transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translateSQLiteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	if err := fn(ctx, &sqliteTx{sqliteQueries{q: tx}}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translateSQLiteErr(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// Snapshot runs fn inside a read-only transaction.
func (s *SQLiteStore) Snapshot(ctx context.Context, fn func(ctx context.Context, r Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return translateSQLiteErr(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, sqliteQueries{q: tx})
}

// LockOwner is a no-op: BEGIN IMMEDIATE already holds the database write lock.
func (t *sqliteTx) LockOwner(ctx context.Context, userID string) error {
	return nil
}

const sessionColumns = `session_id, user_id, subject, goal, note, status, started_at, paused_total_ms, adjustment_ms,
	pause_started_at, stopped_at, confirmed_at, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                            domain.Session
		goal, note                      sql.NullString
		status                          string
		startedAt, pausedMs, adjustMs   int64
		pauseStarted, stopped, confirmd sql.NullInt64
		createdAt, updatedAt            int64
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Subject, &goal, &note, &status, &startedAt, &pausedMs, &adjustMs,
		&pauseStarted, &stopped, &confirmd, &sess.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	phase, err := domain.NewPhase(domain.SessionStatus(status), nullInt(pauseStarted), nullInt(stopped), nullInt(confirmd))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", sess.ID, err)
	}
	sess.Goal = goal.String
	sess.Note = note.String
	sess.StartedAt = msToTime(startedAt)
	sess.PausedTotal = msToDuration(pausedMs)
	sess.Adjustment = msToDuration(adjustMs)
	sess.Phase = phase
	sess.CreatedAt = msToTime(createdAt)
	sess.UpdatedAt = msToTime(updatedAt)
	return &sess, nil
}

func nullInt(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := msToTime(v.Int64)
	return &t
}

func (s sqliteQueries) getSession(ctx context.Context, query string, args ...interface{}) (*domain.Session, error) {
	sess, err := scanSession(s.q.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	return sess, nil
}

// GetSession retrieves a session by ID.
func (s sqliteQueries) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.getSession(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
}

// GetOpenSession retrieves the owner's active or paused session.
func (s sqliteQueries) GetOpenSession(ctx context.Context, userID string) (*domain.Session, error) {
	return s.getSession(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND status IN ('ACTIVE', 'PAUSED')`,
		userID)
}

// GetLatestSession retrieves the owner's most recently started session.
func (s sqliteQueries) GetLatestSession(ctx context.Context, userID string) (*domain.Session, error) {
	return s.getSession(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY started_at DESC, created_at DESC LIMIT 1`,
		userID)
}

// ListSessionsStartedBetween lists the owner's sessions started in [from, to).
func (s sqliteQueries) ListSessionsStartedBetween(ctx context.Context, userID string, from, to time.Time) ([]domain.Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? AND started_at >= ? AND started_at < ? ORDER BY started_at ASC`,
		userID, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// CreateSession inserts a new session.
func (s sqliteQueries) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.Version == 0 {
		session.Version = 1
	}
	pause, stop, confirm := domain.PhaseColumns(session.Phase)
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Subject, nullString(session.Goal), nullString(session.Note),
		string(session.Status()), session.StartedAt.UnixMilli(), session.PausedTotal.Milliseconds(),
		session.Adjustment.Milliseconds(), nullableMs(pause), nullableMs(stop), nullableMs(confirm),
		session.Version, session.CreatedAt.UnixMilli(), session.UpdatedAt.UnixMilli())
	if isSQLiteUnique(err) {
		return domain.ErrDuplicateSession
	}
	return translateSQLiteErr(err)
}

// UpdateSession writes a session guarded by its version.
func (s sqliteQueries) UpdateSession(ctx context.Context, session *domain.Session) error {
	pause, stop, confirm := domain.PhaseColumns(session.Phase)
	res, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET subject = ?, goal = ?, note = ?, status = ?, started_at = ?, paused_total_ms = ?,
			adjustment_ms = ?, pause_started_at = ?, stopped_at = ?, confirmed_at = ?, updated_at = ?, version = version + 1
		 WHERE session_id = ? AND version = ?`,
		session.Subject, nullString(session.Goal), nullString(session.Note), string(session.Status()),
		session.StartedAt.UnixMilli(), session.PausedTotal.Milliseconds(), session.Adjustment.Milliseconds(),
		nullableMs(pause), nullableMs(stop), nullableMs(confirm), session.UpdatedAt.UnixMilli(),
		session.ID, session.Version)
	if isSQLiteUnique(err) {
		return domain.ErrDuplicateSession
	}
	if err != nil {
		return translateSQLiteErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: session %s changed concurrently", domain.ErrTransactionConflict, session.ID)
	}
	session.Version++
	return nil
}

// ListAllocations lists the owner's allocations for a week.
func (s sqliteQueries) ListAllocations(ctx context.Context, userID string, week string) ([]domain.Allocation, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT allocation_id, user_id, subject, week, target_minutes, created_at, updated_at
		 FROM allocations WHERE user_id = ? AND week = ? ORDER BY target_minutes DESC, subject ASC`,
		userID, week)
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	defer rows.Close()

	var out []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		var createdAt, updatedAt int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.Subject, &a.Week, &a.TargetMinutes, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = msToTime(createdAt)
		a.UpdatedAt = msToTime(updatedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAllocation creates or replaces the target for (owner, subject, week).
func (s sqliteQueries) UpsertAllocation(ctx context.Context, a *domain.Allocation) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO allocations (allocation_id, user_id, subject, week, target_minutes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, subject, week) DO UPDATE SET target_minutes = excluded.target_minutes, updated_at = excluded.updated_at`,
		a.ID, a.UserID, a.Subject, a.Week, a.TargetMinutes, a.CreatedAt.UnixMilli(), a.UpdatedAt.UnixMilli())
	if err != nil {
		return translateSQLiteErr(err)
	}

	// The row may predate this call; read back its id and creation time.
	var createdAt int64
	err = s.q.QueryRowContext(ctx,
		`SELECT allocation_id, created_at FROM allocations WHERE user_id = ? AND subject = ? AND week = ?`,
		a.UserID, a.Subject, a.Week).Scan(&a.ID, &createdAt)
	if err != nil {
		return translateSQLiteErr(err)
	}
	a.CreatedAt = msToTime(createdAt)
	return nil
}

// GetInteraction retrieves an idempotency record.
func (s sqliteQueries) GetInteraction(ctx context.Context, interactionID string) (*domain.InteractionRecord, error) {
	var rec domain.InteractionRecord
	var action, outcome string
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT interaction_id, user_id, action, fingerprint, outcome, created_at FROM interactions WHERE interaction_id = ?`,
		interactionID).Scan(&rec.InteractionID, &rec.UserID, &action, &rec.Fingerprint, &outcome, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, translateSQLiteErr(err)
	}
	rec.Action = domain.Event(action)
	rec.Outcome = []byte(outcome)
	rec.CreatedAt = msToTime(createdAt)
	return &rec, nil
}

// SaveInteraction inserts an idempotency record.
func (s sqliteQueries) SaveInteraction(ctx context.Context, rec *domain.InteractionRecord) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO interactions (interaction_id, user_id, action, fingerprint, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.InteractionID, rec.UserID, string(rec.Action), rec.Fingerprint, string(rec.Outcome), rec.CreatedAt.UnixMilli())
	if isSQLiteUnique(err) {
		return fmt.Errorf("%w: interaction %s recorded concurrently", domain.ErrTransactionConflict, rec.InteractionID)
	}
	return translateSQLiteErr(err)
}

// PruneInteractions removes expired and surplus idempotency records for an owner.
func (s sqliteQueries) PruneInteractions(ctx context.Context, userID string, before time.Time, keep int) (int64, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM interactions WHERE user_id = ? AND (created_at < ? OR interaction_id NOT IN (
			SELECT interaction_id FROM interactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?))`,
		userID, before.UnixMilli(), userID, keep)
	if err != nil {
		return 0, translateSQLiteErr(err)
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isSQLiteUnique(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// translateSQLiteErr maps lock contention onto domain.ErrTransactionConflict.
func translateSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}
