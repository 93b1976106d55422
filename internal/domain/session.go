package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Phase is the status-specific part of a session. Each status carries exactly
// the timestamps it needs, so a paused session always knows when the pause
// began and an active session never has a stop time.
type Phase interface {
	Status() SessionStatus
	isPhase()
}

// Running is the phase of an active session.
type Running struct{}

// Paused is the phase of a paused session.
type Paused struct {
	Since time.Time
}

// Stopped is the phase of a clocked-out session awaiting confirmation.
type Stopped struct {
	At time.Time
}

// Confirmed is the phase of a finalized session.
type Confirmed struct {
	StoppedAt   time.Time
	ConfirmedAt time.Time
}

func (Running) Status() SessionStatus   { return SessionStatusActive }
func (Paused) Status() SessionStatus    { return SessionStatusPaused }
func (Stopped) Status() SessionStatus   { return SessionStatusStoppedUnconfirmed }
func (Confirmed) Status() SessionStatus { return SessionStatusConfirmed }

func (Running) isPhase()   {}
func (Paused) isPhase()    {}
func (Stopped) isPhase()   {}
func (Confirmed) isPhase() {}

// Session represents one timed work interval for a subject.
type Session struct {
	ID          string
	UserID      string
	Subject     string
	Goal        string
	Note        string
	StartedAt   time.Time
	PausedTotal time.Duration
	Adjustment  time.Duration
	Phase       Phase
	Version     int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Status returns the session status, or SessionStatusNone for a nil session.
func (s *Session) Status() SessionStatus {
	if s == nil || s.Phase == nil {
		return SessionStatusNone
	}
	return s.Phase.Status()
}

// PauseStartedAt returns when the current pause began, if the session is paused.
func (s *Session) PauseStartedAt() (time.Time, bool) {
	if p, ok := s.Phase.(Paused); ok {
		return p.Since, true
	}
	return time.Time{}, false
}

// StoppedAt returns when the session was clocked out, if it has been.
func (s *Session) StoppedAt() (time.Time, bool) {
	switch p := s.Phase.(type) {
	case Stopped:
		return p.At, true
	case Confirmed:
		return p.StoppedAt, true
	}
	return time.Time{}, false
}

// ConfirmedAt returns when the session was confirmed, if it is confirmed.
func (s *Session) ConfirmedAt() (time.Time, bool) {
	if p, ok := s.Phase.(Confirmed); ok {
		return p.ConfirmedAt, true
	}
	return time.Time{}, false
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// NewPhase rebuilds a phase from the flat column layout used by storage.
// It rejects field combinations that do not belong to the status.
func NewPhase(status SessionStatus, pauseStartedAt, stoppedAt, confirmedAt *time.Time) (Phase, error) {
	switch status {
	case SessionStatusActive:
		if pauseStartedAt != nil || stoppedAt != nil || confirmedAt != nil {
			return nil, fmt.Errorf("active session must not carry pause or stop times")
		}
		return Running{}, nil
	case SessionStatusPaused:
		if pauseStartedAt == nil || stoppedAt != nil || confirmedAt != nil {
			return nil, fmt.Errorf("paused session requires pause start and no stop time")
		}
		return Paused{Since: *pauseStartedAt}, nil
	case SessionStatusStoppedUnconfirmed:
		if stoppedAt == nil || pauseStartedAt != nil || confirmedAt != nil {
			return nil, fmt.Errorf("stopped session requires stop time only")
		}
		return Stopped{At: *stoppedAt}, nil
	case SessionStatusConfirmed:
		if stoppedAt == nil || confirmedAt == nil || pauseStartedAt != nil {
			return nil, fmt.Errorf("confirmed session requires stop and confirm times")
		}
		return Confirmed{StoppedAt: *stoppedAt, ConfirmedAt: *confirmedAt}, nil
	}
	return nil, fmt.Errorf("unknown session status %q", status)
}

// PhaseColumns flattens a phase into nullable columns for storage.
func PhaseColumns(p Phase) (pauseStartedAt, stoppedAt, confirmedAt *time.Time) {
	switch v := p.(type) {
	case Paused:
		t := v.Since
		pauseStartedAt = &t
	case Stopped:
		t := v.At
		stoppedAt = &t
	case Confirmed:
		st, ct := v.StoppedAt, v.ConfirmedAt
		stoppedAt, confirmedAt = &st, &ct
	}
	return pauseStartedAt, stoppedAt, confirmedAt
}

type sessionJSON struct {
	ID             string        `json:"session_id"`
	UserID         string        `json:"user_id"`
	Subject        string        `json:"subject"`
	Goal           string        `json:"goal,omitempty"`
	Note           string        `json:"note,omitempty"`
	Status         SessionStatus `json:"status"`
	StartedAt      time.Time     `json:"started_at"`
	PausedTotalMs  int64         `json:"paused_total_ms"`
	AdjustmentMs   int64         `json:"adjustment_ms"`
	PauseStartedAt *time.Time    `json:"pause_started_at,omitempty"`
	StoppedAt      *time.Time    `json:"stopped_at,omitempty"`
	ConfirmedAt    *time.Time    `json:"confirmed_at,omitempty"`
	Version        int64         `json:"version"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// MarshalJSON implements json.Marshaler.
func (s Session) MarshalJSON() ([]byte, error) {
	pause, stop, confirm := PhaseColumns(s.Phase)
	return json.Marshal(sessionJSON{
		ID:             s.ID,
		UserID:         s.UserID,
		Subject:        s.Subject,
		Goal:           s.Goal,
		Note:           s.Note,
		Status:         s.Status(),
		StartedAt:      s.StartedAt,
		PausedTotalMs:  s.PausedTotal.Milliseconds(),
		AdjustmentMs:   s.Adjustment.Milliseconds(),
		PauseStartedAt: pause,
		StoppedAt:      stop,
		ConfirmedAt:    confirm,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Session) UnmarshalJSON(data []byte) error {
	var raw sessionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	phase, err := NewPhase(raw.Status, raw.PauseStartedAt, raw.StoppedAt, raw.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("decode session %s: %w", raw.ID, err)
	}
	*s = Session{
		ID:          raw.ID,
		UserID:      raw.UserID,
		Subject:     raw.Subject,
		Goal:        raw.Goal,
		Note:        raw.Note,
		StartedAt:   raw.StartedAt,
		PausedTotal: time.Duration(raw.PausedTotalMs) * time.Millisecond,
		Adjustment:  time.Duration(raw.AdjustmentMs) * time.Millisecond,
		Phase:       phase,
		Version:     raw.Version,
		CreatedAt:   raw.CreatedAt,
		UpdatedAt:   raw.UpdatedAt,
	}
	return nil
}
