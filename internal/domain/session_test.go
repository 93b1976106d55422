package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPhaseRejectsMixedColumns(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := NewPhase(SessionStatusActive, &now, nil, nil)
	assert.Error(t, err)
	_, err = NewPhase(SessionStatusPaused, nil, nil, nil)
	assert.Error(t, err)
	_, err = NewPhase(SessionStatusConfirmed, nil, &now, nil)
	assert.Error(t, err)
	_, err = NewPhase("SLEEPING", nil, nil, nil)
	assert.Error(t, err)

	p, err := NewPhase(SessionStatusConfirmed, nil, &now, &now)
	require.NoError(t, err)
	assert.Equal(t, Confirmed{StoppedAt: now, ConfirmedAt: now}, p)
	pause, stop, confirm := PhaseColumns(p)
	assert.Nil(t, pause)
	assert.Equal(t, now, *stop)
	assert.Equal(t, now, *confirm)
}

func TestSessionJSONKeepsPhase(t *testing.T) {
	since := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	s := Session{
		ID: "s1", UserID: "u1", Subject: "math",
		StartedAt:   since.Add(-30 * time.Minute),
		PausedTotal: 90 * time.Second,
		Adjustment:  -time.Minute,
		Phase:       Paused{Since: since},
		Version:     3,
	}
	raw, err := json.Marshal(s)
	require.NoError(t, err)

	var back Session
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, SessionStatusPaused, back.Status())
	at, ok := back.PauseStartedAt()
	assert.True(t, ok)
	assert.True(t, at.Equal(since))
	assert.Equal(t, 90*time.Second, back.PausedTotal)
	assert.Equal(t, -time.Minute, back.Adjustment)

	assert.Error(t, json.Unmarshal([]byte(`{"session_id":"s1","status":"PAUSED"}`), &back))
}

func TestErrorTaxonomy(t *testing.T) {
	s := &Session{ID: "s1", Subject: "math", Phase: Running{}}

	err := IllegalTransition(s, EventResume)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, "cannot resume: session is Active", err.Error())

	denied := &TransitionError{From: SessionStatusConfirmed, Event: EventReopen, Cause: ErrReopenNotAllowed}
	assert.True(t, errors.Is(denied, ErrIllegalTransition))
	assert.True(t, errors.Is(denied, ErrReopenNotAllowed))

	assert.True(t, errors.Is(&DuplicateSessionError{Existing: s}, ErrDuplicateSession))
	assert.True(t, errors.Is(&NoActiveSessionError{Event: EventPause}, ErrNoActiveSession))
}

func TestControlsFor(t *testing.T) {
	assert.Equal(t, []ControlID{ControlPause, ControlClockOut, ControlEditGoal}, ControlsFor(SessionStatusActive))
	assert.Equal(t, []ControlID{ControlReopen, ControlAdjustTime}, ControlsFor(SessionStatusConfirmed))
	assert.Nil(t, ControlsFor(SessionStatusNone))
}

func TestInteractionRecordFingerprint(t *testing.T) {
	out := &Outcome{Action: EventClockIn, At: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Session: &Session{ID: "s1", Phase: Running{}}}
	rec, err := NewInteractionRecord(Invocation{ID: "i1", UserID: "u1"}, out, out.At)
	require.NoError(t, err)

	got, err := rec.DecodeOutcome()
	require.NoError(t, err)
	assert.True(t, got.Replayed)
	assert.Equal(t, "s1", got.Session.ID)

	rec.Outcome = json.RawMessage(`{"action":"pause"}`)
	_, err = rec.DecodeOutcome()
	assert.Error(t, err)
}
