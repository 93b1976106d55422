package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition   = errors.New("illegal transition")
	ErrNoActiveSession     = errors.New("no active session")
	ErrDuplicateSession    = errors.New("active session already exists")
	ErrInvalidAdjustment   = errors.New("adjustment clamped")
	ErrInvalidTarget       = errors.New("invalid weekly target")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrReopenNotAllowed    = errors.New("reopen not allowed")
)

// TransitionError reports an event that is not legal in the session's current state.
// Cause, when set, narrows the reason (for example ErrReopenNotAllowed).
type TransitionError struct {
	From    SessionStatus
	Event   Event
	Session *Session
	Cause   error
}

func (e *TransitionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot %s: %v (session is %s)", e.Event.Verb(), e.Cause, e.From.Label())
	}
	return fmt.Sprintf("cannot %s: session is %s", e.Event.Verb(), e.From.Label())
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrIllegalTransition || (e.Cause != nil && target == e.Cause)
}

// DuplicateSessionError reports a clock-in while another session is open.
type DuplicateSessionError struct {
	Existing *Session
}

func (e *DuplicateSessionError) Error() string {
	if e.Existing == nil {
		return ErrDuplicateSession.Error()
	}
	return fmt.Sprintf("%s: %s is %s", ErrDuplicateSession, e.Existing.Subject, e.Existing.Status().Label())
}

func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// NoActiveSessionError reports an event that needs an open session when there is none.
type NoActiveSessionError struct {
	Event Event
}

func (e *NoActiveSessionError) Error() string {
	return fmt.Sprintf("cannot %s: %s", e.Event.Verb(), ErrNoActiveSession)
}

func (e *NoActiveSessionError) Is(target error) bool {
	return target == ErrNoActiveSession
}

// IllegalTransition builds a TransitionError for s.
func IllegalTransition(s *Session, event Event) error {
	return &TransitionError{From: s.Status(), Event: event, Session: s.Clone()}
}
