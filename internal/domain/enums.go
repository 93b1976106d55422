// Package domain defines the core domain models for the time tracker.
package domain

// SessionStatus represents the status of a session.
type SessionStatus string

const (
	SessionStatusActive             SessionStatus = "ACTIVE"
	SessionStatusPaused             SessionStatus = "PAUSED"
	SessionStatusStoppedUnconfirmed SessionStatus = "STOPPED_UNCONFIRMED"
	SessionStatusConfirmed          SessionStatus = "CONFIRMED"

	// SessionStatusNone is reported when an owner has no open session.
	// It is never persisted.
	SessionStatusNone SessionStatus = "NO_SESSION"
)

// Open reports whether the status counts toward the one-open-session rule.
func (s SessionStatus) Open() bool {
	return s == SessionStatusActive || s == SessionStatusPaused
}

// Label returns a human readable form of the status.
func (s SessionStatus) Label() string {
	switch s {
	case SessionStatusActive:
		return "Active"
	case SessionStatusPaused:
		return "Paused"
	case SessionStatusStoppedUnconfirmed:
		return "Stopped (unconfirmed)"
	case SessionStatusConfirmed:
		return "Confirmed"
	default:
		return "No session"
	}
}

// Event represents an operation applied to a session or allocation.
type Event string

const (
	EventClockIn       Event = "clock_in"
	EventPause         Event = "pause"
	EventResume        Event = "resume"
	EventClockOut      Event = "clock_out"
	EventAdjust        Event = "adjust"
	EventConfirm       Event = "confirm"
	EventReopen        Event = "reopen"
	EventEditGoal      Event = "edit_goal"
	EventSetAllocation Event = "set_allocation"
)

// Verb returns the event phrased for user-facing messages.
func (e Event) Verb() string {
	switch e {
	case EventClockIn:
		return "clock in"
	case EventClockOut:
		return "clock out"
	case EventEditGoal:
		return "edit the goal"
	case EventSetAllocation:
		return "set the allocation"
	default:
		return string(e)
	}
}

// InvocationKind is the kind of inbound user action.
type InvocationKind string

const (
	InvocationKindCommand InvocationKind = "command"
	InvocationKindButton  InvocationKind = "button"
	InvocationKindModal   InvocationKind = "modal"
)

// ControlID identifies an interactive control offered with a response.
type ControlID string

const (
	ControlPause      ControlID = "pause"
	ControlResume     ControlID = "resume"
	ControlClockOut   ControlID = "out"
	ControlEditGoal   ControlID = "edit_goal"
	ControlConfirm    ControlID = "confirm"
	ControlReopen     ControlID = "reopen"
	ControlAdjustTime ControlID = "adjust_time"
)

// ControlsFor returns the controls that are valid for a session in the given status.
func ControlsFor(status SessionStatus) []ControlID {
	switch status {
	case SessionStatusActive:
		return []ControlID{ControlPause, ControlClockOut, ControlEditGoal}
	case SessionStatusPaused:
		return []ControlID{ControlResume, ControlClockOut, ControlEditGoal}
	case SessionStatusStoppedUnconfirmed:
		return []ControlID{ControlConfirm, ControlAdjustTime, ControlEditGoal}
	case SessionStatusConfirmed:
		return []ControlID{ControlReopen, ControlAdjustTime}
	default:
		return nil
	}
}
