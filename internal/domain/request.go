package domain

import "time"

// Invocation is one verified inbound user action.
type Invocation struct {
	ID      string            `json:"id"`
	UserID  string            `json:"user_id"`
	Kind    InvocationKind    `json:"kind"`
	Command string            `json:"command,omitempty"` // e.g. "session in"
	Control ControlID         `json:"control,omitempty"`
	Target  string            `json:"target,omitempty"` // session id for buttons and modals
	Fields  map[string]string `json:"fields,omitempty"`
}

// Field returns a parsed field value, or "" when absent.
func (i Invocation) Field(name string) string {
	if i.Fields == nil {
		return ""
	}
	return i.Fields[name]
}

// SessionView is the abstract rendering data for a session.
type SessionView struct {
	SessionID string        `json:"session_id"`
	Subject   string        `json:"subject"`
	Goal      string        `json:"goal,omitempty"`
	Note      string        `json:"note,omitempty"`
	Status    SessionStatus `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Effective time.Duration `json:"effective_ns"`
	Paused    time.Duration `json:"paused_ns"`
	Adjusted  time.Duration `json:"adjustment_ns"`
}

// ModalField describes a text input of a modal.
type ModalField struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Value       string `json:"value,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Paragraph   bool   `json:"paragraph,omitempty"`
	Required    bool   `json:"required"`
	MaxLength   int    `json:"max_length,omitempty"`
}

// Modal describes a form the user is asked to fill in.
type Modal struct {
	Control ControlID    `json:"control"`
	Target  string       `json:"target"`
	Title   string       `json:"title"`
	Fields  []ModalField `json:"fields"`
}

// Response is what the dispatcher hands back to the transport.
type Response struct {
	Summary   string        `json:"summary"`
	Controls  []ControlID   `json:"controls"`
	Ephemeral bool          `json:"ephemeral"`
	Update    bool          `json:"update,omitempty"` // replace the message the control was attached to
	Session   *SessionView  `json:"session,omitempty"`
	Progress  *Progress     `json:"progress,omitempty"`
	Modal     *Modal        `json:"modal,omitempty"`
	State     SessionStatus `json:"state,omitempty"`
}
