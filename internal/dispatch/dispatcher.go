// Package dispatch maps verified invocations onto service operations and
// turns their outcomes into transport-neutral responses.
package dispatch

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/domain"
)

// Command names, as "<group> <subcommand>".
const (
	CommandSessionIn      = "session in"
	CommandSessionOut     = "session out"
	CommandSessionPause   = "session pause"
	CommandSessionResume  = "session resume"
	CommandSessionStatus  = "session status"
	CommandSessionConfirm = "session confirm"
	CommandSessionReopen  = "session reopen"
	CommandSessionAdjust  = "session adjust"
	CommandAllocSet       = "alloc set"
	CommandAllocShow      = "alloc show"
)

// Field names carried by invocations.
const (
	FieldSubject  = "subject"
	FieldGoal     = "goal"
	FieldNote     = "note"
	FieldHours    = "hours"
	FieldDuration = "duration"
)

// Service is the set of operations the dispatcher drives.
type Service interface {
	ClockIn(ctx context.Context, inv domain.Invocation, subject, goal string) (*domain.Outcome, error)
	Pause(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error)
	Resume(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error)
	ClockOut(ctx context.Context, inv domain.Invocation, sessionID, note string) (*domain.Outcome, error)
	Adjust(ctx context.Context, inv domain.Invocation, sessionID string, delta time.Duration) (*domain.Outcome, error)
	AdjustTo(ctx context.Context, inv domain.Invocation, sessionID string, target time.Duration) (*domain.Outcome, error)
	Confirm(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error)
	Reopen(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error)
	EditGoal(ctx context.Context, inv domain.Invocation, sessionID, goal string) (*domain.Outcome, error)
	Status(ctx context.Context, owner string) (*domain.Outcome, error)
	Session(ctx context.Context, owner, sessionID string) (*domain.Outcome, error)
	SetAllocation(ctx context.Context, inv domain.Invocation, subject string, minutes int) (*domain.Outcome, error)
	Progress(ctx context.Context, owner string) (*domain.Progress, error)
}

// Dispatcher routes invocations. It holds no per-user state.
type Dispatcher struct {
	svc Service
}

func New(svc Service) *Dispatcher {
	return &Dispatcher{svc: svc}
}

// Dispatch handles one invocation. Every failure is turned into a response
// naming the user's current session state; Dispatch itself never fails.
func (d *Dispatcher) Dispatch(ctx context.Context, inv domain.Invocation) *domain.Response {
	if inv.UserID == "" {
		return &domain.Response{Summary: "❌ Could not identify the user.", Ephemeral: true, State: domain.SessionStatusNone}
	}
	switch inv.Kind {
	case domain.InvocationKindCommand:
		return d.command(ctx, inv)
	case domain.InvocationKindButton:
		return d.button(ctx, inv)
	case domain.InvocationKindModal:
		return d.modal(ctx, inv)
	}
	return &domain.Response{Summary: "Unhandled interaction type.", Ephemeral: true}
}

func (d *Dispatcher) command(ctx context.Context, inv domain.Invocation) *domain.Response {
	switch inv.Command {
	case CommandSessionIn:
		out, err := d.svc.ClockIn(ctx, inv, inv.Field(FieldSubject), inv.Field(FieldGoal))
		return d.session(ctx, inv, out, err, false)
	case CommandSessionOut:
		out, err := d.svc.ClockOut(ctx, inv, "", inv.Field(FieldNote))
		return d.session(ctx, inv, out, err, false)
	case CommandSessionPause:
		out, err := d.svc.Pause(ctx, inv, "")
		return d.session(ctx, inv, out, err, false)
	case CommandSessionResume:
		out, err := d.svc.Resume(ctx, inv, "")
		return d.session(ctx, inv, out, err, false)
	case CommandSessionConfirm:
		out, err := d.svc.Confirm(ctx, inv, "")
		return d.session(ctx, inv, out, err, false)
	case CommandSessionReopen:
		out, err := d.svc.Reopen(ctx, inv, "")
		return d.session(ctx, inv, out, err, false)
	case CommandSessionAdjust:
		out, err := d.adjust(ctx, inv, "")
		return d.session(ctx, inv, out, err, false)
	case CommandSessionStatus:
		return d.status(ctx, inv)
	case CommandAllocSet:
		return d.allocSet(ctx, inv)
	case CommandAllocShow:
		return d.allocShow(ctx, inv)
	}
	return &domain.Response{Summary: "Unknown command.", Ephemeral: true}
}

func (d *Dispatcher) button(ctx context.Context, inv domain.Invocation) *domain.Response {
	if inv.Target == "" {
		return &domain.Response{Summary: "Invalid button.", Ephemeral: true}
	}
	var (
		out *domain.Outcome
		err error
	)
	switch inv.Control {
	case domain.ControlPause:
		out, err = d.svc.Pause(ctx, inv, inv.Target)
	case domain.ControlResume:
		out, err = d.svc.Resume(ctx, inv, inv.Target)
	case domain.ControlClockOut:
		out, err = d.svc.ClockOut(ctx, inv, inv.Target, "")
	case domain.ControlConfirm:
		out, err = d.svc.Confirm(ctx, inv, inv.Target)
	case domain.ControlReopen:
		out, err = d.svc.Reopen(ctx, inv, inv.Target)
	case domain.ControlAdjustTime, domain.ControlEditGoal:
		return d.openModal(ctx, inv)
	default:
		return &domain.Response{Summary: "Invalid button.", Ephemeral: true}
	}
	return d.session(ctx, inv, out, err, true)
}

func (d *Dispatcher) openModal(ctx context.Context, inv domain.Invocation) *domain.Response {
	out, err := d.svc.Session(ctx, inv.UserID, inv.Target)
	if err != nil {
		return d.failure(ctx, inv, err)
	}
	if inv.Control == domain.ControlAdjustTime {
		return &domain.Response{Modal: adjustModal(out.Session), State: out.Session.Status()}
	}
	return &domain.Response{Modal: goalModal(out.Session), State: out.Session.Status()}
}

func (d *Dispatcher) modal(ctx context.Context, inv domain.Invocation) *domain.Response {
	if inv.Target == "" {
		return &domain.Response{Summary: "Invalid modal.", Ephemeral: true}
	}
	switch inv.Control {
	case domain.ControlAdjustTime:
		out, err := d.adjust(ctx, inv, inv.Target)
		return d.session(ctx, inv, out, err, false)
	case domain.ControlEditGoal:
		out, err := d.svc.EditGoal(ctx, inv, inv.Target, inv.Field(FieldGoal))
		return d.session(ctx, inv, out, err, false)
	}
	return &domain.Response{Summary: "Unknown modal type.", Ephemeral: true}
}

// adjust parses the duration field: a signed value is a delta, an unsigned
// one is the desired effective time.
func (d *Dispatcher) adjust(ctx context.Context, inv domain.Invocation, sessionID string) (*domain.Outcome, error) {
	raw := strings.TrimSpace(inv.Field(FieldDuration))
	if raw == "" {
		return nil, fmt.Errorf("%w: duration is required", domain.ErrInvalidInput)
	}
	value, relative, err := accounting.ParseAdjustment(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v (try 1h 20m, 80m, 1:20 or +15m)", domain.ErrInvalidInput, err)
	}
	if relative {
		return d.svc.Adjust(ctx, inv, sessionID, value)
	}
	return d.svc.AdjustTo(ctx, inv, sessionID, value)
}

func (d *Dispatcher) session(ctx context.Context, inv domain.Invocation, out *domain.Outcome, err error, update bool) *domain.Response {
	if err != nil {
		return d.failure(ctx, inv, err)
	}
	resp := renderOutcome(out)
	resp.Update = update
	return resp
}

func (d *Dispatcher) status(ctx context.Context, inv domain.Invocation) *domain.Response {
	out, err := d.svc.Status(ctx, inv.UserID)
	if err != nil {
		return d.failure(ctx, inv, err)
	}
	return renderOutcome(out)
}

func (d *Dispatcher) allocSet(ctx context.Context, inv domain.Invocation) *domain.Response {
	raw := strings.TrimSpace(inv.Field(FieldHours))
	hours, err := strconv.ParseFloat(raw, 64)
	if inv.Field(FieldSubject) == "" || raw == "" {
		return &domain.Response{Summary: "Subject and hours are required.", Ephemeral: true}
	}
	if err != nil || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return &domain.Response{Summary: "Invalid hours value.", Ephemeral: true}
	}
	out, err := d.svc.SetAllocation(ctx, inv, inv.Field(FieldSubject), int(math.Round(hours*60)))
	if err != nil {
		return d.failure(ctx, inv, err)
	}
	return renderAllocation(out)
}

func (d *Dispatcher) allocShow(ctx context.Context, inv domain.Invocation) *domain.Response {
	p, err := d.svc.Progress(ctx, inv.UserID)
	if err != nil {
		return d.failure(ctx, inv, err)
	}
	return renderProgress(p)
}
