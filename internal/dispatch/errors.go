package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/radhhh/flae-bot/internal/domain"
)

// failure converts an operation error into an ephemeral response. The
// response always names the user's current session state and offers the
// controls valid for it; internal error detail is only logged.
func (d *Dispatcher) failure(ctx context.Context, inv domain.Invocation, err error) *domain.Response {
	var (
		te  *domain.TransitionError
		dup *domain.DuplicateSessionError
		nas *domain.NoActiveSessionError
	)

	var message string
	var sess *domain.Session
	switch {
	case errors.As(err, &te):
		sess = te.Session
		if errors.Is(err, domain.ErrReopenNotAllowed) {
			message = "❌ Cannot reopen: this session is outside the allowed reopen window."
		} else {
			message = fmt.Sprintf("❌ Cannot %s: the session is %s.", te.Event.Verb(), te.From.Label())
		}
	case errors.As(err, &dup):
		sess = dup.Existing
		message = "⚠️ You already have an active session!"
	case errors.As(err, &nas):
		message = fmt.Sprintf("❌ No active session to %s.", nas.Event.Verb())
	case errors.Is(err, domain.ErrNotFound):
		message = "❌ Session not found or access denied."
	case errors.Is(err, domain.ErrInvalidTarget):
		message = "❌ Weekly target must be between 0 and 168 hours."
	case errors.Is(err, domain.ErrInvalidInput):
		message = "❌ " + userMessage(err)
	case errors.Is(err, domain.ErrTransactionConflict):
		message = "⏳ Another action on your session was in progress. Try again."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		message = "⏳ That took too long and nothing was changed. Try again."
	default:
		log.Printf("WARN: %s invocation %s for user %s failed: %v", inv.Kind, inv.ID, inv.UserID, err)
		message = "Something went wrong, try again."
	}

	resp := &domain.Response{Ephemeral: true}
	if sess == nil {
		sess = d.current(ctx, inv)
	}
	if sess != nil {
		view := d.live(ctx, inv, sess)
		resp.Summary = message + "\n\n" + view.Summary
		resp.Controls = view.Controls
		resp.Session = view.Session
		resp.State = view.State
		return resp
	}
	resp.Summary = message + "\n\nCurrent state: " + domain.SessionStatusNone.Label() + "."
	resp.State = domain.SessionStatusNone
	return resp
}

// current looks up the session an error response should describe.
func (d *Dispatcher) current(ctx context.Context, inv domain.Invocation) *domain.Session {
	if ctx.Err() != nil {
		return nil
	}
	if inv.Target != "" {
		if out, err := d.svc.Session(ctx, inv.UserID, inv.Target); err == nil {
			return out.Session
		}
	}
	out, err := d.svc.Status(ctx, inv.UserID)
	if err != nil {
		return nil
	}
	return out.Session
}

// live renders sess as of now, without an action header. If it cannot be
// reloaded it is rendered as of its last update.
func (d *Dispatcher) live(ctx context.Context, inv domain.Invocation, sess *domain.Session) *domain.Response {
	if ctx.Err() == nil {
		if out, err := d.svc.Session(ctx, inv.UserID, sess.ID); err == nil {
			return renderOutcome(&domain.Outcome{Session: out.Session, At: out.At})
		}
	}
	return renderOutcome(&domain.Outcome{Session: sess, At: sess.UpdatedAt})
}

// userMessage strips the sentinel prefix from a validation error.
func userMessage(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, domain.ErrInvalidInput.Error()+": ")
	if msg == "" {
		return "Invalid input."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
