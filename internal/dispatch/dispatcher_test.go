package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radhhh/flae-bot/internal/config"
	"github.com/radhhh/flae-bot/internal/domain"
	"github.com/radhhh/flae-bot/internal/service"
	"github.com/radhhh/flae-bot/policy"
	"github.com/radhhh/flae-bot/tests/helpers"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newDispatcher(t *testing.T) (*Dispatcher, *helpers.ManualClock) {
	t.Helper()
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	require.NoError(t, err)
	clock := helpers.NewManualClock(t0)
	svc := service.New(helpers.NewTestSQLiteStore(t), clock, config.Default(), engine)
	return New(svc), clock
}

func command(name string, fields map[string]string) domain.Invocation {
	return domain.Invocation{ID: uuid.NewString(), UserID: "u1", Kind: domain.InvocationKindCommand, Command: name, Fields: fields}
}

func button(control domain.ControlID, target string) domain.Invocation {
	return domain.Invocation{ID: uuid.NewString(), UserID: "u1", Kind: domain.InvocationKindButton, Control: control, Target: target}
}

func modal(control domain.ControlID, target string, fields map[string]string) domain.Invocation {
	return domain.Invocation{ID: uuid.NewString(), UserID: "u1", Kind: domain.InvocationKindModal, Control: control, Target: target, Fields: fields}
}

func TestSessionFlowControls(t *testing.T) {
	ctx := context.Background()
	d, clock := newDispatcher(t)

	resp := d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "math", FieldGoal: "hw"}))
	require.NotNil(t, resp.Session)
	assert.Equal(t, domain.SessionStatusActive, resp.State)
	assert.Equal(t, []domain.ControlID{domain.ControlPause, domain.ControlClockOut, domain.ControlEditGoal}, resp.Controls)
	assert.Contains(t, resp.Summary, "Clocked in!")
	assert.Contains(t, resp.Summary, "**Goal:** hw")
	assert.False(t, resp.Ephemeral)
	id := resp.Session.SessionID

	clock.Advance(30 * time.Minute)
	resp = d.Dispatch(ctx, button(domain.ControlPause, id))
	assert.True(t, resp.Update)
	assert.Equal(t, []domain.ControlID{domain.ControlResume, domain.ControlClockOut, domain.ControlEditGoal}, resp.Controls)

	clock.Advance(10 * time.Minute)
	resp = d.Dispatch(ctx, button(domain.ControlResume, id))
	assert.Equal(t, domain.SessionStatusActive, resp.State)

	clock.Advance(60 * time.Minute)
	resp = d.Dispatch(ctx, button(domain.ControlClockOut, id))
	assert.Equal(t, domain.SessionStatusStoppedUnconfirmed, resp.State)
	assert.Equal(t, 90*time.Minute, resp.Session.Effective)
	assert.Contains(t, resp.Summary, "**Effective Time:** 1h 30m")
	assert.Contains(t, resp.Summary, "**Paused Time:** 10m")
	assert.Equal(t, []domain.ControlID{domain.ControlConfirm, domain.ControlAdjustTime, domain.ControlEditGoal}, resp.Controls)

	resp = d.Dispatch(ctx, button(domain.ControlConfirm, id))
	assert.Equal(t, domain.SessionStatusConfirmed, resp.State)
	assert.Equal(t, []domain.ControlID{domain.ControlReopen, domain.ControlAdjustTime}, resp.Controls)
}

func TestErrorsNameCurrentState(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	resp := d.Dispatch(ctx, command(CommandSessionPause, nil))
	assert.True(t, resp.Ephemeral)
	assert.Equal(t, domain.SessionStatusNone, resp.State)
	assert.Contains(t, resp.Summary, "No active session to pause")
	assert.Contains(t, resp.Summary, "No session")

	resp = d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "math"}))
	id := resp.Session.SessionID

	resp = d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "art"}))
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Summary, "already have an active session")
	assert.Equal(t, id, resp.Session.SessionID)
	assert.Equal(t, domain.SessionStatusActive, resp.State)

	resp = d.Dispatch(ctx, button(domain.ControlResume, id))
	assert.True(t, resp.Ephemeral)
	assert.False(t, resp.Update)
	assert.Contains(t, resp.Summary, "Cannot resume: the session is Active")
	assert.Equal(t, domain.SessionStatusActive, resp.State)
	assert.Equal(t, domain.ControlsFor(domain.SessionStatusActive), resp.Controls)
}

func TestForeignButtonIsRejected(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	resp := d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "math"}))
	id := resp.Session.SessionID

	inv := button(domain.ControlClockOut, id)
	inv.UserID = "u2"
	resp = d.Dispatch(ctx, inv)
	assert.Contains(t, resp.Summary, "Session not found or access denied")
	assert.Equal(t, domain.SessionStatusNone, resp.State)
	assert.Nil(t, resp.Session)
}

func TestReplayRendersIdentically(t *testing.T) {
	ctx := context.Background()
	d, clock := newDispatcher(t)

	inv := command(CommandSessionIn, map[string]string{FieldSubject: "math", FieldGoal: "hw"})
	first := d.Dispatch(ctx, inv)
	clock.Advance(10 * time.Minute)
	second := d.Dispatch(ctx, inv)
	require.NotNil(t, second.Session)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.Controls, second.Controls)
	assert.Equal(t, first.State, second.State)
	assert.Equal(t, first.Session.SessionID, second.Session.SessionID)
	assert.Equal(t, first.Session.Effective, second.Session.Effective)
	assert.True(t, first.Session.StartedAt.Equal(second.Session.StartedAt))
}

func TestAdjustModal(t *testing.T) {
	ctx := context.Background()
	d, clock := newDispatcher(t)

	resp := d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "math", FieldGoal: "hw"}))
	id := resp.Session.SessionID
	clock.Advance(5 * time.Minute)
	d.Dispatch(ctx, command(CommandSessionOut, nil))

	resp = d.Dispatch(ctx, button(domain.ControlAdjustTime, id))
	require.NotNil(t, resp.Modal)
	assert.Equal(t, domain.ControlAdjustTime, resp.Modal.Control)
	assert.Equal(t, id, resp.Modal.Target)
	assert.Equal(t, FieldDuration, resp.Modal.Fields[0].ID)

	resp = d.Dispatch(ctx, modal(domain.ControlAdjustTime, id, map[string]string{FieldDuration: "-10000m"}))
	assert.Equal(t, time.Duration(0), resp.Session.Effective)
	assert.Contains(t, resp.Summary, "applied -5m")

	resp = d.Dispatch(ctx, modal(domain.ControlAdjustTime, id, map[string]string{FieldDuration: "1h 20m"}))
	assert.Equal(t, 80*time.Minute, resp.Session.Effective)
	assert.Contains(t, resp.Summary, "Time adjusted!")

	resp = d.Dispatch(ctx, modal(domain.ControlAdjustTime, id, map[string]string{FieldDuration: "soon"}))
	assert.True(t, resp.Ephemeral)
	assert.Equal(t, 80*time.Minute, resp.Session.Effective)

	resp = d.Dispatch(ctx, modal(domain.ControlAdjustTime, id, map[string]string{FieldDuration: "+99999999999h"}))
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Summary, "exceeds 168h")
	assert.Equal(t, 80*time.Minute, resp.Session.Effective)

	resp = d.Dispatch(ctx, button(domain.ControlEditGoal, id))
	require.NotNil(t, resp.Modal)
	assert.Equal(t, "hw", resp.Modal.Fields[0].Value)

	resp = d.Dispatch(ctx, modal(domain.ControlEditGoal, id, map[string]string{FieldGoal: "chapter 4"}))
	assert.Contains(t, resp.Summary, "Goal updated!")
	assert.Equal(t, "chapter 4", resp.Session.Goal)
}

func TestAllocationCommands(t *testing.T) {
	ctx := context.Background()
	d, clock := newDispatcher(t)

	resp := d.Dispatch(ctx, command(CommandAllocShow, nil))
	assert.Contains(t, resp.Summary, "No allocations set for this week")

	resp = d.Dispatch(ctx, command(CommandAllocSet, map[string]string{FieldSubject: "math", FieldHours: "10"}))
	assert.Contains(t, resp.Summary, "**math**: 10h")

	resp = d.Dispatch(ctx, command(CommandAllocSet, map[string]string{FieldSubject: "math", FieldHours: "-1"}))
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Summary, "Weekly target must be between")

	resp = d.Dispatch(ctx, command(CommandAllocSet, map[string]string{FieldSubject: "math", FieldHours: "lots"}))
	assert.Equal(t, "Invalid hours value.", resp.Summary)

	d.Dispatch(ctx, command(CommandSessionIn, map[string]string{FieldSubject: "math"}))
	clock.Advance(90 * time.Minute)
	d.Dispatch(ctx, command(CommandSessionOut, nil))
	d.Dispatch(ctx, command(CommandSessionConfirm, nil))

	resp = d.Dispatch(ctx, command(CommandAllocShow, nil))
	require.NotNil(t, resp.Progress)
	require.Len(t, resp.Progress.Subjects, 1)
	assert.Equal(t, 90, resp.Progress.Subjects[0].AccumulatedMinutes)
	assert.Equal(t, 600, resp.Progress.Subjects[0].TargetMinutes)
	assert.Contains(t, resp.Summary, "**math:** 1.5h / 10.0h (15%)")
	assert.Contains(t, resp.Summary, "█░░░░░░░░░")
}

func TestUnknownInvocations(t *testing.T) {
	ctx := context.Background()
	d, _ := newDispatcher(t)

	assert.Equal(t, "Unknown command.", d.Dispatch(ctx, command("session dance", nil)).Summary)
	assert.Equal(t, "Invalid button.", d.Dispatch(ctx, button(domain.ControlPause, "")).Summary)
	assert.Equal(t, "Unknown modal type.", d.Dispatch(ctx, modal(domain.ControlPause, "x", nil)).Summary)

	resp := d.Dispatch(ctx, domain.Invocation{Kind: domain.InvocationKindCommand})
	assert.True(t, resp.Ephemeral)
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░░░░░░░", ProgressBar(0, 10))
	assert.Equal(t, "█████░░░░░", ProgressBar(50, 10))
	assert.Equal(t, "██████████", ProgressBar(250, 10))
	assert.Equal(t, "1.5h", FormatHours(90))
}
