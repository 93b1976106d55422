package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/radhhh/flae-bot/internal/accounting"
	"github.com/radhhh/flae-bot/internal/domain"
)

const progressBarWidth = 10

var statusEmoji = map[domain.SessionStatus]string{
	domain.SessionStatusActive:             "▶️",
	domain.SessionStatusPaused:             "⏸️",
	domain.SessionStatusStoppedUnconfirmed: "⏹️",
	domain.SessionStatusConfirmed:          "✅",
}

var actionHeader = map[domain.Event]string{
	domain.EventClockIn:  "✅ Clocked in!",
	domain.EventPause:    "⏸️ Session paused!",
	domain.EventResume:   "▶️ Session resumed!",
	domain.EventClockOut: "⏹️ Clocked out!",
	domain.EventAdjust:   "✏️ Time adjusted!",
	domain.EventConfirm:  "✅ Session confirmed!",
	domain.EventReopen:   "↩️ Session reopened!",
	domain.EventEditGoal: "✏️ Goal updated!",
}

// NewSessionView derives the display data of s at the given instant.
func NewSessionView(s *domain.Session, at time.Time) *domain.SessionView {
	b := accounting.Compute(s, at)
	return &domain.SessionView{
		SessionID: s.ID,
		Subject:   s.Subject,
		Goal:      s.Goal,
		Note:      s.Note,
		Status:    s.Status(),
		StartedAt: s.StartedAt,
		Effective: b.Effective,
		Paused:    b.Paused,
		Adjusted:  b.Adjustment,
	}
}

// SessionText renders a session view as message text.
func SessionText(v *domain.SessionView) string {
	emoji, ok := statusEmoji[v.Status]
	if !ok {
		emoji = "⏺️"
	}
	lines := []string{
		fmt.Sprintf("%s **Session Status: %s**", emoji, v.Status.Label()),
		fmt.Sprintf("**Subject:** %s", v.Subject),
	}
	if v.Goal != "" {
		lines = append(lines, fmt.Sprintf("**Goal:** %s", v.Goal))
	}
	lines = append(lines, fmt.Sprintf("**Effective Time:** %s", accounting.FormatDuration(v.Effective)))
	if v.Paused > 0 {
		lines = append(lines, fmt.Sprintf("**Paused Time:** %s", accounting.FormatDuration(v.Paused)))
	}
	if v.Adjusted != 0 {
		lines = append(lines, fmt.Sprintf("**Adjustment:** %s", accounting.FormatSigned(v.Adjusted)))
	}
	if v.Note != "" {
		lines = append(lines, fmt.Sprintf("**Note:** %s", v.Note))
	}
	return strings.Join(lines, "\n")
}

// renderOutcome depends only on the outcome, so a replayed outcome renders
// exactly like the original.
func renderOutcome(out *domain.Outcome) *domain.Response {
	view := NewSessionView(out.Session, out.At)
	var parts []string
	if header, ok := actionHeader[out.Action]; ok {
		parts = append(parts, header)
	}
	if w := out.Adjustment.Warning(); w != nil {
		parts = append(parts, fmt.Sprintf("⚠️ Requested %s would make the session negative; applied %s.",
			accounting.FormatSigned(out.Adjustment.Requested()), accounting.FormatSigned(out.Adjustment.Applied())))
	}
	parts = append(parts, SessionText(view))

	return &domain.Response{
		Summary:  strings.Join(parts, "\n\n"),
		Controls: domain.ControlsFor(view.Status),
		Session:  view,
		State:    view.Status,
	}
}

func adjustModal(s *domain.Session) *domain.Modal {
	return &domain.Modal{
		Control: domain.ControlAdjustTime,
		Target:  s.ID,
		Title:   "Adjust Effective Time",
		Fields: []domain.ModalField{{
			ID:          FieldDuration,
			Label:       "Effective duration, or +/- change",
			Placeholder: "e.g. 1h 20m, 80m, 1:20, +15m, -10m",
			Required:    true,
			MaxLength:   32,
		}},
	}
}

func goalModal(s *domain.Session) *domain.Modal {
	return &domain.Modal{
		Control: domain.ControlEditGoal,
		Target:  s.ID,
		Title:   "Edit Session Goal",
		Fields: []domain.ModalField{{
			ID:          FieldGoal,
			Label:       "Goal / Purpose",
			Value:       s.Goal,
			Placeholder: "What are you working on?",
			Paragraph:   true,
			MaxLength:   500,
		}},
	}
}

// FormatHours renders minutes as hours with one decimal.
func FormatHours(minutes int) string {
	return strconv.FormatFloat(float64(minutes)/60, 'f', 1, 64) + "h"
}

// ProgressBar renders percent (clamped to 0..100) as a bar of width cells.
func ProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(float64(width) * percent / 100)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func renderAllocation(out *domain.Outcome) *domain.Response {
	a := out.Allocation
	hours := strconv.FormatFloat(float64(a.TargetMinutes)/60, 'f', -1, 64)
	return &domain.Response{
		Summary: fmt.Sprintf("✅ Set weekly allocation for **%s**: %sh (week of %s)", a.Subject, hours, a.Week),
	}
}

// ProgressLines renders one entry per subject.
func ProgressLines(p *domain.Progress) []string {
	lines := make([]string, 0, len(p.Subjects))
	for _, s := range p.Subjects {
		if !s.HasTarget {
			lines = append(lines, fmt.Sprintf("**%s:** %s (no target)", s.Subject, FormatHours(s.AccumulatedMinutes)))
			continue
		}
		pct := s.Percent()
		lines = append(lines, fmt.Sprintf("**%s:** %s / %s (%.0f%%)\n%s",
			s.Subject, FormatHours(s.AccumulatedMinutes), FormatHours(s.TargetMinutes), pct,
			ProgressBar(pct, progressBarWidth)))
	}
	return lines
}

func renderProgress(p *domain.Progress) *domain.Response {
	if len(p.Subjects) == 0 {
		return &domain.Response{
			Summary:  "No allocations set for this week. Use `/alloc set` to create one.",
			Progress: p,
		}
	}
	header := fmt.Sprintf("**📊 Weekly Time Allocation** (week of %s)\n", p.Week)
	return &domain.Response{
		Summary:  header + "\n" + strings.Join(ProgressLines(p), "\n"),
		Progress: p,
	}
}
