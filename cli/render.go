package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/radhhh/flae-bot/internal/domain"
)

var (
	sapphire = lipgloss.Color("#74c7ec")
	red      = lipgloss.Color("#f38ba8")
	subtext  = lipgloss.Color("#a6adc8")
	surface  = lipgloss.Color("#45475a")

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(surface).
			Padding(0, 1)
	errorPane  = paneStyle.BorderForeground(red)
	boldStyle  = lipgloss.NewStyle().Foreground(sapphire).Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(subtext)
)

// render turns a response into terminal output. Markdown bold markers are
// rendered as styled text.
func render(resp *domain.Response, plain bool) string {
	body := markdown(resp.Summary)
	if resp.Session != nil && len(resp.Controls) > 0 {
		names := make([]string, len(resp.Controls))
		for i, c := range resp.Controls {
			names[i] = string(c)
		}
		body += "\n\n" + mutedStyle.Render("session "+resp.Session.SessionID+" · next: "+strings.Join(names, ", "))
	}
	if resp.Modal != nil {
		body += "\n\n" + mutedStyle.Render(resp.Modal.Title+": pass the value on the command line")
	}
	if plain {
		return body
	}
	if resp.Ephemeral {
		return errorPane.Render(body)
	}
	return paneStyle.Render(body)
}

// markdown styles **bold** spans and drops the markers.
func markdown(s string) string {
	parts := strings.Split(s, "**")
	if len(parts)%2 == 0 {
		return s
	}
	var b strings.Builder
	for i, p := range parts {
		if i%2 == 1 {
			b.WriteString(boldStyle.Render(p))
			continue
		}
		b.WriteString(p)
	}
	return b.String()
}
