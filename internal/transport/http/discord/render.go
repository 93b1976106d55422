package discord

import (
	"github.com/radhhh/flae-bot/internal/domain"
)

// Response types.
const (
	ResponsePong          = 1
	ResponseMessage       = 4
	ResponseUpdateMessage = 7
	ResponseModal         = 9
)

// Component types and styles.
const (
	componentActionRow = 1
	componentButton    = 2
	componentTextInput = 4

	stylePrimary   = 1
	styleSecondary = 2
	styleSuccess   = 3
	styleDanger    = 4

	textShort     = 1
	textParagraph = 2

	flagEphemeral = 64
	maxRowButtons = 5
)

// InteractionResponse is the body returned to Discord.
type InteractionResponse struct {
	Type int           `json:"type"`
	Data *ResponseData `json:"data,omitempty"`
}

type ResponseData struct {
	Content    string      `json:"content,omitempty"`
	Flags      int         `json:"flags,omitempty"`
	Components []Component `json:"components"`
	CustomID   string      `json:"custom_id,omitempty"`
	Title      string      `json:"title,omitempty"`
}

// Component is used both for rendering and for reading modal submissions.
type Component struct {
	Type        int         `json:"type"`
	Style       int         `json:"style,omitempty"`
	Label       string      `json:"label,omitempty"`
	CustomID    string      `json:"custom_id,omitempty"`
	Value       string      `json:"value,omitempty"`
	Placeholder string      `json:"placeholder,omitempty"`
	Required    *bool       `json:"required,omitempty"`
	MaxLength   int         `json:"max_length,omitempty"`
	Components  []Component `json:"components,omitempty"`
}

type buttonSpec struct {
	label string
	style int
}

var buttons = map[domain.ControlID]buttonSpec{
	domain.ControlPause:      {"Pause", styleSecondary},
	domain.ControlResume:     {"Resume", styleSuccess},
	domain.ControlClockOut:   {"Clock Out", styleDanger},
	domain.ControlEditGoal:   {"✏️ Edit Goal", stylePrimary},
	domain.ControlConfirm:    {"✅ Confirm", styleSuccess},
	domain.ControlReopen:     {"↩️ Reopen", styleSecondary},
	domain.ControlAdjustTime: {"✏️ Adjust Time", stylePrimary},
}

// Render converts a dispatcher response into Discord's format.
func Render(resp *domain.Response) *InteractionResponse {
	if resp.Modal != nil {
		return &InteractionResponse{Type: ResponseModal, Data: renderModal(resp.Modal)}
	}

	data := &ResponseData{
		Content:    resp.Summary,
		Components: []Component{},
	}
	if resp.Session != nil {
		data.Components = actionRows(resp.Session.SessionID, resp.Controls)
	}
	if resp.Update && !resp.Ephemeral {
		return &InteractionResponse{Type: ResponseUpdateMessage, Data: data}
	}
	if resp.Ephemeral {
		data.Flags = flagEphemeral
	}
	return &InteractionResponse{Type: ResponseMessage, Data: data}
}

func actionRows(sessionID string, controls []domain.ControlID) []Component {
	rows := []Component{}
	var row []Component
	for _, control := range controls {
		spec, ok := buttons[control]
		if !ok {
			continue
		}
		row = append(row, Component{
			Type:     componentButton,
			Style:    spec.style,
			Label:    spec.label,
			CustomID: string(control) + ":" + sessionID,
		})
		if len(row) == maxRowButtons {
			rows = append(rows, Component{Type: componentActionRow, Components: row})
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, Component{Type: componentActionRow, Components: row})
	}
	return rows
}

func renderModal(m *domain.Modal) *ResponseData {
	prefix := string(m.Control)
	switch m.Control {
	case domain.ControlAdjustTime:
		prefix = modalAdjustPrefix
	case domain.ControlEditGoal:
		prefix = modalGoalPrefix
	}

	rows := make([]Component, 0, len(m.Fields))
	for _, f := range m.Fields {
		style := textShort
		if f.Paragraph {
			style = textParagraph
		}
		required := f.Required
		rows = append(rows, Component{
			Type: componentActionRow,
			Components: []Component{{
				Type:        componentTextInput,
				Style:       style,
				Label:       f.Label,
				CustomID:    f.ID,
				Value:       f.Value,
				Placeholder: f.Placeholder,
				Required:    &required,
				MaxLength:   f.MaxLength,
			}},
		})
	}
	return &ResponseData{
		CustomID:   prefix + ":" + m.Target,
		Title:      m.Title,
		Components: rows,
	}
}
