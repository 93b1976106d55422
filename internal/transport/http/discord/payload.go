// Package discord translates Discord interaction webhooks into invocations
// and renders responses back into Discord's message format.
package discord

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/radhhh/flae-bot/internal/domain"
)

// Interaction types.
const (
	InteractionPing        = 1
	InteractionCommand     = 2
	InteractionComponent   = 3
	InteractionModalSubmit = 5
)

// Command option types used by the manifest.
const optionSubCommand = 1

// Modal custom id prefixes. Buttons use the bare control id.
const (
	modalAdjustPrefix = "modal_adjust"
	modalGoalPrefix   = "modal_goal"
)

var errMalformed = errors.New("malformed interaction")

// Interaction is the subset of the Discord interaction object the bot reads.
type Interaction struct {
	ID     string           `json:"id"`
	Type   int              `json:"type"`
	Data   *InteractionData `json:"data,omitempty"`
	Member *struct {
		User *User `json:"user"`
	} `json:"member,omitempty"`
	User *User `json:"user,omitempty"`
}

type User struct {
	ID string `json:"id"`
}

type InteractionData struct {
	Name       string      `json:"name,omitempty"`
	Options    []Option    `json:"options,omitempty"`
	CustomID   string      `json:"custom_id,omitempty"`
	Components []Component `json:"components,omitempty"`
}

type Option struct {
	Name    string          `json:"name"`
	Type    int             `json:"type"`
	Value   json.RawMessage `json:"value,omitempty"`
	Options []Option        `json:"options,omitempty"`
}

// UserID returns the invoking user, whether the interaction came from a
// guild (member) or a DM (user).
func (i *Interaction) UserID() string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

// Invocation converts a command, component or modal interaction. Pings
// have no invocation and are answered by the handler directly.
func (i *Interaction) Invocation() (domain.Invocation, error) {
	if i.Data == nil {
		return domain.Invocation{}, errMalformed
	}
	inv := domain.Invocation{ID: i.ID, UserID: i.UserID()}

	switch i.Type {
	case InteractionCommand:
		inv.Kind = domain.InvocationKindCommand
		inv.Command, inv.Fields = commandFields(i.Data)
	case InteractionComponent:
		inv.Kind = domain.InvocationKindButton
		control, target, ok := strings.Cut(i.Data.CustomID, ":")
		if !ok {
			return domain.Invocation{}, errMalformed
		}
		inv.Control = domain.ControlID(control)
		inv.Target = target
	case InteractionModalSubmit:
		inv.Kind = domain.InvocationKindModal
		prefix, target, ok := strings.Cut(i.Data.CustomID, ":")
		if !ok {
			return domain.Invocation{}, errMalformed
		}
		switch prefix {
		case modalAdjustPrefix:
			inv.Control = domain.ControlAdjustTime
		case modalGoalPrefix:
			inv.Control = domain.ControlEditGoal
		default:
			inv.Control = domain.ControlID(prefix)
		}
		inv.Target = target
		inv.Fields = modalFields(i.Data.Components)
	default:
		return domain.Invocation{}, errMalformed
	}
	return inv, nil
}

// commandFields flattens "/session in subject:x" into ("session in", {subject: x}).
func commandFields(data *InteractionData) (string, map[string]string) {
	name := data.Name
	options := data.Options
	if len(options) > 0 && options[0].Type == optionSubCommand {
		name += " " + options[0].Name
		options = options[0].Options
	}
	fields := make(map[string]string, len(options))
	for _, opt := range options {
		fields[opt.Name] = optionValue(opt.Value)
	}
	return name, fields
}

func optionValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	// numbers and booleans keep their literal form
	return strings.TrimSpace(string(raw))
}

func modalFields(rows []Component) map[string]string {
	fields := make(map[string]string)
	for _, row := range rows {
		for _, c := range row.Components {
			if c.CustomID != "" {
				fields[c.CustomID] = c.Value
			}
		}
	}
	return fields
}
