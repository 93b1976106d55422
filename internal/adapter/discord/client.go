// Package discord provides a REST client for the Discord application API.
package discord

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed commands.yaml
var manifest []byte

// Command is an application command definition.
type Command struct {
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Options     []CommandOption `yaml:"options,omitempty" json:"options,omitempty"`
}

type CommandOption struct {
	Name        string          `yaml:"name" json:"name"`
	Type        int             `yaml:"type" json:"type"`
	Description string          `yaml:"description" json:"description"`
	Required    bool            `yaml:"required,omitempty" json:"required,omitempty"`
	MaxLength   int             `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	MinValue    *float64        `yaml:"min_value,omitempty" json:"min_value,omitempty"`
	MaxValue    *float64        `yaml:"max_value,omitempty" json:"max_value,omitempty"`
	Options     []CommandOption `yaml:"options,omitempty" json:"options,omitempty"`
}

// Commands returns the bundled slash command manifest.
func Commands() ([]Command, error) {
	return ParseCommands(manifest)
}

// ParseCommands decodes a YAML command manifest.
func ParseCommands(data []byte) ([]Command, error) {
	var cmds []Command
	if err := yaml.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("failed to parse command manifest: %w", err)
	}
	for _, c := range cmds {
		if c.Name == "" || c.Description == "" {
			return nil, fmt.Errorf("command manifest: name and description are required (%q)", c.Name)
		}
	}
	return cmds, nil
}

// Client calls the Discord REST API with a bot token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient creates a new Discord client.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
	}
}

// RegisterCommands overwrites the application's commands. A non-empty
// guildID registers them for that guild only, which takes effect at once.
func (c *Client) RegisterCommands(ctx context.Context, appID, guildID string, cmds []Command) ([]RegisteredCommand, error) {
	if appID == "" {
		return nil, fmt.Errorf("discord application id is required")
	}
	path := "/applications/" + appID + "/commands"
	if guildID != "" {
		path = "/applications/" + appID + "/guilds/" + guildID + "/commands"
	}

	body, err := json.Marshal(cmds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal commands: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to register commands: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("discord returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var registered []RegisteredCommand
	if err := json.Unmarshal(respBody, &registered); err != nil {
		return nil, fmt.Errorf("failed to parse discord response: %w", err)
	}
	return registered, nil
}

// RegisteredCommand is the part of Discord's reply the CLI reports.
type RegisteredCommand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
