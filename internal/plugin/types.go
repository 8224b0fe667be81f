// Package plugin discovers and runs action plugins: external executables that
// react to slide navigation, for example by pressing keys in another
// presentation program.
package plugin

import (
	"encoding/json"
	"slices"
)

// Manifest describes a plugin's metadata and capabilities. It is read from
// plugin.json in the plugin's directory.
type Manifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable"`
	Actions      []string        `json:"actions"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Navigation describes the slide change that triggered a plugin action.
type Navigation struct {
	Action  string `json:"action"`            // next, previous, first, last
	Source  string `json:"source"`            // gesture, keyboard, http, tray
	Gesture string `json:"gesture,omitempty"` // set when Source is gesture
	From    int    `json:"from"`
	To      int    `json:"to"`
	Total   int    `json:"total"`
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Action     string          `json:"action"`
	Navigation Navigation      `json:"navigation"`
	Config     json.RawMessage `json:"config,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the manifest declares action. A manifest without
// actions accepts any.
func (p *Plugin) Supports(action string) bool {
	return len(p.Manifest.Actions) == 0 || slices.Contains(p.Manifest.Actions, action)
}
