// Command keyboard is an action plugin that mirrors slide navigation into the
// frontmost application by pressing keys, so a deck open in another
// presentation program follows along. It uses AppleScript on macOS and
// xdotool on Linux.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request is the input from the plugin executor.
type Request struct {
	Action     string          `json:"action"`
	Navigation Navigation      `json:"navigation"`
	Config     json.RawMessage `json:"config"`
	Params     json.RawMessage `json:"params"`
}

// Navigation is the slide change that triggered the request.
type Navigation struct {
	Action string `json:"action"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// Response is the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeystrokeConfig selects the key sent by the keystroke action.
type KeystrokeConfig struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

// key is one named key in both backends.
type key struct {
	macCode int    // AppleScript key code
	xdotool string // xdotool keysym
}

// navKeys are the keys pressed for each navigation action.
var navKeys = map[string]key{
	"next":     {macCode: 124, xdotool: "Right"},
	"previous": {macCode: 123, xdotool: "Left"},
	"first":    {macCode: 115, xdotool: "Home"},
	"last":     {macCode: 119, xdotool: "End"},
}

var macModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

var xdotoolModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}
	writeResponse(handle(req))
}

func handle(req Request) error {
	switch req.Action {
	case "next", "previous", "first", "last":
		return pressNav(req.Action)
	case "follow":
		// Press whatever the presenter just did.
		if _, ok := navKeys[req.Navigation.Action]; !ok {
			return fmt.Errorf("unknown navigation action: %s", req.Navigation.Action)
		}
		return pressNav(req.Navigation.Action)
	case "keystroke":
		var cfg KeystrokeConfig
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if cfg.Key == "" {
			return fmt.Errorf("key is required")
		}
		return keystroke(cfg)
	default:
		return fmt.Errorf("unknown action: %s", req.Action)
	}
}

func pressNav(action string) error {
	k := navKeys[action]
	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", fmt.Sprintf(`tell application "System Events" to key code %d`, k.macCode))
	case "linux":
		return run("xdotool", "key", k.xdotool)
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

func keystroke(cfg KeystrokeConfig) error {
	switch runtime.GOOS {
	case "darwin":
		return run("osascript", "-e", appleScriptKeystroke(cfg))
	case "linux":
		return run("xdotool", "key", xdotoolChord(cfg))
	default:
		return fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}
}

func appleScriptKeystroke(cfg KeystrokeConfig) string {
	var mods []string
	for _, m := range cfg.Modifiers {
		if am, ok := macModifiers[strings.ToLower(m)]; ok {
			mods = append(mods, am)
		}
	}
	if len(mods) == 0 {
		return fmt.Sprintf(`tell application "System Events" to keystroke "%s"`, cfg.Key)
	}
	return fmt.Sprintf(`tell application "System Events" to keystroke "%s" using {%s}`, cfg.Key, strings.Join(mods, ", "))
}

func xdotoolChord(cfg KeystrokeConfig) string {
	var parts []string
	for _, m := range cfg.Modifiers {
		if xm, ok := xdotoolModifiers[strings.ToLower(m)]; ok {
			parts = append(parts, xm)
		}
	}
	return strings.Join(append(parts, cfg.Key), "+")
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}

func run(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
