// Package keyboard maps key names to presentation actions.
//
// Key names follow the DOM KeyboardEvent.key convention ("ArrowRight",
// "PageDown", " ", "Escape"). Views that receive keys in another form, such
// as the terminal UI, translate them with Normalize first.
package keyboard

import "sync"

// Action is a navigation intent produced by a key press.
type Action string

const (
	ActionNone     Action = ""
	ActionNext     Action = "next"
	ActionPrevious Action = "previous"
	ActionFirst    Action = "first"
	ActionLast     Action = "last"
	ActionExit     Action = "exit"
	ActionCustom   Action = "custom"
)

// DefaultBindings returns the built-in key map.
func DefaultBindings() map[string]Action {
	return map[string]Action{
		"ArrowRight": ActionNext,
		"PageDown":   ActionNext,
		" ":          ActionNext,
		"ArrowLeft":  ActionPrevious,
		"PageUp":     ActionPrevious,
		"Home":       ActionFirst,
		"End":        ActionLast,
		"Escape":     ActionExit,
	}
}

// Handlers receives the actions produced by Dispatch. Nil handlers are skipped.
type Handlers struct {
	OnNext     func()
	OnPrevious func()
	OnFirst    func()
	OnLast     func()
	OnExit     func()
}

// Bindings dispatches key presses to handlers. Custom single-key bindings are
// checked before the built-in map.
type Bindings struct {
	handlers Handlers
	mu       sync.RWMutex
	builtin  map[string]Action
	custom   map[string]func()
}

// New creates Bindings with the default key map.
func New(h Handlers) *Bindings {
	return &Bindings{
		handlers: h,
		builtin:  DefaultBindings(),
		custom:   make(map[string]func()),
	}
}

// Bind registers a custom handler for key, replacing any previous one.
func (b *Bindings) Bind(key string, fn func()) {
	if key == "" || fn == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.custom[key] = fn
}

// Unbind removes a custom handler.
func (b *Bindings) Unbind(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.custom, key)
}

// Lookup returns the action key would trigger without running it.
func (b *Bindings) Lookup(key string) Action {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if _, ok := b.custom[key]; ok {
		return ActionCustom
	}
	return b.builtin[key]
}

// Dispatch runs the handler bound to key and returns the action taken.
// Unbound keys are a no-op and return ActionNone.
func (b *Bindings) Dispatch(key string) Action {
	b.mu.RLock()
	custom, ok := b.custom[key]
	action := b.builtin[key]
	b.mu.RUnlock()

	if ok {
		custom()
		return ActionCustom
	}

	var fn func()
	switch action {
	case ActionNext:
		fn = b.handlers.OnNext
	case ActionPrevious:
		fn = b.handlers.OnPrevious
	case ActionFirst:
		fn = b.handlers.OnFirst
	case ActionLast:
		fn = b.handlers.OnLast
	case ActionExit:
		fn = b.handlers.OnExit
	default:
		return ActionNone
	}
	if fn != nil {
		fn()
	}
	return action
}

// terminalKeys maps terminal key names to DOM key names.
var terminalKeys = map[string]string{
	"right":     "ArrowRight",
	"left":      "ArrowLeft",
	"up":        "ArrowUp",
	"down":      "ArrowDown",
	"pgdown":    "PageDown",
	"pgup":      "PageUp",
	"home":      "Home",
	"end":       "End",
	"esc":       "Escape",
	"space":     " ",
	"enter":     "Enter",
	"tab":       "Tab",
	"backspace": "Backspace",
}

// Normalize converts a terminal key name to its DOM equivalent. Single
// characters and already-normalized names pass through unchanged.
func Normalize(key string) string {
	if k, ok := terminalKeys[key]; ok {
		return k
	}
	return key
}
