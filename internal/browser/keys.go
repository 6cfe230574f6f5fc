package browser

import (
	"strings"

	"github.com/go-rod/rod/lib/input"
)

// namedKeys maps the planner-facing key names to CDP key codes.
var namedKeys = map[string]input.Key{
	"enter":     input.Enter,
	"return":    input.Enter,
	"tab":       input.Tab,
	"escape":    input.Escape,
	"esc":       input.Escape,
	"backspace": input.Backspace,
	"delete":    input.Delete,
	"space":     input.Space,
	"arrowup":   input.ArrowUp,
	"arrowdown": input.ArrowDown,
	"arrowleft": input.ArrowLeft,
	"arrowright": input.ArrowRight,
	"pageup":    input.PageUp,
	"pagedown":  input.PageDown,
	"home":      input.Home,
	"end":       input.End,
}

// stringToKey resolves a key name like "Enter" to an input.Key. Single
// printable characters map directly; unknown names fall back to Enter,
// the only key the planner schema actually promises.
func stringToKey(name string) input.Key {
	if key, ok := namedKeys[strings.ToLower(strings.TrimSpace(name))]; ok {
		return key
	}
	if len(name) == 1 {
		return input.Key(name[0])
	}
	return input.Enter
}
