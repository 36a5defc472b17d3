package browser

import "github.com/go-rod/rod/lib/input"

// keyMap maps canonical key names to rod key types
var keyMap = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

// rodKey resolves a canonical key name or a single character that rod can
// press. Characters outside rod's key tables are not keys.
func rodKey(key string) (input.Key, bool) {
	if k, ok := keyMap[key]; ok {
		return k, true
	}
	if r := []rune(key); len(r) == 1 && pressable(input.Key(r[0])) {
		return input.Key(r[0]), true
	}
	return 0, false
}

// pressable reports whether rod knows k. Key.Info panics for undefined keys.
func pressable(k input.Key) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	k.Info()
	return true
}
