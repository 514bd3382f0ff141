package tmux

import "fmt"

// TranslateKey converts a key name from the terminal UI's key event vocabulary
// into the token(s) tmux send-keys expects. Printable ASCII runes pass through
// as literal text (sent via SendLiteral); everything else maps to a named
// tmux key. Round-tripping a printable rune through TranslateKey and back
// through the UI's own key decoder must reproduce the original rune — this
// table is the single place that mapping lives, so there is exactly one
// place to keep both directions honest.
func TranslateKey(name string) (token string, literal bool, err error) {
	if named, ok := namedKeys[name]; ok {
		return named, false, nil
	}
	if len(name) == 1 {
		return name, true, nil
	}
	return "", false, fmt.Errorf("tmux: unrecognized key %q", name)
}

var namedKeys = map[string]string{
	"Enter":      "Enter",
	"Tab":        "Tab",
	"BackTab":    "BTab",
	"Backspace":  "BSpace",
	"Delete":     "DC",
	"Escape":     "Escape",
	"Up":         "Up",
	"Down":       "Down",
	"Left":       "Left",
	"Right":      "Right",
	"Home":       "Home",
	"End":        "End",
	"PageUp":     "PageUp",
	"PageDown":   "PageDown",
	"Space":      "Space",
	"CtrlC":      "C-c",
	"CtrlD":      "C-d",
	"CtrlU":      "C-u",
	"CtrlL":      "C-l",
}
