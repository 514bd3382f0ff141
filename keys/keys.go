// Package keys is the TUI's keybinding table: which physical key fires
// which control-pane action. It is distinct from tmux.TranslateKey, which
// maps a key event onto the token sent *into* an agent's pane.
package keys

import "github.com/charmbracelet/bubbles/key"

type KeyName int

const (
	KeyUp KeyName = iota
	KeyDown
	KeyLeft
	KeyRight
	KeyEnter
	KeyTab

	KeyNew
	KeyNewWithPrompt
	KeyClose
	KeyRename
	KeyDuplicate
	KeyMerge
	KeyToggleAutopilot
	KeyOpenInEditor
	KeyCopyPath

	KeySearch
	KeyHelp
	KeyQuit
)

// GlobalKeyStringsMap maps a bubbletea key string to the action it fires.
var GlobalKeyStringsMap = map[string]KeyName{
	"up":   KeyUp,
	"k":    KeyUp,
	"down": KeyDown,
	"j":    KeyDown,
	"left": KeyLeft,
	"h":    KeyLeft,

	"right": KeyRight,
	"l":     KeyRight,

	"enter": KeyEnter,
	"o":     KeyEnter,
	"tab":   KeyTab,

	"n": KeyNew,
	"N": KeyNewWithPrompt,
	"D": KeyClose,
	"r": KeyRename,
	"d": KeyDuplicate,
	"m": KeyMerge,
	"a": KeyToggleAutopilot,
	"e": KeyOpenInEditor,
	"y": KeyCopyPath,

	"/": KeySearch,
	"?": KeyHelp,
	"q": KeyQuit,
}

// GlobalKeyBindings maps an action to the bubbles/key.Binding used to
// render its help text and match key.Msg events.
var GlobalKeyBindings = map[KeyName]key.Binding{
	KeyUp: key.NewBinding(
		key.WithKeys("up", "k"),
		key.WithHelp("↑/k", "up"),
	),
	KeyDown: key.NewBinding(
		key.WithKeys("down", "j"),
		key.WithHelp("↓/j", "down"),
	),
	KeyLeft: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "sidebar"),
	),
	KeyRight: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "panes"),
	),
	KeyEnter: key.NewBinding(
		key.WithKeys("enter", "o"),
		key.WithHelp("↵/o", "focus pane"),
	),
	KeyTab: key.NewBinding(
		key.WithKeys("tab"),
		key.WithHelp("tab", "switch tab"),
	),
	KeyNew: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "new pane"),
	),
	KeyNewWithPrompt: key.NewBinding(
		key.WithKeys("N"),
		key.WithHelp("N", "new with prompt"),
	),
	KeyClose: key.NewBinding(
		key.WithKeys("D"),
		key.WithHelp("D", "close"),
	),
	KeyRename: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "rename"),
	),
	KeyDuplicate: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "duplicate"),
	),
	KeyMerge: key.NewBinding(
		key.WithKeys("m"),
		key.WithHelp("m", "merge"),
	),
	KeyToggleAutopilot: key.NewBinding(
		key.WithKeys("a"),
		key.WithHelp("a", "toggle autopilot"),
	),
	KeyOpenInEditor: key.NewBinding(
		key.WithKeys("e"),
		key.WithHelp("e", "open in editor"),
	),
	KeyCopyPath: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy path"),
	),
	KeySearch: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "search"),
	),
	KeyHelp: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	KeyQuit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
}

// UserKeyMappings lets a settings file override the default key→action
// bindings. Each action name maps to a list of key strings that should
// fire it, replacing (not adding to) the defaults for that action.
type UserKeyMappings map[string][]string

var actionNames = map[string]KeyName{
	"up": KeyUp, "down": KeyDown, "left": KeyLeft, "right": KeyRight,
	"enter": KeyEnter, "tab": KeyTab,
	"new": KeyNew, "newWithPrompt": KeyNewWithPrompt,
	"close": KeyClose, "rename": KeyRename, "duplicate": KeyDuplicate,
	"merge": KeyMerge, "toggleAutopilot": KeyToggleAutopilot,
	"openInEditor": KeyOpenInEditor, "copyPath": KeyCopyPath,
	"search": KeySearch, "help": KeyHelp, "quit": KeyQuit,
}

// ApplyUserMappings rewrites GlobalKeyStringsMap and GlobalKeyBindings in
// place so that, for every action named in mappings, only the given keys
// fire it.
func ApplyUserMappings(mappings UserKeyMappings) {
	for action, userKeys := range mappings {
		name, ok := actionNames[action]
		if !ok {
			continue
		}
		for k, v := range GlobalKeyStringsMap {
			if v == name {
				delete(GlobalKeyStringsMap, k)
			}
		}
		for _, k := range userKeys {
			GlobalKeyStringsMap[k] = name
		}
		if binding, ok := GlobalKeyBindings[name]; ok {
			help := binding.Help()
			GlobalKeyBindings[name] = key.NewBinding(
				key.WithKeys(userKeys...),
				key.WithHelp(help.Key, help.Desc),
			)
		}
	}
}
