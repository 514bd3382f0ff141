package keys

import "testing"

func TestApplyUserMappingsOverridesQuit(t *testing.T) {
	original := make(map[string]KeyName, len(GlobalKeyStringsMap))
	for k, v := range GlobalKeyStringsMap {
		original[k] = v
	}
	defer func() { GlobalKeyStringsMap = original }()

	ApplyUserMappings(UserKeyMappings{"quit": {"Q"}})

	if _, stillThere := GlobalKeyStringsMap["q"]; stillThere {
		t.Error("expected default \"q\" binding to be removed after override")
	}
	if GlobalKeyStringsMap["Q"] != KeyQuit {
		t.Errorf("GlobalKeyStringsMap[\"Q\"] = %v, want KeyQuit", GlobalKeyStringsMap["Q"])
	}
	if GlobalKeyStringsMap["up"] != KeyUp {
		t.Error("unrelated binding \"up\" should be unaffected")
	}
}

func TestApplyUserMappingsUnknownActionIgnored(t *testing.T) {
	original := make(map[string]KeyName, len(GlobalKeyStringsMap))
	for k, v := range GlobalKeyStringsMap {
		original[k] = v
	}
	defer func() { GlobalKeyStringsMap = original }()

	ApplyUserMappings(UserKeyMappings{"doesNotExist": {"X"}})

	if _, ok := GlobalKeyStringsMap["X"]; ok {
		t.Error("unknown action name should not introduce a new binding")
	}
}

func TestDefaultBindingsCoverEveryKeyName(t *testing.T) {
	names := []KeyName{
		KeyUp, KeyDown, KeyLeft, KeyRight, KeyEnter, KeyTab,
		KeyNew, KeyNewWithPrompt, KeyClose, KeyRename, KeyDuplicate,
		KeyMerge, KeyToggleAutopilot, KeyOpenInEditor, KeyCopyPath,
		KeySearch, KeyHelp, KeyQuit,
	}
	for _, n := range names {
		if _, ok := GlobalKeyBindings[n]; !ok {
			t.Errorf("GlobalKeyBindings missing entry for %v", n)
		}
	}
}
