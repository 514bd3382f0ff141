package tmux

import "testing"

func TestTranslateKeyNamed(t *testing.T) {
	tok, literal, err := TranslateKey("Enter")
	if err != nil {
		t.Fatalf("TranslateKey(Enter) error = %v", err)
	}
	if literal {
		t.Error("Enter should not be literal")
	}
	if tok != "Enter" {
		t.Errorf("TranslateKey(Enter) = %q, want Enter", tok)
	}
}

func TestTranslateKeyPrintableRoundTrips(t *testing.T) {
	for _, r := range []string{"a", "Z", "3", "!", " "} {
		tok, literal, err := TranslateKey(r)
		if err != nil {
			t.Fatalf("TranslateKey(%q) error = %v", r, err)
		}
		if !literal {
			t.Errorf("TranslateKey(%q) literal = false, want true", r)
		}
		if tok != r {
			t.Errorf("TranslateKey(%q) = %q, want %q (round-trip)", r, tok, r)
		}
	}
}

func TestTranslateKeyUnknown(t *testing.T) {
	if _, _, err := TranslateKey("FooBar"); err == nil {
		t.Error("TranslateKey(FooBar) expected error, got nil")
	}
}
