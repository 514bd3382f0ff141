package action

import "testing"

func TestProgressCarriesTypeAndTimeout(t *testing.T) {
	r := Progress("resolving conflicts", "ai_merge", 600000)
	if r.Kind != KindProgress {
		t.Fatalf("Kind = %v, want KindProgress", r.Kind)
	}
	if r.Message != "resolving conflicts" {
		t.Errorf("Message = %q", r.Message)
	}
	if r.ProgressType != "ai_merge" {
		t.Errorf("ProgressType = %q, want %q", r.ProgressType, "ai_merge")
	}
	if r.TimeoutMs != 600000 {
		t.Errorf("TimeoutMs = %d, want %d", r.TimeoutMs, 600000)
	}
}
