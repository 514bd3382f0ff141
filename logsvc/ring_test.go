package logsvc

import "testing"

func TestRingEvictsOldestBeyondCapacity(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		r.Push(LevelInfo, "test", "msg", "", "")
	}
	all := r.Query(Query{})
	if len(all) != 3 {
		t.Fatalf("expected ring capped at 3, got %d", len(all))
	}
}

func TestQueryFiltersByLevelAndPane(t *testing.T) {
	r := NewRing(10)
	r.Push(LevelInfo, "a", "hello", "p1", "")
	r.Push(LevelError, "a", "boom", "p2", "")
	r.Push(LevelError, "a", "boom again", "p1", "")

	errs := r.Query(Query{Level: LevelError})
	if len(errs) != 2 {
		t.Errorf("expected 2 error entries, got %d", len(errs))
	}

	p1 := r.Query(Query{PaneID: "p1"})
	if len(p1) != 2 {
		t.Errorf("expected 2 entries for p1, got %d", len(p1))
	}
}

func TestMarkAsReadAndUnreadCounts(t *testing.T) {
	r := NewRing(10)
	e := r.Push(LevelWarn, "a", "careful", "", "")
	counts := r.UnreadCounts()
	if counts[LevelWarn] != 1 {
		t.Fatalf("expected 1 unread warn, got %d", counts[LevelWarn])
	}
	r.MarkAsRead(e.ID)
	counts = r.UnreadCounts()
	if counts[LevelWarn] != 0 {
		t.Errorf("expected 0 unread warn after MarkAsRead, got %d", counts[LevelWarn])
	}
}

func TestClearForPaneRemovesOnlyThatPanesEntries(t *testing.T) {
	r := NewRing(10)
	r.Push(LevelInfo, "a", "one", "p1", "")
	r.Push(LevelInfo, "a", "two", "p2", "")
	r.ClearForPane("p1")

	remaining := r.Query(Query{})
	if len(remaining) != 1 || remaining[0].PaneID != "p2" {
		t.Errorf("ClearForPane left unexpected entries: %+v", remaining)
	}
}
