package logsvc

import "testing"

func TestToastQueueFIFOOrder(t *testing.T) {
	q := NewToastQueue(nil)
	q.Push("first", SeverityInfo)
	q.Push("second", SeverityWarning)

	cur, ok := q.Current()
	if !ok || cur.Message != "first" {
		t.Fatalf("Current() = %+v, want \"first\"", cur)
	}

	next, ok := q.Advance()
	if !ok || next.Message != "second" {
		t.Fatalf("Advance() = %+v, want \"second\"", next)
	}
}

func TestToastQueueAdvanceOnEmptyQueue(t *testing.T) {
	q := NewToastQueue(nil)
	if _, ok := q.Advance(); ok {
		t.Error("Advance() on empty queue should report false")
	}
}

func TestToastIDsAreUnique(t *testing.T) {
	q := NewToastQueue(nil)
	a := q.Push("a", SeverityInfo)
	b := q.Push("b", SeverityInfo)
	if a.ID == b.ID {
		t.Error("expected distinct toast IDs")
	}
}

func TestPushAutoLogsToRing(t *testing.T) {
	r := NewRing(10)
	q := NewToastQueue(r)
	q.Push("careful now", SeverityWarning)

	entries := r.Query(Query{Source: "toast"})
	if len(entries) != 1 || entries[0].Level != LevelWarn {
		t.Errorf("expected toast push to be logged at warn, got %+v", entries)
	}
}

func TestDismissRemovesSpecificToast(t *testing.T) {
	q := NewToastQueue(nil)
	a := q.Push("a", SeverityInfo)
	q.Push("b", SeverityInfo)
	q.Dismiss(a.ID)

	cur, ok := q.Current()
	if !ok || cur.Message != "b" {
		t.Errorf("Current() after Dismiss = %+v, want \"b\"", cur)
	}
}
