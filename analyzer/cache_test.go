package analyzer

import (
	"testing"
	"time"
)

func TestLRUCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2, time.Minute)
	c.Put("a", Result{Stage: StageInProgress})
	c.Put("b", Result{Stage: StageInProgress})
	c.Get("a") // touch a, making b the LRU entry
	c.Put("c", Result{Stage: StageInProgress})

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted as least recently used")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a should still be cached")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c should be cached")
	}
}

func TestLRUCacheExpiresByTTL(t *testing.T) {
	c := newLRUCache(10, 10*time.Millisecond)
	c.Put("a", Result{Stage: StageOpenPrompt})

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a fresh hit")
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a"); ok {
		t.Error("expected entry to have expired")
	}
}

func TestLRUCachePutRefreshesExistingKey(t *testing.T) {
	c := newLRUCache(10, time.Minute)
	c.Put("a", Result{Stage: StageInProgress})
	c.Put("a", Result{Stage: StageOpenPrompt})

	got, ok := c.Get("a")
	if !ok || got.Stage != StageOpenPrompt {
		t.Errorf("got %+v, want refreshed StageOpenPrompt entry", got)
	}
}
