package solve

import (
	"fmt"
	"testing"
)

func TestWatchIndexStateKeying(t *testing.T) {
	w := newWatchIndex()
	w.learn("state-1", "a", "2.0.0", "no compatible c")

	if reason, hit := w.forbidden("state-1", "a", "2.0.0"); !hit || reason != "no compatible c" {
		t.Errorf("forbidden = %q, %v; want recorded clause", reason, hit)
	}
	// Same literal under a different state is a different clause.
	if _, hit := w.forbidden("state-2", "a", "2.0.0"); hit {
		t.Error("clause pruned a state it was not proven for")
	}
	if _, hit := w.forbidden("state-1", "a", "1.0.0"); hit {
		t.Error("clause matched a different version")
	}
}

func TestWatchIndexFlushWhenFull(t *testing.T) {
	w := newWatchIndex()
	w.maxSize = 8
	for i := 0; i < 8; i++ {
		w.learn("s", "p", fmt.Sprintf("1.0.%d", i), "dead end")
	}
	if w.size() != 8 {
		t.Fatalf("size = %d, want 8", w.size())
	}
	w.learn("s", "p", "2.0.0", "dead end")
	if w.size() != 1 {
		t.Errorf("size after flush = %d, want 1", w.size())
	}
	if _, hit := w.forbidden("s", "p", "1.0.0"); hit {
		t.Error("flushed clause still reported")
	}
	if _, hit := w.forbidden("s", "p", "2.0.0"); !hit {
		t.Error("clause learned after flush not reported")
	}
}
