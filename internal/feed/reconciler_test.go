package feed

import (
	"fmt"
	"testing"

	"github.com/friendforge/internal/model"
)

func msg(id, sender, receiver, content, ts string) model.Message {
	return model.Message{
		ID:         id,
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		Timestamp:  ts,
	}
}

func viewIDs(t *testing.T, r *Reconciler) []string {
	t.Helper()
	view := r.View()
	ids := make([]string, len(view))
	for i, m := range view {
		ids[i] = m.ID
	}
	return ids
}

func wantOrder(t *testing.T, r *Reconciler, want ...string) {
	t.Helper()
	got := viewIDs(t, r)
	if len(got) != len(want) {
		t.Fatalf("view has %d messages, want %d: got %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("view order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestReconciler_InterleavesTwoDirections(t *testing.T) {
	r := NewReconciler()

	// viewer->peer direction
	r.Apply([]Change{
		Added(msg("m1", "alice", "bob", "hi", "2026-03-01T10:00:00Z")),
		Added(msg("m3", "alice", "bob", "still there?", "2026-03-01T10:02:00Z")),
	})
	// peer->viewer direction arrives later but sorts in between
	r.Apply([]Change{
		Added(msg("m2", "bob", "alice", "hey", "2026-03-01T10:01:00Z")),
	})

	wantOrder(t, r, "m1", "m2", "m3")
}

func TestReconciler_MergeIsCommutative(t *testing.T) {
	batchA := []Change{
		Added(msg("a1", "alice", "bob", "one", "2026-03-01T09:00:00Z")),
		Added(msg("a2", "alice", "bob", "three", "2026-03-01T09:02:00Z")),
	}
	batchB := []Change{
		Added(msg("b1", "bob", "alice", "two", "2026-03-01T09:01:00Z")),
		Added(msg("b2", "bob", "alice", "four", "2026-03-01T09:03:00Z")),
	}

	first := NewReconciler()
	first.Apply(batchA)
	first.Apply(batchB)

	second := NewReconciler()
	second.Apply(batchB)
	second.Apply(batchA)

	got, want := first.View(), second.View()
	if len(got) != len(want) {
		t.Fatalf("views differ in length: %d vs %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("view[%d] differs by apply order: %+v vs %+v", i, got[i], want[i])
		}
	}
}

func TestReconciler_DuplicateAddKeepsOneEntry(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{Added(msg("m1", "alice", "bob", "hi", "2026-03-01T10:00:00Z"))})
	// same id delivered again by the other direction's snapshot
	r.Apply([]Change{Added(msg("m1", "alice", "bob", "hi (edited)", "2026-03-01T10:00:00Z"))})

	if r.Len() != 1 {
		t.Fatalf("working set has %d entries, want 1", r.Len())
	}
	view := r.View()
	if view[0].Content != "hi (edited)" {
		t.Errorf("re-add did not overwrite: content = %q", view[0].Content)
	}
}

func TestReconciler_ModifiedWithoutPriorAddUpserts(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{Modified(msg("m9", "bob", "alice", "late edit", "2026-03-01T11:00:00Z"))})

	wantOrder(t, r, "m9")
	if got := r.View()[0].Content; got != "late edit" {
		t.Errorf("content = %q, want %q", got, "late edit")
	}
}

func TestReconciler_ModifiedReplacesPayload(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{Added(msg("m1", "alice", "bob", "typo", "2026-03-01T10:00:00Z"))})
	r.Apply([]Change{Modified(msg("m1", "alice", "bob", "fixed", "2026-03-01T10:00:00Z"))})

	if r.Len() != 1 {
		t.Fatalf("working set has %d entries, want 1", r.Len())
	}
	if got := r.View()[0].Content; got != "fixed" {
		t.Errorf("content = %q, want %q", got, "fixed")
	}
}

func TestReconciler_RemoveIsIdempotent(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{
		Added(msg("m1", "alice", "bob", "a", "2026-03-01T10:00:00Z")),
		Added(msg("m2", "alice", "bob", "b", "2026-03-01T10:01:00Z")),
	})
	r.Apply([]Change{Removed("m1")})
	r.Apply([]Change{Removed("m1")})
	r.Apply([]Change{Removed("never-existed")})

	wantOrder(t, r, "m2")
}

func TestReconciler_ReAddAfterRemove(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{Added(msg("m1", "alice", "bob", "a", "2026-03-01T10:00:00Z"))})
	r.Apply([]Change{Removed("m1")})
	if r.Len() != 0 {
		t.Fatalf("working set not empty after remove: %d", r.Len())
	}
	r.Apply([]Change{Added(msg("m1", "alice", "bob", "a again", "2026-03-01T10:00:00Z"))})

	wantOrder(t, r, "m1")
	if got := r.View()[0].Content; got != "a again" {
		t.Errorf("content = %q, want %q", got, "a again")
	}
}

func TestReconciler_EqualTimestampsKeepArrivalOrder(t *testing.T) {
	r := NewReconciler()
	ts := "2026-03-01T10:00:00Z"
	r.Apply([]Change{
		Added(msg("first", "alice", "bob", "1", ts)),
		Added(msg("second", "bob", "alice", "2", ts)),
	})
	r.Apply([]Change{Added(msg("third", "alice", "bob", "3", ts))})

	wantOrder(t, r, "first", "second", "third")

	// a modify must not demote the entry behind later arrivals
	r.Apply([]Change{Modified(msg("first", "alice", "bob", "1 edited", ts))})
	wantOrder(t, r, "first", "second", "third")
}

func TestReconciler_OrderingIsLexicalOnTimestampString(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{
		Added(msg("late", "a", "b", "x", "2026-03-01T10:00:01Z")),
		Added(msg("early", "a", "b", "x", "2026-03-01T09:59:59Z")),
		Added(msg("mid", "a", "b", "x", "2026-03-01T10:00:00Z")),
	})
	wantOrder(t, r, "early", "mid", "late")
}

func TestReconciler_OneStreamFailureKeepsOtherContribution(t *testing.T) {
	r := NewReconciler()
	// direction A delivered its snapshot, then its stream dies; no events
	// are applied for it again
	r.Apply([]Change{Added(msg("a1", "alice", "bob", "from A", "2026-03-01T10:00:00Z"))})

	// direction B keeps flowing
	r.Apply([]Change{Added(msg("b1", "bob", "alice", "from B", "2026-03-01T10:01:00Z"))})
	r.Apply([]Change{Added(msg("b2", "bob", "alice", "more B", "2026-03-01T10:02:00Z"))})

	wantOrder(t, r, "a1", "b1", "b2")
}

func TestReconciler_SkipsChangesWithoutID(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{
		{Kind: ChangeAdded, Message: model.Message{Content: "no id"}},
		Added(msg("m1", "a", "b", "ok", "2026-03-01T10:00:00Z")),
	})
	wantOrder(t, r, "m1")
}

func TestReconciler_ViewIsRebuiltWholesale(t *testing.T) {
	r := NewReconciler()
	r.Apply([]Change{Added(msg("m1", "a", "b", "x", "2026-03-01T10:00:00Z"))})
	first := r.View()

	r.Apply([]Change{Added(msg("m0", "b", "a", "y", "2026-03-01T09:00:00Z"))})
	second := r.View()

	if len(first) != 1 {
		t.Errorf("earlier view mutated: len = %d, want 1", len(first))
	}
	if len(second) != 2 || second[0].ID != "m0" {
		t.Errorf("new view not rebuilt in order: %v", second)
	}
}

func BenchmarkReconcilerApplyAndView(b *testing.B) {
	batch := make([]Change, 100)
	for i := range batch {
		batch[i] = Added(msg(
			fmt.Sprintf("m%03d", i), "alice", "bob", "content",
			fmt.Sprintf("2026-03-01T10:%02d:%02dZ", i/60, i%60),
		))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		r := NewReconciler()
		r.Apply(batch)
		_ = r.View()
	}
}
