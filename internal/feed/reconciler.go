// Package feed merges the two live change streams of a direct conversation
// (viewer->peer and peer->viewer) into one duplicate-free ordered view.
package feed

import (
	"sort"

	"github.com/friendforge/internal/model"
)

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Change is a single event from one direction of a conversation.
// For ChangeRemoved only Message.ID is meaningful.
type Change struct {
	Kind    ChangeKind    `json:"kind"`
	Message model.Message `json:"message"`
}

func Added(m model.Message) Change    { return Change{Kind: ChangeAdded, Message: m} }
func Modified(m model.Message) Change { return Change{Kind: ChangeModified, Message: m} }
func Removed(id string) Change        { return Change{Kind: ChangeRemoved, Message: model.Message{ID: id}} }

type entry struct {
	msg model.Message
	seq uint64 // arrival order, breaks ties between equal timestamps
}

// Reconciler folds change batches from any number of streams into a
// working set keyed by message id. It never touches identity or storage;
// callers feed it batches and publish the View after each Apply.
//
// Not safe for concurrent use; the owning conversation session serializes
// access.
type Reconciler struct {
	working map[string]entry
	nextSeq uint64
}

func NewReconciler() *Reconciler {
	return &Reconciler{working: make(map[string]entry)}
}

// Apply folds one batch into the working set. Events from either direction
// go through the same path, so the merge is commutative with respect to
// stream origin:
//
//   - added: insert, or overwrite if the id is already present;
//   - modified: replace, or insert if the id was never seen;
//   - removed: delete, no-op if absent.
func (r *Reconciler) Apply(batch []Change) {
	for _, c := range batch {
		id := c.Message.ID
		if id == "" {
			continue
		}
		switch c.Kind {
		case ChangeAdded, ChangeModified:
			r.upsert(c.Message)
		case ChangeRemoved:
			delete(r.working, id)
		}
	}
}

func (r *Reconciler) upsert(m model.Message) {
	if prev, ok := r.working[m.ID]; ok {
		prev.msg = m
		r.working[m.ID] = prev
		return
	}
	r.working[m.ID] = entry{msg: m, seq: r.nextSeq}
	r.nextSeq++
}

// View returns the full merged conversation sorted ascending by the
// Timestamp string (byte-wise comparison). Equal timestamps keep arrival
// order. The slice is rebuilt wholesale on every call; callers must not
// retain it across Apply calls.
func (r *Reconciler) View() []model.Message {
	entries := make([]entry, 0, len(r.working))
	for _, e := range r.working {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].msg.Timestamp != entries[j].msg.Timestamp {
			return entries[i].msg.Timestamp < entries[j].msg.Timestamp
		}
		return entries[i].seq < entries[j].seq
	})
	out := make([]model.Message, len(entries))
	for i, e := range entries {
		out[i] = e.msg
	}
	return out
}

// Len reports the number of messages currently in the working set.
func (r *Reconciler) Len() int { return len(r.working) }
