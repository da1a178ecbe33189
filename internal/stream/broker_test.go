package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendforge/internal/feed"
	"github.com/friendforge/internal/model"
)

type fakeSource struct {
	msgs map[Direction][]model.Message
	err  error
}

func (f *fakeSource) ListDirection(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[Direction{SenderID: senderID, ReceiverID: receiverID}], nil
}

func recvBatch(t *testing.T, sub *Subscription) []feed.Change {
	t.Helper()
	select {
	case batch, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription channel closed unexpectedly")
		}
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
	return nil
}

func TestBroker_SnapshotIsFirstBatch(t *testing.T) {
	dir := Direction{SenderID: "alice", ReceiverID: "bob"}
	source := &fakeSource{msgs: map[Direction][]model.Message{
		dir: {
			{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "a", Timestamp: "2026-03-01T10:00:00Z"},
			{ID: "m2", SenderID: "alice", ReceiverID: "bob", Content: "b", Timestamp: "2026-03-01T10:01:00Z"},
		},
	}}
	broker := NewBroker(NewMemoryBus(), source)

	sub, err := broker.Subscribe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	batch := recvBatch(t, sub)
	if len(batch) != 2 {
		t.Fatalf("snapshot batch has %d changes, want 2", len(batch))
	}
	for _, c := range batch {
		if c.Kind != feed.ChangeAdded {
			t.Errorf("snapshot change kind = %q, want %q", c.Kind, feed.ChangeAdded)
		}
	}
	if batch[0].Message.ID != "m1" || batch[1].Message.ID != "m2" {
		t.Errorf("snapshot order wrong: %v, %v", batch[0].Message.ID, batch[1].Message.ID)
	}
}

func TestBroker_DeliversPublishedChanges(t *testing.T) {
	dir := Direction{SenderID: "alice", ReceiverID: "bob"}
	broker := NewBroker(NewMemoryBus(), &fakeSource{})

	sub, err := broker.Subscribe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	recvBatch(t, sub) // empty snapshot

	msg := model.Message{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi", Timestamp: "2026-03-01T10:00:00Z"}
	if err := broker.Publish(dir, []feed.Change{feed.Added(msg)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	batch := recvBatch(t, sub)
	if len(batch) != 1 || batch[0].Message.ID != "m1" {
		t.Fatalf("unexpected batch: %+v", batch)
	}
}

func TestBroker_DirectionsAreIsolated(t *testing.T) {
	broker := NewBroker(NewMemoryBus(), &fakeSource{})
	ab := Direction{SenderID: "alice", ReceiverID: "bob"}
	ba := Direction{SenderID: "bob", ReceiverID: "alice"}

	sub, err := broker.Subscribe(context.Background(), ab)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	recvBatch(t, sub)

	other := model.Message{ID: "x", SenderID: "bob", ReceiverID: "alice", Content: "hi", Timestamp: "2026-03-01T10:00:00Z"}
	if err := broker.Publish(ba, []feed.Change{feed.Added(other)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case batch := <-sub.C:
		t.Fatalf("received batch from wrong direction: %+v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_SnapshotErrorSurfaces(t *testing.T) {
	wantErr := errors.New("db down")
	broker := NewBroker(NewMemoryBus(), &fakeSource{err: wantErr})

	_, err := broker.Subscribe(context.Background(), Direction{SenderID: "a", ReceiverID: "b"})
	if err == nil {
		t.Fatal("Subscribe returned nil error with failing source")
	}
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want wrapped %v", err, wantErr)
	}
}

func TestBroker_SlowSubscriberIsFailed(t *testing.T) {
	dir := Direction{SenderID: "alice", ReceiverID: "bob"}
	broker := NewBroker(NewMemoryBus(), &fakeSource{})

	sub, err := broker.Subscribe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	// never drain: overflow the buffer
	msg := model.Message{ID: "m", SenderID: "alice", ReceiverID: "bob", Content: "x", Timestamp: "2026-03-01T10:00:00Z"}
	for i := 0; i < subBuffer+2; i++ {
		if err := broker.Publish(dir, []feed.Change{feed.Added(msg)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	select {
	case err := <-sub.Err:
		if err == nil {
			t.Fatal("nil error on Err channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("slow subscriber was never failed")
	}
}

func TestBroker_CloseStopsDelivery(t *testing.T) {
	dir := Direction{SenderID: "alice", ReceiverID: "bob"}
	bus := NewMemoryBus()
	broker := NewBroker(bus, &fakeSource{})

	sub, err := broker.Subscribe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	recvBatch(t, sub)
	sub.Close()
	sub.Close() // idempotent

	msg := model.Message{ID: "m", SenderID: "alice", ReceiverID: "bob", Content: "x", Timestamp: "2026-03-01T10:00:00Z"}
	if err := broker.Publish(dir, []feed.Change{feed.Added(msg)}); err != nil {
		t.Fatalf("Publish after close: %v", err)
	}

	if _, ok := <-sub.C; ok {
		t.Fatal("channel not closed after Close")
	}
}
