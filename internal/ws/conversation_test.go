package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendforge/internal/feed"
	"github.com/friendforge/internal/model"
	"github.com/friendforge/internal/stream"
)

type fakeSource struct {
	msgs map[stream.Direction][]model.Message
	err  error
}

func (f *fakeSource) ListDirection(ctx context.Context, senderID, receiverID string) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[stream.Direction{SenderID: senderID, ReceiverID: receiverID}], nil
}

func newTestClient(userID string) *Client {
	return &Client{
		send:          make(chan OutgoingMessage, sendBufSize),
		userID:        userID,
		conversations: make(map[string]*conversation),
		done:          make(chan struct{}),
	}
}

func nextEvent(t *testing.T, c *Client) OutgoingMessage {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outgoing event")
	}
	return OutgoingMessage{}
}

// waitForView reads events until a conversation_view with want messages arrives.
func waitForView(t *testing.T, c *Client, want int) ConversationViewPayload {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.send:
			if msg.Type != EventConversationView {
				continue
			}
			view := msg.Payload.(ConversationViewPayload)
			if len(view.Messages) == want {
				return view
			}
		case <-deadline:
			t.Fatalf("never saw a view with %d messages", want)
		}
	}
}

func TestOpenConversation_MergesBothDirections(t *testing.T) {
	ab := stream.Direction{SenderID: "alice", ReceiverID: "bob"}
	ba := stream.Direction{SenderID: "bob", ReceiverID: "alice"}
	source := &fakeSource{msgs: map[stream.Direction][]model.Message{
		ab: {
			{ID: "m1", SenderID: "alice", ReceiverID: "bob", Content: "hi", Timestamp: "2026-03-01T10:00:00.000000000Z"},
			{ID: "m3", SenderID: "alice", ReceiverID: "bob", Content: "there?", Timestamp: "2026-03-01T10:02:00.000000000Z"},
		},
		ba: {
			{ID: "m2", SenderID: "bob", ReceiverID: "alice", Content: "hey", Timestamp: "2026-03-01T10:01:00.000000000Z"},
		},
	}}
	broker := stream.NewBroker(stream.NewMemoryBus(), source)
	hub := &Hub{broker: broker}
	client := newTestClient("alice")

	hub.openConversation(client, "bob")

	view := waitForView(t, client, 3)
	wantOrder := []string{"m1", "m2", "m3"}
	for i, id := range wantOrder {
		if view.Messages[i].ID != id {
			t.Fatalf("view[%d] = %s, want %s (full: %+v)", i, view.Messages[i].ID, id, view.Messages)
		}
	}

	hub.closeConversation(client, "bob")
	if client.getConversation("bob") != nil {
		t.Error("conversation still registered after close")
	}
}

func TestOpenConversation_LiveEventsUpdateView(t *testing.T) {
	broker := stream.NewBroker(stream.NewMemoryBus(), &fakeSource{})
	hub := &Hub{broker: broker}
	client := newTestClient("alice")

	hub.openConversation(client, "bob")
	waitForView(t, client, 0)

	ba := stream.Direction{SenderID: "bob", ReceiverID: "alice"}
	m := model.Message{ID: "m1", SenderID: "bob", ReceiverID: "alice", Content: "hi", Timestamp: "2026-03-01T10:00:00.000000000Z"}
	if err := broker.Publish(ba, []feed.Change{feed.Added(m)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitForView(t, client, 1)

	if err := broker.Publish(ba, []feed.Change{feed.Removed("m1")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitForView(t, client, 0)

	hub.closeConversation(client, "bob")
}

func TestOpenConversation_SnapshotFailureReportsError(t *testing.T) {
	broker := stream.NewBroker(stream.NewMemoryBus(), &fakeSource{err: errors.New("db down")})
	hub := &Hub{broker: broker}
	client := newTestClient("alice")

	hub.openConversation(client, "bob")

	msg := nextEvent(t, client)
	if msg.Type != EventError {
		t.Fatalf("event type = %s, want %s", msg.Type, EventError)
	}
	if client.getConversation("bob") != nil {
		t.Error("failed open left a registered conversation")
	}
}

func TestOpenConversation_RejectsSelfAndReopen(t *testing.T) {
	broker := stream.NewBroker(stream.NewMemoryBus(), &fakeSource{})
	hub := &Hub{broker: broker}
	client := newTestClient("alice")

	hub.openConversation(client, "alice")
	if msg := nextEvent(t, client); msg.Type != EventError {
		t.Fatalf("self conversation: event type = %s, want %s", msg.Type, EventError)
	}

	hub.openConversation(client, "bob")
	waitForView(t, client, 0)
	// reopening the same peer is a no-op, not a second session
	hub.openConversation(client, "bob")
	select {
	case msg := <-client.send:
		t.Fatalf("reopen produced event: %+v", msg)
	case <-time.After(100 * time.Millisecond):
	}

	hub.closeConversation(client, "bob")
}
