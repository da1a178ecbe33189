package ws

import (
	"context"

	"github.com/friendforge/internal/feed"
	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/metrics"
	"github.com/friendforge/internal/stream"
)

// conversation is one open viewer/peer pair: two direction subscriptions
// feeding a single reconciler. A dedicated goroutine owns the reconciler and
// serializes every Apply, so the merged view is always consistent.
type conversation struct {
	viewerID string
	peerID   string
	cancel   context.CancelFunc
	done     chan struct{}
}

// openConversation subscribes to both directions and starts the merge loop.
// The initial batches are the directions' snapshots, so the first published
// view is the full conversation.
func (h *Hub) openConversation(c *Client, peerID string) {
	if peerID == "" || peerID == c.userID {
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "invalid peer_id"})
		return
	}
	if c.getConversation(peerID) != nil {
		return // already open, the view keeps flowing
	}

	ctx, cancel := context.WithCancel(context.Background())

	outgoing, err := h.broker.Subscribe(ctx, stream.Direction{SenderID: c.userID, ReceiverID: peerID})
	if err != nil {
		cancel()
		metrics.StreamErrors.Inc()
		logger.Errorf("ws open conversation user=%s peer=%s outgoing: %v", c.userID, peerID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to open conversation"})
		return
	}
	incoming, err := h.broker.Subscribe(ctx, stream.Direction{SenderID: peerID, ReceiverID: c.userID})
	if err != nil {
		outgoing.Close()
		cancel()
		metrics.StreamErrors.Inc()
		logger.Errorf("ws open conversation user=%s peer=%s incoming: %v", c.userID, peerID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventError, Payload: "failed to open conversation"})
		return
	}

	conv := &conversation{
		viewerID: c.userID,
		peerID:   peerID,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	if !c.putConversation(peerID, conv) {
		// lost the race with a concurrent open for the same peer
		incoming.Close()
		outgoing.Close()
		cancel()
		return
	}
	metrics.OpenConversations.Inc()

	go h.runConversation(ctx, c, conv, outgoing, incoming)
}

// runConversation is the merge loop. A dead direction is reported once and
// its channels are nilled out; batches from the surviving direction keep
// applying and re-publishing the view. The loop ends when the conversation
// is closed or both directions are gone.
func (h *Hub) runConversation(ctx context.Context, c *Client, conv *conversation, outgoing, incoming *stream.Subscription) {
	defer func() {
		outgoing.Close()
		incoming.Close()
		c.dropConversation(conv.peerID, conv)
		metrics.OpenConversations.Dec()
		close(conv.done)
	}()

	rec := feed.NewReconciler()
	outC, outErr := outgoing.C, outgoing.Err
	inC, inErr := incoming.C, incoming.Err

	publish := func(batch []feed.Change) {
		rec.Apply(batch)
		h.sendToClient(c, OutgoingMessage{Type: EventConversationView, Payload: ConversationViewPayload{
			PeerID:   conv.peerID,
			Messages: rec.View(),
		}})
	}
	reportDead := func(senderID string, err error) {
		metrics.StreamErrors.Inc()
		logger.Errorf("ws stream died user=%s peer=%s sender=%s: %v", conv.viewerID, conv.peerID, senderID, err)
		h.sendToClient(c, OutgoingMessage{Type: EventStreamError, Payload: StreamErrorPayload{
			PeerID:   conv.peerID,
			SenderID: senderID,
			Error:    err.Error(),
		}})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-outC:
			if !ok {
				outC = nil
				break
			}
			publish(batch)
		case err := <-outErr:
			outErr = nil
			outC = nil
			reportDead(conv.viewerID, err)
		case batch, ok := <-inC:
			if !ok {
				inC = nil
				break
			}
			publish(batch)
		case err := <-inErr:
			inErr = nil
			inC = nil
			reportDead(conv.peerID, err)
		}
		if outC == nil && inC == nil {
			return
		}
	}
}

func (h *Hub) closeConversation(c *Client, peerID string) {
	conv := c.getConversation(peerID)
	if conv == nil {
		return
	}
	conv.cancel()
	<-conv.done
}
