package ws

import "github.com/friendforge/internal/model"

type EventType string

const (
	// incoming
	EventOpenConversation  EventType = "open_conversation"
	EventCloseConversation EventType = "close_conversation"
	EventSendMessage       EventType = "send_message"
	EventEditMessage       EventType = "edit_message"
	EventDeleteMessage     EventType = "delete_message"

	// outgoing
	EventConversationView EventType = "conversation_view"
	EventStreamError      EventType = "stream_error"
	EventRequestReceived  EventType = "request_received"
	EventRequestAccepted  EventType = "request_accepted"
	EventError            EventType = "error"
)

// IncomingMessage is what the client sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`

	// Conversation peer (open/close/send)
	PeerID string `json:"peer_id,omitempty"`

	// For send/edit
	Content string `json:"content,omitempty"`

	// For edit/delete
	MessageID string `json:"message_id,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
// Payload uses typed structs to avoid heap-heavy map[string]any.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// ConversationViewPayload carries the whole merged conversation. The client
// replaces its rendered list wholesale; there are no partial updates on this
// event.
type ConversationViewPayload struct {
	PeerID   string          `json:"peer_id"`
	Messages []model.Message `json:"messages"`
}

// StreamErrorPayload reports that one direction of an open conversation
// died. The other direction keeps delivering and the last published view
// stays valid.
type StreamErrorPayload struct {
	PeerID   string `json:"peer_id"`
	SenderID string `json:"sender_id"` // sender side of the failed direction
	Error    string `json:"error"`
}

// RequestEventPayload is sent for friend request lifecycle events.
type RequestEventPayload struct {
	RequestID string              `json:"request_id"`
	FromUID   string              `json:"from_uid"`
	ToUID     string              `json:"to_uid"`
	Status    model.RequestStatus `json:"status"`
	From      *model.UserPublic   `json:"from,omitempty"`
}
