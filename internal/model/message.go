package model

// Message is a direct message between two users.
//
// Timestamp is an RFC 3339 UTC string and the sole ordering key of a
// conversation: views are sorted by byte-wise comparison of this field,
// never by parsing it. Server-assigned on create.
type Message struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}
