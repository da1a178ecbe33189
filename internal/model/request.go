package model

import "time"

type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "pending"
	RequestStatusAccepted RequestStatus = "accepted"
	RequestStatusRejected RequestStatus = "rejected"
)

type FriendRequest struct {
	ID        string        `json:"id"`
	FromUID   string        `json:"from_uid"`
	ToUID     string        `json:"to_uid"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	From      *UserPublic   `json:"from,omitempty"`
}
