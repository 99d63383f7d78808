package domain

import (
	"time"

	"github.com/google/uuid"
)

// FriendStatus is the server-side state of a friendship.
type FriendStatus string

const (
	FriendPending  FriendStatus = "PENDING"
	FriendAccepted FriendStatus = "ACCEPTED"
	FriendRemoved  FriendStatus = "REMOVED"
)

// RequestDirection tells which side initiated a friend request.
type RequestDirection string

const (
	DirectionIncoming RequestDirection = "INCOMING"
	DirectionOutgoing RequestDirection = "OUTGOING"
)

// FriendRef is a single roster entry. A roster result is always a full
// snapshot, never an incremental update.
type FriendRef struct {
	AccountID string
	JID       JID
}

// Friend is an immutable friendship event. Later events of a different
// status supersede earlier ones; instances are never mutated.
type Friend struct {
	AccountID string
	Status    FriendStatus
	Time      time.Time
	Reason    string
}

// FriendRequest is built from request-type notifications only. The direction
// is derived by comparing the requester with the local account id.
type FriendRequest struct {
	AccountID string
	Direction RequestDirection
	Status    FriendStatus
	Time      time.Time
}

// FriendMessage represents an immutable inbound chat message.
type FriendMessage struct {
	ID        uuid.UUID
	AccountID string
	Body      string
	Time      time.Time
}

func NewFriendMessage(accountID, body string, at time.Time) FriendMessage {
	return FriendMessage{
		ID:        uuid.New(),
		AccountID: accountID,
		Body:      body,
		Time:      at,
	}
}
