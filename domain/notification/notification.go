// Package notification decodes the JSON envelope carried inside message
// stanzas. The envelope is partially untrusted input: decoding never panics,
// and callers drop anything that fails validation.
package notification

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
)

// Party notification tags share a versioned namespace prefix on the wire.
const partyPrefix = "com.epicgames.social.party.notification.v0."

const (
	TypePing                = partyPrefix + "PING"
	TypeMemberLeft          = partyPrefix + "MEMBER_LEFT"
	TypeMemberExpired       = partyPrefix + "MEMBER_EXPIRED"
	TypeMemberNewCaptain    = partyPrefix + "MEMBER_NEW_CAPTAIN"
	TypeMemberKicked        = partyPrefix + "MEMBER_KICKED"
	TypeMemberDisconnected  = partyPrefix + "MEMBER_DISCONNECTED"
	TypeMemberJoined        = partyPrefix + "MEMBER_JOINED"
	TypeMemberStateUpdated  = partyPrefix + "MEMBER_STATE_UPDATED"
	TypeMemberConfirmation  = partyPrefix + "MEMBER_REQUIRE_CONFIRMATION"
	TypePartyUpdated        = partyPrefix + "PARTY_UPDATED"
	TypeInitialInvite       = partyPrefix + "INITIAL_INVITE"
	TypeInviteCancelled     = partyPrefix + "INVITE_CANCELLED"
	TypeInviteDeclined      = partyPrefix + "INVITE_DECLINED"
	TypeFriendshipRemove    = "FRIENDSHIP_REMOVE"
	TypeFriendshipRequest   = "FRIENDSHIP_REQUEST"
)

var validate = validator.New()

// Envelope is the decoded notification payload. Only Type is guaranteed;
// every other field is populated per notification kind.
type Envelope struct {
	Type      string `json:"type" validate:"required"`
	Namespace string `json:"ns"`

	// Party scope
	PartyID     string          `json:"party_id"`
	AccountID   string          `json:"account_id"`
	AccountName string          `json:"account_dn"`
	PingerID    string          `json:"pinger_id"`
	InviteeID   string          `json:"invitee_id"`
	InviterID   string          `json:"inviter_id"`
	Connection  json.RawMessage `json:"connection"`
	Revision    int             `json:"revision"`
	Sent        time.Time       `json:"sent"`

	// Partial-update payloads
	PartyState    map[string]json.RawMessage `json:"party_state_updated"`
	PartyRemoved  []string                   `json:"party_state_removed"`
	MemberState   map[string]json.RawMessage `json:"member_state_updated"`
	MemberRemoved []string                   `json:"member_state_removed"`

	// Friendship scope
	From      string `json:"from"`
	To        string `json:"to"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Timestamp int64  `json:"timestamp"`
}

// Decode parses and validates a notification envelope body.
func Decode(body string) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		return nil, err
	}
	if err := validate.Struct(&envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// Time converts the friendship millisecond timestamp into a time.Time.
func (e *Envelope) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}
