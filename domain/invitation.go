package domain

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"partyline/errors"
)

// Invitation meta keys used on the wire.
const (
	MetaConnectionType = "urn:epic:conn:type_s"
	MetaPlatform       = "urn:epic:conn:platform_s"
	MetaDisplayName    = "urn:epic:member:dn_s"
	MetaBuildID        = "urn:epic:cfg:build-id_s"
	MetaPlatformData   = "urn:epic:invite:platformdata_s"
)

// InvitationStatus is the lifecycle state of a party invitation.
// Any transition away from SENT is terminal.
type InvitationStatus string

const (
	InvitationSent     InvitationStatus = "SENT"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationDeclined InvitationStatus = "DECLINED"
	InvitationCanceled InvitationStatus = "CANCELED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// PartyInvitation is an invitation record, either fetched from the party
// service or synthesized from a peer's presence status.
type PartyInvitation struct {
	PartyID   string            `json:"party_id" validate:"required"`
	SentBy    string            `json:"sent_by" validate:"required"`
	SentTo    string            `json:"sent_to"`
	SentAt    time.Time         `json:"sent_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at" validate:"gtfield=SentAt"`
	Status    InvitationStatus  `json:"status"`
	Meta      map[string]string `json:"meta"`

	// Party is the resolved party aggregate, attached by the engine once the
	// invitation has been matched against the party service.
	Party *Party `json:"-"`
}

// BuildID returns the build identifier embedded in the invitation meta.
func (i *PartyInvitation) BuildID() string {
	return i.Meta[MetaBuildID]
}

// ConfirmationAction resolves a pending member confirmation against the
// party service. Implemented by the party-service collaborator.
type ConfirmationAction func(ctx context.Context, partyID, accountID string) error

// PartyMemberConfirmation is a one-shot admission decision for a joining
// member. Confirm or Reject may be called exactly once, by policy or by an
// explicit consumer; no timeout is enforced at this layer.
type PartyMemberConfirmation struct {
	PartyID     string
	AccountID   string
	AccountName string
	Sender      JID
	Connection  json.RawMessage
	Revision    int
	Time        time.Time

	resolved atomic.Bool
	confirm  ConfirmationAction
	reject   ConfirmationAction
}

func NewPartyMemberConfirmation(partyID string, confirm, reject ConfirmationAction) *PartyMemberConfirmation {
	return &PartyMemberConfirmation{PartyID: partyID, confirm: confirm, reject: reject}
}

// Confirm admits the member. Further calls return ErrConfirmationResolved.
func (c *PartyMemberConfirmation) Confirm(ctx context.Context) error {
	if !c.resolved.CompareAndSwap(false, true) {
		return errors.ErrConfirmationResolved
	}
	if c.confirm == nil {
		return nil
	}
	return c.confirm(ctx, c.PartyID, c.AccountID)
}

// Reject refuses the member. Further calls return ErrConfirmationResolved.
func (c *PartyMemberConfirmation) Reject(ctx context.Context) error {
	if !c.resolved.CompareAndSwap(false, true) {
		return errors.ErrConfirmationResolved
	}
	if c.reject == nil {
		return nil
	}
	return c.reject(ctx, c.PartyID, c.AccountID)
}

// Resolved reports whether the confirmation has already been acted upon.
func (c *PartyMemberConfirmation) Resolved() bool {
	return c.resolved.Load()
}
