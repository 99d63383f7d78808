package runtime

import (
	"context"
	"time"

	"partyline/contract"
	"partyline/domain"
	"partyline/domain/event"
	"partyline/domain/notification"
)

// notificationHandler applies one decoded notification. Handlers follow a
// uniform guard, lookup, mutate, emit pattern and are never allowed to
// abort stream processing: anomalies are logged and the event dropped.
type notificationHandler func(e *Engine, ctx context.Context, n *notification.Envelope, from domain.JID)

// notificationHandlers maps the closed set of known notification tags.
// Unrecognized tags fall through to a log-and-drop branch in the dispatcher.
func notificationHandlers() map[string]notificationHandler {
	return map[string]notificationHandler{
		notification.TypePing:               (*Engine).handlePing,
		notification.TypeMemberLeft:         memberRemoval(event.MemberLeft),
		notification.TypeMemberExpired:      memberRemoval(event.MemberExpired),
		notification.TypeMemberDisconnected: memberRemoval(event.MemberDisconnected),
		notification.TypeMemberNewCaptain:   (*Engine).handleNewCaptain,
		notification.TypeMemberKicked:       (*Engine).handleMemberKicked,
		notification.TypeMemberJoined:       (*Engine).handleMemberJoined,
		notification.TypeMemberStateUpdated: (*Engine).handleMemberStateUpdated,
		notification.TypeMemberConfirmation: (*Engine).handleMemberConfirmation,
		notification.TypePartyUpdated:       (*Engine).handlePartyUpdated,
		notification.TypeInitialInvite:      (*Engine).handleInitialInvite,
		notification.TypeInviteCancelled:    (*Engine).handleInviteCancelled,
		notification.TypeInviteDeclined:     (*Engine).handleInviteDeclined,
		notification.TypeFriendshipRemove:   (*Engine).handleFriendshipRemove,
		notification.TypeFriendshipRequest:  (*Engine).handleFriendshipRequest,
	}
}

// dispatchNotification decodes the JSON envelope and routes it to exactly
// one handler by tag. Malformed or unknown notifications are dropped.
func (e *Engine) dispatchNotification(ctx context.Context, msg *contract.MessageStanza) {
	envelope, err := notification.Decode(msg.Body)
	if err != nil {
		e.log.Warn("Dropping malformed notification", "error", err)
		return
	}

	handler, ok := e.handlers[envelope.Type]
	if !ok {
		e.log.Debug("Unexpected notification type", "type", envelope.Type)
		return
	}
	handler(e, ctx, envelope, msg.From)
}

// guardParty checks the party scope: party notifications apply only to a
// party-bound application context whose current party matches the envelope.
// Mismatches are silently ignored, not errors.
func (e *Engine) guardParty(n *notification.Envelope) *domain.Party {
	if e.opts.Launcher {
		return nil
	}
	e.mu.Lock()
	party := e.party
	e.mu.Unlock()
	if party == nil || party.ID != n.PartyID {
		return nil
	}
	return party
}

// memberRemoval builds the shared handler for the three notifications that
// drop a member: left, expired, and disconnected.
func memberRemoval(action event.MemberAction) notificationHandler {
	return func(e *Engine, _ context.Context, n *notification.Envelope, _ domain.JID) {
		party := e.guardParty(n)
		if party == nil {
			return
		}
		member := party.FindMember(n.AccountID)
		if member == nil {
			return
		}
		party.RemoveMember(member.ID)

		e.bus.Publish(event.PartyMemberChanged{Action: action, PartyID: party.ID, Member: member})
	}
}

func (e *Engine) handleNewCaptain(_ context.Context, n *notification.Envelope, _ domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}
	member := party.Promote(n.AccountID)
	if member == nil {
		return
	}

	e.bus.Publish(event.PartyMemberChanged{Action: event.MemberPromoted, PartyID: party.ID, Member: member})
}

// handleMemberKicked removes the member and, when the local account is the
// target, replaces the party reference with a brand-new aggregate. The old
// aggregate stays valid for events already emitted against it.
func (e *Engine) handleMemberKicked(ctx context.Context, n *notification.Envelope, _ domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}
	member := party.FindMember(n.AccountID)
	if member == nil {
		return
	}
	party.RemoveMember(member.ID)

	if member.ID == e.opts.AccountID {
		fresh, err := e.parties.CreateParty(ctx)
		if err != nil {
			e.log.Warn("Could not create a replacement party after kick", "error", err)
			fresh = nil
		}
		e.mu.Lock()
		e.party = fresh
		e.mu.Unlock()
	}

	e.bus.Publish(event.PartyMemberChanged{Action: event.MemberKicked, PartyID: party.ID, Member: member})
}

func (e *Engine) handleMemberJoined(_ context.Context, n *notification.Envelope, _ domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}
	member := party.FindMember(n.AccountID)
	if member == nil {
		member = &domain.PartyMember{
			ID:          n.AccountID,
			DisplayName: n.AccountName,
			Connection:  n.Connection,
			Revision:    n.Revision,
			JoinedAt:    joinTime(n),
		}
		if err := party.AddMember(member); err != nil {
			e.log.Warn("Could not add joining member", "account", n.AccountID, "error", err)
			return
		}
	}

	e.bus.Publish(event.PartyMemberChanged{Action: event.MemberJoined, PartyID: party.ID, Member: member})
}

func joinTime(n *notification.Envelope) time.Time {
	if n.Sent.IsZero() {
		return time.Now()
	}
	return n.Sent
}

func (e *Engine) handleMemberStateUpdated(_ context.Context, n *notification.Envelope, _ domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}
	member := party.FindMember(n.AccountID)
	if member == nil {
		return
	}
	member.Apply(n.Revision, n.MemberState, n.MemberRemoved)

	e.bus.Publish(event.PartyMemberChanged{Action: event.MemberStateUpdated, PartyID: party.ID, Member: member})
}

func (e *Engine) handlePartyUpdated(_ context.Context, n *notification.Envelope, _ domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}
	party.Apply(n.Revision, n.PartyState, n.PartyRemoved)

	e.bus.Publish(event.PartyUpdated{Party: party})
}

// handleMemberConfirmation hands an admission decision to policy or, when
// policy stays silent, to consumers via the emitted confirmation object.
func (e *Engine) handleMemberConfirmation(ctx context.Context, n *notification.Envelope, from domain.JID) {
	party := e.guardParty(n)
	if party == nil {
		return
	}

	confirmation := domain.NewPartyMemberConfirmation(party.ID, e.parties.ConfirmMember, e.parties.RejectMember)
	confirmation.AccountID = n.AccountID
	confirmation.AccountName = n.AccountName
	confirmation.Sender = from
	confirmation.Connection = n.Connection
	confirmation.Revision = n.Revision
	confirmation.Time = n.Sent

	if e.opts.AutoConfirm || (e.opts.ConfirmPolicy != nil && e.opts.ConfirmPolicy(confirmation)) {
		if err := confirmation.Confirm(ctx); err != nil {
			e.log.Warn("Auto-confirmation failed", "account", n.AccountID, "error", err)
		}
	}

	e.bus.Publish(event.MemberConfirmationRequested{Confirmation: confirmation})
}

// handlePing resolves a join-request signal into an invitation: from the
// party service when one is pending, otherwise synthesized from the most
// recent presence status of the pinger. Incompatible builds are dropped.
func (e *Engine) handlePing(ctx context.Context, n *notification.Envelope, _ domain.JID) {
	if n.Namespace != e.opts.AppID {
		return
	}

	invitation, err := e.pendingInvitationFrom(ctx, n.PingerID)
	if err != nil {
		e.log.Warn("Invitation lookup failed", "pinger", n.PingerID, "error", err)
	}
	if invitation == nil {
		invitation = e.synthesizeInvitation(n.PingerID)
		if invitation == nil {
			e.log.Warn("Cannot join the party: no active invitation", "pinger", n.PingerID)
			return
		}
	}

	if invitation.BuildID() == "" || invitation.BuildID() != e.opts.PartyBuildID {
		e.log.Warn("Cannot join the party: incompatible build id",
			"got", invitation.BuildID(), "want", e.opts.PartyBuildID)
		return
	}

	party, err := e.parties.LookupParty(ctx, invitation.PartyID)
	if err != nil {
		e.log.Warn("Party lookup failed", "party", invitation.PartyID, "error", err)
		return
	}
	invitation.Party = party

	e.bus.Publish(event.PartyInvitationReceived{Invitation: invitation})
}

// pendingInvitationFrom asks the party service for a SENT invitation from
// the given account.
func (e *Engine) pendingInvitationFrom(ctx context.Context, accountID string) (*domain.PartyInvitation, error) {
	invitations, err := e.parties.PendingInvitations(ctx, e.opts.AccountID)
	if err != nil {
		return nil, err
	}
	for _, invitation := range invitations {
		if invitation.SentBy == accountID && invitation.Status == domain.InvitationSent {
			found := invitation
			return &found, nil
		}
	}
	return nil, nil
}

// synthesizeInvitation builds an invitation from the pinger's last seen
// presence status, when it advertises an open party.
func (e *Engine) synthesizeInvitation(accountID string) *domain.PartyInvitation {
	status, ok := e.LastStatus(accountID)
	if !ok {
		return nil
	}
	return status.Invitation(e.opts.AccountID, time.Now())
}

// handleInitialInvite acknowledges the deprecated initial-invite tag.
func (e *Engine) handleInitialInvite(_ context.Context, n *notification.Envelope, _ domain.JID) {
	if n.Namespace != e.opts.AppID {
		return
	}
	e.log.Debug("Ignoring deprecated initial invite", "party", n.PartyID, "inviter", n.InviterID)
}

func (e *Engine) handleInviteCancelled(_ context.Context, n *notification.Envelope, _ domain.JID) {
	if e.opts.Launcher {
		return
	}
	e.bus.Publish(event.PartyInvitationCanceled{PartyID: n.PartyID, InviteeID: n.InviteeID})
}

func (e *Engine) handleInviteDeclined(_ context.Context, n *notification.Envelope, _ domain.JID) {
	if e.opts.Launcher {
		return
	}
	e.bus.Publish(event.PartyInvitationDeclined{PartyID: n.PartyID, InviteeID: n.InviteeID})
}

// Friendship notifications are never party-scoped; each produces a fresh
// value object.

func (e *Engine) handleFriendshipRemove(_ context.Context, n *notification.Envelope, _ domain.JID) {
	friend := domain.Friend{
		AccountID: n.From,
		Status:    domain.FriendRemoved,
		Time:      n.Time(),
		Reason:    n.Reason,
	}
	e.bus.Publish(event.FriendRemoved{Friend: friend})
}

func (e *Engine) handleFriendshipRequest(_ context.Context, n *notification.Envelope, _ domain.JID) {
	if n.Status == string(domain.FriendAccepted) {
		friend := domain.Friend{
			AccountID: n.To,
			Status:    domain.FriendAccepted,
			Time:      n.Time(),
		}
		e.bus.Publish(event.FriendAdded{Friend: friend})
		return
	}

	request := domain.FriendRequest{
		AccountID: n.From,
		Direction: domain.DirectionIncoming,
		Status:    domain.FriendStatus(n.Status),
		Time:      n.Time(),
	}
	if n.From == e.opts.AccountID {
		request.AccountID = n.To
		request.Direction = domain.DirectionOutgoing
	}
	e.bus.Publish(event.FriendRequestReceived{Request: request})
}
