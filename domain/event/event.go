// Package event defines the typed events the engine republishes, together
// with the topics each one is addressable under. Party events fan out on up
// to three tiers (global, party-scoped, party+member-scoped) so consumers
// subscribe at the granularity they need without filtering.
package event

import (
	"fmt"

	"partyline/domain"
)

// Event is anything the engine publishes on its bus.
type Event interface {
	Topics() []string
}

// Lifecycle topics.
const (
	TopicConnected      = "connected"
	TopicDisconnected   = "disconnected"
	TopicSessionStarted = "session:started"
	TopicSessionBound   = "session:bound"
	TopicSessionEnded   = "session:ended"
	TopicRawIncoming    = "raw:incoming"
	TopicRawOutgoing    = "raw:outgoing"
	TopicFriends        = "friends"
	TopicFriendStatus   = "friend:status"
	TopicFriendMessage  = "friend:message"
	TopicFriendAdded    = "friend:added"
	TopicFriendRemoved  = "friend:removed"
	TopicFriendRequest  = "friend:request"
	TopicPartyUpdated   = "party:updated"
)

// friendTopics derives the global and friend-scoped topic pair.
func friendTopics(global, accountID string) []string {
	suffix := global[len("friend"):]
	return []string{global, fmt.Sprintf("friend#%s%s", accountID, suffix)}
}

// Lifecycle carries no payload; its topic is the whole event.
type Lifecycle struct {
	Topic string
}

func (e Lifecycle) Topics() []string { return []string{e.Topic} }

// RawTraffic is a diagnostics passthrough of undecoded stream traffic.
type RawTraffic struct {
	Topic string
	XML   string
}

func (e RawTraffic) Topics() []string { return []string{e.Topic} }

// FriendsSnapshot is a full roster replacement, never incremental.
type FriendsSnapshot struct {
	Friends []domain.FriendRef
}

func (e FriendsSnapshot) Topics() []string { return []string{TopicFriends} }

// FriendStatusChanged carries a fresh presence snapshot for one peer.
type FriendStatusChanged struct {
	Status domain.Status
}

func (e FriendStatusChanged) Topics() []string {
	return []string{TopicFriendStatus, fmt.Sprintf("friend#%s:status", e.Status.AccountID)}
}

// FriendMessageReceived carries an inbound direct chat message.
type FriendMessageReceived struct {
	Message domain.FriendMessage
}

func (e FriendMessageReceived) Topics() []string {
	return friendTopics(TopicFriendMessage, e.Message.AccountID)
}

// FriendAdded is emitted when a friendship reaches ACCEPTED.
type FriendAdded struct {
	Friend domain.Friend
}

func (e FriendAdded) Topics() []string {
	return friendTopics(TopicFriendAdded, e.Friend.AccountID)
}

// FriendRemoved is emitted when a friendship is torn down.
type FriendRemoved struct {
	Friend domain.Friend
}

func (e FriendRemoved) Topics() []string {
	return friendTopics(TopicFriendRemoved, e.Friend.AccountID)
}

// FriendRequestReceived is emitted for pending friendship requests.
type FriendRequestReceived struct {
	Request domain.FriendRequest
}

func (e FriendRequestReceived) Topics() []string {
	return friendTopics(TopicFriendRequest, e.Request.AccountID)
}

// MemberAction is the kind of change applied to a party member.
type MemberAction string

const (
	MemberLeft         MemberAction = "left"
	MemberExpired      MemberAction = "expired"
	MemberPromoted     MemberAction = "promoted"
	MemberKicked       MemberAction = "kicked"
	MemberDisconnected MemberAction = "disconnected"
	MemberJoined       MemberAction = "joined"
	MemberStateUpdated MemberAction = "state:updated"
	MemberConfirmation MemberAction = "confirmation"
)

// PartyMemberChanged is the single internal emission for all member-level
// changes; the three-tier topics are derived from action, party, and member.
type PartyMemberChanged struct {
	Action  MemberAction
	PartyID string
	Member  *domain.PartyMember
}

func (e PartyMemberChanged) Topics() []string {
	return []string{
		fmt.Sprintf("party:member:%s", e.Action),
		fmt.Sprintf("party#%s:member:%s", e.PartyID, e.Action),
		fmt.Sprintf("party#%s:member#%s:%s", e.PartyID, e.Member.ID, e.Action),
	}
}

// PartyUpdated carries the party aggregate after a partial update.
type PartyUpdated struct {
	Party *domain.Party
}

func (e PartyUpdated) Topics() []string {
	return []string{TopicPartyUpdated, fmt.Sprintf("party#%s:updated", e.Party.ID)}
}

// PartyInvitationReceived carries a resolved or synthesized invitation.
type PartyInvitationReceived struct {
	Invitation *domain.PartyInvitation
}

func (e PartyInvitationReceived) Topics() []string {
	return []string{
		"party:invitation",
		fmt.Sprintf("party#%s:invitation", e.Invitation.PartyID),
		fmt.Sprintf("party#%s:invitation#%s", e.Invitation.PartyID, e.Invitation.SentBy),
	}
}

// PartyInvitationCanceled signals the sender withdrew an invitation.
type PartyInvitationCanceled struct {
	PartyID   string
	InviteeID string
}

func (e PartyInvitationCanceled) Topics() []string {
	return []string{
		"party:invitation:canceled",
		fmt.Sprintf("party#%s:invitation:canceled", e.PartyID),
		fmt.Sprintf("party#%s:invitation#%s:canceled", e.PartyID, e.InviteeID),
	}
}

// PartyInvitationDeclined signals the invitee refused an invitation.
type PartyInvitationDeclined struct {
	PartyID   string
	InviteeID string
}

func (e PartyInvitationDeclined) Topics() []string {
	return []string{
		"party:invitation:declined",
		fmt.Sprintf("party#%s:invitation#%s:declined", e.PartyID, e.InviteeID),
	}
}

// MemberConfirmationRequested hands a pending admission decision to
// consumers. The confirmation stays actionable until acted upon.
type MemberConfirmationRequested struct {
	Confirmation *domain.PartyMemberConfirmation
}

func (e MemberConfirmationRequested) Topics() []string {
	return []string{
		"party:member:confirmation",
		fmt.Sprintf("party#%s:member:confirmation", e.Confirmation.PartyID),
		fmt.Sprintf("party#%s:member#%s:confirmation", e.Confirmation.PartyID, e.Confirmation.AccountID),
	}
}
