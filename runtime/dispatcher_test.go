package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"partyline/contract"
	"partyline/domain"
	"partyline/domain/event"
)

const testAppID = "Fortnite"

func newTestEngine(t *testing.T, opts Options) (*Engine, *fakeTransport, *fakePartyService) {
	t.Helper()
	if opts.AccountID == "" {
		opts.AccountID = "alice"
	}
	if opts.AppID == "" {
		opts.AppID = testAppID
	}
	if opts.Host == "" {
		opts.Host = "chat.example.net"
	}
	transport := newFakeTransport()
	parties := newFakePartyService()
	return NewEngine(slog.Default(), transport, parties, opts), transport, parties
}

func notificationStanza(from, body string) *contract.MessageStanza {
	return &contract.MessageStanza{From: domain.ParseJID(from), Type: "normal", Body: body}
}

func collect(bus *Bus, topic string) *[]event.Event {
	var events []event.Event
	bus.Subscribe(topic, func(e event.Event) {
		events = append(events, e)
	})
	return &events
}

func TestDispatch_MemberJoined_ThenLeft(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})
	engine.SetParty(domain.NewParty("party-42"))

	joined := collect(engine.Bus(), "party#party-42:member:joined")
	left := collect(engine.Bus(), "party#party-42:member#bob:left")

	ctx := context.Background()
	engine.handleMessage(ctx, notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_JOINED",
		"party_id": "party-42", "account_id": "bob", "account_dn": "Bob", "revision": 1
	}`))

	// Then the member is tracked and the scoped event emitted
	req.Len(*joined, 1)
	req.Equal(1, engine.Party().Size())
	req.Equal("Bob", engine.Party().FindMember("bob").DisplayName)

	engine.handleMessage(ctx, notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_LEFT",
		"party_id": "party-42", "account_id": "bob"
	}`))

	// Then the member is gone and the addressed event fired once
	req.Len(*left, 1)
	req.Equal(0, engine.Party().Size())
	req.Nil(engine.Party().FindMember("bob"))
}

func TestDispatch_NewCaptain_DemotesPrevious(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})
	party := domain.NewParty("party-42")
	req.NoError(party.AddMember(&domain.PartyMember{ID: "alice", Role: domain.RoleCaptain}))
	req.NoError(party.AddMember(&domain.PartyMember{ID: "bob"}))
	engine.SetParty(party)

	promoted := collect(engine.Bus(), "party:member:promoted")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_NEW_CAPTAIN",
		"party_id": "party-42", "account_id": "bob"
	}`))

	req.Len(*promoted, 1)
	req.Equal("bob", party.Captain().ID)
	req.Equal(domain.MemberRole(""), party.FindMember("alice").Role)
}

func TestDispatch_MemberKicked_SelfGetsFreshParty(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AccountID: "alice"})
	old := domain.NewParty("party-42")
	req.NoError(old.AddMember(&domain.PartyMember{ID: "alice"}))
	engine.SetParty(old)

	kicked := collect(engine.Bus(), "party:member:kicked")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_KICKED",
		"party_id": "party-42", "account_id": "alice"
	}`))

	// Then a brand-new party replaces the old aggregate
	req.Len(parties.created, 1)
	req.NotNil(engine.Party())
	req.NotSame(old, engine.Party())

	// And the kick event is addressed to the party it happened in
	req.Len(*kicked, 1)
	req.Equal("party-42", (*kicked)[0].(event.PartyMemberChanged).PartyID)
}

func TestDispatch_MemberKicked_OtherMemberKeepsParty(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AccountID: "alice"})
	party := domain.NewParty("party-42")
	req.NoError(party.AddMember(&domain.PartyMember{ID: "alice"}))
	req.NoError(party.AddMember(&domain.PartyMember{ID: "bob"}))
	engine.SetParty(party)

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_KICKED",
		"party_id": "party-42", "account_id": "bob"
	}`))

	req.Empty(parties.created)
	req.Same(party, engine.Party())
	req.Nil(party.FindMember("bob"))
}

func TestDispatch_PartyScopeGuard_IgnoresOtherParties(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})
	party := domain.NewParty("party-42")
	req.NoError(party.AddMember(&domain.PartyMember{ID: "bob"}))
	engine.SetParty(party)

	left := collect(engine.Bus(), "party:member:left")

	// When a notification arrives for a party this client is not in
	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_LEFT",
		"party_id": "someone-elses-party", "account_id": "bob"
	}`))

	// Then it is silently ignored
	req.Empty(*left)
	req.Equal(1, party.Size())
}

func TestDispatch_LauncherContext_IgnoresPartyNotifications(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{Launcher: true})
	party := domain.NewParty("party-42")
	req.NoError(party.AddMember(&domain.PartyMember{ID: "bob"}))
	engine.SetParty(party)

	left := collect(engine.Bus(), "party:member:left")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_LEFT",
		"party_id": "party-42", "account_id": "bob"
	}`))

	req.Empty(*left)
	req.Equal(1, party.Size())
}

func TestDispatch_MemberStateUpdated_AppliesPartialUpdate(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})
	party := domain.NewParty("party-42")
	member := &domain.PartyMember{ID: "bob", Meta: map[string]json.RawMessage{"Location_s": json.RawMessage(`"Lobby"`)}}
	req.NoError(party.AddMember(member))
	engine.SetParty(party)

	updated := collect(engine.Bus(), "party#party-42:member#bob:state:updated")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_STATE_UPDATED",
		"party_id": "party-42", "account_id": "bob", "revision": 5,
		"member_state_updated": {"Emote_j": "{}"},
		"member_state_removed": ["Location_s"]
	}`))

	req.Len(*updated, 1)
	req.Equal(5, member.Revision)
	req.NotContains(member.Meta, "Location_s")
	req.Contains(member.Meta, "Emote_j")
}

func TestDispatch_MemberConfirmation_AutoConfirms(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AutoConfirm: true})
	engine.SetParty(domain.NewParty("party-42"))

	requested := collect(engine.Bus(), "party:member:confirmation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_REQUIRE_CONFIRMATION",
		"party_id": "party-42", "account_id": "bob", "account_dn": "Bob", "revision": 1
	}`))

	req.Len(*requested, 1)
	confirmation := (*requested)[0].(event.MemberConfirmationRequested).Confirmation
	req.True(confirmation.Resolved())
	req.Equal([]string{"party-42/bob"}, parties.confirmed)
}

func TestDispatch_MemberConfirmation_PolicyRejectsLeavesPending(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{
		ConfirmPolicy: func(*domain.PartyMemberConfirmation) bool { return false },
	})
	engine.SetParty(domain.NewParty("party-42"))

	requested := collect(engine.Bus(), "party:member:confirmation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.MEMBER_REQUIRE_CONFIRMATION",
		"party_id": "party-42", "account_id": "bob"
	}`))

	// Then the decision is left to consumers via the emitted confirmation
	req.Len(*requested, 1)
	confirmation := (*requested)[0].(event.MemberConfirmationRequested).Confirmation
	req.False(confirmation.Resolved())
	req.Empty(parties.confirmed)

	req.NoError(confirmation.Reject(context.Background()))
	req.Equal([]string{"party-42/bob"}, parties.rejected)
}

func TestDispatch_Ping_SynthesizesInvitationFromPresence(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{AccountID: "alice", PartyBuildID: "1:3:12345"})

	// Given bob's last presence advertises an open party with a matching build
	engine.handlePresence(&contract.PresenceStanza{
		From: domain.ParseJID("bob@chat.example.net/V2:Fortnite:WIN::AABB"),
		Type: "available", Show: "chat",
		Status: `{"Properties":{"party.joininfodata.1_j":{"partyId":"party-42","sourcePlatform":"WIN","sourceDisplayName":"Bob","buildId":"1:3:12345","bIsPrivate":false}}}`,
	})

	received := collect(engine.Bus(), "party#party-42:invitation#bob")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", fmt.Sprintf(`{
		"type": "com.epicgames.social.party.notification.v0.PING",
		"ns": "%s", "pinger_id": "bob"
	}`, testAppID)))

	req.Len(*received, 1)
	invitation := (*received)[0].(event.PartyInvitationReceived).Invitation
	req.Equal("party-42", invitation.PartyID)
	req.Equal("bob", invitation.SentBy)
	req.Equal("alice", invitation.SentTo)
	req.NotNil(invitation.Party)
	req.Equal("party-42", invitation.Party.ID)
}

func TestDispatch_Ping_PrefersPendingInvitation(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AccountID: "alice", PartyBuildID: "1:3:12345"})
	parties.pending = []domain.PartyInvitation{{
		PartyID: "party-7", SentBy: "bob", Status: domain.InvitationSent,
		Meta: map[string]string{domain.MetaBuildID: "1:3:12345"},
	}}

	received := collect(engine.Bus(), "party:invitation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", fmt.Sprintf(`{
		"type": "com.epicgames.social.party.notification.v0.PING",
		"ns": "%s", "pinger_id": "bob"
	}`, testAppID)))

	req.Len(*received, 1)
	req.Equal("party-7", (*received)[0].(event.PartyInvitationReceived).Invitation.PartyID)
}

func TestDispatch_Ping_IncompatibleBuildDropped(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AccountID: "alice", PartyBuildID: "1:3:12345"})
	parties.pending = []domain.PartyInvitation{{
		PartyID: "party-7", SentBy: "bob", Status: domain.InvitationSent,
		Meta: map[string]string{domain.MetaBuildID: "9:9:99999"},
	}}

	received := collect(engine.Bus(), "party:invitation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", fmt.Sprintf(`{
		"type": "com.epicgames.social.party.notification.v0.PING",
		"ns": "%s", "pinger_id": "bob"
	}`, testAppID)))

	req.Empty(*received)
}

func TestDispatch_Ping_NoInvitationNoPresenceDropped(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{AccountID: "alice", PartyBuildID: "1:3:12345"})

	received := collect(engine.Bus(), "party:invitation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", fmt.Sprintf(`{
		"type": "com.epicgames.social.party.notification.v0.PING",
		"ns": "%s", "pinger_id": "stranger"
	}`, testAppID)))

	req.Empty(*received)
}

func TestDispatch_Ping_WrongNamespaceIgnored(t *testing.T) {
	req := require.New(t)
	engine, _, parties := newTestEngine(t, Options{AccountID: "alice", PartyBuildID: "1:3:12345"})
	parties.pending = []domain.PartyInvitation{{
		PartyID: "party-7", SentBy: "bob", Status: domain.InvitationSent,
		Meta: map[string]string{domain.MetaBuildID: "1:3:12345"},
	}}

	received := collect(engine.Bus(), "party:invitation")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.PING",
		"ns": "SomeOtherApp", "pinger_id": "bob"
	}`))

	req.Empty(*received)
}

func TestDispatch_InviteDeclined_EmitsAddressedEvent(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})

	declined := collect(engine.Bus(), "party#party-42:invitation#bob:declined")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "com.epicgames.social.party.notification.v0.INVITE_DECLINED",
		"party_id": "party-42", "invitee_id": "bob"
	}`))

	req.Len(*declined, 1)
}

func TestDispatch_FriendshipRequest_DerivesDirection(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{AccountID: "alice"})

	requests := collect(engine.Bus(), event.TopicFriendRequest)

	// When alice initiated the request herself
	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "FRIENDSHIP_REQUEST", "from": "alice", "to": "bob", "status": "PENDING", "timestamp": 1717243200000
	}`))

	// When a stranger requests alice
	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "FRIENDSHIP_REQUEST", "from": "charlie", "to": "alice", "status": "PENDING", "timestamp": 1717243200000
	}`))

	req.Len(*requests, 2)
	outgoing := (*requests)[0].(event.FriendRequestReceived).Request
	req.Equal("bob", outgoing.AccountID)
	req.Equal(domain.DirectionOutgoing, outgoing.Direction)

	incoming := (*requests)[1].(event.FriendRequestReceived).Request
	req.Equal("charlie", incoming.AccountID)
	req.Equal(domain.DirectionIncoming, incoming.Direction)
}

func TestDispatch_FriendshipRequest_AcceptedEmitsFriendAdded(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{AccountID: "alice"})

	added := collect(engine.Bus(), "friend#bob:added")

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "FRIENDSHIP_REQUEST", "from": "alice", "to": "bob", "status": "ACCEPTED", "timestamp": 1717243200000
	}`))

	req.Len(*added, 1)
	req.Equal(domain.FriendAccepted, (*added)[0].(event.FriendAdded).Friend.Status)
}

func TestDispatch_FriendshipRemove(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{AccountID: "alice"})

	removed := collect(engine.Bus(), event.TopicFriendRemoved)

	engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
		"type": "FRIENDSHIP_REMOVE", "from": "bob", "reason": "DELETED", "timestamp": 1717243200000
	}`))

	req.Len(*removed, 1)
	friend := (*removed)[0].(event.FriendRemoved).Friend
	req.Equal("bob", friend.AccountID)
	req.Equal(domain.FriendRemoved, friend.Status)
	req.Equal("DELETED", friend.Reason)
}

func TestDispatch_UnknownTagDropped(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})
	engine.SetParty(domain.NewParty("party-42"))

	// An unknown notification tag must not panic or emit anything
	req.NotPanics(func() {
		engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `{
			"type": "com.epicgames.social.party.notification.v0.SOMETHING_NEW"
		}`))
	})
	req.Equal(uint64(0), engine.Bus().Published())
}

func TestDispatch_MalformedBodyDropped(t *testing.T) {
	req := require.New(t)
	engine, _, _ := newTestEngine(t, Options{})

	req.NotPanics(func() {
		engine.handleMessage(context.Background(), notificationStanza("xmpp-admin@chat.example.net", `not json at all`))
	})
	req.Equal(uint64(0), engine.Bus().Published())
}
