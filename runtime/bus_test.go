package runtime

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"partyline/domain"
	"partyline/domain/event"
	"partyline/errors"
)

func TestBus_Subscribe_CancelIsIdempotent(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	received := 0
	cancel := bus.Subscribe(event.TopicConnected, func(event.Event) {
		received++
	})
	req.Equal(1, bus.SubscriberCount(event.TopicConnected))

	// When the subscription is canceled twice
	cancel()
	cancel()

	// Then nothing remains and publishing reaches no one
	req.Equal(0, bus.SubscriberCount(event.TopicConnected))
	bus.Publish(event.Lifecycle{Topic: event.TopicConnected})
	req.Equal(0, received)
}

func TestBus_Publish_FansOutOnEveryDerivedTopic(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	var global, scoped, addressed []event.Event
	bus.Subscribe("party:member:joined", func(e event.Event) { global = append(global, e) })
	bus.Subscribe("party#party-42:member:joined", func(e event.Event) { scoped = append(scoped, e) })
	bus.Subscribe("party#party-42:member#bob:joined", func(e event.Event) { addressed = append(addressed, e) })
	bus.Subscribe("party#other:member:joined", func(e event.Event) { t.Error("wrong party scope reached") })

	bus.Publish(event.PartyMemberChanged{
		Action:  event.MemberJoined,
		PartyID: "party-42",
		Member:  &domain.PartyMember{ID: "bob"},
	})

	req.Len(global, 1)
	req.Len(scoped, 1)
	req.Len(addressed, 1)
	req.Equal(uint64(1), bus.Published())
}

func TestBus_WaitFor_ResolvesOnMatch(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	go func() {
		// Give WaitFor a moment to subscribe
		time.Sleep(20 * time.Millisecond)
		bus.Publish(event.Lifecycle{Topic: event.TopicSessionStarted})
	}()

	evt, err := bus.WaitFor(event.TopicSessionStarted, time.Second, nil)

	req.NoError(err)
	req.Equal(event.Lifecycle{Topic: event.TopicSessionStarted}, evt)
	// The matched wait must leave no listener behind
	req.Equal(0, bus.SubscriberCount(event.TopicSessionStarted))
}

func TestBus_WaitFor_TimeoutLeavesNoListener(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	_, err := bus.WaitFor(event.TopicFriends, 50*time.Millisecond, nil)

	req.ErrorIs(err, errors.ErrWaitTimeout)
	req.Equal(0, bus.SubscriberCount(event.TopicFriends))
}

func TestBus_WaitFor_FilterSkipsNonMatching(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())

	go func() {
		time.Sleep(20 * time.Millisecond)
		bus.Publish(event.FriendStatusChanged{Status: domain.Status{AccountID: "bob", State: domain.StateOnline}})
		bus.Publish(event.FriendStatusChanged{Status: domain.Status{AccountID: "alice", State: domain.StateAway}})
	}()

	evt, err := bus.WaitFor(event.TopicFriendStatus, time.Second, func(e event.Event) bool {
		status, ok := e.(event.FriendStatusChanged)
		return ok && status.Status.AccountID == "alice"
	})

	req.NoError(err)
	req.Equal("alice", evt.(event.FriendStatusChanged).Status.AccountID)
}

func TestBus_Attach_RoutesIntoSink(t *testing.T) {
	req := require.New(t)
	bus := NewBus(slog.Default())
	sink := &recordingSink{}

	detach := bus.Attach(event.TopicFriendMessage, sink)
	defer detach()

	message := domain.FriendMessage{AccountID: "bob", Body: "hello"}
	bus.Publish(event.FriendMessageReceived{Message: message})

	req.Len(sink.consumed, 1)
	req.Equal(message, sink.consumed[0].(event.FriendMessageReceived).Message)
}
