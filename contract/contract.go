//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"partyline/domain"
	"partyline/domain/event"
)

// TransportEventKind discriminates the decoded stanza feed.
type TransportEventKind int

const (
	KindConnected TransportEventKind = iota
	KindDisconnected
	KindSessionBound
	KindSessionStarted
	KindSessionEnded
	KindIQ
	KindPresence
	KindMessage
	KindRawIncoming
	KindRawOutgoing
)

// RosterItem is one decoded roster entry from an iq result.
type RosterItem struct {
	JID domain.JID
}

// RosterResult is a decoded roster iq stanza.
type RosterResult struct {
	Type  string
	Items []RosterItem
}

// PresenceStanza is a decoded presence stanza.
type PresenceStanza struct {
	From   domain.JID
	Type   string
	Show   string
	Status string
}

// MessageStanza is a decoded message stanza. Type "normal" carries a JSON
// notification envelope in Body; type "chat" carries plain text.
type MessageStanza struct {
	From domain.JID
	Type string
	Body string
}

// TransportEvent is one unit of the decoded inbound feed. Exactly one
// payload pointer matching Kind is set.
type TransportEvent struct {
	Kind     TransportEventKind
	IQ       *RosterResult
	Presence *PresenceStanza
	Message  *MessageStanza
	Raw      string
}

// Credentials carries everything the transport needs to authenticate-bind.
type Credentials struct {
	Username string
	Password string
	Host     string
	Resource string
}

// Transport is the already-decoded stanza stream the engine consumes, plus
// its thin outbound command surface. Wire framing, parsing, and session
// negotiation happen behind this interface.
//
// Events returns the same channel for the lifetime of the transport;
// reconnecting must not require listeners to re-register.
type Transport interface {
	Connect(ctx context.Context, creds Credentials) error
	Disconnect(ctx context.Context) error
	Events() <-chan TransportEvent
	EnableKeepAlive(interval time.Duration)
	GetRoster(ctx context.Context) error
	SendPresence(ctx context.Context, to *domain.JID, presenceType, status string) error
	SendMessage(ctx context.Context, to domain.JID, messageType, body string) error
	JoinRoom(ctx context.Context, room domain.JID, nickname string) error
}

// PartyService is the HTTP collaborator owning server-side party state.
type PartyService interface {
	PendingInvitations(ctx context.Context, accountID string) ([]domain.PartyInvitation, error)
	LookupParty(ctx context.Context, partyID string) (*domain.Party, error)
	CreateParty(ctx context.Context) (*domain.Party, error)
	ConfirmMember(ctx context.Context, partyID, accountID string) error
	RejectMember(ctx context.Context, partyID, accountID string) error
}

// EventSink consumes published engine events, typically for side effects
// such as persistence or projections.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
