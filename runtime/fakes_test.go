package runtime

import (
	"context"
	"sync"
	"time"

	"partyline/contract"
	"partyline/domain"
	"partyline/domain/event"
)

// recordingSink collects consumed events for assertions.
type recordingSink struct {
	mu       sync.Mutex
	consumed []event.Event
}

func (s *recordingSink) Consume(_ context.Context, e event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumed = append(s.consumed, e)
	return nil
}

// fakeTransport records outbound commands and lets tests script the inbound
// decoded feed.
type fakeTransport struct {
	mu           sync.Mutex
	events       chan contract.TransportEvent
	connectCalls int
	connectHook  func()
	roster       []contract.RosterItem
	rosterCalls  int
	presences    []string
	messages     []sentMessage
	rooms        []string
}

type sentMessage struct {
	to   domain.JID
	kind string
	body string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan contract.TransportEvent, 64)}
}

func (t *fakeTransport) Connect(_ context.Context, _ contract.Credentials) error {
	t.mu.Lock()
	t.connectCalls++
	hook := t.connectHook
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (t *fakeTransport) Disconnect(context.Context) error { return nil }

func (t *fakeTransport) Events() <-chan contract.TransportEvent { return t.events }

func (t *fakeTransport) EnableKeepAlive(time.Duration) {}

func (t *fakeTransport) GetRoster(context.Context) error {
	t.mu.Lock()
	t.rosterCalls++
	items := t.roster
	t.mu.Unlock()
	t.events <- contract.TransportEvent{Kind: contract.KindIQ, IQ: &contract.RosterResult{Type: "result", Items: items}}
	return nil
}

func (t *fakeTransport) SendPresence(_ context.Context, _ *domain.JID, presenceType, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.presences = append(t.presences, presenceType)
	return nil
}

func (t *fakeTransport) SendMessage(_ context.Context, to domain.JID, messageType, body string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, sentMessage{to: to, kind: messageType, body: body})
	return nil
}

func (t *fakeTransport) JoinRoom(_ context.Context, room domain.JID, _ string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rooms = append(t.rooms, room.String())
	return nil
}

func (t *fakeTransport) connects() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCalls
}

// fakePartyService scripts the party-service collaborator.
type fakePartyService struct {
	mu        sync.Mutex
	pending   []domain.PartyInvitation
	parties   map[string]*domain.Party
	created   []*domain.Party
	confirmed []string
	rejected  []string
	lookupErr error
	createErr error
}

func newFakePartyService() *fakePartyService {
	return &fakePartyService{parties: make(map[string]*domain.Party)}
}

func (s *fakePartyService) PendingInvitations(context.Context, string) ([]domain.PartyInvitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending, nil
}

func (s *fakePartyService) LookupParty(_ context.Context, partyID string) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	if party, ok := s.parties[partyID]; ok {
		return party, nil
	}
	return domain.NewParty(partyID), nil
}

func (s *fakePartyService) CreateParty(context.Context) (*domain.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	party := domain.NewParty("fresh-" + time.Now().Format("150405.000000"))
	s.created = append(s.created, party)
	return party, nil
}

func (s *fakePartyService) ConfirmMember(_ context.Context, partyID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, partyID+"/"+accountID)
	return nil
}

func (s *fakePartyService) RejectMember(_ context.Context, partyID, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejected = append(s.rejected, partyID+"/"+accountID)
	return nil
}
