// Package xmpp adapts an XMPP stream into the decoded transport feed the
// engine consumes. All wire framing, TLS, and session negotiation live in
// the underlying library; this package only maps stanzas to events.
package xmpp

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xmppgo "github.com/meszmate/xmpp-go"
	"github.com/meszmate/xmpp-go/dial"
	"github.com/meszmate/xmpp-go/jid"
	"github.com/meszmate/xmpp-go/plugin"
	"github.com/meszmate/xmpp-go/plugins/disco"
	"github.com/meszmate/xmpp-go/plugins/muc"
	"github.com/meszmate/xmpp-go/plugins/ping"
	"github.com/meszmate/xmpp-go/plugins/presence"
	"github.com/meszmate/xmpp-go/plugins/roster"
	"github.com/meszmate/xmpp-go/stanza"
	"github.com/meszmate/xmpp-go/storage/memory"

	"partyline/contract"
	"partyline/domain"
	perrors "partyline/errors"
)

const eventBufferSize = 256

// Transport implements contract.Transport over a websocketless XMPP stream.
// The Events channel is created once and survives reconnects, so engine
// listeners never re-register.
type Transport struct {
	mu        sync.Mutex
	log       *slog.Logger
	events    chan contract.TransportEvent
	client    *xmppgo.Client
	session   *xmppgo.Session
	plugins   *plugin.Manager
	local     jid.JID
	keepAlive time.Duration
	stopKeep  context.CancelFunc
	connected bool
}

func NewTransport(log *slog.Logger) *Transport {
	return &Transport{
		log:    log,
		events: make(chan contract.TransportEvent, eventBufferSize),
	}
}

func (t *Transport) Events() <-chan contract.TransportEvent {
	return t.events
}

func (t *Transport) EnableKeepAlive(interval time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keepAlive = interval
}

// Connect dials the service, negotiates the session, and starts serving
// inbound stanzas. Lifecycle events are pushed onto the feed as the
// connection advances.
func (t *Transport) Connect(ctx context.Context, creds contract.Credentials) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return nil
	}

	localJID, err := jid.Parse(fmt.Sprintf("%s@%s", creds.Username, creds.Host))
	if err != nil {
		return fmt.Errorf("invalid stream address: %w", err)
	}
	if creds.Resource != "" {
		localJID = localJID.WithResource(creds.Resource)
	}

	dialer := dial.NewDialer()
	dialer.TLSConfig = &tls.Config{
		ServerName: localJID.Domain(),
		MinVersion: tls.VersionTLS12,
	}

	trans, err := dialer.Dial(ctx, localJID.Domain())
	if err != nil {
		return fmt.Errorf("failed to dial server: %w", err)
	}

	t.plugins = plugin.NewManager()
	plugins := []plugin.Plugin{
		disco.New(),
		roster.New(),
		muc.New(),
		ping.New(),
		presence.New(),
	}
	for _, p := range plugins {
		if err := t.plugins.Register(p); err != nil {
			trans.Close()
			return fmt.Errorf("failed to register plugin %s: %w", p.Name(), err)
		}
	}

	client, err := xmppgo.NewClient(localJID, creds.Password,
		xmppgo.WithPlugins(plugins...),
		xmppgo.WithHandler(xmppgo.HandlerFunc(t.handleStanza)),
	)
	if err != nil {
		trans.Close()
		return fmt.Errorf("failed to create client: %w", err)
	}
	t.client = client

	session, err := xmppgo.NewSession(ctx, trans, xmppgo.WithLocalAddr(localJID))
	if err != nil {
		trans.Close()
		return fmt.Errorf("failed to create session: %w", err)
	}

	t.push(contract.TransportEvent{Kind: contract.KindConnected})

	params := plugin.InitParams{
		SendElement: session.SendElement,
		State:       func() uint32 { return uint32(session.State()) },
		LocalJID:    func() string { return session.LocalAddr().String() },
		RemoteJID:   func() string { return session.RemoteAddr().String() },
		Get:         t.plugins.Get,
		Storage:     memory.New(),
	}
	if err := t.plugins.Initialize(ctx, params); err != nil {
		session.Close()
		return fmt.Errorf("failed to initialize plugins: %w", err)
	}

	t.session = session
	t.local = localJID
	t.connected = true

	t.push(contract.TransportEvent{Kind: contract.KindSessionBound})

	go t.serve(session)
	t.startKeepAlive(ctx)

	t.push(contract.TransportEvent{Kind: contract.KindSessionStarted})
	return nil
}

func (t *Transport) serve(session *xmppgo.Session) {
	err := session.Serve(nil)

	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	if t.stopKeep != nil {
		t.stopKeep()
		t.stopKeep = nil
	}
	t.mu.Unlock()

	if !wasConnected {
		return
	}
	if err != nil {
		t.log.Warn("Stream serve loop ended", "error", err)
	}
	t.push(contract.TransportEvent{Kind: contract.KindDisconnected})
}

// startKeepAlive publishes an empty available presence on the configured
// interval to keep intermediaries from idling the connection out.
func (t *Transport) startKeepAlive(ctx context.Context) {
	if t.keepAlive <= 0 {
		return
	}
	keepCtx, cancel := context.WithCancel(ctx)
	t.stopKeep = cancel
	session := t.session

	go func() {
		ticker := time.NewTicker(t.keepAlive)
		defer ticker.Stop()
		for {
			select {
			case <-keepCtx.Done():
				return
			case <-ticker.C:
				p := stanza.NewPresence(stanza.PresenceAvailable)
				if err := session.Send(keepCtx, p); err != nil {
					t.log.Debug("Keep-alive send failed", "error", err)
				}
			}
		}
	}()
}

func (t *Transport) Disconnect(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.connected {
		return nil
	}
	t.connected = false
	if t.stopKeep != nil {
		t.stopKeep()
		t.stopKeep = nil
	}

	err := t.session.Close()
	t.session = nil
	t.push(contract.TransportEvent{Kind: contract.KindDisconnected})
	return err
}

// handleStanza maps inbound stanzas onto the decoded feed.
func (t *Transport) handleStanza(_ context.Context, _ *xmppgo.Session, st stanza.Stanza) error {
	switch s := st.(type) {
	case *stanza.Message:
		t.push(contract.TransportEvent{Kind: contract.KindMessage, Message: &contract.MessageStanza{
			From: domain.ParseJID(s.From.String()),
			Type: s.Type,
			Body: s.Body,
		}})
	case *stanza.Presence:
		presenceType := string(s.Type)
		if presenceType == "" {
			presenceType = "available"
		}
		t.push(contract.TransportEvent{Kind: contract.KindPresence, Presence: &contract.PresenceStanza{
			From:   domain.ParseJID(s.From.String()),
			Type:   presenceType,
			Show:   s.Show,
			Status: s.Status,
		}})
	}
	return nil
}

// GetRoster queries the roster plugin and republishes the result as a
// decoded iq event on the feed.
func (t *Transport) GetRoster(ctx context.Context) error {
	t.mu.Lock()
	plugins := t.plugins
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return perrors.ErrNotConnected
	}

	rp, ok := plugins.Get(roster.Name)
	if !ok {
		return fmt.Errorf("roster plugin not available")
	}
	items, err := rp.(*roster.Plugin).Items(ctx)
	if err != nil {
		return err
	}

	result := &contract.RosterResult{Type: "result"}
	for _, item := range items {
		result.Items = append(result.Items, contract.RosterItem{JID: domain.ParseJID(item.JID)})
	}
	t.push(contract.TransportEvent{Kind: contract.KindIQ, IQ: result})
	return nil
}

func (t *Transport) SendPresence(ctx context.Context, to *domain.JID, presenceType, status string) error {
	session, err := t.currentSession()
	if err != nil {
		return err
	}

	kind := stanza.PresenceAvailable
	if presenceType == "probe" {
		kind = stanza.PresenceProbe
	}
	p := stanza.NewPresence(kind)
	p.Status = status
	if to != nil {
		target, err := jid.Parse(to.Bare().String())
		if err != nil {
			return fmt.Errorf("invalid presence target: %w", err)
		}
		p.To = target
	}
	return session.Send(ctx, p)
}

func (t *Transport) SendMessage(ctx context.Context, to domain.JID, messageType, body string) error {
	session, err := t.currentSession()
	if err != nil {
		return err
	}

	kind := stanza.MessageChat
	if messageType == "groupchat" {
		kind = stanza.MessageGroupchat
	}
	msg := stanza.NewMessage(kind)
	msg.ID = stanza.GenerateID()
	msg.Body = body

	target, err := jid.Parse(to.String())
	if err != nil {
		return fmt.Errorf("invalid message target: %w", err)
	}
	msg.To = target
	return session.Send(ctx, msg)
}

func (t *Transport) JoinRoom(ctx context.Context, room domain.JID, nickname string) error {
	t.mu.Lock()
	plugins := t.plugins
	connected := t.connected
	t.mu.Unlock()

	if !connected {
		return perrors.ErrNotConnected
	}

	mp, ok := plugins.Get(muc.Name)
	if !ok {
		return fmt.Errorf("muc plugin not available")
	}
	return mp.(*muc.Plugin).JoinRoom(ctx, room.String(), nickname)
}

func (t *Transport) currentSession() (*xmppgo.Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.session == nil {
		return nil, perrors.ErrNotConnected
	}
	return t.session, nil
}

// push delivers an event to the feed. The send blocks once the buffer is
// full, stalling the serve loop until the consumer drains; every decoded
// stanza is delivered in arrival order, none are dropped.
func (t *Transport) push(evt contract.TransportEvent) {
	t.events <- evt
}
