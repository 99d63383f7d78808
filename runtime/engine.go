package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"partyline/contract"
	"partyline/domain"
	"partyline/domain/event"
	"partyline/moderation"
	"partyline/runtime/workers"
)

const defaultKeepAlive = 60 * time.Second

// Options configures one engine instance.
type Options struct {
	// AccountID is the local account, also the stream username.
	AccountID   string
	DisplayName string

	// AppID identifies the bound application context. Launcher marks the
	// bare launcher context, which ignores party-scoped notifications.
	AppID    string
	Launcher bool

	// Host is the service domain used to build peer addresses.
	Host string

	// PartyBuildID is the locally expected build; invitations embedding a
	// different build are dropped as incompatible.
	PartyBuildID string

	// AutoConfirm admits joining members without consulting consumers.
	// ConfirmPolicy, when set, decides per confirmation instead.
	AutoConfirm   bool
	ConfirmPolicy func(*domain.PartyMemberConfirmation) bool

	// KeepAlive is the transport keep-alive interval, 60s when unset.
	KeepAlive time.Duration

	// Moderator, when set, censors inbound chat bodies before emission.
	Moderator *moderation.Moderator

	// Telemetry is the periodic self-stats report interval, off when unset.
	Telemetry time.Duration
}

// Engine is the connection and notification protocol engine. It owns the
// stream lifecycle, decodes inbound protocol events, mutates the shared
// domain state, and republishes typed, addressable events on its bus.
//
// Inbound events are processed sequentially in arrival order by a single
// supervised pump goroutine; the engine is the only writer of the party
// aggregates.
type Engine struct {
	log       *slog.Logger
	opts      Options
	transport contract.Transport
	parties   contract.PartyService
	bus       *Bus
	session   *session
	sup       contract.ISupervisor
	handlers  map[string]notificationHandler

	mu         sync.Mutex
	creds      contract.Credentials
	party      *domain.Party
	partyRoom  *domain.JID
	lastStatus map[string]domain.Status
}

func NewEngine(log *slog.Logger, transport contract.Transport, parties contract.PartyService, opts Options) *Engine {
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = defaultKeepAlive
	}
	engine := &Engine{
		log:        log,
		opts:       opts,
		transport:  transport,
		parties:    parties,
		bus:        NewBus(log),
		session:    newSession(opts.AppID, opts.Launcher),
		sup:        workers.NewSupervisor(log),
		lastStatus: make(map[string]domain.Status),
	}
	engine.handlers = notificationHandlers()
	return engine
}

// Bus exposes the engine's event hub for subscriptions and waits.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// State reports the current connection lifecycle state.
func (e *Engine) State() ConnState {
	return e.session.State()
}

// Resource is the unique per-connection resource identifier.
func (e *Engine) Resource() string {
	return e.session.resource
}

// Party returns the current party aggregate, or nil outside a party.
func (e *Engine) Party() *domain.Party {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.party
}

// SetParty installs the party aggregate the engine coordinates. Called once
// a party has been created or joined through the party service.
func (e *Engine) SetParty(party *domain.Party) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.party = party
}

// LastStatus returns the most recent presence snapshot seen for a peer.
func (e *Engine) LastStatus(accountID string) (domain.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.lastStatus[accountID]
	return status, ok
}

// Start launches the supervised background workers: the stream pump and,
// when configured, the telemetry reporter. A panicking notification handler
// is recovered by the supervisor and the pump restarted, so a single
// malformed notification never tears down the connection.
func (e *Engine) Start(ctx context.Context) {
	e.sup.Add(&streamPump{engine: e})
	if e.opts.Telemetry > 0 {
		e.sup.Add(workers.NewTelemetryWorker(e.log, e.opts.Telemetry, func() uint64 {
			return e.bus.Published()
		}))
	}
	go e.sup.Run(ctx)
}

// Connect dials the stream and blocks until the session reaches Started,
// meaning the roster has been re-synchronized and own presence republished.
// Establishment has no bounded timeout; cancel ctx to give up.
func (e *Engine) Connect(ctx context.Context, authToken string) error {
	creds := contract.Credentials{
		Username: e.opts.AccountID,
		Password: authToken,
		Host:     e.opts.Host,
		Resource: e.session.resource,
	}

	e.mu.Lock()
	e.creds = creds
	e.mu.Unlock()
	e.session.closing.Store(false)
	e.session.setState(StateConnecting)

	started := make(chan struct{}, 1)
	cancel := e.bus.Subscribe(event.TopicSessionStarted, func(event.Event) {
		select {
		case started <- struct{}{}:
		default:
		}
	})
	defer cancel()

	e.transport.EnableKeepAlive(e.opts.KeepAlive)
	if err := e.transport.Connect(ctx, creds); err != nil {
		e.session.setState(StateDisconnected)
		return err
	}

	select {
	case <-started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect tears the connection down deliberately, suppressing the
// automatic reconnect.
func (e *Engine) Disconnect(ctx context.Context) error {
	e.session.closing.Store(true)
	e.session.setState(StateDisconnected)
	return e.transport.Disconnect(ctx)
}

// Stop shuts the supervised workers down.
func (e *Engine) Stop() {
	e.sup.Stop()
}

// process applies one decoded transport event. Runs on the pump goroutine
// only, which serializes all state mutation.
func (e *Engine) process(ctx context.Context, evt contract.TransportEvent) {
	switch evt.Kind {
	case contract.KindConnected:
		e.session.setState(StateConnected)
		e.log.Debug("Stream connected", "resource", e.session.resource)
		e.bus.Publish(event.Lifecycle{Topic: event.TopicConnected})

	case contract.KindSessionBound:
		e.session.setState(StateBound)
		e.log.Debug("Session bound", "resource", e.session.resource)
		e.bus.Publish(event.Lifecycle{Topic: event.TopicSessionBound})

	case contract.KindSessionStarted:
		e.session.setState(StateStarted)
		e.log.Info("Session started", "resource", e.session.resource)
		// Re-establish a consistent baseline before consumers observe the
		// started event: roster snapshot first, then own presence.
		if err := e.RefreshFriends(ctx); err != nil {
			e.log.Warn("Roster refresh after session start failed", "error", err)
		}
		if err := e.UpdateStatus(ctx, nil); err != nil {
			e.log.Warn("Presence update after session start failed", "error", err)
		}
		e.bus.Publish(event.Lifecycle{Topic: event.TopicSessionStarted})

	case contract.KindDisconnected:
		e.session.setState(StateDisconnected)
		e.log.Info("Stream disconnected", "resource", e.session.resource)
		e.bus.Publish(event.Lifecycle{Topic: event.TopicDisconnected})
		e.reconnect(ctx, "transport dropped")

	case contract.KindSessionEnded:
		e.log.Info("Session ended by server, requesting a new session", "resource", e.session.resource)
		e.bus.Publish(event.Lifecycle{Topic: event.TopicSessionEnded})
		e.reconnect(ctx, "session expired")

	case contract.KindIQ:
		e.handleRoster(evt.IQ)

	case contract.KindPresence:
		e.handlePresence(evt.Presence)

	case contract.KindMessage:
		e.handleMessage(ctx, evt.Message)

	case contract.KindRawIncoming:
		e.bus.Publish(event.RawTraffic{Topic: event.TopicRawIncoming, XML: evt.Raw})

	case contract.KindRawOutgoing:
		e.bus.Publish(event.RawTraffic{Topic: event.TopicRawOutgoing, XML: evt.Raw})
	}
}

// reconnect re-dials after a transport fault. Reconnection is unconditional
// and has no backoff; overlapping attempts are serialized by the session
// guard so a disconnect and a session-end arriving together dial only once.
func (e *Engine) reconnect(ctx context.Context, reason string) {
	if e.session.closing.Load() {
		return
	}
	if !e.session.beginReconnect() {
		e.log.Debug("Reconnect already in flight, skipping", "reason", reason)
		return
	}

	e.mu.Lock()
	creds := e.creds
	e.mu.Unlock()

	e.log.Info("Reconnecting", "reason", reason, "resource", e.session.resource)
	e.session.setState(StateReconnecting)

	go func() {
		defer e.session.endReconnect()
		if err := e.transport.Connect(ctx, creds); err != nil {
			e.log.Warn("Reconnect attempt failed", "error", err)
		}
	}()
}

// streamPump drains the decoded transport feed sequentially. Further events
// queue on the transport channel while a handler awaits downstream I/O.
type streamPump struct {
	engine *Engine
}

func (w *streamPump) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-w.engine.transport.Events():
			if !ok {
				return nil
			}
			w.engine.process(ctx, evt)
		}
	}
}
