package runtime

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnState is the connection lifecycle state. Transitions are monotonic
// within a single connect attempt; a reconnect re-enters at Connecting.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBound
	StateStarted
	StateReconnecting
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateBound:
		return "Bound"
	case StateStarted:
		return "Started"
	case StateReconnecting:
		return "Reconnecting"
	default:
		return "Unknown"
	}
}

// session tracks one logical connection: its unique resource identifier,
// its lifecycle state, and the guards serializing reconnect attempts.
type session struct {
	resource     string
	state        atomic.Int32
	reconnecting atomic.Bool
	closing      atomic.Bool
}

const launcherRole = "launcher"

// newSession builds the per-process session identity. The resource combines
// the role, a fixed build tag, and a 128-bit random correlation token, so
// collisions across instances are negligible.
func newSession(appID string, launcher bool) *session {
	role := appID
	if launcher {
		role = launcherRole
	}
	return &session{resource: fmt.Sprintf("V2:%s:WIN::%s", role, correlationID())}
}

// correlationID is a random 128-bit token, uppercase hex, separators stripped.
func correlationID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func (s *session) State() ConnState {
	return ConnState(s.state.Load())
}

func (s *session) setState(state ConnState) {
	s.state.Store(int32(state))
}

// beginReconnect wins the right to run the single in-flight reconnect.
// A disconnect and a session-end arriving close together must not stack
// reconnect attempts.
func (s *session) beginReconnect() bool {
	return s.reconnecting.CompareAndSwap(false, true)
}

func (s *session) endReconnect() {
	s.reconnecting.Store(false)
}
