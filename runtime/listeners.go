package runtime

import (
	"context"
	"time"

	"github.com/samber/lo"

	"partyline/contract"
	"partyline/domain"
	"partyline/domain/event"
)

// handleRoster turns a roster iq result into a full friends snapshot.
func (e *Engine) handleRoster(iq *contract.RosterResult) {
	if iq == nil || iq.Type != "result" {
		return
	}
	friends := lo.Map(iq.Items, func(item contract.RosterItem, _ int) domain.FriendRef {
		return domain.FriendRef{AccountID: item.JID.Local, JID: item.JID}
	})
	e.bus.Publish(event.FriendsSnapshot{Friends: friends})
}

// handlePresence maps an inbound presence stanza into a Status snapshot and
// remembers it per sender for later invitation synthesis.
func (e *Engine) handlePresence(p *contract.PresenceStanza) {
	if p == nil {
		return
	}
	status := domain.NewStatus(p.From, domain.StateFromPresence(p.Type, p.Show), p.Status)

	e.mu.Lock()
	e.lastStatus[status.AccountID] = status
	e.mu.Unlock()

	e.bus.Publish(event.FriendStatusChanged{Status: status})
}

// handleMessage routes message stanzas: "normal" carries the notification
// envelope, "chat" is a direct text message.
func (e *Engine) handleMessage(ctx context.Context, msg *contract.MessageStanza) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case "normal":
		e.dispatchNotification(ctx, msg)

	case "chat":
		body := msg.Body
		if e.opts.Moderator != nil {
			body = e.opts.Moderator.Censor(body)
		}
		message := domain.NewFriendMessage(msg.From.Local, body, time.Now())
		e.bus.Publish(event.FriendMessageReceived{Message: message})

	case "error":
		e.log.Warn("Stanza error received", "from", msg.From.String())

	default:
		e.log.Debug("Unknown stanza type", "type", msg.Type, "from", msg.From.String())
	}
}
