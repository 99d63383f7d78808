package runtime

import (
	"context"
	"encoding/json"
	"fmt"

	"partyline/domain"
	"partyline/errors"
)

// Outbound commands are thin and fire-and-forget relative to engine state:
// they never mutate friends or party locally. Confirmation of effect, if
// any, arrives later as an inbound notification.

// SendFriendMessage sends a direct chat message to a friend.
func (e *Engine) SendFriendMessage(ctx context.Context, accountID, body string) error {
	to := domain.NewJID(accountID, e.opts.Host, "")
	return e.transport.SendMessage(ctx, to, "chat", body)
}

// JoinPartyChat joins the party's group-chat room and caches its address
// for subsequent party messages.
func (e *Engine) JoinPartyChat(ctx context.Context, partyID string) error {
	room := domain.NewJID(fmt.Sprintf("Party-%s", partyID), "muc."+e.opts.Host, "")
	nickname := fmt.Sprintf("%s:%s:%s", e.opts.DisplayName, e.opts.AccountID, e.session.resource)

	if err := e.transport.JoinRoom(ctx, room, nickname); err != nil {
		return err
	}

	e.mu.Lock()
	e.partyRoom = &room
	e.mu.Unlock()
	return nil
}

// SendPartyMessage sends a group-chat message to the joined party room.
// Returns ErrNoPartyRoom when JoinPartyChat has not succeeded yet.
func (e *Engine) SendPartyMessage(ctx context.Context, body string) error {
	e.mu.Lock()
	room := e.partyRoom
	e.mu.Unlock()

	if room == nil {
		return errors.ErrNoPartyRoom
	}
	return e.transport.SendMessage(ctx, *room, "groupchat", body)
}

// UpdateStatus broadcasts own presence. A nil status clears the payload;
// a string is wrapped into the standard {"Status": ...} shape; any other
// value is published as its JSON encoding.
func (e *Engine) UpdateStatus(ctx context.Context, status any) error {
	payload, err := encodeStatus(status)
	if err != nil {
		return err
	}
	return e.transport.SendPresence(ctx, nil, "available", payload)
}

// UpdatePersonalStatus publishes presence towards a single peer.
func (e *Engine) UpdatePersonalStatus(ctx context.Context, accountID string, status any) error {
	payload, err := encodeStatus(status)
	if err != nil {
		return err
	}
	to := domain.NewJID(accountID, e.opts.Host, "")
	return e.transport.SendPresence(ctx, &to, "available", payload)
}

// SendProbe requests a peer's current presence.
func (e *Engine) SendProbe(ctx context.Context, accountID string) error {
	to := domain.NewJID(accountID, e.opts.Host, "")
	return e.transport.SendPresence(ctx, &to, "probe", "")
}

// RefreshFriends re-requests the full roster snapshot.
func (e *Engine) RefreshFriends(ctx context.Context) error {
	return e.transport.GetRoster(ctx)
}

func encodeStatus(status any) (string, error) {
	if status == nil {
		return "", nil
	}
	if text, ok := status.(string); ok {
		status = map[string]string{"Status": text}
	}
	encoded, err := json.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
