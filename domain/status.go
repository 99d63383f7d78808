package domain

import (
	"encoding/json"
	"regexp"
	"time"
)

// UserState is the coarse presence state of a peer.
type UserState string

const (
	StateOnline  UserState = "Online"
	StateAway    UserState = "Away"
	StateOffline UserState = "Offline"
)

// StateFromPresence maps a decoded presence stanza to a UserState.
// An available presence carrying a "show" detail means the peer is actively
// online; available without it means idle. Anything else is offline.
func StateFromPresence(presenceType, show string) UserState {
	if presenceType != "available" {
		return StateOffline
	}
	if show != "" {
		return StateOnline
	}
	return StateAway
}

// Status is an immutable snapshot of a peer's presence, built once per
// inbound presence stanza. The raw payload is kept verbatim; the parsed
// fields are best-effort and empty when the payload is not JSON.
type Status struct {
	AccountID  string
	Sender     JID
	State      UserState
	Raw        string
	Text       string
	Properties map[string]json.RawMessage
}

// statusPayload is the JSON shape peers publish in the presence status field.
type statusPayload struct {
	Status     string                     `json:"Status"`
	Properties map[string]json.RawMessage `json:"Properties"`
}

func NewStatus(sender JID, state UserState, raw string) Status {
	status := Status{
		AccountID: sender.Local,
		Sender:    sender,
		State:     state,
		Raw:       raw,
	}
	var payload statusPayload
	if err := json.Unmarshal([]byte(raw), &payload); err == nil {
		status.Text = payload.Status
		status.Properties = payload.Properties
	}
	return status
}

var joinInfoKey = regexp.MustCompile(`^party\.joininfodata\.([0-9]*)_j$`)

// JoinInfo is the party join block some peers advertise inside their status.
type JoinInfo struct {
	PartyID     string `json:"partyId"`
	Platform    string `json:"sourcePlatform"`
	DisplayName string `json:"sourceDisplayName"`
	BuildID     string `json:"buildId"`
	Private     bool   `json:"bIsPrivate"`
}

// JoinInfo extracts the advertised party join block, or nil when the status
// carries none.
func (s Status) JoinInfo() *JoinInfo {
	for key, value := range s.Properties {
		if !joinInfoKey.MatchString(key) {
			continue
		}
		var info JoinInfo
		if err := json.Unmarshal(value, &info); err != nil {
			return nil
		}
		return &info
	}
	return nil
}

// Invitation synthesizes a party invitation from the advertised join info.
// Returns nil when the status has no join info or the party is private.
// The synthesized record expires four hours after it is sent.
func (s Status) Invitation(to string, now time.Time) *PartyInvitation {
	info := s.JoinInfo()
	if info == nil || info.Private {
		return nil
	}
	return &PartyInvitation{
		PartyID:   info.PartyID,
		SentBy:    s.Sender.Local,
		SentTo:    to,
		SentAt:    now,
		ExpiresAt: now.Add(4 * time.Hour),
		Status:    InvitationSent,
		Meta: map[string]string{
			MetaConnectionType: "game",
			MetaPlatform:       info.Platform,
			MetaDisplayName:    info.DisplayName,
			MetaBuildID:        info.BuildID,
			MetaPlatformData:   "",
		},
	}
}
