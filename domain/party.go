package domain

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"partyline/errors"
)

// MemberRole is a party member's role. The zero value means regular member.
type MemberRole string

const RoleCaptain MemberRole = "CAPTAIN"

// PartyMember is a mutable aggregate describing one member of the current
// party. Only the notification dispatcher mutates it; consumers of emitted
// events must treat received members as snapshots.
type PartyMember struct {
	ID          string
	DisplayName string
	Role        MemberRole
	Connection  json.RawMessage
	Revision    int
	JoinedAt    time.Time
	Meta        map[string]json.RawMessage
}

// Apply merges a partial state update into the member. Deleted keys are
// removed before updated ones are set, matching the wire contract.
func (m *PartyMember) Apply(revision int, updated map[string]json.RawMessage, deleted []string) {
	m.Revision = revision
	if m.Meta == nil {
		m.Meta = make(map[string]json.RawMessage)
	}
	for _, key := range deleted {
		delete(m.Meta, key)
	}
	for key, value := range updated {
		m.Meta[key] = value
	}
}

// Party is the transient group session. Members are ordered by join and
// keyed by account id; uniqueness is enforced on add.
type Party struct {
	ID       string
	Revision int
	Meta     map[string]json.RawMessage
	members  []*PartyMember
}

func NewParty(id string) *Party {
	return &Party{ID: id, Meta: make(map[string]json.RawMessage)}
}

// FindMember resolves a member by account id, or nil when absent.
func (p *Party) FindMember(accountID string) *PartyMember {
	member, _ := lo.Find(p.members, func(m *PartyMember) bool {
		return m.ID == accountID
	})
	return member
}

// AddMember appends a member, rejecting duplicates by account id.
func (p *Party) AddMember(member *PartyMember) error {
	if p.FindMember(member.ID) != nil {
		return errors.ErrDuplicateMember
	}
	p.members = append(p.members, member)
	return nil
}

// RemoveMember drops a member by account id. Absence is tolerated.
func (p *Party) RemoveMember(accountID string) bool {
	before := len(p.members)
	p.members = lo.Reject(p.members, func(m *PartyMember, _ int) bool {
		return m.ID == accountID
	})
	return len(p.members) != before
}

// Members returns a copy of the member list in join order.
func (p *Party) Members() []*PartyMember {
	out := make([]*PartyMember, len(p.members))
	copy(out, p.members)
	return out
}

func (p *Party) Size() int {
	return len(p.members)
}

// Captain returns the member holding the captain role, or nil.
func (p *Party) Captain() *PartyMember {
	captain, _ := lo.Find(p.members, func(m *PartyMember) bool {
		return m.Role == RoleCaptain
	})
	return captain
}

// Promote flips the captain role to the given member. Every other member is
// demoted first so at most one captain survives, no matter how many
// re-elections arrive. Returns the promoted member, or nil when absent.
func (p *Party) Promote(accountID string) *PartyMember {
	member := p.FindMember(accountID)
	if member == nil {
		return nil
	}
	for _, m := range p.members {
		m.Role = ""
	}
	member.Role = RoleCaptain
	return member
}

// Apply merges a partial party update: revision bump plus meta merge.
func (p *Party) Apply(revision int, updated map[string]json.RawMessage, deleted []string) {
	p.Revision = revision
	if p.Meta == nil {
		p.Meta = make(map[string]json.RawMessage)
	}
	for _, key := range deleted {
		delete(p.Meta, key)
	}
	for key, value := range updated {
		p.Meta[key] = value
	}
}
