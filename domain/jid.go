// Package domain contains core concepts of the presence and party system.
// No runtime, network, or UI logic should be added here.
package domain

import "strings"

// JID is a parsed stream address: local@domain/resource.
type JID struct {
	Local    string
	Domain   string
	Resource string
}

func NewJID(local, domain, resource string) JID {
	return JID{Local: local, Domain: domain, Resource: resource}
}

// ParseJID splits a raw address into its parts. Missing parts stay empty.
func ParseJID(raw string) JID {
	var jid JID
	if idx := strings.Index(raw, "/"); idx >= 0 {
		jid.Resource = raw[idx+1:]
		raw = raw[:idx]
	}
	if idx := strings.Index(raw, "@"); idx >= 0 {
		jid.Local = raw[:idx]
		jid.Domain = raw[idx+1:]
	} else {
		jid.Domain = raw
	}
	return jid
}

// Bare returns the address without the resource part.
func (j JID) Bare() JID {
	return JID{Local: j.Local, Domain: j.Domain}
}

func (j JID) String() string {
	var sb strings.Builder
	if j.Local != "" {
		sb.WriteString(j.Local)
		sb.WriteString("@")
	}
	sb.WriteString(j.Domain)
	if j.Resource != "" {
		sb.WriteString("/")
		sb.WriteString(j.Resource)
	}
	return sb.String()
}

func (j JID) IsZero() bool {
	return j.Local == "" && j.Domain == "" && j.Resource == ""
}
