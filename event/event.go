// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package event implements the typed, domain-scoped event model VPs
// and external subscribers observe cross-subsystem effects through.
package event

import (
	"fmt"
	"strings"
)

// Reserved top-level domains. Subsystems build their EventType by
// prepending one of these via a Builder.
const (
	DomainTx        = "tx"
	DomainIBC       = "ibc"
	DomainEthBridge = "eth-bridge"
	DomainUnknown   = "unknown"
)

// Level tags an event as describing a whole block or a single
// transaction. The write-log treats both levels alike: an event is
// promoted with its transaction on commit_tx and discarded on drop_tx.
type Level uint8

const (
	// Block-level events describe the block they were emitted in.
	Block Level = iota
	// Tx-level events describe the transaction that emitted them.
	Tx
)

// EventType is a slash-delimited "<domain>/<sub-domain>/..." path.
type EventType string

// Domain returns the part of the type before the first '/', or
// DomainUnknown if there is none.
func (t EventType) Domain() string {
	if i := strings.IndexByte(string(t), '/'); i >= 0 {
		return string(t)[:i]
	}
	return DomainUnknown
}

// SubDomain returns everything after the first '/', or the whole type
// if there is no '/'.
func (t EventType) SubDomain() string {
	if i := strings.IndexByte(string(t), '/'); i >= 0 {
		return string(t)[i+1:]
	}
	return string(t)
}

func (t EventType) String() string { return string(t) }

// HasPrefix reports whether t starts with prefix (used by
// lookup_events_with_prefix).
func (t EventType) HasPrefix(prefix EventType) bool {
	return strings.HasPrefix(string(t), string(prefix))
}

// Builder constructs EventTypes scoped to one domain, validating that
// no segment itself contains a '/'.
type Builder struct {
	domain string
}

// NewBuilder returns a Builder that prepends domain to every type it
// constructs.
func NewBuilder(domain string) (Builder, error) {
	if strings.Contains(domain, "/") {
		return Builder{}, fmt.Errorf("event: domain %q must not contain '/'", domain)
	}
	return Builder{domain: domain}, nil
}

// MustNewBuilder is NewBuilder, panicking on an invalid domain; for use
// with compile-time constant domains (mirrors the teacher pack's
// MustNewXxx constructors for values that are programmer errors to get
// wrong).
func MustNewBuilder(domain string) Builder {
	b, err := NewBuilder(domain)
	if err != nil {
		panic(err)
	}
	return b
}

// Type builds an EventType from the builder's domain plus the given
// sub-domain segments.
func (b Builder) Type(subdomains ...string) (EventType, error) {
	for _, s := range subdomains {
		if strings.Contains(s, "/") {
			return "", fmt.Errorf("event: segment %q must not contain '/'", s)
		}
	}
	parts := append([]string{b.domain}, subdomains...)
	return EventType(strings.Join(parts, "/")), nil
}

// Event is a single emitted occurrence: a level, a slash-path type, and
// an attribute bag.
type Event struct {
	Level      Level
	Type       EventType
	Attributes map[string]string
}

// New returns an Event with a freshly allocated attribute map.
func New(level Level, t EventType) Event {
	return Event{Level: level, Type: t, Attributes: make(map[string]string)}
}

// With sets an attribute and returns the event for chaining.
func (e Event) With(key, value string) Event {
	e.Attributes[key] = value
	return e
}

// domainAttrKey is the attribute name under which the stripped domain
// is re-emitted for legacy consumers; see Render.
const domainAttrKey = "Domain"

// Render produces the externally-rendered (type, attributes) pair for
// consumers that do not understand the slash-path EventType. If the
// event carries a "Domain" attribute, the rendered type is the
// sub-domain portion only and the domain is emitted as that same
// indexed attribute; otherwise the event is rendered unchanged.
func (e Event) Render() (EventType, map[string]string) {
	domain, hasDomain := e.Attributes[domainAttrKey]
	if !hasDomain {
		return e.Type, e.Attributes
	}
	out := make(map[string]string, len(e.Attributes))
	for k, v := range e.Attributes {
		out[k] = v
	}
	out[domainAttrKey] = domain
	return EventType(e.Type.SubDomain()), out
}

// ByteSize approximates the wire size of the event for gas-charging
// purposes: the type string plus every attribute key and value.
func (e Event) ByteSize() int {
	n := len(e.Type)
	for k, v := range e.Attributes {
		n += len(k) + len(v)
	}
	return n
}
