// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package address implements the ledger's identity model: addresses and
// the structured storage keys that embed them.
package address

import (
	"fmt"
	"strings"
)

// Kind distinguishes the three address variants the ledger recognizes.
type Kind uint8

const (
	// Established addresses are generated on-chain by InitAccount.
	Established Kind = iota
	// Implicit addresses are derived off-chain (e.g. from a public key)
	// and require no prior on-chain registration.
	Implicit
	// Internal addresses name built-in subsystems (e.g. the PoS module)
	// rather than end-user accounts.
	Internal
)

func (k Kind) String() string {
	switch k {
	case Established:
		return "est"
	case Implicit:
		return "imp"
	case Internal:
		return "int"
	default:
		return "unknown"
	}
}

// Address is a tagged identity embedded in storage keys. The zero value
// is not a valid address; use New* constructors.
type Address struct {
	kind  Kind
	value string
}

// NewEstablished returns an Established address with the given id.
func NewEstablished(id string) Address { return Address{kind: Established, value: id} }

// NewImplicit returns an Implicit address with the given id.
func NewImplicit(id string) Address { return Address{kind: Implicit, value: id} }

// NewInternal returns an Internal address for the given subsystem tag.
func NewInternal(tag string) Address { return Address{kind: Internal, value: tag} }

// Kind reports the address variant.
func (a Address) Kind() Kind { return a.kind }

// Value reports the address's raw id/tag.
func (a Address) Value() string { return a.value }

// IsZero reports whether a is the zero Address (absence of an address).
func (a Address) IsZero() bool { return a.kind == 0 && a.value == "" }

// String renders the address in the segment sigil form consumed by Key
// parsing: "#<kind>:<value>". Address equality, hashing (as a Go map
// key, since Address is a comparable struct) and ordering are total.
func (a Address) String() string {
	return fmt.Sprintf("%s%s:%s", sigil, a.kind, a.value)
}

// Less provides a total order over addresses, used to keep iteration
// and serialization deterministic regardless of discovery order.
func (a Address) Less(b Address) bool {
	if a.kind != b.kind {
		return a.kind < b.kind
	}
	return a.value < b.value
}

// GobEncode implements gob.GobEncoder. Address's fields are
// unexported, so the default reflection-based gob codec would encode
// every value as an empty struct; this routes through the same
// sigil-form String/ParseAddress round trip used everywhere else.
func (a Address) GobEncode() ([]byte, error) { return []byte(a.String()), nil }

// GobDecode implements gob.GobDecoder.
func (a *Address) GobDecode(data []byte) error {
	parsed, err := ParseAddress(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// sigil prefixes an address segment so Key.Parse can distinguish an
// address segment from a plain literal segment.
const sigil = "#"

// ParseAddress parses the String() form back into an Address.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, sigil) {
		return Address{}, fmt.Errorf("address: missing sigil in %q", s)
	}
	rest := s[len(sigil):]
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) != 2 {
		return Address{}, fmt.Errorf("address: malformed segment %q", s)
	}
	var kind Kind
	switch parts[0] {
	case "est":
		kind = Established
	case "imp":
		kind = Implicit
	case "int":
		kind = Internal
	default:
		return Address{}, fmt.Errorf("address: unknown kind %q", parts[0])
	}
	return Address{kind: kind, value: parts[1]}, nil
}

// isAddressSegment reports whether s looks like an address segment,
// without failing on malformed input (used by Key.FindAddresses, which
// must tolerate segments that are merely shaped like one).
func isAddressSegment(s string) bool { return strings.HasPrefix(s, sigil) }
