package address

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/binary"
	"fmt"
	"strings"
)

// Key is a sequence of '/'-joined segments, where any segment may embed
// an Address. Keys are the unit of storage addressing for the write-log
// and the persistent substrate.
type Key struct {
	segments []string
}

// NewKey builds a Key from already-rendered segments (literals or
// Address.String() forms). Prefer Push/PushAddress for construction.
func NewKey(segments ...string) Key {
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Key{segments: cp}
}

// Push returns a new Key with a literal segment appended.
func (k Key) Push(segment string) Key {
	return Key{segments: append(append([]string{}, k.segments...), segment)}
}

// PushAddress returns a new Key with an address segment appended.
func (k Key) PushAddress(a Address) Key {
	return k.Push(a.String())
}

// String renders the key as its canonical '/'-joined form.
func (k Key) String() string {
	return strings.Join(k.segments, "/")
}

// Len reports the number of segments.
func (k Key) Len() int { return len(k.segments) }

// Segments returns a copy of the raw segments.
func (k Key) Segments() []string {
	cp := make([]string, len(k.segments))
	copy(cp, k.segments)
	return cp
}

// Equal reports whether two keys have identical segments.
func (k Key) Equal(other Key) bool {
	if len(k.segments) != len(other.segments) {
		return false
	}
	for i := range k.segments {
		if k.segments[i] != other.segments[i] {
			return false
		}
	}
	return true
}

// Less provides a total, deterministic order over keys for iteration.
func (k Key) Less(other Key) bool { return k.String() < other.String() }

// ParseKey is the inverse of Key.String: ParseKey(k.String()) == k for
// any Key whose segments do not themselves contain '/'.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return Key{}, fmt.Errorf("key: empty key")
	}
	return Key{segments: strings.Split(s, "/")}, nil
}

// FindAddresses returns the set of every address embedded anywhere in
// the key, in segment order, deduplicated.
func (k Key) FindAddresses() []Address {
	seen := make(map[Address]struct{}, len(k.segments))
	var out []Address
	for _, seg := range k.segments {
		if !isAddressSegment(seg) {
			continue
		}
		addr, err := ParseAddress(seg)
		if err != nil {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	return out
}

// IsValidityPredicateKey reports whether k is the mandatory VP key for
// some address, and returns that address.
func IsValidityPredicateKey(k Key) (Address, bool) {
	if len(k.segments) != 2 || k.segments[0] != vpNamespace {
		return Address{}, false
	}
	addr, err := ParseAddress(k.segments[1])
	if err != nil {
		return Address{}, false
	}
	return addr, true
}

const vpNamespace = "validity_predicate"

// ValidityPredicateKey returns the mandatory key under which an
// address's VP bytecode is stored: validity_predicate(addr).
func ValidityPredicateKey(a Address) Key {
	return NewKey(vpNamespace).PushAddress(a)
}

// DeriveEstablished deterministically derives a fresh Established
// address from the hash of the transaction that is creating it and the
// per-tx insertion order of the InitAccount call, so that any node
// replaying the same transaction produces the same address.
func DeriveEstablished(txHash [32]byte, counter uint64) Address {
	h := sha256.New()
	h.Write(txHash[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], counter)
	h.Write(buf[:])
	sum := h.Sum(nil)
	return NewEstablished(hex.EncodeToString(sum[:20]))
}
