// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package storage defines the persistent key/value substrate contract
// the write-log stages deltas over, and an in-memory reference
// implementation used by tests and the bundled node binary.
//
// The actual production substrate (a block-versioned KV store with a
// real Merkle commitment) is explicitly out of this core's scope per
// spec.md §1; only the interface it must satisfy lives here.
package storage

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"
	"sync"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/ledgerd/shellcore/address"
)

// BlockHash identifies a block as handed down from the consensus
// front-end; opaque to this package.
type BlockHash [32]byte

// BlockHeight is a monotone block counter.
type BlockHeight uint64

// MerkleRoot is the commitment the substrate returns after a commit.
type MerkleRoot []byte

func (r MerkleRoot) String() string { return fmt.Sprintf("%x", []byte(r)) }

// Storage is the contract the write-log and the shell rely on. A
// concrete implementation owns the Merkle commitment scheme; this core
// obtains roots only through Commit and LoadLastState.
type Storage interface {
	Read(key address.Key) ([]byte, bool, error)
	Has(key address.Key) (bool, error)
	Write(key address.Key, value []byte) error
	Delete(key address.Key) error

	// ValidityPredicate loads the VP bytecode for addr, per the
	// mandatory validity_predicate(addr) key (spec.md §6).
	ValidityPredicate(addr address.Address) ([]byte, bool, error)

	SetChainID(id string) error
	ChainID() (string, bool, error)

	// BeginBlock marks the substrate entering a new block scope.
	BeginBlock(hash BlockHash, height BlockHeight) error

	// Commit persists all pending writes and returns the new root.
	Commit() (MerkleRoot, error)

	// LoadLastState returns the root and height of the last committed
	// block, or found=false if none has ever been committed.
	LoadLastState() (root MerkleRoot, height BlockHeight, found bool, err error)
}

// Mem is an in-memory Storage implementation. It keeps committed state
// in a plain map guarded by a mutex, plus a bounded fastcache layer in
// front of VP bytecode lookups, since validity_predicate(addr) is read
// on every verifier in every transaction and is a natural hot path to
// cache.
type Mem struct {
	mu sync.RWMutex

	data        map[string][]byte
	chainID     string
	hasChainID  bool
	height      BlockHeight
	lastRoot    MerkleRoot
	lastHeight  BlockHeight
	hasLastRoot bool

	vpCache *fastcache.Cache
}

// NewMem returns an empty in-memory Storage with a vpCacheBytes-sized
// VP bytecode cache (a sensible default is a few MiB for a test node).
func NewMem(vpCacheBytes int) *Mem {
	if vpCacheBytes <= 0 {
		vpCacheBytes = 4 << 20
	}
	return &Mem{
		data:    make(map[string][]byte),
		vpCache: fastcache.New(vpCacheBytes),
	}
}

func (m *Mem) Read(key address.Key) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key.String()]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *Mem) Has(key address.Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key.String()]
	return ok, nil
}

func (m *Mem) Write(key address.Key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[key.String()] = cp
	if addr, ok := address.IsValidityPredicateKey(key); ok {
		m.vpCache.Set([]byte(addr.String()), cp)
	}
	return nil
}

func (m *Mem) Delete(key address.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key.String())
	if addr, ok := address.IsValidityPredicateKey(key); ok {
		m.vpCache.Del([]byte(addr.String()))
	}
	return nil
}

func (m *Mem) ValidityPredicate(addr address.Address) ([]byte, bool, error) {
	if cached := m.vpCache.Get(nil, []byte(addr.String())); cached != nil {
		return cached, true, nil
	}
	return m.Read(address.ValidityPredicateKey(addr))
}

func (m *Mem) SetChainID(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chainID = id
	m.hasChainID = true
	return nil
}

func (m *Mem) ChainID() (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainID, m.hasChainID, nil
}

func (m *Mem) BeginBlock(hash BlockHash, height BlockHeight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.height = height
	return nil
}

// Commit computes a deterministic root over the full committed key
// space plus the prior root, and records it as the last state. The
// hash function is a plain sha256 over sorted (key, value) pairs: the
// shape of the real Merkle tree is explicitly out of this core's
// scope (spec.md §1), so no third-party Merkle library is wired here —
// see DESIGN.md.
func (m *Mem) Commit() (MerkleRoot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	if m.hasLastRoot {
		h.Write(m.lastRoot)
	}
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write(m.data[k])
	}
	root := MerkleRoot(h.Sum(nil))
	m.lastRoot = root
	m.lastHeight = m.height
	m.hasLastRoot = true
	return root, nil
}

func (m *Mem) LoadLastState() (MerkleRoot, BlockHeight, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasLastRoot {
		return nil, 0, false, nil
	}
	root := make([]byte, len(m.lastRoot))
	copy(root, m.lastRoot)
	return root, m.lastHeight, true, nil
}

// Snapshot returns a byte-for-byte copy of all key/value pairs, for
// equality assertions in tests that check dry-run purity.
func (m *Mem) Snapshot() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// Equal reports whether two snapshots hold identical data.
func Equal(a, b map[string][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}
