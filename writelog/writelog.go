// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package writelog implements the three-tier staged-delta layer that
// sits in front of the persistent storage substrate: a tx-scope layer
// for the currently-running transaction, a block-scope layer for
// transactions already committed within the current block, and the
// substrate itself.
package writelog

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/event"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/storage"
)

// WriteLog stages per-tx and per-block mutations over a Storage
// substrate. It is not safe for concurrent use: per spec.md §4.2 the
// shell runs one ApplyTx at a time on a single worker thread.
type WriteLog struct {
	store storage.Storage

	txLayer    map[string]*entry
	blockLayer map[string]*entry

	txEvents    []event.Event
	blockEvents []event.Event

	order uint64
}

// New returns a WriteLog staged over the given storage substrate.
func New(store storage.Storage) *WriteLog {
	return &WriteLog{
		store:      store,
		txLayer:    make(map[string]*entry),
		blockLayer: make(map[string]*entry),
	}
}

func (w *WriteLog) nextOrder() uint64 {
	w.order++
	return w.order
}

// Read resolves a key top-down: tx-scope, then block-scope, then
// storage. A Write, Temp or InitAccount entry returns its value (for
// InitAccount, the VP bytecode staged under the validity_predicate
// key); a Delete entry reads as absent.
func (w *WriteLog) Read(key address.Key) ([]byte, bool, error) {
	k := key.String()
	if e, ok := w.txLayer[k]; ok {
		return readEntry(e)
	}
	if e, ok := w.blockLayer[k]; ok {
		return readEntry(e)
	}
	return w.store.Read(key)
}

func readEntry(e *entry) ([]byte, bool, error) {
	switch e.kind {
	case Delete:
		return nil, false, nil
	default:
		return e.value, true, nil
	}
}

// HasKey reports whether a key resolves to a present value in any
// layer.
func (w *WriteLog) HasKey(key address.Key) (bool, error) {
	k := key.String()
	if e, ok := w.txLayer[k]; ok {
		return !e.isTombstone(), nil
	}
	if e, ok := w.blockLayer[k]; ok {
		return !e.isTombstone(), nil
	}
	return w.store.Has(key)
}

// Write stages a value for key in tx-scope.
func (w *WriteLog) Write(key address.Key, value []byte) {
	w.txLayer[key.String()] = &entry{kind: Write, value: cloneBytes(value), order: w.nextOrder()}
}

// Delete stages a removal for key in tx-scope.
func (w *WriteLog) Delete(key address.Key) {
	w.txLayer[key.String()] = &entry{kind: Delete, order: w.nextOrder()}
}

// WriteTemp stages a value visible only to the rest of the current
// transaction; it is never promoted to block scope.
func (w *WriteLog) WriteTemp(key address.Key, value []byte) {
	w.txLayer[key.String()] = &entry{kind: Temp, value: cloneBytes(value), order: w.nextOrder()}
}

// InitAccount derives a fresh Established address from txHash and the
// current per-tx insertion order, stages its VP bytecode, and returns
// the new address. The counter argument is the caller-owned per-tx
// InitAccount call count (0-based), so repeated InitAccount calls
// within one transaction yield distinct, still-deterministic
// addresses.
func (w *WriteLog) InitAccount(txHash [32]byte, counter uint64, vp []byte) address.Address {
	addr := address.DeriveEstablished(txHash, counter)
	key := address.ValidityPredicateKey(addr)
	w.txLayer[key.String()] = &entry{kind: InitAccount, value: cloneBytes(vp), order: w.nextOrder()}
	return addr
}

// EmitEvent buffers ev into the current transaction's pending event
// list (promoted to block scope on commit_tx, discarded on drop_tx)
// and returns the gas charge the caller's GasMeter must account for.
func (w *WriteLog) EmitEvent(ev event.Event) uint64 {
	w.txEvents = append(w.txEvents, ev)
	return uint64(ev.ByteSize()) * gas.EventGasPerByte
}

// LookupEventsWithPrefix returns every block-scope event whose type
// starts with prefix, in emission order.
func (w *WriteLog) LookupEventsWithPrefix(prefix event.EventType) []event.Event {
	var out []event.Event
	for _, e := range w.blockEvents {
		if e.Type.HasPrefix(prefix) {
			out = append(out, e)
		}
	}
	return out
}

// GetChangedKeys returns the union of every key mutated in tx-scope
// and block-scope, in deterministic (sorted) order.
func (w *WriteLog) GetChangedKeys() []address.Key {
	seen := make(map[string]struct{}, len(w.txLayer)+len(w.blockLayer))
	for k := range w.txLayer {
		seen[k] = struct{}{}
	}
	for k := range w.blockLayer {
		seen[k] = struct{}{}
	}
	out := make([]address.Key, 0, len(seen))
	strs := make([]string, 0, len(seen))
	for k := range seen {
		strs = append(strs, k)
	}
	sort.Strings(strs)
	for _, s := range strs {
		k, err := address.ParseKey(s)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out
}

// VerifiersAndChangedKeys implements spec.md §4.4: given the base
// verifier set declared by the tx code, derive the full verifier set V
// and the changed-key set K (the union of everything mutated in
// tx-scope, since this is called mid-transaction before commit_tx).
func (w *WriteLog) VerifiersAndChangedKeys(base mapset.Set[address.Address]) (mapset.Set[address.Address], []address.Key) {
	keys := w.txChangedKeys()
	verifiers := mapset.NewThreadUnsafeSet[address.Address]()
	for a := range base.Iter() {
		verifiers.Add(a)
	}
	for _, k := range keys {
		for _, a := range k.FindAddresses() {
			verifiers.Add(a)
		}
	}
	return verifiers, keys
}

func (w *WriteLog) txChangedKeys() []address.Key {
	strs := make([]string, 0, len(w.txLayer))
	for k := range w.txLayer {
		strs = append(strs, k)
	}
	sort.Strings(strs)
	out := make([]address.Key, 0, len(strs))
	for _, s := range strs {
		k, err := address.ParseKey(s)
		if err != nil {
			continue
		}
		out = append(out, k)
	}
	return out
}

// CommitTx promotes every tx-scope entry and buffered event into block
// scope (Temp entries are dropped, per their definition) and clears
// tx-scope.
func (w *WriteLog) CommitTx() {
	for k, e := range w.txLayer {
		if e.kind == Temp {
			continue
		}
		w.blockLayer[k] = e
	}
	w.blockEvents = append(w.blockEvents, w.txEvents...)
	w.txLayer = make(map[string]*entry)
	w.txEvents = nil
}

// DropTx discards every tx-scope entry and buffered event, leaving
// block-scope and storage bit-identical to before the transaction.
func (w *WriteLog) DropTx() {
	w.txLayer = make(map[string]*entry)
	w.txEvents = nil
}

// CommitBlock applies every block-scope entry to storage in a single
// pass, returns the events accumulated this block in insertion order
// for the shell to forward to the consensus reply / external
// subscribers, and clears the block-scope buffers.
func (w *WriteLog) CommitBlock() ([]event.Event, error) {
	type ordered struct {
		key string
		e   *entry
	}
	entries := make([]ordered, 0, len(w.blockLayer))
	for k, e := range w.blockLayer {
		entries = append(entries, ordered{k, e})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].e.order < entries[j].e.order })

	for _, oe := range entries {
		key, err := address.ParseKey(oe.key)
		if err != nil {
			continue
		}
		switch oe.e.kind {
		case Delete:
			if err := w.store.Delete(key); err != nil {
				return nil, err
			}
		default:
			if err := w.store.Write(key, oe.e.value); err != nil {
				return nil, err
			}
		}
	}

	events := w.blockEvents
	w.blockLayer = make(map[string]*entry)
	w.blockEvents = nil
	return events, nil
}

// Clone returns a throwaway copy sharing the same storage view but
// with independent tx/block layers and event buffers, for dry-run
// execution that must never mutate the shell's persistent WriteLog.
func (w *WriteLog) Clone() *WriteLog {
	clone := &WriteLog{
		store:      w.store,
		txLayer:    make(map[string]*entry, len(w.txLayer)),
		blockLayer: make(map[string]*entry, len(w.blockLayer)),
		order:      w.order,
	}
	for k, e := range w.txLayer {
		ce := *e
		clone.txLayer[k] = &ce
	}
	for k, e := range w.blockLayer {
		ce := *e
		clone.blockLayer[k] = &ce
	}
	clone.txEvents = append([]event.Event(nil), w.txEvents...)
	clone.blockEvents = append([]event.Event(nil), w.blockEvents...)
	return clone
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}
