// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package runner defines the host-interface contract between this
// core and the sandboxed code runners (TxRunner, VpRunner) that
// actually evaluate transaction and predicate bytecode. Per spec.md
// §1 those runners are external collaborators, treated as black
// boxes; this package only specifies the interface they are handed
// and two function adapter types (FuncTxRunner, FuncVpRunner) that
// this repository's own tests use to supply runners as plain Go
// closures (the shape mirrors how the
// teacher pack treats a stateful precompiled contract as a plain Go
// function satisfying an execution interface, rather than bytecode).
package runner

import (
	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/event"
)

// TxHostEnv is the view of (storage, write_log, gas_meter, verifiers)
// exposed to transaction code. Every method may mutate the current
// transaction's tx-scope staging.
type TxHostEnv interface {
	Read(key address.Key) ([]byte, bool, error)
	HasKey(key address.Key) (bool, error)
	Write(key address.Key, value []byte)
	Delete(key address.Key)
	// InitAccount generates a fresh established address, stages its VP
	// bytecode, and adds it to the verifier set.
	InitAccount(vp []byte) address.Address
	// EmitEvent buffers ev and charges the returned gas automatically,
	// failing if doing so would breach the transaction's gas envelope.
	EmitEvent(ev event.Event) error
	// InsertVerifier declares an address whose VP must run for this
	// transaction even if none of its keys were touched.
	InsertVerifier(addr address.Address)
	// ChargeGas applies an arbitrary host-call gas charge.
	ChargeGas(amount uint64) error
}

// TxRunner evaluates transaction bytecode against a TxHostEnv. It must
// terminate with either success (state deltas retained in tx-scope) or
// failure (the driver discards any partial deltas).
type TxRunner interface {
	Run(env TxHostEnv, code, data []byte) error
}

// FuncTxRunner adapts a plain function to TxRunner.
type FuncTxRunner func(env TxHostEnv, code, data []byte) error

// Run implements TxRunner.
func (f FuncTxRunner) Run(env TxHostEnv, code, data []byte) error { return f(env, code, data) }

// VpHostEnv is the read-only view of (storage, write_log) exposed to a
// validity predicate, plus its own gas meter. The host interface
// denies every mutating call at the type level: VpHostEnv simply has
// no Write/Delete/InitAccount/EmitEvent methods.
type VpHostEnv interface {
	Read(key address.Key) ([]byte, bool, error)
	HasKey(key address.Key) (bool, error)
	ChargeGas(amount uint64) error
}

// VpRunner evaluates predicate bytecode for one verifier. addr is the
// account whose VP is running; keys is K_a, the subset of changed keys
// that concern it; verifiers is the full verifier set V for context;
// vpCode is the predicate bytecode; txData is the transaction's data
// field.
type VpRunner interface {
	Run(env VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (accept bool, err error)
}

// FuncVpRunner adapts a plain function to VpRunner.
type FuncVpRunner func(env VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error)

// Run implements VpRunner.
func (f FuncVpRunner) Run(env VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
	return f(env, addr, keys, verifiers, vpCode, txData)
}
