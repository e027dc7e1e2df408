// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gas implements the dual-scope gas-metering discipline: a
// block-wide meter that accumulates every transaction's charges, and a
// per-VP-invocation meter bounded by the same envelope the transaction
// it runs inside of carries.
package gas

import (
	"crypto/sha256"
	"errors"
)

// Deterministic fee schedule. These are implementation-defined by
// spec.md §4.3 but must be fixed and identical across every node.
const (
	// BaseTxFeePerByte is charged once per byte of the raw tx envelope.
	BaseTxFeePerByte uint64 = 1
	// CompileFeePerByte is charged once per byte of each distinct code
	// blob (tx code, and each VP code) referenced within a transaction.
	CompileFeePerByte uint64 = 2
	// ParallelGasDivisor discounts the non-maximum VP costs in a
	// parallel dispatch round, reflecting that they ran concurrently
	// with the most expensive VP rather than sequentially after it.
	ParallelGasDivisor uint64 = 4
	// EventGasPerByte is charged for each byte of an emitted event's
	// type and attributes.
	EventGasPerByte uint64 = 1

	// DefaultPerTxLimit bounds gas spent within a single transaction
	// (tx code execution plus every VP it triggers).
	DefaultPerTxLimit uint64 = 10_000_000
	// DefaultPerBlockLimit bounds gas accumulated across every
	// transaction committed within one block.
	DefaultPerBlockLimit uint64 = 100_000_000
)

var (
	// ErrGasOverflow is returned when a charge would overflow uint64
	// accounting; it always poisons the whole transaction.
	ErrGasOverflow = errors.New("gas: overflow")
	// ErrTransactionGasExceeded is returned when a transaction's own
	// gas usage would exceed the per-transaction limit.
	ErrTransactionGasExceeded = errors.New("gas: transaction gas limit exceeded")
	// ErrBlockGasExceeded is returned when folding a finished
	// transaction's usage into the block total would exceed the
	// per-block limit.
	ErrBlockGasExceeded = errors.New("gas: block gas limit exceeded")
	// ErrVpGasExceeded is returned by a VpMeter when a predicate's own
	// host-call charges would breach its shared gas envelope.
	ErrVpGasExceeded = errors.New("gas: validity predicate gas limit exceeded")
)

// checkedAdd adds b to a, reporting ErrGasOverflow on wraparound.
func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrGasOverflow
	}
	return sum, nil
}

// BlockMeter accumulates gas across every transaction applied within
// the current block. It is owned by the shell and reset once per
// block; each transaction further resets its own tx-scoped counters at
// the start of StartTx.
type BlockMeter struct {
	txLimit    uint64
	blockLimit uint64

	blockGas uint64

	txGas    uint64
	seenCode map[[32]byte]struct{}
}

// NewBlockMeter returns a BlockMeter with the given per-tx and
// per-block limits.
func NewBlockMeter(txLimit, blockLimit uint64) *BlockMeter {
	m := &BlockMeter{txLimit: txLimit, blockLimit: blockLimit}
	m.StartTx()
	return m
}

// Reset clears the block-wide total; called on BeginBlock.
func (m *BlockMeter) Reset() {
	m.blockGas = 0
	m.StartTx()
}

// StartTx clears the per-transaction counters; called before each
// ApplyTx/dry-run so compile-fee deduplication and the per-tx limit
// apply independently to every transaction.
func (m *BlockMeter) StartTx() {
	m.txGas = 0
	m.seenCode = make(map[[32]byte]struct{})
}

// GetCurrentTransactionGas reports the gas charged so far in the
// current transaction.
func (m *BlockMeter) GetCurrentTransactionGas() uint64 { return m.txGas }

// Add charges an arbitrary amount of gas against the current
// transaction, enforcing the per-tx limit.
func (m *BlockMeter) Add(amount uint64) error {
	sum, err := checkedAdd(m.txGas, amount)
	if err != nil {
		return err
	}
	if sum > m.txLimit {
		return ErrTransactionGasExceeded
	}
	m.txGas = sum
	return nil
}

// AddBaseTransactionFee charges the base per-byte fee for the raw
// transaction envelope.
func (m *BlockMeter) AddBaseTransactionFee(txLen int) error {
	return m.Add(uint64(txLen) * BaseTxFeePerByte)
}

// AddCompilingFee charges the per-byte compile fee for a code blob, but
// only the first time a given blob is seen within the current
// transaction (tx code and each distinct VP code each pay once).
func (m *BlockMeter) AddCompilingFee(code []byte) error {
	digest := sha256.Sum256(code)
	if _, ok := m.seenCode[digest]; ok {
		return nil
	}
	if err := m.Add(uint64(len(code)) * CompileFeePerByte); err != nil {
		return err
	}
	m.seenCode[digest] = struct{}{}
	return nil
}

// AddParallelFee charges for a round of VP dispatch: the caller must
// already have charged the maximum individual cost via Add; costs
// holds the remaining (non-maximum) per-VP costs, which are summed and
// divided by ParallelGasDivisor (rounded up) to reflect that they ran
// concurrently with the most expensive predicate.
func (m *BlockMeter) AddParallelFee(costs []uint64) error {
	var sum uint64
	for _, c := range costs {
		var err error
		sum, err = checkedAdd(sum, c)
		if err != nil {
			return err
		}
	}
	fee := (sum + ParallelGasDivisor - 1) / ParallelGasDivisor
	return m.Add(fee)
}

// FinalizeTransaction folds the current transaction's total gas usage
// into the block-wide total, enforcing the per-block limit, and
// returns the amount used. A failure here poisons the transaction: the
// caller must treat the transaction as invalid with gas_used = 0.
func (m *BlockMeter) FinalizeTransaction() (uint64, error) {
	sum, err := checkedAdd(m.blockGas, m.txGas)
	if err != nil {
		return 0, err
	}
	if sum > m.blockLimit {
		return 0, ErrBlockGasExceeded
	}
	used := m.txGas
	m.blockGas = sum
	return used, nil
}

// BlockGasUsed reports the block-wide total accumulated so far.
func (m *BlockMeter) BlockGasUsed() uint64 { return m.blockGas }

// VpMeter scopes gas accounting to a single validity-predicate
// invocation. All VPs dispatched in parallel for one transaction share
// the same initialGas envelope (snapshotted once before dispatch) and
// limit, but each owns an independent VpMeter so no lock is needed on
// the hot path.
type VpMeter struct {
	initialGas uint64
	vpGas      uint64
	limit      uint64
}

// NewVpMeter returns a VpMeter sharing initialGas (the block meter's
// current transaction gas at the moment VP dispatch began) against the
// given per-tx limit.
func NewVpMeter(initialGas, limit uint64) *VpMeter {
	return &VpMeter{initialGas: initialGas, limit: limit}
}

// Charge increments the predicate's own gas usage, failing if
// initialGas + vpGas would exceed the shared limit.
func (m *VpMeter) Charge(amount uint64) error {
	sum, err := checkedAdd(m.vpGas, amount)
	if err != nil {
		return ErrGasOverflow
	}
	total, err := checkedAdd(m.initialGas, sum)
	if err != nil {
		return ErrGasOverflow
	}
	if total > m.limit {
		return ErrVpGasExceeded
	}
	m.vpGas = sum
	return nil
}

// GasUsed reports the predicate's own gas usage (excluding initialGas).
func (m *VpMeter) GasUsed() uint64 { return m.vpGas }
