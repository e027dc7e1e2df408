// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package shell implements the lifecycle state machine and per-message
// handlers the consensus front-end drives this core through: GetInfo,
// InitChain, MempoolValidate, BeginBlock, ApplyTx, EndBlock,
// CommitBlock and Query, per spec.md §4.1/§6.
package shell

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/multierr"

	"github.com/ledgerd/shellcore/eventsub"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/logging"
	"github.com/ledgerd/shellcore/metrics"
	"github.com/ledgerd/shellcore/runner"
	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/txexec"
	"github.com/ledgerd/shellcore/vp"
	"github.com/ledgerd/shellcore/writelog"
)

// State is a node in the Uninitialized -> Ready -> InBlock -> Ready
// lifecycle. Faulted is reached only via an escalated shell-fatal
// error (Open Question #2) and never leaves that state.
type State uint8

const (
	StateUninitialized State = iota
	StateReady
	StateInBlock
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateInBlock:
		return "in_block"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// MempoolKind distinguishes a fresh mempool admission check from a
// recheck of an already-admitted transaction; both only decode.
type MempoolKind uint8

const (
	MempoolNew MempoolKind = iota
	MempoolRecheck
)

// Shell owns storage and the write-log for its entire process
// lifetime (spec.md §9 "process-wide state") and drives them through
// exactly one block/transaction at a time.
type Shell struct {
	store      storage.Storage
	wl         *writelog.WriteLog
	meter      *gas.BlockMeter
	vpEngine   *vp.Engine
	txRunner   runner.TxRunner
	vpRunner   runner.VpRunner
	perTxLimit uint64

	hub *eventsub.Hub
	met *metrics.Collectors

	// mempoolCache remembers the decode outcome of recently seen tx
	// bytes by content hash, so a Recheck of a transaction already
	// validated as New does not have to decode it again.
	mempoolCache *lru.Cache

	state  State
	height storage.BlockHeight
}

// Option configures optional Shell collaborators.
type Option func(*Shell)

// WithEventHub wires a hub that receives every CommitBlock's flushed
// events.
func WithEventHub(hub *eventsub.Hub) Option { return func(s *Shell) { s.hub = hub } }

// WithMetrics wires a Collectors instance that ApplyTx updates with
// transaction outcomes and CommitBlock with block gas. RequestDuration,
// RequestsTotal and VpHostErrors are not updated by the shell.
func WithMetrics(m *metrics.Collectors) Option { return func(s *Shell) { s.met = m } }

// New constructs a Shell and performs the single Uninitialized->Ready
// init: loading whatever height the substrate last recorded.
func New(store storage.Storage, txRunner runner.TxRunner, vpRunner runner.VpRunner, perTxLimit, perBlockLimit uint64, vpWorkers int, opts ...Option) (*Shell, error) {
	mempoolCache, err := lru.New(4096)
	if err != nil {
		return nil, fmt.Errorf("shell: allocating mempool cache: %w", err)
	}
	s := &Shell{
		store:        store,
		wl:           writelog.New(store),
		meter:        gas.NewBlockMeter(perTxLimit, perBlockLimit),
		vpEngine:     vp.NewEngine(vpWorkers),
		txRunner:     txRunner,
		vpRunner:     vpRunner,
		perTxLimit:   perTxLimit,
		mempoolCache: mempoolCache,
		state:        StateUninitialized,
	}
	for _, o := range opts {
		o(s)
	}
	if _, height, found, err := store.LoadLastState(); err != nil {
		return nil, fmt.Errorf("shell: loading last state: %w", err)
	} else if found {
		s.height = height
	}
	s.state = StateReady
	return s, nil
}

// State reports the shell's current lifecycle state.
func (s *Shell) State() State { return s.state }

func (s *Shell) requireState(want State) error {
	if s.state != want {
		return fmt.Errorf("shell: expected state %s, got %s", want, s.state)
	}
	return nil
}

// GetInfo returns the last committed block's root and height, valid
// from any state.
func (s *Shell) GetInfo() (storage.MerkleRoot, storage.BlockHeight, bool, error) {
	return s.store.LoadLastState()
}

// InitChain records the chain identifier in storage.
func (s *Shell) InitChain(chainID string) error {
	if err := s.requireState(StateReady); err != nil {
		return err
	}
	return s.store.SetChainID(chainID)
}

// MempoolValidate only decodes tx, never mutating any state; valid
// from any shell state. A Recheck of bytes already seen as New (or a
// prior Recheck) is served from the content-hash cache instead of
// decoding again.
func (s *Shell) MempoolValidate(txBytes []byte, kind MempoolKind) error {
	digest := sha256.Sum256(txBytes)
	if cached, ok := s.mempoolCache.Get(digest); ok {
		if cached == nil {
			return nil
		}
		return cached.(error)
	}

	_, decodeErr := txexec.DecodeTx(txBytes)
	var result error
	if decodeErr != nil {
		result = fmt.Errorf("shell: mempool validate: %w", decodeErr)
	}
	s.mempoolCache.Add(digest, result)
	return result
}

// BeginBlock resets the block gas meter and moves the shell into
// InBlock(height).
func (s *Shell) BeginBlock(hash storage.BlockHash, height storage.BlockHeight) error {
	if err := s.requireState(StateReady); err != nil {
		return err
	}
	s.meter.Reset()
	if err := s.store.BeginBlock(hash, height); err != nil {
		return fmt.Errorf("shell: begin block: %w", err)
	}
	s.height = height
	s.state = StateInBlock
	return nil
}

// ApplyTx runs txexec.RunTx against the shell's real write-log in
// Apply mode, commits or drops tx-scope based on the outcome, and
// always replies with a gas_used figure unless the driver itself
// failed fatally (decode/runner/engine error), matching spec.md §6's
// "ApplyTx always replies" contract.
func (s *Shell) ApplyTx(ctx context.Context, txBytes []byte) (uint64, error) {
	if err := s.requireState(StateInBlock); err != nil {
		return 0, err
	}

	res, err := txexec.RunTx(ctx, vp.Apply, txBytes, s.meter, s.wl, s.store, s.txRunner, s.vpEngine, s.perTxLimit, s.vpRunner)
	if err != nil {
		s.wl.DropTx()
		if s.met != nil {
			s.met.TxInvalid.Inc()
		}
		logging.Warn("apply_tx failed", "err", err)
		return 0, fmt.Errorf("shell: apply tx: %w", err)
	}

	if res.Valid {
		s.wl.CommitTx()
		if s.met != nil {
			s.met.TxApplied.Inc()
			s.met.TxGasUsed.Observe(float64(res.GasUsed))
		}
	} else {
		s.wl.DropTx()
		if s.met != nil {
			// gas_used = 0 marks a gas-poisoned transaction; any other
			// invalid result means a VP rejected it.
			if res.GasUsed == 0 {
				s.met.TxInvalid.Inc()
			} else {
				s.met.TxRejected.Inc()
			}
		}
	}
	return res.GasUsed, nil
}

// EndBlock is a no-op hook retained for ABCI-shell parity.
func (s *Shell) EndBlock(height storage.BlockHeight) error {
	return s.requireState(StateInBlock)
}

// CommitBlock flushes the write-log to storage, computes the new
// Merkle root, publishes the block's events, and returns to Ready.
// Per Open Question #2, a storage-commit failure is logged and then
// escalated shell-fatal: CommitBlock returns the error and the shell
// is left in StateFaulted, where every request that requires the Ready
// or InBlock state fails; GetInfo, MempoolValidate and Query, which run
// from any state, are still served.
func (s *Shell) CommitBlock() (storage.MerkleRoot, error) {
	if err := s.requireState(StateInBlock); err != nil {
		return nil, err
	}

	// Attempt both the write-log flush and the storage commit even if
	// the first fails, so a faulting node's operator sees every error
	// the block produced rather than just the first.
	events, flushErr := s.wl.CommitBlock()
	root, commitErr := s.store.Commit()
	if err := multierr.Combine(flushErr, commitErr); err != nil {
		logging.Error("commit_block failed", "err", err, "height", s.height)
		s.state = StateFaulted
		return nil, fmt.Errorf("shell: commit block: %w", err)
	}

	if s.hub != nil && len(events) > 0 {
		s.hub.Publish(eventsub.Batch{Height: uint64(s.height), Events: events})
	}
	if s.met != nil {
		s.met.BlockGasUsed.Set(float64(s.meter.BlockGasUsed()))
	}

	s.state = StateReady
	return root, nil
}

// Query dispatches a read-only request. The only path spec.md §6 gives
// semantics to is path="dry_run_tx": run the transaction in data
// against a throwaway clone of the write-log and render its TxResult,
// with no observable effect on the shell's persistent state.
func (s *Shell) Query(ctx context.Context, path string, data []byte) (txexec.TxResult, error) {
	if path != "dry_run_tx" {
		return txexec.TxResult{}, fmt.Errorf("shell: unsupported query path %q", path)
	}
	// Dry run uses its own, throwaway BlockMeter too: the block meter's
	// tx-scoped counters must not be disturbed by a query run alongside
	// real ApplyTx traffic.
	dryMeter := gas.NewBlockMeter(s.perTxLimit, s.meter.BlockGasUsed()+s.perTxLimit)
	return txexec.RunTx(ctx, vp.DryRun, data, dryMeter, s.wl.Clone(), s.store, s.txRunner, s.vpEngine, s.perTxLimit, s.vpRunner)
}
