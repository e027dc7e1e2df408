// Copyright (C) 2019-2025, Ledgerd. All rights reserved.
// See the file LICENSE for licensing terms.

// Package txexec implements run_tx, the driver that ties the gas
// meter, write-log, storage, TxRunner and VP engine together into the
// single transaction-execution contract spec'd in spec.md §4.7.
package txexec

import (
	"context"
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/runner"
	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/verifier"
	"github.com/ledgerd/shellcore/vp"
	"github.com/ledgerd/shellcore/writelog"
)

// TxResult is the outcome of one run_tx call.
type TxResult struct {
	GasUsed uint64
	Vps     vp.Result
	Valid   bool
}

// isGasError reports whether err is one of the GasMeter sentinel
// errors, which poison only the transaction (gas_used=0, valid=false)
// rather than aborting the driver itself.
func isGasError(err error) bool {
	return errors.Is(err, gas.ErrGasOverflow) ||
		errors.Is(err, gas.ErrTransactionGasExceeded) ||
		errors.Is(err, gas.ErrBlockGasExceeded) ||
		errors.Is(err, gas.ErrVpGasExceeded)
}

// poisoned is the TxResult for any gas-limit failure: invalid, with no
// gas charged to the caller (spec.md §8 scenario 4).
func poisoned() TxResult { return TxResult{GasUsed: 0, Valid: false} }

// RunTx implements the 8-step run_tx contract. wl is whichever
// WriteLog the caller wants this transaction to run against: the
// shell's real, persistent log for ApplyTx, or a throwaway Clone for a
// dry-run Query — RunTx itself never clones or commits/drops it; the
// caller decides that from TxResult.Valid once RunTx returns.
func RunTx(
	ctx context.Context,
	mode vp.Mode,
	txBytes []byte,
	meter *gas.BlockMeter,
	wl *writelog.WriteLog,
	store storage.Storage,
	txRunner runner.TxRunner,
	vpEngine *vp.Engine,
	perTxLimit uint64,
	vpRunner runner.VpRunner,
) (TxResult, error) {
	meter.StartTx()

	// 1. Base transaction fee.
	if err := meter.AddBaseTransactionFee(len(txBytes)); err != nil {
		if isGasError(err) {
			return poisoned(), nil
		}
		return TxResult{}, err
	}

	// 2. Decode. A decoding failure is fatal and surfaced to the caller.
	tx, err := DecodeTx(txBytes)
	if err != nil {
		return TxResult{}, fmt.Errorf("txexec: %w", err)
	}

	// 3. Compiling fee for the tx code itself.
	if err := meter.AddCompilingFee(tx.Code); err != nil {
		if isGasError(err) {
			return poisoned(), nil
		}
		return TxResult{}, err
	}

	// 4. Invoke the runner against the tx-scope host view.
	base := mapset.NewThreadUnsafeSet[address.Address]()
	env := &txEnv{wl: wl, meter: meter, base: base, txHash: tx.Hash()}
	if err := txRunner.Run(env, tx.Code, tx.Data); err != nil {
		if isGasError(err) {
			return poisoned(), nil
		}
		return TxResult{}, fmt.Errorf("txexec: tx runner: %w", err)
	}

	// 5. Verifier-set discovery over this transaction's own changed keys.
	verifiers, changedKeys := wl.VerifiersAndChangedKeys(base)
	jobs := verifier.Discover(verifiers, changedKeys)

	// 6. VP engine dispatch.
	vpsResult, err := vpEngine.Dispatch(ctx, mode, jobs, tx.Data, wl, store, meter, perTxLimit, vpRunner)
	if err != nil {
		if isGasError(err) {
			return poisoned(), nil
		}
		return TxResult{}, fmt.Errorf("txexec: vp engine: %w", err)
	}

	// 7. Finalize: fold the transaction's gas into the block total.
	gasUsed, err := meter.FinalizeTransaction()
	if err != nil {
		return poisoned(), nil
	}

	// 8. Construct the result; commit-vs-drop is the caller's call.
	valid := vpsResult.Rejected.Cardinality() == 0 && gasUsed > 0
	return TxResult{GasUsed: gasUsed, Vps: vpsResult, Valid: valid}, nil
}
