package vp

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/runner"
	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/verifier"
	"github.com/ledgerd/shellcore/writelog"
)

// Mode selects the VP engine's dispatch policy.
type Mode uint8

const (
	// Apply runs VPs for a to-be-committed transaction: the engine may
	// short-circuit sibling goroutines on the first rejection.
	Apply Mode = iota
	// DryRun runs every VP to completion with no short-circuit, for
	// Query{path="dry_run_tx"}; it must never mutate the WriteLog.
	DryRun
)

// Engine dispatches validity predicates in parallel and aggregates
// their outcomes per spec.md §4.5.
type Engine struct {
	// MaxWorkers bounds the concurrent goroutine fan-out; zero means
	// unbounded (one goroutine per verifier).
	MaxWorkers int
}

// NewEngine returns an Engine with the given worker-pool bound.
func NewEngine(maxWorkers int) *Engine {
	return &Engine{MaxWorkers: maxWorkers}
}

// Dispatch loads and charges the compile fee for every verifier's VP
// bytecode sequentially against blockMeter (since that meter is not
// shared across goroutines), snapshots the gas envelope, then runs the
// predicates concurrently and folds their outcomes and gas cost back
// into blockMeter via the parallel-fee policy.
func (e *Engine) Dispatch(
	ctx context.Context,
	mode Mode,
	jobs []verifier.Job,
	txData []byte,
	wl *writelog.WriteLog,
	store storage.Storage,
	blockMeter *gas.BlockMeter,
	perTxLimit uint64,
	vpRunner runner.VpRunner,
) (Result, error) {
	type loaded struct {
		job  verifier.Job
		code []byte
		ok   bool
	}

	all := make([]loaded, len(jobs))
	for i, j := range jobs {
		code, ok, err := store.ValidityPredicate(j.Address)
		if err != nil {
			return Result{}, fmt.Errorf("vp: loading validity predicate for %s: %w", j.Address, err)
		}
		if ok {
			if err := blockMeter.AddCompilingFee(code); err != nil {
				return Result{}, err
			}
		}
		all[i] = loaded{job: j, code: code, ok: ok}
	}

	initialGas := blockMeter.GetCurrentTransactionGas()
	verifierAddrs := addressesOf(jobs)

	results := make([]Result, len(all))
	for i := range results {
		r := NewResult()
		r.GasUsed = []uint64{0}
		results[i] = r
	}

	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var g errgroup.Group
	if e.MaxWorkers > 0 {
		g.SetLimit(e.MaxWorkers)
	}

	for i, entry := range all {
		i, entry := i, entry
		g.Go(func() error {
			if dispatchCtx.Err() != nil {
				return nil
			}

			if !entry.ok {
				mu.Lock()
				results[i] = hostErrorResult(entry.job.Address, entry.job.Keys)
				mu.Unlock()
				if mode == Apply {
					cancel()
				}
				return nil
			}

			vm := gas.NewVpMeter(initialGas, perTxLimit)
			env := &vpEnv{wl: wl, meter: vm}

			res := e.runOne(env, entry.job, verifierAddrs, entry.code, txData, vpRunner)

			mu.Lock()
			results[i] = res
			mu.Unlock()

			if mode == Apply && res.Rejected.Cardinality() > 0 {
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()

	merged := NewResult()
	for _, r := range results {
		merged = Merge(merged, r)
	}

	if err := chargeParallelFee(blockMeter, merged); err != nil {
		return Result{}, err
	}

	return merged, nil
}

// runOne runs a single predicate, converting a panic (host trap) or a
// returned error into a rejected+had_host_error outcome, and a gas
// envelope breach the same way.
func (e *Engine) runOne(
	env *vpEnv,
	job verifier.Job,
	verifiers []address.Address,
	vpCode, txData []byte,
	vpRunner runner.VpRunner,
) (result Result) {
	result = NewResult()
	defer func() {
		if r := recover(); r != nil {
			result = hostErrorResult(job.Address, job.Keys)
			result.GasUsed = []uint64{env.meter.GasUsed()}
		}
	}()

	accept, err := vpRunner.Run(env, job.Address, job.Keys, verifiers, vpCode, txData)
	result.GasUsed = []uint64{env.meter.GasUsed()}
	result.ChangedKeys = keyStrings(job.Keys)

	switch {
	case err != nil:
		result.Rejected.Add(job.Address)
		result.HadHostError = true
	case accept:
		result.Accepted.Add(job.Address)
	default:
		result.Rejected.Add(job.Address)
	}
	return result
}

func hostErrorResult(addr address.Address, keys []address.Key) Result {
	r := NewResult()
	r.Rejected.Add(addr)
	r.HadHostError = true
	r.GasUsed = []uint64{0}
	r.ChangedKeys = keyStrings(keys)
	return r
}

func keyStrings(keys []address.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func addressesOf(jobs []verifier.Job) []address.Address {
	out := make([]address.Address, len(jobs))
	for i, j := range jobs {
		out[i] = j.Address
	}
	return out
}

// chargeParallelFee implements spec.md §4.5/§4.3: sort gas_used
// descending, charge the maximum in full, and the rest at the
// parallel-fee discount.
func chargeParallelFee(m *gas.BlockMeter, r Result) error {
	sorted := r.SortedGasDescending()
	if len(sorted) == 0 {
		return nil
	}
	if err := m.Add(sorted[0]); err != nil {
		return err
	}
	return m.AddParallelFee(sorted[1:])
}

// vpEnv adapts a WriteLog + VpMeter to runner.VpHostEnv: a read-only
// view that exposes no mutating method at the type level.
type vpEnv struct {
	wl    *writelog.WriteLog
	meter *gas.VpMeter
}

func (v *vpEnv) Read(key address.Key) ([]byte, bool, error) { return v.wl.Read(key) }
func (v *vpEnv) HasKey(key address.Key) (bool, error)       { return v.wl.HasKey(key) }
func (v *vpEnv) ChargeGas(amount uint64) error              { return v.meter.Charge(amount) }
