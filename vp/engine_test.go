package vp

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/goleak"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/runner"
	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/verifier"
	"github.com/ledgerd/shellcore/writelog"
)

// TestMain verifies the parallel dispatch goroutine pool leaves no
// stragglers behind once Dispatch returns.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func setupVP(t *testing.T, addr address.Address, code []byte) *storage.Mem {
	t.Helper()
	store := storage.NewMem(0)
	require.NoError(t, store.Write(address.ValidityPredicateKey(addr), code))
	return store
}

func TestMergeIsCommutativeAndAssociative(t *testing.T) {
	alan := address.NewImplicit("alan")
	ada := address.NewImplicit("ada")

	a := NewResult()
	a.Accepted.Add(alan)
	a.GasUsed = []uint64{5}
	a.ChangedKeys = []string{"k1"}

	b := NewResult()
	b.Rejected.Add(ada)
	b.GasUsed = []uint64{7}
	b.ChangedKeys = []string{"k2"}

	ab := Merge(a, b)
	ba := Merge(b, a)

	assert.True(t, ab.Accepted.Equal(ba.Accepted))
	assert.True(t, ab.Rejected.Equal(ba.Rejected))
	assert.ElementsMatch(t, ab.GasUsed, ba.GasUsed)
	assert.ElementsMatch(t, ab.ChangedKeys, ba.ChangedKeys)
}

func TestDispatchApplyModeAllAccept(t *testing.T) {
	alan := address.NewImplicit("alan")
	ada := address.NewImplicit("ada")
	store := storage.NewMem(0)
	require.NoError(t, store.Write(address.ValidityPredicateKey(alan), []byte("vp-alan")))
	require.NoError(t, store.Write(address.ValidityPredicateKey(ada), []byte("vp-ada")))

	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	jobs := []verifier.Job{{Address: alan}, {Address: ada}}
	alwaysAccept := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		require.NoError(t, env.ChargeGas(3))
		return true, nil
	})

	eng := NewEngine(0)
	res, err := eng.Dispatch(context.Background(), Apply, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, alwaysAccept)
	require.NoError(t, err)

	assert.True(t, res.Accepted.Contains(alan))
	assert.True(t, res.Accepted.Contains(ada))
	assert.Zero(t, res.Rejected.Cardinality())
	assert.Len(t, res.GasUsed, 2)
}

func TestDispatchRejectionPoisonsApplyMode(t *testing.T) {
	alan := address.NewImplicit("alan")
	store := setupVP(t, alan, []byte("vp-alan"))
	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	jobs := []verifier.Job{{Address: alan}}
	rejecter := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		return false, nil
	})

	eng := NewEngine(0)
	res, err := eng.Dispatch(context.Background(), Apply, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, rejecter)
	require.NoError(t, err)
	assert.True(t, res.Rejected.Contains(alan))
}

func TestDispatchMissingVPIsHostError(t *testing.T) {
	alan := address.NewImplicit("alan")
	store := storage.NewMem(0) // no VP written
	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	jobs := []verifier.Job{{Address: alan}}
	neverCalled := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		t.Fatal("vp runner must not be invoked when the VP bytecode is absent")
		return false, nil
	})

	eng := NewEngine(0)
	res, err := eng.Dispatch(context.Background(), Apply, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, neverCalled)
	require.NoError(t, err)
	assert.True(t, res.Rejected.Contains(alan))
	assert.True(t, res.HadHostError)
}

func TestDispatchHostErrorFromRunner(t *testing.T) {
	alan := address.NewImplicit("alan")
	store := setupVP(t, alan, []byte("vp-alan"))
	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	jobs := []verifier.Job{{Address: alan}}
	erroring := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		return false, errors.New("trap")
	})

	eng := NewEngine(0)
	res, err := eng.Dispatch(context.Background(), Apply, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, erroring)
	require.NoError(t, err)
	assert.True(t, res.Rejected.Contains(alan))
	assert.True(t, res.HadHostError)
}

func TestDispatchDryRunRunsEveryPredicateToCompletion(t *testing.T) {
	alan := address.NewImplicit("alan")
	ada := address.NewImplicit("ada")
	store := storage.NewMem(0)
	require.NoError(t, store.Write(address.ValidityPredicateKey(alan), []byte("vp-alan")))
	require.NoError(t, store.Write(address.ValidityPredicateKey(ada), []byte("vp-ada")))

	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	jobs := []verifier.Job{{Address: alan}, {Address: ada}}
	rejectAlan := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		return addr != alan, nil
	})

	eng := NewEngine(0)
	res, err := eng.Dispatch(context.Background(), DryRun, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, rejectAlan)
	require.NoError(t, err)

	assert.True(t, res.Rejected.Contains(alan))
	assert.True(t, res.Accepted.Contains(ada), "dry run must not short-circuit: ada's VP must still run")
	assert.Len(t, res.GasUsed, 2)
}

func TestDispatchDryRunDoesNotMutateWriteLog(t *testing.T) {
	alan := address.NewImplicit("alan")
	store := setupVP(t, alan, []byte("vp-alan"))
	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)

	before := store.Snapshot()

	jobs := []verifier.Job{{Address: alan}}
	mutator := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		// VpHostEnv exposes no mutating method; this is enforced at
		// the type level, not re-checked at runtime here.
		return true, nil
	})

	eng := NewEngine(0)
	_, err := eng.Dispatch(context.Background(), DryRun, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, mutator)
	require.NoError(t, err)

	after := store.Snapshot()
	assert.True(t, storage.Equal(before, after))
	assert.Empty(t, wl.GetChangedKeys(), "dry-run dispatch must leave the write-log with no staged keys")
}

func TestDispatchParallelFeePricing(t *testing.T) {
	// spec.md §8 #6: three VPs with per-VP costs [100, 40, 30].
	addrs := []address.Address{
		address.NewImplicit("a"),
		address.NewImplicit("b"),
		address.NewImplicit("c"),
	}
	store := storage.NewMem(0)
	jobs := make([]verifier.Job, len(addrs))
	costs := map[address.Address]uint64{addrs[0]: 100, addrs[1]: 40, addrs[2]: 30}
	for i, a := range addrs {
		require.NoError(t, store.Write(address.ValidityPredicateKey(a), []byte("vp")))
		jobs[i] = verifier.Job{Address: a}
	}

	wl := writelog.New(store)
	meter := gas.NewBlockMeter(gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit)
	before := meter.GetCurrentTransactionGas()

	costedRunner := runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		require.NoError(t, env.ChargeGas(costs[addr]))
		return true, nil
	})

	eng := NewEngine(0)
	_, err := eng.Dispatch(context.Background(), Apply, jobs, nil, wl, store, meter, gas.DefaultPerTxLimit, costedRunner)
	require.NoError(t, err)

	compileFee := uint64(len("vp")) * gas.CompileFeePerByte // deduped: identical "vp" blob for all three
	wantParallel := (uint64(40+30) + gas.ParallelGasDivisor - 1) / gas.ParallelGasDivisor
	want := before + compileFee + 100 + wantParallel
	assert.Equal(t, want, meter.GetCurrentTransactionGas())
}
