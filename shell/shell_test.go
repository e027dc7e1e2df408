package shell

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/gas"
	"github.com/ledgerd/shellcore/runner"
	"github.com/ledgerd/shellcore/storage"
	"github.com/ledgerd/shellcore/txexec"
)

type transferRequest struct {
	From, To address.Address
	Amount   uint64
}

func balanceKey(a address.Address) address.Key {
	return address.NewKey().Push("balance").PushAddress(a)
}

func readBalance(env runner.TxHostEnv, a address.Address) uint64 {
	v, ok, err := env.Read(balanceKey(a))
	if err != nil || !ok {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

var transferRunner = runner.FuncTxRunner(func(env runner.TxHostEnv, code, data []byte) error {
	if len(code) == 0 {
		return errors.New("shell test: empty code")
	}
	var req transferRequest
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&req); err != nil {
		return err
	}
	from := readBalance(env, req.From)
	if from < req.Amount {
		return errors.New("shell test: insufficient balance")
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], from-req.Amount)
	env.Write(balanceKey(req.From), buf[:])
	binary.BigEndian.PutUint64(buf[:], readBalance(env, req.To)+req.Amount)
	env.Write(balanceKey(req.To), buf[:])
	return nil
})

var acceptAll = runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
	return true, nil
})

func rejectingVPFor(rejected address.Address) runner.VpRunner {
	return runner.FuncVpRunner(func(env runner.VpHostEnv, addr address.Address, keys []address.Key, verifiers []address.Address, vpCode, txData []byte) (bool, error) {
		return addr != rejected, nil
	})
}

func transferTxBytes(t *testing.T, from, to address.Address, amount uint64) []byte {
	t.Helper()
	var dataBuf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&dataBuf).Encode(transferRequest{From: from, To: to, Amount: amount}))
	txBytes, err := txexec.EncodeTx(txexec.Tx{Code: []byte("transfer-vp"), Data: dataBuf.Bytes()})
	require.NoError(t, err)
	return txBytes
}

func newFixtureShell(t *testing.T, vpRunner runner.VpRunner) (*Shell, address.Address, address.Address) {
	t.Helper()
	alan := address.NewImplicit("alan")
	ada := address.NewImplicit("ada")
	store := storage.NewMem(0)
	require.NoError(t, store.Write(address.ValidityPredicateKey(alan), []byte("vp-alan")))
	require.NoError(t, store.Write(address.ValidityPredicateKey(ada), []byte("vp-ada")))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], 100)
	require.NoError(t, store.Write(balanceKey(alan), buf[:]))
	binary.BigEndian.PutUint64(buf[:], 0)
	require.NoError(t, store.Write(balanceKey(ada), buf[:]))

	s, err := New(store, transferRunner, vpRunner, gas.DefaultPerTxLimit, gas.DefaultPerBlockLimit, 0)
	require.NoError(t, err)
	return s, alan, ada
}

func TestInitAndReadBack(t *testing.T) {
	s, _, _ := newFixtureShell(t, acceptAll)

	_, _, found, err := s.GetInfo()
	require.NoError(t, err)
	assert.False(t, found, "no block has ever been committed yet")

	require.NoError(t, s.BeginBlock(storage.BlockHash{}, 1))

	emptyTx, err := txexec.EncodeTx(txexec.Tx{})
	require.NoError(t, err)
	_, err = s.ApplyTx(context.Background(), emptyTx)
	assert.Error(t, err, "empty code must fail the reference TxRunner")

	require.NoError(t, s.EndBlock(1))
	root1, err := s.CommitBlock()
	require.NoError(t, err)
	assert.NotEmpty(t, root1)

	gotRoot, gotHeight, found, err := s.GetInfo()
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, storage.BlockHeight(1), gotHeight)
	assert.Equal(t, root1, gotRoot)
}

func TestApplyTxTransferSuccessCommitsAndUpdatesBalances(t *testing.T) {
	s, alan, ada := newFixtureShell(t, acceptAll)
	require.NoError(t, s.BeginBlock(storage.BlockHash{}, 1))

	gasUsed, err := s.ApplyTx(context.Background(), transferTxBytes(t, alan, ada, 40))
	require.NoError(t, err)
	assert.Greater(t, gasUsed, uint64(0))

	require.NoError(t, s.EndBlock(1))
	_, err = s.CommitBlock()
	require.NoError(t, err)

	v, ok, err := s.store.Read(balanceKey(alan))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(60), binary.BigEndian.Uint64(v))
}

func TestApplyTxRejectedByVPLeavesBalancesUnchanged(t *testing.T) {
	s, alan, ada := newFixtureShell(t, rejectingVPFor(address.NewImplicit("alan")))
	require.NoError(t, s.BeginBlock(storage.BlockHash{}, 1))

	gasUsed, err := s.ApplyTx(context.Background(), transferTxBytes(t, alan, ada, 40))
	require.NoError(t, err, "VP rejection is tx-invalid, not a driver error")
	assert.Greater(t, gasUsed, uint64(0), "charged work is still reported")

	require.NoError(t, s.EndBlock(1))
	_, err = s.CommitBlock()
	require.NoError(t, err)

	v, ok, err := s.store.Read(balanceKey(alan))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(100), binary.BigEndian.Uint64(v))
}

func TestApplyTxGasOverflowRepliesOkZero(t *testing.T) {
	s, _, _ := newFixtureShell(t, acceptAll)
	require.NoError(t, s.BeginBlock(storage.BlockHash{}, 1))

	exhausting := runner.FuncTxRunner(func(env runner.TxHostEnv, code, data []byte) error {
		return env.ChargeGas(^uint64(0) - 1)
	})
	s.txRunner = exhausting

	txBytes, err := txexec.EncodeTx(txexec.Tx{Code: []byte("noop")})
	require.NoError(t, err)

	gasUsed, err := s.ApplyTx(context.Background(), txBytes)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), gasUsed)
}

func TestQueryDryRunTxIsPure(t *testing.T) {
	s, alan, ada := newFixtureShell(t, acceptAll)

	before := s.store.(*storage.Mem).Snapshot()

	res, err := s.Query(context.Background(), "dry_run_tx", transferTxBytes(t, alan, ada, 40))
	require.NoError(t, err)
	assert.True(t, res.Valid)

	after := s.store.(*storage.Mem).Snapshot()
	assert.True(t, storage.Equal(before, after))

	_, _, found, err := s.GetInfo()
	require.NoError(t, err)
	assert.False(t, found, "dry run must not create a committed block")
}

func TestCommitBlockFailureEscalatesToFaulted(t *testing.T) {
	s, _, _ := newFixtureShell(t, acceptAll)
	require.NoError(t, s.BeginBlock(storage.BlockHash{}, 1))

	s.store = failingCommitStorage{s.store}
	_, err := s.CommitBlock()
	assert.Error(t, err)
	assert.Equal(t, StateFaulted, s.State())
}

// failingCommitStorage wraps a Storage, forcing Commit to fail so
// CommitBlock's shell-fatal escalation path can be exercised.
type failingCommitStorage struct{ storage.Storage }

func (failingCommitStorage) Commit() (storage.MerkleRoot, error) {
	return nil, errors.New("shell test: injected commit failure")
}
