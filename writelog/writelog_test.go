package writelog

import (
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerd/shellcore/address"
	"github.com/ledgerd/shellcore/event"
	"github.com/ledgerd/shellcore/storage"
)

func balanceKey(a address.Address) address.Key {
	return address.NewKey().PushAddress(a).Push("balance").Push("eth")
}

func TestCommitTxPromotesToBlockScope(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")

	wl.Write(balanceKey(alan), []byte{100})
	wl.CommitTx()

	v, ok, err := wl.Read(balanceKey(alan))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{100}, v)
}

func TestDropTxLeavesStateUnchanged(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")

	wl.Write(balanceKey(alan), []byte{100})
	wl.CommitTx()
	before := store // unchanged regardless, since CommitTx only stages to block scope

	wl.Write(balanceKey(alan), []byte{1})
	wl.DropTx()

	v, ok, err := wl.Read(balanceKey(alan))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{100}, v, "drop_tx must leave block/storage view unchanged")
	_ = before
}

func TestTempEntryNotPromoted(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")
	k := address.NewKey().PushAddress(alan).Push("scratch")

	wl.WriteTemp(k, []byte{1})
	v, ok, err := wl.Read(k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{1}, v)

	wl.CommitTx()
	_, ok, err = wl.Read(k)
	require.NoError(t, err)
	assert.False(t, ok, "temp entries must not survive commit_tx")
}

func TestCommitBlockAppliesToStorage(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")
	k := balanceKey(alan)

	wl.Write(k, []byte{90})
	wl.CommitTx()

	events, err := wl.CommitBlock()
	require.NoError(t, err)
	assert.Empty(t, events)

	v, ok, err := store.Read(k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte{90}, v)
}

func TestEventsSurviveOnlyIfTxCommitted(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)

	b := event.MustNewBuilder(event.DomainTx)
	typ, err := b.Type("applied")
	require.NoError(t, err)

	wl.EmitEvent(event.New(event.Tx, typ))
	wl.DropTx()

	events, err := wl.CommitBlock()
	require.NoError(t, err)
	assert.Empty(t, events, "events from a dropped tx must not be externally visible")

	wl.EmitEvent(event.New(event.Tx, typ))
	wl.CommitTx()
	events, err = wl.CommitBlock()
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestVerifiersAndChangedKeys(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")
	ada := address.NewImplicit("ada")

	wl.Write(balanceKey(alan), []byte{90})
	wl.Write(balanceKey(ada), []byte{10})

	base := mapset.NewThreadUnsafeSet[address.Address]()
	verifiers, keys := wl.VerifiersAndChangedKeys(base)

	assert.True(t, verifiers.Contains(alan))
	assert.True(t, verifiers.Contains(ada))
	assert.Len(t, keys, 2)
}

func TestCloneIsIndependent(t *testing.T) {
	store := storage.NewMem(0)
	wl := New(store)
	alan := address.NewImplicit("alan")

	wl.Write(balanceKey(alan), []byte{90})
	clone := wl.Clone()
	clone.Write(balanceKey(alan), []byte{1})

	v, _, _ := wl.Read(balanceKey(alan))
	assert.Equal(t, []byte{90}, v, "mutating the clone must not affect the original")
}
