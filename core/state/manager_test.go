package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deliverynet/storage"
)

type testRecord struct {
	Name   string
	Amount *big.Int
}

func newTestManager(t *testing.T) (*Manager, *storage.MemDB) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewManager(db), db
}

func TestKVRoundTrip(t *testing.T) {
	mgr, _ := newTestManager(t)

	ok, err := mgr.KVGet([]byte("missing"), &testRecord{})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.KVPut([]byte("rec"), &testRecord{Name: "a", Amount: big.NewInt(42)}))
	var got testRecord
	ok, err = mgr.KVGet([]byte("rec"), &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", got.Name)
	require.Equal(t, 0, got.Amount.Cmp(big.NewInt(42)))

	require.NoError(t, mgr.KVDelete([]byte("rec")))
	ok, err = mgr.KVGet([]byte("rec"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	require.Error(t, mgr.KVPut(nil, uint64(1)))
}

func TestJournalCommitAndDiscard(t *testing.T) {
	mgr, db := newTestManager(t)
	require.NoError(t, mgr.KVPut([]byte("base"), uint64(1)))
	before := db.Len()

	require.NoError(t, mgr.Begin())
	require.ErrorIs(t, mgr.Begin(), ErrJournalActive)
	require.NoError(t, mgr.KVPut([]byte("pending"), uint64(7)))
	require.NoError(t, mgr.KVDelete([]byte("base")))

	var n uint64
	ok, err := mgr.KVGet([]byte("pending"), &n)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(7), n)
	ok, err = mgr.KVGet([]byte("base"), nil)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, before, db.Len(), "journal writes must not reach the database")

	mgr.Discard()
	ok, err = mgr.KVGet([]byte("base"), &n)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = mgr.KVGet([]byte("pending"), nil)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, mgr.Begin())
	require.NoError(t, mgr.KVPut([]byte("pending"), uint64(9)))
	require.NoError(t, mgr.Commit())
	require.False(t, mgr.InJournal())
	ok, err = mgr.KVGet([]byte("pending"), &n)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(9), n)

	require.ErrorIs(t, mgr.Commit(), ErrNoJournal)
}

func TestCollectionInsertionOrder(t *testing.T) {
	mgr, _ := newTestManager(t)
	col := mgr.Collection(SpaceOrders, "alice.near")

	exists, err := col.Exists()
	require.NoError(t, err)
	require.False(t, exists)

	for _, key := range []string{"c", "a", "b"} {
		replaced, err := col.Insert(key, &testRecord{Name: key, Amount: big.NewInt(1)})
		require.NoError(t, err)
		require.False(t, replaced)
	}
	replaced, err := col.Insert("a", &testRecord{Name: "a2", Amount: big.NewInt(2)})
	require.NoError(t, err)
	require.True(t, replaced)

	keys, err := col.Keys(0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b"}, keys)

	keys, err = col.Keys(1, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)

	keys, err = col.Keys(5, 1)
	require.NoError(t, err)
	require.Empty(t, keys)

	removed, err := col.Remove("a")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = col.Remove("a")
	require.NoError(t, err)
	require.False(t, removed)

	keys, err = col.Keys(0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, keys)

	other := mgr.Collection(SpaceOrders, "bob.near")
	n, err := other.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestCollectionCreateKeepsEmptyCollection(t *testing.T) {
	mgr, _ := newTestManager(t)
	col := mgr.Collection(SpaceLocks, "alice.near")
	require.NoError(t, col.Create())
	exists, err := col.Exists()
	require.NoError(t, err)
	require.True(t, exists)
	n, err := col.Len()
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestListPushPop(t *testing.T) {
	mgr, _ := newTestManager(t)
	list := mgr.List(SpaceOrderCandidates, "order-1")

	for _, v := range []string{"c1", "c2", "c3"} {
		require.NoError(t, list.Push(v))
	}
	n, err := list.Len()
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	var head string
	ok, err := list.Get(0, &head)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c1", head)

	var tail string
	ok, err = list.Pop(&tail)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "c3", tail)

	ok, err = list.Get(2, &tail)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEnsureSchemaStampsOnce(t *testing.T) {
	mgr, db := newTestManager(t)

	fresh, err := mgr.EnsureSchema(18, false)
	require.NoError(t, err)
	require.True(t, fresh)
	require.Equal(t, 1, db.Len())

	fresh, err = mgr.EnsureSchema(18, false)
	require.NoError(t, err)
	require.False(t, fresh)

	_, err = mgr.EnsureSchema(6, true)
	require.ErrorIs(t, err, ErrPrecisionMismatch)
}

func TestEnsureSchemaRejectsOtherVersion(t *testing.T) {
	mgr, _ := newTestManager(t)
	require.NoError(t, mgr.Begin())
	require.NoError(t, mgr.KVPut(schemaKey, &schemaStamp{Version: SchemaVersion + 1, Precision: 2}))
	require.NoError(t, mgr.Commit())

	_, err := mgr.EnsureSchema(2, false)
	require.ErrorIs(t, err, ErrSchemaMismatch)

	_, err = mgr.EnsureSchema(2, true)
	require.NoError(t, err)
}
