package escrow

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deliverynet/core/events"
	"deliverynet/core/state"
	"deliverynet/native/ledger"
	"deliverynet/storage"
)

type fixture struct {
	escrow *Manager
	ledger *ledger.Ledger
	events *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	st := state.NewManager(db)
	l := ledger.New(st)
	mgr := NewManager(st, l)
	rec := &events.Recorder{}
	mgr.SetEmitter(rec)
	return &fixture{escrow: mgr, ledger: l, events: rec}
}

func (f *fixture) account(t *testing.T, id string) *ledger.Account {
	t.Helper()
	acc, err := f.ledger.GetOrCreate(id)
	require.NoError(t, err)
	return acc
}

func TestLockReleaseRoundTrip(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(1250)))

	lock, err := f.escrow.Peek("alice.near", "order-1", "ignored.near")
	require.NoError(t, err)
	require.Equal(t, "seller.near", lock.Receiver)
	require.Equal(t, "1250", lock.Amount.String())
	require.Equal(t, "1250", f.account(t, "alice.near").TotalLocked.String())

	receiver, err := f.escrow.Release("alice.near", "order-1")
	require.NoError(t, err)
	require.Equal(t, "seller.near", receiver)

	payer := f.account(t, "alice.near")
	require.Zero(t, payer.TotalLocked.Sign())
	require.Equal(t, "1250", payer.Balance.String())
	require.Zero(t, f.account(t, "seller.near").Balance.Sign())

	lock, err = f.escrow.Peek("alice.near", "order-1", "seller.near")
	require.NoError(t, err)
	require.True(t, lock.IsZero())

	require.Equal(t, []string{EventTypeEscrowLocked, EventTypeEscrowReleased}, f.events.Types())
	released := events.Canonical(f.events.Events()[1])
	require.Equal(t, "seller.near", released.Attributes["receiver"])
	require.Equal(t, "1250", released.Attributes["amount"])
}

func TestLockRejectsNonPositiveAmount(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, f.escrow.Lock("alice.near", "order-1", "seller.near", nil), ErrInvalidAmount)
	require.ErrorIs(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(-3)), ErrInvalidAmount)

	require.Zero(t, f.account(t, "alice.near").TotalLocked.Sign())
	ids, err := f.escrow.Locks("alice.near", 0, 10)
	require.NoError(t, err)
	require.Empty(t, ids)
	require.Empty(t, f.events.Types())
}

func TestPeekMissingReturnsPlaceholder(t *testing.T) {
	f := newFixture(t)
	lock, err := f.escrow.Peek("nobody.near", "order-9", "courier.near")
	require.NoError(t, err)
	require.Equal(t, "courier.near", lock.Receiver)
	require.True(t, lock.IsZero())
}

func TestReleaseErrors(t *testing.T) {
	f := newFixture(t)
	_, err := f.escrow.Release("alice.near", "order-1")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(10)))
	_, err = f.escrow.Release("alice.near", "order-2")
	require.ErrorIs(t, err, ErrInvalidOrder)

	_, err = f.escrow.Release("alice.near", "order-1")
	require.NoError(t, err)
	// The collection outlives its last hold.
	_, err = f.escrow.Release("alice.near", "order-1")
	require.ErrorIs(t, err, ErrInvalidOrder)
}

func TestDistinctEscrowIDsCoexist(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(1250)))
	require.NoError(t, f.escrow.Lock("alice.near", "order-1/courier", "courier.near", big.NewInt(40)))
	require.Equal(t, "1290", f.account(t, "alice.near").TotalLocked.String())

	ids, err := f.escrow.Locks("alice.near", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"order-1", "order-1/courier"}, ids)

	receiver, err := f.escrow.Release("alice.near", "order-1/courier")
	require.NoError(t, err)
	require.Equal(t, "courier.near", receiver)
	require.Equal(t, "1250", f.account(t, "alice.near").TotalLocked.String())
}

// Re-locking the same pair replaces the hold without refunding it, so the
// locked total keeps counting the replaced amount. This pins that behaviour.
func TestRelockOverwritesWithoutCredit(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock("alice.near", "order-1", "seller.near", big.NewInt(100)))
	require.NoError(t, f.escrow.Lock("alice.near", "order-1", "other.near", big.NewInt(30)))

	lock, err := f.escrow.Peek("alice.near", "order-1", "")
	require.NoError(t, err)
	require.Equal(t, "other.near", lock.Receiver)
	require.Equal(t, "30", lock.Amount.String())
	require.Equal(t, "130", f.account(t, "alice.near").TotalLocked.String())

	_, err = f.escrow.Release("alice.near", "order-1")
	require.NoError(t, err)
	payer := f.account(t, "alice.near")
	require.Equal(t, "100", payer.TotalLocked.String())
	require.Equal(t, "30", payer.Balance.String())
	require.Zero(t, f.account(t, "other.near").Balance.Sign())
	require.Zero(t, f.account(t, "seller.near").Balance.Sign())
}

func TestReleaseRefundsPayer(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.escrow.Lock("payer.near", "E1", "seller.near", big.NewInt(100)))

	receiver, err := f.escrow.Release("payer.near", "E1")
	require.NoError(t, err)
	require.Equal(t, "seller.near", receiver)

	payer := f.account(t, "payer.near")
	require.Equal(t, "100", payer.Balance.String())
	require.Zero(t, payer.TotalLocked.Sign())
	require.Zero(t, f.account(t, "seller.near").Balance.Sign())

	lock, err := f.escrow.Peek("payer.near", "E1", "seller.near")
	require.NoError(t, err)
	require.True(t, lock.IsZero())
	require.Equal(t, "seller.near", lock.Receiver)
}
