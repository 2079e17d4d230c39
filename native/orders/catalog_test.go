package orders

import (
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"deliverynet/core/state"
	"deliverynet/storage"
)

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	return NewCatalog(state.NewManager(db))
}

func sampleOrder() *Order {
	return &Order{
		Amount:    big.NewInt(1250),
		Seller:    "seller.near",
		Status:    StatusPending,
		Insurance: 5,
		Timestamp: 1_700_000_000_000,
		Location:  Coordinate{Lat: -1286389, Lon: 36817223},
	}
}

func sampleItems() []OrderItem {
	return []OrderItem{
		{Name: "Mug", Serial: "M-1", Price: big.NewInt(1000), Quantity: 2, Reference: "ref-a"},
		{Name: "Lid", Serial: "L-1", Price: big.NewInt(250), Quantity: 1, Reference: "ref-b"},
	}
}

func TestPlaceAndGet(t *testing.T) {
	c := newTestCatalog(t)
	inserted, err := c.Place("alice.near", "o1", sampleOrder(), sampleItems())
	require.NoError(t, err)
	require.True(t, inserted)

	got, ok, err := c.Get("alice.near", "o1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1250", got.Amount.String())
	require.Equal(t, StatusPending, got.Status)
	require.Equal(t, Coordinate{Lat: -1286389, Lon: 36817223}, got.Location)
	require.False(t, got.HasCourier())

	items, err := c.Items("alice.near", "o1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "Mug", items[0].Name)
	require.Equal(t, uint16(2), items[0].Quantity)
	require.Equal(t, "250", items[1].Price.String())

	_, ok, err = c.Get("bob.near", "o1")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = c.Items("bob.near", "o1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPlaceConflict(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Place("alice.near", "o1", sampleOrder(), sampleItems())
	require.NoError(t, err)

	other := sampleOrder()
	other.Amount = big.NewInt(1)
	inserted, err := c.Place("alice.near", "o1", other, nil)
	require.NoError(t, err)
	require.False(t, inserted)

	got, _, err := c.Get("alice.near", "o1")
	require.NoError(t, err)
	require.Equal(t, "1250", got.Amount.String())
	items, err := c.Items("alice.near", "o1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestUpdateStatusAndAssignCourierTouchOneField(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Place("alice.near", "o1", sampleOrder(), sampleItems())
	require.NoError(t, err)

	require.NoError(t, c.UpdateStatus("alice.near", "o1", StatusStagged))
	require.NoError(t, c.AssignCourier("alice.near", "o1", "courier.near"))

	got, _, err := c.Get("alice.near", "o1")
	require.NoError(t, err)
	require.Equal(t, StatusStagged, got.Status)
	require.Equal(t, "courier.near", got.Courier)
	require.Equal(t, "seller.near", got.Seller)
	require.Equal(t, "1250", got.Amount.String())

	require.ErrorIs(t, c.UpdateStatus("alice.near", "missing", StatusShipping), ErrNotFound)
	require.Error(t, c.UpdateStatus("alice.near", "o1", OrderStatus(42)))
}

func TestListBuyerPages(t *testing.T) {
	c := newTestCatalog(t)
	for _, id := range []string{"o1", "o2", "o3"} {
		_, err := c.Place("alice.near", id, sampleOrder(), sampleItems())
		require.NoError(t, err)
	}
	page, err := c.ListBuyer("alice.near", 1, 5)
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "o2", page[0].ID)
	require.Equal(t, "o3", page[1].ID)
	require.Len(t, page[0].Items, 2)
}

func TestRoutingIndices(t *testing.T) {
	c := newTestCatalog(t)
	require.NoError(t, c.RecordPending("seller.near", "o1", "alice.near"))
	require.NoError(t, c.RecordPending("seller.near", "o2", "bob.near"))

	buyer, ok, err := c.LookupPending("seller.near", "o2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "bob.near", buyer)

	_, ok, err = c.LookupPending("other.near", "o2")
	require.NoError(t, err)
	require.False(t, ok)

	entries, err := c.ListPending("seller.near", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []IndexEntry{{OrderID: "o1", Buyer: "alice.near"}, {OrderID: "o2", Buyer: "bob.near"}}, entries)

	require.NoError(t, c.RecordStaged("seller.near", "o1", "alice.near"))
	staged, err := c.ListStaged("seller.near", 0, 10)
	require.NoError(t, err)
	require.Len(t, staged, 1)
	// Indices are append-only: staging does not drop the pending row.
	entries, err = c.ListPending("seller.near", 0, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.NoError(t, c.RecordShipping("seller.near", "o1", "alice.near"))
	shipping, err := c.ListShipping("seller.near", 0, 10)
	require.NoError(t, err)
	require.Equal(t, "o1", shipping[0].OrderID)
}

func TestRemoveCandidatesExceptIsLIFO(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Place("alice.near", "o1", sampleOrder(), nil)
	require.NoError(t, err)
	for _, courier := range []string{"c1", "c2", "c3"} {
		require.NoError(t, c.AddCandidate("alice.near", "o1", courier))
	}

	var dropped []string
	removed, err := c.RemoveCandidatesExcept("alice.near", "o1", "c3", 3, func(courier string) error {
		dropped = append(dropped, courier)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"c2", "c1"}, removed)
	require.Equal(t, removed, dropped)

	remaining, err := c.Candidates("alice.near", "o1", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c3"}, remaining)
}

func TestRemoveCandidatesExceptRespectsBudget(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Place("alice.near", "o1", sampleOrder(), nil)
	require.NoError(t, err)
	for _, courier := range []string{"c1", "c2", "c3", "c4"} {
		require.NoError(t, c.AddCandidate("alice.near", "o1", courier))
	}

	removed, err := c.RemoveCandidatesExcept("alice.near", "o1", "c1", 2, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"c4", "c3"}, removed)

	remaining, err := c.Candidates("alice.near", "o1", 0, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, remaining)

	removed, err = c.RemoveCandidatesExcept("alice.near", "o1", "c1", 0, nil)
	require.NoError(t, err)
	require.Empty(t, removed)
}

func TestRemoveCandidatesExceptStopsOnDropError(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.Place("alice.near", "o1", sampleOrder(), nil)
	require.NoError(t, err)
	require.NoError(t, c.AddCandidate("alice.near", "o1", "c1"))

	boom := errors.New("boom")
	_, err = c.RemoveCandidatesExcept("alice.near", "o1", "", 1, func(string) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestAddCandidateRequiresOrder(t *testing.T) {
	c := newTestCatalog(t)
	require.ErrorIs(t, c.AddCandidate("alice.near", "missing", "c1"), ErrNotFound)
}

func TestStatusText(t *testing.T) {
	text, err := StatusStagged.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "STAGGED", string(text))

	var s OrderStatus
	require.NoError(t, s.UnmarshalText([]byte("shipping")))
	require.Equal(t, StatusShipping, s)
	require.Error(t, s.UnmarshalText([]byte("LOST")))
	_, err = OrderStatus(9).MarshalText()
	require.Error(t, err)
}
