package orders

import (
	"errors"
	"fmt"
	"strings"

	"deliverynet/core/state"
	"deliverynet/core/types"
)

// ErrNotFound is returned when an order is absent from the buyer's collection.
var ErrNotFound = errors.New("orders: order not found")

// Catalog stores orders per buyer together with their items, candidate
// couriers and the seller/courier routing indices.
type Catalog struct {
	state *state.Manager
}

// NewCatalog binds the catalog to the state manager.
func NewCatalog(st *state.Manager) *Catalog {
	return &Catalog{state: st}
}

func (c *Catalog) orders(buyer string) *state.Collection {
	return c.state.Collection(state.SpaceOrders, buyer)
}

func (c *Catalog) items(buyer string) *state.Collection {
	return c.state.Collection(state.SpaceOrderItems, buyer)
}

func (c *Catalog) candidates(buyer, orderID string) *state.List {
	return c.state.List(state.SpaceOrderCandidates, buyer+"\x00"+orderID)
}

// Place stores order and its items under (buyer, orderID) when no order with
// that id exists. A false result signals the conflict and leaves state
// untouched.
func (c *Catalog) Place(buyer, orderID string, order *Order, items []OrderItem) (bool, error) {
	if strings.TrimSpace(orderID) == "" {
		return false, fmt.Errorf("orders: order id must not be empty")
	}
	if order == nil {
		return false, fmt.Errorf("orders: order must not be nil")
	}
	col := c.orders(buyer)
	exists, err := col.Has(orderID)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := col.Insert(orderID, newStoredOrder(order)); err != nil {
		return false, err
	}
	stored := &storedItems{Items: make([]storedItem, 0, len(items))}
	for _, item := range items {
		stored.Items = append(stored.Items, storedItem{
			Name:      item.Name,
			Serial:    item.Serial,
			Price:     types.CloneAmount(item.Price),
			Quantity:  item.Quantity,
			Reference: item.Reference,
		})
	}
	if _, err := c.items(buyer).Insert(orderID, stored); err != nil {
		return false, err
	}
	return true, nil
}

// Get returns the order stored under (buyer, orderID).
func (c *Catalog) Get(buyer, orderID string) (*Order, bool, error) {
	var stored storedOrder
	ok, err := c.orders(buyer).Get(orderID, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.order(), true, nil
}

// Items returns the order lines in cart order.
func (c *Catalog) Items(buyer, orderID string) ([]OrderItem, error) {
	var stored storedItems
	ok, err := c.items(buyer).Get(orderID, &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]OrderItem, 0, len(stored.Items))
	for _, item := range stored.Items {
		out = append(out, OrderItem{
			Name:      item.Name,
			Serial:    item.Serial,
			Price:     types.CloneAmount(item.Price),
			Quantity:  item.Quantity,
			Reference: item.Reference,
		})
	}
	return out, nil
}

// Record returns the order with its id and items.
func (c *Catalog) Record(buyer, orderID string) (*Record, bool, error) {
	order, ok, err := c.Get(buyer, orderID)
	if err != nil || !ok {
		return nil, ok, err
	}
	items, err := c.Items(buyer, orderID)
	if err != nil {
		return nil, false, err
	}
	return &Record{ID: orderID, Order: order, Items: items}, true, nil
}

func (c *Catalog) mutate(buyer, orderID string, fn func(*storedOrder)) error {
	col := c.orders(buyer)
	var stored storedOrder
	ok, err := col.Get(orderID, &stored)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	fn(&stored)
	_, err = col.Insert(orderID, &stored)
	return err
}

// UpdateStatus rewrites the order status only.
func (c *Catalog) UpdateStatus(buyer, orderID string, status OrderStatus) error {
	if !status.Valid() {
		return fmt.Errorf("orders: invalid status %d", uint8(status))
	}
	return c.mutate(buyer, orderID, func(s *storedOrder) { s.Status = uint8(status) })
}

// AssignCourier rewrites the order courier only.
func (c *Catalog) AssignCourier(buyer, orderID, courier string) error {
	if strings.TrimSpace(courier) == "" {
		return fmt.Errorf("orders: courier must not be empty")
	}
	return c.mutate(buyer, orderID, func(s *storedOrder) { s.Courier = courier })
}

// ListBuyer returns up to limit orders of buyer in placement order starting
// at page.
func (c *Catalog) ListBuyer(buyer string, page, limit int) ([]Record, error) {
	ids, err := c.orders(buyer).Keys(page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		rec, ok, err := c.Record(buyer, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, *rec)
		}
	}
	return out, nil
}

// AddCandidate appends courier to the order's candidate list.
func (c *Catalog) AddCandidate(buyer, orderID, courier string) error {
	ok, err := c.orders(buyer).Has(orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return c.candidates(buyer, orderID).Push(courier)
}

// Candidates returns up to limit candidate couriers starting at page.
func (c *Catalog) Candidates(buyer, orderID string, page, limit int) ([]string, error) {
	list := c.candidates(buyer, orderID)
	n, err := list.Len()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	if page < 0 {
		page = 0
	}
	for i := uint64(page); i < n && len(out) < limit; i++ {
		var courier string
		ok, err := list.Get(i, &courier)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, courier)
		}
	}
	return out, nil
}

// CandidateCount returns the length of the candidate list.
func (c *Catalog) CandidateCount(buyer, orderID string) (uint64, error) {
	return c.candidates(buyer, orderID).Len()
}

// RemoveCandidatesExcept pops up to maxCount couriers from the tail of the
// candidate list. The kept courier is not removed: it is put back once the
// eviction finishes. dropProposal is invoked for every other popped courier.
// Removed ids are returned in removal order.
func (c *Catalog) RemoveCandidatesExcept(buyer, orderID, keep string, maxCount int, dropProposal func(courier string) error) ([]string, error) {
	list := c.candidates(buyer, orderID)
	n, err := list.Len()
	if err != nil {
		return nil, err
	}
	budget := uint64(0)
	if maxCount > 0 {
		budget = uint64(maxCount)
	}
	if budget > n {
		budget = n
	}
	removed := make([]string, 0, budget)
	keptPopped := 0
	for ; budget > 0; budget-- {
		var courier string
		ok, err := list.Pop(&courier)
		if err != nil {
			return removed, err
		}
		if !ok {
			break
		}
		if courier == keep {
			keptPopped++
			continue
		}
		if dropProposal != nil {
			if err := dropProposal(courier); err != nil {
				return removed, err
			}
		}
		removed = append(removed, courier)
	}
	for ; keptPopped > 0; keptPopped-- {
		if err := list.Push(keep); err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (c *Catalog) index(space, owner string) *state.Collection {
	return c.state.Collection(space, owner)
}

func (c *Catalog) record(space, owner, orderID, buyer string) error {
	_, err := c.index(space, owner).Insert(orderID, &storedIndexEntry{Buyer: buyer})
	return err
}

func (c *Catalog) lookup(space, owner, orderID string) (string, bool, error) {
	var entry storedIndexEntry
	ok, err := c.index(space, owner).Get(orderID, &entry)
	if err != nil || !ok {
		return "", false, err
	}
	return entry.Buyer, true, nil
}

func (c *Catalog) list(space, owner string, page, limit int) ([]IndexEntry, error) {
	col := c.index(space, owner)
	ids, err := col.Keys(page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]IndexEntry, 0, len(ids))
	for _, id := range ids {
		var entry storedIndexEntry
		ok, err := col.Get(id, &entry)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, IndexEntry{OrderID: id, Buyer: entry.Buyer})
		}
	}
	return out, nil
}

// RecordPending adds orderID to the seller's pending index.
func (c *Catalog) RecordPending(seller, orderID, buyer string) error {
	return c.record(state.SpacePending, seller, orderID, buyer)
}

// RecordStaged adds orderID to the owner's staged index.
func (c *Catalog) RecordStaged(owner, orderID, buyer string) error {
	return c.record(state.SpaceStaged, owner, orderID, buyer)
}

// RecordShipping adds orderID to the owner's shipping index.
func (c *Catalog) RecordShipping(owner, orderID, buyer string) error {
	return c.record(state.SpaceShipping, owner, orderID, buyer)
}

// LookupPending resolves the buyer of orderID through the owner's pending
// index.
func (c *Catalog) LookupPending(owner, orderID string) (string, bool, error) {
	return c.lookup(state.SpacePending, owner, orderID)
}

// LookupStaged resolves the buyer of orderID through the owner's staged index.
func (c *Catalog) LookupStaged(owner, orderID string) (string, bool, error) {
	return c.lookup(state.SpaceStaged, owner, orderID)
}

func (c *Catalog) ListPending(owner string, page, limit int) ([]IndexEntry, error) {
	return c.list(state.SpacePending, owner, page, limit)
}

func (c *Catalog) ListStaged(owner string, page, limit int) ([]IndexEntry, error) {
	return c.list(state.SpaceStaged, owner, page, limit)
}

func (c *Catalog) ListShipping(owner string, page, limit int) ([]IndexEntry, error) {
	return c.list(state.SpaceShipping, owner, page, limit)
}
