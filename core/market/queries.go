package market

import (
	"deliverynet/native/orders"
)

// Account returns the ledger totals of id. Untouched accounts read as zero.
func (e *Engine) Account(id string) (*AccountView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	acc, err := e.ledger.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	return &AccountView{ID: acc.ID, Balance: acc.Balance.String(), TotalLocked: acc.TotalLocked.String()}, nil
}

// LockedBalance returns the hold under (account, escrowID), or a zero
// placeholder addressed to receiver.
func (e *Engine) LockedBalance(account, escrowID, receiver string) (*LockView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, err := e.escrow.Peek(account, escrowID, receiver)
	if err != nil {
		return nil, err
	}
	return &LockView{Receiver: lock.Receiver, Amount: lock.Amount.String()}, nil
}

// BuyerOrders returns a page of buyer's orders in placement order.
func (e *Engine) BuyerOrders(buyer string, page, limit int) (*OrderBundle, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	records, err := e.catalog.ListBuyer(buyer, page, limit)
	if err != nil {
		return nil, err
	}
	bundle := &OrderBundle{NextPage: page + limit, Orders: make([]OrderView, 0, len(records))}
	for i := range records {
		bundle.Orders = append(bundle.Orders, newOrderView(&records[i]))
	}
	return bundle, nil
}

// PendingOrders returns a page of orders routed to seller.
func (e *Engine) PendingOrders(seller string, page, limit int) (*OrderBundle, error) {
	return e.indexedOrders(e.catalog.ListPending, seller, page, limit)
}

// StagedOrders returns a page of orders the owner staged.
func (e *Engine) StagedOrders(owner string, page, limit int) (*OrderBundle, error) {
	return e.indexedOrders(e.catalog.ListStaged, owner, page, limit)
}

// ShippingOrders returns a page of orders in transit for owner.
func (e *Engine) ShippingOrders(owner string, page, limit int) (*OrderBundle, error) {
	return e.indexedOrders(e.catalog.ListShipping, owner, page, limit)
}

func (e *Engine) indexedOrders(list func(string, int, int) ([]orders.IndexEntry, error), owner string, page, limit int) (*OrderBundle, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	entries, err := list(owner, page, limit)
	if err != nil {
		return nil, err
	}
	bundle := &OrderBundle{NextPage: page + limit, Orders: make([]OrderView, 0, len(entries))}
	for _, entry := range entries {
		rec, ok, err := e.catalog.Record(entry.Buyer, entry.OrderID)
		if err != nil {
			return nil, err
		}
		if ok {
			bundle.Orders = append(bundle.Orders, newOrderView(rec))
		}
	}
	return bundle, nil
}

// ShippingSuggestions lists the candidate couriers of buyer's order together
// with their profile and proposed fee. Candidates whose proposal or profile
// is gone are skipped.
func (e *Engine) ShippingSuggestions(buyer, orderID string, page, limit int) ([]CourierClientView, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	couriers, err := e.catalog.Candidates(buyer, orderID, page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]CourierClientView, 0, len(couriers))
	for _, id := range couriers {
		proposal, ok, err := e.proposals.Get(id, orderID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		courier, ok, err := e.directory.Courier(id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out = append(out, CourierClientView{
			ID:          id,
			Name:        courier.Name,
			Image:       courier.Image,
			Phone:       courier.Phone,
			OnTransit:   courier.OnTransit,
			Feedback:    courier.Feedback,
			ProposedFee: proposal.Fee.String(),
		})
	}
	return out, nil
}

// CourierProposals returns the orders courier holds proposals for.
func (e *Engine) CourierProposals(courier string, page, limit int) (*OrderBundle, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	entries, err := e.proposals.ListByCourier(courier, page, limit)
	if err != nil {
		return nil, err
	}
	bundle := &OrderBundle{NextPage: page + limit, Orders: make([]OrderView, 0, len(entries))}
	for _, entry := range entries {
		rec, ok, err := e.catalog.Record(entry.Proposal.Client, entry.OrderID)
		if err != nil {
			return nil, err
		}
		if ok {
			bundle.Orders = append(bundle.Orders, newOrderView(rec))
		}
	}
	return bundle, nil
}
