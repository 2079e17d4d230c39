package market

import (
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/events"
	"deliverynet/core/types"
	"deliverynet/native/directory"
	"deliverynet/native/orders"
)

// Receipt describes a successfully placed order.
type Receipt struct {
	OrderID string
	Total   *big.Int
	Change  *big.Int
}

// PlaceOrder prices cart at precision, stores the order for payer, routes it
// to the seller's pending index and locks the total for the seller's company
// wallet. The surplus over the total is returned as change.
func (e *Engine) PlaceOrder(payer string, amountPaid *big.Int, cart Cart, precision uint8) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var receipt *Receipt
	err := e.apply("place_order", func() error {
		var err error
		receipt, err = e.placeOrder(payer, amountPaid, cart, precision)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) placeOrder(payer string, amountPaid *big.Int, cart Cart, precision uint8) (*Receipt, error) {
	if strings.TrimSpace(payer) == "" {
		return nil, fmt.Errorf("%w: payer required", ErrUnauthorized)
	}
	if err := validateCart(cart); err != nil {
		return nil, err
	}
	items, total, err := PriceCart(cart, precision)
	if err != nil {
		return nil, err
	}
	paid := types.CloneAmount(amountPaid)
	if paid.Cmp(total) < 0 {
		return nil, fmt.Errorf("%w: paid %s, total %s", ErrInsufficientFunds, paid, total)
	}
	company, ok, err := e.directory.Company(cart.Seller)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", directory.ErrCompanyNotFound, cart.Seller)
	}

	timestamp := uint64(e.nowFn().UnixMilli())
	orderID := e.nextOrderID(payer, timestamp)
	order := &orders.Order{
		Amount:    total,
		Seller:    cart.Seller,
		Status:    orders.StatusPending,
		Insurance: cart.PercentageInsurance,
		Timestamp: timestamp,
		Location:  cart.Location,
	}
	if !cart.ListForBidding {
		order.Courier = payer
	}
	inserted, err := e.catalog.Place(payer, orderID, order, items)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %s", ErrOrderExists, orderID)
	}
	if err := e.catalog.RecordPending(cart.Seller, orderID, payer); err != nil {
		return nil, err
	}
	if err := e.escrow.Lock(payer, orderID, company.Wallet, total); err != nil {
		return nil, err
	}
	e.metrics.RecordEscrow("locked", total)
	change := new(big.Int).Sub(paid, total)
	e.emit(events.OrderPlaced{
		OrderID:    orderID,
		Buyer:      payer,
		Seller:     cart.Seller,
		Wallet:     company.Wallet,
		Total:      total,
		Change:     change,
		ForBidding: cart.ListForBidding,
	})
	return &Receipt{OrderID: orderID, Total: total, Change: change}, nil
}

// Stage moves orderID from PENDING to STAGGED when it is listed in the
// caller's pending index. The order id is returned on success; an order that
// is not routed to the caller or not pending yields ("", false).
func (e *Engine) Stage(caller, orderID string) (string, bool, error) {
	return e.advance("stage_order", caller, orderID, orders.StatusPending, orders.StatusStagged)
}

// Ship moves orderID from STAGGED to SHIPPING when it is listed in the
// caller's staged index.
func (e *Engine) Ship(caller, orderID string) (string, bool, error) {
	return e.advance("ship_order", caller, orderID, orders.StatusStagged, orders.StatusShipping)
}

func (e *Engine) advance(operation, caller, orderID string, from, to orders.OrderStatus) (string, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var moved bool
	err := e.apply(operation, func() error {
		var (
			buyer string
			ok    bool
			err   error
		)
		switch from {
		case orders.StatusPending:
			buyer, ok, err = e.catalog.LookupPending(caller, orderID)
		default:
			buyer, ok, err = e.catalog.LookupStaged(caller, orderID)
		}
		if err != nil || !ok {
			return err
		}
		order, ok, err := e.catalog.Get(buyer, orderID)
		if err != nil || !ok {
			return err
		}
		if order.Status != from {
			return nil
		}
		if err := e.catalog.UpdateStatus(buyer, orderID, to); err != nil {
			return err
		}
		evtType := events.TypeOrderStaged
		switch to {
		case orders.StatusStagged:
			err = e.catalog.RecordStaged(caller, orderID, buyer)
		case orders.StatusShipping:
			evtType = events.TypeOrderShipping
			err = e.catalog.RecordShipping(caller, orderID, buyer)
			if err == nil && order.HasCourier() && order.Courier != caller {
				err = e.catalog.RecordShipping(order.Courier, orderID, buyer)
			}
		}
		if err != nil {
			return err
		}
		e.emit(events.OrderTransition{Type: evtType, OrderID: orderID, Buyer: buyer, Caller: caller})
		moved = true
		return nil
	})
	if err != nil || !moved {
		return "", false, err
	}
	return orderID, true, nil
}
