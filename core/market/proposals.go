package market

import (
	"fmt"
	"math/big"

	"deliverynet/core/events"
	"deliverynet/core/types"
	"deliverynet/native/directory"
)

// ApprovalReceipt describes an approved proposal.
type ApprovalReceipt struct {
	OrderID string
	Courier string
	Amount  *big.Int
	Change  *big.Int
}

// PlaceProposal lets buyer invite a registered courier to bid on orderID.
// The courier joins the order's candidate list only when the bid is new.
func (e *Engine) PlaceProposal(buyer, courier, orderID string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var created bool
	err := e.apply("place_proposal", func() error {
		if _, ok, err := e.directory.Courier(courier); err != nil {
			return err
		} else if !ok {
			return fmt.Errorf("%w: %s", directory.ErrCourierNotFound, courier)
		}
		order, ok, err := e.catalog.Get(buyer, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if order.HasCourier() {
			return fmt.Errorf("%w: %s", ErrCourierAlreadyAssigned, orderID)
		}
		created, err = e.proposals.OpenBid(courier, orderID, buyer)
		if err != nil || !created {
			return err
		}
		if err := e.catalog.AddCandidate(buyer, orderID, courier); err != nil {
			return err
		}
		e.emit(events.ProposalOpened{OrderID: orderID, Courier: courier, Client: buyer})
		return nil
	})
	return created, err
}

// SuggestShippingFee records the courier's fee for orderID. A missing
// proposal is a benign miss reported with a false result.
func (e *Engine) SuggestShippingFee(courier, orderID string, fee *big.Int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var found bool
	err := e.apply("suggest_shipping_fee", func() error {
		var err error
		found, err = e.proposals.SetFee(courier, orderID, fee)
		if err != nil || !found {
			return err
		}
		e.emit(events.FeeSuggested{OrderID: orderID, Courier: courier, Fee: types.CloneAmount(fee)})
		return nil
	})
	return found, err
}

// ApproveProposal accepts the courier's proposal on one of payer's orders.
// The payment must cover twice the fee; the courier is assigned to the order
// and the payout is held under CourierEscrowID(orderID). The seller hold is
// left untouched.
func (e *Engine) ApproveProposal(payer string, amountPaid *big.Int, approval Approval) (*ApprovalReceipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var receipt *ApprovalReceipt
	err := e.apply("approve_proposal", func() error {
		var err error
		receipt, err = e.approveProposal(payer, amountPaid, approval)
		return err
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

func (e *Engine) approveProposal(payer string, amountPaid *big.Int, approval Approval) (*ApprovalReceipt, error) {
	orderID, courier := approval.OrderID, approval.CourierID
	proposal, ok, err := e.proposals.Get(courier, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrProposalNotFound, courier, orderID)
	}
	if proposal.Client != payer {
		return nil, fmt.Errorf("%w: proposal belongs to another client", ErrUnauthorized)
	}
	order, ok, err := e.catalog.Get(payer, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if order.HasCourier() {
		return nil, fmt.Errorf("%w: %s", ErrCourierAlreadyAssigned, orderID)
	}
	change, approved, err := e.proposals.Approve(payer, courier, orderID, amountPaid)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, fmt.Errorf("%w: proposal requires %s", ErrInsufficientFunds, new(big.Int).Lsh(proposal.Fee, 1))
	}
	if err := e.catalog.AssignCourier(payer, orderID, courier); err != nil {
		return nil, err
	}
	amount := new(big.Int).Lsh(proposal.Fee, 1)
	if amount.Sign() > 0 {
		if err := e.escrow.Lock(payer, CourierEscrowID(orderID), courier, amount); err != nil {
			return nil, err
		}
		e.metrics.RecordEscrow("locked", amount)
	}
	e.emit(events.ProposalApproved{OrderID: orderID, Courier: courier, Client: payer, Amount: amount, Change: change})
	return &ApprovalReceipt{OrderID: orderID, Courier: courier, Amount: amount, Change: change}, nil
}

// ClearOrderCouriers evicts up to limit candidates from the tail of the
// order's candidate list, deleting their proposals. The assigned courier is
// kept. Removed courier ids are returned in removal order.
func (e *Engine) ClearOrderCouriers(buyer, orderID string, limit int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var removed []string
	err := e.apply("clear_order_couriers", func() error {
		order, ok, err := e.catalog.Get(buyer, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
		}
		if !order.HasCourier() {
			return fmt.Errorf("%w: %s", ErrNoCourierAssigned, orderID)
		}
		removed, err = e.catalog.RemoveCandidatesExcept(buyer, orderID, order.Courier, limit, func(courier string) error {
			_, err := e.proposals.Delete(courier, orderID)
			return err
		})
		if err != nil {
			return err
		}
		e.emit(events.CouriersCleared{OrderID: orderID, Buyer: buyer, Kept: order.Courier, Removed: removed})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}
