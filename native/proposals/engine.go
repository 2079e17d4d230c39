package proposals

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/state"
	"deliverynet/core/types"
)

var (
	ErrNotFound        = errors.New("proposals: proposal not found")
	ErrAlreadyApproved = errors.New("proposals: proposal already approved")
	ErrInvalidFee      = errors.New("proposals: fee must be non-negative and fit in 128 bits")
	ErrClientMismatch  = errors.New("proposals: proposal belongs to another client")
)

// Status is monotonic: PENDING, then optionally PROPOSED, then APPROVED.
type Status uint8

const (
	StatusPending Status = iota
	StatusProposed
	StatusApproved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusProposed:
		return "PROPOSED"
	case StatusApproved:
		return "APPROVED"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Proposal is a courier bid on a buyer's order. CourierID is set on approval
// and Amount then holds twice the fee.
type Proposal struct {
	Client    string
	CourierID string
	Amount    *big.Int
	Fee       *big.Int
	Status    Status
}

// Clone returns a deep copy of the proposal.
func (p *Proposal) Clone() *Proposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Amount = types.CloneAmount(p.Amount)
	clone.Fee = types.CloneAmount(p.Fee)
	return &clone
}

// Entry pairs a proposal with the order it bids on.
type Entry struct {
	OrderID  string
	Proposal *Proposal
}

type storedProposal struct {
	Client    string
	CourierID string
	Amount    *big.Int
	Fee       *big.Int
	Status    uint8
}

func (s *storedProposal) proposal() *Proposal {
	return &Proposal{
		Client:    s.Client,
		CourierID: s.CourierID,
		Amount:    types.CloneAmount(s.Amount),
		Fee:       types.CloneAmount(s.Fee),
		Status:    Status(s.Status),
	}
}

func newStoredProposal(p *Proposal) *storedProposal {
	return &storedProposal{
		Client:    p.Client,
		CourierID: p.CourierID,
		Amount:    types.CloneAmount(p.Amount),
		Fee:       types.CloneAmount(p.Fee),
		Status:    uint8(p.Status),
	}
}

// Engine keeps proposals per courier keyed by order id.
type Engine struct {
	state *state.Manager
}

// NewEngine binds the proposal engine to the state manager.
func NewEngine(st *state.Manager) *Engine {
	return &Engine{state: st}
}

func (e *Engine) proposals(courier string) *state.Collection {
	return e.state.Collection(state.SpaceProposals, courier)
}

// OpenBid creates a PENDING proposal with zero fee. An existing proposal is
// left untouched and reported with a false result.
func (e *Engine) OpenBid(courier, orderID, client string) (bool, error) {
	if strings.TrimSpace(courier) == "" || strings.TrimSpace(orderID) == "" {
		return false, fmt.Errorf("proposals: courier and order id required")
	}
	col := e.proposals(courier)
	exists, err := col.Has(orderID)
	if err != nil || exists {
		return false, err
	}
	_, err = col.Insert(orderID, newStoredProposal(&Proposal{
		Client: client,
		Amount: big.NewInt(0),
		Fee:    big.NewInt(0),
		Status: StatusPending,
	}))
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetFee records the courier's fee. A missing proposal is reported with a
// false result and no error.
func (e *Engine) SetFee(courier, orderID string, fee *big.Int) (bool, error) {
	if fee == nil || fee.Sign() < 0 || fee.Cmp(types.MaxAmount) > 0 {
		return false, ErrInvalidFee
	}
	col := e.proposals(courier)
	var stored storedProposal
	ok, err := col.Get(orderID, &stored)
	if err != nil || !ok {
		return false, err
	}
	if Status(stored.Status) == StatusApproved {
		return false, ErrAlreadyApproved
	}
	stored.Fee = new(big.Int).Set(fee)
	if _, err := col.Insert(orderID, &stored); err != nil {
		return false, err
	}
	return true, nil
}

// Approve accepts the proposal when amountPaid covers twice the fee and
// returns the change. A short payment yields ok == false and leaves the
// proposal untouched. Escrow and ledger are not involved.
func (e *Engine) Approve(client, courier, orderID string, amountPaid *big.Int) (*big.Int, bool, error) {
	col := e.proposals(courier)
	var stored storedProposal
	ok, err := col.Get(orderID, &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, ErrNotFound
	}
	if Status(stored.Status) == StatusApproved {
		return nil, false, ErrAlreadyApproved
	}
	if stored.Client != client {
		return nil, false, ErrClientMismatch
	}
	expected := new(big.Int).Lsh(types.CloneAmount(stored.Fee), 1)
	paid := types.CloneAmount(amountPaid)
	if paid.Cmp(expected) < 0 {
		return nil, false, nil
	}
	stored.Amount = expected
	stored.CourierID = courier
	stored.Status = uint8(StatusApproved)
	if _, err := col.Insert(orderID, &stored); err != nil {
		return nil, false, err
	}
	return new(big.Int).Sub(paid, expected), true, nil
}

// Get returns the proposal of courier on orderID.
func (e *Engine) Get(courier, orderID string) (*Proposal, bool, error) {
	var stored storedProposal
	ok, err := e.proposals(courier).Get(orderID, &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.proposal(), true, nil
}

// Delete removes the proposal. The boolean reports whether it existed.
func (e *Engine) Delete(courier, orderID string) (bool, error) {
	return e.proposals(courier).Remove(orderID)
}

// ListByCourier returns up to limit proposals of courier in creation order.
func (e *Engine) ListByCourier(courier string, page, limit int) ([]Entry, error) {
	col := e.proposals(courier)
	ids, err := col.Keys(page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(ids))
	for _, id := range ids {
		var stored storedProposal
		ok, err := col.Get(id, &stored)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, Entry{OrderID: id, Proposal: stored.proposal()})
		}
	}
	return out, nil
}
