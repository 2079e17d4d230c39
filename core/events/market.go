package events

import (
	"math/big"
	"strconv"
	"strings"

	"deliverynet/core/types"
)

const (
	TypeOrderPlaced       = "market.order_placed"
	TypeOrderStaged       = "market.order_staged"
	TypeOrderShipping     = "market.order_shipping"
	TypeProposalOpened    = "market.proposal_opened"
	TypeFeeSuggested      = "market.fee_suggested"
	TypeProposalApproved  = "market.proposal_approved"
	TypeCouriersCleared   = "market.couriers_cleared"
	TypeInstructionReject = "market.instruction_rejected"
)

type OrderPlaced struct {
	OrderID    string
	Buyer      string
	Seller     string
	Wallet     string
	Total      *big.Int
	Change     *big.Int
	ForBidding bool
}

func (OrderPlaced) EventType() string { return TypeOrderPlaced }

func (e OrderPlaced) Event() *types.Event {
	return &types.Event{
		Type: TypeOrderPlaced,
		Attributes: map[string]string{
			"orderId":    e.OrderID,
			"buyer":      e.Buyer,
			"seller":     e.Seller,
			"wallet":     e.Wallet,
			"total":      formatAmount(e.Total),
			"change":     formatAmount(e.Change),
			"forBidding": strconv.FormatBool(e.ForBidding),
		},
	}
}

// OrderTransition covers the staged and shipping transitions.
type OrderTransition struct {
	Type    string
	OrderID string
	Buyer   string
	Caller  string
}

func (e OrderTransition) EventType() string { return e.Type }

func (e OrderTransition) Event() *types.Event {
	return &types.Event{
		Type: e.Type,
		Attributes: map[string]string{
			"orderId": e.OrderID,
			"buyer":   e.Buyer,
			"caller":  e.Caller,
		},
	}
}

type ProposalOpened struct {
	OrderID string
	Courier string
	Client  string
}

func (ProposalOpened) EventType() string { return TypeProposalOpened }

func (e ProposalOpened) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalOpened,
		Attributes: map[string]string{
			"orderId": e.OrderID,
			"courier": e.Courier,
			"client":  e.Client,
		},
	}
}

type FeeSuggested struct {
	OrderID string
	Courier string
	Fee     *big.Int
}

func (FeeSuggested) EventType() string { return TypeFeeSuggested }

func (e FeeSuggested) Event() *types.Event {
	return &types.Event{
		Type: TypeFeeSuggested,
		Attributes: map[string]string{
			"orderId": e.OrderID,
			"courier": e.Courier,
			"fee":     formatAmount(e.Fee),
		},
	}
}

type ProposalApproved struct {
	OrderID string
	Courier string
	Client  string
	Amount  *big.Int
	Change  *big.Int
}

func (ProposalApproved) EventType() string { return TypeProposalApproved }

func (e ProposalApproved) Event() *types.Event {
	return &types.Event{
		Type: TypeProposalApproved,
		Attributes: map[string]string{
			"orderId": e.OrderID,
			"courier": e.Courier,
			"client":  e.Client,
			"amount":  formatAmount(e.Amount),
			"change":  formatAmount(e.Change),
		},
	}
}

type CouriersCleared struct {
	OrderID string
	Buyer   string
	Kept    string
	Removed []string
}

func (CouriersCleared) EventType() string { return TypeCouriersCleared }

func (e CouriersCleared) Event() *types.Event {
	return &types.Event{
		Type: TypeCouriersCleared,
		Attributes: map[string]string{
			"orderId": e.OrderID,
			"buyer":   e.Buyer,
			"kept":    e.Kept,
			"removed": strings.Join(e.Removed, ","),
		},
	}
}

// InstructionRejected is emitted when a funds-received instruction is refused
// and the full amount is handed back.
type InstructionRejected struct {
	Payer  string
	Tag    string
	Amount *big.Int
	Reason string
}

func (InstructionRejected) EventType() string { return TypeInstructionReject }

func (e InstructionRejected) Event() *types.Event {
	return &types.Event{
		Type: TypeInstructionReject,
		Attributes: map[string]string{
			"payer":  e.Payer,
			"tag":    e.Tag,
			"amount": formatAmount(e.Amount),
			"reason": e.Reason,
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
