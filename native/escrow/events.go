package escrow

import (
	"deliverynet/core/types"
)

const (
	EventTypeEscrowLocked   = "escrow.locked"
	EventTypeEscrowReleased = "escrow.released"
)

// NewLockedEvent returns the canonical payload emitted when funds are placed
// on hold.
func NewLockedEvent(payer, escrowID string, lock LockedAmount) *types.Event {
	return newEscrowEvent(EventTypeEscrowLocked, payer, escrowID, lock)
}

// NewReleasedEvent returns the canonical payload emitted when a hold returns
// to the payer's balance. The receiver attribute names the payout target.
func NewReleasedEvent(payer, escrowID string, lock LockedAmount) *types.Event {
	return newEscrowEvent(EventTypeEscrowReleased, payer, escrowID, lock)
}

func newEscrowEvent(eventType, payer, escrowID string, lock LockedAmount) *types.Event {
	attrs := map[string]string{
		"payer":    payer,
		"escrowId": escrowID,
		"receiver": lock.Receiver,
		"amount":   "0",
	}
	if lock.Amount != nil {
		attrs["amount"] = lock.Amount.String()
	}
	return &types.Event{Type: eventType, Attributes: attrs}
}

type escrowEvent struct {
	evt *types.Event
}

func (e escrowEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e escrowEvent) Event() *types.Event { return e.evt }
