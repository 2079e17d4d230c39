package escrow

import (
	"math/big"

	"deliverynet/core/types"
)

// LockedAmount is a single hold owned by a payer under an escrow identifier.
// The receiver is the account credited when the hold is released.
type LockedAmount struct {
	Receiver string
	Amount   *big.Int
}

// Clone returns a deep copy of the hold.
func (l LockedAmount) Clone() LockedAmount {
	return LockedAmount{Receiver: l.Receiver, Amount: types.CloneAmount(l.Amount)}
}

// IsZero reports whether the hold carries no funds.
func (l LockedAmount) IsZero() bool {
	return l.Amount == nil || l.Amount.Sign() == 0
}
