package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/state"
	"deliverynet/core/types"
)

// Account tracks the withdrawable balance of a participant and the sum of the
// escrow holds it currently owns as payer.
type Account struct {
	ID          string
	Balance     *big.Int
	TotalLocked *big.Int
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	return &Account{
		ID:          a.ID,
		Balance:     types.CloneAmount(a.Balance),
		TotalLocked: types.CloneAmount(a.TotalLocked),
	}
}

type storedAccount struct {
	ID          string
	Balance     *big.Int
	TotalLocked *big.Int
}

// Ledger is pure bookkeeping over per-account totals. It applies no business
// rules beyond refusing to drive a total negative.
type Ledger struct {
	state *state.Manager
}

// New binds a ledger to the state manager.
func New(st *state.Manager) *Ledger {
	return &Ledger{state: st}
}

func accountKey(id string) []byte {
	return state.SubKey(state.SpaceAccounts, id)
}

func normalizeID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("ledger: account id must not be empty")
	}
	return trimmed, nil
}

// Account returns the stored record for id. The boolean is false when the
// account has never been touched.
func (l *Ledger) Account(id string) (*Account, bool, error) {
	normalized, err := normalizeID(id)
	if err != nil {
		return nil, false, err
	}
	var stored storedAccount
	ok, err := l.state.KVGet(accountKey(normalized), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &Account{
		ID:          normalized,
		Balance:     types.CloneAmount(stored.Balance),
		TotalLocked: types.CloneAmount(stored.TotalLocked),
	}, true, nil
}

// GetOrCreate returns the existing account or a zeroed one. The zeroed record
// is persisted on the first adjustment.
func (l *Ledger) GetOrCreate(id string) (*Account, error) {
	acc, ok, err := l.Account(id)
	if err != nil {
		return nil, err
	}
	if ok {
		return acc, nil
	}
	normalized, _ := normalizeID(id)
	return &Account{ID: normalized, Balance: big.NewInt(0), TotalLocked: big.NewInt(0)}, nil
}

// AdjustLocked adds the signed delta to the locked total. Callers guarantee
// the result stays non-negative; an underflow means the ledger and the escrow
// records disagree and panics.
func (l *Ledger) AdjustLocked(id string, delta *big.Int) (*Account, error) {
	return l.adjust(id, delta, func(acc *Account) **big.Int { return &acc.TotalLocked }, "locked balance")
}

// AdjustBalance adds the signed delta to the withdrawable balance under the
// same contract as AdjustLocked.
func (l *Ledger) AdjustBalance(id string, delta *big.Int) (*Account, error) {
	return l.adjust(id, delta, func(acc *Account) **big.Int { return &acc.Balance }, "balance")
}

func (l *Ledger) adjust(id string, delta *big.Int, field func(*Account) **big.Int, label string) (*Account, error) {
	acc, err := l.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	target := field(acc)
	next := new(big.Int).Add(*target, types.CloneAmount(delta))
	if next.Sign() < 0 {
		panic(fmt.Sprintf("ledger: %s underflow for %s: %s + %s", label, acc.ID, (*target).String(), types.CloneAmount(delta).String()))
	}
	*target = next
	if err := l.put(acc); err != nil {
		return nil, err
	}
	return acc.Clone(), nil
}

func (l *Ledger) put(acc *Account) error {
	return l.state.KVPut(accountKey(acc.ID), &storedAccount{
		ID:          acc.ID,
		Balance:     types.CloneAmount(acc.Balance),
		TotalLocked: types.CloneAmount(acc.TotalLocked),
	})
}
