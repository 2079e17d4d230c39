package escrow

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/events"
	"deliverynet/core/state"
	"deliverynet/core/types"
	"deliverynet/native/ledger"
)

var (
	// ErrInvalidAmount is returned when a hold would carry no funds.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrNotFound is returned when the payer has never locked funds.
	ErrNotFound = errors.New("escrow: payer has no locked funds")
	// ErrInvalidOrder is returned when the escrow id is unknown for the payer.
	ErrInvalidOrder = errors.New("escrow: unknown escrow id")

	errNilState = errors.New("escrow: state not configured")
)

type storedLock struct {
	Receiver string
	Amount   *big.Int
}

// Manager holds and releases funds per (payer, escrow id). Every hold is
// mirrored in the payer's locked total on the ledger.
type Manager struct {
	state   *state.Manager
	ledger  *ledger.Ledger
	emitter events.Emitter
}

// NewManager wires the escrow manager to the shared state and ledger.
func NewManager(st *state.Manager, l *ledger.Ledger) *Manager {
	return &Manager{state: st, ledger: l, emitter: events.NoopEmitter{}}
}

// SetEmitter configures the event emitter used by the manager. Passing nil
// resets the emitter to a no-op implementation.
func (m *Manager) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		m.emitter = events.NoopEmitter{}
		return
	}
	m.emitter = emitter
}

func (m *Manager) emit(evt *types.Event) {
	if m == nil || m.emitter == nil || evt == nil {
		return
	}
	m.emitter.Emit(escrowEvent{evt: evt})
}

func (m *Manager) locks(payer string) *state.Collection {
	return m.state.Collection(state.SpaceLocks, payer)
}

func (m *Manager) ready() error {
	if m == nil || m.state == nil || m.ledger == nil {
		return errNilState
	}
	return nil
}

// Lock places amount on hold for receiver under (payer, escrowID) and raises
// the payer's locked total. An existing hold under the same pair is replaced
// without crediting its amount back, leaving the previous funds counted in
// the locked total. Callers use distinct escrow ids per hold.
func (m *Manager) Lock(payer, escrowID, receiver string, amount *big.Int) error {
	if err := m.ready(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(escrowID) == "" {
		return fmt.Errorf("escrow: escrow id must not be empty")
	}
	lock := LockedAmount{Receiver: receiver, Amount: new(big.Int).Set(amount)}
	if _, err := m.locks(payer).Insert(escrowID, &storedLock{Receiver: lock.Receiver, Amount: lock.Amount}); err != nil {
		return fmt.Errorf("escrow: store lock: %w", err)
	}
	if _, err := m.ledger.AdjustLocked(payer, lock.Amount); err != nil {
		return fmt.Errorf("escrow: adjust locked: %w", err)
	}
	m.emit(NewLockedEvent(payer, escrowID, lock))
	return nil
}

// Peek returns the hold under (payer, escrowID). A missing hold yields a zero
// placeholder addressed to receiver; only storage failures are reported.
func (m *Manager) Peek(payer, escrowID, receiver string) (LockedAmount, error) {
	if err := m.ready(); err != nil {
		return LockedAmount{}, err
	}
	var stored storedLock
	ok, err := m.locks(payer).Get(escrowID, &stored)
	if err != nil {
		return LockedAmount{}, fmt.Errorf("escrow: load lock: %w", err)
	}
	if !ok {
		return LockedAmount{Receiver: receiver, Amount: big.NewInt(0)}, nil
	}
	return LockedAmount{Receiver: stored.Receiver, Amount: types.CloneAmount(stored.Amount)}, nil
}

// Release returns the hold under (payer, escrowID) to the payer's balance,
// lowers the payer's locked total by the same amount and deletes the hold.
// The receiver is returned so the caller can trigger the external payout.
func (m *Manager) Release(payer, escrowID string) (string, error) {
	if err := m.ready(); err != nil {
		return "", err
	}
	col := m.locks(payer)
	exists, err := col.Exists()
	if err != nil {
		return "", fmt.Errorf("escrow: load locks: %w", err)
	}
	if !exists {
		return "", ErrNotFound
	}
	var stored storedLock
	ok, err := col.Get(escrowID, &stored)
	if err != nil {
		return "", fmt.Errorf("escrow: load lock: %w", err)
	}
	if !ok {
		return "", ErrInvalidOrder
	}
	lock := LockedAmount{Receiver: stored.Receiver, Amount: types.CloneAmount(stored.Amount)}
	if _, err := m.ledger.AdjustBalance(payer, lock.Amount); err != nil {
		return "", fmt.Errorf("escrow: credit payer: %w", err)
	}
	if _, err := m.ledger.AdjustLocked(payer, new(big.Int).Neg(lock.Amount)); err != nil {
		return "", fmt.Errorf("escrow: adjust locked: %w", err)
	}
	if _, err := col.Remove(escrowID); err != nil {
		return "", fmt.Errorf("escrow: remove lock: %w", err)
	}
	m.emit(NewReleasedEvent(payer, escrowID, lock))
	return lock.Receiver, nil
}

// Locks returns up to limit escrow ids held by payer, in creation order.
func (m *Manager) Locks(payer string, offset, limit int) ([]string, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	return m.locks(payer).Keys(offset, limit)
}
