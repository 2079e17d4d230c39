package payouts

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"deliverynet/core/events"
	"deliverynet/core/types"
	"deliverynet/native/escrow"
)

type canonical struct{ evt *types.Event }

func (c canonical) EventType() string { return c.evt.Type }
func (c canonical) Event() *types.Event { return c.evt }

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	attempts int
	messages []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.attempts++
	if w.failures > 0 {
		w.failures--
		return errors.New("broker unavailable")
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) snapshot() ([]kafka.Message, int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.messages...), w.attempts
}

func TestPublisherForwardsPayoutEvents(t *testing.T) {
	writer := &fakeWriter{}
	pub, err := NewPublisher(writer)
	require.NoError(t, err)

	lock := escrow.LockedAmount{Receiver: "seller.near", Amount: big.NewInt(1250)}
	pub.Emit(canonical{escrow.NewLockedEvent("alice.near", "order-1", lock)})
	pub.Emit(events.OrderTransition{Type: events.TypeOrderStaged, OrderID: "order-1"})
	pub.Emit(events.ProposalApproved{OrderID: "order-1", Courier: "c3", Client: "alice.near", Amount: big.NewInt(40), Change: big.NewInt(5)})
	require.NoError(t, pub.Close())

	msgs, _ := writer.snapshot()
	require.Len(t, msgs, 2)
	require.Equal(t, "alice.near/order-1", string(msgs[0].Key))
	var first Notification
	require.NoError(t, json.Unmarshal(msgs[0].Value, &first))
	require.Equal(t, escrow.EventTypeEscrowLocked, first.Type)
	require.Equal(t, "1250", first.Attributes["amount"])
	require.NotEmpty(t, first.DeliveryID)

	require.Equal(t, "order-1", string(msgs[1].Key))
	require.True(t, writer.closed)

	// Emitting after close is a no-op.
	pub.Emit(canonical{escrow.NewReleasedEvent("alice.near", "order-1", lock)})
}

func TestPublisherRetries(t *testing.T) {
	writer := &fakeWriter{failures: 2}
	pub, err := NewPublisher(writer, WithRetryPolicy(3, time.Millisecond, 2*time.Millisecond))
	require.NoError(t, err)
	pub.Emit(canonical{escrow.NewReleasedEvent("alice.near", "order-1", escrow.LockedAmount{Receiver: "seller.near", Amount: big.NewInt(1)})})
	require.NoError(t, pub.Close())

	msgs, attempts := writer.snapshot()
	require.Len(t, msgs, 1)
	require.Equal(t, 3, attempts)
}

func TestPublisherGivesUp(t *testing.T) {
	writer := &fakeWriter{failures: 10}
	pub, err := NewPublisher(writer, WithRetryPolicy(2, time.Millisecond, time.Millisecond))
	require.NoError(t, err)
	pub.Emit(canonical{escrow.NewReleasedEvent("alice.near", "order-1", escrow.LockedAmount{Receiver: "seller.near", Amount: big.NewInt(1)})})
	require.NoError(t, pub.Close())

	msgs, attempts := writer.snapshot()
	require.Empty(t, msgs)
	require.Equal(t, 2, attempts)
}

func TestNextBackoffCaps(t *testing.T) {
	require.Equal(t, 2*time.Second, nextBackoff(time.Second, 10*time.Second))
	require.Equal(t, 10*time.Second, nextBackoff(8*time.Second, 10*time.Second))
}
