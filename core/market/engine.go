package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"deliverynet/core/events"
	"deliverynet/core/state"
	"deliverynet/native/directory"
	"deliverynet/native/escrow"
	"deliverynet/native/ledger"
	"deliverynet/native/orders"
	"deliverynet/native/proposals"
	"deliverynet/observability"
)

// DefaultTokenPrecision is the number of decimals used when pricing carts
// received through funds-received instructions.
const DefaultTokenPrecision uint8 = 18

// CourierEscrowSuffix is appended to an order id to form the escrow id of the
// courier payout hold.
const CourierEscrowSuffix = "/courier"

// CourierEscrowID returns the escrow id under which the courier payout for
// orderID is held.
func CourierEscrowID(orderID string) string { return orderID + CourierEscrowSuffix }

// Engine coordinates the order lifecycle across the catalog, the proposal
// engine, the directory and escrow. Every public operation is serialised and
// runs inside a state journal: it either commits all of its writes or none.
// Events are buffered with the journal and published after commit.
type Engine struct {
	mu sync.Mutex

	state     *state.Manager
	ledger    *ledger.Ledger
	escrow    *escrow.Manager
	catalog   *orders.Catalog
	proposals *proposals.Engine
	directory *directory.Directory

	pending events.Buffer
	emitter events.Emitter

	logger    *slog.Logger
	metrics   *observability.MarketMetrics
	tracer    trace.Tracer
	ops       metric.Int64Counter
	nowFn     func() time.Time
	idFn      func(buyer string, timestampMs uint64) string
	ids       orderIDGenerator
	precision uint8
}

// NewEngine wires the coordinator and its components over st.
func NewEngine(st *state.Manager) *Engine {
	l := ledger.New(st)
	e := &Engine{
		state:     st,
		ledger:    l,
		escrow:    escrow.NewManager(st, l),
		catalog:   orders.NewCatalog(st),
		proposals: proposals.NewEngine(st),
		directory: directory.New(st),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("deliverynet/core/market"),
		nowFn:     time.Now,
		precision: DefaultTokenPrecision,
	}
	e.ops = newOpsCounter(otel.Meter("deliverynet/core/market"), e.logger)
	e.escrow.SetEmitter(&e.pending)
	return e
}

// newOpsCounter creates the operation counter on meter. A failure is logged
// and leaves the engine without the counter.
func newOpsCounter(meter metric.Meter, logger *slog.Logger) metric.Int64Counter {
	ops, err := meter.Int64Counter("market.operations",
		metric.WithDescription("Market operations by outcome"))
	if err != nil {
		logger.Warn("market operation counter unavailable", slog.Any("error", err))
		return nil
	}
	return ops
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetLogger overrides the engine logger. nil restores slog.Default().
func (e *Engine) SetLogger(logger *slog.Logger) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", "market"))
}

// SetMetrics attaches the prometheus registry. A nil registry disables
// metrics.
func (e *Engine) SetMetrics(m *observability.MarketMetrics) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics = m
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// SetIDFunc overrides order id generation. nil restores the default
// generator.
func (e *Engine) SetIDFunc(fn func(buyer string, timestampMs uint64) string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.idFn = fn
}

// SetTokenPrecision sets the decimals used for carts received through
// OnFundsReceived.
func (e *Engine) SetTokenPrecision(precision uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.precision = precision
}

func (e *Engine) nextOrderID(buyer string, timestampMs uint64) string {
	if e.idFn != nil {
		return e.idFn(buyer, timestampMs)
	}
	return e.ids.next(buyer, timestampMs)
}

func (e *Engine) emit(evt events.Event) {
	e.pending.Emit(evt)
}

// apply runs fn inside a state journal. The caller must hold e.mu.
func (e *Engine) apply(operation string, fn func() error) (err error) {
	if e.state == nil {
		return errNilState
	}
	start := time.Now()
	if err := e.state.Begin(); err != nil {
		return fmt.Errorf("market: %s: %w", operation, err)
	}
	committed := false
	defer func() {
		if !committed {
			e.state.Discard()
			e.pending.Reset()
		}
		if r := recover(); r != nil {
			e.observe(operation, "error", start)
			e.logger.Error("market operation panicked",
				slog.String("operation", operation),
				slog.Any("error", r))
			panic(r)
		}
		e.observe(operation, outcomeOf(err), start)
	}()

	if err = fn(); err != nil {
		return err
	}
	if err = e.state.Commit(); err != nil {
		committed = true
		e.pending.Reset()
		return fmt.Errorf("market: %s: commit: %w", operation, err)
	}
	committed = true
	e.pending.Flush(e.emitter)
	return nil
}

func (e *Engine) observe(operation, outcome string, start time.Time) {
	e.metrics.Observe(operation, outcome, time.Since(start))
	if e.ops != nil {
		e.ops.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome)))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsRecoverable(err):
		return "rejected"
	default:
		return "error"
	}
}
