// Package indexer projects committed engine events into a relational store
// for reporting and history queries.
package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deliverynet/core/events"
	"deliverynet/core/market"
	"deliverynet/core/types"
	"deliverynet/native/escrow"
	"deliverynet/native/orders"
)

const (
	defaultQueueSize = 1024
	maxListLimit     = 500
)

// Open connects to the configured database. Supported drivers are "sqlite"
// and "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Store persists events asynchronously. Emit never blocks the engine; events
// are written by a single worker in commit order.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan *types.Event
	wg     sync.WaitGroup
}

// NewStore migrates the schema and starts the writer.
func NewStore(db *gorm.DB, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("indexer: db required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	s := &Store{
		db:     db,
		logger: logger.With(slog.String("component", "indexer")),
		nowFn:  time.Now,
		queue:  make(chan *types.Event, defaultQueueSize),
	}
	s.wg.Add(1)
	go s.worker()
	return s, nil
}

// Emit implements events.Emitter.
func (s *Store) Emit(evt events.Event) {
	canonical := events.Canonical(evt).Clone()
	if s == nil || canonical == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- canonical:
	default:
		s.logger.Warn("indexer queue full, dropping event", slog.String("type", canonical.Type))
	}
}

// Close drains queued events and stops the writer.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Store) worker() {
	defer s.wg.Done()
	for evt := range s.queue {
		if err := s.Record(context.Background(), evt); err != nil {
			s.logger.Error("index event failed",
				slog.String("type", evt.Type),
				slog.String("error", err.Error()))
		}
	}
}

// Record stores evt and updates the order projection in one transaction.
func (s *Store) Record(ctx context.Context, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return err
	}
	now := s.nowFn().UTC()
	orderID := orderIDOf(evt)
	record := &EventRecord{
		EventID:    uuid.New(),
		Type:       evt.Type,
		OrderID:    orderID,
		Account:    accountOf(evt),
		Attributes: string(attrs),
		CreatedAt:  now,
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		return project(tx, evt, orderID, now)
	})
}

func project(tx *gorm.DB, evt *types.Event, orderID string, now time.Time) error {
	attrs := evt.Attributes
	update := func(values map[string]interface{}) error {
		values["updated_at"] = now
		return tx.Model(&OrderRecord{}).Where("order_id = ?", orderID).Updates(values).Error
	}
	switch evt.Type {
	case events.TypeOrderPlaced:
		forBidding, _ := strconv.ParseBool(attrs["forBidding"])
		rec := &OrderRecord{
			OrderID:    orderID,
			Buyer:      attrs["buyer"],
			Seller:     attrs["seller"],
			Status:     orders.StatusPending.String(),
			Total:      attrs["total"],
			ForBidding: forBidding,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if !forBidding {
			rec.Courier = attrs["buyer"]
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
	case events.TypeOrderStaged:
		return update(map[string]interface{}{"status": orders.StatusStagged.String()})
	case events.TypeOrderShipping:
		return update(map[string]interface{}{"status": orders.StatusShipping.String()})
	case events.TypeProposalApproved:
		return update(map[string]interface{}{"courier": attrs["courier"], "courier_fee": attrs["amount"]})
	case escrow.EventTypeEscrowReleased:
		if strings.HasSuffix(attrs["escrowId"], market.CourierEscrowSuffix) {
			return update(map[string]interface{}{"courier_paid": true})
		}
		return update(map[string]interface{}{"seller_paid": true})
	}
	return nil
}

func orderIDOf(evt *types.Event) string {
	if id := evt.Attributes["orderId"]; id != "" {
		return id
	}
	return strings.TrimSuffix(evt.Attributes["escrowId"], market.CourierEscrowSuffix)
}

func accountOf(evt *types.Event) string {
	for _, key := range []string{"buyer", "client", "payer", "courier"} {
		if v := evt.Attributes[key]; v != "" {
			return v
		}
	}
	return ""
}

// EventFilter narrows Events. Zero fields match everything.
type EventFilter struct {
	Type    string
	OrderID string
	Account string
	AfterID uint64
	Limit   int
}

// Events returns matching records in commit order.
func (s *Store) Events(ctx context.Context, filter EventFilter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	q := s.db.WithContext(ctx).Model(&EventRecord{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.OrderID != "" {
		q = q.Where("order_id = ?", filter.OrderID)
	}
	if filter.Account != "" {
		q = q.Where("account = ?", filter.Account)
	}
	var out []EventRecord
	if err := q.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Order returns the projection of orderID.
func (s *Store) Order(ctx context.Context, orderID string) (*OrderRecord, bool, error) {
	var rec OrderRecord
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() (map[string]string, error) {
	out := map[string]string{}
	if r.Attributes == "" {
		return out, nil
	}
	err := json.Unmarshal([]byte(r.Attributes), &out)
	return out, err
}
