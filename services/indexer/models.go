package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventRecord is one committed engine event. Attributes hold the canonical
// attribute map encoded as JSON.
type EventRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	OrderID    string    `gorm:"size:128;index"`
	Account    string    `gorm:"size:128;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// OrderRecord is the relational projection of an order built from its
// events.
type OrderRecord struct {
	OrderID     string    `gorm:"primaryKey;size:128" json:"orderId"`
	Buyer       string    `gorm:"size:128;index" json:"buyer"`
	Seller      string    `gorm:"size:128;index" json:"seller"`
	Courier     string    `gorm:"size:128;index" json:"courier,omitempty"`
	Status      string    `gorm:"size:16;index" json:"status"`
	Total       string    `gorm:"size:64" json:"total"`
	CourierFee  string    `gorm:"size:64" json:"courierFee,omitempty"`
	ForBidding  bool      `json:"forBidding"`
	SellerPaid  bool      `json:"sellerPaid"`
	CourierPaid bool      `json:"courierPaid"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AutoMigrate performs all schema migrations for the indexer.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&EventRecord{},
		&OrderRecord{},
	)
}
