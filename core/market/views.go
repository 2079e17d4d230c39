package market

import (
	"deliverynet/native/directory"
	"deliverynet/native/orders"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// normalizePage clamps offset pagination arguments.
func normalizePage(page, limit int) (int, int) {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// ItemView is the wire form of an order line.
type ItemView struct {
	Name      string `json:"name"`
	Serial    string `json:"serial"`
	Price     string `json:"price"`
	Quantity  uint16 `json:"quantity"`
	Reference string `json:"reference"`
}

// OrderMetadata is the wire form of an order.
type OrderMetadata struct {
	Amount    string             `json:"amount"`
	Seller    string             `json:"seller"`
	Status    orders.OrderStatus `json:"status"`
	Insurance uint8              `json:"insurance"`
	Courier   *string            `json:"courier"`
	Timestamp uint64             `json:"timestamp"`
	Location  orders.Coordinate  `json:"location"`
}

// OrderView bundles an order with its id and items.
type OrderView struct {
	ID       string        `json:"id"`
	Metadata OrderMetadata `json:"metadata"`
	Products []ItemView    `json:"products"`
}

// OrderBundle is a page of orders. NextPage is page + limit.
type OrderBundle struct {
	NextPage int         `json:"next_page"`
	Orders   []OrderView `json:"orders"`
}

// CourierClientView is a shipping suggestion shown to a buyer.
type CourierClientView struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Image       string              `json:"image"`
	Phone       string              `json:"phone"`
	OnTransit   bool                `json:"on_transit"`
	Feedback    *directory.Feedback `json:"feedback"`
	ProposedFee string              `json:"proposed_fee"`
}

// AccountView is the wire form of a ledger account.
type AccountView struct {
	ID          string `json:"id"`
	Balance     string `json:"balance"`
	TotalLocked string `json:"total_locked"`
}

// LockView is the wire form of an escrow hold.
type LockView struct {
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

func newOrderView(rec *orders.Record) OrderView {
	meta := OrderMetadata{
		Amount:    rec.Order.Amount.String(),
		Seller:    rec.Order.Seller,
		Status:    rec.Order.Status,
		Insurance: rec.Order.Insurance,
		Timestamp: rec.Order.Timestamp,
		Location:  rec.Order.Location,
	}
	if rec.Order.HasCourier() {
		courier := rec.Order.Courier
		meta.Courier = &courier
	}
	products := make([]ItemView, 0, len(rec.Items))
	for _, item := range rec.Items {
		products = append(products, ItemView{
			Name:      item.Name,
			Serial:    item.Serial,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
			Reference: item.Reference,
		})
	}
	return OrderView{ID: rec.ID, Metadata: meta, Products: products}
}
