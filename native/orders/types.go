package orders

import (
	"fmt"
	"math/big"
	"strings"

	"deliverynet/core/types"
)

// OrderStatus enumerates the delivery lifecycle. STAGGED is the historical
// spelling of "staged" and is kept on the wire.
type OrderStatus uint8

const (
	StatusPending OrderStatus = iota
	StatusStagged
	StatusShipping
	StatusDelivered
	StatusCancelled
)

var statusNames = [...]string{"PENDING", "STAGGED", "SHIPPING", "DELIVERED", "CANCELLED"}

func (s OrderStatus) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("OrderStatus(%d)", uint8(s))
}

// Valid reports whether the status value is within the supported range.
func (s OrderStatus) Valid() bool { return int(s) < len(statusNames) }

// MarshalText implements encoding.TextMarshaler.
func (s OrderStatus) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("orders: invalid status %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *OrderStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus resolves a status name case-insensitively.
func ParseStatus(raw string) (OrderStatus, error) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	for i, name := range statusNames {
		if name == upper {
			return OrderStatus(i), nil
		}
	}
	return 0, fmt.Errorf("orders: unknown status %q", raw)
}

// Coordinate is a delivery location in fixed-point degrees.
type Coordinate struct {
	Lat int64 `json:"lat"`
	Lon int64 `json:"lon"`
}

// Order is the metadata of a placed order. Courier is empty until a courier
// is assigned.
type Order struct {
	Amount    *big.Int
	Seller    string
	Status    OrderStatus
	Insurance uint8
	Courier   string
	Timestamp uint64
	Location  Coordinate
}

// HasCourier reports whether a courier has been assigned.
func (o *Order) HasCourier() bool {
	return o != nil && o.Courier != ""
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Amount = types.CloneAmount(o.Amount)
	return &clone
}

// OrderItem is an immutable line of an order. Price is already scaled to the
// token precision.
type OrderItem struct {
	Name      string
	Serial    string
	Price     *big.Int
	Quantity  uint16
	Reference string
}

// Record bundles an order with its identifier and items.
type Record struct {
	ID    string
	Order *Order
	Items []OrderItem
}

// IndexEntry is a routing index row: the order id and the buyer owning it.
type IndexEntry struct {
	OrderID string
	Buyer   string
}

type storedOrder struct {
	Amount    *big.Int
	Seller    string
	Status    uint8
	Insurance uint8
	Courier   string
	Timestamp uint64
	// RLP has no signed integers; coordinates are kept as two's complement.
	Lat uint64
	Lon uint64
}

func newStoredOrder(o *Order) *storedOrder {
	return &storedOrder{
		Amount:    types.CloneAmount(o.Amount),
		Seller:    o.Seller,
		Status:    uint8(o.Status),
		Insurance: o.Insurance,
		Courier:   o.Courier,
		Timestamp: o.Timestamp,
		Lat:       uint64(o.Location.Lat),
		Lon:       uint64(o.Location.Lon),
	}
}

func (s *storedOrder) order() *Order {
	return &Order{
		Amount:    types.CloneAmount(s.Amount),
		Seller:    s.Seller,
		Status:    OrderStatus(s.Status),
		Insurance: s.Insurance,
		Courier:   s.Courier,
		Timestamp: s.Timestamp,
		Location:  Coordinate{Lat: int64(s.Lat), Lon: int64(s.Lon)},
	}
}

type storedItem struct {
	Name      string
	Serial    string
	Price     *big.Int
	Quantity  uint16
	Reference string
}

type storedItems struct {
	Items []storedItem
}

type storedIndexEntry struct {
	Buyer string
}
