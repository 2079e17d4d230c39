package directory

import (
	"fmt"
	"strings"

	"deliverynet/native/orders"
)

// Vehicle is the transport class a courier operates.
type Vehicle uint8

const (
	VehicleMotorcycle Vehicle = iota
	VehicleTuktuk
	VehicleCar
	VehiclePickup
	VehicleLorry
)

var vehicleNames = [...]string{"motorcycle", "tuktuk", "car", "pickup", "lorry"}

func (v Vehicle) String() string {
	if int(v) < len(vehicleNames) {
		return vehicleNames[v]
	}
	return fmt.Sprintf("Vehicle(%d)", uint8(v))
}

// MarshalText implements encoding.TextMarshaler.
func (v Vehicle) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Vehicle) UnmarshalText(text []byte) error {
	parsed, err := ParseVehicle(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVehicle resolves a vehicle name. Unknown names yield ErrInvalidVehicle.
func ParseVehicle(raw string) (Vehicle, error) {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for i, name := range vehicleNames {
		if name == lower {
			return Vehicle(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidVehicle, raw)
}

// StarRate aggregates star votes.
type StarRate struct {
	Voters uint64 `json:"voters"`
	Votes  uint64 `json:"votes"`
}

// Feedback is opaque reputation data attached to a courier.
type Feedback struct {
	Score    uint64   `json:"score"`
	StarRate StarRate `json:"star_rate"`
}

// CourierRegistration is the payload a courier submits to register.
type CourierRegistration struct {
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Image     string `json:"image"`
	Vehicle   string `json:"vehicle"`
	MakeModel string `json:"make_model"`
	PlateID   string `json:"plate_id"`
}

// Courier is a registered courier profile.
type Courier struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	Vehicle   Vehicle   `json:"vehicle"`
	MakeModel string    `json:"make_model"`
	PlateID   string    `json:"plate_id"`
	OnTransit bool      `json:"on_transit"`
	Feedback  *Feedback `json:"feedback"`
}

// Company is a seller storefront with the wallet that receives order funds.
type Company struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Wallet   string            `json:"wallet"`
	Phone    string            `json:"phone"`
	Email    string            `json:"email"`
	Location orders.Coordinate `json:"location"`
	Sales    uint64            `json:"sales"`
	StarRate StarRate          `json:"star_rate"`
}

// CourierProfile is a courier linked to a company with its delivery count.
type CourierProfile struct {
	Deliveries uint64   `json:"deliveries"`
	Profile    *Courier `json:"profile"`
}

type storedCourier struct {
	Name        string
	Phone       string
	Email       string
	Image       string
	Vehicle     uint8
	MakeModel   string
	PlateID     string
	OnTransit   bool
	HasFeedback bool
	Score       uint64
	Voters      uint64
	Votes       uint64
}

func (s *storedCourier) courier(id string) *Courier {
	c := &Courier{
		ID:        id,
		Name:      s.Name,
		Phone:     s.Phone,
		Email:     s.Email,
		Image:     s.Image,
		Vehicle:   Vehicle(s.Vehicle),
		MakeModel: s.MakeModel,
		PlateID:   s.PlateID,
		OnTransit: s.OnTransit,
	}
	if s.HasFeedback {
		c.Feedback = &Feedback{Score: s.Score, StarRate: StarRate{Voters: s.Voters, Votes: s.Votes}}
	}
	return c
}

type storedCompany struct {
	Name   string
	Wallet string
	Phone  string
	Email  string
	Lat    uint64
	Lon    uint64
	Sales  uint64
	Voters uint64
	Votes  uint64
}

func (s *storedCompany) company(id string) *Company {
	return &Company{
		ID:       id,
		Name:     s.Name,
		Wallet:   s.Wallet,
		Phone:    s.Phone,
		Email:    s.Email,
		Location: orders.Coordinate{Lat: int64(s.Lat), Lon: int64(s.Lon)},
		Sales:    s.Sales,
		StarRate: StarRate{Voters: s.Voters, Votes: s.Votes},
	}
}

type storedDeliveries struct {
	Count uint64
}

type storedLink struct {
	Linked bool
}
