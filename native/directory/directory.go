package directory

import (
	"errors"
	"fmt"
	"strings"

	"deliverynet/core/state"
)

var (
	ErrInvalidVehicle  = errors.New("directory: invalid vehicle")
	ErrCompanyNotFound = errors.New("directory: company not found")
	ErrCourierNotFound = errors.New("directory: courier not found")
	ErrInvalidCompany  = errors.New("directory: invalid company")
)

// Directory stores courier profiles, seller companies and the links between
// them.
type Directory struct {
	state *state.Manager
}

// New binds the directory to the state manager.
func New(st *state.Manager) *Directory {
	return &Directory{state: st}
}

func courierKey(id string) []byte { return state.SubKey(state.SpaceCouriers, id) }
func companyKey(id string) []byte { return state.SubKey(state.SpaceCompanies, id) }

// RegisterCourier stores the courier profile for account, replacing any
// previous registration.
func (d *Directory) RegisterCourier(account string, reg CourierRegistration) (*Courier, error) {
	if strings.TrimSpace(account) == "" {
		return nil, fmt.Errorf("directory: account must not be empty")
	}
	vehicle, err := ParseVehicle(reg.Vehicle)
	if err != nil {
		return nil, err
	}
	stored := &storedCourier{
		Name:      strings.TrimSpace(reg.Name),
		Phone:     strings.TrimSpace(reg.Phone),
		Email:     strings.TrimSpace(reg.Email),
		Image:     strings.TrimSpace(reg.Image),
		Vehicle:   uint8(vehicle),
		MakeModel: strings.TrimSpace(reg.MakeModel),
		PlateID:   strings.TrimSpace(reg.PlateID),
	}
	if err := d.state.KVPut(courierKey(account), stored); err != nil {
		return nil, err
	}
	return stored.courier(account), nil
}

// Courier returns the profile registered for id.
func (d *Directory) Courier(id string) (*Courier, bool, error) {
	var stored storedCourier
	ok, err := d.state.KVGet(courierKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.courier(id), true, nil
}

// RegisterCompany stores the company under id. The wallet receives the funds
// of orders placed with the company as seller.
func (d *Directory) RegisterCompany(id string, company Company) (*Company, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id required", ErrInvalidCompany)
	}
	if strings.TrimSpace(company.Wallet) == "" {
		return nil, fmt.Errorf("%w: wallet required", ErrInvalidCompany)
	}
	stored := &storedCompany{
		Name:   strings.TrimSpace(company.Name),
		Wallet: strings.TrimSpace(company.Wallet),
		Phone:  strings.TrimSpace(company.Phone),
		Email:  strings.TrimSpace(company.Email),
		Lat:    uint64(company.Location.Lat),
		Lon:    uint64(company.Location.Lon),
		Sales:  company.Sales,
		Voters: company.StarRate.Voters,
		Votes:  company.StarRate.Votes,
	}
	if err := d.state.KVPut(companyKey(id), stored); err != nil {
		return nil, err
	}
	return stored.company(id), nil
}

// Company returns the company registered under id.
func (d *Directory) Company(id string) (*Company, bool, error) {
	var stored storedCompany
	ok, err := d.state.KVGet(companyKey(id), &stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.company(id), true, nil
}

// SaveCompany links courier to companyID. Re-saving an existing link keeps
// its delivery count.
func (d *Directory) SaveCompany(courier, companyID string) error {
	if _, ok, err := d.Company(companyID); err != nil {
		return err
	} else if !ok {
		return ErrCompanyNotFound
	}
	if _, ok, err := d.Courier(courier); err != nil {
		return err
	} else if !ok {
		return ErrCourierNotFound
	}
	couriers := d.state.Collection(state.SpaceCompanyCouriers, companyID)
	linked, err := couriers.Has(courier)
	if err != nil {
		return err
	}
	if !linked {
		if _, err := couriers.Insert(courier, &storedDeliveries{}); err != nil {
			return err
		}
	}
	_, err = d.state.Collection(state.SpaceCourierCompanies, courier).Insert(companyID, &storedLink{Linked: true})
	return err
}

// CompanyCouriers returns up to limit couriers linked to companyID with their
// delivery counts.
func (d *Directory) CompanyCouriers(companyID string, page, limit int) ([]CourierProfile, error) {
	col := d.state.Collection(state.SpaceCompanyCouriers, companyID)
	ids, err := col.Keys(page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]CourierProfile, 0, len(ids))
	for _, id := range ids {
		var deliveries storedDeliveries
		ok, err := col.Get(id, &deliveries)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		courier, found, err := d.Courier(id)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, CourierProfile{Deliveries: deliveries.Count, Profile: courier})
		}
	}
	return out, nil
}

// CourierCompanies returns up to limit companies the courier saved.
func (d *Directory) CourierCompanies(courier string, page, limit int) ([]*Company, error) {
	ids, err := d.state.Collection(state.SpaceCourierCompanies, courier).Keys(page, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Company, 0, len(ids))
	for _, id := range ids {
		company, ok, err := d.Company(id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, company)
		}
	}
	return out, nil
}
