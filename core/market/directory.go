package market

import (
	"deliverynet/native/directory"
)

// RegisterCourier stores the caller's courier profile.
func (e *Engine) RegisterCourier(account string, reg directory.CourierRegistration) (*directory.Courier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var courier *directory.Courier
	err := e.apply("register_courier", func() error {
		var err error
		courier, err = e.directory.RegisterCourier(account, reg)
		return err
	})
	return courier, err
}

// RegisterCompany stores a seller company and its payout wallet.
func (e *Engine) RegisterCompany(id string, company directory.Company) (*directory.Company, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var stored *directory.Company
	err := e.apply("register_company", func() error {
		var err error
		stored, err = e.directory.RegisterCompany(id, company)
		return err
	})
	return stored, err
}

// SaveCompany links the courier to a company.
func (e *Engine) SaveCompany(courier, companyID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.apply("save_company", func() error {
		return e.directory.SaveCompany(courier, companyID)
	})
}

func (e *Engine) Courier(id string) (*directory.Courier, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.Courier(id)
}

func (e *Engine) Company(id string) (*directory.Company, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.Company(id)
}

// CompanyCouriers returns a page of couriers linked to companyID.
func (e *Engine) CompanyCouriers(companyID string, page, limit int) ([]directory.CourierProfile, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.CompanyCouriers(companyID, page, limit)
}

// CourierCompanies returns a page of companies the courier saved.
func (e *Engine) CourierCompanies(courier string, page, limit int) ([]*directory.Company, error) {
	page, limit = normalizePage(page, limit)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.directory.CourierCompanies(courier, page, limit)
}
