package rpc

import (
	"context"
	"encoding/json"

	"deliverynet/native/directory"
)

type registerCourierParams struct {
	Caller string `json:"caller,omitempty"`
	directory.CourierRegistration
}

type registerCompanyParams struct {
	Caller  string            `json:"caller,omitempty"`
	Company directory.Company `json:"company"`
}

type saveCompanyParams struct {
	Caller    string `json:"caller,omitempty"`
	CompanyID string `json:"companyId"`
}

type idParams struct {
	ID string `json:"id"`
}

func (s *Server) directoryRegisterCourier(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params registerCourierParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	account, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	courier, err := s.engine.RegisterCourier(account, params.CourierRegistration)
	if err != nil {
		return nil, marketError(err)
	}
	return courier, nil
}

// directoryRegisterCompany registers the caller's company. The company id is
// the calling account.
func (s *Server) directoryRegisterCompany(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params registerCompanyParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	account, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	company, err := s.engine.RegisterCompany(account, params.Company)
	if err != nil {
		return nil, marketError(err)
	}
	return company, nil
}

func (s *Server) directorySaveCompany(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params saveCompanyParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	courier, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := requireField("companyId", params.CompanyID); err != nil {
		return nil, err
	}
	if err := s.engine.SaveCompany(courier, params.CompanyID); err != nil {
		return nil, marketError(err)
	}
	return boolResult{OK: true}, nil
}

func (s *Server) directoryGetCourier(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("id", params.ID); err != nil {
		return nil, err
	}
	courier, ok, err := s.engine.Courier(params.ID)
	if err != nil {
		return nil, marketError(err)
	}
	if !ok {
		return nil, marketError(directory.ErrCourierNotFound)
	}
	return courier, nil
}

func (s *Server) directoryGetCompany(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("id", params.ID); err != nil {
		return nil, err
	}
	company, ok, err := s.engine.Company(params.ID)
	if err != nil {
		return nil, marketError(err)
	}
	if !ok {
		return nil, marketError(directory.ErrCompanyNotFound)
	}
	return company, nil
}

func (s *Server) directoryCompanyCouriers(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params pageParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("owner", params.Owner); err != nil {
		return nil, err
	}
	profiles, err := s.engine.CompanyCouriers(params.Owner, params.Page, params.Limit)
	if err != nil {
		return nil, marketError(err)
	}
	if profiles == nil {
		profiles = []directory.CourierProfile{}
	}
	return profiles, nil
}

func (s *Server) directoryCourierCompanies(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params pageParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("owner", params.Owner); err != nil {
		return nil, err
	}
	companies, err := s.engine.CourierCompanies(params.Owner, params.Page, params.Limit)
	if err != nil {
		return nil, marketError(err)
	}
	if companies == nil {
		companies = []*directory.Company{}
	}
	return companies, nil
}
