package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"deliverynet/core/market"
	"deliverynet/core/types"
	"deliverynet/native/directory"
	"deliverynet/native/escrow"
	"deliverynet/native/proposals"
)

const (
	codeMarketInvalidParams = -32031
	codeMarketNotFound      = -32032
	codeMarketForbidden     = -32033
	codeMarketConflict      = -32034
	codeMarketRejected      = -32035
	codeMarketInternal      = -32036
)

type fundsReceivedParams struct {
	Payer   string `json:"payer"`
	Amount  string `json:"amount"`
	Message string `json:"msg"`
}

type fundsReceivedResult struct {
	Returned string `json:"returned"`
}

type orderActionParams struct {
	Caller  string `json:"caller,omitempty"`
	OrderID string `json:"orderId"`
}

type orderActionResult struct {
	OrderID string `json:"orderId"`
	Applied bool   `json:"applied"`
}

type placeProposalParams struct {
	Caller  string `json:"caller,omitempty"`
	Courier string `json:"courier"`
	OrderID string `json:"orderId"`
}

type suggestFeeParams struct {
	Caller  string `json:"caller,omitempty"`
	OrderID string `json:"orderId"`
	Fee     string `json:"fee"`
}

type clearCouriersParams struct {
	Caller  string `json:"caller,omitempty"`
	OrderID string `json:"orderId"`
	Limit   int    `json:"limit"`
}

type clearCouriersResult struct {
	Removed []string `json:"removed"`
}

type refundParams struct {
	Payer    string `json:"payer"`
	EscrowID string `json:"escrowId"`
}

type refundResult struct {
	Receiver string `json:"receiver"`
}

type accountParams struct {
	Account string `json:"account"`
}

type lockedBalanceParams struct {
	Account  string `json:"account"`
	EscrowID string `json:"escrowId"`
	Receiver string `json:"receiver,omitempty"`
}

type pageParams struct {
	Owner string `json:"owner"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

type suggestionsParams struct {
	Buyer   string `json:"buyer"`
	OrderID string `json:"orderId"`
	Page    int    `json:"page"`
	Limit   int    `json:"limit"`
}

type boolResult struct {
	OK bool `json:"ok"`
}

func (s *Server) routes() map[string]method {
	methods := map[string]method{
		"market_onFundsReceived":     {module: "market", admin: true, handler: s.marketFundsReceived},
		"market_refund":              {module: "market", admin: true, handler: s.marketRefund},
		"market_stageOrder":          {module: "market", handler: s.marketStageOrder},
		"market_shipOrder":           {module: "market", handler: s.marketShipOrder},
		"market_placeProposal":       {module: "market", handler: s.marketPlaceProposal},
		"market_suggestShippingFee":  {module: "market", handler: s.marketSuggestFee},
		"market_clearOrderCouriers":  {module: "market", handler: s.marketClearCouriers},
		"market_getAccount":          {module: "market", handler: s.marketGetAccount},
		"market_getLockedBalance":    {module: "market", handler: s.marketGetLockedBalance},
		"market_buyerOrders":         {module: "market", handler: s.pagedOrders(s.engine.BuyerOrders)},
		"market_pendingOrders":       {module: "market", handler: s.pagedOrders(s.engine.PendingOrders)},
		"market_stagedOrders":        {module: "market", handler: s.pagedOrders(s.engine.StagedOrders)},
		"market_shippingOrders":      {module: "market", handler: s.pagedOrders(s.engine.ShippingOrders)},
		"market_courierProposals":    {module: "market", handler: s.pagedOrders(s.engine.CourierProposals)},
		"market_shippingSuggestions": {module: "market", handler: s.marketShippingSuggestions},
		"directory_registerCourier":  {module: "directory", handler: s.directoryRegisterCourier},
		"directory_registerCompany":  {module: "directory", handler: s.directoryRegisterCompany},
		"directory_saveCompany":      {module: "directory", handler: s.directorySaveCompany},
		"directory_getCourier":       {module: "directory", handler: s.directoryGetCourier},
		"directory_getCompany":       {module: "directory", handler: s.directoryGetCompany},
		"directory_companyCouriers":  {module: "directory", handler: s.directoryCompanyCouriers},
		"directory_courierCompanies": {module: "directory", handler: s.directoryCourierCompanies},
	}
	if s.index != nil {
		methods["indexer_events"] = method{module: "indexer", handler: s.indexerEvents}
		methods["indexer_order"] = method{module: "indexer", handler: s.indexerOrder}
	}
	return methods
}

func invalidParams(detail string) *RPCError {
	return &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: detail}
}

func requireField(name, value string) *RPCError {
	if strings.TrimSpace(value) == "" {
		return invalidParams(name + " required")
	}
	return nil
}

func (s *Server) marketFundsReceived(ctx context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params fundsReceivedParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("payer", params.Payer); err != nil {
		return nil, err
	}
	amount, err := types.ParseAmount(params.Amount)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	returned, err := s.engine.OnFundsReceived(ctx, strings.TrimSpace(params.Payer), amount, params.Message)
	if err != nil {
		// The transfer is handed back in full; the error is surfaced alongside.
		return nil, &RPCError{Code: codeMarketInternal, Message: "internal_error", Data: fundsReceivedResult{Returned: returned}, status: http.StatusInternalServerError}
	}
	return fundsReceivedResult{Returned: returned}, nil
}

func (s *Server) marketRefund(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params refundParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("payer", params.Payer); err != nil {
		return nil, err
	}
	if err := requireField("escrowId", params.EscrowID); err != nil {
		return nil, err
	}
	receiver, err := s.engine.Refund(params.Payer, params.EscrowID)
	if err != nil {
		return nil, marketError(err)
	}
	return refundResult{Receiver: receiver}, nil
}

func (s *Server) marketStageOrder(_ context.Context, caller string, raw json.RawMessage) (interface{}, *RPCError) {
	return s.advanceOrder(caller, raw, s.engine.Stage)
}

func (s *Server) marketShipOrder(_ context.Context, caller string, raw json.RawMessage) (interface{}, *RPCError) {
	return s.advanceOrder(caller, raw, s.engine.Ship)
}

func (s *Server) advanceOrder(authenticated string, raw json.RawMessage, advance func(caller, orderID string) (string, bool, error)) (interface{}, *RPCError) {
	var params orderActionParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	caller, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := requireField("orderId", params.OrderID); err != nil {
		return nil, err
	}
	id, ok, err := advance(caller, params.OrderID)
	if err != nil {
		return nil, marketError(err)
	}
	return orderActionResult{OrderID: id, Applied: ok}, nil
}

func (s *Server) marketPlaceProposal(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params placeProposalParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := requireField("courier", params.Courier); err != nil {
		return nil, err
	}
	if err := requireField("orderId", params.OrderID); err != nil {
		return nil, err
	}
	created, err := s.engine.PlaceProposal(buyer, params.Courier, params.OrderID)
	if err != nil {
		return nil, marketError(err)
	}
	return boolResult{OK: created}, nil
}

func (s *Server) marketSuggestFee(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params suggestFeeParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	courier, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := requireField("orderId", params.OrderID); err != nil {
		return nil, err
	}
	fee, err := types.ParseAmount(params.Fee)
	if err != nil {
		return nil, invalidParams(err.Error())
	}
	found, err := s.engine.SuggestShippingFee(courier, params.OrderID, fee)
	if err != nil {
		return nil, marketError(err)
	}
	return boolResult{OK: found}, nil
}

func (s *Server) marketClearCouriers(_ context.Context, authenticated string, raw json.RawMessage) (interface{}, *RPCError) {
	var params clearCouriersParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	buyer, rpcErr := resolveCaller(authenticated, params.Caller)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if err := requireField("orderId", params.OrderID); err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		return nil, invalidParams("limit must be positive")
	}
	removed, err := s.engine.ClearOrderCouriers(buyer, params.OrderID, params.Limit)
	if err != nil {
		return nil, marketError(err)
	}
	if removed == nil {
		removed = []string{}
	}
	return clearCouriersResult{Removed: removed}, nil
}

func (s *Server) marketGetAccount(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params accountParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("account", params.Account); err != nil {
		return nil, err
	}
	acc, err := s.engine.Account(params.Account)
	if err != nil {
		return nil, marketError(err)
	}
	return acc, nil
}

func (s *Server) marketGetLockedBalance(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params lockedBalanceParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("account", params.Account); err != nil {
		return nil, err
	}
	if err := requireField("escrowId", params.EscrowID); err != nil {
		return nil, err
	}
	lock, err := s.engine.LockedBalance(params.Account, params.EscrowID, params.Receiver)
	if err != nil {
		return nil, marketError(err)
	}
	return lock, nil
}

func (s *Server) pagedOrders(list func(owner string, page, limit int) (*market.OrderBundle, error)) func(context.Context, string, json.RawMessage) (interface{}, *RPCError) {
	return func(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
		var params pageParams
		if err := decodeParams(raw, &params); err != nil {
			return nil, err
		}
		if err := requireField("owner", params.Owner); err != nil {
			return nil, err
		}
		bundle, err := list(params.Owner, params.Page, params.Limit)
		if err != nil {
			return nil, marketError(err)
		}
		return bundle, nil
	}
}

func (s *Server) marketShippingSuggestions(_ context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params suggestionsParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("buyer", params.Buyer); err != nil {
		return nil, err
	}
	if err := requireField("orderId", params.OrderID); err != nil {
		return nil, err
	}
	views, err := s.engine.ShippingSuggestions(params.Buyer, params.OrderID, params.Page, params.Limit)
	if err != nil {
		return nil, marketError(err)
	}
	return views, nil
}

// marketError maps engine errors onto RPC codes.
func marketError(err error) *RPCError {
	switch {
	case errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, market.ErrProposalNotFound),
		errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, escrow.ErrInvalidOrder),
		errors.Is(err, directory.ErrCompanyNotFound),
		errors.Is(err, directory.ErrCourierNotFound),
		errors.Is(err, proposals.ErrNotFound):
		return &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: err.Error(), status: http.StatusNotFound}
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, proposals.ErrClientMismatch):
		return &RPCError{Code: codeMarketForbidden, Message: "forbidden", Data: err.Error(), status: http.StatusForbidden}
	case errors.Is(err, market.ErrOrderExists),
		errors.Is(err, market.ErrCourierAlreadyAssigned),
		errors.Is(err, market.ErrNoCourierAssigned),
		errors.Is(err, proposals.ErrAlreadyApproved):
		return &RPCError{Code: codeMarketConflict, Message: "conflict", Data: err.Error(), status: http.StatusConflict}
	case errors.Is(err, market.ErrMalformedPayload),
		errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, directory.ErrInvalidVehicle),
		errors.Is(err, directory.ErrInvalidCompany),
		errors.Is(err, proposals.ErrInvalidFee):
		return &RPCError{Code: codeMarketInvalidParams, Message: "invalid_params", Data: err.Error()}
	case market.IsRecoverable(err):
		return &RPCError{Code: codeMarketRejected, Message: "rejected", Data: err.Error(), status: http.StatusUnprocessableEntity}
	default:
		return &RPCError{Code: codeMarketInternal, Message: "internal_error", Data: err.Error(), status: http.StatusInternalServerError}
	}
}
