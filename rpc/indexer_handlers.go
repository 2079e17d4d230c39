package rpc

import (
	"context"
	"encoding/json"
	"net/http"

	"deliverynet/services/indexer"
)

type indexerEventsParams struct {
	Type    string `json:"type,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	Account string `json:"account,omitempty"`
	AfterID uint64 `json:"afterId,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type indexedEvent struct {
	ID         uint64            `json:"id"`
	Type       string            `json:"type"`
	OrderID    string            `json:"orderId,omitempty"`
	Account    string            `json:"account,omitempty"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  int64             `json:"createdAt"`
}

func (s *Server) indexerEvents(ctx context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params indexerEventsParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	records, err := s.index.Events(ctx, indexer.EventFilter{
		Type:    params.Type,
		OrderID: params.OrderID,
		Account: params.Account,
		AfterID: params.AfterID,
		Limit:   params.Limit,
	})
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "indexer query failed", Data: err.Error(), status: http.StatusInternalServerError}
	}
	out := make([]indexedEvent, 0, len(records))
	for _, rec := range records {
		attrs, err := rec.Attrs()
		if err != nil {
			return nil, &RPCError{Code: codeServerError, Message: "corrupt indexed event", Data: err.Error(), status: http.StatusInternalServerError}
		}
		out = append(out, indexedEvent{
			ID:         rec.ID,
			Type:       rec.Type,
			OrderID:    rec.OrderID,
			Account:    rec.Account,
			Attributes: attrs,
			CreatedAt:  rec.CreatedAt.UnixMilli(),
		})
	}
	return out, nil
}

func (s *Server) indexerOrder(ctx context.Context, _ string, raw json.RawMessage) (interface{}, *RPCError) {
	var params idParams
	if err := decodeParams(raw, &params); err != nil {
		return nil, err
	}
	if err := requireField("id", params.ID); err != nil {
		return nil, err
	}
	rec, ok, err := s.index.Order(ctx, params.ID)
	if err != nil {
		return nil, &RPCError{Code: codeServerError, Message: "indexer query failed", Data: err.Error(), status: http.StatusInternalServerError}
	}
	if !ok {
		return nil, &RPCError{Code: codeMarketNotFound, Message: "not_found", Data: params.ID, status: http.StatusNotFound}
	}
	return rec, nil
}
