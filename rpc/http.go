package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"deliverynet/core/market"
	"deliverynet/observability"
	"deliverynet/services/indexer"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020
)

// Config wires the optional collaborators of the RPC server.
type Config struct {
	Auth      AuthConfig
	RateLimit RateLimit
	Hub       *Hub
	Indexer   *indexer.Store
	Logger    *slog.Logger
}

type Server struct {
	engine  *market.Engine
	auth    *Authenticator
	limiter *RateLimiter
	hub     *Hub
	index   *indexer.Store
	logger  *slog.Logger
	metrics *observability.RPCMetrics
	methods map[string]method
}

type method struct {
	module  string
	admin   bool
	handler func(ctx context.Context, caller string, params json.RawMessage) (interface{}, *RPCError)
}

func NewServer(engine *market.Engine, cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "rpc"))
	s := &Server{
		engine:  engine,
		auth:    NewAuthenticator(cfg.Auth, logger),
		limiter: NewRateLimiter(cfg.RateLimit, logger),
		hub:     cfg.Hub,
		index:   cfg.Indexer,
		logger:  logger,
		metrics: observability.RPC(),
	}
	s.methods = s.routes()
	return s
}

// Handler returns the HTTP surface: JSON-RPC on /rpc, the event stream on
// /ws/events, prometheus on /metrics and a liveness probe on /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Use(s.limiter.Middleware)
		r.Post("/rpc", s.handle)
		r.Post("/", s.handle)
		if s.hub != nil {
			r.Get("/ws/events", s.hub.ServeHTTP)
		}
	})
	return otelhttp.NewHandler(r, "deliverynet.rpc")
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	status  int
}

func (e *RPCError) httpStatus() int {
	if e.status > 0 {
		return e.status
	}
	return http.StatusBadRequest
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// handle decodes the JSON-RPC envelope and dispatches to the method table.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}
	start := time.Now()
	status := http.StatusOK
	defer func() {
		s.metrics.Observe(m.module, req.Method, status, time.Since(start))
	}()

	caller := CallerFromContext(r.Context())
	if m.admin && !s.auth.IsAdmin(caller) {
		status = http.StatusForbidden
		writeError(w, status, req.ID, codeUnauthorized, "admin caller required", nil)
		return
	}
	if len(req.Params) != 1 {
		status = http.StatusBadRequest
		writeError(w, status, req.ID, codeInvalidParams, "invalid_params", "exactly one parameter object expected")
		return
	}
	result, rpcErr := m.handler(r.Context(), caller, req.Params[0])
	if rpcErr != nil {
		status = rpcErr.httpStatus()
		if status >= http.StatusInternalServerError {
			s.logger.Error("rpc method failed",
				slog.String("method", req.Method),
				slog.Int("code", rpcErr.Code),
				slog.Any("error", rpcErr.Data))
		}
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	writeResult(w, req.ID, result)
}

func decodeParams(raw json.RawMessage, out interface{}) *RPCError {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: err.Error()}
	}
	return nil
}

// resolveCaller reconciles the authenticated caller with the caller named in
// the parameters. Without authentication the parameter is trusted.
func resolveCaller(authenticated, claimed string) (string, *RPCError) {
	claimed = strings.TrimSpace(claimed)
	if authenticated == "" {
		if claimed == "" {
			return "", &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: "caller required"}
		}
		return claimed, nil
	}
	if claimed != "" && claimed != authenticated {
		return "", &RPCError{Code: codeUnauthorized, Message: "caller does not match token subject", status: http.StatusForbidden}
	}
	return authenticated, nil
}
