package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"deliverynet/core/events"
	"deliverynet/core/market"
	"deliverynet/core/state"
	"deliverynet/core/types"
	"deliverynet/native/directory"
	"deliverynet/storage"
)

const testSecret = "test-secret"

type testEnv struct {
	engine *market.Engine
	hub    *Hub
	server *httptest.Server
}

func newTestEnv(t *testing.T, auth AuthConfig, limit RateLimit) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	engine := market.NewEngine(state.NewManager(db))
	engine.SetTokenPrecision(2)
	hub := NewHub(nil)
	engine.SetEmitter(hub)
	_, err := engine.RegisterCompany("seller.near", directory.Company{Name: "Shop", Wallet: "seller.near"})
	require.NoError(t, err)

	srv := NewServer(engine, Config{Auth: auth, RateLimit: limit, Hub: hub})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{engine: engine, hub: hub, server: ts}
}

func (e *testEnv) call(t *testing.T, token, method string, params interface{}) (int, json.RawMessage, *RPCError) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: []json.RawMessage{raw}, ID: 1})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.server.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out.Result, out.Error
}

const cartMessage = `place_order|{"seller":"seller.near","location":{"lat":1,"lon":2},"items":[{"name":"tea","serial":"T1","price":12.50,"quantity":1,"reference":"r"}]}`

func TestFundsReceivedPlacesOrder(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	status, result, rpcErr := env.call(t, "", "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "1300", Message: cartMessage})
	require.Nil(t, rpcErr)
	require.Equal(t, http.StatusOK, status)
	var funds fundsReceivedResult
	require.NoError(t, json.Unmarshal(result, &funds))
	require.Equal(t, "50", funds.Returned)

	_, result, rpcErr = env.call(t, "", "market_buyerOrders", pageParams{Owner: "alice.near"})
	require.Nil(t, rpcErr)
	var bundle market.OrderBundle
	require.NoError(t, json.Unmarshal(result, &bundle))
	require.Len(t, bundle.Orders, 1)
	require.Equal(t, "1250", bundle.Orders[0].Metadata.Amount)
	require.Equal(t, 20, bundle.NextPage)

	_, result, rpcErr = env.call(t, "", "market_getAccount", accountParams{Account: "alice.near"})
	require.Nil(t, rpcErr)
	var acc market.AccountView
	require.NoError(t, json.Unmarshal(result, &acc))
	require.Equal(t, "1250", acc.TotalLocked)
}

func TestFundsReceivedRejectionReturnsAmount(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	_, result, rpcErr := env.call(t, "", "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "100", Message: cartMessage})
	require.Nil(t, rpcErr)
	var funds fundsReceivedResult
	require.NoError(t, json.Unmarshal(result, &funds))
	require.Equal(t, "100", funds.Returned)
}

func TestInvalidParams(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	status, _, rpcErr := env.call(t, "", "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "-1"})
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, codeMarketInvalidParams, rpcErr.Code)

	_, _, rpcErr = env.call(t, "", "market_stageOrder", map[string]string{"orderId": "x"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	_, _, rpcErr = env.call(t, "", "market_getAccount", map[string]string{"account": "a", "extra": "b"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeInvalidParams, rpcErr.Code)

	status, _, rpcErr = env.call(t, "", "market_teleport", map[string]string{})
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMethodNotFound, rpcErr.Code)
}

func TestMalformedEnvelope(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	resp, err := http.Post(env.server.URL+"/rpc", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out RPCResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, codeParseError, out.Error.Code)
}

func TestDirectoryAndErrorMapping(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	_, _, rpcErr := env.call(t, "", "directory_registerCourier", map[string]string{"caller": "bob.near", "name": "Bob", "vehicle": "hovercraft"})
	require.NotNil(t, rpcErr)
	require.Equal(t, codeMarketInvalidParams, rpcErr.Code)

	_, result, rpcErr := env.call(t, "", "directory_registerCourier", map[string]string{"caller": "bob.near", "name": "Bob", "vehicle": "tuktuk"})
	require.Nil(t, rpcErr)
	var courier directory.Courier
	require.NoError(t, json.Unmarshal(result, &courier))
	require.Equal(t, "bob.near", courier.ID)

	_, _, rpcErr = env.call(t, "", "directory_saveCompany", saveCompanyParams{Caller: "bob.near", CompanyID: "seller.near"})
	require.Nil(t, rpcErr)

	_, result, rpcErr = env.call(t, "", "directory_companyCouriers", pageParams{Owner: "seller.near"})
	require.Nil(t, rpcErr)
	var profiles []directory.CourierProfile
	require.NoError(t, json.Unmarshal(result, &profiles))
	require.Len(t, profiles, 1)

	status, _, rpcErr := env.call(t, "", "directory_getCompany", idParams{ID: "ghost"})
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, codeMarketNotFound, rpcErr.Code)

	status, _, rpcErr = env.call(t, "", "market_clearOrderCouriers", clearCouriersParams{Caller: "alice.near", OrderID: "missing", Limit: 3})
	require.NotNil(t, rpcErr)
	require.Equal(t, http.StatusNotFound, status)
}

func TestAuthRequiresToken(t *testing.T) {
	auth := AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "deliverynet", AdminAccounts: []string{"relay.near"}}
	env := newTestEnv(t, auth, RateLimit{})

	status, _, rpcErr := env.call(t, "", "market_getAccount", accountParams{Account: "a"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	wrongIssuer, err := IssueToken(testSecret, "alice.near", "other", "", time.Minute, time.Now())
	require.NoError(t, err)
	status, _, _ = env.call(t, wrongIssuer, "market_getAccount", accountParams{Account: "a"})
	require.Equal(t, http.StatusUnauthorized, status)

	alice, err := IssueToken(testSecret, "alice.near", "deliverynet", "", time.Minute, time.Now())
	require.NoError(t, err)
	status, _, rpcErr = env.call(t, alice, "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "1250", Message: cartMessage})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	relay, err := IssueToken(testSecret, "relay.near", "deliverynet", "", time.Minute, time.Now())
	require.NoError(t, err)
	_, _, rpcErr = env.call(t, relay, "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "1250", Message: cartMessage})
	require.Nil(t, rpcErr)

	// The token subject is the caller; naming someone else is refused.
	status, _, rpcErr = env.call(t, alice, "market_stageOrder", orderActionParams{Caller: "seller.near", OrderID: "x"})
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, codeUnauthorized, rpcErr.Code)

	_, result, rpcErr := env.call(t, alice, "market_stageOrder", orderActionParams{OrderID: "x"})
	require.Nil(t, rpcErr)
	var action orderActionResult
	require.NoError(t, json.Unmarshal(result, &action))
	require.False(t, action.Applied)
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{Enabled: true, HMACSecret: testSecret, ClockSkew: time.Second}, nil)
	token, err := IssueToken(testSecret, "alice.near", "", "", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = auth.Verify(token)
	require.Error(t, err)

	token, err = IssueToken("other-secret", "alice.near", "", "", time.Minute, time.Now())
	require.NoError(t, err)
	_, err = auth.Verify(token)
	require.Error(t, err)
}

func TestRateLimitPerCaller(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{RequestsPerMinute: 1, Burst: 1})
	status, _, rpcErr := env.call(t, "", "market_getAccount", accountParams{Account: "a"})
	require.Nil(t, rpcErr)
	require.Equal(t, http.StatusOK, status)

	status, _, rpcErr = env.call(t, "", "market_getAccount", accountParams{Account: "a"})
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, rpcErr.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, AuthConfig{Enabled: true, HMACSecret: testSecret}, RateLimit{})
	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, AuthConfig{}, RateLimit{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/events?types=" + events.TypeOrderPlaced
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool {
		env.hub.mu.Lock()
		defer env.hub.mu.Unlock()
		return len(env.hub.subs) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, _, rpcErr := env.call(t, "", "market_onFundsReceived", fundsReceivedParams{Payer: "alice.near", Amount: "1250", Message: cartMessage})
	require.Nil(t, rpcErr)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var evt types.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	require.Equal(t, events.TypeOrderPlaced, evt.Type)
	require.Equal(t, "alice.near", evt.Attributes["buyer"])
}
