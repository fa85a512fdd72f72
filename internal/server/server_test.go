package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/metrics"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	server *Server
	hub    *events.Hub

	admin  *auth.Credentials
	holder *auth.Credentials
	mint   model.Address
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.OpenBadger(store.BadgerConfig{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	hub := events.NewHub(events.DefaultHubConfig(), nil)
	t.Cleanup(hub.Stop)

	m := metrics.New()
	engine, err := ledger.New(ledger.DefaultConfig(), st,
		ledger.WithPublisher(hub),
		ledger.WithRecorder(m),
	)
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}

	cfg := DefaultConfig()
	cfg.PingInterval = 50 * time.Millisecond
	s, err := New(cfg, Deps{
		Engine:   engine,
		Hub:      hub,
		Verifier: auth.NewVerifier(time.Minute),
		Recorder: m,
		Metrics:  m.Handler(),
		Health: map[string]HealthCheck{
			"store": func(ctx context.Context) error {
				_, err := engine.Holdings(ctx)
				return err
			},
		},
	}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	mintKey, _ := auth.GenerateCredentials()
	return &testEnv{
		t:      t,
		srv:    srv,
		server: s,
		hub:    hub,
		admin:  mustCreds(t),
		holder: mustCreds(t),
		mint:   mintKey.Address,
	}
}

func mustCreds(t *testing.T) *auth.Credentials {
	t.Helper()
	c, err := auth.GenerateCredentials()
	if err != nil {
		t.Fatalf("GenerateCredentials failed: %v", err)
	}
	return c
}

// call sends a request, signed when creds is non-nil, and decodes the JSON
// response into out when out is non-nil.
func (e *testEnv) call(creds *auth.Credentials, method, path string, body any, out any) int {
	e.t.Helper()

	var raw []byte
	if body != nil {
		var err error
		if raw, err = json.Marshal(body); err != nil {
			e.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if creds != nil {
		for k, v := range creds.SignRequest(method, path, raw) {
			req.Header.Set(k, v)
		}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			e.t.Fatalf("%s %s: decode %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) expect(creds *auth.Credentials, method, path string, body any, wantStatus int) {
	e.t.Helper()
	var errResp ErrorResponse
	if got := e.call(creds, method, path, body, &errResp); got != wantStatus {
		e.t.Fatalf("%s %s status = %d, want %d (%+v)", method, path, got, wantStatus, errResp)
	}
}

func (e *testEnv) expectError(creds *auth.Credentials, method, path string, body any, wantStatus int, wantCode uint32) ErrorResponse {
	e.t.Helper()
	var errResp ErrorResponse
	got := e.call(creds, method, path, body, &errResp)
	if got != wantStatus || errResp.Code != wantCode {
		e.t.Fatalf("%s %s = %d %+v, want %d code %d", method, path, got, errResp, wantStatus, wantCode)
	}
	return errResp
}

// setup initializes the ledger, funds the holder with 100 display units and
// registers the admin's scheme and the holder as an investor.
func (e *testEnv) setup() model.Address {
	e.t.Helper()

	e.expect(e.admin, "POST", "/v1/init", map[string]any{"is_initialized": true}, http.StatusCreated)
	e.expect(e.admin, "POST", "/v1/mints", map[string]any{"mint": e.mint.String(), "decimals": 2}, http.StatusCreated)
	e.expect(e.admin, "POST", "/v1/mints/"+e.mint.String()+"/accounts",
		map[string]any{"owner": e.holder.Address.String()}, http.StatusCreated)
	e.expect(e.admin, "POST", "/v1/mints/"+e.mint.String()+"/mint-to", map[string]any{
		"destination": token.AssociatedAddress(e.holder.Address, e.mint).String(),
		"amount":      100,
	}, http.StatusOK)

	var reg ledger.Registration
	status := e.call(e.admin, "POST", "/v1/schemes", map[string]any{
		"issuer": map[string]any{
			"issuer":       "Acorn Holdings",
			"name":         "Acorn Student Housing",
			"type_of_reit": 1,
			"listing_date": "2021-02-01",
		},
		"country":   "KE",
		"unit_cost": 10,
		"decimals":  2,
		"mint":      e.mint.String(),
	}, &reg)
	if status != http.StatusCreated {
		e.t.Fatalf("register scheme status = %d, want 201", status)
	}

	e.expect(e.holder, "POST", "/v1/investors", map[string]any{"full_names": "Jane Wanjiru Doe", "country": "KE"}, http.StatusCreated)
	return reg.Scheme.Address
}

func TestServer_BuyAndQuery(t *testing.T) {
	e := newTestEnv(t)
	scheme := e.setup()
	source := token.AssociatedAddress(e.holder.Address, e.mint)

	var trade ledger.Trade
	status := e.call(e.holder, "POST", "/v1/schemes/"+scheme.String()+"/buy",
		map[string]any{"source": source.String(), "amount": 5}, &trade)
	if status != http.StatusOK {
		t.Fatalf("buy status = %d, want 200", status)
	}
	if trade.Units != 50 || trade.Scaled != 500 {
		t.Errorf("trade units, scaled = %d, %d, want 50, 500", trade.Units, trade.Scaled)
	}

	var owner OwnerAddresses
	if status := e.call(nil, "GET", "/v1/owners/"+e.holder.Address.String(), nil, &owner); status != http.StatusOK {
		t.Fatalf("owner status = %d, want 200", status)
	}

	var inv model.Investor
	if status := e.call(nil, "GET", "/v1/investors/"+owner.Investor.String(), nil, &inv); status != http.StatusOK {
		t.Fatalf("investor status = %d, want 200", status)
	}
	if inv.AvailableFunds != 5 || inv.TotalUnits != 50 {
		t.Errorf("investor funds, units = %d, %d, want 5, 50", inv.AvailableFunds, inv.TotalUnits)
	}

	var pos model.Position
	path := "/v1/schemes/" + scheme.String() + "/positions/" + e.holder.Address.String()
	if status := e.call(nil, "GET", path, nil, &pos); status != http.StatusOK {
		t.Fatalf("position status = %d, want 200", status)
	}
	if pos.AvailableFunds != 5 || pos.Investor != owner.Investor {
		t.Errorf("position = %+v, want 5 funds for investor %s", pos, owner.Investor)
	}

	var s model.TrustScheme
	e.call(nil, "GET", "/v1/schemes/"+scheme.String(), nil, &s)
	if s.InvestorFundsRaised != 5 {
		t.Errorf("scheme funds raised = %d, want 5", s.InvestorFundsRaised)
	}

	var acct token.Account
	e.call(nil, "GET", "/v1/accounts/"+source.String(), nil, &acct)
	if acct.Amount != 9500 {
		t.Errorf("holder balance = %d, want 9500", acct.Amount)
	}

	var cfg model.Configs
	e.call(nil, "GET", "/v1/configs", nil, &cfg)
	if len(cfg.Issuers) != 1 {
		t.Errorf("configs issuers = %d, want 1", len(cfg.Issuers))
	}

	// Selling 6 of 5 fails and leaves the investor unchanged.
	e.expectError(e.holder, "POST", "/v1/schemes/"+scheme.String()+"/sell",
		map[string]any{"destination": source.String(), "amount": 6},
		http.StatusBadRequest, ledger.ErrInsufficientFunds.Code)
	e.call(nil, "GET", "/v1/investors/"+owner.Investor.String(), nil, &inv)
	if inv.AvailableFunds != 5 {
		t.Errorf("investor funds after failed sell = %d, want 5", inv.AvailableFunds)
	}
}

func TestServer_ReplayedRequestRejected(t *testing.T) {
	e := newTestEnv(t)
	scheme := e.setup()
	source := token.AssociatedAddress(e.holder.Address, e.mint)

	path := "/v1/schemes/" + scheme.String() + "/buy"
	body := []byte(`{"source":"` + source.String() + `","amount":1}`)
	headers := e.holder.SignRequest("POST", path, body)

	send := func() int {
		req, err := http.NewRequest("POST", e.srv.URL+path, bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if got := send(); got != http.StatusOK {
		t.Fatalf("first buy status = %d, want 200", got)
	}
	if got := send(); got != http.StatusUnauthorized {
		t.Errorf("replayed buy status = %d, want 401", got)
	}

	var s model.TrustScheme
	e.call(nil, "GET", "/v1/schemes/"+scheme.String(), nil, &s)
	if s.InvestorFundsRaised != 1 {
		t.Errorf("scheme funds raised = %d, want 1", s.InvestorFundsRaised)
	}
}

func TestServer_ErrorMapping(t *testing.T) {
	e := newTestEnv(t)
	scheme := e.setup()
	stranger := mustCreds(t)

	tests := []struct {
		name       string
		creds      *auth.Credentials
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   uint32
		wantName   string
	}{
		{
			name: "duplicate init", creds: e.admin, method: "POST", path: "/v1/init",
			body: map[string]any{}, wantStatus: http.StatusConflict,
			wantCode: ledger.ErrAccountAlreadyInitialized.Code, wantName: "AccountAlreadyInitialized",
		},
		{
			name: "unsigned", creds: nil, method: "POST", path: "/v1/investors",
			body: map[string]any{"full_names": "A", "country": "KE"}, wantStatus: http.StatusUnauthorized,
			wantName: "Unauthenticated",
		},
		{
			name: "not the owner", creds: stranger, method: "POST", path: "/v1/schemes/" + scheme.String() + "/status",
			body: map[string]any{"active": false}, wantStatus: http.StatusForbidden,
			wantCode: ledger.ErrUnauthorized.Code, wantName: "Unauthorized",
		},
		{
			name: "unknown scheme", creds: nil, method: "GET", path: "/v1/schemes/" + stranger.Address.String(),
			wantStatus: http.StatusNotFound, wantCode: ledger.ErrAccountNotInitialized.Code, wantName: "AccountNotInitialized",
		},
		{
			name: "country length", creds: stranger, method: "POST", path: "/v1/investors",
			body: map[string]any{"full_names": "A", "country": "KENY"}, wantStatus: http.StatusBadRequest,
			wantCode: ledger.ErrInvalidCountryLength.Code, wantName: "InvalidCountryLength",
		},
		{
			name: "bad address", creds: e.holder, method: "POST", path: "/v1/schemes/" + scheme.String() + "/buy",
			body: map[string]any{"source": "not-an-address", "amount": 1}, wantStatus: http.StatusBadRequest,
			wantName: "InvalidRequest",
		},
		{
			name: "missing status", creds: e.admin, method: "POST", path: "/v1/schemes/" + scheme.String() + "/status",
			body: map[string]any{}, wantStatus: http.StatusBadRequest, wantName: "InvalidRequest",
		},
		{
			name: "unknown field", creds: e.holder, method: "POST", path: "/v1/investors",
			body: map[string]any{"fullnames": "A"}, wantStatus: http.StatusBadRequest, wantName: "InvalidRequest",
		},
		{
			name: "zero amount", creds: e.holder, method: "POST", path: "/v1/schemes/" + scheme.String() + "/buy",
			body: map[string]any{"source": token.AssociatedAddress(e.holder.Address, e.mint).String(), "amount": 0},
			wantStatus: http.StatusBadRequest, wantCode: ledger.ErrInvalidAmount.Code, wantName: "InvalidAmount",
		},
		{
			name: "unknown route", creds: nil, method: "GET", path: "/v1/nowhere",
			wantStatus: http.StatusNotFound, wantName: "NotFound",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			status := e.call(tt.creds, tt.method, tt.path, tt.body, &resp)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d (%+v)", status, tt.wantStatus, resp)
			}
			if resp.Code != tt.wantCode {
				t.Errorf("code = %d, want %d", resp.Code, tt.wantCode)
			}
			if resp.Name != tt.wantName {
				t.Errorf("name = %q, want %q", resp.Name, tt.wantName)
			}
		})
	}
}

func TestServer_StatusGates(t *testing.T) {
	e := newTestEnv(t)
	scheme := e.setup()
	source := token.AssociatedAddress(e.holder.Address, e.mint)

	var s model.TrustScheme
	if status := e.call(e.admin, "POST", "/v1/schemes/"+scheme.String()+"/status",
		map[string]any{"active": false}, &s); status != http.StatusOK {
		t.Fatalf("status change = %d, want 200", status)
	}
	if s.Active {
		t.Error("scheme still active")
	}

	e.expectError(e.holder, "POST", "/v1/schemes/"+scheme.String()+"/buy",
		map[string]any{"source": source.String(), "amount": 1},
		http.StatusConflict, ledger.ErrInvalidSchemeStatus.Code)
}

func TestServer_RequestID(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.srv.URL + "/v1/configs")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("response has no request ID")
	}

	req, _ := http.NewRequest("GET", e.srv.URL+"/health", nil)
	req.Header.Set(HeaderRequestID, "6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get(HeaderRequestID); got != "6ba7b810-9dad-11d1-80b4-00c04fd430c8" {
		t.Errorf("request ID = %q, want the client's", got)
	}
}

func TestServer_HealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)

	var health healthResponse
	if status := e.call(nil, "GET", "/health", nil, &health); status != http.StatusOK {
		t.Fatalf("health status = %d, want 200", status)
	}
	if health.Status != "healthy" || health.Components["store"] != "ok" {
		t.Errorf("health = %+v, want healthy store", health)
	}

	e.call(nil, "GET", "/v1/configs", nil, nil)

	resp, err := http.Get(e.srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `reits_http_requests_total{code="404",route="/v1/configs"} 1`) {
		t.Errorf("metrics missing configs request count:\n%s", body)
	}
}

func TestServer_Unhealthy(t *testing.T) {
	e := newTestEnv(t)
	e.server.deps.Health["database"] = func(context.Context) error { return errors.New("connection refused") }

	var health healthResponse
	if status := e.call(nil, "GET", "/health", nil, &health); status != http.StatusServiceUnavailable {
		t.Fatalf("health status = %d, want 503", status)
	}
	if health.Components["database"] != "connection refused" {
		t.Errorf("database component = %q, want the check error", health.Components["database"])
	}
}

func (e *testEnv) dialEvents(creds *auth.Credentials, query string) (*websocket.Conn, *http.Response, error) {
	path := "/v1/events"
	if query != "" {
		path += "?" + query
	}
	header := http.Header{}
	if creds != nil {
		for k, v := range creds.SignRequest("GET", path, nil) {
			header.Set(k, v)
		}
	}
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, header)
}

func TestServer_EventStream(t *testing.T) {
	e := newTestEnv(t)
	scheme := e.setup()
	source := token.AssociatedAddress(e.holder.Address, e.mint)

	conn, _, err := e.dialEvents(e.holder, "type=buy&address="+e.holder.Address.String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Wait for the subscription before trading.
	deadline := time.Now().Add(2 * time.Second)
	for e.hub.Stats().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	e.expect(e.admin, "POST", "/v1/investors", map[string]any{"full_names": "Admin", "country": "KE"}, http.StatusCreated)
	e.expect(e.holder, "POST", "/v1/schemes/"+scheme.String()+"/buy",
		map[string]any{"source": source.String(), "amount": 3}, http.StatusOK)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev events.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if ev.Type != events.TypeBuy || ev.Amount != 3 || ev.Scheme != scheme {
		t.Errorf("event = %+v, want buy of 3 on the scheme", ev)
	}
}

func TestServer_EventStreamRequiresSignature(t *testing.T) {
	e := newTestEnv(t)

	_, resp, err := e.dialEvents(nil, "")
	if err == nil {
		t.Fatal("dial without signature succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("response = %v, want 401", resp)
	}
}

func TestServer_ServeShutdown(t *testing.T) {
	e := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	s := e.server
	s.cfg.Addr = "127.0.0.1:0"
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  *ledger.Error
		want int
	}{
		{ledger.ErrInvalidIssuerLength, http.StatusBadRequest},
		{ledger.ErrInvalidArithmeticOperation, http.StatusBadRequest},
		{ledger.ErrInsufficientFunds, http.StatusBadRequest},
		{ledger.ErrMintDecimalsMismatch, http.StatusBadRequest},
		{ledger.ErrAccountNotInitialized, http.StatusNotFound},
		{ledger.ErrAccountAlreadyInitialized, http.StatusConflict},
		{ledger.ErrCapacityExceeded, http.StatusConflict},
		{ledger.ErrInvalidInvestorStatus, http.StatusConflict},
		{ledger.ErrUnauthorized, http.StatusForbidden},
		{ledger.ErrOwnerMismatch, http.StatusForbidden},
	}
	for _, tt := range tests {
		if got := StatusFor(tt.err); got != tt.want {
			t.Errorf("StatusFor(%s) = %d, want %d", tt.err.Name, got, tt.want)
		}
	}
}
