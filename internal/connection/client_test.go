package connection

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/server"
	"github.com/rickgao/reits-ledger/internal/store"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func mustCreds(t *testing.T) *auth.Credentials {
	t.Helper()
	c, err := auth.GenerateCredentials()
	if err != nil {
		t.Fatalf("GenerateCredentials failed: %v", err)
	}
	return c
}

// mockWSServer creates a test WebSocket server that checks the handshake
// signature before upgrading.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	verifier := auth.NewVerifier(time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != EventsPath {
			http.NotFound(w, r)
			return
		}
		if _, err := verifier.Verify(r.Header, r.Method, r.URL.RequestURI(), nil); err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func testConfig(url string, creds *auth.Credentials) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.Credentials = creds
	cfg.BufferSize = 100
	return cfg
}

func testEvent(t events.Type) events.Event {
	return events.New(t, model.Address{1}, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
}

func holdOpen(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestStreamURL(t *testing.T) {
	addr := model.Address{9}
	tests := []struct {
		name    string
		cfg     ClientConfig
		want    string
		wantErr bool
	}{
		{
			name: "http base",
			cfg:  ClientConfig{URL: "http://localhost:8080/"},
			want: "ws://localhost:8080/v1/events",
		},
		{
			name: "https with filters",
			cfg: ClientConfig{
				URL:       "https://ledger.example.com",
				Addresses: []model.Address{addr},
				Types:     []events.Type{events.TypeBuy, events.TypeSell},
			},
			want: "wss://ledger.example.com/v1/events?address=" + addr.String() + "&type=buy&type=sell",
		},
		{
			name: "ws passthrough",
			cfg:  ClientConfig{URL: "ws://127.0.0.1:9000"},
			want: "ws://127.0.0.1:9000/v1/events",
		},
		{
			name:    "unsupported scheme",
			cfg:     ClientConfig{URL: "ftp://example.com"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := streamURL(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Errorf("streamURL() = %s, want error", u)
				}
				return
			}
			if err != nil {
				t.Fatalf("streamURL() error = %v", err)
			}
			if u.String() != tt.want {
				t.Errorf("streamURL() = %s, want %s", u, tt.want)
			}
		})
	}
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	client := NewClient(testConfig(server.URL, mustCreds(t)), quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close error = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_ConnectWithFilters(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	cfg := testConfig(server.URL, mustCreds(t))
	cfg.Addresses = []model.Address{{4}, {5}}
	cfg.Types = []events.Type{events.TypeTransfer}

	client := NewClient(cfg, quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect with query failed: %v", err)
	}
	client.Close()
}

func TestClient_NoCredentials(t *testing.T) {
	client := NewClient(testConfig("http://127.0.0.1:1", nil), quiet)
	if err := client.Connect(context.Background()); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Connect error = %v, want ErrNoCredentials", err)
	}
}

func TestClient_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(testConfig(server.URL, mustCreds(t)), quiet)
	err := client.Connect(context.Background())

	var hsErr *HandshakeError
	if !errors.As(err, &hsErr) {
		t.Fatalf("Connect error = %v, want HandshakeError", err)
	}
	if hsErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("StatusCode = %d, want 401", hsErr.StatusCode)
	}
}

func TestClient_Events(t *testing.T) {
	want := testEvent(events.TypeBuy)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(want)
		holdOpen(conn)
	})
	defer server.Close()

	client := NewClient(testConfig(server.URL, mustCreds(t)), quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case got := <-client.Events():
		if got.Event.ID != want.ID || got.Event.Type != events.TypeBuy {
			t.Errorf("event = %s/%s, want %s/buy", got.Event.ID, got.Event.Type, want.ID)
		}
		if got.ReceivedAt.IsZero() {
			t.Error("ReceivedAt not set")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestClient_ErrorOnServerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	})
	defer server.Close()

	client := NewClient(testConfig(server.URL, mustCreds(t)), quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
			t.Errorf("error = %v, want going away close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for error")
	}
}

func TestClient_StaleConnection(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	cfg := testConfig(server.URL, mustCreds(t))
	cfg.PingTimeout = 100 * time.Millisecond

	client := NewClient(cfg, quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	select {
	case err := <-client.Errors():
		if !errors.Is(err, ErrStaleConnection) {
			t.Errorf("error = %v, want ErrStaleConnection", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for stale error")
	}
	if client.IsConnected() {
		t.Error("IsConnected = true after stale failure")
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, holdOpen)
	defer server.Close()

	client := NewClient(testConfig(server.URL, mustCreds(t)), quiet)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestStream_Reconnects(t *testing.T) {
	var conns atomic.Int32
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conns.Add(1)
		conn.WriteJSON(testEvent(events.TypeMintTo))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "restart"))
	})
	defer server.Close()

	cfg := DefaultStreamConfig()
	cfg.Client = testConfig(server.URL, mustCreds(t))
	cfg.ReconnectBaseWait = 10 * time.Millisecond
	cfg.ReconnectMaxWait = 20 * time.Millisecond

	stream := NewStream(cfg, quiet)
	if err := stream.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		select {
		case ev := <-stream.Events():
			if ev.Event.Type != events.TypeMintTo {
				t.Errorf("event type = %s, want mint_to", ev.Event.Type)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := stream.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	stats := stream.Stats()
	if stats.Reconnects < 2 {
		t.Errorf("Reconnects = %d, want at least 2", stats.Reconnects)
	}
	if stats.Received < 3 {
		t.Errorf("Received = %d, want at least 3", stats.Received)
	}
	if stats.Connected {
		t.Error("Connected = true after Stop")
	}
	for range stream.Events() {
	}
}

func TestStream_StartUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer server.Close()

	cfg := DefaultStreamConfig()
	cfg.Client = testConfig(server.URL, mustCreds(t))

	stream := NewStream(cfg, quiet)
	var hsErr *HandshakeError
	if err := stream.Start(context.Background()); !errors.As(err, &hsErr) {
		t.Errorf("Start error = %v, want HandshakeError", err)
	}
}

func TestStream_LedgerEvents(t *testing.T) {
	st, err := store.OpenBadger(store.BadgerConfig{InMemory: true}, quiet)
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	defer st.Close()

	hub := events.NewHub(events.DefaultHubConfig(), quiet)
	defer hub.Stop()

	engine, err := ledger.New(ledger.DefaultConfig(), st, ledger.WithPublisher(hub), ledger.WithLogger(quiet))
	if err != nil {
		t.Fatalf("ledger.New failed: %v", err)
	}
	srv, err := server.New(server.DefaultConfig(), server.Deps{
		Engine:   engine,
		Hub:      hub,
		Verifier: auth.NewVerifier(time.Minute),
	}, quiet)
	if err != nil {
		t.Fatalf("server.New failed: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	admin := mustCreds(t)
	cfg := DefaultStreamConfig()
	cfg.Client = testConfig(ts.URL, mustCreds(t))
	cfg.Client.Types = []events.Type{events.TypeInit}

	stream := NewStream(cfg, quiet)
	if err := stream.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer stream.Stop(context.Background())

	// The server subscribes just after the handshake completes.
	deadline := time.Now().Add(5 * time.Second)
	for hub.Stats().Subscribers == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := engine.CreateMint(context.Background(), admin.Address, ledger.CreateMintParams{
		Mint:     mustCreds(t).Address,
		Decimals: 2,
	}); err != nil {
		t.Fatalf("CreateMint failed: %v", err)
	}
	if _, err := engine.Init(context.Background(), admin.Address, ledger.InitParams{IsInitialized: true}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	select {
	case ev := <-stream.Events():
		if ev.Event.Type != events.TypeInit {
			t.Errorf("event type = %s, want init (mint_created is filtered)", ev.Event.Type)
		}
		if ev.Event.Caller != admin.Address {
			t.Errorf("caller = %s, want %s", ev.Event.Caller, admin.Address)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for init event")
	}
}
