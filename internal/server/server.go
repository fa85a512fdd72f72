package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/rickgao/reits-ledger/internal/audit"
	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/ledger"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr            string        // Listen address (default: :8080)
	ReadTimeout     time.Duration // default: 15s
	WriteTimeout    time.Duration // default: 15s
	ShutdownTimeout time.Duration // default: 10s
	MaxBodyBytes    int64         // default: 1 MiB
	PingInterval    time.Duration // Event stream keepalive (default: 15s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxBodyBytes:    1 << 20,
		PingInterval:    15 * time.Second,
	}
}

// Recorder observes HTTP traffic.
type Recorder interface {
	HTTPRequest(route, code string)
	StreamClientConnected(delta int)
}

type nopRecorder struct{}

func (nopRecorder) HTTPRequest(string, string) {}
func (nopRecorder) StreamClientConnected(int)  {}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators the server exposes.
type Deps struct {
	Engine   *ledger.Engine
	Hub      *events.Hub
	Verifier *auth.Verifier

	Recorder Recorder               // Optional
	Metrics  http.Handler           // Served at /metrics when set
	Health   map[string]HealthCheck // Checked by /health
	Audit    func() []audit.Result  // Served at /v1/audit when set
}

// Server is the ledger HTTP API.
type Server struct {
	cfg      Config
	deps     Deps
	logger   *slog.Logger
	validate *validator.Validate
	router   *mux.Router

	// streams is cancelled on shutdown; hijacked websocket connections are
	// not closed by http.Server.Shutdown.
	streams      context.Context
	closeStreams context.CancelFunc
	streamWG     sync.WaitGroup
}

// New creates a Server.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Engine == nil || deps.Hub == nil || deps.Verifier == nil {
		return nil, errors.New("server: engine, hub and verifier are required")
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}

	s := &Server{
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		validate: newValidator(),
	}
	s.streams, s.closeStreams = context.WithCancel(context.Background())
	s.router = s.routes()
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestID, s.observe)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, 0, "NotFound", "route not found")
	})

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.deps.Metrics != nil {
		r.Handle("/metrics", s.deps.Metrics).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()

	// Queries
	v1.HandleFunc("/configs", s.handleConfigs).Methods(http.MethodGet)
	v1.HandleFunc("/schemes/{scheme}", s.handleScheme).Methods(http.MethodGet)
	v1.HandleFunc("/schemes/{scheme}/deposit", s.handleDeposit).Methods(http.MethodGet)
	v1.HandleFunc("/schemes/{scheme}/positions/{owner}", s.handlePosition).Methods(http.MethodGet)
	v1.HandleFunc("/investors/{investor}", s.handleInvestor).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{account}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/mints/{mint}", s.handleMint).Methods(http.MethodGet)
	v1.HandleFunc("/owners/{owner}", s.handleOwner).Methods(http.MethodGet)
	if s.deps.Audit != nil {
		v1.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)
	}

	// Signed
	signed := v1.NewRoute().Subrouter()
	signed.Use(s.authenticate)
	signed.HandleFunc("/init", s.handleInit).Methods(http.MethodPost)
	signed.HandleFunc("/schemes", s.handleRegisterScheme).Methods(http.MethodPost)
	signed.HandleFunc("/investors", s.handleRegisterInvestor).Methods(http.MethodPost)
	signed.HandleFunc("/schemes/{scheme}/buy", s.handleBuy).Methods(http.MethodPost)
	signed.HandleFunc("/schemes/{scheme}/sell", s.handleSell).Methods(http.MethodPost)
	signed.HandleFunc("/schemes/{scheme}/transfer", s.handleTransfer).Methods(http.MethodPost)
	signed.HandleFunc("/schemes/{scheme}/status", s.handleSchemeStatus).Methods(http.MethodPost)
	signed.HandleFunc("/schemes/{scheme}/investors/{investor}/status", s.handleInvestorStatus).Methods(http.MethodPost)
	signed.HandleFunc("/mints", s.handleCreateMint).Methods(http.MethodPost)
	signed.HandleFunc("/mints/{mint}/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	signed.HandleFunc("/mints/{mint}/mint-to", s.handleMintTo).Methods(http.MethodPost)
	signed.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		ErrorLog:     slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.closeStreams()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()

	s.closeStreams()
	err := srv.Shutdown(shutdownCtx)
	s.streamWG.Wait()
	if err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
