package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/version"
)

// Queries

func (s *Server) handleConfigs(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.deps.Engine.Configs(r.Context())
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleScheme(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "scheme", func(ctx context.Context, addr model.Address) (any, error) {
		return s.deps.Engine.Scheme(ctx, addr)
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "scheme", func(ctx context.Context, addr model.Address) (any, error) {
		return s.deps.Engine.DepositBase(ctx, addr)
	})
}

func (s *Server) handleInvestor(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "investor", func(ctx context.Context, addr model.Address) (any, error) {
		return s.deps.Engine.Investor(ctx, addr)
	})
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", err.Error())
		return
	}
	s.query(w, r, "scheme", func(ctx context.Context, scheme model.Address) (any, error) {
		return s.deps.Engine.Position(ctx, scheme, owner)
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "account", func(ctx context.Context, addr model.Address) (any, error) {
		return s.deps.Engine.Account(ctx, addr)
	})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "mint", func(ctx context.Context, addr model.Address) (any, error) {
		return s.deps.Engine.Mint(ctx, addr)
	})
}

// OwnerAddresses are the record addresses derived from an owner key.
type OwnerAddresses struct {
	Owner    model.Address `json:"owner"`
	Scheme   model.Address `json:"scheme"`
	Investor model.Address `json:"investor"`
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	s.query(w, r, "owner", func(_ context.Context, owner model.Address) (any, error) {
		scheme, err := s.deps.Engine.SchemeAddress(owner)
		if err != nil {
			return nil, err
		}
		investor, err := s.deps.Engine.InvestorAddress(owner)
		if err != nil {
			return nil, err
		}
		return OwnerAddresses{Owner: owner, Scheme: scheme, Investor: investor}, nil
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Audit())
}

func (s *Server) query(w http.ResponseWriter, r *http.Request, param string, fn func(context.Context, model.Address) (any, error)) {
	addr, err := pathAddress(r, param)
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", err.Error())
		return
	}
	v, err := fn(r.Context(), addr)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Signed operations

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req initRequest
	if !s.decode(w, r, &req) {
		return
	}
	cfg, err := s.deps.Engine.Init(r.Context(), callerFrom(r.Context()), ledger.InitParams{IsInitialized: req.IsInitialized})
	s.respond(w, r, http.StatusCreated, cfg, err)
}

func (s *Server) handleRegisterScheme(w http.ResponseWriter, r *http.Request) {
	var req registerSchemeRequest
	if !s.decode(w, r, &req) {
		return
	}
	reg, err := s.deps.Engine.RegisterScheme(r.Context(), callerFrom(r.Context()), req.params())
	s.respond(w, r, http.StatusCreated, reg, err)
}

func (s *Server) handleRegisterInvestor(w http.ResponseWriter, r *http.Request) {
	var req registerInvestorRequest
	if !s.decode(w, r, &req) {
		return
	}
	inv, err := s.deps.Engine.RegisterInvestor(r.Context(), callerFrom(r.Context()), ledger.RegisterInvestorParams{
		FullNames: req.FullNames,
		Country:   req.Country,
	})
	s.respond(w, r, http.StatusCreated, inv, err)
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	scheme, ok := s.pathParam(w, r, "scheme")
	if !ok {
		return
	}
	var req buyRequest
	if !s.decode(w, r, &req) {
		return
	}
	trade, err := s.deps.Engine.Buy(r.Context(), callerFrom(r.Context()), ledger.BuyParams{
		Scheme: scheme,
		Source: mustAddress(req.Source),
		Amount: req.Amount,
	})
	s.respond(w, r, http.StatusOK, trade, err)
}

func (s *Server) handleSell(w http.ResponseWriter, r *http.Request) {
	scheme, ok := s.pathParam(w, r, "scheme")
	if !ok {
		return
	}
	var req sellRequest
	if !s.decode(w, r, &req) {
		return
	}
	trade, err := s.deps.Engine.Sell(r.Context(), callerFrom(r.Context()), ledger.SellParams{
		Scheme:      scheme,
		Destination: mustAddress(req.Destination),
		Amount:      req.Amount,
	})
	s.respond(w, r, http.StatusOK, trade, err)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	scheme, ok := s.pathParam(w, r, "scheme")
	if !ok {
		return
	}
	var req transferRequest
	if !s.decode(w, r, &req) {
		return
	}
	tr, err := s.deps.Engine.TransferToken(r.Context(), callerFrom(r.Context()), ledger.TransferParams{
		Scheme: scheme,
		From:   mustAddress(req.From),
		To:     mustAddress(req.To),
		Amount: req.Amount,
	})
	s.respond(w, r, http.StatusOK, tr, err)
}

func (s *Server) handleSchemeStatus(w http.ResponseWriter, r *http.Request) {
	scheme, ok := s.pathParam(w, r, "scheme")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.deps.Engine.SetSchemeStatus(r.Context(), callerFrom(r.Context()), scheme, *req.Active)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleInvestorStatus(w http.ResponseWriter, r *http.Request) {
	scheme, ok := s.pathParam(w, r, "scheme")
	if !ok {
		return
	}
	investor, ok := s.pathParam(w, r, "investor")
	if !ok {
		return
	}
	var req statusRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.deps.Engine.SetInvestorStatus(r.Context(), callerFrom(r.Context()), scheme, investor, *req.Active)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleCreateMint(w http.ResponseWriter, r *http.Request) {
	var req createMintRequest
	if !s.decode(w, r, &req) {
		return
	}
	mint, err := s.deps.Engine.CreateMint(r.Context(), callerFrom(r.Context()), ledger.CreateMintParams{
		Mint:     mustAddress(req.Mint),
		Decimals: req.Decimals,
	})
	s.respond(w, r, http.StatusCreated, mint, err)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathParam(w, r, "mint")
	if !ok {
		return
	}
	var req createAccountRequest
	if !s.decode(w, r, &req) {
		return
	}
	acct, err := s.deps.Engine.CreateAccount(r.Context(), callerFrom(r.Context()), ledger.CreateAccountParams{
		Mint:  mint,
		Owner: mustAddress(req.Owner),
	})
	s.respond(w, r, http.StatusCreated, acct, err)
}

func (s *Server) handleMintTo(w http.ResponseWriter, r *http.Request) {
	mint, ok := s.pathParam(w, r, "mint")
	if !ok {
		return
	}
	var req mintToRequest
	if !s.decode(w, r, &req) {
		return
	}
	acct, err := s.deps.Engine.MintTo(r.Context(), callerFrom(r.Context()), ledger.MintToParams{
		Mint:        mint,
		Destination: mustAddress(req.Destination),
		Amount:      req.Amount,
	})
	s.respond(w, r, http.StatusOK, acct, err)
}

func (s *Server) pathParam(w http.ResponseWriter, r *http.Request, name string) (model.Address, bool) {
	addr, err := pathAddress(r, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", name+": "+err.Error())
		return model.Address{}, false
	}
	return addr, true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, err error) {
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, status, v)
}

// Health

type healthResponse struct {
	Status     string            `json:"status"`
	Version    version.Info      `json:"version"`
	Components map[string]string `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{
		Status:     "healthy",
		Version:    version.Get(),
		Components: make(map[string]string),
	}
	for name, check := range s.deps.Health {
		if err := check(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components[name] = err.Error()
			continue
		}
		health.Components[name] = "ok"
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}
