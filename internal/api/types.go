package api

import (
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/version"
)

// Issuer describes the issuer of a scheme being registered.
type Issuer struct {
	Issuer      string `json:"issuer"`
	Name        string `json:"name"`
	TypeOfReit  uint8  `json:"type_of_reit"`
	ListingDate string `json:"listing_date"` // YYYY-MM-DD
}

// RegisterSchemeRequest registers the caller's trust scheme.
type RegisterSchemeRequest struct {
	Issuer   Issuer        `json:"issuer"`
	Country  string        `json:"country"`
	UnitCost uint32        `json:"unit_cost"`
	Decimals uint8         `json:"decimals"`
	Mint     model.Address `json:"mint"`
}

// RegisterInvestorRequest registers the caller as an investor.
type RegisterInvestorRequest struct {
	FullNames string `json:"full_names"`
	Country   string `json:"country"`
}

// BuyRequest buys units of a scheme. Amount is in display units.
type BuyRequest struct {
	Source model.Address `json:"source"`
	Amount uint64        `json:"amount"`
}

// SellRequest sells units of a scheme. Amount is in display units.
type SellRequest struct {
	Destination model.Address `json:"destination"`
	Amount      uint64        `json:"amount"`
}

// TransferRequest moves tokens between two accounts of the caller.
type TransferRequest struct {
	From   model.Address `json:"from"`
	To     model.Address `json:"to"`
	Amount uint32        `json:"amount"`
}

// CreateMintRequest creates a mint with the caller as authority.
type CreateMintRequest struct {
	Mint     model.Address `json:"mint"`
	Decimals uint8         `json:"decimals"`
}

// CreateAccountRequest creates the associated token account of Owner, or of
// the caller when Owner is nil.
type CreateAccountRequest struct {
	Owner *model.Address `json:"owner,omitempty"`
}

// MintToRequest mints smallest units into Destination.
type MintToRequest struct {
	Destination model.Address `json:"destination"`
	Amount      uint64        `json:"amount"`
}

type initRequest struct {
	IsInitialized bool `json:"is_initialized"`
}

type statusRequest struct {
	Active bool `json:"active"`
}

// OwnerAddresses are the record addresses derived from an owner key.
type OwnerAddresses struct {
	Owner    model.Address `json:"owner"`
	Scheme   model.Address `json:"scheme"`
	Investor model.Address `json:"investor"`
}

// Health is the daemon health report.
type Health struct {
	Status     string            `json:"status"`
	Version    version.Info      `json:"version"`
	Components map[string]string `json:"components"`
}

// Healthy reports whether every component passed.
func (h *Health) Healthy() bool {
	return h.Status == "healthy"
}
