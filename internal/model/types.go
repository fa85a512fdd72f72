package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrCapacityExceeded is returned when a bounded list is full.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// ErrUnknownReitType is returned for a reit type code outside the enumeration.
var ErrUnknownReitType = errors.New("unknown reit type")

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// ReitType classifies a real estate investment trust scheme.
type ReitType uint8

const (
	ReitTypeDevelopment ReitType = 1 // D-REIT
	ReitTypeIncome      ReitType = 2 // I-REIT
)

// ParseReitType converts a raw type code into a ReitType.
func ParseReitType(code uint8) (ReitType, error) {
	switch t := ReitType(code); t {
	case ReitTypeDevelopment, ReitTypeIncome:
		return t, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownReitType, code)
	}
}

// String returns the market abbreviation.
func (t ReitType) String() string {
	switch t {
	case ReitTypeDevelopment:
		return "D-REIT"
	case ReitTypeIncome:
		return "I-REIT"
	default:
		return fmt.Sprintf("ReitType(%d)", uint8(t))
	}
}

// -----------------------------------------------------------------------------
// Registry Types
// -----------------------------------------------------------------------------

// MarketIssuer describes who issues a scheme and how it is listed.
type MarketIssuer struct {
	Issuer      string   `json:"issuer"`       // Issuing institution (1-30 bytes)
	Name        string   `json:"name"`         // Product name (1-30 bytes)
	TypeOfReit  ReitType `json:"type_of_reit"` // D-REIT or I-REIT
	ListingDate string   `json:"listing_date"` // Free-form listing date (1-20 bytes)
}

// Configs is the process-wide singleton created by Init. It collects a
// snapshot of every registered issuer.
type Configs struct {
	Address       Address        `json:"address"`
	Owner         Address        `json:"owner"`
	Issuers       []MarketIssuer `json:"issuers"`
	Capacity      int            `json:"capacity"`
	IsInitialized bool           `json:"is_initialized"`
}

// PushIssuer appends an issuer snapshot, failing once Capacity is reached.
func (c *Configs) PushIssuer(issuer MarketIssuer) error {
	if len(c.Issuers) >= c.Capacity {
		return fmt.Errorf("%w: issuer registry holds %d", ErrCapacityExceeded, c.Capacity)
	}
	c.Issuers = append(c.Issuers, issuer)
	return nil
}

// TrustScheme is a registered investment-trust product.
type TrustScheme struct {
	Address             Address      `json:"address"`
	Owner               Address      `json:"owner"` // Registering administrator
	Issuer              MarketIssuer `json:"issuer"`
	Country             string       `json:"country"` // 2 or 3 byte code
	Active              bool         `json:"active"`
	IsInitialized       bool         `json:"is_initialized"`
	InvestorFundsRaised uint64       `json:"investor_funds_raised"` // Display units
	UnitCost            uint32       `json:"unit_cost_of_investment_trusts"`
	Decimals            uint8        `json:"decimals"`
	Mint                Address      `json:"mint"`
	Investors           []Address    `json:"investors"`
	InvestorCapacity    int          `json:"investor_capacity"`
	CreatedAt           time.Time    `json:"created_at"`
}

// HasInvestor reports whether owner is enrolled in the scheme.
func (s *TrustScheme) HasInvestor(owner Address) bool {
	for _, a := range s.Investors {
		if a == owner {
			return true
		}
	}
	return false
}

// EnrollInvestor records owner in the scheme's bounded investor list. It is a
// no-op for an already enrolled investor.
func (s *TrustScheme) EnrollInvestor(owner Address) error {
	if s.HasInvestor(owner) {
		return nil
	}
	if len(s.Investors) >= s.InvestorCapacity {
		return fmt.Errorf("%w: scheme holds %d investors", ErrCapacityExceeded, s.InvestorCapacity)
	}
	s.Investors = append(s.Investors, owner)
	return nil
}

// Investor is a registered holder of investment-trust units.
type Investor struct {
	Address        Address   `json:"address"`
	Owner          Address   `json:"owner"`
	FullNames      string    `json:"full_names"` // 1-50 bytes
	Country        string    `json:"country"`    // 2 or 3 byte code
	Active         bool      `json:"active"`
	TotalUnits     uint64    `json:"total_units_investment_trusts"`
	AvailableFunds uint64    `json:"available_funds"` // Display units
	CreatedAt      time.Time `json:"created_at"`
}

// Position is an investor's holding in one scheme. The investor record
// carries the totals across every scheme; a sell is bounded by the position.
type Position struct {
	Address        Address   `json:"address"`
	Scheme         Address   `json:"scheme"`
	Investor       Address   `json:"investor"`
	Owner          Address   `json:"owner"`
	TotalUnits     uint64    `json:"total_units_investment_trusts"`
	AvailableFunds uint64    `json:"available_funds"` // Display units
	CreatedAt      time.Time `json:"created_at"`
}

// DepositBase records how a scheme's escrow vault was derived.
type DepositBase struct {
	Address           Address `json:"address"`
	Owner             Address `json:"owner"`
	Scheme            Address `json:"scheme"`
	AuthBump          uint8   `json:"admin_auth_bump"`
	TreasuryVaultBump *uint8  `json:"admin_treasury_vault_bump,omitempty"`
	VaultAuthority    Address `json:"vault_authority"`
	TreasuryVault     Address `json:"treasury_vault"`
	VaultTokenAccount Address `json:"vault_token_account"`
	IsInitialized     bool    `json:"is_initialized"`
}
