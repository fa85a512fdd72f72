package ledger

import (
	"fmt"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Field length limits, in bytes.
const (
	MaxIssuerLength      = 30
	MaxNameLength        = 30
	MaxListingDateLength = 20
	MaxFullNamesLength   = 50
)

// IssuerParams is the issuer profile supplied at scheme registration. The
// reit type arrives as a raw code and is parsed into model.ReitType.
type IssuerParams struct {
	Issuer      string `json:"issuer"`
	Name        string `json:"name"`
	TypeOfReit  uint8  `json:"type_of_reit"`
	ListingDate string `json:"listing_date"`
}

// validateIssuer checks the issuer profile and returns its canonical form.
func validateIssuer(p IssuerParams) (model.MarketIssuer, error) {
	if err := checkLength(p.Issuer, 1, MaxIssuerLength, ErrInvalidIssuerLength); err != nil {
		return model.MarketIssuer{}, err
	}
	if err := checkLength(p.Name, 1, MaxNameLength, ErrInvalidNameLength); err != nil {
		return model.MarketIssuer{}, err
	}
	reitType, err := model.ParseReitType(p.TypeOfReit)
	if err != nil {
		return model.MarketIssuer{}, fmt.Errorf("%w: %w", ErrInvalidTypeOfReit, err)
	}
	if err := checkLength(p.ListingDate, 1, MaxListingDateLength, ErrInvalidListingDateLength); err != nil {
		return model.MarketIssuer{}, err
	}

	return model.MarketIssuer{
		Issuer:      p.Issuer,
		Name:        p.Name,
		TypeOfReit:  reitType,
		ListingDate: p.ListingDate,
	}, nil
}

// validateCountry accepts 2 or 3 byte country codes.
func validateCountry(country string) error {
	if n := len(country); n != 2 && n != 3 {
		return fmt.Errorf("%w: %d bytes", ErrInvalidCountryLength, n)
	}
	return nil
}

func checkLength(s string, lo, hi int, code *Error) error {
	if n := len(s); n < lo || n > hi {
		return fmt.Errorf("%w: %d bytes, want %d-%d", code, n, lo, hi)
	}
	return nil
}

func checkAmount(amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return nil
}
