package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
)

// Request bodies. Shape is checked here; lengths, amounts and codes are left
// to the engine so they fail with their ledger codes.

type initRequest struct {
	IsInitialized bool `json:"is_initialized"`
}

type issuerRequest struct {
	Issuer      string `json:"issuer"`
	Name        string `json:"name"`
	TypeOfReit  uint8  `json:"type_of_reit"`
	ListingDate string `json:"listing_date"`
}

type registerSchemeRequest struct {
	Issuer   issuerRequest `json:"issuer"`
	Country  string        `json:"country"`
	UnitCost uint32        `json:"unit_cost"`
	Decimals uint8         `json:"decimals"`
	Mint     string        `json:"mint" validate:"required,address"`
}

type registerInvestorRequest struct {
	FullNames string `json:"full_names"`
	Country   string `json:"country"`
}

type buyRequest struct {
	Source string `json:"source" validate:"required,address"`
	Amount uint64 `json:"amount"`
}

type sellRequest struct {
	Destination string `json:"destination" validate:"required,address"`
	Amount      uint64 `json:"amount"`
}

type transferRequest struct {
	From   string `json:"from" validate:"required,address"`
	To     string `json:"to" validate:"required,address"`
	Amount uint32 `json:"amount"`
}

type statusRequest struct {
	Active *bool `json:"active" validate:"required"`
}

type createMintRequest struct {
	Mint     string `json:"mint" validate:"required,address"`
	Decimals uint8  `json:"decimals"`
}

type createAccountRequest struct {
	Owner string `json:"owner" validate:"omitempty,address"`
}

type mintToRequest struct {
	Destination string `json:"destination" validate:"required,address"`
	Amount      uint64 `json:"amount"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("address", func(fl validator.FieldLevel) bool {
		_, err := model.ParseAddress(fl.Field().String())
		return err == nil
	})
	return v
}

// decode reads a JSON body into dst and validates its shape. It writes the
// error response itself and reports whether the handler should continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", "decode body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, 0, "InvalidRequest", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "address":
			msgs = append(msgs, fmt.Sprintf("%s is not a valid address: %q", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// pathAddress parses a route variable.
func pathAddress(r *http.Request, name string) (model.Address, error) {
	return model.ParseAddress(mux.Vars(r)[name])
}

// mustAddress parses an already validated address.
func mustAddress(s string) model.Address {
	if s == "" {
		return model.ZeroAddress
	}
	return model.MustParseAddress(s)
}

func (req registerSchemeRequest) params() ledger.RegisterSchemeParams {
	return ledger.RegisterSchemeParams{
		Issuer: ledger.IssuerParams{
			Issuer:      req.Issuer.Issuer,
			Name:        req.Issuer.Name,
			TypeOfReit:  req.Issuer.TypeOfReit,
			ListingDate: req.Issuer.ListingDate,
		},
		Country:  req.Country,
		UnitCost: req.UnitCost,
		Decimals: req.Decimals,
		Mint:     mustAddress(req.Mint),
	}
}
