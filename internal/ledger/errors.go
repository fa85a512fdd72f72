package ledger

import (
	"errors"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/fixedpoint"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/token"
)

// Category groups errors by how a caller should react to them.
type Category int

const (
	CategoryValidation Category = iota + 1
	CategoryState
	CategoryArithmetic
	CategoryFunds
	CategoryAuthorization
)

func (c Category) String() string {
	switch c {
	case CategoryValidation:
		return "validation"
	case CategoryState:
		return "state"
	case CategoryArithmetic:
		return "arithmetic"
	case CategoryFunds:
		return "funds"
	case CategoryAuthorization:
		return "authorization"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Error is a ledger failure with a stable numeric code.
type Error struct {
	Code     uint32
	Name     string
	Category Category
	Msg      string
}

func (e *Error) Error() string {
	return e.Msg
}

func newError(code uint32, name string, cat Category, msg string) *Error {
	return &Error{Code: code, Name: name, Category: cat, Msg: msg}
}

// Errors. Codes are stable and start at 6000.
var (
	ErrInvalidIssuerLength        = newError(6000, "InvalidIssuerLength", CategoryValidation, "invalid issuer length")
	ErrInvalidNameLength          = newError(6001, "InvalidNameLength", CategoryValidation, "invalid name length")
	ErrInvalidTypeOfReit          = newError(6002, "InvalidTypeOfReit", CategoryValidation, "invalid type of reit")
	ErrInvalidListingDateLength   = newError(6003, "InvalidListingDateLength", CategoryValidation, "invalid listing date length")
	ErrInvalidAmount              = newError(6004, "InvalidAmount", CategoryValidation, "invalid amount")
	ErrInvalidCountryLength       = newError(6005, "InvalidCountryLength", CategoryValidation, "invalid country length")
	ErrInvalidFullNamesLength     = newError(6006, "InvalidFullNamesLength", CategoryValidation, "invalid full names length")
	ErrAccountNotInitialized      = newError(6007, "AccountNotInitialized", CategoryState, "account is not initialized")
	ErrAccountAlreadyInitialized  = newError(6008, "AccountAlreadyInitialized", CategoryState, "account is already initialized")
	ErrInvalidArithmeticOperation = newError(6009, "InvalidArithmeticOperation", CategoryArithmetic, "invalid arithmetic operation")
	ErrInsufficientFunds          = newError(6010, "InsufficientFunds", CategoryFunds, "insufficient funds")
	ErrInvalidInvestorStatus      = newError(6011, "InvalidInvestorStatus", CategoryState, "invalid investor status")
	ErrInvalidNumeric             = newError(6012, "InvalidNumeric", CategoryValidation, "invalid numeric value")
	ErrCapacityExceeded           = newError(6013, "CapacityExceeded", CategoryState, "capacity exceeded")
	ErrInvalidSchemeStatus        = newError(6014, "InvalidSchemeStatus", CategoryState, "invalid scheme status")
	ErrUnauthorized               = newError(6015, "Unauthorized", CategoryAuthorization, "caller is not authorized")
	ErrOwnerMismatch              = newError(6016, "OwnerMismatch", CategoryAuthorization, "owner does not match")
	ErrMintDecimalsMismatch       = newError(6017, "MintDecimalsMismatch", CategoryValidation, "mint decimals do not match")
)

// AllErrors lists every ledger error in code order.
var AllErrors = []*Error{
	ErrInvalidIssuerLength,
	ErrInvalidNameLength,
	ErrInvalidTypeOfReit,
	ErrInvalidListingDateLength,
	ErrInvalidAmount,
	ErrInvalidCountryLength,
	ErrInvalidFullNamesLength,
	ErrAccountNotInitialized,
	ErrAccountAlreadyInitialized,
	ErrInvalidArithmeticOperation,
	ErrInsufficientFunds,
	ErrInvalidInvestorStatus,
	ErrInvalidNumeric,
	ErrCapacityExceeded,
	ErrInvalidSchemeStatus,
	ErrUnauthorized,
	ErrOwnerMismatch,
	ErrMintDecimalsMismatch,
}

// AsError returns the ledger error in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// ErrorByCode looks up an error by its code.
func ErrorByCode(code uint32) (*Error, bool) {
	for _, e := range AllErrors {
		if e.Code == code {
			return e, true
		}
	}
	return nil, false
}

// arithmetic collapses overflow and underflow into one category.
func arithmetic(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidArithmeticOperation, err)
}

// classify attaches a ledger error to failures from collaborators. Errors
// already carrying a ledger code pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	var code *Error
	switch {
	case errors.Is(err, token.ErrInsufficientFunds):
		code = ErrInsufficientFunds
	case errors.Is(err, token.ErrOwnerMismatch), errors.Is(err, token.ErrInvalidSignature):
		code = ErrOwnerMismatch
	case errors.Is(err, token.ErrDecimalsMismatch), errors.Is(err, token.ErrMintMismatch):
		code = ErrMintDecimalsMismatch
	case errors.Is(err, token.ErrOverflow),
		errors.Is(err, fixedpoint.ErrOverflow),
		errors.Is(err, fixedpoint.ErrUnderflow):
		code = ErrInvalidArithmeticOperation
	case errors.Is(err, token.ErrAccountNotFound), errors.Is(err, token.ErrMintNotFound):
		code = ErrAccountNotInitialized
	case errors.Is(err, token.ErrAccountExists):
		code = ErrAccountAlreadyInitialized
	case errors.Is(err, model.ErrCapacityExceeded):
		code = ErrCapacityExceeded
	case errors.Is(err, model.ErrUnknownReitType):
		code = ErrInvalidTypeOfReit
	default:
		return err
	}
	return fmt.Errorf("%w: %w", code, err)
}
