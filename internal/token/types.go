package token

import (
	"errors"

	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/pda"
	"github.com/rickgao/reits-ledger/internal/store"
)

// Record kinds.
const (
	KindMint    store.Kind = "mint"
	KindAccount store.Kind = "token_account"
)

// Well-known program identities.
var (
	ProgramID           = model.MustParseAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedProgramID = model.MustParseAddress("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Errors
var (
	ErrAccountNotFound   = errors.New("token account not found")
	ErrMintNotFound      = errors.New("mint not found")
	ErrAccountExists     = errors.New("token account already exists")
	ErrOwnerMismatch     = errors.New("owner does not match")
	ErrMintMismatch      = errors.New("account mint does not match")
	ErrDecimalsMismatch  = errors.New("decimals do not match mint")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOverflow          = errors.New("amount overflow")
	ErrInvalidSignature  = errors.New("invalid signature")
)

// Mint describes a token.
type Mint struct {
	Address       model.Address `json:"address"`
	MintAuthority model.Address `json:"mint_authority"`
	Decimals      uint8         `json:"decimals"`
	Supply        uint64        `json:"supply"` // Smallest units
}

// Account holds a balance of one mint for one owner.
type Account struct {
	Address model.Address `json:"address"`
	Mint    model.Address `json:"mint"`
	Owner   model.Address `json:"owner"`
	Amount  uint64        `json:"amount"` // Smallest units
}

// Signature identifies who approved an instruction.
type Signature interface {
	// Signer resolves the signing address. signerProgram is the program
	// whose derived addresses may sign.
	Signer(signerProgram model.Address) (model.Address, error)
}

// callerSignature is a signature by an identity verified upstream.
type callerSignature model.Address

// SignedBy returns a signature for an authenticated caller.
func SignedBy(caller model.Address) Signature {
	return callerSignature(caller)
}

func (s callerSignature) Signer(model.Address) (model.Address, error) {
	return model.Address(s), nil
}

// DerivedSignature signs for a program address. Seeds must include the bump.
type DerivedSignature struct {
	Seeds [][]byte
}

// Signer re-derives the program address from the seeds.
func (s DerivedSignature) Signer(signerProgram model.Address) (model.Address, error) {
	addr, err := pda.CreateProgramAddress(s.Seeds, signerProgram)
	if err != nil {
		return model.Address{}, errors.Join(ErrInvalidSignature, err)
	}
	return addr, nil
}

// AssociatedAddress returns the canonical token account for owner and mint.
func AssociatedAddress(owner, mint model.Address) model.Address {
	return pda.MustFind([][]byte{owner[:], ProgramID[:], mint[:]}, AssociatedProgramID)
}
