// Package escrow provisions scheme vaults and signs transfers out of them.
//
// A vault is owned by a program address derived from the scheme's deposit
// record. Nobody holds a key for it; the engine proves authority by handing
// the token program the seeds and bump that re-derive the owner.
package escrow

import (
	"fmt"

	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/pda"
	"github.com/rickgao/reits-ledger/internal/token"
)

// Seed prefixes.
const (
	SeedAuthority     = "auth"
	SeedTreasuryVault = "treasury-vault"
)

// Vault describes a provisioned escrow vault.
type Vault struct {
	Deposit       model.Address `json:"deposit"`
	Authority     model.Address `json:"authority"`
	AuthorityBump uint8         `json:"authority_bump"`
	Address       model.Address `json:"address"`
	Bump          uint8         `json:"bump"`
	TokenAccount  model.Address `json:"token_account"`
}

// Authority provisions vaults and authorizes outbound vault transfers.
type Authority interface {
	// Provision derives the vault for a deposit record holding mint. The
	// result depends only on its inputs.
	Provision(deposit, mint model.Address) (Vault, error)

	// Authorize returns the signature the token program accepts for the
	// vault's token account.
	Authorize(v Vault) token.Signature
}

// Derived is the Authority backed by program address derivation.
type Derived struct {
	programID model.Address
}

// NewDerived creates an Authority deriving addresses under programID. The
// token program must be configured with the same signer program.
func NewDerived(programID model.Address) *Derived {
	return &Derived{programID: programID}
}

// ProgramID returns the program the vault addresses are derived under.
func (d *Derived) ProgramID() model.Address {
	return d.programID
}

// Provision implements Authority.
func (d *Derived) Provision(deposit, mint model.Address) (Vault, error) {
	authority, authBump, err := pda.FindProgramAddress(
		[][]byte{[]byte(SeedAuthority), deposit[:]}, d.programID)
	if err != nil {
		return Vault{}, fmt.Errorf("derive vault authority: %w", err)
	}

	vault, bump, err := pda.FindProgramAddress(
		[][]byte{[]byte(SeedTreasuryVault), authority[:]}, d.programID)
	if err != nil {
		return Vault{}, fmt.Errorf("derive treasury vault: %w", err)
	}

	return Vault{
		Deposit:       deposit,
		Authority:     authority,
		AuthorityBump: authBump,
		Address:       vault,
		Bump:          bump,
		TokenAccount:  token.AssociatedAddress(vault, mint),
	}, nil
}

// Authorize implements Authority.
func (d *Derived) Authorize(v Vault) token.Signature {
	return token.DerivedSignature{Seeds: [][]byte{
		[]byte(SeedTreasuryVault),
		v.Authority.Bytes(),
		{v.Bump},
	}}
}

// FromDepositBase rebuilds the vault recorded in a deposit record.
func FromDepositBase(d *model.DepositBase) (Vault, error) {
	if d.TreasuryVaultBump == nil {
		return Vault{}, fmt.Errorf("deposit %s: treasury vault bump not recorded", d.Address)
	}
	return Vault{
		Deposit:       d.Address,
		Authority:     d.VaultAuthority,
		AuthorityBump: d.AuthBump,
		Address:       d.TreasuryVault,
		Bump:          *d.TreasuryVaultBump,
		TokenAccount:  d.VaultTokenAccount,
	}, nil
}
