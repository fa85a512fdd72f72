package token

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
)

// Program executes token instructions.
type Program struct {
	signerProgram model.Address
}

// NewProgram creates a Program that accepts derived signatures for program
// addresses of signerProgram.
func NewProgram(signerProgram model.Address) *Program {
	return &Program{signerProgram: signerProgram}
}

// SignerProgram returns the program whose derived addresses may sign.
func (p *Program) SignerProgram() model.Address {
	return p.signerProgram
}

// CreateMint creates a new mint with zero supply.
func (p *Program) CreateMint(tx store.Tx, addr model.Address, decimals uint8, authority model.Address) (*Mint, error) {
	m := &Mint{
		Address:       addr,
		MintAuthority: authority,
		Decimals:      decimals,
	}
	if err := tx.Create(KindMint, addr, m); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("create mint %s: %w", addr, ErrAccountExists)
		}
		return nil, fmt.Errorf("create mint %s: %w", addr, err)
	}
	return m, nil
}

// CreateAccount creates an empty token account.
func (p *Program) CreateAccount(tx store.Tx, addr, mint, owner model.Address) (*Account, error) {
	if _, err := p.Mint(tx, mint); err != nil {
		return nil, err
	}

	a := &Account{
		Address: addr,
		Mint:    mint,
		Owner:   owner,
	}
	if err := tx.Create(KindAccount, addr, a); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("create account %s: %w", addr, ErrAccountExists)
		}
		return nil, fmt.Errorf("create account %s: %w", addr, err)
	}
	return a, nil
}

// CreateAssociatedAccount creates the canonical account for owner and mint.
func (p *Program) CreateAssociatedAccount(tx store.Tx, owner, mint model.Address) (*Account, error) {
	return p.CreateAccount(tx, AssociatedAddress(owner, mint), mint, owner)
}

// Mint loads a mint.
func (p *Program) Mint(tx store.Tx, addr model.Address) (*Mint, error) {
	m, err := store.Load[Mint](tx, KindMint, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("mint %s: %w", addr, ErrMintNotFound)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Account loads a token account.
func (p *Program) Account(tx store.Tx, addr model.Address) (*Account, error) {
	a, err := store.Load[Account](tx, KindAccount, addr)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("account %s: %w", addr, ErrAccountNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Balance returns the amount held by a token account, in smallest units.
func (p *Program) Balance(tx store.Tx, addr model.Address) (uint64, error) {
	a, err := p.Account(tx, addr)
	if err != nil {
		return 0, err
	}
	return a.Amount, nil
}

// MintTo issues new tokens into dest. sig must resolve to the mint authority.
func (p *Program) MintTo(tx store.Tx, mintAddr, dest model.Address, sig Signature, amount uint64) error {
	m, err := p.Mint(tx, mintAddr)
	if err != nil {
		return err
	}
	if err := p.verify(sig, m.MintAuthority); err != nil {
		return fmt.Errorf("mint to %s: %w", dest, err)
	}

	acct, err := p.Account(tx, dest)
	if err != nil {
		return err
	}
	if acct.Mint != m.Address {
		return fmt.Errorf("mint to %s: %w", dest, ErrMintMismatch)
	}

	if m.Supply, err = add(m.Supply, amount); err != nil {
		return fmt.Errorf("mint to %s: supply: %w", dest, err)
	}
	if acct.Amount, err = add(acct.Amount, amount); err != nil {
		return fmt.Errorf("mint to %s: %w", dest, err)
	}

	if err := tx.Put(KindMint, m.Address, m); err != nil {
		return err
	}
	return tx.Put(KindAccount, acct.Address, acct)
}

// Transfer moves amount from one account to another. sig must resolve to
// the source account owner.
func (p *Program) Transfer(tx store.Tx, from, to model.Address, sig Signature, amount uint64) error {
	src, dst, err := p.loadPair(tx, from, to)
	if err != nil {
		return err
	}
	if err := p.verify(sig, src.Owner); err != nil {
		return fmt.Errorf("transfer from %s: %w", from, err)
	}
	return p.move(tx, src, dst, amount)
}

// TransferChecked is Transfer that also requires both accounts to hold mint
// and decimals to equal the mint's decimals.
func (p *Program) TransferChecked(tx store.Tx, from, mintAddr, to model.Address, sig Signature, amount uint64, decimals uint8) error {
	m, err := p.Mint(tx, mintAddr)
	if err != nil {
		return err
	}
	if m.Decimals != decimals {
		return fmt.Errorf("transfer from %s: %w: got %d, mint has %d", from, ErrDecimalsMismatch, decimals, m.Decimals)
	}

	src, dst, err := p.loadPair(tx, from, to)
	if err != nil {
		return err
	}
	if src.Mint != m.Address || dst.Mint != m.Address {
		return fmt.Errorf("transfer from %s: %w", from, ErrMintMismatch)
	}
	if err := p.verify(sig, src.Owner); err != nil {
		return fmt.Errorf("transfer from %s: %w", from, err)
	}
	return p.move(tx, src, dst, amount)
}

func (p *Program) loadPair(tx store.Tx, from, to model.Address) (*Account, *Account, error) {
	src, err := p.Account(tx, from)
	if err != nil {
		return nil, nil, err
	}
	dst, err := p.Account(tx, to)
	if err != nil {
		return nil, nil, err
	}
	if src.Mint != dst.Mint {
		return nil, nil, fmt.Errorf("transfer from %s to %s: %w", from, to, ErrMintMismatch)
	}
	return src, dst, nil
}

func (p *Program) move(tx store.Tx, src, dst *Account, amount uint64) error {
	if src.Amount < amount {
		return fmt.Errorf("transfer from %s: %w: balance %d, amount %d", src.Address, ErrInsufficientFunds, src.Amount, amount)
	}
	if src.Address == dst.Address {
		return nil
	}

	var err error
	src.Amount -= amount
	if dst.Amount, err = add(dst.Amount, amount); err != nil {
		return fmt.Errorf("transfer to %s: %w", dst.Address, err)
	}

	if err := tx.Put(KindAccount, src.Address, src); err != nil {
		return err
	}
	return tx.Put(KindAccount, dst.Address, dst)
}

func (p *Program) verify(sig Signature, owner model.Address) error {
	if sig == nil {
		return ErrInvalidSignature
	}
	signer, err := sig.Signer(p.signerProgram)
	if err != nil {
		return err
	}
	if signer != owner {
		return fmt.Errorf("%w: signer %s, owner %s", ErrOwnerMismatch, signer, owner)
	}
	return nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}
