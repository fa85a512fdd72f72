package ledger

import (
	"context"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/fixedpoint"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

// CreateMintParams are the parameters of CreateMint.
type CreateMintParams struct {
	Mint     model.Address `json:"mint"`
	Decimals uint8         `json:"decimals"`
}

// CreateMint creates a mint with caller as its mint authority.
func (e *Engine) CreateMint(ctx context.Context, caller model.Address, p CreateMintParams) (*token.Mint, error) {
	if p.Mint.IsZero() {
		return nil, fmt.Errorf("create mint: %w: mint address is required", ErrInvalidNumeric)
	}
	if _, err := fixedpoint.Pow10(p.Decimals); err != nil {
		return nil, fmt.Errorf("create mint: %w: %d decimals", ErrInvalidNumeric, p.Decimals)
	}

	var mint *token.Mint
	err := e.update(ctx, "create mint", []model.Address{p.Mint}, func(tx store.Tx) (*events.Event, error) {
		var err error
		if mint, err = e.program.CreateMint(tx, p.Mint, p.Decimals, caller); err != nil {
			return nil, err
		}
		ev := e.event(events.TypeMintCreated, caller)
		ev.Mint = p.Mint
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("mint created", "mint", p.Mint, "decimals", p.Decimals, "authority", caller)
	return mint, nil
}

// CreateAccountParams are the parameters of CreateAccount.
type CreateAccountParams struct {
	Mint  model.Address `json:"mint"`
	Owner model.Address `json:"owner"` // Default: caller
}

// CreateAccount creates the associated token account of Owner for Mint.
func (e *Engine) CreateAccount(ctx context.Context, caller model.Address, p CreateAccountParams) (*token.Account, error) {
	owner := p.Owner
	if owner.IsZero() {
		owner = caller
	}
	addr := token.AssociatedAddress(owner, p.Mint)

	var acct *token.Account
	err := e.update(ctx, "create account", []model.Address{addr, p.Mint}, func(tx store.Tx) (*events.Event, error) {
		var err error
		if acct, err = e.program.CreateAccount(tx, addr, p.Mint, owner); err != nil {
			return nil, err
		}
		ev := e.event(events.TypeAccountCreated, caller)
		ev.Mint = p.Mint
		ev.To = addr
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("token account created", "account", addr, "mint", p.Mint, "owner", owner)
	return acct, nil
}

// MintToParams are the parameters of MintTo.
type MintToParams struct {
	Mint        model.Address `json:"mint"`
	Destination model.Address `json:"destination"`
	Amount      uint64        `json:"amount"` // Display units
}

// MintTo issues Amount display units of Mint into Destination. Only the mint
// authority may call it.
func (e *Engine) MintTo(ctx context.Context, caller model.Address, p MintToParams) (*token.Account, error) {
	if err := checkAmount(p.Amount); err != nil {
		return nil, fmt.Errorf("mint to: %w", err)
	}

	var acct *token.Account
	keys := []model.Address{p.Mint, p.Destination}
	err := e.update(ctx, "mint to", keys, func(tx store.Tx) (*events.Event, error) {
		mint, err := e.program.Mint(tx, p.Mint)
		if err != nil {
			return nil, err
		}
		scaled, err := fixedpoint.ToSmallestUnit(p.Amount, mint.Decimals)
		if err != nil {
			return nil, arithmetic(err)
		}
		if err := e.program.MintTo(tx, p.Mint, p.Destination, token.SignedBy(caller), scaled); err != nil {
			return nil, err
		}
		if acct, err = e.program.Account(tx, p.Destination); err != nil {
			return nil, err
		}

		ev := e.event(events.TypeMintTo, caller)
		ev.Mint = p.Mint
		ev.To = p.Destination
		ev.Amount = p.Amount
		ev.Scaled = scaled
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("tokens minted", "mint", p.Mint, "destination", p.Destination, "amount", p.Amount)
	return acct, nil
}
