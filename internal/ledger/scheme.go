package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/escrow"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

// RegisterSchemeParams are the parameters of RegisterScheme.
type RegisterSchemeParams struct {
	Issuer   IssuerParams  `json:"issuer"`
	Country  string        `json:"country"`
	UnitCost uint32        `json:"unit_cost"`
	Decimals uint8         `json:"decimals"`
	Mint     model.Address `json:"mint"`
}

// Registration is the result of RegisterScheme.
type Registration struct {
	Scheme  *model.TrustScheme `json:"scheme"`
	Deposit *model.DepositBase `json:"deposit"`
}

// RegisterScheme registers the scheme owned by caller, appends its issuer to
// the registry and provisions its escrow vault. Each administrator key owns
// at most one scheme.
func (e *Engine) RegisterScheme(ctx context.Context, caller model.Address, p RegisterSchemeParams) (*Registration, error) {
	issuer, err := validateIssuer(p.Issuer)
	if err != nil {
		return nil, fmt.Errorf("register scheme: %w", err)
	}
	if err := validateCountry(p.Country); err != nil {
		return nil, fmt.Errorf("register scheme: %w", err)
	}
	if p.Decimals == 0 {
		return nil, fmt.Errorf("register scheme: %w: decimals must be non-zero", ErrInvalidNumeric)
	}

	schemeAddr, err := e.SchemeAddress(caller)
	if err != nil {
		return nil, err
	}
	depositAddr, err := e.DepositAddress(schemeAddr)
	if err != nil {
		return nil, err
	}
	vault, err := e.authority.Provision(depositAddr, p.Mint)
	if err != nil {
		return nil, fmt.Errorf("register scheme: provision vault: %w", err)
	}

	bump := vault.Bump
	scheme := &model.TrustScheme{
		Address:          schemeAddr,
		Owner:            caller,
		Issuer:           issuer,
		Country:          p.Country,
		Active:           true,
		IsInitialized:    true,
		UnitCost:         p.UnitCost,
		Decimals:         p.Decimals,
		Mint:             p.Mint,
		Investors:        []model.Address{},
		InvestorCapacity: e.cfg.InvestorCapacity,
		CreatedAt:        e.now().UTC(),
	}
	deposit := &model.DepositBase{
		Address:           depositAddr,
		Owner:             caller,
		Scheme:            schemeAddr,
		AuthBump:          vault.AuthorityBump,
		TreasuryVaultBump: &bump,
		VaultAuthority:    vault.Authority,
		TreasuryVault:     vault.Address,
		VaultTokenAccount: vault.TokenAccount,
		IsInitialized:     true,
	}

	keys := []model.Address{e.configsAddr, schemeAddr, depositAddr, vault.TokenAccount, p.Mint}
	err = e.update(ctx, "register scheme", keys, func(tx store.Tx) (*events.Event, error) {
		cfg, err := loaded[model.Configs](tx, KindConfigs, e.configsAddr)
		if err != nil {
			return nil, err
		}
		if !cfg.IsInitialized {
			return nil, ErrAccountNotInitialized
		}

		mint, err := e.program.Mint(tx, p.Mint)
		if err != nil {
			return nil, err
		}
		if mint.Decimals != p.Decimals {
			return nil, fmt.Errorf("%w: scheme %d, mint %d", ErrMintDecimalsMismatch, p.Decimals, mint.Decimals)
		}

		if err := tx.Create(KindScheme, schemeAddr, scheme); err != nil {
			return nil, created(err)
		}

		if err := cfg.PushIssuer(issuer); err != nil {
			return nil, err
		}
		if err := tx.Put(KindConfigs, cfg.Address, cfg); err != nil {
			return nil, err
		}

		if err := e.openVaultAccount(tx, vault, p.Mint); err != nil {
			return nil, err
		}
		if err := tx.Create(KindDeposit, depositAddr, deposit); err != nil {
			return nil, created(err)
		}

		ev := e.event(events.TypeSchemeRegistered, caller)
		ev.Scheme = schemeAddr
		ev.Mint = p.Mint
		ev.To = vault.TokenAccount
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("scheme registered",
		"scheme", schemeAddr,
		"owner", caller,
		"issuer", issuer.Issuer,
		"type", issuer.TypeOfReit,
		"unit_cost", p.UnitCost,
		"decimals", p.Decimals,
		"vault", vault.TokenAccount,
	)
	return &Registration{Scheme: scheme, Deposit: deposit}, nil
}

// openVaultAccount creates the vault's token account. Vault addresses are
// derivable by anyone, so an account already created at the associated
// address is adopted when it holds mint for the vault.
func (e *Engine) openVaultAccount(tx store.Tx, vault escrow.Vault, mint model.Address) error {
	_, err := e.program.CreateAccount(tx, vault.TokenAccount, mint, vault.Address)
	if !errors.Is(err, token.ErrAccountExists) {
		return err
	}
	acct, err := e.program.Account(tx, vault.TokenAccount)
	if err != nil {
		return err
	}
	if acct.Mint != mint || acct.Owner != vault.Address {
		return fmt.Errorf("%w: vault account %s belongs to %s for mint %s",
			ErrOwnerMismatch, vault.TokenAccount, acct.Owner, acct.Mint)
	}
	return nil
}

// SetSchemeStatus activates or deactivates trading on the scheme owned by
// caller.
func (e *Engine) SetSchemeStatus(ctx context.Context, caller, schemeAddr model.Address, active bool) (*model.TrustScheme, error) {
	var scheme *model.TrustScheme
	err := e.update(ctx, "set scheme status", []model.Address{schemeAddr}, func(tx store.Tx) (*events.Event, error) {
		var err error
		scheme, err = e.ownedScheme(tx, caller, schemeAddr)
		if err != nil {
			return nil, err
		}
		scheme.Active = active
		if err := tx.Put(KindScheme, schemeAddr, scheme); err != nil {
			return nil, err
		}

		ev := e.event(events.TypeSchemeStatus, caller)
		ev.Scheme = schemeAddr
		ev.Active = &active
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("scheme status changed", "scheme", schemeAddr, "active", active)
	return scheme, nil
}

// ownedScheme loads an initialized scheme and checks caller owns it.
func (e *Engine) ownedScheme(tx store.Tx, caller, schemeAddr model.Address) (*model.TrustScheme, error) {
	scheme, err := e.initializedScheme(tx, schemeAddr)
	if err != nil {
		return nil, err
	}
	if scheme.Owner != caller {
		return nil, fmt.Errorf("%w: %s does not own scheme %s", ErrUnauthorized, caller, schemeAddr)
	}
	return scheme, nil
}

func (e *Engine) initializedScheme(tx store.Tx, schemeAddr model.Address) (*model.TrustScheme, error) {
	scheme, err := loaded[model.TrustScheme](tx, KindScheme, schemeAddr)
	if err != nil {
		return nil, err
	}
	if !scheme.IsInitialized {
		return nil, fmt.Errorf("%w: scheme %s", ErrAccountNotInitialized, schemeAddr)
	}
	return scheme, nil
}
