package ledger

import (
	"context"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
)

// RegisterInvestorParams are the parameters of RegisterInvestor.
type RegisterInvestorParams struct {
	FullNames string `json:"full_names"`
	Country   string `json:"country"`
}

// RegisterInvestor creates the active investor record owned by caller.
func (e *Engine) RegisterInvestor(ctx context.Context, caller model.Address, p RegisterInvestorParams) (*model.Investor, error) {
	if err := checkLength(p.FullNames, 1, MaxFullNamesLength, ErrInvalidFullNamesLength); err != nil {
		return nil, fmt.Errorf("register investor: %w", err)
	}
	if err := validateCountry(p.Country); err != nil {
		return nil, fmt.Errorf("register investor: %w", err)
	}

	addr, err := e.InvestorAddress(caller)
	if err != nil {
		return nil, err
	}
	inv := &model.Investor{
		Address:   addr,
		Owner:     caller,
		FullNames: p.FullNames,
		Country:   p.Country,
		Active:    true,
		CreatedAt: e.now().UTC(),
	}

	err = e.update(ctx, "register investor", []model.Address{addr}, func(tx store.Tx) (*events.Event, error) {
		if err := tx.Create(KindInvestor, addr, inv); err != nil {
			return nil, created(err)
		}
		ev := e.event(events.TypeInvestorRegistered, caller)
		ev.Investor = addr
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("investor registered", "investor", addr, "owner", caller)
	return inv, nil
}

// SetInvestorStatus activates or deactivates an investor. Only the owner of
// schemeAddr may call it.
func (e *Engine) SetInvestorStatus(ctx context.Context, caller, schemeAddr, investorAddr model.Address, active bool) (*model.Investor, error) {
	var inv *model.Investor
	keys := []model.Address{schemeAddr, investorAddr}
	err := e.update(ctx, "set investor status", keys, func(tx store.Tx) (*events.Event, error) {
		if _, err := e.ownedScheme(tx, caller, schemeAddr); err != nil {
			return nil, err
		}

		var err error
		inv, err = loaded[model.Investor](tx, KindInvestor, investorAddr)
		if err != nil {
			return nil, err
		}
		inv.Active = active
		if err := tx.Put(KindInvestor, investorAddr, inv); err != nil {
			return nil, err
		}

		ev := e.event(events.TypeInvestorStatus, caller)
		ev.Scheme = schemeAddr
		ev.Investor = investorAddr
		ev.Active = &active
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("investor status changed",
		"scheme", schemeAddr,
		"investor", investorAddr,
		"active", active,
	)
	return inv, nil
}
