package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/escrow"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/fixedpoint"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

// BuyParams are the parameters of Buy.
type BuyParams struct {
	Scheme model.Address `json:"scheme"`
	Source model.Address `json:"source"` // Caller's token account
	Amount uint64        `json:"amount"` // Display units
}

// SellParams are the parameters of Sell.
type SellParams struct {
	Scheme      model.Address `json:"scheme"`
	Destination model.Address `json:"destination"` // Receiving token account
	Amount      uint64        `json:"amount"`      // Display units
}

// TransferParams are the parameters of TransferToken.
type TransferParams struct {
	Scheme model.Address `json:"scheme"`
	From   model.Address `json:"from"`
	To     model.Address `json:"to"`
	Amount uint32        `json:"amount"` // Display units
}

// Trade is the result of a committed Buy or Sell.
type Trade struct {
	Scheme   *model.TrustScheme `json:"scheme"`
	Investor *model.Investor    `json:"investor"`
	Position *model.Position    `json:"position"`
	Units    uint64             `json:"units"`  // unit_cost * amount
	Scaled   uint64             `json:"scaled"` // Smallest units transferred
	From     model.Address      `json:"from"`
	To       model.Address      `json:"to"`
}

// Transfer is the result of a committed TransferToken.
type Transfer struct {
	Scaled uint64        `json:"scaled"`
	From   model.Address `json:"from"`
	To     model.Address `json:"to"`
}

// market holds the immutable parts of a scheme needed to lock a trade.
type market struct {
	scheme model.Address
	mint   model.Address
	vault  escrow.Vault
}

// loadMarket reads the scheme's mint and vault. Both are fixed at registration,
// so reading them before locking is safe.
func (e *Engine) loadMarket(ctx context.Context, schemeAddr model.Address) (market, error) {
	depositAddr, err := e.DepositAddress(schemeAddr)
	if err != nil {
		return market{}, err
	}
	return view(ctx, e, func(tx store.Tx) (market, error) {
		scheme, err := e.initializedScheme(tx, schemeAddr)
		if err != nil {
			return market{}, err
		}
		dep, err := loaded[model.DepositBase](tx, KindDeposit, depositAddr)
		if err != nil {
			return market{}, err
		}
		if !dep.IsInitialized {
			return market{}, fmt.Errorf("%w: deposit %s", ErrAccountNotInitialized, depositAddr)
		}
		vault, err := escrow.FromDepositBase(dep)
		if err != nil {
			return market{}, fmt.Errorf("%w: %w", ErrAccountNotInitialized, err)
		}
		return market{scheme: schemeAddr, mint: scheme.Mint, vault: vault}, nil
	})
}

// tradeState loads the scheme and investor for a trade and checks both may
// trade.
func (e *Engine) tradeState(tx store.Tx, caller, schemeAddr, investorAddr model.Address) (*model.TrustScheme, *model.Investor, error) {
	scheme, err := e.initializedScheme(tx, schemeAddr)
	if err != nil {
		return nil, nil, err
	}
	if !scheme.Active {
		return nil, nil, fmt.Errorf("%w: scheme %s is inactive", ErrInvalidSchemeStatus, schemeAddr)
	}

	inv, err := loaded[model.Investor](tx, KindInvestor, investorAddr)
	if err != nil {
		return nil, nil, err
	}
	if inv.Owner != caller {
		return nil, nil, fmt.Errorf("%w: investor %s", ErrOwnerMismatch, investorAddr)
	}
	if !inv.Active {
		return nil, nil, fmt.Errorf("%w: investor %s is inactive", ErrInvalidInvestorStatus, investorAddr)
	}
	return scheme, inv, nil
}

// openPosition loads inv's position in scheme, or starts an empty one.
func (e *Engine) openPosition(tx store.Tx, addr, scheme model.Address, inv *model.Investor) (*model.Position, bool, error) {
	pos, err := store.Load[model.Position](tx, KindPosition, addr)
	if err == nil {
		return pos, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	return &model.Position{
		Address:   addr,
		Scheme:    scheme,
		Investor:  inv.Address,
		Owner:     inv.Owner,
		CreatedAt: e.now().UTC(),
	}, true, nil
}

func savePosition(tx store.Tx, pos *model.Position, isNew bool) error {
	if isNew {
		return tx.Create(KindPosition, pos.Address, pos)
	}
	return tx.Put(KindPosition, pos.Address, pos)
}

// Buy issues amount units of the scheme to caller: the three counters grow
// and amount*10^decimals smallest units move from the caller's Source
// account into the scheme vault.
func (e *Engine) Buy(ctx context.Context, caller model.Address, p BuyParams) (*Trade, error) {
	if err := checkAmount(p.Amount); err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}
	investorAddr, err := e.InvestorAddress(caller)
	if err != nil {
		return nil, err
	}
	m, err := e.loadMarket(ctx, p.Scheme)
	if err != nil {
		return nil, fmt.Errorf("buy: %w", err)
	}

	positionAddr, err := e.PositionAddress(p.Scheme, caller)
	if err != nil {
		return nil, err
	}

	var trade *Trade
	keys := []model.Address{p.Scheme, investorAddr, positionAddr, p.Source, m.vault.TokenAccount, m.mint}
	err = e.update(ctx, "buy", keys, func(tx store.Tx) (*events.Event, error) {
		scheme, inv, err := e.tradeState(tx, caller, p.Scheme, investorAddr)
		if err != nil {
			return nil, err
		}
		pos, isNew, err := e.openPosition(tx, positionAddr, scheme.Address, inv)
		if err != nil {
			return nil, err
		}

		unit, err := fixedpoint.Mul(uint64(scheme.UnitCost), p.Amount)
		if err != nil {
			return nil, arithmetic(err)
		}
		if inv.TotalUnits, err = fixedpoint.Add(inv.TotalUnits, unit); err != nil {
			return nil, arithmetic(err)
		}
		if inv.AvailableFunds, err = fixedpoint.Add(inv.AvailableFunds, p.Amount); err != nil {
			return nil, arithmetic(err)
		}
		if pos.TotalUnits, err = fixedpoint.Add(pos.TotalUnits, unit); err != nil {
			return nil, arithmetic(err)
		}
		if pos.AvailableFunds, err = fixedpoint.Add(pos.AvailableFunds, p.Amount); err != nil {
			return nil, arithmetic(err)
		}
		if scheme.InvestorFundsRaised, err = fixedpoint.Add(scheme.InvestorFundsRaised, p.Amount); err != nil {
			return nil, arithmetic(err)
		}
		if err := scheme.EnrollInvestor(caller); err != nil {
			return nil, err
		}

		scaled, err := fixedpoint.ToSmallestUnit(p.Amount, scheme.Decimals)
		if err != nil {
			return nil, arithmetic(err)
		}

		err = e.program.TransferChecked(tx, p.Source, scheme.Mint, m.vault.TokenAccount,
			token.SignedBy(caller), scaled, scheme.Decimals)
		if err != nil {
			return nil, err
		}

		if err := tx.Put(KindScheme, scheme.Address, scheme); err != nil {
			return nil, err
		}
		if err := tx.Put(KindInvestor, inv.Address, inv); err != nil {
			return nil, err
		}
		if err := savePosition(tx, pos, isNew); err != nil {
			return nil, err
		}

		trade = &Trade{
			Scheme:   scheme,
			Investor: inv,
			Position: pos,
			Units:    unit,
			Scaled:   scaled,
			From:     p.Source,
			To:       m.vault.TokenAccount,
		}
		return e.tradeEvent(events.TypeBuy, caller, trade, p.Amount), nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("investment trusts bought",
		"scheme", p.Scheme,
		"investor", investorAddr,
		"amount", p.Amount,
		"units", trade.Units,
		"scaled", trade.Scaled,
	)
	return trade, nil
}

// Sell redeems amount units for caller: the three counters shrink and
// amount*10^decimals smallest units move from the scheme vault to
// Destination, signed by the vault authority. The caller's available funds
// in this scheme must strictly exceed amount.
func (e *Engine) Sell(ctx context.Context, caller model.Address, p SellParams) (*Trade, error) {
	if err := checkAmount(p.Amount); err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}
	investorAddr, err := e.InvestorAddress(caller)
	if err != nil {
		return nil, err
	}
	m, err := e.loadMarket(ctx, p.Scheme)
	if err != nil {
		return nil, fmt.Errorf("sell: %w", err)
	}

	positionAddr, err := e.PositionAddress(p.Scheme, caller)
	if err != nil {
		return nil, err
	}

	var trade *Trade
	keys := []model.Address{p.Scheme, investorAddr, positionAddr, p.Destination, m.vault.TokenAccount, m.mint}
	err = e.update(ctx, "sell", keys, func(tx store.Tx) (*events.Event, error) {
		scheme, inv, err := e.tradeState(tx, caller, p.Scheme, investorAddr)
		if err != nil {
			return nil, err
		}
		pos, err := store.Load[model.Position](tx, KindPosition, positionAddr)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: investor %s holds no units of scheme %s",
				ErrInvalidInvestorStatus, investorAddr, p.Scheme)
		}
		if err != nil {
			return nil, err
		}
		if pos.AvailableFunds <= p.Amount {
			return nil, fmt.Errorf("%w: available %d in scheme %s, amount %d",
				ErrInsufficientFunds, pos.AvailableFunds, p.Scheme, p.Amount)
		}

		unit, err := fixedpoint.Mul(uint64(scheme.UnitCost), p.Amount)
		if err != nil {
			return nil, arithmetic(err)
		}
		if pos.TotalUnits, err = fixedpoint.Sub(pos.TotalUnits, unit); err != nil {
			return nil, arithmetic(err)
		}
		if pos.AvailableFunds, err = fixedpoint.Sub(pos.AvailableFunds, p.Amount); err != nil {
			return nil, arithmetic(err)
		}
		if inv.TotalUnits, err = fixedpoint.Sub(inv.TotalUnits, unit); err != nil {
			return nil, arithmetic(err)
		}
		if inv.AvailableFunds, err = fixedpoint.Sub(inv.AvailableFunds, p.Amount); err != nil {
			return nil, arithmetic(err)
		}
		if scheme.InvestorFundsRaised, err = fixedpoint.Sub(scheme.InvestorFundsRaised, p.Amount); err != nil {
			return nil, arithmetic(err)
		}

		scaled, err := fixedpoint.ToSmallestUnit(p.Amount, scheme.Decimals)
		if err != nil {
			return nil, arithmetic(err)
		}

		err = e.program.TransferChecked(tx, m.vault.TokenAccount, scheme.Mint, p.Destination,
			e.authority.Authorize(m.vault), scaled, scheme.Decimals)
		if err != nil {
			return nil, err
		}

		if err := tx.Put(KindScheme, scheme.Address, scheme); err != nil {
			return nil, err
		}
		if err := tx.Put(KindInvestor, inv.Address, inv); err != nil {
			return nil, err
		}
		if err := tx.Put(KindPosition, pos.Address, pos); err != nil {
			return nil, err
		}

		trade = &Trade{
			Scheme:   scheme,
			Investor: inv,
			Position: pos,
			Units:    unit,
			Scaled:   scaled,
			From:     m.vault.TokenAccount,
			To:       p.Destination,
		}
		return e.tradeEvent(events.TypeSell, caller, trade, p.Amount), nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("investment trusts sold",
		"scheme", p.Scheme,
		"investor", investorAddr,
		"amount", p.Amount,
		"units", trade.Units,
		"scaled", trade.Scaled,
	)
	return trade, nil
}

func (e *Engine) tradeEvent(t events.Type, caller model.Address, trade *Trade, amount uint64) *events.Event {
	ev := e.event(t, caller)
	ev.Scheme = trade.Scheme.Address
	ev.Investor = trade.Investor.Address
	ev.Mint = trade.Scheme.Mint
	ev.From = trade.From
	ev.To = trade.To
	ev.Amount = amount
	ev.Scaled = trade.Scaled
	return ev
}

// TransferToken moves amount*10^decimals smallest units of the scheme's mint
// between two token accounts, authorized by caller. No ledger counter changes.
func (e *Engine) TransferToken(ctx context.Context, caller model.Address, p TransferParams) (*Transfer, error) {
	if err := checkAmount(uint64(p.Amount)); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	m, err := e.loadMarket(ctx, p.Scheme)
	if err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}

	var out *Transfer
	keys := []model.Address{p.Scheme, p.From, p.To, m.mint}
	err = e.update(ctx, "transfer", keys, func(tx store.Tx) (*events.Event, error) {
		scheme, err := e.initializedScheme(tx, p.Scheme)
		if err != nil {
			return nil, err
		}

		scaled, err := fixedpoint.ToSmallestUnit(uint64(p.Amount), scheme.Decimals)
		if err != nil {
			return nil, arithmetic(err)
		}
		err = e.program.TransferChecked(tx, p.From, scheme.Mint, p.To,
			token.SignedBy(caller), scaled, scheme.Decimals)
		if err != nil {
			return nil, err
		}

		out = &Transfer{Scaled: scaled, From: p.From, To: p.To}

		ev := e.event(events.TypeTransfer, caller)
		ev.Scheme = p.Scheme
		ev.Mint = scheme.Mint
		ev.From = p.From
		ev.To = p.To
		ev.Amount = uint64(p.Amount)
		ev.Scaled = scaled
		return ev, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("tokens transferred",
		"scheme", p.Scheme,
		"from", p.From,
		"to", p.To,
		"scaled", out.Scaled,
	)
	return out, nil
}
