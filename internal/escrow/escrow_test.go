package escrow

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/pda"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

func fill(b byte) model.Address {
	var a model.Address
	for i := range a {
		a[i] = b
	}
	return a
}

var (
	programID = fill(0x42)
	deposit   = fill(0x07)
	mint      = fill(0x09)
)

func TestDerived_ProvisionDeterministic(t *testing.T) {
	d := NewDerived(programID)

	v1, err := d.Provision(deposit, mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	v2, err := d.Provision(deposit, mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if v1 != v2 {
		t.Errorf("Provision not deterministic: %+v != %+v", v1, v2)
	}

	other, err := d.Provision(fill(0x08), mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}
	if other.Address == v1.Address {
		t.Error("different deposits share a vault")
	}

	if pda.IsOnCurve(v1.Authority) || pda.IsOnCurve(v1.Address) {
		t.Error("derived address is on the curve")
	}
	if v1.TokenAccount != token.AssociatedAddress(v1.Address, mint) {
		t.Errorf("TokenAccount = %s, want associated account of vault", v1.TokenAccount)
	}
}

func TestDerived_AuthorizeResolvesToVault(t *testing.T) {
	d := NewDerived(programID)
	v, err := d.Provision(deposit, mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	signer, err := d.Authorize(v).Signer(programID)
	if err != nil {
		t.Fatalf("Signer failed: %v", err)
	}
	if signer != v.Address {
		t.Errorf("signer = %s, want %s", signer, v.Address)
	}

	if s, err := d.Authorize(v).Signer(fill(0x43)); err == nil && s == v.Address {
		t.Error("signature resolved to the vault under a foreign program")
	}
}

func TestDerived_VaultTransfer(t *testing.T) {
	s, err := store.OpenBadger(store.BadgerConfig{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("OpenBadger failed: %v", err)
	}
	defer s.Close()

	d := NewDerived(programID)
	program := token.NewProgram(programID)
	v, err := d.Provision(deposit, mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	admin, holder := fill(0x01), fill(0x02)
	holderTA := token.AssociatedAddress(holder, mint)
	ctx := context.Background()

	err = s.Update(ctx, nil, func(tx store.Tx) error {
		if _, err := program.CreateMint(tx, mint, 3, admin); err != nil {
			return err
		}
		if _, err := program.CreateAssociatedAccount(tx, v.Address, mint); err != nil {
			return err
		}
		if _, err := program.CreateAssociatedAccount(tx, holder, mint); err != nil {
			return err
		}
		return program.MintTo(tx, mint, v.TokenAccount, token.SignedBy(admin), 5000)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err = s.Update(ctx, nil, func(tx store.Tx) error {
		return program.TransferChecked(tx, v.TokenAccount, mint, holderTA, d.Authorize(v), 2000, 3)
	})
	if err != nil {
		t.Fatalf("vault transfer failed: %v", err)
	}

	// The administrator owns the deposit record but not the vault.
	err = s.Update(ctx, nil, func(tx store.Tx) error {
		return program.Transfer(tx, v.TokenAccount, holderTA, token.SignedBy(admin), 1)
	})
	if !errors.Is(err, token.ErrOwnerMismatch) {
		t.Errorf("admin transfer error = %v, want ErrOwnerMismatch", err)
	}

	err = s.View(ctx, func(tx store.Tx) error {
		a, err := program.Account(tx, holderTA)
		if err != nil {
			return err
		}
		if a.Amount != 2000 {
			t.Errorf("holder amount = %d, want 2000", a.Amount)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
}

func TestFromDepositBase(t *testing.T) {
	d := NewDerived(programID)
	v, err := d.Provision(deposit, mint)
	if err != nil {
		t.Fatalf("Provision failed: %v", err)
	}

	bump := v.Bump
	rec := &model.DepositBase{
		Address:           v.Deposit,
		AuthBump:          v.AuthorityBump,
		TreasuryVaultBump: &bump,
		VaultAuthority:    v.Authority,
		TreasuryVault:     v.Address,
		VaultTokenAccount: v.TokenAccount,
	}

	got, err := FromDepositBase(rec)
	if err != nil {
		t.Fatalf("FromDepositBase failed: %v", err)
	}
	if got != v {
		t.Errorf("FromDepositBase = %+v, want %+v", got, v)
	}

	rec.TreasuryVaultBump = nil
	if _, err := FromDepositBase(rec); err == nil {
		t.Error("FromDepositBase without bump succeeded, want error")
	}
}
