package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rickgao/reits-ledger/internal/audit"
	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/token"
)

// Init creates the global configs with the caller as admin.
func (c *Client) Init(ctx context.Context) (*model.Configs, error) {
	var out model.Configs
	if err := c.post(ctx, "/v1/init", initRequest{IsInitialized: true}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterScheme registers the caller's trust scheme and its deposit vault.
func (c *Client) RegisterScheme(ctx context.Context, req RegisterSchemeRequest) (*ledger.Registration, error) {
	var out ledger.Registration
	if err := c.post(ctx, "/v1/schemes", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegisterInvestor registers the caller as an investor.
func (c *Client) RegisterInvestor(ctx context.Context, req RegisterInvestorRequest) (*model.Investor, error) {
	var out model.Investor
	if err := c.post(ctx, "/v1/investors", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Buy pays for units of scheme from the caller's source account.
func (c *Client) Buy(ctx context.Context, scheme model.Address, req BuyRequest) (*ledger.Trade, error) {
	var out ledger.Trade
	if err := c.post(ctx, "/v1/schemes/"+scheme.String()+"/buy", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Sell redeems units of scheme from its vault into the destination account.
func (c *Client) Sell(ctx context.Context, scheme model.Address, req SellRequest) (*ledger.Trade, error) {
	var out ledger.Trade
	if err := c.post(ctx, "/v1/schemes/"+scheme.String()+"/sell", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transfer moves tokens of scheme's mint between two accounts.
func (c *Client) Transfer(ctx context.Context, scheme model.Address, req TransferRequest) (*ledger.Transfer, error) {
	var out ledger.Transfer
	if err := c.post(ctx, "/v1/schemes/"+scheme.String()+"/transfer", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetSchemeStatus activates or deactivates the caller's scheme.
func (c *Client) SetSchemeStatus(ctx context.Context, scheme model.Address, active bool) (*model.TrustScheme, error) {
	var out model.TrustScheme
	if err := c.post(ctx, "/v1/schemes/"+scheme.String()+"/status", statusRequest{Active: active}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetInvestorStatus activates or deactivates an investor of the caller's scheme.
func (c *Client) SetInvestorStatus(ctx context.Context, scheme, investor model.Address, active bool) (*model.Investor, error) {
	var out model.Investor
	path := fmt.Sprintf("/v1/schemes/%s/investors/%s/status", scheme, investor)
	if err := c.post(ctx, path, statusRequest{Active: active}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateMint creates a mint with the caller as mint authority.
func (c *Client) CreateMint(ctx context.Context, req CreateMintRequest) (*token.Mint, error) {
	var out token.Mint
	if err := c.post(ctx, "/v1/mints", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAccount creates an associated token account for mint.
func (c *Client) CreateAccount(ctx context.Context, mint model.Address, req CreateAccountRequest) (*token.Account, error) {
	var out token.Account
	if err := c.post(ctx, "/v1/mints/"+mint.String()+"/accounts", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MintTo mints tokens into an account. The caller must be the mint authority.
func (c *Client) MintTo(ctx context.Context, mint model.Address, req MintToRequest) (*token.Account, error) {
	var out token.Account
	if err := c.post(ctx, "/v1/mints/"+mint.String()+"/mint-to", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Configs returns the global configs.
func (c *Client) Configs(ctx context.Context) (*model.Configs, error) {
	var out model.Configs
	if err := c.get(ctx, "/v1/configs", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Scheme returns a trust scheme by record address.
func (c *Client) Scheme(ctx context.Context, addr model.Address) (*model.TrustScheme, error) {
	var out model.TrustScheme
	if err := c.get(ctx, "/v1/schemes/"+addr.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Deposit returns the deposit base of a scheme.
func (c *Client) Deposit(ctx context.Context, scheme model.Address) (*model.DepositBase, error) {
	var out model.DepositBase
	if err := c.get(ctx, "/v1/schemes/"+scheme.String()+"/deposit", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Investor returns an investor by record address.
func (c *Client) Investor(ctx context.Context, addr model.Address) (*model.Investor, error) {
	var out model.Investor
	if err := c.get(ctx, "/v1/investors/"+addr.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Position returns owner's holding in a scheme.
func (c *Client) Position(ctx context.Context, scheme, owner model.Address) (*model.Position, error) {
	var out model.Position
	if err := c.get(ctx, "/v1/schemes/"+scheme.String()+"/positions/"+owner.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Account returns a token account.
func (c *Client) Account(ctx context.Context, addr model.Address) (*token.Account, error) {
	var out token.Account
	if err := c.get(ctx, "/v1/accounts/"+addr.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mint returns a mint.
func (c *Client) Mint(ctx context.Context, addr model.Address) (*token.Mint, error) {
	var out token.Mint
	if err := c.get(ctx, "/v1/mints/"+addr.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Owner returns the scheme and investor record addresses of an owner key.
func (c *Client) Owner(ctx context.Context, owner model.Address) (*OwnerAddresses, error) {
	var out OwnerAddresses
	if err := c.get(ctx, "/v1/owners/"+owner.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Audit returns the latest vault reconciliation.
func (c *Client) Audit(ctx context.Context) ([]audit.Result, error) {
	var out []audit.Result
	if err := c.get(ctx, "/v1/audit", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the daemon health report. An unhealthy daemon answers 503
// with a report, which is returned alongside the error.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/health", nil, false)
	var apiErr *APIError
	if err != nil && errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusServiceUnavailable {
		body = apiErr.Body
	} else if err != nil {
		return nil, err
	}

	var out Health
	if jerr := json.Unmarshal(body, &out); jerr != nil {
		return nil, fmt.Errorf("unmarshal response: %w", jerr)
	}
	return &out, err
}
