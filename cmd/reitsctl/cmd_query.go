package main

import (
	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/fixedpoint"
	"github.com/rickgao/reits-ledger/internal/token"
)

var cmdConfigs = &cobra.Command{
	Use:   "configs",
	Short: "Show the global configs and issuer registry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient(false)
		if err != nil {
			return err
		}
		cfg, err := client.Configs(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

var cmdScheme = &cobra.Command{
	Use:   "scheme <scheme>",
	Short: "Show a trust scheme and its deposit vault",
	Args:  cobra.ExactArgs(1),
	RunE:  showScheme,
}

var cmdInvestor = &cobra.Command{
	Use:   "investor <investor>",
	Short: "Show an investor",
	Args:  cobra.ExactArgs(1),
	RunE:  showInvestor,
}

var cmdPosition = &cobra.Command{
	Use:   "position <scheme> [owner]",
	Short: "Show an investor's holding in one scheme (default owner: your key)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  showPosition,
}

var cmdAccount = &cobra.Command{
	Use:   "account <account>",
	Short: "Show a token account with its formatted balance",
	Args:  cobra.ExactArgs(1),
	RunE:  showAccount,
}

var cmdAudit = &cobra.Command{
	Use:   "audit",
	Short: "Show the latest vault reconciliation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient(false)
		if err != nil {
			return err
		}
		results, err := client.Audit(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, results)
	},
}

func init() {
	cmdMain.AddCommand(cmdConfigs, cmdScheme, cmdInvestor, cmdPosition, cmdAccount, cmdAudit)
}

func showScheme(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	client, err := newClient(false)
	if err != nil {
		return err
	}
	scheme, err := client.Scheme(cmd.Context(), addrs[0])
	if err != nil {
		return err
	}
	deposit, err := client.Deposit(cmd.Context(), addrs[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{
		"scheme":  scheme,
		"deposit": deposit,
	})
}

func showInvestor(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	client, err := newClient(false)
	if err != nil {
		return err
	}
	inv, err := client.Investor(cmd.Context(), addrs[0])
	if err != nil {
		return err
	}
	return printJSON(cmd, inv)
}

func showPosition(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	if len(addrs) == 1 {
		creds, err := loadCreds()
		if err != nil {
			return err
		}
		addrs = append(addrs, creds.Address)
	}
	client, err := newClient(false)
	if err != nil {
		return err
	}
	pos, err := client.Position(cmd.Context(), addrs[0], addrs[1])
	if err != nil {
		return err
	}
	return printJSON(cmd, pos)
}

// accountView is a token account with its balance in display units.
type accountView struct {
	*token.Account
	Decimals uint8  `json:"decimals"`
	Balance  string `json:"balance"`
}

func showAccount(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	client, err := newClient(false)
	if err != nil {
		return err
	}
	acct, err := client.Account(cmd.Context(), addrs[0])
	if err != nil {
		return err
	}
	mint, err := client.Mint(cmd.Context(), acct.Mint)
	if err != nil {
		return err
	}
	return printJSON(cmd, accountView{
		Account:  acct,
		Decimals: mint.Decimals,
		Balance:  fixedpoint.Format(acct.Amount, mint.Decimals),
	})
}
