package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/api"
	"github.com/rickgao/reits-ledger/internal/model"
)

var cmdInit = &cobra.Command{
	Use:   "init",
	Short: "Initialize the ledger with the signing key as administrator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		client, err := newClient(true)
		if err != nil {
			return err
		}
		cfg, err := client.Init(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, cfg)
	},
}

var cmdRegisterScheme = &cobra.Command{
	Use:   "register-scheme",
	Short: "Register the signing key's trust scheme",
	Args:  cobra.NoArgs,
	RunE:  registerScheme,
}

var flagRegisterScheme struct {
	Issuer      string
	Name        string
	TypeOfReit  uint8
	ListingDate string
	Country     string
	UnitCost    uint32
	Decimals    uint8
	Mint        string
}

var cmdSchemeStatus = &cobra.Command{
	Use:   "scheme-status <scheme> <active>",
	Short: "Activate or deactivate a scheme",
	Args:  cobra.ExactArgs(2),
	RunE:  schemeStatus,
}

var cmdInvestorStatus = &cobra.Command{
	Use:   "investor-status <scheme> <investor> <active>",
	Short: "Activate or deactivate an investor of a scheme",
	Args:  cobra.ExactArgs(3),
	RunE:  investorStatus,
}

var cmdCreateMint = &cobra.Command{
	Use:   "create-mint <mint> <decimals>",
	Short: "Create a mint with the signing key as mint authority",
	Args:  cobra.ExactArgs(2),
	RunE:  createMint,
}

var cmdCreateAccount = &cobra.Command{
	Use:   "create-account <mint> [owner]",
	Short: "Create the associated token account of owner (default: the signing key)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  createAccount,
}

var cmdMintTo = &cobra.Command{
	Use:   "mint-to <mint> <destination> <amount>",
	Short: "Mint smallest units into a token account",
	Args:  cobra.ExactArgs(3),
	RunE:  mintTo,
}

func init() {
	cmdMain.AddCommand(cmdInit, cmdRegisterScheme, cmdSchemeStatus, cmdInvestorStatus,
		cmdCreateMint, cmdCreateAccount, cmdMintTo)

	f := cmdRegisterScheme.Flags()
	f.StringVar(&flagRegisterScheme.Issuer, "issuer", "", "Issuer name (1-50 bytes)")
	f.StringVar(&flagRegisterScheme.Name, "name", "", "Scheme name (1-50 bytes)")
	f.Uint8Var(&flagRegisterScheme.TypeOfReit, "type", 1, "REIT type: 1 development (D-REIT), 2 income (I-REIT)")
	f.StringVar(&flagRegisterScheme.ListingDate, "listing-date", "", "Listing date, YYYY-MM-DD")
	f.StringVar(&flagRegisterScheme.Country, "country", "", "Country code (2 or 3 bytes)")
	f.Uint32Var(&flagRegisterScheme.UnitCost, "unit-cost", 0, "Units issued per display unit paid")
	f.Uint8Var(&flagRegisterScheme.Decimals, "decimals", 0, "Decimals of the payment mint")
	f.StringVar(&flagRegisterScheme.Mint, "mint", "", "Payment mint address")
	for _, name := range []string{"issuer", "name", "listing-date", "country", "unit-cost", "mint"} {
		_ = cmdRegisterScheme.MarkFlagRequired(name)
	}
}

func registerScheme(cmd *cobra.Command, _ []string) error {
	mint, err := model.ParseAddress(flagRegisterScheme.Mint)
	if err != nil {
		return fmt.Errorf("--mint: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	reg, err := client.RegisterScheme(cmd.Context(), api.RegisterSchemeRequest{
		Issuer: api.Issuer{
			Issuer:      flagRegisterScheme.Issuer,
			Name:        flagRegisterScheme.Name,
			TypeOfReit:  flagRegisterScheme.TypeOfReit,
			ListingDate: flagRegisterScheme.ListingDate,
		},
		Country:  flagRegisterScheme.Country,
		UnitCost: flagRegisterScheme.UnitCost,
		Decimals: flagRegisterScheme.Decimals,
		Mint:     mint,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, reg)
}

func schemeStatus(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args[0])
	if err != nil {
		return err
	}
	active, err := strconv.ParseBool(args[1])
	if err != nil {
		return fmt.Errorf("active: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	scheme, err := client.SetSchemeStatus(cmd.Context(), addrs[0], active)
	if err != nil {
		return err
	}
	return printJSON(cmd, scheme)
}

func investorStatus(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args[0], args[1])
	if err != nil {
		return err
	}
	active, err := strconv.ParseBool(args[2])
	if err != nil {
		return fmt.Errorf("active: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	inv, err := client.SetInvestorStatus(cmd.Context(), addrs[0], addrs[1], active)
	if err != nil {
		return err
	}
	return printJSON(cmd, inv)
}

func createMint(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args[0])
	if err != nil {
		return err
	}
	decimals, err := strconv.ParseUint(args[1], 10, 8)
	if err != nil {
		return fmt.Errorf("decimals: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	mint, err := client.CreateMint(cmd.Context(), api.CreateMintRequest{Mint: addrs[0], Decimals: uint8(decimals)})
	if err != nil {
		return err
	}
	return printJSON(cmd, mint)
}

func createAccount(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	var req api.CreateAccountRequest
	if len(addrs) == 2 {
		req.Owner = &addrs[1]
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	acct, err := client.CreateAccount(cmd.Context(), addrs[0], req)
	if err != nil {
		return err
	}
	return printJSON(cmd, acct)
}

func mintTo(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args[0], args[1])
	if err != nil {
		return err
	}
	amount, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return err
	}
	acct, err := client.MintTo(cmd.Context(), addrs[0], api.MintToRequest{Destination: addrs[1], Amount: amount})
	if err != nil {
		return err
	}
	return printJSON(cmd, acct)
}
