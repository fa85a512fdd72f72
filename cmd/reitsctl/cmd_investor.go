package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/api"
	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/token"
)

var cmdRegisterInvestor = &cobra.Command{
	Use:   "register-investor <full names> <country>",
	Short: "Register the signing key as an investor",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(true)
		if err != nil {
			return err
		}
		inv, err := client.RegisterInvestor(cmd.Context(), api.RegisterInvestorRequest{
			FullNames: args[0],
			Country:   args[1],
		})
		if err != nil {
			return err
		}
		return printJSON(cmd, inv)
	},
}

var cmdBuy = &cobra.Command{
	Use:   "buy <scheme> <amount>",
	Short: "Buy units of a scheme, paying amount display units",
	Args:  cobra.ExactArgs(2),
	RunE:  buy,
}

var cmdSell = &cobra.Command{
	Use:   "sell <scheme> <amount>",
	Short: "Sell units of a scheme for amount display units",
	Args:  cobra.ExactArgs(2),
	RunE:  sell,
}

var cmdTransfer = &cobra.Command{
	Use:   "transfer <scheme> <to> <amount>",
	Short: "Transfer display units of a scheme's mint to another token account",
	Args:  cobra.ExactArgs(3),
	RunE:  transfer,
}

// flagTrade holds the token account override shared by buy, sell and
// transfer. Empty means the signing key's associated account.
var flagTrade struct {
	Account string
}

func init() {
	cmdMain.AddCommand(cmdRegisterInvestor, cmdBuy, cmdSell, cmdTransfer)

	cmdBuy.Flags().StringVar(&flagTrade.Account, "source", "", "Paying token account")
	cmdSell.Flags().StringVar(&flagTrade.Account, "destination", "", "Receiving token account")
	cmdTransfer.Flags().StringVar(&flagTrade.Account, "from", "", "Sending token account")
}

// tradeSetup parses the scheme and amount arguments and resolves the caller's
// token account for the scheme's mint.
func tradeSetup(ctx context.Context, schemeArg, amountArg string, bits int) (*api.Client, model.Address, model.Address, uint64, error) {
	var zero model.Address
	addrs, err := parseAddresses(schemeArg)
	if err != nil {
		return nil, zero, zero, 0, err
	}
	amount, err := strconv.ParseUint(amountArg, 10, bits)
	if err != nil {
		return nil, zero, zero, 0, fmt.Errorf("amount: %w", err)
	}
	client, err := newClient(true)
	if err != nil {
		return nil, zero, zero, 0, err
	}

	account, err := resolveAccount(ctx, client, client.Credentials(), addrs[0])
	if err != nil {
		return nil, zero, zero, 0, err
	}
	return client, addrs[0], account, amount, nil
}

func resolveAccount(ctx context.Context, client *api.Client, creds *auth.Credentials, scheme model.Address) (model.Address, error) {
	if flagTrade.Account != "" {
		return model.ParseAddress(flagTrade.Account)
	}
	s, err := client.Scheme(ctx, scheme)
	if err != nil {
		return model.Address{}, fmt.Errorf("look up scheme: %w", err)
	}
	return token.AssociatedAddress(creds.Address, s.Mint), nil
}

func buy(cmd *cobra.Command, args []string) error {
	client, scheme, source, amount, err := tradeSetup(cmd.Context(), args[0], args[1], 64)
	if err != nil {
		return err
	}
	trade, err := client.Buy(cmd.Context(), scheme, api.BuyRequest{Source: source, Amount: amount})
	if err != nil {
		return err
	}
	return printJSON(cmd, trade)
}

func sell(cmd *cobra.Command, args []string) error {
	client, scheme, dest, amount, err := tradeSetup(cmd.Context(), args[0], args[1], 64)
	if err != nil {
		return err
	}
	trade, err := client.Sell(cmd.Context(), scheme, api.SellRequest{Destination: dest, Amount: amount})
	if err != nil {
		return err
	}
	return printJSON(cmd, trade)
}

func transfer(cmd *cobra.Command, args []string) error {
	to, err := parseAddresses(args[1])
	if err != nil {
		return err
	}
	client, scheme, from, amount, err := tradeSetup(cmd.Context(), args[0], args[2], 32)
	if err != nil {
		return err
	}
	tr, err := client.Transfer(cmd.Context(), scheme, api.TransferRequest{
		From:   from,
		To:     to[0],
		Amount: uint32(amount),
	})
	if err != nil {
		return err
	}
	return printJSON(cmd, tr)
}
