package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/version"
)

var cmdKeygen = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a new signing key",
	Args:  cobra.NoArgs,
	RunE:  keygen,
}

var flagKeygen struct {
	Force bool
}

var cmdAddress = &cobra.Command{
	Use:   "address",
	Short: "Print the address of the signing key and its derived record addresses",
	Args:  cobra.NoArgs,
	RunE:  address,
}

var flagAddress struct {
	Offline bool
}

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return printJSON(cmd, version.Get())
	},
}

func init() {
	cmdMain.AddCommand(cmdKeygen, cmdAddress, cmdVersion)

	cmdKeygen.Flags().BoolVarP(&flagKeygen.Force, "force", "f", false, "Overwrite an existing key file")
	cmdAddress.Flags().BoolVar(&flagAddress.Offline, "offline", false, "Only print the key address")
}

func keygen(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(flagMain.Key); err == nil && !flagKeygen.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", flagMain.Key)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	creds, err := auth.GenerateCredentials()
	if err != nil {
		return err
	}
	if err := creds.WritePrivateKey(flagMain.Key); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", creds.Address)
	return nil
}

func address(cmd *cobra.Command, _ []string) error {
	creds, err := loadCreds()
	if err != nil {
		return err
	}
	if flagAddress.Offline {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n", creds.Address)
		return nil
	}

	client, err := newClient(false)
	if err != nil {
		return err
	}
	addrs, err := client.Owner(cmd.Context(), creds.Address)
	if err != nil {
		return err
	}
	return printJSON(cmd, addrs)
}
