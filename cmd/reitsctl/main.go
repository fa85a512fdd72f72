// Command reitsctl is the command-line client of the REIT ledger daemon.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/api"
	"github.com/rickgao/reits-ledger/internal/auth"
	"github.com/rickgao/reits-ledger/internal/model"
)

var cmdMain = &cobra.Command{
	Use:           "reitsctl",
	Short:         "REIT ledger client",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var flagMain struct {
	Server  string
	Key     string
	Timeout time.Duration
	Retries int
}

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.Server, "server", "s", envOr("REITS_SERVER", "http://localhost:8080"), "Ledger daemon base URL")
	cmdMain.PersistentFlags().StringVarP(&flagMain.Key, "key", "k", envOr("REITS_KEY", "reits-key.pem"), "Path to the ed25519 private key (PEM)")
	cmdMain.PersistentFlags().DurationVar(&flagMain.Timeout, "timeout", 30*time.Second, "Request timeout")
	cmdMain.PersistentFlags().IntVar(&flagMain.Retries, "retries", 3, "Retries on server errors")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmdMain.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadCreds reads the signing key named by --key.
func loadCreds() (*auth.Credentials, error) {
	creds, err := auth.LoadCredentials(flagMain.Key)
	if err != nil {
		return nil, fmt.Errorf("load key %s: %w", flagMain.Key, err)
	}
	return creds, nil
}

// newClient returns an API client, signing with --key when signed is set.
func newClient(signed bool) (*api.Client, error) {
	var creds *auth.Credentials
	if signed {
		var err error
		if creds, err = loadCreds(); err != nil {
			return nil, err
		}
	}
	return api.NewClient(flagMain.Server, creds,
		api.WithTimeout(flagMain.Timeout),
		api.WithRetries(flagMain.Retries, time.Second),
	), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAddresses(args ...string) ([]model.Address, error) {
	addrs := make([]model.Address, len(args))
	for i, s := range args {
		a, err := model.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		addrs[i] = a
	}
	return addrs, nil
}
