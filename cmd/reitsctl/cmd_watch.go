package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/reits-ledger/internal/connection"
	"github.com/rickgao/reits-ledger/internal/events"
)

var cmdWatch = &cobra.Command{
	Use:   "watch [address...]",
	Short: "Stream ledger events, optionally only those involving the given addresses",
	RunE:  watch,
}

var flagWatch struct {
	Types []string
}

func init() {
	cmdMain.AddCommand(cmdWatch)

	cmdWatch.Flags().StringSliceVarP(&flagWatch.Types, "type", "t", nil, "Event types to include (e.g. buy,sell)")
}

func watch(cmd *cobra.Command, args []string) error {
	addrs, err := parseAddresses(args...)
	if err != nil {
		return err
	}
	creds, err := loadCreds()
	if err != nil {
		return err
	}

	cfg := connection.DefaultStreamConfig()
	cfg.Client.URL = flagMain.Server
	cfg.Client.Credentials = creds
	cfg.Client.Addresses = addrs
	for _, t := range flagWatch.Types {
		cfg.Client.Types = append(cfg.Client.Types, events.Type(t))
	}

	ctx := cmd.Context()
	stream := connection.NewStream(cfg, nil)
	if err := stream.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		stream.Stop(stopCtx)
	}()

	for ev := range stream.Events() {
		if err := printJSON(cmd, ev.Event); err != nil {
			return err
		}
	}
	return nil
}

