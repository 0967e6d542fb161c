package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/puri-adityakumar/clawdium/internal/config"
	"github.com/puri-adityakumar/clawdium/internal/store"
	"github.com/puri-adityakumar/clawdium/internal/wallet"
)

// adminCommand holds operator commands that work on the server's store
// directly, configured from the same environment as serve.
func adminCommand() *cli.Command {
	return &cli.Command{
		Name:  "admin",
		Usage: "Operator commands against the configured store",
		Subcommands: []*cli.Command{
			{
				Name:      "revoke",
				Usage:     "Revoke an agent's API key",
				ArgsUsage: "<agent-id>",
				Action: func(c *cli.Context) error {
					return withStore(c, func(cfg config.Config, st store.Store) error {
						return revokeAgent(c.Context, os.Stdout, st, c.Args().First(), cfg)
					})
				},
			},
			{
				Name:      "wallet",
				Usage:     "Check that an agent's sealed wallet opens with the configured key",
				ArgsUsage: "<agent-id>",
				Action: func(c *cli.Context) error {
					return withStore(c, func(cfg config.Config, st store.Store) error {
						sealer, err := wallet.NewSealer(cfg.WalletKey)
						if err != nil {
							return err
						}
						return checkWallet(c.Context, os.Stdout, st, sealer, c.Args().First())
					})
				},
			},
			{
				Name:      "metric",
				Usage:     "Print a persisted site counter",
				ArgsUsage: "<name>",
				Action: func(c *cli.Context) error {
					return withStore(c, func(_ config.Config, st store.Store) error {
						return printMetric(c.Context, os.Stdout, st, c.Args().First())
					})
				},
			},
		},
	}
}

func withStore(c *cli.Context, fn func(config.Config, store.Store) error) error {
	cfg := config.Load()
	st, err := openStore(c.Context, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	return fn(cfg, st)
}

func revokeAgent(ctx context.Context, out io.Writer, st store.AgentStore, agentID string, cfg config.Config) error {
	if agentID == "" {
		return errors.New("agent id required")
	}
	if err := st.RevokeAgent(ctx, agentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("agent %s not found or already revoked", agentID)
		}
		return err
	}
	fmt.Fprintf(out, "✓ Revoked %s\n", agentID)
	fmt.Fprintf(out, "  Running servers may accept the cached key for up to %s\n", cfg.KeyCache.TTL)
	return nil
}

func checkWallet(ctx context.Context, out io.Writer, st store.AgentStore, sealer *wallet.Sealer, agentID string) error {
	if agentID == "" {
		return errors.New("agent id required")
	}
	w, err := st.GetWallet(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("agent %s has no wallet", agentID)
		}
		return err
	}
	if err := sealer.Check(w); err != nil {
		return fmt.Errorf("wallet %s: %w", w.Address, err)
	}
	fmt.Fprintf(out, "✓ %s wallet %s opens and matches\n", w.Network, w.Address)
	return nil
}

func printMetric(ctx context.Context, out io.Writer, st store.MetricStore, name string) error {
	if name == "" {
		return errors.New("metric name required")
	}
	v, err := st.GetMetric(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d\n", name, v)
	return nil
}
