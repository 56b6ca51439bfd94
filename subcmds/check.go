// Copyright (c) 2025 Dmitry Vats

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/dvats/zanobot/cli"
	"github.com/dvats/zanobot/config"
)

// Check validates a configuration file without starting anything.
type Check struct {
	configPath string
}

func (c *Check) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("check", flag.ContinueOnError)
	fset.StringVar(&c.configPath, "config", "zanobot.toml", "path to the configuration file")
	return fset, cli.CmdFunc(c.run)
}

func (c *Check) Synopsis() string {
	return "Validates the configuration file"
}

func (c *Check) run(ctx context.Context, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	fmt.Printf("configuration is valid: %d pairs, platform %s, wallet %s\n", len(cfg.Pairs), cfg.TradeURL, cfg.WalletRPCURL)
	for _, p := range cfg.Pairs {
		price := p.RawPrice
		if len(price) == 0 {
			price = "(live feed)"
		}
		fmt.Printf("pair %d: %s %s at %s trade-id %q\n", p.PairID, p.Side, p.RawAmount, price, p.TradeID)
	}
	return nil
}
