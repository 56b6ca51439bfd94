// Copyright (c) 2025 Dmitry Vats

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/dvats/zanobot/cli"
	"github.com/dvats/zanobot/pricefeed"
)

// Price fetches one reference-market snapshot and prints the quotes.
type Price struct {
	buyDepth  float64
	sellDepth float64
}

func (c *Price) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("price", flag.ContinueOnError)
	fset.Float64Var(&c.buyDepth, "buy-depth", 0, "order book depth percent for the buy quote")
	fset.Float64Var(&c.sellDepth, "sell-depth", 0, "order book depth percent for the sell quote")
	return fset, cli.CmdFunc(c.run)
}

func (c *Price) Synopsis() string {
	return "Prints live reference prices for a symbol"
}

func (c *Price) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (symbol) argument")
	}
	feed := pricefeed.NewMEXC(args[0], c.buyDepth, c.sellDepth)
	state, err := feed.Fetch(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("symbol: %s\n", args[0])
	fmt.Printf("buy: %s\n", state.BuyPrice)
	fmt.Printf("sell: %s\n", state.SellPrice)
	fmt.Printf("mid: %s\n", state.Mid())
	return nil
}
