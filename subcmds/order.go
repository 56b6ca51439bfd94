// Copyright (c) 2025 Dmitry Vats

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dvats/zanobot/cli"
	"github.com/dvats/zanobot/orderstore"
)

// orderFlags are shared by the order record subcommands.
type orderFlags struct {
	dataDir string
}

func (f *orderFlags) setFlags(fset *flag.FlagSet) {
	fset.StringVar(&f.dataDir, "data-dir", "", "path to the data directory")
}

func (f *orderFlags) openStore() (*orderstore.Store, func(), error) {
	dataDir, err := resolveDataDir(f.dataDir)
	if err != nil {
		return nil, nil, err
	}
	db, closeDB, err := openDatabase(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return orderstore.New(db), closeDB, nil
}

// OrderList prints all durable order records.
type OrderList struct {
	orderFlags
}

func (c *OrderList) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.setFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *OrderList) Synopsis() string {
	return "Lists durable order records"
}

func (c *OrderList) run(ctx context.Context, args []string) error {
	store, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	records, err := store.List(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "TRADE-ID\tPAIR\tSIDE\tPRICE\tAMOUNT\tREMAINING\tSETTLEMENTS")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%d\n", r.TradeID, r.PairID, r.Side, r.Price, r.Amount, r.Remaining, len(r.AppliedIDs))
	}
	return tw.Flush()
}

// OrderGet prints one order record with its settled counter-offer ids.
type OrderGet struct {
	orderFlags
}

func (c *OrderGet) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("get", flag.ContinueOnError)
	c.setFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *OrderGet) Synopsis() string {
	return "Prints one order record"
}

func (c *OrderGet) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (trade-id) argument")
	}
	store, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	r, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("trade-id: %s\n", r.TradeID)
	fmt.Printf("pair: %d\n", r.PairID)
	fmt.Printf("side: %s\n", r.Side)
	fmt.Printf("price: %s\n", r.Price)
	fmt.Printf("amount: %s\n", r.Amount)
	fmt.Printf("remaining: %s\n", r.Remaining)
	for _, id := range r.AppliedIDs {
		fmt.Printf("settled-counter-offer: %d\n", id)
	}
	return nil
}

// OrderDelete removes one order record. The position restarts from the
// configured amount on the next run.
type OrderDelete struct {
	orderFlags
}

func (c *OrderDelete) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("delete", flag.ContinueOnError)
	c.setFlags(fset)
	return fset, cli.CmdFunc(c.run)
}

func (c *OrderDelete) Synopsis() string {
	return "Deletes one order record"
}

func (c *OrderDelete) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("needs one (trade-id) argument")
	}
	store, closeStore, err := c.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted order record %s\n", args[0])
	return nil
}
