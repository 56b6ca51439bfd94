// Copyright (c) 2025 Dmitry Vats

package main

import (
	"context"
	"log"
	"os"

	"github.com/dvats/zanobot/cli"
	"github.com/dvats/zanobot/subcmds"
)

func main() {
	orderCmds := []cli.Command{
		new(subcmds.OrderList),
		new(subcmds.OrderGet),
		new(subcmds.OrderDelete),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Check),
		new(subcmds.Price),
		cli.CommandGroup("order", orderCmds...),
	}

	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
