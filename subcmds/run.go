// Copyright (c) 2025 Dmitry Vats

// Package subcmds implements the zanobot command-line interface.
package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/dvats/zanobot/cli"
	"github.com/dvats/zanobot/config"
	"github.com/dvats/zanobot/notify"
	"github.com/dvats/zanobot/orderstore"
	"github.com/dvats/zanobot/supervisor"
	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/zanowallet"
	"github.com/nightlyone/lockfile"
	"github.com/visvasity/sglog"
)

type Run struct {
	configPath string
	dataDir    string
	logDir     string
	debug      bool
}

func (c *Run) Command() (*flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	fset.StringVar(&c.configPath, "config", "zanobot.toml", "path to the configuration file")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory")
	fset.StringVar(&c.logDir, "log-dir", "", "path to the log directory")
	fset.BoolVar(&c.debug, "debug", false, "when true, debug logging is enabled")
	return fset, cli.CmdFunc(c.run)
}

func (c *Run) Synopsis() string {
	return "Runs the trading bot in foreground"
}

func (c *Run) run(ctx context.Context, args []string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if len(c.dataDir) == 0 {
		c.dataDir = cfg.DataDir
	}
	dataDir, err := resolveDataDir(c.dataDir)
	if err != nil {
		return err
	}

	if len(c.logDir) == 0 {
		c.logDir = filepath.Join(dataDir, "logs")
	}
	if err := os.MkdirAll(c.logDir, 0700); err != nil {
		return fmt.Errorf("could not create log directory %q: %w", c.logDir, err)
	}
	backend := sglog.NewBackend(&sglog.Options{LogDirs: []string{c.logDir}})
	defer backend.Close()
	if c.debug {
		backend.SetLevel(slog.LevelDebug)
	}
	slog.SetDefault(slog.New(backend.Handler()))

	lockPath := filepath.Join(dataDir, "zanobot.lock")
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		return fmt.Errorf("could not get lock on file %q: %w", lockPath, err)
	}
	defer flock.Unlock()

	db, closeDB, err := openDatabase(dataDir)
	if err != nil {
		return err
	}
	defer closeDB()
	store := orderstore.New(db)

	wallet := zanowallet.New(cfg.WalletRPCURL, nil)
	client, err := tradeapi.New(cfg.TradeURL, nil)
	if err != nil {
		return err
	}

	var messenger notify.Messenger
	if len(cfg.Telegram.BotToken) != 0 {
		messenger, err = notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return err
		}
	}

	slog.Info("starting zanobot", "config", c.configPath, "dataDir", dataDir, "pairs", len(cfg.Pairs))
	sup := supervisor.New(cfg, wallet, client, store, messenger)
	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("zanobot has stopped")
	return nil
}

func resolveDataDir(dir string) (string, error) {
	if len(dir) == 0 {
		dir = filepath.Join(os.Getenv("HOME"), ".zanobot")
	}
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("could not stat data directory %q: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return "", fmt.Errorf("could not create data directory %q: %w", dir, err)
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not determine data directory %q absolute path: %w", dir, err)
	}
	return abs, nil
}

func isGoodKey(k string) bool {
	return path.IsAbs(k) && k == path.Clean(k)
}
