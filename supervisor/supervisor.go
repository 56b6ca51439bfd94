// Copyright (c) 2025 Dmitry Vats

// Package supervisor owns the watcher fleet. It reconciles durable order
// records against the configuration on start, runs one watcher per
// configured pair with a fixed-delay restart policy, and rebuilds the whole
// fleet at fresh prices when the live feed reports a significant move.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/dvats/zanobot/config"
	"github.com/dvats/zanobot/ctxutil"
	"github.com/dvats/zanobot/matcher"
	"github.com/dvats/zanobot/notify"
	"github.com/dvats/zanobot/orderstore"
	"github.com/dvats/zanobot/pricefeed"
	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/watcher"
	"github.com/dvats/zanobot/zanowallet"
)

type Supervisor struct {
	cfg *config.Config

	wallet *zanowallet.Client
	client *tradeapi.Client
	store  *orderstore.Store

	// ignore survives watcher restarts: a counter-offer excluded for
	// insufficient funds stays excluded for the process lifetime.
	ignore *matcher.IgnoreSet

	messenger notify.Messenger
	monitor   *pricefeed.Monitor

	mu       sync.Mutex
	watchers []*watcher.Watcher
	cancel   context.CancelCauseFunc
	wg       *sync.WaitGroup
}

func New(cfg *config.Config, wallet *zanowallet.Client, client *tradeapi.Client, store *orderstore.Store, messenger notify.Messenger) *Supervisor {
	if messenger == nil {
		messenger = notify.Nop{}
	}
	return &Supervisor{
		cfg:       cfg,
		wallet:    wallet,
		client:    client,
		store:     store,
		ignore:    matcher.NewIgnoreSet(),
		messenger: messenger,
	}
}

// Run reconciles durable state, starts the watcher fleet and blocks until
// the context is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.store.Reconcile(ctx, s.cfg.Pairs, s.cfg.Feed.Enabled); err != nil {
		return fmt.Errorf("could not reconcile order records: %w", err)
	}

	var state *pricefeed.MarketState
	if s.cfg.Feed.Enabled {
		feed := pricefeed.NewMEXC(s.cfg.Feed.Symbol, s.cfg.Feed.BuyDepthPercent, s.cfg.Feed.SellDepthPercent)
		s.monitor = pricefeed.NewMonitor(feed, s.cfg.Feed.RefreshInterval.Value(), s.cfg.Feed.SensitivityPercent, func(v *pricefeed.MarketState) {
			s.Restart(ctx, v)
		})
		if err := s.monitor.Start(ctx); err != nil {
			return err
		}
		defer s.monitor.Stop()
		v, err := s.monitor.Current()
		if err != nil {
			return err
		}
		state = v
	}

	s.start(ctx, state)
	<-ctx.Done()
	s.stop()
	return context.Cause(ctx)
}

// Restart tears the fleet down and rebuilds it with pair prices taken from
// the given market state. Concurrent restarts serialize; a canceled context
// makes this a no-op.
func (s *Supervisor) Restart(ctx context.Context, state *pricefeed.MarketState) {
	if ctx.Err() != nil {
		return
	}
	slog.Info("restarting all watchers at fresh prices", "buy", state.BuyPrice, "sell", state.SellPrice)
	notify.Send(ctx, s.messenger, "Repricing positions: buy %s, sell %s", state.BuyPrice, state.SellPrice)
	s.stop()
	s.start(ctx, state)
}

// Statuses returns a snapshot of every running watcher.
func (s *Supervisor) Statuses() []watcher.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make([]watcher.Status, 0, len(s.watchers))
	for _, w := range s.watchers {
		statuses = append(statuses, w.Status())
	}
	return statuses
}

func (s *Supervisor) start(ctx context.Context, state *pricefeed.MarketState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs := repricedPairs(s.cfg.Pairs, state)

	wctx, cancel := context.WithCancelCause(ctx)
	wg := new(sync.WaitGroup)
	s.cancel = cancel
	s.wg = wg
	s.watchers = s.watchers[:0]

	for _, p := range pairs {
		w := watcher.New(s.cfg, p, s.wallet, s.client, s.store, s.ignore)
		s.watchers = append(s.watchers, w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.goWatch(wctx, w, p)
		}()
	}
}

func (s *Supervisor) stop() {
	s.mu.Lock()
	cancel, wg := s.cancel, s.wg
	s.cancel, s.wg = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel(os.ErrClosed)
	}
	if wg != nil {
		wg.Wait()
	}
}

// goWatch runs one watcher until it completes its position or the
// generation is canceled, restarting it after a fixed delay on failure.
func (s *Supervisor) goWatch(ctx context.Context, w *watcher.Watcher, p *config.Pair) {
	for ctx.Err() == nil {
		err := w.Run(ctx)
		if err == nil {
			notify.Send(ctx, s.messenger, "Position on pair %d (%s %s at %s) is fully settled.", p.PairID, p.Side, p.Amount, p.Price)
			return
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return
		}
		slog.Error("watcher failed, restarting", "pair", p.PairID, "err", err)
		notify.Send(ctx, s.messenger, "Watcher for pair %d failed: %v. Restarting.", p.PairID, err)
		ctxutil.Sleep(ctx, s.cfg.RestartDelay.Value())
	}
}

// repricedPairs returns the pair list to run: a copy of the configuration
// with feed prices substituted by side. Pairs that would run without any
// price are skipped.
func repricedPairs(pairs []*config.Pair, state *pricefeed.MarketState) []*config.Pair {
	out := make([]*config.Pair, 0, len(pairs))
	for _, p := range pairs {
		v := *p
		if state != nil {
			if p.Side == "buy" {
				v.Price = state.BuyPrice
			} else {
				v.Price = state.SellPrice
			}
		}
		if v.Price.IsZero() {
			slog.Warn("skipping pair without a price", "pair", p.PairID)
			continue
		}
		out = append(out, &v)
	}
	return out
}
