// Copyright (c) 2025 Dmitry Vats

// Package watcher runs the per-pair order lifecycle: it authenticates with
// the trading platform, ensures a standing order of the configured side,
// price and remaining amount exists, and settles crossing counter-offers as
// push events report activity on the pair.
//
// A watcher owns exactly one observed order. It returns nil when the order
// is completely filled and an error on any transport or settlement failure;
// restart policy belongs to the supervisor.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dvats/zanobot/config"
	"github.com/dvats/zanobot/ctxutil"
	"github.com/dvats/zanobot/gobs"
	"github.com/dvats/zanobot/matcher"
	"github.com/dvats/zanobot/orderstore"
	"github.com/dvats/zanobot/settler"
	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/zanowallet"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// Wallet is the wallet surface a watcher needs. *zanowallet.Client
// implements it.
type Wallet interface {
	settler.Wallet

	Identity(ctx context.Context) (*zanowallet.Identity, error)
	UnlockedBalance(ctx context.Context, assetID string) (uint64, error)
}

// Platform is the trading-platform surface a watcher needs.
// *tradeapi.Client implements it.
type Platform interface {
	settler.Platform

	Authenticate(ctx context.Context, req *tradeapi.AuthRequest) error
	GetPair(ctx context.Context, pairID int64) (*tradeapi.Pair, error)
	CreateOrder(ctx context.Context, req *tradeapi.CreateOrderRequest) error
	DeleteOrder(ctx context.Context, orderID int64) error
	Ping(ctx context.Context, orderID int64) error
	OpenStream(ctx context.Context, wsURL string, pairID int64) (*tradeapi.Stream, error)
}

type Watcher struct {
	cfg  *config.Config
	pair *config.Pair

	wallet Wallet
	client Platform
	store  *orderstore.Store
	ignore *matcher.IgnoreSet

	mu     sync.Mutex
	status Status
}

// Status is a point-in-time snapshot of a watcher for the health surface.
type Status struct {
	PairID  int64
	TradeID string
	Side    string
	Price   decimal.Decimal

	OrderID   int64
	Remaining decimal.Decimal
	Done      bool

	LastPing  time.Time
	LastEvent time.Time
}

func New(cfg *config.Config, pair *config.Pair, wallet Wallet, client Platform, store *orderstore.Store, ignore *matcher.IgnoreSet) *Watcher {
	return &Watcher{
		cfg:    cfg,
		pair:   pair,
		wallet: wallet,
		client: client,
		store:  store,
		ignore: ignore,
		status: Status{
			PairID:  pair.PairID,
			TradeID: pair.TradeID,
			Side:    pair.Side,
			Price:   pair.Price,
		},
	}
}

func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

func (w *Watcher) updateStatus(f func(s *Status)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f(&w.status)
}

// Run drives the pair until the context is canceled, the observed order is
// fully filled (nil) or something fails (error).
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.authenticate(ctx); err != nil {
		return err
	}

	pairInfo, err := w.client.GetPair(ctx, w.pair.PairID)
	if err != nil {
		return fmt.Errorf("could not resolve pair %d: %w", w.pair.PairID, err)
	}

	orderID, remaining, err := w.acquireOrder(ctx)
	if err != nil {
		return err
	}
	if orderID == 0 {
		slog.Info("position is already complete", "pair", w.pair.PairID, "tradeID", w.pair.TradeID)
		w.updateStatus(func(s *Status) { s.Done = true })
		return nil
	}
	w.updateStatus(func(s *Status) {
		s.OrderID = orderID
		s.Remaining = remaining
	})
	slog.Info("watching order", "pair", w.pair.PairID, "order", orderID, "side", w.pair.Side, "price", w.pair.Price, "remaining", remaining)
	w.checkFunds(ctx, pairInfo, remaining)

	sm := settler.New(w.wallet, w.client, w.store, w.ignore, pairInfo, w.pair.TradeID, w.cfg.DrainDelay.Value())

	stream, err := w.client.OpenStream(ctx, w.cfg.WebsocketURL(), w.pair.PairID)
	if err != nil {
		return err
	}
	defer stream.Close()

	events, err := stream.Events()
	if err != nil {
		return fmt.Errorf("could not subscribe to push events: %w", err)
	}
	defer events.Close()
	eventCh, err := topic.ReceiveCh(events)
	if err != nil {
		return fmt.Errorf("could not open push event channel: %w", err)
	}

	pingErrCh := make(chan error, 1)
	var cg ctxutil.CloseGroup
	defer cg.Close()
	cg.Go(func(ctx context.Context) {
		if err := w.goPing(ctx, orderID); err != nil {
			pingErrCh <- err
		}
	})

	// Settle anything already crossing before waiting for events.
	if done, err := w.drain(ctx, sm, orderID); err != nil || done {
		return err
	}

	// Push events can be missed across reconnects; resync on a slow timer.
	resync := time.NewTicker(w.cfg.ResyncInterval.Value())
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			return context.Cause(ctx)

		case <-resync.C:
			if done, err := w.drain(ctx, sm, orderID); err != nil || done {
				return err
			}

		case <-stream.Done():
			return errors.New("push channel has disconnected")

		case err := <-pingErrCh:
			return fmt.Errorf("order liveness ping failed: %w", err)

		case ev, ok := <-eventCh:
			if !ok {
				return errors.New("push event subscription was closed")
			}
			if ev.PairID != 0 && ev.PairID != w.pair.PairID {
				continue
			}
			w.updateStatus(func(s *Status) { s.LastEvent = time.Now() })
			slog.Debug("pair activity", "pair", w.pair.PairID, "event", ev.Type)
			if done, err := w.drain(ctx, sm, orderID); err != nil || done {
				return err
			}
		}
	}
}

func (w *Watcher) drain(ctx context.Context, sm *settler.Settler, orderID int64) (bool, error) {
	remaining, done, err := sm.Drain(ctx, orderID)
	if err != nil {
		return false, err
	}
	w.updateStatus(func(s *Status) {
		s.Remaining = remaining
		s.Done = done
	})
	if done {
		slog.Info("order is fully settled", "pair", w.pair.PairID, "order", orderID)
	}
	return done, nil
}

// authenticate signs a fresh nonce with the wallet and exchanges it for a
// platform token. A wallet without a registered alias cannot trade; that is
// an operator problem, not a transient one.
func (w *Watcher) authenticate(ctx context.Context) error {
	id, err := w.wallet.Identity(ctx)
	if err != nil {
		if errors.Is(err, zanowallet.ErrNoAlias) {
			return fmt.Errorf("wallet address has no alias registered: %w", err)
		}
		return fmt.Errorf("could not read wallet identity: %w", err)
	}
	req := &tradeapi.AuthRequest{
		Address:   id.Address,
		Alias:     id.Alias,
		Message:   id.Message,
		Signature: id.Signature,
	}
	if err := w.client.Authenticate(ctx, req); err != nil {
		return err
	}
	slog.Info("authenticated with the trading platform", "alias", id.Alias)
	return nil
}

// acquireOrder finds or creates the standing order for this pair, sized to
// the persisted remaining amount when a record exists. Returns orderID 0
// when the recorded position is already complete.
//
// Same-side orders resting at a different price are always deleted first,
// independent of DeleteOnStart: a feed reprice restarts the watcher with a
// new price, and the order placed at the old price must not stay on the
// book next to the new one.
func (w *Watcher) acquireOrder(ctx context.Context) (int64, decimal.Decimal, error) {
	remaining := w.pair.Amount
	record, err := w.loadRecord(ctx)
	if err != nil {
		return 0, remaining, err
	}
	if record != nil {
		v, err := decimal.NewFromString(record.Remaining)
		if err != nil {
			return 0, remaining, fmt.Errorf("order record %q has a bad remaining amount: %w", record.TradeID, err)
		}
		remaining = v
	}
	if remaining.LessThanOrEqual(decimal.Zero) {
		return 0, decimal.Zero, nil
	}

	page, err := w.client.OrdersPage(ctx, w.pair.PairID)
	if err != nil {
		return 0, remaining, err
	}
	// The page lists only our own orders.
	for _, o := range page.Orders {
		if o.Type == w.pair.Side && !o.Price.Equal(w.pair.Price) {
			slog.Info("deleting order at a stale price", "pair", w.pair.PairID, "order", o.ID, "price", o.Price)
			if err := w.client.DeleteOrder(ctx, o.ID); err != nil {
				return 0, remaining, err
			}
		}
	}

	existing := FindResting(page.Orders, w.pair.Side, w.pair.Price)

	if existing != nil && w.cfg.DeleteOnStart {
		slog.Info("deleting existing order on start", "pair", w.pair.PairID, "order", existing.ID)
		if err := w.client.DeleteOrder(ctx, existing.ID); err != nil {
			return 0, remaining, err
		}
		existing = nil
	}

	if existing == nil {
		req := &tradeapi.CreateOrderRequest{
			PairID: w.pair.PairID,
			Type:   w.pair.Side,
			Amount: remaining.String(),
			Price:  w.pair.Price.String(),
		}
		if err := w.client.CreateOrder(ctx, req); err != nil {
			return 0, remaining, err
		}
		page, err := w.client.OrdersPage(ctx, w.pair.PairID)
		if err != nil {
			return 0, remaining, err
		}
		existing = FindResting(page.Orders, w.pair.Side, w.pair.Price)
		if existing == nil {
			return 0, remaining, fmt.Errorf("created order is not visible on pair %d", w.pair.PairID)
		}
		slog.Info("created order", "pair", w.pair.PairID, "order", existing.ID, "side", w.pair.Side, "price", w.pair.Price, "amount", remaining)
	} else {
		// The platform's view of the fill is authoritative for a
		// surviving order.
		remaining = existing.Left
		slog.Info("reusing existing order", "pair", w.pair.PairID, "order", existing.ID, "remaining", remaining)
	}

	if err := w.saveRecord(ctx, record, remaining); err != nil {
		return 0, remaining, err
	}
	return existing.ID, remaining, nil
}

// FindResting returns the first order of the given side and exact price.
func FindResting(orders []*tradeapi.Order, side string, price decimal.Decimal) *tradeapi.Order {
	for _, o := range orders {
		if o.Type == side && o.Price.Equal(price) {
			return o
		}
	}
	return nil
}

func (w *Watcher) loadRecord(ctx context.Context) (*gobs.OrderRecord, error) {
	if len(w.pair.TradeID) == 0 {
		return nil, nil
	}
	record, err := w.store.Load(ctx, w.pair.TradeID)
	if err != nil {
		if orderstore.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not load order record: %w", err)
	}
	return record, nil
}

func (w *Watcher) saveRecord(ctx context.Context, old *gobs.OrderRecord, remaining decimal.Decimal) error {
	if len(w.pair.TradeID) == 0 {
		return nil
	}
	record := &gobs.OrderRecord{
		TradeID:   w.pair.TradeID,
		PairID:    w.pair.PairID,
		Side:      w.pair.Side,
		Price:     w.pair.Price.String(),
		Amount:    w.pair.Amount.String(),
		Remaining: remaining.String(),
	}
	if old != nil {
		record.AppliedIDs = old.AppliedIDs
	}
	if err := w.store.Save(ctx, record); err != nil {
		return fmt.Errorf("could not save order record: %w", err)
	}
	return nil
}

// checkFunds warns when the spendable wallet balance no longer covers the
// side this order must send: the base asset for a sell, price times amount
// of the quote asset for a buy. Locked outputs make settlement attempts fail
// with insufficient funds until they unlock, so the operator should know.
func (w *Watcher) checkFunds(ctx context.Context, pair *tradeapi.Pair, remaining decimal.Decimal) {
	assetID := pair.FirstCurrency.AssetID
	needed := remaining
	if w.pair.Side == "buy" {
		assetID = pair.SecondCurrency.AssetID
		needed = remaining.Mul(w.pair.Price)
	}
	asset, err := w.wallet.AssetInfo(ctx, assetID)
	if err != nil {
		slog.Warn("could not resolve asset for the funds check", "asset", assetID, "err", err)
		return
	}
	atomic, err := asset.ToAtomic(needed)
	if err != nil {
		slog.Warn("could not compute the needed atomic amount", "asset", asset.Ticker, "amount", needed, "err", err)
		return
	}
	unlocked, err := w.wallet.UnlockedBalance(ctx, assetID)
	if err != nil {
		slog.Warn("could not read the wallet balance", "asset", asset.Ticker, "err", err)
		return
	}
	if unlocked < atomic {
		slog.Warn("spendable balance does not cover the open position",
			"asset", asset.Ticker, "needed", needed, "unlocked", asset.FromAtomic(unlocked))
	}
}

// goPing keeps the observed order alive on the platform. A failed ping means
// the platform may no longer see the order; the watcher restarts and
// re-acquires it rather than trading against a stale session.
func (w *Watcher) goPing(ctx context.Context, orderID int64) error {
	for ctx.Err() == nil {
		ctxutil.Sleep(ctx, w.cfg.PingInterval.Value())
		if ctx.Err() != nil {
			break
		}
		if err := w.client.Ping(ctx, orderID); err != nil {
			slog.Warn("order liveness ping failed", "order", orderID, "err", err)
			return err
		}
		w.updateStatus(func(s *Status) { s.LastPing = time.Now() })
	}
	return nil
}
