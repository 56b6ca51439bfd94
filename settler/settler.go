// Copyright (c) 2025 Dmitry Vats

// Package settler drives settlement of matched counter-offers: it computes
// the swap legs, runs the propose/validate/accept/confirm sequence against
// the wallet and the platform, and records the outcome durably before the
// counter-offer can be considered again.
//
// The settlement loop for one observed order is strictly serial; the caller
// (a pair watcher) never runs two Drain calls concurrently for the same
// order.
package settler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dvats/zanobot/ctxutil"
	"github.com/dvats/zanobot/matcher"
	"github.com/dvats/zanobot/orderstore"
	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/zanowallet"
	"github.com/shopspring/decimal"
)

// Wallet is the wallet-side settlement surface.
type Wallet interface {
	GenerateSwapProposal(ctx context.Context, params *zanowallet.SwapParams) (string, error)
	DecodeSwapProposal(ctx context.Context, hexRaw string) (*zanowallet.ProposalInfo, error)
	AcceptSwapProposal(ctx context.Context, hexRaw string) error
	AssetInfo(ctx context.Context, assetID string) (*zanowallet.Asset, error)
}

// Platform is the platform-side settlement surface.
type Platform interface {
	OrdersPage(ctx context.Context, pairID int64) (*tradeapi.OrdersPage, error)
	ApplyOrder(ctx context.Context, tipID int64, hexRawProposal string) error
	ConfirmTransaction(ctx context.Context, txID int64) error
	ActiveTx(ctx context.Context, firstOrderID, secondOrderID int64) (*tradeapi.ActiveTx, error)
}

// Outcome is the terminal state of one settlement attempt.
type Outcome int

const (
	// Applied: the swap settled and the counter-offer id was persisted.
	Applied Outcome = iota

	// Ignored: the counter-offer could not settle for a recoverable
	// reason (typically insufficient counterparty funds) and was added to
	// the exclusion set.
	Ignored
)

type Settler struct {
	wallet   Wallet
	platform Platform
	store    *orderstore.Store

	ignore *matcher.IgnoreSet

	pair *tradeapi.Pair

	// tradeID keys the durable record. Empty tradeID disables
	// persistence; settlements then rely on the in-memory exclusion state
	// only, as for unkeyed configurations.
	tradeID string

	drainDelay time.Duration
}

func New(wallet Wallet, platform Platform, store *orderstore.Store, ignore *matcher.IgnoreSet, pair *tradeapi.Pair, tradeID string, drainDelay time.Duration) *Settler {
	return &Settler{
		wallet:     wallet,
		platform:   platform,
		store:      store,
		ignore:     ignore,
		pair:       pair,
		tradeID:    tradeID,
		drainDelay: drainDelay,
	}
}

// Drain repeatedly matches and settles counter-offers against the observed
// order until no crossing candidate remains. Returns the last known
// remaining amount and done=true when the observed order is fully filled or
// gone from the platform.
//
// Remaining is refreshed from the platform and persisted on every cycle. A
// durable-store failure aborts immediately: settlement must not continue
// without the idempotency record.
func (s *Settler) Drain(ctx context.Context, observedOrderID int64) (remaining decimal.Decimal, done bool, err error) {
	for ctx.Err() == nil {
		page, err := s.platform.OrdersPage(ctx, s.pair.ID)
		if err != nil {
			return remaining, false, fmt.Errorf("could not fetch orders page: %w", err)
		}

		observed := page.FindOrder(observedOrderID)
		if observed == nil || observed.Left.LessThanOrEqual(decimal.Zero) {
			slog.Info("observed order has been finished or canceled", "order", observedOrderID, "pair", s.pair.ID)
			if err := s.persistRemaining(ctx, decimal.Zero); err != nil {
				return remaining, true, err
			}
			return decimal.Zero, true, nil
		}
		remaining = observed.Left

		if err := s.persistRemaining(ctx, remaining); err != nil {
			return remaining, false, err
		}

		applied, err := s.appliedIDs(ctx)
		if err != nil {
			return remaining, false, err
		}

		tip := matcher.Select(observed, page.ApplyTips, s.ignore, applied)
		if tip == nil {
			return remaining, false, nil
		}

		slog.Info("found matching counter-offer", "pair", s.pair.ID, "order", observed.ID, "tip", tip.ID, "price", tip.Price, "left", tip.Left)

		outcome, err := s.settleOne(ctx, observed, tip)
		if err != nil {
			return remaining, false, fmt.Errorf("could not settle counter-offer %d: %w", tip.ID, err)
		}

		switch outcome {
		case Applied:
			if err := s.persistApplied(ctx, tip.ID); err != nil {
				return remaining, false, err
			}
			slog.Info("counter-offer settled", "pair", s.pair.ID, "tip", tip.ID)
		case Ignored:
			s.ignore.Add(tip.ID)
			slog.Info("counter-offer ignored", "pair", s.pair.ID, "tip", tip.ID)
		}

		// Fixed delay before draining further matches.
		ctxutil.Sleep(ctx, s.drainDelay)
	}
	return remaining, false, context.Cause(ctx)
}

// settleOne runs one settlement attempt through the state machine. The
// returned error means the attempt failed in a non-recoverable way and the
// counter-offer must be left untouched for the next trigger to re-evaluate.
func (s *Settler) settleOne(ctx context.Context, observed *tradeapi.Order, tip *tradeapi.ApplyTip) (Outcome, error) {
	legs, err := s.computeLegs(ctx, observed, tip)
	if err != nil {
		return 0, err
	}

	if tip.Transaction {
		// The counterparty initiated; finalize their proposal.
		return s.finalize(ctx, tip.HexRawProposal, tip.ID, legs)
	}
	return s.initiate(ctx, observed, tip, legs)
}

// initiate builds our own proposal and submits it through the platform's
// apply-order operation.
func (s *Settler) initiate(ctx context.Context, observed *tradeapi.Order, tip *tradeapi.ApplyTip, legs *Legs) (Outcome, error) {
	params := &zanowallet.SwapParams{
		Receive:            legs.Receive,
		Send:               legs.Send,
		DestinationAddress: tip.User.Address,
	}
	hexRaw, err := s.wallet.GenerateSwapProposal(ctx, params)
	if err != nil {
		if errors.Is(err, zanowallet.ErrInsufficientFunds) {
			slog.Info("insufficient funds for counter-offer, skipping it", "tip", tip.ID)
			return Ignored, nil
		}
		return 0, fmt.Errorf("could not build swap proposal: %w", err)
	}

	if err := s.platform.ApplyOrder(ctx, tip.ID, hexRaw); err != nil {
		if !errors.Is(err, tradeapi.ErrConflict) {
			return 0, err
		}
		// Another agent may have already applied this pair of orders.
		// Look up the active transaction and finalize it instead.
		slog.Info("counter-offer is already applied, reconciling through the active transaction", "tip", tip.ID)
		tx, err := s.platform.ActiveTx(ctx, observed.ID, tip.ID)
		if err != nil {
			return 0, fmt.Errorf("could not query active transaction: %w", err)
		}
		if tx == nil {
			slog.Info("no active transaction found, skipping the counter-offer", "tip", tip.ID)
			return Ignored, nil
		}
		return s.finalize(ctx, tx.HexRawProposal, tx.ID, legs)
	}
	return Applied, nil
}

// finalize validates a counterparty proposal against the expected legs,
// accepts it through the wallet and confirms the settlement with the
// platform. A leg mismatch is a hard failure: the proposal does not
// represent the trade we matched.
func (s *Settler) finalize(ctx context.Context, hexRaw string, txID int64, legs *Legs) (Outcome, error) {
	info, err := s.wallet.DecodeSwapProposal(ctx, hexRaw)
	if err != nil {
		return 0, fmt.Errorf("could not decode swap proposal: %w", err)
	}

	if err := legs.Validate(info); err != nil {
		return 0, err
	}

	if err := s.wallet.AcceptSwapProposal(ctx, hexRaw); err != nil {
		if errors.Is(err, zanowallet.ErrInsufficientFunds) {
			slog.Info("insufficient funds to accept proposal, skipping the counter-offer", "tx", txID)
			return Ignored, nil
		}
		return 0, fmt.Errorf("could not accept swap proposal: %w", err)
	}

	if err := s.platform.ConfirmTransaction(ctx, txID); err != nil {
		return 0, err
	}
	return Applied, nil
}

func (s *Settler) appliedIDs(ctx context.Context) (matcher.IDs, error) {
	if len(s.tradeID) == 0 {
		return nil, nil
	}
	r, err := s.store.Load(ctx, s.tradeID)
	if err != nil {
		if orderstore.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not load order record: %w", err)
	}
	return matcher.IDs(r.AppliedIDs), nil
}

func (s *Settler) persistApplied(ctx context.Context, tipID int64) error {
	if len(s.tradeID) == 0 {
		return nil
	}
	if err := s.store.AddApplied(ctx, s.tradeID, tipID); err != nil {
		return fmt.Errorf("could not persist applied counter-offer id %d: %w", tipID, err)
	}
	return nil
}

func (s *Settler) persistRemaining(ctx context.Context, remaining decimal.Decimal) error {
	if len(s.tradeID) == 0 {
		return nil
	}
	if err := s.store.SetRemaining(ctx, s.tradeID, remaining); err != nil {
		if orderstore.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("could not persist remaining amount: %w", err)
	}
	return nil
}
