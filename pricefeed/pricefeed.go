// Copyright (c) 2025 Dmitry Vats

// Package pricefeed supplies live reference prices from an external market.
// A Feed fetches one market snapshot; the Monitor refreshes it on a schedule
// and reports significant moves so positions can be repriced.
package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// ErrStale means the last snapshot is too old to trade against.
var ErrStale = errors.New("market price is stale")

// MarketState is one snapshot of the reference market. BuyPrice is the
// depth-adjusted quote for placing buy orders and SellPrice for sell orders.
type MarketState struct {
	BuyPrice  decimal.Decimal
	SellPrice decimal.Decimal

	// MarketPrice is the exchange's own average price for the symbol, kept
	// for logging and sanity checks. Quotes come from the depth walk.
	MarketPrice decimal.Decimal

	FetchedAt time.Time
}

// Mid returns the midpoint of the two quotes.
func (m *MarketState) Mid() decimal.Decimal {
	return m.BuyPrice.Add(m.SellPrice).Div(decimal.NewFromInt(2))
}

// Feed fetches market snapshots from one source.
type Feed interface {
	Name() string
	Fetch(ctx context.Context) (*MarketState, error)
}

// Monitor periodically refreshes a Feed and invokes the change callback when
// either quote moves by at least the sensitivity threshold since the last
// report. The sides are compared independently; a spread widening that
// leaves the midpoint in place still reprices. Current returns ErrStale when
// the feed has not produced a fresh snapshot for three refresh intervals.
type Monitor struct {
	feed        Feed
	interval    time.Duration
	sensitivity float64

	// onChange runs on the refresh goroutine; it must not block for long.
	onChange func(*MarketState)

	cron *cron.Cron

	mu           sync.Mutex
	last         *MarketState
	reportedBuy  decimal.Decimal
	reportedSell decimal.Decimal
}

func NewMonitor(feed Feed, interval time.Duration, sensitivityPercent float64, onChange func(*MarketState)) *Monitor {
	return &Monitor{
		feed:        feed,
		interval:    interval,
		sensitivity: sensitivityPercent,
		onChange:    onChange,
	}
}

// Start fetches the first snapshot synchronously and schedules periodic
// refreshes. The initial fetch failing is fatal: without a reference price
// no feed-priced position can start.
func (m *Monitor) Start(ctx context.Context) error {
	state, err := m.feed.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("could not fetch initial %s snapshot: %w", m.feed.Name(), err)
	}
	m.mu.Lock()
	m.last = state
	m.reportedBuy = state.BuyPrice
	m.reportedSell = state.SellPrice
	m.mu.Unlock()
	slog.Info("price feed is ready", "feed", m.feed.Name(), "buy", state.BuyPrice, "sell", state.SellPrice)

	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", m.interval)
	if _, err := m.cron.AddFunc(spec, func() { m.refresh(ctx) }); err != nil {
		return fmt.Errorf("could not schedule feed refresh: %w", err)
	}
	m.cron.Start()
	return nil
}

// Stop halts the refresh schedule and waits for a running refresh to finish.
func (m *Monitor) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// Current returns the latest snapshot, or ErrStale when it is older than
// three refresh intervals.
func (m *Monitor) Current() (*MarketState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return nil, ErrStale
	}
	if time.Since(m.last.FetchedAt) > 3*m.interval {
		return nil, fmt.Errorf("%w: last snapshot is from %s", ErrStale, m.last.FetchedAt.Format(time.RFC3339))
	}
	return m.last, nil
}

func (m *Monitor) refresh(ctx context.Context) {
	state, err := m.feed.Fetch(ctx)
	if err != nil {
		slog.Warn("price feed refresh failed", "feed", m.feed.Name(), "err", err)
		return
	}

	m.mu.Lock()
	m.last = state
	changed := significantChange(m.reportedBuy, state.BuyPrice, m.sensitivity) ||
		significantChange(m.reportedSell, state.SellPrice, m.sensitivity)
	if changed {
		m.reportedBuy = state.BuyPrice
		m.reportedSell = state.SellPrice
	}
	m.mu.Unlock()

	if changed && m.onChange != nil {
		slog.Info("market price moved", "feed", m.feed.Name(), "buy", state.BuyPrice, "sell", state.SellPrice)
		m.onChange(state)
	}
}

// significantChange reports whether the move from old to new meets the
// sensitivity threshold, in percent of the old value.
func significantChange(old, new decimal.Decimal, sensitivityPercent float64) bool {
	if old.IsZero() {
		return !new.IsZero()
	}
	move := new.Sub(old).Abs().Div(old).Mul(decimal.NewFromInt(100))
	return move.GreaterThanOrEqual(decimal.NewFromFloat(sensitivityPercent))
}
