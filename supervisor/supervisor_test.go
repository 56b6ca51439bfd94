// Copyright (c) 2025 Dmitry Vats

package supervisor

import (
	"testing"

	"github.com/dvats/zanobot/config"
	"github.com/dvats/zanobot/pricefeed"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestRepricedPairs(t *testing.T) {
	pairs := []*config.Pair{
		{PairID: 1, Side: "buy", Price: d("9"), Amount: d("10")},
		{PairID: 2, Side: "sell", Price: d("11"), Amount: d("10")},
	}
	state := &pricefeed.MarketState{BuyPrice: d("9.5"), SellPrice: d("10.5")}

	out := repricedPairs(pairs, state)
	if len(out) != 2 {
		t.Fatalf("got %d pairs, want 2", len(out))
	}
	if !out[0].Price.Equal(d("9.5")) {
		t.Errorf("buy pair price = %s, want 9.5", out[0].Price)
	}
	if !out[1].Price.Equal(d("10.5")) {
		t.Errorf("sell pair price = %s, want 10.5", out[1].Price)
	}

	// Substitution must not mutate the configuration.
	if !pairs[0].Price.Equal(d("9")) {
		t.Error("configured pair price must not change")
	}
}

func TestRepricedPairsWithoutFeed(t *testing.T) {
	pairs := []*config.Pair{
		{PairID: 1, Side: "buy", Price: d("9"), Amount: d("10")},
	}
	out := repricedPairs(pairs, nil)
	if len(out) != 1 || !out[0].Price.Equal(d("9")) {
		t.Fatalf("got %+v, want the configured price", out)
	}
}

func TestRepricedPairsSkipsUnpriced(t *testing.T) {
	pairs := []*config.Pair{
		{PairID: 1, Side: "buy", Amount: d("10")}, // feed-priced only
		{PairID: 2, Side: "sell", Price: d("11"), Amount: d("10")},
	}
	out := repricedPairs(pairs, nil)
	if len(out) != 1 || out[0].PairID != 2 {
		t.Fatalf("got %+v, want only pair 2", out)
	}
}
