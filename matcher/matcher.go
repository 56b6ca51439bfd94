// Copyright (c) 2025 Dmitry Vats

// Package matcher selects the best crossing counter-offer for an observed
// order. Selection is a pure function over its inputs; the caller re-invokes
// it once per settlement cycle until it returns nothing.
package matcher

import (
	"github.com/dvats/zanobot/tradeapi"
	"github.com/shopspring/decimal"
)

// IDSet reports membership of counter-offer ids.
type IDSet interface {
	Has(id int64) bool
}

// IDs is a fixed IDSet over a slice.
type IDs []int64

func (s IDs) Has(id int64) bool {
	for _, v := range s {
		if v == id {
			return true
		}
	}
	return false
}

// Crosses reports whether the counter-offer price crosses the observed order:
// a buy order crosses offers at or below its price, a sell order crosses
// offers at or above its price.
func Crosses(order *tradeapi.Order, tip *tradeapi.ApplyTip) bool {
	if order.Type == "buy" {
		return order.Price.GreaterThanOrEqual(tip.Price)
	}
	return order.Price.LessThanOrEqual(tip.Price)
}

// Select returns the single best crossing counter-offer, skipping everything
// in the excluded and applied sets, or nil when no candidate remains.
//
// Best means lowest price for a buy-side observed order and highest price for
// a sell-side one. Equal-priced candidates are broken by the lowest
// counter-offer id so the choice does not depend on feed ordering.
func Select(order *tradeapi.Order, tips []*tradeapi.ApplyTip, excluded, applied IDSet) *tradeapi.ApplyTip {
	var best *tradeapi.ApplyTip
	for _, tip := range tips {
		if excluded != nil && excluded.Has(tip.ID) {
			continue
		}
		if applied != nil && applied.Has(tip.ID) {
			continue
		}
		if tip.Left.LessThanOrEqual(decimal.Zero) {
			continue
		}
		if !Crosses(order, tip) {
			continue
		}
		if best == nil {
			best = tip
			continue
		}
		if better(order.Type, tip, best) {
			best = tip
		}
	}
	return best
}

func better(side string, a, b *tradeapi.ApplyTip) bool {
	switch {
	case side == "buy" && a.Price.LessThan(b.Price):
		return true
	case side == "sell" && a.Price.GreaterThan(b.Price):
		return true
	case a.Price.Equal(b.Price):
		return a.ID < b.ID
	}
	return false
}
