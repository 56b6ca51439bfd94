// Copyright (c) 2025 Dmitry Vats

package matcher

import (
	"testing"

	"github.com/dvats/zanobot/tradeapi"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func order(side, price string) *tradeapi.Order {
	return &tradeapi.Order{ID: 1, Type: side, Price: d(price), Amount: d("100"), Left: d("100")}
}

func tip(id int64, side, price, left string) *tradeapi.ApplyTip {
	return &tradeapi.ApplyTip{ID: id, Type: side, Price: d(price), Left: d(left)}
}

func TestCrosses(t *testing.T) {
	tests := []struct {
		side       string
		orderPrice string
		tipPrice   string
		want       bool
	}{
		{"buy", "10", "9", true},
		{"buy", "10", "10", true},
		{"buy", "10", "11", false},
		{"sell", "10", "11", true},
		{"sell", "10", "10", true},
		{"sell", "10", "9", false},
	}
	for _, test := range tests {
		o := order(test.side, test.orderPrice)
		if v := Crosses(o, tip(1, "", test.tipPrice, "1")); v != test.want {
			t.Errorf("Crosses(%s@%s, tip@%s) = %t, want %t", test.side, test.orderPrice, test.tipPrice, v, test.want)
		}
	}
}

func TestSelectBuySidePicksCheapest(t *testing.T) {
	o := order("buy", "10")
	tips := []*tradeapi.ApplyTip{
		tip(1, "sell", "9.5", "1"),
		tip(2, "sell", "9", "1"),
		tip(3, "sell", "10.5", "1"), // does not cross
	}
	if got := Select(o, tips, nil, nil); got == nil || got.ID != 2 {
		t.Fatalf("Select = %+v, want tip 2", got)
	}
}

func TestSelectSellSidePicksHighest(t *testing.T) {
	o := order("sell", "10")
	tips := []*tradeapi.ApplyTip{
		tip(1, "buy", "10.5", "1"),
		tip(2, "buy", "12", "1"),
		tip(3, "buy", "9", "1"), // does not cross
	}
	if got := Select(o, tips, nil, nil); got == nil || got.ID != 2 {
		t.Fatalf("Select = %+v, want tip 2", got)
	}
}

func TestSelectTieBreaksByLowestID(t *testing.T) {
	o := order("sell", "10")
	tips := []*tradeapi.ApplyTip{
		tip(7, "buy", "11", "1"),
		tip(3, "buy", "11", "1"),
		tip(5, "buy", "11", "1"),
	}
	if got := Select(o, tips, nil, nil); got == nil || got.ID != 3 {
		t.Fatalf("Select = %+v, want tip 3", got)
	}
}

func TestSelectSkipsExcludedAndApplied(t *testing.T) {
	o := order("sell", "10")
	tips := []*tradeapi.ApplyTip{
		tip(1, "buy", "12", "1"),
		tip(2, "buy", "11", "1"),
		tip(3, "buy", "10.5", "1"),
	}
	ignore := NewIgnoreSet()
	ignore.Add(1)
	got := Select(o, tips, ignore, IDs{2})
	if got == nil || got.ID != 3 {
		t.Fatalf("Select = %+v, want tip 3", got)
	}
	if got := Select(o, tips, ignore, IDs{2, 3}); got != nil {
		t.Fatalf("Select = %+v, want nil", got)
	}
}

func TestSelectSkipsEmptyCounterOffers(t *testing.T) {
	o := order("sell", "10")
	tips := []*tradeapi.ApplyTip{
		tip(1, "buy", "12", "0"),
		tip(2, "buy", "11", "2"),
	}
	if got := Select(o, tips, nil, nil); got == nil || got.ID != 2 {
		t.Fatalf("Select = %+v, want tip 2", got)
	}
}

// Draining a sell order at 100 against three buyers: each settlement cycle
// must pick the best remaining price, never revisiting settled or excluded
// counter-offers.
func TestSelectDrainSequence(t *testing.T) {
	o := order("sell", "100")
	tips := []*tradeapi.ApplyTip{
		tip(11, "buy", "101", "5"),
		tip(12, "buy", "103", "5"),
		tip(13, "buy", "99", "5"), // never crosses
		tip(14, "buy", "102", "5"),
	}

	var applied IDs
	var got []int64
	for {
		best := Select(o, tips, nil, applied)
		if best == nil {
			break
		}
		got = append(got, best.ID)
		applied = append(applied, best.ID)
	}

	want := []int64{12, 14, 11}
	if len(got) != len(want) {
		t.Fatalf("drained %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drained %v, want %v", got, want)
		}
	}
}

func TestIgnoreSet(t *testing.T) {
	s := NewIgnoreSet()
	if s.Has(1) {
		t.Fatal("empty set must not contain 1")
	}
	s.Add(1)
	s.Add(1)
	s.Add(2)
	if !s.Has(1) || !s.Has(2) {
		t.Fatal("added ids must be present")
	}
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}
}
