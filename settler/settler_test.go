// Copyright (c) 2025 Dmitry Vats

package settler

import (
	"context"
	"fmt"
	"testing"

	"github.com/bvkgo/kv/kvmemdb"
	"github.com/dvats/zanobot/gobs"
	"github.com/dvats/zanobot/matcher"
	"github.com/dvats/zanobot/orderstore"
	"github.com/dvats/zanobot/tradeapi"
	"github.com/dvats/zanobot/zanowallet"
	"github.com/shopspring/decimal"
)

type fakeWallet struct {
	assets map[string]*zanowallet.Asset

	generateErr error
	acceptErr   error

	proposals map[string]*zanowallet.ProposalInfo

	generated []*zanowallet.SwapParams
	accepted  []string
}

func (w *fakeWallet) GenerateSwapProposal(ctx context.Context, params *zanowallet.SwapParams) (string, error) {
	if w.generateErr != nil {
		return "", w.generateErr
	}
	w.generated = append(w.generated, params)
	return "deadbeef", nil
}

func (w *fakeWallet) DecodeSwapProposal(ctx context.Context, hexRaw string) (*zanowallet.ProposalInfo, error) {
	info, ok := w.proposals[hexRaw]
	if !ok {
		return nil, fmt.Errorf("unknown proposal %q", hexRaw)
	}
	return info, nil
}

func (w *fakeWallet) AcceptSwapProposal(ctx context.Context, hexRaw string) error {
	if w.acceptErr != nil {
		return w.acceptErr
	}
	w.accepted = append(w.accepted, hexRaw)
	return nil
}

func (w *fakeWallet) AssetInfo(ctx context.Context, assetID string) (*zanowallet.Asset, error) {
	a, ok := w.assets[assetID]
	if !ok {
		return nil, fmt.Errorf("unknown asset %q", assetID)
	}
	return a, nil
}

type fakePlatform struct {
	pages []*tradeapi.OrdersPage
	page  int

	applyErr error
	activeTx *tradeapi.ActiveTx

	applied   []int64
	confirmed []int64
}

func (p *fakePlatform) OrdersPage(ctx context.Context, pairID int64) (*tradeapi.OrdersPage, error) {
	i := p.page
	if i >= len(p.pages) {
		i = len(p.pages) - 1
	}
	p.page++
	return p.pages[i], nil
}

func (p *fakePlatform) ApplyOrder(ctx context.Context, tipID int64, hexRawProposal string) error {
	if p.applyErr != nil {
		return p.applyErr
	}
	p.applied = append(p.applied, tipID)
	return nil
}

func (p *fakePlatform) ConfirmTransaction(ctx context.Context, txID int64) error {
	p.confirmed = append(p.confirmed, txID)
	return nil
}

func (p *fakePlatform) ActiveTx(ctx context.Context, firstOrderID, secondOrderID int64) (*tradeapi.ActiveTx, error) {
	return p.activeTx, nil
}

var testPair = &tradeapi.Pair{
	ID:             1,
	FirstCurrency:  tradeapi.Currency{AssetID: "base-asset"},
	SecondCurrency: tradeapi.Currency{AssetID: "quote-asset"},
}

func testWallet() *fakeWallet {
	return &fakeWallet{
		assets: map[string]*zanowallet.Asset{
			"base-asset":  {AssetID: "base-asset", Ticker: "BASE", DecimalPoint: 3},
			"quote-asset": {AssetID: "quote-asset", Ticker: "QUOTE", DecimalPoint: 3},
		},
		proposals: make(map[string]*zanowallet.ProposalInfo),
	}
}

func testStore(t *testing.T, remaining string) *orderstore.Store {
	t.Helper()
	store := orderstore.New(kvmemdb.New())
	r := &gobs.OrderRecord{
		TradeID:   "t1",
		PairID:    1,
		Side:      "sell",
		Price:     "2",
		Amount:    "10",
		Remaining: remaining,
	}
	if err := store.Save(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return store
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDrainInitiateAndStop(t *testing.T) {
	ctx := context.Background()
	wallet := testWallet()
	store := testStore(t, "10")

	// Our resting order sells 5 at price 2; a buyer at 2.5 crosses. The
	// second page shows the partially filled order with the same
	// counter-offer still listed, which must now be skipped as applied.
	tip := &tradeapi.ApplyTip{
		ID: 101, Type: "buy", Price: d("2.5"), Left: d("2"),
		User: tradeapi.User{Address: "Zx-buyer"},
	}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("3")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
	}

	s := New(wallet, platform, store, matcher.NewIgnoreSet(), testPair, "t1", 0)
	remaining, done, err := s.Drain(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if done {
		t.Fatal("order must not be done with amount remaining")
	}
	if !remaining.Equal(d("3")) {
		t.Fatalf("remaining = %s, want 3", remaining)
	}

	if len(platform.applied) != 1 || platform.applied[0] != 101 {
		t.Fatalf("applied = %v, want [101]", platform.applied)
	}
	if len(wallet.generated) != 1 {
		t.Fatalf("generated %d proposals, want 1", len(wallet.generated))
	}
	// Selling base: we receive quote (2 x 2.5 = 5, atomic 5000) and send
	// base (target 2, atomic 2000), addressed to the buyer.
	p := wallet.generated[0]
	if p.DestinationAddress != "Zx-buyer" {
		t.Errorf("destination = %q", p.DestinationAddress)
	}
	if p.Receive.AssetID != "quote-asset" || p.Receive.Amount != 5000 {
		t.Errorf("receive leg = %+v", p.Receive)
	}
	if p.Send.AssetID != "base-asset" || p.Send.Amount != 2000 {
		t.Errorf("send leg = %+v", p.Send)
	}

	r, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasApplied(101) {
		t.Error("applied counter-offer id was not persisted")
	}
	if r.Remaining != "3" {
		t.Errorf("persisted remaining = %q, want 3", r.Remaining)
	}
}

func TestDrainFinishedOrder(t *testing.T) {
	ctx := context.Background()
	store := testStore(t, "10")
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{Orders: []*tradeapi.Order{}, ApplyTips: []*tradeapi.ApplyTip{}},
		},
	}
	s := New(testWallet(), platform, store, matcher.NewIgnoreSet(), testPair, "t1", 0)
	remaining, done, err := s.Drain(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Fatal("vanished order must report done")
	}
	if !remaining.IsZero() {
		t.Fatalf("remaining = %s, want 0", remaining)
	}
	r, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if r.Remaining != "0" {
		t.Errorf("persisted remaining = %q, want 0", r.Remaining)
	}
}

func TestDrainFinalize(t *testing.T) {
	ctx := context.Background()
	wallet := testWallet()
	// Counterparty sells 2 base at 2.5 against our buy at 3. We finalize:
	// we receive base (2000 atomic) and pay quote (5000 atomic).
	wallet.proposals["cafe01"] = &zanowallet.ProposalInfo{
		ToFinalizer: []zanowallet.SwapLeg{{AssetID: "base-asset", Amount: 2000}},
		ToInitiator: []zanowallet.SwapLeg{{AssetID: "quote-asset", Amount: 5000}},
	}
	tip := &tradeapi.ApplyTip{
		ID: 202, Type: "sell", Price: d("2.5"), Left: d("2"),
		Transaction: true, HexRawProposal: "cafe01",
		User: tradeapi.User{Address: "Zx-seller"},
	}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 11, Type: "buy", Price: d("3"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
			{
				Orders:    []*tradeapi.Order{{ID: 11, Type: "buy", Price: d("3"), Amount: d("10"), Left: d("3")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
	}
	store := testStore(t, "10")

	s := New(wallet, platform, store, matcher.NewIgnoreSet(), testPair, "t1", 0)
	if _, _, err := s.Drain(ctx, 11); err != nil {
		t.Fatal(err)
	}

	if len(wallet.accepted) != 1 || wallet.accepted[0] != "cafe01" {
		t.Fatalf("accepted = %v, want [cafe01]", wallet.accepted)
	}
	if len(platform.confirmed) != 1 || platform.confirmed[0] != 202 {
		t.Fatalf("confirmed = %v, want [202]", platform.confirmed)
	}
	r, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasApplied(202) {
		t.Error("finalized counter-offer id was not persisted")
	}
}

func TestFinalizeRejectsMismatchedLegs(t *testing.T) {
	ctx := context.Background()
	wallet := testWallet()
	// The proposal pays less quote than the counter-offer price implies.
	wallet.proposals["cafe02"] = &zanowallet.ProposalInfo{
		ToFinalizer: []zanowallet.SwapLeg{{AssetID: "base-asset", Amount: 2000}},
		ToInitiator: []zanowallet.SwapLeg{{AssetID: "quote-asset", Amount: 4999}},
	}
	tip := &tradeapi.ApplyTip{
		ID: 203, Type: "sell", Price: d("2.5"), Left: d("2"),
		Transaction: true, HexRawProposal: "cafe02",
	}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 11, Type: "buy", Price: d("3"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
	}

	s := New(wallet, platform, testStore(t, "10"), matcher.NewIgnoreSet(), testPair, "t1", 0)
	if _, _, err := s.Drain(ctx, 11); err == nil {
		t.Fatal("mismatched proposal legs must fail settlement")
	}
	if len(wallet.accepted) != 0 {
		t.Fatal("mismatched proposal must not be accepted")
	}
	if len(platform.confirmed) != 0 {
		t.Fatal("mismatched proposal must not be confirmed")
	}
}

func TestInsufficientFundsIgnoresCounterOffer(t *testing.T) {
	ctx := context.Background()
	wallet := testWallet()
	wallet.generateErr = fmt.Errorf("wallet: %w", zanowallet.ErrInsufficientFunds)
	tip := &tradeapi.ApplyTip{ID: 301, Type: "buy", Price: d("2.5"), Left: d("2")}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
	}
	ignore := matcher.NewIgnoreSet()

	s := New(wallet, platform, testStore(t, "10"), ignore, testPair, "t1", 0)
	remaining, done, err := s.Drain(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if done || !remaining.Equal(d("5")) {
		t.Fatalf("remaining = %s done = %t", remaining, done)
	}
	if !ignore.Has(301) {
		t.Error("counter-offer must be excluded after an insufficient funds failure")
	}
	if len(platform.applied) != 0 {
		t.Error("nothing must be applied on insufficient funds")
	}
}

func TestApplyConflictReconcilesThroughActiveTx(t *testing.T) {
	ctx := context.Background()
	wallet := testWallet()
	wallet.proposals["cafe03"] = &zanowallet.ProposalInfo{
		ToFinalizer: []zanowallet.SwapLeg{{AssetID: "quote-asset", Amount: 5000}},
		ToInitiator: []zanowallet.SwapLeg{{AssetID: "base-asset", Amount: 2000}},
	}
	tip := &tradeapi.ApplyTip{ID: 401, Type: "buy", Price: d("2.5"), Left: d("2")}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("3")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
		applyErr: tradeapi.ErrConflict,
		activeTx: &tradeapi.ActiveTx{ID: 77, HexRawProposal: "cafe03"},
	}
	store := testStore(t, "10")

	s := New(wallet, platform, store, matcher.NewIgnoreSet(), testPair, "t1", 0)
	if _, _, err := s.Drain(ctx, 10); err != nil {
		t.Fatal(err)
	}

	if len(wallet.accepted) != 1 || wallet.accepted[0] != "cafe03" {
		t.Fatalf("accepted = %v, want [cafe03]", wallet.accepted)
	}
	if len(platform.confirmed) != 1 || platform.confirmed[0] != 77 {
		t.Fatalf("confirmed = %v, want [77]", platform.confirmed)
	}
	r, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if !r.HasApplied(401) {
		t.Error("reconciled counter-offer id was not persisted")
	}
}

func TestApplyConflictWithoutActiveTx(t *testing.T) {
	ctx := context.Background()
	tip := &tradeapi.ApplyTip{ID: 402, Type: "buy", Price: d("2.5"), Left: d("2")}
	platform := &fakePlatform{
		pages: []*tradeapi.OrdersPage{
			{
				Orders:    []*tradeapi.Order{{ID: 10, Type: "sell", Price: d("2"), Amount: d("10"), Left: d("5")}},
				ApplyTips: []*tradeapi.ApplyTip{tip},
			},
		},
		applyErr: tradeapi.ErrConflict,
	}
	ignore := matcher.NewIgnoreSet()

	s := New(testWallet(), platform, testStore(t, "10"), ignore, testPair, "t1", 0)
	if _, _, err := s.Drain(ctx, 10); err != nil {
		t.Fatal(err)
	}
	if !ignore.Has(402) {
		t.Error("conflicting counter-offer without an active transaction must be excluded")
	}
	if len(platform.confirmed) != 0 {
		t.Error("nothing must be confirmed without an active transaction")
	}
}

func TestComputeLegsBuySide(t *testing.T) {
	ctx := context.Background()
	s := New(testWallet(), &fakePlatform{}, nil, matcher.NewIgnoreSet(), testPair, "", 0)

	observed := &tradeapi.Order{ID: 10, Type: "sell", Price: d("2"), Left: d("1.5")}
	tip := &tradeapi.ApplyTip{ID: 1, Type: "buy", Price: d("2.5"), Left: d("4")}

	legs, err := s.computeLegs(ctx, observed, tip)
	if err != nil {
		t.Fatal(err)
	}
	// Target is min(1.5, 4) = 1.5; quote leg is 1.5 x 2.5 = 3.75.
	if legs.Receive.AssetID != "quote-asset" || legs.Receive.Amount != 3750 {
		t.Errorf("receive leg = %+v", legs.Receive)
	}
	if legs.Send.AssetID != "base-asset" || legs.Send.Amount != 1500 {
		t.Errorf("send leg = %+v", legs.Send)
	}
}

func TestComputeLegsSellSide(t *testing.T) {
	ctx := context.Background()
	s := New(testWallet(), &fakePlatform{}, nil, matcher.NewIgnoreSet(), testPair, "", 0)

	observed := &tradeapi.Order{ID: 11, Type: "buy", Price: d("3"), Left: d("4")}
	tip := &tradeapi.ApplyTip{ID: 2, Type: "sell", Price: d("2.5"), Left: d("1.5")}

	legs, err := s.computeLegs(ctx, observed, tip)
	if err != nil {
		t.Fatal(err)
	}
	if legs.Receive.AssetID != "base-asset" || legs.Receive.Amount != 1500 {
		t.Errorf("receive leg = %+v", legs.Receive)
	}
	if legs.Send.AssetID != "quote-asset" || legs.Send.Amount != 3750 {
		t.Errorf("send leg = %+v", legs.Send)
	}
}

func TestComputeLegsRejectsFractionalAtomic(t *testing.T) {
	ctx := context.Background()
	s := New(testWallet(), &fakePlatform{}, nil, matcher.NewIgnoreSet(), testPair, "", 0)

	// 0.0005 base cannot be represented with 3 decimal places.
	observed := &tradeapi.Order{ID: 10, Type: "sell", Price: d("2"), Left: d("0.0005")}
	tip := &tradeapi.ApplyTip{ID: 3, Type: "buy", Price: d("2"), Left: d("4")}

	if _, err := s.computeLegs(ctx, observed, tip); err == nil {
		t.Fatal("fractional atomic amount must be rejected")
	}
}
