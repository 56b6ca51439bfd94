// Copyright (c) 2025 Dmitry Vats

package tradeapi

import (
	"github.com/shopspring/decimal"
)

// Order is a resting order on the platform, either the bot's own or another
// participant's. Left is the unfilled quantity.
type Order struct {
	ID     int64           `json:"id"`
	Type   string          `json:"type"` // "buy" or "sell"
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Left   decimal.Decimal `json:"left"`
}

// User identifies a counterparty.
type User struct {
	Address string `json:"address"`
	Alias   string `json:"alias"`
}

// ApplyTip is a counter-offer: an opposing order that may cross the bot's
// observed order. When the counterparty already initiated the swap the tip
// carries the raw proposal payload.
type ApplyTip struct {
	ID    int64           `json:"id"`
	Type  string          `json:"type"`
	Price decimal.Decimal `json:"price"`
	Left  decimal.Decimal `json:"left"`

	// Transaction is true when a swap proposal already exists for this
	// tip; HexRawProposal then carries the signed payload.
	Transaction    bool   `json:"transaction"`
	HexRawProposal string `json:"hex_raw_proposal"`

	User User `json:"user"`
}

// Currency is one leg of a trading pair.
type Currency struct {
	AssetID string `json:"asset_id"`
	Name    string `json:"name"`
}

// Pair is the platform metadata of a trading pair. FirstCurrency is the base
// asset (amounts are denominated in it) and SecondCurrency the quote asset.
type Pair struct {
	ID             int64    `json:"id"`
	FirstCurrency  Currency `json:"first_currency"`
	SecondCurrency Currency `json:"second_currency"`
}

// OrdersPage is one snapshot of the user's orders and the candidate
// counter-offers for a pair.
type OrdersPage struct {
	Orders    []*Order    `json:"orders"`
	ApplyTips []*ApplyTip `json:"applyTips"`
}

// FindOrder returns the order with the given id, or nil.
func (p *OrdersPage) FindOrder(id int64) *Order {
	for _, o := range p.Orders {
		if o.ID == id {
			return o
		}
	}
	return nil
}

// ActiveTx is a settlement transaction already bound to an order pair.
type ActiveTx struct {
	ID             int64  `json:"id"`
	HexRawProposal string `json:"hex_raw_proposal"`
}
