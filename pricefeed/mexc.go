// Copyright (c) 2025 Dmitry Vats

package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

const mexcBaseURL = "https://api.mexc.com"

// MEXC reads the order book of one symbol from the MEXC spot API and quotes
// prices at a configured depth into each side of the book.
//
// The depth percent selects how far into the cumulative volume the quote is
// taken: 0 quotes the top of the book, 50 the price level at half the
// visible volume. Quoting deeper smooths out thin top-of-book levels.
type MEXC struct {
	symbol  string
	baseURL string
	client  *http.Client

	buyDepthPercent  float64
	sellDepthPercent float64
}

func NewMEXC(symbol string, buyDepthPercent, sellDepthPercent float64) *MEXC {
	return &MEXC{
		symbol:           symbol,
		baseURL:          mexcBaseURL,
		client:           &http.Client{Timeout: 30 * time.Second},
		buyDepthPercent:  buyDepthPercent,
		sellDepthPercent: sellDepthPercent,
	}
}

func (m *MEXC) Name() string {
	return "mexc"
}

type mexcDepth struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

type mexcAvgPrice struct {
	Price string `json:"price"`
}

// Fetch reads the order book and derives the two quotes: the buy quote is
// walked down the bid side, the sell quote up the ask side. The exchange's
// average price is fetched alongside for the snapshot's MarketPrice.
func (m *MEXC) Fetch(ctx context.Context) (*MarketState, error) {
	q := url.Values{}
	q.Set("symbol", m.symbol)
	q.Set("limit", "500")

	var depth mexcDepth
	if err := m.get(ctx, "/api/v3/depth?"+q.Encode(), &depth); err != nil {
		return nil, fmt.Errorf("could not fetch %s order book: %w", m.symbol, err)
	}
	if len(depth.Bids) == 0 || len(depth.Asks) == 0 {
		return nil, fmt.Errorf("order book for %s is empty", m.symbol)
	}

	var avg mexcAvgPrice
	if err := m.get(ctx, "/api/v3/avgPrice?symbol="+url.QueryEscape(m.symbol), &avg); err != nil {
		return nil, fmt.Errorf("could not fetch %s average price: %w", m.symbol, err)
	}
	market, err := decimal.NewFromString(avg.Price)
	if err != nil {
		return nil, fmt.Errorf("invalid average price %q: %w", avg.Price, err)
	}

	buy, err := priceAtDepth(depth.Bids, m.buyDepthPercent)
	if err != nil {
		return nil, fmt.Errorf("bad bid side: %w", err)
	}
	sell, err := priceAtDepth(depth.Asks, m.sellDepthPercent)
	if err != nil {
		return nil, fmt.Errorf("bad ask side: %w", err)
	}

	return &MarketState{BuyPrice: buy, SellPrice: sell, MarketPrice: market, FetchedAt: time.Now()}, nil
}

func (m *MEXC) get(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// priceAtDepth walks one side of the book, best level first, and returns the
// price of the level where the cumulative volume reaches depthPercent of the
// side's total. depthPercent 0 returns the best level.
func priceAtDepth(levels [][2]string, depthPercent float64) (decimal.Decimal, error) {
	type level struct {
		price, qty decimal.Decimal
	}
	parsed := make([]level, 0, len(levels))
	total := decimal.Zero
	for _, raw := range levels {
		price, err := decimal.NewFromString(raw[0])
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid price %q: %w", raw[0], err)
		}
		qty, err := decimal.NewFromString(raw[1])
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", raw[1], err)
		}
		parsed = append(parsed, level{price, qty})
		total = total.Add(qty)
	}

	target := total.Mul(decimal.NewFromFloat(depthPercent)).Div(decimal.NewFromInt(100))
	cumulative := decimal.Zero
	for _, l := range parsed {
		cumulative = cumulative.Add(l.qty)
		if cumulative.GreaterThanOrEqual(target) {
			return l.price, nil
		}
	}
	return parsed[len(parsed)-1].price, nil
}
