// Copyright (c) 2025 Dmitry Vats

package zanowallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Asset is the metadata of one asset. DecimalPoint is the number of decimal
// places in one whole unit; atomic amounts are scaled by 10^DecimalPoint.
type Asset struct {
	AssetID      string `json:"asset_id"`
	Ticker       string `json:"ticker"`
	DecimalPoint int32  `json:"decimal_point"`
}

type assetInfoParams struct {
	AssetID string `json:"asset_id"`
}

type assetInfoResult struct {
	Status string `json:"status"`
	Asset  Asset  `json:"asset_descriptor"`
}

// AssetInfo returns the metadata of the given asset. Results are cached for
// the lifetime of the client; asset decimal points never change.
func (c *Client) AssetInfo(ctx context.Context, assetID string) (*Asset, error) {
	c.mu.Lock()
	if a, ok := c.assetMap[assetID]; ok {
		c.mu.Unlock()
		return a, nil
	}
	c.mu.Unlock()

	var res assetInfoResult
	if err := c.call(ctx, "get_asset_info", &assetInfoParams{AssetID: assetID}, &res); err != nil {
		return nil, err
	}
	if res.Status != "OK" {
		return nil, fmt.Errorf("asset %s not found (status %q)", assetID, res.Status)
	}
	a := res.Asset
	if len(a.AssetID) == 0 {
		a.AssetID = assetID
	}

	c.mu.Lock()
	c.assetMap[assetID] = &a
	c.mu.Unlock()
	return &a, nil
}

type balanceEntry struct {
	AssetID  string `json:"asset_id"`
	Total    uint64 `json:"total"`
	Unlocked uint64 `json:"unlocked"`
}

type getBalanceResult struct {
	Balances []balanceEntry `json:"balances"`
}

// UnlockedBalance returns the currently spendable atomic amount of the given
// asset. A zero return with a nil error means the wallet holds none of it or
// all of it is locked.
func (c *Client) UnlockedBalance(ctx context.Context, assetID string) (uint64, error) {
	var res getBalanceResult
	if err := c.call(ctx, "getbalance", nil, &res); err != nil {
		return 0, err
	}
	for _, b := range res.Balances {
		if b.AssetID == assetID {
			return b.Unlocked, nil
		}
	}
	return 0, nil
}

// ToAtomic converts a whole-unit decimal amount to atomic units of the asset.
// The amount must be exactly representable; settlement math never rounds.
func (a *Asset) ToAtomic(v decimal.Decimal) (uint64, error) {
	scaled := v.Shift(a.DecimalPoint)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("amount %s is not representable with %d decimal places", v, a.DecimalPoint)
	}
	bi := scaled.BigInt()
	if bi.Sign() < 0 || !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s is out of range for asset %s", v, a.AssetID)
	}
	return bi.Uint64(), nil
}

// FromAtomic converts an atomic amount to whole units of the asset.
func (a *Asset) FromAtomic(v uint64) decimal.Decimal {
	bi := new(big.Int).SetUint64(v)
	return decimal.NewFromBigInt(bi, -a.DecimalPoint)
}
