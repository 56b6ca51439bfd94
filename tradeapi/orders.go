// Copyright (c) 2025 Dmitry Vats

package tradeapi

import (
	"context"
	"encoding/json"
	"fmt"
)

type pairRequest struct {
	ID int64 `json:"id"`
}

// GetPair fetches the trading pair metadata, including the asset identifiers
// of both legs.
func (c *Client) GetPair(ctx context.Context, pairID int64) (*Pair, error) {
	e, err := c.post(ctx, "/api/dex/get-pair", &pairRequest{ID: pairID})
	if err != nil {
		return nil, err
	}
	p := new(Pair)
	if err := json.Unmarshal(e.Data, p); err != nil {
		return nil, fmt.Errorf("could not decode pair %d data: %w", pairID, err)
	}
	if len(p.FirstCurrency.AssetID) == 0 || len(p.SecondCurrency.AssetID) == 0 {
		return nil, fmt.Errorf("pair %d metadata is missing asset identifiers", pairID)
	}
	return p, nil
}

type ordersPageRequest struct {
	Token  string `json:"token"`
	PairID int64  `json:"pairId"`
}

// OrdersPage fetches the user's orders and the candidate counter-offers for
// the given pair. Missing arrays in the response are a response-shape error.
func (c *Client) OrdersPage(ctx context.Context, pairID int64) (*OrdersPage, error) {
	token, err := c.Token()
	if err != nil {
		return nil, err
	}
	e, err := c.post(ctx, "/api/orders/get-user-page", &ordersPageRequest{Token: token, PairID: pairID})
	if err != nil {
		return nil, err
	}
	page := new(OrdersPage)
	if err := json.Unmarshal(e.Data, page); err != nil {
		return nil, fmt.Errorf("could not decode orders page for pair %d: %w", pairID, err)
	}
	if page.Orders == nil {
		return nil, fmt.Errorf("orders page for pair %d has no orders array", pairID)
	}
	if page.ApplyTips == nil {
		return nil, fmt.Errorf("orders page for pair %d has no applyTips array", pairID)
	}
	return page, nil
}

// CreateOrderRequest creates a resting limit order. Amount and Price are
// exact decimal strings.
type CreateOrderRequest struct {
	Token  string `json:"token"`
	PairID int64  `json:"pairId"`
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
	Side   string `json:"side"` // always "limit"
}

func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	req.Token = token
	req.Side = "limit"
	if _, err := c.post(ctx, "/api/orders/create", req); err != nil {
		return fmt.Errorf("could not create order: %w", err)
	}
	return nil
}

type orderIDRequest struct {
	Token   string `json:"token"`
	OrderID int64  `json:"orderId"`
}

func (c *Client) DeleteOrder(ctx context.Context, orderID int64) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/orders/cancel", &orderIDRequest{Token: token, OrderID: orderID}); err != nil {
		return fmt.Errorf("could not delete order %d: %w", orderID, err)
	}
	return nil
}

type applyOrderRequest struct {
	Token          string `json:"token"`
	OrderID        int64  `json:"orderId"`
	HexRawProposal string `json:"hex_raw_proposal"`
}

// ApplyOrder submits a swap proposal against the given counter-offer.
// Returns ErrConflict (wrapped) if the platform reports the counter-offer is
// no longer applicable; the caller then reconciles through ActiveTx.
func (c *Client) ApplyOrder(ctx context.Context, tipID int64, hexRawProposal string) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	req := &applyOrderRequest{
		Token:          token,
		OrderID:        tipID,
		HexRawProposal: hexRawProposal,
	}
	e, err := c.post(ctx, "/api/orders/apply-order", req)
	if err != nil {
		if e != nil && isConflictDetail(e.failureDetail()) {
			return fmt.Errorf("could not apply counter-offer %d: %w", tipID, ErrConflict)
		}
		return fmt.Errorf("could not apply counter-offer %d: %w", tipID, err)
	}
	return nil
}

type confirmRequest struct {
	Token         string `json:"token"`
	TransactionID int64  `json:"transactionId"`
}

// ConfirmTransaction confirms a settlement transaction with the platform.
func (c *Client) ConfirmTransaction(ctx context.Context, txID int64) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/transactions/confirm", &confirmRequest{Token: token, TransactionID: txID}); err != nil {
		return fmt.Errorf("could not confirm transaction %d: %w", txID, err)
	}
	return nil
}

type activeTxRequest struct {
	Token         string `json:"token"`
	FirstOrderID  int64  `json:"firstOrderId"`
	SecondOrderID int64  `json:"secondOrderId"`
}

// ActiveTx queries for a settlement transaction already bound to the given
// order pair. Returns (nil, nil) when there is none.
func (c *Client) ActiveTx(ctx context.Context, firstOrderID, secondOrderID int64) (*ActiveTx, error) {
	token, err := c.Token()
	if err != nil {
		return nil, err
	}
	req := &activeTxRequest{
		Token:         token,
		FirstOrderID:  firstOrderID,
		SecondOrderID: secondOrderID,
	}
	e, err := c.post(ctx, "/api/transactions/get-active-tx-by-orders-ids", req)
	if err != nil {
		// The platform answers with success=false when no active
		// transaction exists; that is a negative result, not a failure.
		if e != nil {
			return nil, nil
		}
		return nil, err
	}
	tx := new(ActiveTx)
	if err := json.Unmarshal(e.Data, tx); err != nil {
		return nil, fmt.Errorf("could not decode active transaction data: %w", err)
	}
	if tx.ID == 0 || len(tx.HexRawProposal) == 0 {
		return nil, nil
	}
	return tx, nil
}

// Ping marks the given order as live so the platform does not treat it as
// stale or abandoned.
func (c *Client) Ping(ctx context.Context, orderID int64) error {
	token, err := c.Token()
	if err != nil {
		return err
	}
	if _, err := c.post(ctx, "/api/orders/ping", &orderIDRequest{Token: token, OrderID: orderID}); err != nil {
		return fmt.Errorf("liveness ping for order %d failed: %w", orderID, err)
	}
	return nil
}
