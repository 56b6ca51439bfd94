// Copyright (c) 2025 Dmitry Vats

// Package zanowallet implements a typed client for the wallet JSON-RPC
// service. It covers the wallet half of settlement: identity and message
// signing for platform auth, ionic swap proposal generation, decoding and
// acceptance, and asset metadata lookups.
//
// Wallet failures that callers must react to are mapped to sentinel errors at
// this boundary; callers test with errors.Is and never inspect RPC error
// strings themselves.
package zanowallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

var (
	// ErrInsufficientFunds indicates the wallet cannot fund a swap leg.
	ErrInsufficientFunds = errors.New("wallet has insufficient funds")

	// ErrNoAlias indicates the selected wallet has no registered alias.
	// Platform authentication requires an alias.
	ErrNoAlias = errors.New("wallet address has no alias")
)

type Options struct {
	// HTTPClientTimeout bounds every RPC call.
	HTTPClientTimeout time.Duration
}

func (v *Options) setDefaults() {
	if v.HTTPClientTimeout == 0 {
		v.HTTPClientTimeout = 30 * time.Second
	}
}

type Client struct {
	opts Options

	rpcURL string

	client *http.Client

	mu sync.Mutex
	// assetMap caches asset metadata; decimal points are immutable.
	assetMap map[string]*Asset
}

// New creates a client for the wallet JSON-RPC endpoint, for example
// "http://localhost:11211/json_rpc".
func New(rpcURL string, opts *Options) *Client {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	return &Client{
		opts:   *opts,
		rpcURL: rpcURL,
		client: &http.Client{
			Timeout: opts.HTTPClientTimeout,
		},
		assetMap: make(map[string]*Asset),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("wallet rpc %q failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("wallet rpc %q returned http %d", method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("could not decode wallet rpc %q response: %w", method, err)
	}
	if rr.Error != nil {
		return fmt.Errorf("wallet rpc %q: %w", method, rr.Error.typed())
	}
	if result != nil {
		if len(rr.Result) == 0 {
			return fmt.Errorf("wallet rpc %q returned no result", method)
		}
		if err := json.Unmarshal(rr.Result, result); err != nil {
			return fmt.Errorf("could not decode wallet rpc %q result: %w", method, err)
		}
	}
	return nil
}

// typed maps well-known wallet RPC failures to sentinel errors. The wallet
// reports funding problems only through the error message, so the message
// inspection is confined to this single place.
func (e *rpcError) typed() error {
	msg := strings.ToLower(e.Message)
	if strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "not enough money") || strings.Contains(msg, "not enough outputs") {
		return fmt.Errorf("%w: %s (code %d)", ErrInsufficientFunds, e.Message, e.Code)
	}
	return fmt.Errorf("code %d: %s", e.Code, e.Message)
}
