// Copyright (c) 2025 Dmitry Vats

// Package tradeapi implements a typed client for the trading platform REST
// API and its websocket push channel. It covers the platform half of
// settlement: authentication with a signed wallet identity, order and
// counter-offer queries, order lifecycle operations and transaction
// confirmation.
package tradeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrConflict indicates the platform rejected an apply-order request
	// because the counter-offer is no longer in an applicable state,
	// typically because another party already applied it.
	ErrConflict = errors.New("order is not applicable")

	// ErrUnauthenticated indicates the client has no auth token yet.
	ErrUnauthenticated = errors.New("client is not authenticated")
)

type Options struct {
	// HTTPClientTimeout bounds every REST call.
	HTTPClientTimeout time.Duration

	// RequestsPerSecond throttles outgoing REST calls.
	RequestsPerSecond float64
}

func (v *Options) setDefaults() {
	if v.HTTPClientTimeout == 0 {
		v.HTTPClientTimeout = 30 * time.Second
	}
	if v.RequestsPerSecond == 0 {
		v.RequestsPerSecond = 10
	}
}

type Client struct {
	opts Options

	baseURL *url.URL

	client  *http.Client
	limiter *rate.Limiter

	mu    sync.Mutex
	token string
}

// New creates a client for the trading platform at the given base URL.
func New(baseURL string, opts *Options) (*Client, error) {
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid platform url %q: %w", baseURL, err)
	}

	return &Client{
		opts:    *opts,
		baseURL: u,
		client: &http.Client{
			Timeout: opts.HTTPClientTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1),
	}, nil
}

func (c *Client) setToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.token) == 0 {
		return "", ErrUnauthenticated
	}
	return c.token, nil
}

// envelope is the platform's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// dataString returns Data decoded as a plain string, or "".
func (e *envelope) dataString() string {
	var s string
	if err := json.Unmarshal(e.Data, &s); err != nil {
		return ""
	}
	return s
}

// post issues a JSON POST to the given API path and decodes the response
// envelope. A non-2xx status or success=false is returned as an error; the
// envelope is returned either way so callers can look at the failure detail.
func (c *Client) post(ctx context.Context, apiPath string, request any) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	u := c.baseURL.JoinPath(apiPath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s failed: %w", apiPath, err)
	}
	defer resp.Body.Close()

	e := new(envelope)
	if err := json.NewDecoder(resp.Body).Decode(e); err != nil {
		return nil, fmt.Errorf("could not decode %s response (http %d): %w", apiPath, resp.StatusCode, err)
	}
	if !e.Success {
		return e, fmt.Errorf("%s request was unsuccessful: %s", apiPath, e.failureDetail())
	}
	if resp.StatusCode != http.StatusOK {
		return e, fmt.Errorf("%s returned http %d", apiPath, resp.StatusCode)
	}
	return e, nil
}

func (e *envelope) failureDetail() string {
	if len(e.Message) != 0 {
		return e.Message
	}
	if s := e.dataString(); len(s) != 0 {
		return s
	}
	return "no failure detail"
}

// AuthRequest carries the signed wallet identity.
type AuthRequest struct {
	Address   string `json:"address"`
	Alias     string `json:"alias"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Authenticate exchanges a signed wallet identity for a bearer token. The
// token is retained by the client and attached to subsequent operations.
func (c *Client) Authenticate(ctx context.Context, req *AuthRequest) error {
	e, err := c.post(ctx, "/api/auth", req)
	if err != nil {
		return fmt.Errorf("platform auth failed: %w", err)
	}
	token := e.dataString()
	if len(token) == 0 {
		return fmt.Errorf("platform auth succeeded without a token")
	}
	c.setToken(token)
	return nil
}

// isConflictDetail reports whether a failure detail from the apply-order
// operation means the counter-offer was already taken. The platform reports
// this only through the response detail; the inspection is confined here.
func isConflictDetail(detail string) bool {
	return strings.EqualFold(detail, "Invalid order data")
}
