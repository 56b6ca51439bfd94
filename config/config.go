// Copyright (c) 2025 Dmitry Vats

// Package config loads the bot configuration: endpoints and secrets from the
// environment (optionally a .env file) and the trading pair list from a TOML
// file. Decimal fields are parsed from strings; binary floating point is
// never used for money values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Duration wraps time.Duration with TOML text decoding ("15s", "1m").
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Value() time.Duration {
	return time.Duration(d)
}

// Pair is one configured trading position. The bot maintains exactly one
// standing order per Pair.
type Pair struct {
	// PairID identifies the trading pair on the platform.
	PairID int64 `toml:"pair_id"`

	// Side is "buy" or "sell".
	Side string `toml:"side"`

	// Price and Amount are exact decimal values. Price may be replaced at
	// runtime when the live-price feed is enabled.
	Price  decimal.Decimal `toml:"-"`
	Amount decimal.Decimal `toml:"-"`

	// TradeID correlates this position with its persisted record across
	// restarts. Optional; without it settlements are not recorded and the
	// position does not survive a restart.
	TradeID string `toml:"trade_id"`

	// RawPrice and RawAmount carry the TOML string forms.
	RawPrice  string `toml:"price"`
	RawAmount string `toml:"amount"`
}

// Feed configures the optional live-price feed.
type Feed struct {
	Enabled bool   `toml:"enabled"`
	Parser  string `toml:"parser"` // "mexc"
	Symbol  string `toml:"symbol"` // exchange symbol, e.g. "ZANOUSDT"

	// RefreshInterval is how often market data is fetched. A price older
	// than three refresh intervals is considered stale.
	RefreshInterval Duration `toml:"refresh_interval"`

	// SensitivityPercent is the relative price move that triggers a full
	// supervisor restart with repriced pairs.
	SensitivityPercent float64 `toml:"sensitivity_percent"`

	// BuyDepthPercent and SellDepthPercent select the order-book depth
	// (by cumulative volume) at which the buy/sell quote is taken.
	BuyDepthPercent  float64 `toml:"buy_depth_percent"`
	SellDepthPercent float64 `toml:"sell_depth_percent"`
}

type Telegram struct {
	BotToken string `toml:"bot_token"`
	ChatID   int64  `toml:"chat_id"`
}

type Config struct {
	// WalletRPCURL is the local wallet JSON-RPC endpoint.
	WalletRPCURL string `toml:"wallet_rpc_url"`

	// TradeURL is the trading platform base URL. The websocket endpoint is
	// derived from it unless TradeWsURL is set.
	TradeURL   string `toml:"trade_url"`
	TradeWsURL string `toml:"trade_ws_url"`

	DataDir string `toml:"data_dir"`

	// DeleteOnStart deletes any existing platform order with a configured
	// price and side before creating a fresh one.
	DeleteOnStart bool `toml:"delete_on_start"`

	// PingInterval is the liveness ping period for each observed order.
	PingInterval Duration `toml:"ping_interval"`

	// RestartDelay is the fixed wait before restarting a failed watcher.
	RestartDelay Duration `toml:"restart_delay"`

	// DrainDelay is the fixed wait between consecutive settlement cycles
	// against the same observed order.
	DrainDelay Duration `toml:"drain_delay"`

	// ResyncInterval is how often a watcher re-reads the orders page even
	// when no push event arrived, to recover from missed events.
	ResyncInterval Duration `toml:"resync_interval"`

	Feed     Feed     `toml:"feed"`
	Telegram Telegram `toml:"telegram"`

	Pairs []*Pair `toml:"pair"`
}

const (
	DefaultTradeURL     = "https://trade.zano.org"
	DefaultWalletRPCURL = "http://localhost:11211/json_rpc"

	DefaultPingInterval   = 15 * time.Second
	DefaultRestartDelay   = 5 * time.Second
	DefaultDrainDelay     = 5 * time.Second
	DefaultResyncInterval = 2 * time.Minute
)

// Load reads the TOML file at path, applies environment variable overrides
// and defaults, and validates the result. A .env file in the current
// directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	c := new(Config)
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("could not decode config file %q: %w", path, err)
	}

	applyEnvOverrides(c)
	c.setDefaults()

	if err := c.Check(); err != nil {
		return nil, err
	}
	return c, nil
}

func applyEnvOverrides(c *Config) {
	setString(&c.WalletRPCURL, "ZANOBOT_WALLET_RPC_URL")
	setString(&c.TradeURL, "ZANOBOT_TRADE_URL")
	setString(&c.TradeWsURL, "ZANOBOT_TRADE_WS_URL")
	setString(&c.DataDir, "ZANOBOT_DATA_DIR")
	setString(&c.Telegram.BotToken, "ZANOBOT_TELEGRAM_BOT_TOKEN")
	setInt64(&c.Telegram.ChatID, "ZANOBOT_TELEGRAM_CHAT_ID")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); len(v) != 0 {
		*dst = v
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); len(v) != 0 {
		if x, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = x
		}
	}
}

func (c *Config) setDefaults() {
	if len(c.WalletRPCURL) == 0 {
		c.WalletRPCURL = DefaultWalletRPCURL
	}
	if len(c.TradeURL) == 0 {
		c.TradeURL = DefaultTradeURL
	}
	if c.PingInterval == 0 {
		c.PingInterval = Duration(DefaultPingInterval)
	}
	if c.RestartDelay == 0 {
		c.RestartDelay = Duration(DefaultRestartDelay)
	}
	if c.DrainDelay == 0 {
		c.DrainDelay = Duration(DefaultDrainDelay)
	}
	if c.ResyncInterval == 0 {
		c.ResyncInterval = Duration(DefaultResyncInterval)
	}
	if c.Feed.RefreshInterval == 0 {
		c.Feed.RefreshInterval = Duration(30 * time.Second)
	}
}

// WebsocketURL returns the push-channel endpoint: TradeWsURL when set,
// otherwise the trade URL with its scheme switched to websocket.
func (c *Config) WebsocketURL() string {
	if len(c.TradeWsURL) != 0 {
		return c.TradeWsURL
	}
	u := c.TradeURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return strings.TrimSuffix(u, "/") + "/ws"
}

// Check validates the configuration and parses the decimal fields of every
// pair. Returns the first error found.
func (c *Config) Check() error {
	if len(c.Pairs) == 0 {
		return fmt.Errorf("config has no trading pairs")
	}
	seen := make(map[string]bool)
	for i, p := range c.Pairs {
		if p.PairID <= 0 {
			return fmt.Errorf("pair %d: pair_id must be positive", i)
		}
		if p.Side != "buy" && p.Side != "sell" {
			return fmt.Errorf("pair %d: side must be \"buy\" or \"sell\"", i)
		}
		amount, err := decimal.NewFromString(p.RawAmount)
		if err != nil {
			return fmt.Errorf("pair %d: invalid amount %q: %w", i, p.RawAmount, err)
		}
		if amount.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("pair %d: amount must be positive", i)
		}
		p.Amount = amount

		// Price may be omitted only when the live feed supplies it.
		if len(p.RawPrice) == 0 {
			if !c.Feed.Enabled {
				return fmt.Errorf("pair %d: price is required when the live-price feed is disabled", i)
			}
		} else {
			price, err := decimal.NewFromString(p.RawPrice)
			if err != nil {
				return fmt.Errorf("pair %d: invalid price %q: %w", i, p.RawPrice, err)
			}
			if price.LessThanOrEqual(decimal.Zero) {
				return fmt.Errorf("pair %d: price must be positive", i)
			}
			p.Price = price
		}

		if len(p.TradeID) != 0 {
			if seen[p.TradeID] {
				return fmt.Errorf("pair %d: duplicate trade_id %q", i, p.TradeID)
			}
			seen[p.TradeID] = true
		}
	}
	if c.Feed.Enabled {
		if c.Feed.Parser != "mexc" {
			return fmt.Errorf("unsupported feed parser %q", c.Feed.Parser)
		}
		if c.Feed.SensitivityPercent <= 0 {
			return fmt.Errorf("feed sensitivity_percent must be positive")
		}
		if len(c.Feed.Symbol) == 0 {
			return fmt.Errorf("feed symbol is required")
		}
	}
	return nil
}
