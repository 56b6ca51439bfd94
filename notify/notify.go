// Copyright (c) 2025 Dmitry Vats

// Package notify sends operator notifications for trading events: settled
// swaps, watcher failures and reprice restarts.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Messenger delivers one operator message. Implementations must be safe for
// concurrent use.
type Messenger interface {
	SendMessage(ctx context.Context, text string) error
}

// Nop discards all messages.
type Nop struct{}

func (Nop) SendMessage(ctx context.Context, text string) error { return nil }

// Telegram delivers messages to a fixed chat through a Telegram bot.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("could not create telegram bot: %w", err)
	}
	return &Telegram{bot: b, chatID: chatID}, nil
}

func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	params := &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}
	if _, err := t.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("could not send telegram message: %w", err)
	}
	return nil
}

// Send delivers a formatted message and logs delivery failures instead of
// returning them: notifications never interrupt trading.
func Send(ctx context.Context, m Messenger, format string, args ...any) {
	if m == nil {
		return
	}
	text := fmt.Sprintf(format, args...)
	if err := m.SendMessage(ctx, text); err != nil {
		slog.Warn("could not deliver notification", "err", err)
	}
}
