// Copyright (c) 2025 Dmitry Vats

package tradeapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dvats/zanobot/ctxutil"
	ws "github.com/gorilla/websocket"
	"github.com/visvasity/topic"
)

type EventType string

const (
	EventNewOrder     EventType = "new-order"
	EventDeleteOrder  EventType = "delete-order"
	EventUpdateOrders EventType = "update-orders"
)

// Event is one push notification for a subscribed trading pair.
type Event struct {
	Type   EventType `json:"event"`
	PairID int64     `json:"pairId"`
}

type subscribeMessage struct {
	Event  string `json:"event"`
	PairID int64  `json:"pairId"`
}

// Stream is a per-pair subscription to the platform push channel. Events are
// fanned out through a topic; the Done channel is closed when the transport
// disconnects, after which the stream is dead and must be reopened.
type Stream struct {
	pairID int64

	conn *ws.Conn

	events *topic.Topic[*Event]

	cg ctxutil.CloseGroup

	done      chan struct{}
	closeOnce sync.Once
}

// OpenStream dials the platform push channel and subscribes to events for the
// given pair.
func (c *Client) OpenStream(ctx context.Context, wsURL string, pairID int64) (_ *Stream, status error) {
	var dialer ws.Dialer
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("could not dial push channel %q: %w", wsURL, err)
	}
	defer func() {
		if status != nil {
			conn.Close()
		}
	}()

	if err := conn.WriteJSON(&subscribeMessage{Event: "subscribe", PairID: pairID}); err != nil {
		return nil, fmt.Errorf("could not subscribe to pair %d events: %w", pairID, err)
	}

	s := &Stream{
		pairID: pairID,
		conn:   conn,
		events: topic.New[*Event](),
		done:   make(chan struct{}),
	}
	s.cg.Go(s.goReadLoop)
	return s, nil
}

// Events returns a receiver of push events. The receiver keeps only the most
// recent unread event, so bursts arriving during a settlement cycle coalesce
// into a single trigger.
func (s *Stream) Events() (*topic.Receiver[*Event], error) {
	return topic.Subscribe(s.events, 1, false)
}

// Done is closed when the transport has disconnected.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Close tears down the subscription. The read loop is stopped synchronously;
// no events are delivered after Close returns.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
	_ = s.conn.Close()
	s.cg.Close()
}

func (s *Stream) goReadLoop(ctx context.Context) {
	defer s.closeOnce.Do(func() { close(s.done) })

	for ctx.Err() == nil {
		ev := new(Event)
		if err := s.conn.ReadJSON(ev); err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("push channel read failed", "pair", s.pairID, "err", err)
			}
			return
		}
		switch ev.Type {
		case EventNewOrder, EventDeleteOrder, EventUpdateOrders:
			s.events.Send(ev)
		default:
			// Unknown event types are ignored.
		}
	}
}
