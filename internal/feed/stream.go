package feed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"margin_maker/internal/core"
	"margin_maker/pkg/websocket"
)

const messageBuffer = 256

// Dialer opens orderbook channel subscriptions over the venue websocket.
// Each stream rides its own connection; the underlying client reconnects
// and resubscribes on its own, so after a drop the consumer sees a fresh
// snapshot rather than a closed channel. Every drop is reported to the
// notifier.
type Dialer struct {
	url           string
	notifier      core.INotifier
	logger        core.ILogger
	reconnectWait time.Duration
}

func NewDialer(url string, notifier core.INotifier, logger core.ILogger) *Dialer {
	return &Dialer{
		url:      url,
		notifier: notifier,
		logger:   logger.WithField("component", "feed"),
	}
}

// SetReconnectWait overrides the initial reconnect backoff of new streams.
func (d *Dialer) SetReconnectWait(initial time.Duration) {
	d.reconnectWait = initial
}

// OpenBookStream subscribes to the orderbook channel for one pair.
func (d *Dialer) OpenBookStream(ctx context.Context, pair string) (core.IBookStream, error) {
	s := &Stream{
		pair:   pair,
		msgs:   make(chan core.BookMessage, messageBuffer),
		done:   make(chan struct{}),
		logger: d.logger,
	}

	client := websocket.NewClient(d.url, s.handleFrame, d.logger)
	if d.reconnectWait > 0 {
		client.SetReconnectWait(d.reconnectWait, 30*time.Second)
	}
	client.SetOnConnected(func() {
		if err := client.Send(subscribeRequest(pair)); err != nil {
			d.logger.Error("Failed to send orderbook subscription", "pair", pair, "error", err)
		} else {
			d.logger.Info("Subscribed to orderbook channel", "pair", pair)
		}
	})
	client.SetOnDisconnected(func(err error) {
		d.logger.Warn("Orderbook connection lost", "pair", pair, "error", err)
		d.notifier.Critical(context.Background(), "Orderbook connection lost",
			fmt.Sprintf("The %s orderbook websocket dropped; the client is reconnecting.", pair),
			map[string]string{"pair": pair})
	})

	s.client = client
	client.Start()
	return s, nil
}

// Stream is one live orderbook subscription.
type Stream struct {
	pair   string
	client *websocket.Client
	msgs   chan core.BookMessage
	done   chan struct{}
	once   sync.Once
	logger core.ILogger
}

func (s *Stream) Messages() <-chan core.BookMessage {
	return s.msgs
}

// Unsubscribe sends the channel unsubscribe request. The socket stays open
// until Close.
func (s *Stream) Unsubscribe(ctx context.Context) error {
	return s.client.Send(unsubscribeRequest(s.pair))
}

// Close tears the connection down. The message channel is left open: a
// reader stuck past Stop's grace period could still be inside handleFrame,
// and the done channel already unblocks its send.
func (s *Stream) Close() {
	s.once.Do(func() {
		close(s.done)
		s.client.Stop()
	})
}

func (s *Stream) handleFrame(raw []byte) {
	msg, err := parseBookMessage(raw)
	if err != nil {
		s.logger.Warn("Dropping undecodable orderbook frame", "pair", s.pair, "error", err)
		return
	}
	if msg == nil {
		return
	}

	select {
	case s.msgs <- *msg:
	case <-s.done:
	}
}
