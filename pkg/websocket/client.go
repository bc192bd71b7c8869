// Package websocket provides a resilient WebSocket client with an explicit
// reconnect state machine and bounded backoff.
package websocket

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"context"

	"margin_maker/internal/core"
	"margin_maker/pkg/telemetry"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// State is the connection state of the client.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

// MessageHandler handles incoming WebSocket messages.
type MessageHandler func(message []byte)

// Client is a reconnecting WebSocket client. On every successful connection
// the OnConnected callback runs (used to send channel subscriptions); on
// every connection loss the OnDisconnected callback runs.
type Client struct {
	url     string
	handler MessageHandler

	initialReconnectWait time.Duration
	maxReconnectWait     time.Duration

	conn  *websocket.Conn
	mu    sync.Mutex
	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onConnected    func()
	onDisconnected func(err error)

	pingInterval time.Duration
	pingWait     time.Duration
	pongWait     time.Duration

	logger core.ILogger

	tracer        trace.Tracer
	msgCounter    metric.Int64Counter
	reconnCounter metric.Int64Counter
}

// NewClient creates a new WebSocket client.
func NewClient(url string, handler MessageHandler, logger core.ILogger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	tracer := telemetry.GetTracer("ws-client")
	meter := telemetry.GetMeter("ws-client")

	msgCounter, _ := meter.Int64Counter("ws_messages_total",
		metric.WithDescription("Total number of WebSocket messages received"))
	reconnCounter, _ := meter.Int64Counter("ws_connections_total",
		metric.WithDescription("Total number of WebSocket connections initiated"))

	return &Client{
		url:                  url,
		handler:              handler,
		initialReconnectWait: time.Second,
		maxReconnectWait:     30 * time.Second,
		pingInterval:         30 * time.Second,
		pingWait:             10 * time.Second,
		pongWait:             60 * time.Second,
		ctx:                  ctx,
		cancel:               cancel,
		logger:               logger,
		tracer:               tracer,
		msgCounter:           msgCounter,
		reconnCounter:        reconnCounter,
	}
}

// SetReconnectWait sets the initial and maximum reconnect backoff.
func (c *Client) SetReconnectWait(initial, max time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialReconnectWait = initial
	c.maxReconnectWait = max
}

// SetPingConfig sets the ping/pong configuration.
func (c *Client) SetPingConfig(interval, wait, pongWait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingInterval = interval
	c.pingWait = wait
	c.pongWait = pongWait
}

// SetOnConnected sets the callback run after each successful connection.
func (c *Client) SetOnConnected(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnected = cb
}

// SetOnDisconnected sets the callback run after each connection loss.
func (c *Client) SetOnDisconnected(cb func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnected = cb
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Send sends a JSON message over the WebSocket.
func (c *Client) Send(message interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.conn.WriteJSON(message)
}

// Start connects and begins listening for messages.
func (c *Client) Start() {
	c.wg.Add(1)
	go c.runLoop()
}

// Stop closes the connection and stops the loop.
func (c *Client) Stop() {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		if c.logger != nil {
			c.logger.Warn("WebSocket client Stop: some goroutines did not exit within timeout")
		}
	}

	c.closeConn()
	c.state.Store(int32(StateDisconnected))
}

func (c *Client) runLoop() {
	defer c.wg.Done()

	wait := c.initialReconnectWait
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.state.Store(int32(StateConnecting))
		if err := c.connect(); err != nil {
			c.state.Store(int32(StateDisconnected))
			if c.logger != nil {
				c.logger.Error("WebSocket connect failed", "url", c.url, "error", err)
			}
			c.notifyDisconnected(err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(wait):
				wait = min(wait*2, c.maxReconnectWait)
			}
			continue
		}
		wait = c.initialReconnectWait

		c.mu.Lock()
		onConnected := c.onConnected
		pingInterval := c.pingInterval
		c.mu.Unlock()

		c.state.Store(int32(StateSubscribed))
		if onConnected != nil {
			onConnected()
		}

		heartbeatCtx, heartbeatCancel := context.WithCancel(c.ctx)
		if pingInterval > 0 {
			c.wg.Add(1)
			go c.heartbeat(heartbeatCtx)
		}

		c.readLoop()
		heartbeatCancel()
		c.state.Store(int32(StateDisconnected))

		select {
		case <-c.ctx.Done():
			return
		default:
			c.notifyDisconnected(fmt.Errorf("connection lost"))
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(wait):
			wait = min(wait*2, c.maxReconnectWait)
		}
	}
}

func (c *Client) notifyDisconnected(err error) {
	c.mu.Lock()
	cb := c.onDisconnected
	c.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	defer c.wg.Done()
	c.mu.Lock()
	interval := c.pingInterval
	wait := c.pingWait
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()

			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wait)); err != nil {
				// Ping failure closes the connection to trigger reconnect.
				c.closeConn()
				return
			}
		}
	}
}

func (c *Client) connect() error {
	ctx, span := c.tracer.Start(c.ctx, "WS Connect",
		trace.WithAttributes(attribute.String("ws.url", c.url)),
	)
	defer span.End()

	c.reconnCounter.Add(ctx, 1)
	telemetry.GetGlobalMetrics().WSReconnectsTotal.Add(ctx, 1)


	c.mu.Lock()
	defer c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		span.RecordError(err)
		return err
	}

	conn.SetReadDeadline(time.Now().Add(c.pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	c.conn = conn
	return nil
}

func (c *Client) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) readLoop() {
	defer c.closeConn()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				return
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}

			c.msgCounter.Add(c.ctx, 1)
			if c.handler != nil {
				c.handler(message)
			}
		}
	}
}
