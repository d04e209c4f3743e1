package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/padlink-dev/padlink/config"
)

const writeRetryDelay = 200 * time.Millisecond

// Client wraps one websocket connection, either a controller or an engine
// consumer. Writes are serialized through a mutex and retried a bounded
// number of times before the connection is given up on.
type Client struct {
	ID         string
	conn       *websocket.Conn
	cfg        *config.WebSocketConfig
	ctx        context.Context
	cancel     context.CancelFunc
	lastSeen   atomic.Int64
	pingTicker *time.Ticker
	mu         sync.Mutex
	closeOnce  sync.Once
}

func NewClient(id string, conn *websocket.Conn, cfg *config.WebSocketConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		ID:     id,
		conn:   conn,
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
	}
	c.lastSeen.Store(time.Now().Unix())
	return c
}

// SafeWriteJSON writes data to the websocket with bounded retry.
func (c *Client) SafeWriteJSON(data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	operation := func() error {
		deadline := time.Now().Add(time.Duration(c.cfg.WriteTimeout) * time.Second)
		if err := c.conn.SetWriteDeadline(deadline); err != nil {
			return err
		}
		return c.conn.WriteJSON(data)
	}

	strategy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(writeRetryDelay),
			uint64(c.cfg.MaxWriteRetries),
		),
		c.ctx,
	)

	return backoff.RetryNotify(operation, strategy, func(err error, d time.Duration) {
		log.Warn().Str("connection_id", c.ID).Err(err).Dur("next_attempt_in", d).
			Msg("Retrying websocket write")
	})
}

// StartPinging runs the keep-alive ping loop and arms the pong handler. The
// read deadline is pushed forward on every pong so a silent peer eventually
// fails the read loop.
func (c *Client) StartPinging() {
	pongTimeout := time.Duration(c.cfg.PongTimeout) * time.Second
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.lastSeen.Store(time.Now().Unix())
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	c.pingTicker = time.NewTicker(time.Duration(c.cfg.PingInterval) * time.Second)
	go c.pingLoop()
}

func (c *Client) pingLoop() {
	defer c.pingTicker.Stop()

	for {
		select {
		case <-c.pingTicker.C:
			if err := c.sendPing(); err != nil {
				log.Warn().Str("connection_id", c.ID).Err(err).
					Msg("Failed to send ping, closing connection")
				c.Close(websocket.CloseInternalServerErr, "Ping failure")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) sendPing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteControl(
		websocket.PingMessage,
		[]byte{},
		time.Now().Add(time.Duration(c.cfg.WriteTimeout)*time.Second),
	)
}

// LastSeen returns the time of the most recent pong from the peer.
func (c *Client) LastSeen() time.Time {
	return time.Unix(c.lastSeen.Load(), 0)
}

// Close sends a close frame and tears the connection down. Idempotent.
func (c *Client) Close(code int, text string) {
	c.closeOnce.Do(func() {
		if c.pingTicker != nil {
			c.pingTicker.Stop()
		}
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()
		deadline := time.Now().Add(time.Duration(c.cfg.WriteTimeout) * time.Second)
		if err := c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, text),
			deadline,
		); err != nil {
			log.Debug().Str("connection_id", c.ID).Err(err).
				Msg("Error sending close message")
		}
		_ = c.conn.Close()
	})
}
