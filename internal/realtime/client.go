package realtime

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"parley/internal/middleware"
	"parley/internal/observability"

	"github.com/gofiber/websocket/v2"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size allowed from peer. Big enough for a max-length
	// message plus envelope overhead.
	maxFrameSize = 32768

	// Outbound buffer per socket.
	sendBufferSize = 256

	// Inbound frames queued for the serialized handler.
	inboundBufferSize = 64

	// A socket that overflows its outbound buffer this many times is closed.
	maxOverflows = 8

	// Inbound frame budget per socket, above any per-bucket limits.
	inboundRatePerSec = 50
	inboundBurst      = 100
)

// clientHub is the part of the hub a client needs.
type clientHub interface {
	UnregisterClient(c *Client)
	Name() string
}

// Client is the middleman between one websocket connection and the hub.
// Inbound frames are handled on a single per-client goroutine so one client
// cannot interleave its own events out of order.
type Client struct {
	hub clientHub

	Conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	// Inbound frames awaiting the serialized handler.
	inbound chan []byte

	UserID    uint
	SocketID  string
	SessionID uint

	// Handler invoked for each inbound frame, serially.
	IncomingHandler func(*Client, []byte)

	// OnActivity fires on every inbound frame (heartbeat touch).
	OnActivity func(*Client)

	limiter *rate.Limiter

	// Bumped from hub broadcasts and delivery workers concurrently.
	overflows atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client for an accepted connection.
func NewClient(hub clientHub, conn *websocket.Conn, userID uint, socketID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		hub:      hub,
		Conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		inbound:  make(chan []byte, inboundBufferSize),
		UserID:   userID,
		SocketID: socketID,
		limiter:  rate.NewLimiter(rate.Limit(inboundRatePerSec), inboundBurst),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is cancelled when the client disconnects; handlers doing I/O on
// behalf of this socket should run under it.
func (c *Client) Context() context.Context { return c.ctx }

// ReadPump pumps frames from the websocket into the serialized handler queue.
func (c *Client) ReadPump() {
	defer func() {
		c.cancel()
		close(c.inbound)
		c.hub.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxFrameSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("Socket read error",
					slog.Uint64("user_id", uint64(c.UserID)),
					slog.String("error", err.Error()))
			}
			return
		}

		if c.OnActivity != nil {
			c.OnActivity(c)
		}

		if !c.limiter.Allow() {
			observability.SocketEvents.WithLabelValues("frame_rate_dropped").Inc()
			continue
		}

		select {
		case c.inbound <- message:
		default:
			// The handler is wedged behind slow I/O. Dropping keeps the read
			// pump alive so pings still flow.
			observability.SocketEvents.WithLabelValues("inbound_dropped").Inc()
		}
	}
}

// HandlePump runs the serialized per-socket handler loop. It exits when the
// read pump closes the inbound channel.
func (c *Client) HandlePump() {
	for message := range c.inbound {
		if c.IncomingHandler != nil {
			c.IncomingHandler(c, message)
		}
	}
}

// WritePump pumps frames from the send channel to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a frame without blocking. Frames to a slow consumer are
// dropped with a counter; a socket that keeps overflowing is closed so the
// client reconnects and re-syncs.
func (c *Client) TrySend(message []byte) {
	defer func() {
		if r := recover(); r != nil {
			observability.SocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.send <- message:
	default:
		observability.SocketBackpressureDrops.WithLabelValues("full").Inc()
		if c.overflows.Add(1) >= maxOverflows {
			middleware.Logger.Warn("Closing overwhelmed socket",
				slog.Uint64("user_id", uint64(c.UserID)),
				slog.String("socket_id", c.SocketID))
			_ = c.Conn.Close()
		}
	}
}

// SendEvent marshals and queues an outbound event.
func (c *Client) SendEvent(event string, payload any) {
	data, err := EncodeFrame(event, payload)
	if err != nil {
		middleware.Logger.Error("Failed to encode outbound frame",
			slog.String("event", event),
			slog.String("error", err.Error()))
		return
	}
	c.TrySend(data)
}

// SendError delivers a typed error payload without disconnecting.
func (c *Client) SendError(event string, payload MessageErrorPayload) {
	c.SendEvent(event, payload)
}

// CloseSend closes the outbound channel so the write pump drains and exits.
// The hub calls this once, from UnregisterClient; concurrent TrySend calls
// racing the close are absorbed by its recover.
func (c *Client) CloseSend() {
	close(c.send)
}
