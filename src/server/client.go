package server

import (
	"sync"
	"time"

	"range-meter/src/protocol"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Constants
// -----------------------------------------------------------------------------

const (
	writeWait      = 2 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024 // client requests are tiny
)

// -----------------------------------------------------------------------------
// Client Structure
// -----------------------------------------------------------------------------

// Client is one WebSocket connection. Ticks are kept drop-latest per symbol;
// packages, errors and status go through a bounded control queue.
type Client struct {
	id   string
	hub  *Server
	conn *websocket.Conn

	control chan protocol.ServerMessage

	mu      sync.Mutex
	pending map[string]protocol.TickMessage
	order   []string
	wake    chan struct{}
}

func newClient(hub *Server, conn *websocket.Conn, queueSize int) *Client {
	return &Client{
		id:      uuid.NewString(),
		hub:     hub,
		conn:    conn,
		control: make(chan protocol.ServerMessage, queueSize),
		pending: make(map[string]protocol.TickMessage),
		wake:    make(chan struct{}, 1),
	}
}

// -----------------------------------------------------------------------------

// deliver never blocks. It is only called from the hub goroutine, which is
// also the only closer of control.
func (c *Client) deliver(msg protocol.ServerMessage) {
	if tick, ok := msg.(protocol.TickMessage); ok {
		c.mu.Lock()
		if _, queued := c.pending[tick.Symbol]; queued {
			c.hub.Metrics.DroppedTicks.WithLabelValues("client").Inc()
		} else {
			c.order = append(c.order, tick.Symbol)
		}
		c.pending[tick.Symbol] = tick
		c.mu.Unlock()

		select {
		case c.wake <- struct{}{}:
		default:
		}
		return
	}

	select {
	case c.control <- msg:
	default:
		c.hub.Metrics.DroppedTicks.WithLabelValues("control").Inc()
		c.hub.Logger.Warning("Client %s control queue full, dropping %s", c.id, msg.Type())
	}
}

// takePending returns the queued ticks in arrival order and clears the slots.
func (c *Client) takePending() []protocol.TickMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]protocol.TickMessage, 0, len(c.order))
	for _, symbol := range c.order {
		out = append(out, c.pending[symbol])
		delete(c.pending, symbol)
	}
	c.order = c.order[:0]
	return out
}

// -----------------------------------------------------------------------------
// readPump - handles incoming messages from client
// Act as a Watchdog for the connection
// -----------------------------------------------------------------------------

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
		c.hub.Logger.Debug("Client %s disconnected", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.Logger.Info("WebSocket error: %v", err)
			}
			break
		}

		req, err := protocol.DecodeClient(message)
		if err != nil {
			// Dropped and counted; the connection stays open.
			c.hub.Metrics.MalformedMessages.WithLabelValues("client").Inc()
			c.hub.ErrorHandler.Handle(err, "client "+c.id)
			continue
		}

		select {
		case c.hub.requests <- clientRequest{client: c, msg: req}:
		case <-c.hub.ctx.Done():
			return
		}
	}
}

// -----------------------------------------------------------------------------
// writePump - sends messages to client
// -----------------------------------------------------------------------------

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.control:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.write(message) {
				return
			}

		case <-c.wake:
			// Packages and status queued before these ticks go first.
			if !c.drainControl() {
				return
			}
			for _, tick := range c.takePending() {
				if !c.write(tick) {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drainControl writes whatever is already queued on control.
func (c *Client) drainControl() bool {
	for {
		select {
		case message, ok := <-c.control:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return false
			}
			if !c.write(message) {
				return false
			}
		default:
			return true
		}
	}
}

func (c *Client) write(msg protocol.ServerMessage) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.hub.Logger.Info("Write error: %v", err)
		return false
	}
	c.hub.Metrics.DeliveredMessages.WithLabelValues(msg.Type()).Inc()
	return true
}
