package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/meter"
	"range-meter/src/protocol"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// Client is a WebSocket connection to the range-meter server that feeds
// incoming messages to one meter per symbol.
type Client struct {
	Logger *logger.Logger

	// OnStatus and OnError receive messages no meter claims.
	OnStatus func(protocol.StatusMessage)
	OnError  func(protocol.ErrorMessage)

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu        sync.Mutex
	meters    map[string]*meter.Meter
	malformed int
}

// -----------------------------------------------------------------------------

func Dial(ctx context.Context, url string, log *logger.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, helpers.NewUpstreamUnavailable("dial "+url, err)
	}
	return &Client{
		Logger: log,
		conn:   conn,
		meters: make(map[string]*meter.Meter),
	}, nil
}

// -----------------------------------------------------------------------------

func (c *Client) send(msg protocol.ClientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// Subscribe attaches m to symbolID and asks the server for it.
func (c *Client) Subscribe(symbolID string, m *meter.Meter) error {
	c.mu.Lock()
	c.meters[symbolID] = m
	c.mu.Unlock()
	return c.send(protocol.Subscribe{Symbol: symbolID})
}

// Unsubscribe detaches the meter of symbolID.
func (c *Client) Unsubscribe(symbolID string) error {
	c.mu.Lock()
	delete(c.meters, symbolID)
	c.mu.Unlock()
	return c.send(protocol.Unsubscribe{Symbol: symbolID})
}

// Malformed returns how many inbound messages were dropped as undecodable.
func (c *Client) Malformed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.malformed
}

// -----------------------------------------------------------------------------

// Run reads until the connection ends or ctx is done. Malformed messages are
// counted and skipped.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msg, err := protocol.DecodeServer(data)
		if err != nil {
			if errors.Is(err, helpers.ErrMalformedMessage) {
				c.mu.Lock()
				c.malformed++
				c.mu.Unlock()
				c.Logger.Debug("Dropping server message: %v", err)
				continue
			}
			return err
		}
		c.dispatch(msg)
	}
}

// -----------------------------------------------------------------------------

func (c *Client) dispatch(msg protocol.ServerMessage) {
	var symbolID string
	switch v := msg.(type) {
	case protocol.PackageMessage:
		symbolID = v.Symbol
	case protocol.TickMessage:
		symbolID = v.Symbol
	case protocol.ErrorMessage:
		symbolID = v.Symbol
	case protocol.StatusMessage:
		symbolID = v.Symbol
	}

	c.mu.Lock()
	m, ok := c.meters[symbolID]
	var all []*meter.Meter
	if symbolID == "" {
		for _, mm := range c.meters {
			all = append(all, mm)
		}
	}
	c.mu.Unlock()

	if ok {
		m.Post(msg)
		return
	}

	switch v := msg.(type) {
	case protocol.StatusMessage:
		for _, mm := range all {
			mm.Post(v)
		}
		if c.OnStatus != nil {
			c.OnStatus(v)
		}
	case protocol.ErrorMessage:
		if c.OnError != nil {
			c.OnError(v)
		}
	}
}

// -----------------------------------------------------------------------------

func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}
