package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Client.Send while there is no connection.
var ErrNotConnected = errors.New("broadcast: not connected")

// Client is a viewer's connection to a Hub. Run keeps it connected,
// redialling with exponential backoff.
type Client struct {
	url    string
	header http.Header
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	receive func(Message)

	writeMu sync.Mutex
}

// NewClient creates a client for the hub at url. header is sent with every
// dial (e.g. an Authorization bearer token).
func NewClient(url string, header http.Header) *Client {
	return &Client{url: url, header: header, dialer: websocket.DefaultDialer}
}

// OnReceive implements Transport.
func (c *Client) OnReceive(fn func(Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receive = fn
}

// Connected reports whether the client has a live connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Send implements Transport.
func (c *Client) Send(ctx context.Context, m Message) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send %s: %w", m.Type, err)
	}
	return nil
}

// Run dials the hub and dispatches received messages until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Broadcast] dial error: %v, retrying in %v", err, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 60*time.Second)
			continue
		}
		backoff = time.Second
		log.Printf("[Broadcast] connected to %s", c.url)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		stop := context.AfterFunc(ctx, func() { conn.Close() })
		c.read(conn)
		stop()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[Broadcast] connection lost, reconnecting")
	}
}

func (c *Client) read(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, ok, err := Decode(data)
		if err != nil {
			log.Printf("[Broadcast] %v", err)
			continue
		}
		if !ok {
			continue
		}
		c.mu.Lock()
		receive := c.receive
		c.mu.Unlock()
		if receive != nil {
			receive(m)
		}
	}
}
