package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait     = 10 * time.Second
	maxFrameBytes = 64 << 10
	sendQueueSize = 256
)

// Client is one live WebSocket connection. Outbound frames go through a bounded queue
// drained by writePump.
type Client struct {
	conn    *websocket.Conn
	send    chan []byte
	info    ConnInfo
	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

func newClient(conn *websocket.Conn, info ConnInfo, limiter *rate.Limiter) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendQueueSize),
		info:    info,
		limiter: limiter,
		done:    make(chan struct{}),
	}
}

// Info returns the handshake metadata.
func (c *Client) Info() ConnInfo {
	return c.info
}

// enqueue reports false when the client is closed or its queue is full.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

func (c *Client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// readPump decodes frames sequentially until the connection fails and returns the cause.
func (c *Client) readPump(pongWait time.Duration, handle func(Frame, error)) error {
	defer c.close()

	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			handle(Frame{}, err)
			continue
		}
		handle(frame, nil)
	}
}
