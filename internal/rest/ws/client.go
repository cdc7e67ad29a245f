package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Icerzack/wordlobby/internal/models"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

var (
	ErrClientClosed = errors.New("client closed")
	ErrSlowClient   = errors.New("client send queue is full")
)

// Client is the broadcast observer of one connection. Outbound messages go through a
// buffered queue drained by writePump, so Send never blocks the publisher.
type Client struct {
	userID string
	roomID string

	conn *websocket.Conn
	send chan []byte

	// quit is closed to stop writePump; done is closed once it returned
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(roomID, userID string) *Client {
	return &Client{
		userID: userID,
		roomID: roomID,
		send:   make(chan []byte, sendBufferSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Send queues event for delivery. A client whose queue is full is shut down; its read
// loop then fails and runs the normal disconnect cleanup.
func (c *Client) Send(event models.Event) error {
	msg, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Client) enqueue(msg []byte) error {
	select {
	case <-c.quit:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.shutdown()
		return ErrSlowClient
	}
}

// attach binds the upgraded connection and starts the writer.
func (c *Client) attach(conn *websocket.Conn) {
	c.conn = conn
	go c.writePump()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.quit) })
}

// close stops the writer, which sends a closure frame and closes the transport.
func (c *Client) close() {
	c.shutdown()
	if c.conn != nil {
		<-c.done
	}
}

// writePump is the only writer of the connection and owns closing it. Closing the
// transport also ends the read loop, which then runs the disconnect cleanup.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		close(c.done)
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown()
				return
			}
		case <-c.quit:
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}
