// Package signaling implements the participant side of the room relay
// protocol: join a room, learn the other members' addresses, and exchange
// offer/answer/candidate signals with them over one websocket.
package signaling

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/calebmer/decode-universe-sub001/internal/signal"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Incoming is one relayed signal as received from another room member.
type Incoming struct {
	From   string
	Signal signal.Signal
}

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string

	outgoing chan *signal.Message
	signals  chan Incoming
	joined   chan signal.JoinedPayload
	errs     chan string
	done     chan struct{}

	mu      sync.Mutex
	address string
	closed  bool
}

// NewClient creates a new signaling client for the given relay URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		outgoing:  make(chan *signal.Message, 32),
		signals:   make(chan Incoming, 32),
		joined:    make(chan signal.JoinedPayload, 1),
		errs:      make(chan string, 1),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay and starts the
// read and write pumps.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return &RelayError{Op: "connect", Err: err, Details: "invalid server URL"}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return newError("connect", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// Join asks the relay to add us to roomName and returns the addresses of
// the members that were already present. The relay also assigns our own
// address, available from Address afterwards.
func (c *Client) Join(ctx context.Context, roomName string) ([]string, error) {
	msg, err := signal.NewMessage(signal.MessageTypeJoin, signal.JoinPayload{RoomName: roomName})
	if err != nil {
		return nil, err
	}
	c.outgoing <- msg

	select {
	case payload := <-c.joined:
		c.mu.Lock()
		c.address = payload.Address
		c.mu.Unlock()
		return payload.OtherAddresses, nil
	case errMsg := <-c.errs:
		return nil, newRoomError("join", roomName, ErrRelay, errMsg)
	case <-c.done:
		return nil, newRoomError("join", roomName, ErrClosed, "")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Address returns the relay-assigned address, empty before Join completes.
func (c *Client) Address() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// Send relays one signal to the room member at the given address. Delivery
// is best effort; a lost signal is recovered by a later renegotiation.
func (c *Client) Send(to string, s signal.Signal) {
	msg, err := signal.NewMessage(signal.MessageTypeSignal, signal.SignalPayload{To: to, Signal: s})
	if err != nil {
		return
	}
	select {
	case c.outgoing <- msg:
	case <-c.done:
	}
}

// Signals returns the channel of relayed signals from other members. It is
// closed when the connection ends.
func (c *Client) Signals() <-chan Incoming {
	return c.signals
}

// readPump reads messages from the WebSocket connection and routes them.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.signals)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg signal.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.route(&msg)
	}
}

func (c *Client) route(msg *signal.Message) {
	switch msg.Type {
	case signal.MessageTypeJoined:
		var payload signal.JoinedPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return
		}
		select {
		case c.joined <- payload:
		default:
		}

	case signal.MessageTypeSignal:
		var payload signal.SignalPayload
		if err := msg.DecodePayload(&payload); err != nil {
			return
		}
		select {
		case c.signals <- Incoming{From: payload.From, Signal: payload.Signal}:
		case <-c.done:
		}

	case signal.MessageTypeError:
		var payload signal.ErrorPayload
		if err := msg.DecodePayload(&payload); err != nil {
			payload.Error = "unknown error from relay"
		}
		select {
		case c.errs <- payload.Error:
		default:
		}
	}
}

// writePump writes messages to the WebSocket connection and sends periodic
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// Close closes the WebSocket connection and cleans up resources. It is safe
// to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
}
