package websocket

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chatrelay/internal/domain"
	"github.com/pscheid92/chatrelay/internal/metrics"
	"github.com/pscheid92/chatrelay/internal/relay"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

// Conn adapts a websocket connection to relay.Transport. Outbound frames are
// queued and written by a dedicated goroutine so Send never blocks a fan-out.
type Conn struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	sendChannel chan []byte
	doneChannel chan struct{}
	stopOnce    sync.Once
	closed      atomic.Bool
	wg          sync.WaitGroup
}

var _ relay.Transport = (*Conn)(nil)

func NewConn(connection *websocket.Conn, clock clockwork.Clock) *Conn {
	c := &Conn{
		connection:  connection,
		clock:       clock,
		sendChannel: make(chan []byte, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	c.configurePongHandler()
	c.wg.Add(1)
	go c.run()
	return c
}

// Send queues data for delivery. A client whose buffer is full is too slow to
// keep up and gets disconnected.
func (c *Conn) Send(data []byte) error {
	if c.closed.Load() {
		return domain.ErrTransportClosed
	}

	select {
	case c.sendChannel <- data:
		return nil
	default:
		metrics.WebSocketSlowClientsEvicted.Inc()
		c.shutdown()
		return domain.ErrSlowConsumer
	}
}

func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// ReadMessage blocks for the next data frame. Control frames are handled
// internally by gorilla/websocket.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, data, err := c.connection.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.updateReadDeadline()
	return data, nil
}

// SetReadLimit caps the size of an inbound frame.
func (c *Conn) SetReadLimit(limit int64) {
	c.connection.SetReadLimit(limit)
}

// Close tears the connection down without a close handshake and waits for the
// writer to exit.
func (c *Conn) Close() {
	c.shutdown()
	c.wg.Wait()
}

// CloseGraceful stops the writer, then sends a normal-closure frame with reason.
// Frames still queued are dropped.
func (c *Conn) CloseGraceful(reason string) {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		close(c.doneChannel)

		// no concurrent writes once the writer has exited
		c.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		c.updateWriteDeadline()
		_ = c.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = c.connection.Close()
	})
	c.wg.Wait()
}

func (c *Conn) shutdown() {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		close(c.doneChannel)
		_ = c.connection.Close()
	})
}

func (c *Conn) run() {
	ticker := c.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.wg.Done()

	for {
		select {
		case msg := <-c.sendChannel:
			start := c.clock.Now()
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
			metrics.WebSocketMessageSendDuration.Observe(c.clock.Since(start).Seconds())
		case <-ticker.Chan():
			c.updateWriteDeadline()
			if err := c.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				metrics.WebSocketPingFailures.Inc()
				c.shutdown()
				return
			}
		case <-c.doneChannel:
			return
		}
	}
}

func (c *Conn) configurePongHandler() {
	c.updateReadDeadline()
	c.connection.SetPongHandler(func(string) error {
		c.updateReadDeadline()
		return nil
	})
}

func (c *Conn) updateWriteDeadline() {
	_ = c.connection.SetWriteDeadline(c.clock.Now().Add(writeDeadline))
}

func (c *Conn) updateReadDeadline() {
	_ = c.connection.SetReadDeadline(c.clock.Now().Add(pongDeadline))
}

// isExpectedClose reports whether err is an ordinary end of a client session.
func isExpectedClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, websocket.ErrCloseSent)
}
