package websocket

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
)

var _ protocol.Transport = (*Connection)(nil)

// Connection is a websocket Transport. A reader goroutine moves incoming
// frames into an inbox that the owner polls with ReceiveEvent.
type Connection struct {
	id     string
	conn   *websocket.Conn
	config Config
	inbox  *protocol.Inbox
	logger log.Log
	closed int32

	// Write mutex to ensure thread-safe writes
	writeMu sync.Mutex
	done    chan struct{}

	messagesSent     uint64
	messagesReceived uint64
}

func newConnection(conn *websocket.Conn, config Config, logger log.Log) *Connection {
	c := &Connection{
		id:     uuid.NewString(),
		conn:   conn,
		config: config,
		inbox:  protocol.NewInbox(config.InboxSize),
		done:   make(chan struct{}),
	}
	c.logger = logger.With(
		log.String("connection_id", c.id),
		log.String("remote_addr", conn.RemoteAddr().String()),
	)
	if config.ReadLimit > 0 {
		conn.SetReadLimit(config.ReadLimit)
	}
	_ = c.inbox.Push(protocol.Event{Kind: protocol.EventConnected})
	go c.readLoop()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed once the reader goroutine stopped.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) SendMessage(data []byte) error {
	if c.IsClosed() {
		return protocol.ErrTransportClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return errors.Wrap(err, "failed to write message")
	}
	atomic.AddUint64(&c.messagesSent, 1)
	return nil
}

func (c *Connection) ReceiveEvent(fn func(protocol.Event)) bool {
	return c.inbox.Pop(fn)
}

func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Close sends a close frame and shuts the connection down.
func (c *Connection) Close() error {
	return c.CloseWithReason("connection closed")
}

func (c *Connection) CloseWithReason(reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}

	c.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.logger.Debug("Closing websocket connection", log.String("reason", reason))
	return c.conn.Close()
}

// Stats returns the number of messages sent and received.
func (c *Connection) Stats() (sent, received uint64) {
	return atomic.LoadUint64(&c.messagesSent), atomic.LoadUint64(&c.messagesReceived)
}

func (c *Connection) readLoop() {
	defer close(c.done)
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.disconnect(disconnectReason(err))
			return
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Warn("Dropping non-binary websocket message", log.Int("type", messageType))
			continue
		}
		atomic.AddUint64(&c.messagesReceived, 1)
		if err = c.inbox.Push(protocol.Event{Kind: protocol.EventMessage, Data: data}); err != nil {
			c.logger.Error("Inbound queue overflow", log.Error(err))
			_ = c.CloseWithReason("inbound queue overflow")
			c.disconnect("inbound queue overflow")
			return
		}
	}
}

func (c *Connection) disconnect(reason string) {
	atomic.StoreInt32(&c.closed, 1)
	_ = c.conn.Close()
	_ = c.inbox.Push(protocol.Event{Kind: protocol.EventDisconnected, Reason: reason})
	c.logger.Debug("Websocket connection finished", log.String("reason", reason))
}

func disconnectReason(err error) string {
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Text != "" {
			return closeErr.Text
		}
		return "closed with code " + itoa(closeErr.Code)
	}
	return err.Error()
}
