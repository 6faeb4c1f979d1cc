package quic

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
)

var _ protocol.Transport = (*Connection)(nil)

// Connection is a QUIC Transport over a single stream.
type Connection struct {
	id       string
	conn     *quic.Conn
	stream   *quic.Stream
	maxFrame int
	inbox    *protocol.Inbox
	logger   log.Log
	closed   int32

	writeMu sync.Mutex
	done    chan struct{}
}

func newConnection(conn *quic.Conn, stream *quic.Stream, config Config, logger log.Log) *Connection {
	c := &Connection{
		id:       uuid.NewString(),
		conn:     conn,
		stream:   stream,
		maxFrame: config.MaxFrameSize,
		inbox:    protocol.NewInbox(config.InboxSize),
		done:     make(chan struct{}),
	}
	if c.maxFrame <= 0 {
		c.maxFrame = protocol.DefaultMaxFrameSize
	}
	c.logger = logger.With(
		log.String("connection_id", c.id),
		log.String("remote_addr", conn.RemoteAddr().String()),
	)
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

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

func (c *Connection) SendMessage(data []byte) error {
	if c.IsClosed() {
		return protocol.ErrTransportClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := protocol.WriteFrame(c.stream, data, c.maxFrame); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

func (c *Connection) ReceiveEvent(fn func(protocol.Event)) bool {
	return c.inbox.Pop(fn)
}

func (c *Connection) Close() error {
	return c.CloseWithReason("connection closed")
}

func (c *Connection) CloseWithReason(reason string) error {
	return c.closeWithError(codeNoError, reason)
}

func (c *Connection) closeWithError(code quic.ApplicationErrorCode, reason string) error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	c.logger.Debug("Closing QUIC connection", log.String("reason", reason))
	return c.conn.CloseWithError(code, reason)
}

func (c *Connection) readLoop() {
	defer close(c.done)
	for {
		data, err := protocol.ReadFrame(c.stream, c.maxFrame)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				c.logger.Error("Dropping connection with oversized frame", log.Error(err))
				_ = c.closeWithError(codeOverflow, "frame too large")
			}
			c.disconnect(disconnectReason(err))
			return
		}
		if err = c.inbox.Push(protocol.Event{Kind: protocol.EventMessage, Data: data}); err != nil {
			c.logger.Error("Inbound queue overflow", log.Error(err))
			_ = c.closeWithError(codeOverflow, "inbound queue overflow")
			c.disconnect("inbound queue overflow")
			return
		}
	}
}

func (c *Connection) disconnect(reason string) {
	atomic.StoreInt32(&c.closed, 1)
	_ = c.conn.CloseWithError(codeNoError, reason)
	_ = c.inbox.Push(protocol.Event{Kind: protocol.EventDisconnected, Reason: reason})
	c.logger.Debug("QUIC connection finished", log.String("reason", reason))
}

func disconnectReason(err error) string {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.ErrorMessage
	}
	if errors.Is(err, io.EOF) {
		return "stream closed"
	}
	return err.Error()
}
