// Package quic provides the QUIC Transport. Each connection carries one
// bidirectional stream of length-prefixed frames. The client opens the stream
// with its schema fingerprint and the server acknowledges it or closes the
// connection with codeSchemaMismatch.
package quic

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/pkg/encoding"
)

const (
	codeNoError        quic.ApplicationErrorCode = 0
	codeSchemaMismatch quic.ApplicationErrorCode = 1
	codeOverflow       quic.ApplicationErrorCode = 2

	handshakeAck byte = 1

	acceptBacklog = 64
)

// DefaultHandshakeTimeout bounds the fingerprint exchange of one client.
const DefaultHandshakeTimeout = 5 * time.Second

// ErrHandshakeFailed reports a client that connected but did not complete
// the fingerprint exchange.
var ErrHandshakeFailed = errors.New("quic handshake failed")

// Config holds QUIC-specific configuration.
type Config struct {
	MaxIdleTimeout       time.Duration
	KeepAlivePeriod      time.Duration
	HandshakeIdleTimeout time.Duration
	HandshakeTimeout     time.Duration // fingerprint exchange, after the QUIC handshake
	MaxFrameSize         int
	InboxSize            int

	// TLSConfig is required to listen. Dial falls back to
	// InsecureClientTLSConfig when it is nil.
	TLSConfig *tls.Config
}

func DefaultConfig() Config {
	return Config{
		MaxIdleTimeout:       30 * time.Second,
		KeepAlivePeriod:      15 * time.Second,
		HandshakeIdleTimeout: 10 * time.Second,
		HandshakeTimeout:     DefaultHandshakeTimeout,
		MaxFrameSize:         protocol.DefaultMaxFrameSize,
		InboxSize:            protocol.DefaultInboxSize,
	}
}

func (c Config) quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:       c.MaxIdleTimeout,
		KeepAlivePeriod:      c.KeepAlivePeriod,
		HandshakeIdleTimeout: c.HandshakeIdleTimeout,
	}
}

// Listener accepts QUIC clients sharing its schema fingerprint. Connections
// are accepted in the background and each runs its handshake on its own
// goroutine, so a stalled peer never holds up the others.
type Listener struct {
	listener    *quic.Listener
	fingerprint uint64
	config      Config
	logger      log.Log

	ctx     context.Context
	cancel  context.CancelFunc
	results chan accepted
}

type accepted struct {
	conn *Connection
	err  error
}

func Listen(addr string, fingerprint uint64, config Config, logger log.Log) (*Listener, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if config.TLSConfig == nil {
		return nil, errors.New("quic: listener requires a TLS config")
	}
	if config.HandshakeTimeout <= 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}
	ql, err := quic.ListenAddr(addr, config.TLSConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrap(err, "failed to create QUIC listener")
	}
	logger = logger.With(log.String("transport", "quic"))
	logger.Info("QUIC listener created", log.String("addr", ql.Addr().String()))

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener:    ql,
		fingerprint: fingerprint,
		config:      config,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		results:     make(chan accepted, acceptBacklog),
	}
	go l.serve()
	return l, nil
}

func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Accept returns the next client that finished its handshake. A client with
// another schema is reported as ErrSchemaMismatch and a client that stalled
// or broke off the handshake as ErrHandshakeFailed; the listener stays
// usable after both.
func (l *Listener) Accept(ctx context.Context) (*Connection, error) {
	select {
	case res := <-l.results:
		return res.conn, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.ctx.Done():
		return nil, errors.Wrap(quic.ErrServerClosed, "failed to accept QUIC connection")
	}
}

func (l *Listener) Close() error {
	l.cancel()
	return l.listener.Close()
}

func (l *Listener) serve() {
	for {
		conn, err := l.listener.Accept(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				l.logger.Error("QUIC accept loop stopped", log.Error(err))
			}
			return
		}
		go l.handshake(conn)
	}
}

// handshake reads the client fingerprint and acknowledges it, all within
// HandshakeTimeout.
func (l *Listener) handshake(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(l.ctx, l.config.HandshakeTimeout)
	defer cancel()

	c, err := l.handshakeConn(ctx, conn)
	if err != nil {
		l.logger.Debug("QUIC handshake failed",
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.Error(err),
		)
	}
	select {
	case l.results <- accepted{conn: c, err: err}:
	case <-l.ctx.Done():
		if c != nil {
			_ = c.CloseWithReason("server closed")
		}
	}
}

func (l *Listener) handshakeConn(ctx context.Context, conn *quic.Conn) (*Connection, error) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoError, "no stream")
		return nil, errors.Wrapf(ErrHandshakeFailed, "accept stream from %s: %v", conn.RemoteAddr(), err)
	}

	var header [8]byte
	release := bound(ctx, stream)
	_, err = io.ReadFull(stream, header[:])
	if !release() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = conn.CloseWithError(codeNoError, "no handshake")
		return nil, errors.Wrapf(ErrHandshakeFailed, "read fingerprint from %s: %v", conn.RemoteAddr(), err)
	}

	fp, _ := encoding.NewReader(header[:]).Uint64()
	if fp != l.fingerprint {
		l.logger.Warn("Rejected client with different schema",
			log.String("remote_addr", conn.RemoteAddr().String()),
			log.String("fingerprint", protocol.FormatFingerprint(fp)),
		)
		_ = conn.CloseWithError(codeSchemaMismatch, protocol.ErrSchemaMismatch.Error())
		return nil, errors.Wrapf(protocol.ErrSchemaMismatch, "client %s", conn.RemoteAddr())
	}
	if _, err = stream.Write([]byte{handshakeAck}); err != nil {
		_ = conn.CloseWithError(codeNoError, "handshake failed")
		return nil, errors.Wrapf(ErrHandshakeFailed, "acknowledge %s: %v", conn.RemoteAddr(), err)
	}

	c := newConnection(conn, stream, l.config, l.logger)
	l.logger.Info("QUIC client connected", log.String("connection_id", c.ID()))
	return c, nil
}

// bound makes reads on stream fail once ctx is done. release lifts the
// bound and reports false when ctx fired first.
func bound(ctx context.Context, stream *quic.Stream) (release func() bool) {
	stop := context.AfterFunc(ctx, func() {
		_ = stream.SetReadDeadline(time.Now())
	})
	return func() bool {
		if !stop() {
			return false
		}
		_ = stream.SetReadDeadline(time.Time{})
		return true
	}
}

// Dial connects to a Listener at addr.
func Dial(ctx context.Context, addr string, fingerprint uint64, config Config, logger log.Log) (*Connection, error) {
	if logger == nil {
		logger = log.Provide()
	}
	logger = logger.With(log.String("transport", "quic"))

	tlsConfig := config.TLSConfig
	if tlsConfig == nil {
		tlsConfig = InsecureClientTLSConfig()
	}
	tlsConfig = tlsConfig.Clone()
	if tlsConfig.ServerName == "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			tlsConfig.ServerName = host
		} else {
			tlsConfig.ServerName = addr
		}
	}

	conn, err := quic.DialAddr(ctx, addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(codeNoError, "no stream")
		return nil, errors.Wrap(err, "failed to open stream")
	}

	header := encoding.NewWriter(make([]byte, 0, 8))
	header.Uint64(fingerprint)
	if _, err = stream.Write(header.Bytes()); err != nil {
		_ = conn.CloseWithError(codeNoError, "handshake failed")
		return nil, errors.Wrap(err, "failed to send handshake")
	}

	var ack [1]byte
	release := bound(ctx, stream)
	_, err = io.ReadFull(stream, ack[:])
	if !release() && err == nil {
		err = ctx.Err()
	}
	if err != nil {
		var appErr *quic.ApplicationError
		if errors.As(err, &appErr) && appErr.ErrorCode == codeSchemaMismatch {
			return nil, errors.Wrapf(protocol.ErrSchemaMismatch, "dial %s", addr)
		}
		_ = conn.CloseWithError(codeNoError, "handshake failed")
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "dial %s: no handshake reply", addr)
		}
		return nil, errors.Wrap(err, "failed to read handshake")
	}
	return newConnection(conn, stream, config, logger), nil
}
