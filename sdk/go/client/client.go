// Package client connects a replica world to a replica server.
package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zeusync/replica/internal/core/fields"
	"github.com/zeusync/replica/internal/core/models"
	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/quic"
	"github.com/zeusync/replica/internal/core/protocol/websocket"
	"github.com/zeusync/replica/internal/core/replica"
	"github.com/zeusync/replica/internal/core/schema"
	"github.com/zeusync/replica/internal/core/world"
)

// Transports a client can dial.
const (
	TransportWebsocket = "websocket"
	TransportQUIC      = "quic"
)

// Config holds configuration for the client
type Config struct {
	Transport string `yaml:"transport"`
	// URL is the websocket endpoint, including the token query when the
	// server wants one.
	URL string `yaml:"url"`
	// Addr is the QUIC server address.
	Addr         string        `yaml:"addr"`
	PollInterval time.Duration `yaml:"poll_interval"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`

	// Reconnection; zero attempts disables it.
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
}

// DefaultClientConfig returns default client configuration
func DefaultClientConfig() Config {
	return Config{
		Transport:            TransportWebsocket,
		URL:                  "ws://127.0.0.1:8080/ws",
		Addr:                 "127.0.0.1:8443",
		PollInterval:         replica.DefaultPollInterval,
		DialTimeout:          10 * time.Second,
		ReconnectInterval:    time.Second,
		MaxReconnectAttempts: 5,
	}
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportWebsocket, TransportQUIC:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if c.DialTimeout <= 0 {
		return fmt.Errorf("%w: dial_timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxReconnectAttempts < 0 || c.ReconnectInterval < 0 {
		return fmt.Errorf("%w: reconnection settings must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DialFunc opens a transport to the server.
type DialFunc func(ctx context.Context, config Config, fingerprint uint64, logger log.Log) (protocol.Transport, error)

// Dial opens the transport named by config.Transport.
func Dial(ctx context.Context, config Config, fingerprint uint64, logger log.Log) (protocol.Transport, error) {
	switch config.Transport {
	case TransportQUIC:
		conn, err := quic.Dial(ctx, config.Addr, fingerprint, quic.DefaultConfig(), logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	case TransportWebsocket:
		conn, err := websocket.Dial(ctx, config.URL, fingerprint, websocket.DefaultConfig(), logger)
		if err != nil {
			return nil, err
		}
		return conn, nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, config.Transport)
	}
}

type Option func(*Client)

// WithDialer replaces Dial.
func WithDialer(dial DialFunc) Option {
	return func(c *Client) {
		c.dial = dial
	}
}

// Client keeps a replica world in sync with a server, reconnecting when the
// connection drops. Like the session it drives, a Client and its world
// belong to one goroutine.
type Client struct {
	config Config
	world  *world.World
	logger log.Log
	dial   DialFunc

	session    *replica.Session
	reconnects int
	closed     bool

	// OnStatus, when set, sees every op applied by any session.
	OnStatus func(op protocol.Op, status protocol.Status)
	// OnConnect, when set, runs after every successful connect.
	OnConnect func(s *replica.Session)
}

// NewClient creates a client replicating into w.
func NewClient(config Config, w *world.World, logger log.Log, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewNop()
	}
	c := &Client{
		config: config,
		world:  w,
		logger: logger.With(log.String("component", "client")),
		dial:   Dial,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) World() *world.World {
	return c.world
}

// Session returns the current session, or nil before the first connect.
func (c *Client) Session() *replica.Session {
	return c.session
}

// Reconnects counts the successful reconnections.
func (c *Client) Reconnects() int {
	return c.reconnects
}

// Connect dials the server and starts a new session. The replica world is
// emptied first; the server sends a full snapshot to every new session.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed {
		return ErrClientClosed
	}
	if c.session != nil && !c.session.Finished() {
		return ErrAlreadyConnected
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	t, err := c.dial(dialCtx, c.config, c.world.Schema().Fingerprint(), c.logger)
	if err != nil {
		c.logger.Error("Failed to connect to server",
			log.String("transport", c.config.Transport),
			log.Error(err))
		return err
	}

	c.reset()
	c.session = replica.NewSession(t, c.world, c.logger)
	c.session.OnStatus = c.OnStatus
	c.logger.Info("Connected to server", log.String("transport", c.config.Transport))
	if c.OnConnect != nil {
		c.OnConnect(c.session)
	}
	return nil
}

// Run connects when needed and polls until ctx is done. A dropped
// connection is retried up to MaxReconnectAttempts times, ReconnectInterval
// apart.
func (c *Client) Run(ctx context.Context) error {
	if c.session == nil || c.session.Finished() {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}
	for {
		err := c.session.Run(ctx, c.config.PollInterval)
		if !errors.Is(err, replica.ErrDisconnected) || c.closed || c.config.MaxReconnectAttempts == 0 {
			return err
		}
		c.logger.Warn("Connection lost, attempting to reconnect", log.Error(err))
		if err = c.reconnect(ctx); err != nil {
			return err
		}
	}
}

func (c *Client) reconnect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxReconnectAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.config.ReconnectInterval):
		}

		c.logger.Info("Reconnection attempt", log.Int("attempt", attempt))
		if lastErr = c.Connect(ctx); lastErr == nil {
			c.reconnects++
			return nil
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, c.config.MaxReconnectAttempts, lastErr)
}

// reset removes every entity, with their components and authority marks.
func (c *Client) reset() {
	for _, id := range c.world.Entities() {
		if err := c.world.RemoveEntity(id); err != nil {
			c.logger.Error("Failed to clear entity", log.Uint64("entity", uint64(id)), log.Error(err))
		}
	}
}

// Update changes a field of a component delegated to this replica and sends
// it to the server.
func (c *Client) Update(id models.EntityID, typeID models.TypeID, f schema.FieldID, value fields.Value) error {
	if c.session == nil {
		return ErrNotConnected
	}
	return c.session.Update(id, typeID, f, value)
}

// Close closes the client and its connection.
func (c *Client) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("Closing client")
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
