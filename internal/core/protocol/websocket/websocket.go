// Package websocket provides the websocket Transport: an http.Handler for
// servers and Dial for clients. Both sides exchange the schema fingerprint
// during the upgrade and refuse to talk across different schemas.
package websocket

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
)

// Config tunes websocket connections.
type Config struct {
	ReadLimit        int64
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	InboxSize        int
}

func DefaultConfig() Config {
	return Config{
		ReadLimit:        protocol.DefaultMaxFrameSize,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		InboxSize:        protocol.DefaultInboxSize,
	}
}

// Handler upgrades HTTP requests into Connections and hands them to accept.
type Handler struct {
	fingerprint uint64
	config      Config
	upgrader    websocket.Upgrader
	accept      func(*Connection)
	logger      log.Log
}

func NewHandler(fingerprint uint64, config Config, logger log.Log, accept func(*Connection)) *Handler {
	if logger == nil {
		logger = log.Provide()
	}
	return &Handler{
		fingerprint: fingerprint,
		config:      config,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: config.HandshakeTimeout,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		accept: accept,
		logger: logger.With(log.String("transport", "websocket")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fp, err := protocol.ParseFingerprint(r.Header.Get(protocol.FingerprintHeader))
	if err != nil || fp != h.fingerprint {
		h.logger.Warn("Rejected client with different schema",
			log.String("remote_addr", r.RemoteAddr),
			log.String("fingerprint", r.Header.Get(protocol.FingerprintHeader)),
		)
		http.Error(w, protocol.ErrSchemaMismatch.Error(), http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Websocket upgrade failed", log.Error(err))
		return
	}
	c := newConnection(conn, h.config, h.logger)
	h.logger.Info("Websocket client connected", log.String("connection_id", c.ID()))
	h.accept(c)
}

// Dial connects to a websocket Handler at url.
func Dial(ctx context.Context, url string, fingerprint uint64, config Config, logger log.Log) (*Connection, error) {
	if logger == nil {
		logger = log.Provide()
	}
	dialer := websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout}
	header := http.Header{}
	header.Set(protocol.FingerprintHeader, protocol.FormatFingerprint(fingerprint))

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusConflict {
			return nil, errors.Wrapf(protocol.ErrSchemaMismatch, "dial %s", url)
		}
		return nil, errors.Wrapf(err, "dial %s", url)
	}
	return newConnection(conn, config, logger.With(log.String("transport", "websocket"))), nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
