package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol/websocket"
)

// Handler returns the HTTP handler serving websocket replicas.
func (s *Server) Handler() http.Handler {
	ws := websocket.NewHandler(s.fingerprint, websocket.DefaultConfig(), s.logger, func(c *websocket.Connection) {
		// Attach closes the connection when it fails.
		_, _ = s.Attach(c)
	})

	mux := http.NewServeMux()
	mux.Handle(s.config.WebsocketPath, s.authorize(ws))
	return mux
}

// authorize checks the shared token, when one is configured, before the
// upgrade.
func (s *Server) authorize(next http.Handler) http.Handler {
	if s.config.AuthToken == "" {
		return next
	}
	want := []byte(s.config.AuthToken)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			s.logger.Warn("Rejected unauthorized client", log.String("remote_addr", r.RemoteAddr))
			http.Error(w, ErrUnauthorized.Error(), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) startHTTP() error {
	listener, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		s.logger.Error("Failed to create listener", log.String("addr", s.config.HTTPAddr), log.Error(err))
		return fmt.Errorf("listen %s: %w", s.config.HTTPAddr, err)
	}
	s.httpAddr.Store(listener.Addr())
	s.httpServer = &http.Server{Handler: s.Handler()}

	s.workerGroup.Add(1)
	go func() {
		defer s.workerGroup.Done()
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server failed", log.Error(err))
		}
	}()

	s.logger.Info("Websocket endpoint listening",
		log.String("addr", listener.Addr().String()),
		log.String("path", s.config.WebsocketPath))
	return nil
}

// HTTPAddr returns the address the websocket endpoint listens on, or nil.
func (s *Server) HTTPAddr() net.Addr {
	addr, _ := s.httpAddr.Load().(net.Addr)
	return addr
}
