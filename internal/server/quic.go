package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/zeusync/replica/internal/core/observability/log"
	"github.com/zeusync/replica/internal/core/protocol"
	"github.com/zeusync/replica/internal/core/protocol/quic"
)

func (s *Server) startQUIC() error {
	tlsConfig, err := s.tlsConfig()
	if err != nil {
		return err
	}
	config := quic.DefaultConfig()
	config.TLSConfig = tlsConfig

	listener, err := quic.Listen(s.config.QUICAddr, s.fingerprint, config, s.logger)
	if err != nil {
		s.logger.Error("Failed to create listener", log.String("addr", s.config.QUICAddr), log.Error(err))
		return err
	}
	s.quicListener = listener

	s.workerGroup.Add(1)
	go s.acceptConnections()
	return nil
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.config.TLSCertFile != "" {
		return quic.LoadTLSConfig(s.config.TLSCertFile, s.config.TLSKeyFile)
	}
	s.logger.Warn("No TLS certificate configured, using a self-signed one")
	return quic.GenerateTLSConfig()
}

// QUICAddr returns the address the QUIC listener is bound to, or nil.
func (s *Server) QUICAddr() net.Addr {
	if s.quicListener == nil {
		return nil
	}
	return s.quicListener.Addr()
}

// acceptConnections attaches QUIC clients as their handshakes complete.
func (s *Server) acceptConnections() {
	defer s.workerGroup.Done()
	s.logger.Debug("Connection acceptor started")
	defer s.logger.Debug("Connection acceptor stopped")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	for atomic.LoadInt32(&s.running) == 1 {
		conn, err := s.quicListener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || atomic.LoadInt32(&s.running) == 0 {
				return
			}
			if errors.Is(err, protocol.ErrSchemaMismatch) || errors.Is(err, quic.ErrHandshakeFailed) {
				continue
			}
			s.logger.Error("Failed to accept connection", log.Error(err))
			// Pause briefly before retrying
			time.Sleep(100 * time.Millisecond)
			continue
		}

		if _, err = s.Attach(conn); err != nil {
			s.logger.Warn("Failed to attach QUIC client", log.String("client_id", conn.ID()), log.Error(err))
		}
	}
}
