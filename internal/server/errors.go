package server

import "errors"

// Server-specific errors
var (
	ErrServerClosed         = errors.New("server is closed")
	ErrServerNotRunning     = errors.New("server is not running")
	ErrServerAlreadyRunning = errors.New("server is already running")
	ErrMaxClientsReached    = errors.New("maximum clients reached")
	ErrClientNotFound       = errors.New("client not found")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrNoEventBus           = errors.New("world has no event bus")
	ErrInvalidConfig        = errors.New("invalid server configuration")
)
