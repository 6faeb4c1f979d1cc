package client

import "errors"

// Client-specific errors
var (
	ErrClientClosed     = errors.New("client is closed")
	ErrAlreadyConnected = errors.New("client is already connected")
	ErrNotConnected     = errors.New("client is not connected")
	ErrReconnectFailed  = errors.New("reconnection failed")
	ErrInvalidConfig    = errors.New("invalid client configuration")
)
