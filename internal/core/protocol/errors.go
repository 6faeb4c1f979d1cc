package protocol

import "errors"

var (
	// Op errors

	ErrUnknownOp   = errors.New("unknown op kind")
	ErrMalformedOp = errors.New("malformed op")

	// Transport errors

	ErrTransportClosed = errors.New("transport is closed")
	ErrSchemaMismatch  = errors.New("schema fingerprint mismatch")
	ErrFrameTooLarge   = errors.New("frame too large")
	ErrInboxFull       = errors.New("inbound event queue is full")
)
