package transport

import "errors"

var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrTimeout          = errors.New("command timeout")
	ErrSequenceMismatch = errors.New("sequence mismatch")
	ErrTransportFault   = errors.New("transport fault")
	ErrQueueFull        = errors.New("command queue full")
	ErrHandshakeFailed  = errors.New("handshake failed")
)
