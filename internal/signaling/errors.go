package signaling

import "errors"

var (
	ErrClientNotFound = errors.New("client not found")
	ErrSendBufferFull = errors.New("client send buffer is full")
)
