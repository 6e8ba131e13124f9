package client

import "errors"

var (
	ErrNotStarted     = errors.New("client is not started")
	ErrAlreadyStarted = errors.New("client is already started")
	ErrNoTransport    = errors.New("client has no transport")
)
