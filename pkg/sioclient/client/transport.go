package client

import (
	"context"
)

// Sink receives inbound frames from a Transport. Client implements Sink; its
// methods never block.
type Sink interface {
	DeliverText(text string)
	DeliverBinary(data []byte)
	// TransportClosed reports that the connection ended without Close being
	// called. err is nil for a clean remote close.
	TransportClosed(err error)
}

// Transport carries text and binary frames. A Client calls SendText and
// SendBinary only from its loop goroutine, so implementations see frames in
// the order the client produced them.
type Transport interface {
	Connect(ctx context.Context, sink Sink) error
	SendText(ctx context.Context, text string) error
	SendBinary(ctx context.Context, data []byte) error
	Close() error
}

// Monitor receives client lifecycle notifications. Methods are called from
// the client's loop goroutine and must not block.
type Monitor interface {
	// OnConnect is called when the server confirms the namespace connection.
	OnConnect(ctx context.Context, client *Client)

	// OnDisconnect is called when the session ends, err is nil for a
	// requested disconnect.
	OnDisconnect(ctx context.Context, client *Client, err error)

	// OnProtocolError is called for every malformed or out-of-sequence frame.
	OnProtocolError(ctx context.Context, client *Client, err error)
}
