// Package websockets implements client.Transport over a websocket
// connection using github.com/coder/websocket.
package websockets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient/client"
)

var (
	ErrNotConnected     = errors.New("transport is not connected")
	ErrAlreadyConnected = errors.New("transport is already connected")
)

var _ client.Transport = (*Transport)(nil)

// outFrame is a message queued for the write loop.
type outFrame struct {
	msgType websocket.MessageType
	data    []byte
}

// Transport is a websocket client.Transport. One Transport serves one
// connection at a time and may reconnect after Close.
type Transport struct {
	// Configuration
	url              string
	logger           *zap.Logger
	dialTimeout      time.Duration
	writeTimeout     time.Duration
	writeChannelSize int
	readLimit        int64
	framing          Framing
	authProvider     AuthorizationProvider
	headers          map[string][]string

	// Connection state
	conn     *websocket.Conn
	sink     client.Sink
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	started  int32
	stopping int32

	writeChannel chan outFrame
	done         chan struct{}
}

// Framing returns the configured framing.
func (t *Transport) Framing() Framing {
	return t.framing
}

// Connect dials the server and starts the read and write loops. Inbound
// frames go to sink until the connection ends.
func (t *Transport) Connect(ctx context.Context, sink client.Sink) error {
	if !atomic.CompareAndSwapInt32(&t.started, 0, 1) {
		return ErrAlreadyConnected
	}

	// Create context with timeout for dialing
	dialCtx, dialCancel := context.WithTimeout(ctx, t.dialTimeout)
	defer dialCancel()

	dialOptions, err := t.dialOptions(dialCtx)
	if err != nil {
		atomic.StoreInt32(&t.started, 0)
		return err
	}

	conn, _, err := websocket.Dial(dialCtx, t.url, dialOptions)
	if err != nil {
		atomic.StoreInt32(&t.started, 0)
		return fmt.Errorf("failed to connect to WebSocket: %w", err)
	}
	conn.SetReadLimit(t.readLimit)

	connCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	ch := make(chan outFrame, t.writeChannelSize)

	t.mu.Lock()
	t.conn = conn
	t.sink = sink
	t.ctx, t.cancel = connCtx, cancel
	t.done = done
	t.writeChannel = ch
	t.mu.Unlock()

	t.logger.Info("WebSocket transport connected", zap.Stringer("framing", t.framing))

	go t.readLoop(connCtx, conn, sink, done)
	go t.writeLoop(connCtx, conn, ch)

	return nil
}

func (t *Transport) dialOptions(ctx context.Context) (*websocket.DialOptions, error) {
	dialOptions := &websocket.DialOptions{}

	// Start with custom headers if configured
	if t.headers != nil {
		dialOptions.HTTPHeader = make(map[string][]string)
		for key, values := range t.headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	// Set authorization header if configured (this may override a custom Authorization header)
	if t.authProvider != nil {
		authValue, err := t.authProvider(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get authorization: %w", err)
		}
		if authValue != "" {
			if dialOptions.HTTPHeader == nil {
				dialOptions.HTTPHeader = make(map[string][]string)
			}
			dialOptions.HTTPHeader["Authorization"] = []string{authValue}
		}
	}

	return dialOptions, nil
}

// SendText queues a text frame, waiting for room in the write channel.
func (t *Transport) SendText(ctx context.Context, text string) error {
	if t.framing == FramingEngineIO {
		text = string(eioMessage) + text
	}
	return t.enqueue(ctx, outFrame{msgType: websocket.MessageText, data: []byte(text)})
}

// SendBinary queues a binary frame.
func (t *Transport) SendBinary(ctx context.Context, data []byte) error {
	return t.enqueue(ctx, outFrame{msgType: websocket.MessageBinary, data: data})
}

func (t *Transport) enqueue(ctx context.Context, frame outFrame) error {
	if atomic.LoadInt32(&t.started) == 0 {
		return ErrNotConnected
	}

	t.mu.RLock()
	connCtx, ch := t.ctx, t.writeChannel
	t.mu.RUnlock()

	if ch == nil {
		return ErrNotConnected
	}

	select {
	case ch <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-connCtx.Done():
		return ErrNotConnected
	}
}

// Close closes the connection. The sink is not notified.
func (t *Transport) Close() error {
	if atomic.LoadInt32(&t.started) == 0 {
		return nil
	}
	if !atomic.CompareAndSwapInt32(&t.stopping, 0, 1) {
		return nil // Already stopping
	}

	t.logger.Info("Closing WebSocket transport")
	t.cleanupWithStatus(websocket.StatusNormalClosure, "client disconnect")

	return nil
}

// cleanupWithStatus cancels the loops, closes the connection and waits for
// the read loop to exit.
func (t *Transport) cleanupWithStatus(status websocket.StatusCode, reason string) {
	t.mu.Lock()
	cancel, conn, done := t.cancel, t.conn, t.done
	t.conn = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if conn != nil {
		conn.Close(status, reason)
	}

	if done != nil {
		<-done
	}

	atomic.StoreInt32(&t.started, 0)
	atomic.StoreInt32(&t.stopping, 0)
}

// connectionLost tears down after a read or write failure and tells the
// sink. err is nil for a clean close by the server.
func (t *Transport) connectionLost(err error) {
	// Only trigger cleanup if we're not already stopping
	if !atomic.CompareAndSwapInt32(&t.stopping, 0, 1) {
		return
	}

	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()

	// Run cleanup in a separate goroutine; the calling loop must exit first.
	go func() {
		t.cleanupWithStatus(websocket.StatusInternalError, "connection error")
		if sink != nil {
			sink.TransportClosed(err)
		}
	}()
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn, sink client.Sink, done chan struct{}) {
	defer close(done)

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					t.logger.Info("WebSocket closed by server")
					t.connectionLost(nil)
				} else {
					t.logger.Error("Failed to read from WebSocket", zap.Error(err))
					t.connectionLost(err)
				}
			}
			return
		}

		switch msgType {
		case websocket.MessageText:
			t.handleText(ctx, sink, string(data))
		case websocket.MessageBinary:
			sink.DeliverBinary(data)
		}
	}
}

func (t *Transport) handleText(ctx context.Context, sink client.Sink, text string) {
	if t.framing == FramingRaw {
		sink.DeliverText(text)
		return
	}

	if text == "" {
		t.logger.Warn("Ignoring empty Engine.IO packet")
		return
	}

	switch text[0] {
	case eioMessage:
		sink.DeliverText(text[1:])
	case eioPing:
		// The pong echoes the ping payload.
		pong := outFrame{msgType: websocket.MessageText, data: []byte(string(eioPong) + text[1:])}
		if err := t.enqueue(ctx, pong); err != nil {
			t.logger.Warn("Failed to queue pong", zap.Error(err))
		}
	case eioOpen:
		t.logger.Debug("Engine.IO handshake", zap.String("open", text[1:]))
	case eioClose:
		t.logger.Info("Engine.IO close received")
		t.connectionLost(nil)
	case eioPong, eioNoop, eioUpgrade:
	default:
		t.logger.Warn("Ignoring unknown Engine.IO packet", zap.String("packet", text))
	}
}

func (t *Transport) writeLoop(ctx context.Context, conn *websocket.Conn, ch chan outFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-ch:
			if err := t.write(ctx, conn, frame); err != nil {
				if ctx.Err() == nil {
					t.logger.Error("Failed to write to WebSocket", zap.Error(err))
					t.connectionLost(err)
				}
				return
			}
		}
	}
}

func (t *Transport) write(ctx context.Context, conn *websocket.Conn, frame outFrame) error {
	if t.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.writeTimeout)
		defer cancel()
	}
	return conn.Write(ctx, frame.msgType, frame.data)
}
