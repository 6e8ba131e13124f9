// Package client is the protocol engine: it turns inbound frames into
// handler invocations and ack callbacks, and emits events over a Transport.
//
// All protocol state is owned by a single loop goroutine started with Start.
// Inbound frames, outbound sends, ack registration and ack timeouts are all
// queued to that loop, so callbacks never run concurrently with each other.
// Handler registration is safe from any goroutine and takes effect
// immediately.
package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/ack"
	"github.com/tsarna/sioclient/pkg/sioclient/binary"
	"github.com/tsarna/sioclient/pkg/sioclient/handlers"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
	"github.com/tsarna/sioclient/pkg/sioclient/parser"
)

// Reserved event names dispatched by the client itself.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventError      = "error"
)

// Disconnect reasons, passed as the single argument of the disconnect event.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
	ReasonProtocolError    = "parse error"
)

type (
	Handler     = handlers.Handler
	AnyHandler  = handlers.AnyHandler
	AckFunc     = handlers.AckFunc
	HandlerID   = handlers.ID
	AckCallback = ack.Callback
)

// AckRequest completes a two-step EmitWithAck. A zero timeout waits until
// the ack arrives or the session ends.
type AckRequest func(timeout time.Duration, callback AckCallback) error

// Client is a single namespace connection.
type Client struct {
	// Configuration
	logger                    *zap.Logger
	clock                     clock.Clock
	namespace                 string
	transport                 Transport
	monitor                   Monitor
	metrics                   *ClientMetrics
	tracer                    o11y.TracingProvider
	auth                      sioclient.Data
	alwaysSendConnect         bool
	disconnectOnProtocolError bool

	acks     *ack.Registry
	handlers *handlers.Registry

	// Owned by the loop goroutine
	reconstructor *binary.Reconstructor
	ackStarted    map[int64]time.Time
	transportOpen bool

	mailbox   *mailbox
	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	started   int32
	connected int32
}

func newClient(b *ClientBuilder, auth sioclient.Data) *Client {
	c := &Client{
		logger:                    b.logger.With(zap.String("namespace", b.namespace)),
		clock:                     b.clock,
		namespace:                 b.namespace,
		transport:                 b.transport,
		monitor:                   b.monitor,
		metrics:                   NewClientMetrics(b.observability.MetricsProvider),
		tracer:                    b.observability.TracingProvider,
		auth:                      auth,
		alwaysSendConnect:         b.alwaysSendConnect,
		disconnectOnProtocolError: b.disconnectOnProtocolError,
		handlers:                  handlers.NewRegistry(),
		reconstructor:             binary.NewReconstructor(),
		ackStarted:                make(map[int64]time.Time),
		mailbox:                   newMailbox(),
	}

	c.acks = ack.NewRegistry().
		WithClock(b.clock).
		WithLogger(c.logger).
		WithExpirer(func(id int64) {
			c.mailbox.push(message{msgType: messageTypeExpire, id: id})
		})

	return c
}

// Start begins the client's loop goroutine. Frames and emits queued before
// Start are processed once it runs.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !atomic.CompareAndSwapInt32(&c.started, 0, 1) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)

	return nil
}

// Stop ends the loop goroutine, closes the transport if it is still open and
// cancels pending acks. Messages still queued are dropped; queued emits with
// an ack get their callback with an empty payload. Stop must not be
// called from a handler or ack callback.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if atomic.LoadInt32(&c.started) == 0 {
		return ErrNotStarted
	}

	c.cancel()
	<-c.done
	atomic.StoreInt32(&c.started, 0)

	var err error
	if c.transportOpen {
		c.transportOpen = false
		err = c.transport.Close()
	}
	atomic.StoreInt32(&c.connected, 0)

	ctx := context.Background()
	c.reconstructor.Reset()
	c.clearAcks(ctx)

	return err
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	c.logger.Info("Client started, processing frames")

	for {
		select {
		case <-ctx.Done():
			for _, msg := range c.mailbox.drain() {
				c.drop(msg)
			}
			c.logger.Info("Client stopped")
			return

		case <-c.mailbox.signal:
			for _, msg := range c.mailbox.drain() {
				if ctx.Err() != nil {
					c.drop(msg)
					continue
				}
				msg.reply(c.handleMessage(ctx, msg))
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg message) error {
	switch msg.msgType {
	case messageTypeText:
		return c.onText(ctx, msg.text)
	case messageTypeBinary:
		return c.onBinary(ctx, msg.data)
	case messageTypeSend:
		return c.send(ctx, msg.out)
	case messageTypeExpire:
		c.expireAck(ctx, msg.id)
	case messageTypeConnected:
		return c.onTransportConnected(ctx)
	case messageTypeTransportClosed:
		c.onTransportClosed(ctx, msg.err)
	case messageTypeDisconnect:
		return c.disconnect(ctx, nil)
	case messageTypeCall:
		msg.call()
	}
	return nil
}

// drop discards a message the stopping loop will not handle. A queued emit
// still owes its ack callback one invocation.
func (c *Client) drop(msg message) {
	if msg.msgType == messageTypeSend && msg.out != nil {
		if msg.out.ack != nil && msg.out.ack.callback != nil {
			msg.out.ack.callback([]sioclient.Data{})
		}
		endSpan(msg.out.span, ErrNotStarted)
	}
	msg.reply(ErrNotStarted)
}

func (m message) reply(err error) {
	if m.result != nil {
		m.result <- err
	}
}

// await queues msg and waits until the loop has handled it.
func (c *Client) await(ctx context.Context, msg message) error {
	c.mu.Lock()
	done := c.done
	running := atomic.LoadInt32(&c.started) == 1
	c.mu.Unlock()

	if !running {
		return ErrNotStarted
	}

	msg.result = make(chan error, 1)
	c.mailbox.push(msg)

	select {
	case err := <-msg.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		select {
		case err := <-msg.result:
			return err
		default:
			return ErrNotStarted
		}
	}
}

// Sink implementation

// DeliverText queues an inbound text frame. It never blocks.
func (c *Client) DeliverText(text string) {
	c.mailbox.push(message{msgType: messageTypeText, text: text})
}

// DeliverBinary queues an inbound binary frame. It never blocks.
func (c *Client) DeliverBinary(data []byte) {
	c.mailbox.push(message{msgType: messageTypeBinary, data: data})
}

// TransportClosed ends the session after the transport lost its connection.
func (c *Client) TransportClosed(err error) {
	c.mailbox.push(message{msgType: messageTypeTransportClosed, err: err})
}

// HandleText processes a text frame and waits for the outcome. The returned
// error is the frame's *sioclient.ParseError or *sioclient.SequencingError,
// which has also been reported through the error event.
func (c *Client) HandleText(ctx context.Context, text string) error {
	return c.await(ctx, message{msgType: messageTypeText, text: text})
}

// HandleBinary is the binary-frame counterpart of HandleText.
func (c *Client) HandleBinary(ctx context.Context, data []byte) error {
	return c.await(ctx, message{msgType: messageTypeBinary, data: data})
}

// Connection lifecycle

// Connect opens the transport and, for a non-default namespace or when
// configured, sends the Connect packet. The connect event fires when the
// server confirms.
func (c *Client) Connect(ctx context.Context) error {
	if c.transport == nil {
		return ErrNoTransport
	}
	if atomic.LoadInt32(&c.started) == 0 {
		return ErrNotStarted
	}

	if err := c.transport.Connect(ctx, c); err != nil {
		return fmt.Errorf("failed to connect transport: %w", err)
	}

	return c.await(ctx, message{msgType: messageTypeConnected})
}

// Disconnect sends a Disconnect packet, closes the transport and cancels
// pending acks.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.await(ctx, message{msgType: messageTypeDisconnect})
}

// Connected reports whether the server has confirmed the namespace connection.
func (c *Client) Connected() bool {
	return atomic.LoadInt32(&c.connected) == 1
}

// Namespace returns the namespace this client joins.
func (c *Client) Namespace() string {
	return c.namespace
}

// Emitting

// Emit sends event with args. Arguments are converted with sioclient.FromAny;
// []byte values become binary attachments. The frame is written by the loop
// goroutine, so a nil error means the event was queued.
func (c *Client) Emit(event string, args ...any) error {
	return c.emit(event, args, nil)
}

// EmitWithAck returns the second half of a two-step emit; the event is sent
// when the returned AckRequest is called.
func (c *Client) EmitWithAck(event string, args ...any) AckRequest {
	return func(timeout time.Duration, callback AckCallback) error {
		return c.EmitWithAckTimeout(event, timeout, callback, args...)
	}
}

// EmitWithAckTimeout sends event and calls callback exactly once with the
// server's reply, or with an empty payload if timeout elapses first, the
// session ends or the frame cannot be sent. A zero timeout never expires.
func (c *Client) EmitWithAckTimeout(event string, timeout time.Duration, callback AckCallback, args ...any) error {
	if callback == nil {
		return fmt.Errorf("ack callback is required")
	}
	id := c.acks.Allocate()
	return c.emit(event, args, &pendingAck{id: id, callback: callback, timeout: timeout})
}

// CurrentAck returns the last ack id allocated, -1 before the first.
func (c *Client) CurrentAck() int64 {
	return c.acks.Current()
}

func (c *Client) emit(event string, args []any, pending *pendingAck) error {
	data, err := sioclient.FromAnySlice(args)
	if err != nil {
		return fmt.Errorf("cannot emit %q: %w", event, err)
	}

	p := &sioclient.Packet{
		Type:      sioclient.PacketTypeEvent,
		Namespace: c.namespace,
		Data:      append([]sioclient.Data{sioclient.String(event)}, data...),
	}
	if pending != nil {
		p.ID = sioclient.Int64Ptr(pending.id)
	}

	out, err := encode(p)
	if err != nil {
		return fmt.Errorf("cannot emit %q: %w", event, err)
	}
	out.ack = pending

	if c.tracer != nil {
		_, span := c.tracer.StartSpan(context.Background(), "sioclient.emit")
		span.SetAttributes(o11y.L("event", event), o11y.L("namespace", c.namespace))
		out.span = span
	}

	c.mailbox.push(message{msgType: messageTypeSend, out: out})
	return nil
}

func encode(p *sioclient.Packet) (*outbound, error) {
	text, attachments, err := parser.Encode(p)
	if err != nil {
		return nil, err
	}
	return &outbound{
		packetType:  sioclient.PacketType(text[0] - '0'),
		text:        text,
		attachments: attachments,
	}, nil
}

// Handlers

// On registers handler for event.
func (c *Client) On(event string, handler Handler) HandlerID {
	return c.handlers.On(event, handler)
}

// Once registers handler for the next occurrence of event only.
func (c *Client) Once(event string, handler Handler) HandlerID {
	return c.handlers.Once(event, handler)
}

// OnAny registers a handler that sees every event after its named handlers.
func (c *Client) OnAny(handler AnyHandler) HandlerID {
	return c.handlers.OnAny(handler)
}

// Off removes one registration.
func (c *Client) Off(id HandlerID) bool {
	return c.handlers.Off(id)
}

// OffEvent removes every handler for event.
func (c *Client) OffEvent(event string) int {
	return c.handlers.OffEvent(event)
}

// OffAll removes every handler.
func (c *Client) OffAll() {
	c.handlers.OffAll()
}

// HandlerCount returns the number of handlers registered for event.
func (c *Client) HandlerCount(event string) int {
	return c.handlers.Count(event)
}

// TotalHandlers returns the number of event handlers, catch-alls excluded.
func (c *Client) TotalHandlers() int {
	return c.handlers.Len()
}

// Inspection. These wait on the loop goroutine and must not be called from
// handlers or ack callbacks.

// PendingAcks returns the number of ack callbacks still waiting.
func (c *Client) PendingAcks(ctx context.Context) (int, error) {
	var n int
	err := c.await(ctx, message{msgType: messageTypeCall, call: func() {
		n = c.acks.Len()
	}})
	return n, err
}

// AwaitingBinary reports whether a binary packet is waiting for attachments.
func (c *Client) AwaitingBinary(ctx context.Context) (bool, error) {
	var pending bool
	err := c.await(ctx, message{msgType: messageTypeCall, call: func() {
		pending = c.reconstructor.Pending()
	}})
	return pending, err
}

// BinaryProgress returns the declared and received attachment counts of the
// binary packet being reconstructed, both zero when idle.
func (c *Client) BinaryProgress(ctx context.Context) (expected, received int, err error) {
	err = c.await(ctx, message{msgType: messageTypeCall, call: func() {
		expected = c.reconstructor.Expected()
		received = c.reconstructor.Received()
	}})
	return expected, received, err
}

// Loop-side handling

func (c *Client) onText(ctx context.Context, text string) error {
	c.metrics.RecordFrameReceived(ctx, "text", len(text))

	p, err := parser.Parse(text)
	if err != nil {
		c.protocolError(ctx, err)
		return err
	}
	c.metrics.RecordPacketReceived(ctx, p.Type)

	if !p.Type.IsBinary() {
		c.route(ctx, p)
		return nil
	}

	if c.reconstructor.Pending() {
		err := sioclient.NewSequencingError("binary packet header received while awaiting %d more attachments",
			c.reconstructor.Expected()-c.reconstructor.Received())
		c.protocolError(ctx, err)
		return err
	}

	if p.Attachments == 0 {
		c.route(ctx, p)
		return nil
	}

	if err := c.reconstructor.Begin(p, p.Attachments); err != nil {
		c.protocolError(ctx, err)
		return err
	}

	c.logger.Debug("Awaiting binary attachments",
		zap.Stringer("type", p.Type),
		zap.Int("attachments", p.Attachments),
	)
	return nil
}

func (c *Client) onBinary(ctx context.Context, data []byte) error {
	c.metrics.RecordFrameReceived(ctx, "binary", len(data))

	if !c.reconstructor.Pending() {
		err := sioclient.NewSequencingError("binary frame received with no pending binary packet")
		c.protocolError(ctx, err)
		return err
	}

	p, err := c.reconstructor.AddAttachment(data)
	if err != nil {
		c.protocolError(ctx, err)
		return err
	}
	if p != nil {
		c.route(ctx, p)
	}
	return nil
}

func (c *Client) route(ctx context.Context, p *sioclient.Packet) {
	if nsp := p.NamespaceOrDefault(); nsp != c.namespace {
		c.logger.Debug("Ignoring packet for another namespace",
			zap.String("packet_namespace", nsp),
			zap.Stringer("type", p.Type),
		)
		c.metrics.RecordPacketIgnored(ctx, nsp)
		return
	}

	switch p.Type {
	case sioclient.PacketTypeAck, sioclient.PacketTypeBinaryAck:
		c.resolveAck(ctx, p)

	case sioclient.PacketTypeEvent, sioclient.PacketTypeBinaryEvent:
		name, _ := p.EventName()
		var responder AckFunc
		if p.HasID() {
			responder = c.ackResponder(p.AckID())
		}
		c.dispatch(ctx, name, p.Args(), responder)

	case sioclient.PacketTypeError:
		c.dispatch(ctx, EventError, p.Data, nil)

	case sioclient.PacketTypeConnect:
		atomic.StoreInt32(&c.connected, 1)
		c.logger.Info("Namespace connected")
		c.dispatch(ctx, EventConnect, p.Data, nil)
		if c.monitor != nil {
			c.monitor.OnConnect(ctx, c)
		}

	case sioclient.PacketTypeDisconnect:
		c.logger.Info("Server disconnected namespace")
		c.endSession(ctx, ReasonServerDisconnect, nil)
	}
}

func (c *Client) dispatch(ctx context.Context, event string, data []sioclient.Data, responder AckFunc) {
	n := c.handlers.Dispatch(event, data, responder)
	c.metrics.RecordEventDispatched(ctx, event, n)
	c.logger.Debug("Dispatched event", zap.String("event", event), zap.Int("handlers", n))
}

// ackResponder answers an inbound event's ack id. Only the first call sends.
func (c *Client) ackResponder(id int64) AckFunc {
	var sent int32

	return func(args ...any) error {
		data, err := sioclient.FromAnySlice(args)
		if err != nil {
			return fmt.Errorf("cannot acknowledge %d: %w", id, err)
		}
		out, err := encode(&sioclient.Packet{
			Type:      sioclient.PacketTypeAck,
			Namespace: c.namespace,
			ID:        sioclient.Int64Ptr(id),
			Data:      data,
		})
		if err != nil {
			return fmt.Errorf("cannot acknowledge %d: %w", id, err)
		}

		if !atomic.CompareAndSwapInt32(&sent, 0, 1) {
			c.logger.Debug("Ignoring repeated acknowledgement", zap.Int64("id", id))
			return nil
		}

		c.mailbox.push(message{msgType: messageTypeSend, out: out})
		return nil
	}
}

func (c *Client) resolveAck(ctx context.Context, p *sioclient.Packet) {
	if !p.HasID() {
		c.logger.Debug("Ignoring ack packet without id")
		c.metrics.RecordAckStray(ctx)
		return
	}

	id := p.AckID()
	started, hasStart := c.ackStarted[id]
	if !c.acks.Resolve(id, p.Data) {
		c.metrics.RecordAckStray(ctx)
		return
	}

	delete(c.ackStarted, id)
	var latency time.Duration
	if hasStart {
		latency = c.clock.Since(started)
	}
	c.metrics.RecordAckResolved(ctx, latency)
	c.metrics.RecordAcksPending(ctx, c.acks.Len())
}

func (c *Client) expireAck(ctx context.Context, id int64) {
	if !c.acks.Expire(id) {
		return
	}
	delete(c.ackStarted, id)
	c.logger.Debug("Ack timed out", zap.Int64("id", id))
	c.metrics.RecordAckTimedOut(ctx)
	c.metrics.RecordAcksPending(ctx, c.acks.Len())
}

func (c *Client) clearAcks(ctx context.Context) {
	cleared := c.acks.Clear()
	c.ackStarted = make(map[int64]time.Time)
	if cleared > 0 {
		c.logger.Debug("Cancelled pending acks", zap.Int("count", cleared))
	}
	c.metrics.RecordAcksCleared(ctx, cleared)
	c.metrics.RecordAcksPending(ctx, 0)
}

func (c *Client) send(ctx context.Context, out *outbound) error {
	if out.ack != nil {
		if err := c.acks.Register(out.ack.id, out.ack.callback, out.ack.timeout); err != nil {
			c.logger.Error("Failed to register ack callback", zap.Int64("id", out.ack.id), zap.Error(err))
			endSpan(out.span, err)
			return err
		}
		c.ackStarted[out.ack.id] = c.clock.Now()
		c.metrics.RecordAcksPending(ctx, c.acks.Len())
	}

	err := c.write(ctx, out)
	if err != nil {
		c.logger.Warn("Failed to send packet", zap.Stringer("type", out.packetType), zap.Error(err))
		c.metrics.RecordSendError(ctx)
		if out.ack != nil {
			delete(c.ackStarted, out.ack.id)
			c.acks.Expire(out.ack.id)
			c.metrics.RecordAcksPending(ctx, c.acks.Len())
		}
	}

	endSpan(out.span, err)
	return err
}

// write sends the text frame followed by each attachment in placeholder order.
func (c *Client) write(ctx context.Context, out *outbound) error {
	if c.transport == nil {
		return ErrNoTransport
	}

	if err := c.transport.SendText(ctx, out.text); err != nil {
		return fmt.Errorf("failed to send %s packet: %w", out.packetType, err)
	}
	c.metrics.RecordFrameSent(ctx, "text", len(out.text))

	for i, attachment := range out.attachments {
		if err := c.transport.SendBinary(ctx, attachment); err != nil {
			return fmt.Errorf("failed to send attachment %d: %w", i, err)
		}
		c.metrics.RecordFrameSent(ctx, "binary", len(attachment))
	}

	c.metrics.RecordPacketSent(ctx, out.packetType)
	c.logger.Debug("Sent packet",
		zap.Stringer("type", out.packetType),
		zap.Int("attachments", len(out.attachments)),
	)
	return nil
}

func endSpan(span o11y.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.SetStatus(o11y.SpanStatusError, err.Error())
	} else {
		span.SetStatus(o11y.SpanStatusOK, "")
	}
	span.End()
}

// protocolError reports a bad frame. Sequencing errors also abandon any
// binary packet in progress.
func (c *Client) protocolError(ctx context.Context, err error) {
	c.logger.Warn("Protocol error", zap.Error(err))
	c.metrics.RecordProtocolError(ctx, err)

	if sioclient.IsSequencingError(err) {
		c.reconstructor.Reset()
	}

	c.dispatch(ctx, EventError, []sioclient.Data{sioclient.String(err.Error())}, nil)

	if c.monitor != nil {
		c.monitor.OnProtocolError(ctx, c, err)
	}

	if c.disconnectOnProtocolError {
		if derr := c.disconnect(ctx, err); derr != nil {
			c.logger.Warn("Disconnect after protocol error failed", zap.Error(derr))
		}
	}
}

func (c *Client) onTransportConnected(ctx context.Context) error {
	c.transportOpen = true
	c.logger.Info("Transport connected")

	if c.namespace == sioclient.DefaultNamespace && !c.alwaysSendConnect {
		return nil
	}

	p := &sioclient.Packet{Type: sioclient.PacketTypeConnect, Namespace: c.namespace}
	if c.auth != nil {
		p.Data = []sioclient.Data{c.auth}
	}
	out, err := encode(p)
	if err != nil {
		return fmt.Errorf("failed to encode connect packet: %w", err)
	}
	return c.send(ctx, out)
}

func (c *Client) onTransportClosed(ctx context.Context, err error) {
	if !c.transportOpen {
		return
	}
	c.transportOpen = false

	reason := ReasonTransportClose
	if err != nil {
		reason = ReasonTransportError
		c.logger.Warn("Transport closed with error", zap.Error(err))
	} else {
		c.logger.Info("Transport closed")
	}
	c.endSession(ctx, reason, err)
}

// disconnect is the client-initiated close; cause is the protocol error
// that triggered it, if any.
func (c *Client) disconnect(ctx context.Context, cause error) error {
	var errs error

	if c.transportOpen {
		c.transportOpen = false

		out, err := encode(&sioclient.Packet{Type: sioclient.PacketTypeDisconnect, Namespace: c.namespace})
		errs = multierr.Append(errs, err)
		if err == nil {
			errs = multierr.Append(errs, c.write(ctx, out))
		}
		errs = multierr.Append(errs, c.transport.Close())
	}

	reason := ReasonClientDisconnect
	if cause != nil {
		reason = ReasonProtocolError
	}
	c.logger.Info("Disconnecting", zap.String("reason", reason))
	c.endSession(ctx, reason, cause)

	return errs
}

// endSession resets per-session state and announces the disconnect.
func (c *Client) endSession(ctx context.Context, reason string, err error) {
	atomic.StoreInt32(&c.connected, 0)
	c.reconstructor.Reset()
	c.clearAcks(ctx)

	c.dispatch(ctx, EventDisconnect, []sioclient.Data{sioclient.String(reason)}, nil)

	if c.monitor != nil {
		c.monitor.OnDisconnect(ctx, c, err)
	}
}
