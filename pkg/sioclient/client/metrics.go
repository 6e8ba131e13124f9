package client

import (
	"context"
	"time"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
)

// ClientMetrics holds the instruments a Client records to. A nil
// *ClientMetrics is valid and records nothing.
type ClientMetrics struct {
	// Frame and packet metrics
	framesReceived  o11y.Counter   // Raw frames received, by kind (text/binary)
	framesSent      o11y.Counter   // Raw frames sent, by kind
	frameSize       o11y.Histogram // Frame size distribution (bytes)
	packetsReceived o11y.Counter   // Parsed packets received, by type
	packetsSent     o11y.Counter   // Packets sent, by type
	packetsIgnored  o11y.Counter   // Packets addressed to another namespace
	sendErrors      o11y.Counter   // Transport send failures

	// Protocol errors
	protocolErrors o11y.Counter // Parse and sequencing errors, by kind

	// Ack metrics
	acksResolved o11y.Counter   // Acks answered by the server
	acksTimedOut o11y.Counter   // Acks that expired
	acksCleared  o11y.Counter   // Acks cancelled by disconnect or stop
	acksStray    o11y.Counter   // Ack packets with no pending callback
	acksPending  o11y.Gauge     // Callbacks currently waiting
	ackLatency   o11y.Histogram // Time from emit to ack

	// Dispatch metrics
	eventsDispatched o11y.Counter // Events handed to the handler registry
	eventsUnhandled  o11y.Counter // Events with no named handler
}

// NewClientMetrics returns nil when provider is nil.
func NewClientMetrics(provider o11y.MetricsProvider) *ClientMetrics {
	if provider == nil {
		return nil
	}

	return &ClientMetrics{
		framesReceived:  provider.Counter("sioclient_frames_received_total"),
		framesSent:      provider.Counter("sioclient_frames_sent_total"),
		frameSize:       provider.Histogram("sioclient_frame_size_bytes"),
		packetsReceived: provider.Counter("sioclient_packets_received_total"),
		packetsSent:     provider.Counter("sioclient_packets_sent_total"),
		packetsIgnored:  provider.Counter("sioclient_packets_ignored_total"),
		sendErrors:      provider.Counter("sioclient_send_errors_total"),

		protocolErrors: provider.Counter("sioclient_protocol_errors_total"),

		acksResolved: provider.Counter("sioclient_acks_resolved_total"),
		acksTimedOut: provider.Counter("sioclient_acks_timed_out_total"),
		acksCleared:  provider.Counter("sioclient_acks_cleared_total"),
		acksStray:    provider.Counter("sioclient_acks_stray_total"),
		acksPending:  provider.Gauge("sioclient_acks_pending"),
		ackLatency:   provider.Histogram("sioclient_ack_latency_seconds"),

		eventsDispatched: provider.Counter("sioclient_events_dispatched_total"),
		eventsUnhandled:  provider.Counter("sioclient_events_unhandled_total"),
	}
}

// RecordFrameReceived records an inbound frame of the given kind ("text" or "binary").
func (m *ClientMetrics) RecordFrameReceived(ctx context.Context, kind string, sizeBytes int) {
	if m == nil {
		return
	}
	m.framesReceived.Add(ctx, 1, o11y.L("kind", kind))
	m.frameSize.Record(ctx, float64(sizeBytes), o11y.L("direction", "received"))
}

// RecordFrameSent records an outbound frame.
func (m *ClientMetrics) RecordFrameSent(ctx context.Context, kind string, sizeBytes int) {
	if m == nil {
		return
	}
	m.framesSent.Add(ctx, 1, o11y.L("kind", kind))
	m.frameSize.Record(ctx, float64(sizeBytes), o11y.L("direction", "sent"))
}

func (m *ClientMetrics) RecordPacketReceived(ctx context.Context, pt sioclient.PacketType) {
	if m == nil {
		return
	}
	m.packetsReceived.Add(ctx, 1, o11y.L("type", pt.String()))
}

func (m *ClientMetrics) RecordPacketSent(ctx context.Context, pt sioclient.PacketType) {
	if m == nil {
		return
	}
	m.packetsSent.Add(ctx, 1, o11y.L("type", pt.String()))
}

func (m *ClientMetrics) RecordPacketIgnored(ctx context.Context, namespace string) {
	if m == nil {
		return
	}
	m.packetsIgnored.Add(ctx, 1, o11y.L("namespace", namespace))
}

func (m *ClientMetrics) RecordSendError(ctx context.Context) {
	if m == nil {
		return
	}
	m.sendErrors.Add(ctx, 1)
}

// RecordProtocolError counts a frame rejected by the parser or the sequencing checks.
func (m *ClientMetrics) RecordProtocolError(ctx context.Context, err error) {
	if m == nil {
		return
	}
	kind := "other"
	switch {
	case sioclient.IsParseError(err):
		kind = "parse"
	case sioclient.IsSequencingError(err):
		kind = "sequencing"
	}
	m.protocolErrors.Add(ctx, 1, o11y.L("kind", kind))
}

// Ack metrics

func (m *ClientMetrics) RecordAckResolved(ctx context.Context, latency time.Duration) {
	if m == nil {
		return
	}
	m.acksResolved.Add(ctx, 1)
	m.ackLatency.Record(ctx, latency.Seconds())
}

func (m *ClientMetrics) RecordAckTimedOut(ctx context.Context) {
	if m == nil {
		return
	}
	m.acksTimedOut.Add(ctx, 1)
}

func (m *ClientMetrics) RecordAcksCleared(ctx context.Context, count int) {
	if m == nil || count == 0 {
		return
	}
	m.acksCleared.Add(ctx, int64(count))
}

func (m *ClientMetrics) RecordAckStray(ctx context.Context) {
	if m == nil {
		return
	}
	m.acksStray.Add(ctx, 1)
}

func (m *ClientMetrics) RecordAcksPending(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.acksPending.Set(ctx, float64(count))
}

// RecordEventDispatched counts a dispatched event and whether any named
// handler received it.
func (m *ClientMetrics) RecordEventDispatched(ctx context.Context, event string, handlers int) {
	if m == nil {
		return
	}
	m.eventsDispatched.Add(ctx, 1, o11y.L("event", event))
	if handlers == 0 {
		m.eventsUnhandled.Add(ctx, 1, o11y.L("event", event))
	}
}
