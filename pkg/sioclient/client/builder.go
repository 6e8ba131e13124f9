package client

import (
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
	"go.uber.org/zap"
)

// ClientBuilder provides a fluent interface for building clients.
type ClientBuilder struct {
	logger                    *zap.Logger
	clock                     clock.Clock
	namespace                 string
	transport                 Transport
	monitor                   Monitor
	observability             o11y.Config
	auth                      any  // Payload of the Connect packet
	alwaysSendConnect         bool // Send a Connect packet for the default namespace too
	disconnectOnProtocolError bool
}

// NewClient creates a new client builder.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		logger:    zap.NewNop(),
		clock:     clock.New(),
		namespace: sioclient.DefaultNamespace,
	}
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithClock replaces the wall clock used for ack timeouts.
func (b *ClientBuilder) WithClock(c clock.Clock) *ClientBuilder {
	if c != nil {
		b.clock = c
	}
	return b
}

// WithNamespace sets the namespace the client joins. Packets for any other
// namespace are ignored. Default is "/".
func (b *ClientBuilder) WithNamespace(namespace string) *ClientBuilder {
	b.namespace = namespace
	return b
}

// WithTransport sets the transport used by Connect and for outbound frames.
// A client without a transport can still process frames handed to
// HandleText and HandleBinary.
func (b *ClientBuilder) WithTransport(transport Transport) *ClientBuilder {
	b.transport = transport
	return b
}

// WithMonitor sets an optional monitor that will receive client lifecycle events.
func (b *ClientBuilder) WithMonitor(monitor Monitor) *ClientBuilder {
	b.monitor = monitor
	return b
}

// WithMetricsProvider enables metrics collection.
func (b *ClientBuilder) WithMetricsProvider(provider o11y.MetricsProvider) *ClientBuilder {
	b.observability.MetricsProvider = provider
	return b
}

// WithTracingProvider enables a span per emitted event.
func (b *ClientBuilder) WithTracingProvider(provider o11y.TracingProvider) *ClientBuilder {
	b.observability.TracingProvider = provider
	return b
}

// WithObservability sets both providers at once.
func (b *ClientBuilder) WithObservability(config o11y.Config) *ClientBuilder {
	b.observability = config
	return b
}

// WithAuth sets the payload sent in the Connect packet. It is converted
// with sioclient.FromAny when Build is called.
func (b *ClientBuilder) WithAuth(auth any) *ClientBuilder {
	b.auth = auth
	return b
}

// WithConnectPacket controls whether Connect sends a Connect packet for the
// default namespace. Servers speaking Engine.IO v4 framing expect one; a
// Connect packet is always sent for other namespaces.
func (b *ClientBuilder) WithConnectPacket(always bool) *ClientBuilder {
	b.alwaysSendConnect = always
	return b
}

// WithDisconnectOnProtocolError makes the client disconnect after any parse
// or sequencing error instead of carrying on with the next frame.
func (b *ClientBuilder) WithDisconnectOnProtocolError(disconnect bool) *ClientBuilder {
	b.disconnectOnProtocolError = disconnect
	return b
}

// Build creates and returns a new client with the configured options.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	var auth sioclient.Data
	if b.auth != nil {
		var err error
		auth, err = sioclient.FromAny(b.auth)
		if err != nil {
			return nil, fmt.Errorf("invalid auth payload: %w", err)
		}
	}

	return newClient(b, auth), nil
}

// IsValid checks that the configuration is usable.
func (b *ClientBuilder) IsValid() error {
	if b.namespace == "" {
		b.namespace = sioclient.DefaultNamespace
	}
	if !strings.HasPrefix(b.namespace, "/") {
		return fmt.Errorf("namespace must start with '/': %q", b.namespace)
	}
	if strings.ContainsRune(b.namespace, ',') {
		return fmt.Errorf("namespace must not contain ',': %q", b.namespace)
	}

	// Logger is optional - we provide a default nop logger
	if b.logger == nil {
		b.logger = zap.NewNop()
	}

	if b.clock == nil {
		b.clock = clock.New()
	}

	return nil
}
