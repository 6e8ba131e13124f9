package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient/client"
	"github.com/tsarna/sioclient/pkg/sioclient/websockets"
)

type ClientDefinition struct {
	URL                       string            `hcl:"url"`
	Namespace                 string            `hcl:"namespace,optional"`
	Framing                   string            `hcl:"framing,optional"`
	ConnectPacket             bool              `hcl:"connect_packet,optional"`
	DisconnectOnProtocolError bool              `hcl:"disconnect_on_protocol_error,optional"`
	Authorization             string            `hcl:"authorization,optional"`
	Headers                   map[string]string `hcl:"headers,optional"`
	ReadLimit                 int64             `hcl:"read_limit,optional"`
	WriteChannelSize          int               `hcl:"write_channel_size,optional"`
	Auth                      hcl.Expression    `hcl:"auth,optional"`
	DialTimeout               hcl.Expression    `hcl:"dial_timeout,optional"`
	WriteTimeout              hcl.Expression    `hcl:"write_timeout,optional"`
	AckTimeout                hcl.Expression    `hcl:"ack_timeout,optional"`
}

// ClientSettings is a decoded client block.
type ClientSettings struct {
	URL                       string
	Namespace                 string
	Framing                   websockets.Framing
	ConnectPacket             bool
	DisconnectOnProtocolError bool
	Authorization             string
	Headers                   map[string]string
	ReadLimit                 int64
	WriteChannelSize          int

	// Auth is the Connect packet payload, as plain Go values.
	Auth any

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	// AckTimeout is the default for emits that wait for an ack. Zero
	// waits forever.
	AckTimeout time.Duration
}

type ClientBlockHandler struct{}

func NewClientBlockHandler() *ClientBlockHandler {
	return &ClientBlockHandler{}
}

func (h *ClientBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	if config.Client != nil {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Duplicate client block",
			Detail:   "Only one client block may be defined",
			Subject:  &block.DefRange,
		}}
	}

	def := ClientDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	settings := &ClientSettings{
		URL:                       def.URL,
		Namespace:                 def.Namespace,
		ConnectPacket:             def.ConnectPacket,
		DisconnectOnProtocolError: def.DisconnectOnProtocolError,
		Authorization:             def.Authorization,
		Headers:                   def.Headers,
		ReadLimit:                 def.ReadLimit,
		WriteChannelSize:          def.WriteChannelSize,
	}

	framing, err := websockets.ParseFraming(def.Framing)
	if err != nil {
		diags = diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid framing",
			Detail:   err.Error(),
			Subject:  &block.DefRange,
		})
	}
	settings.Framing = framing

	var addDiags hcl.Diagnostics
	settings.DialTimeout, addDiags = config.ParseDuration(def.DialTimeout)
	diags = diags.Extend(addDiags)
	settings.WriteTimeout, addDiags = config.ParseDuration(def.WriteTimeout)
	diags = diags.Extend(addDiags)
	settings.AckTimeout, addDiags = config.ParseDuration(def.AckTimeout)
	diags = diags.Extend(addDiags)

	if IsExpressionProvided(def.Auth) {
		value, authDiags := def.Auth.Value(config.evalCtx)
		diags = diags.Extend(authDiags)
		if !authDiags.HasErrors() {
			settings.Auth, err = CtyToAny(value)
			if err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid auth payload",
					Detail:   err.Error(),
					Subject:  def.Auth.Range().Ptr(),
				})
			}
		}
	}

	if diags.HasErrors() {
		return diags
	}

	if err := settings.validate(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid client block",
			Detail:   err.Error(),
			Subject:  &block.DefRange,
		})
	}

	config.Client = settings

	return diags
}

func (s *ClientSettings) validate() error {
	transport, err := s.TransportBuilder(nil)
	if err != nil {
		return err
	}
	if err := transport.IsValid(); err != nil {
		return err
	}
	return s.ClientBuilder(nil, nil).IsValid()
}

// DialURL is the URL the transport dials. Engine.IO framing fills in the
// handshake path and query.
func (s *ClientSettings) DialURL() (string, error) {
	if s.Framing == websockets.FramingEngineIO {
		return websockets.EngineIOURL(s.URL)
	}
	return s.URL, nil
}

// TransportBuilder returns a websocket transport builder for these settings.
func (s *ClientSettings) TransportBuilder(logger *zap.Logger) (*websockets.TransportBuilder, error) {
	url, err := s.DialURL()
	if err != nil {
		return nil, fmt.Errorf("invalid client url: %w", err)
	}

	b := websockets.NewTransport().
		WithURL(url).
		WithLogger(logger).
		WithFraming(s.Framing).
		WithDialTimeout(s.DialTimeout).
		WithWriteTimeout(s.WriteTimeout).
		WithWriteChannelSize(s.WriteChannelSize).
		WithReadLimit(s.ReadLimit)

	if s.Authorization != "" {
		b = b.WithAuthorization(s.Authorization)
	}
	for key, value := range s.Headers {
		b = b.WithHeader(key, value)
	}

	return b, nil
}

// ClientBuilder returns a client builder for these settings using the
// given transport. Engine.IO framing always sends a Connect packet, since
// Socket.IO v5 servers expect one for the main namespace too.
func (s *ClientSettings) ClientBuilder(logger *zap.Logger, transport client.Transport) *client.ClientBuilder {
	b := client.NewClient().
		WithLogger(logger).
		WithNamespace(s.Namespace).
		WithConnectPacket(s.ConnectPacket || s.Framing == websockets.FramingEngineIO).
		WithDisconnectOnProtocolError(s.DisconnectOnProtocolError)

	if transport != nil {
		b = b.WithTransport(transport)
	}
	if s.Auth != nil {
		b = b.WithAuth(s.Auth)
	}

	return b
}
