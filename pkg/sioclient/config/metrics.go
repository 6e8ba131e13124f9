package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
	"github.com/tsarna/sioclient/pkg/sioclient/otel"
	"github.com/tsarna/sioclient/pkg/sioclient/prom"
)

// Metrics provider names accepted in a metrics block.
const (
	MetricsNone       = "none"
	MetricsMemory     = "memory"
	MetricsPrometheus = "prometheus"
	MetricsOtel       = "otel"
)

const defaultServiceName = "sioclient"

type MetricsDefinition struct {
	Provider    string    `hcl:"provider,optional"`
	Listen      string    `hcl:"listen,optional"`
	Path        string    `hcl:"path,optional"`
	Namespace   string    `hcl:"namespace,optional"`
	Buckets     []float64 `hcl:"buckets,optional"`
	ServiceName string    `hcl:"service_name,optional"`
}

// MetricsSettings is a decoded metrics block.
type MetricsSettings struct {
	Provider string

	// Listen is the address the Prometheus handler is served on. Empty
	// means the caller does not serve metrics over HTTP.
	Listen string
	Path   string

	Namespace   string
	Buckets     []float64
	ServiceName string
}

type MetricsBlockHandler struct{}

func NewMetricsBlockHandler() *MetricsBlockHandler {
	return &MetricsBlockHandler{}
}

func (h *MetricsBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	if config.Metrics != nil {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Duplicate metrics block",
			Detail:   "Only one metrics block may be defined",
			Subject:  &block.DefRange,
		}}
	}

	def := MetricsDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	settings := &MetricsSettings{
		Provider:    def.Provider,
		Listen:      def.Listen,
		Path:        def.Path,
		Namespace:   def.Namespace,
		Buckets:     def.Buckets,
		ServiceName: def.ServiceName,
	}
	if err := settings.normalize(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid metrics block",
			Detail:   err.Error(),
			Subject:  &block.DefRange,
		})
	}

	config.Metrics = settings

	return diags
}

func (m *MetricsSettings) normalize() error {
	if m.Provider == "" {
		m.Provider = MetricsPrometheus
	}
	if m.Path == "" {
		m.Path = "/metrics"
	}
	if m.ServiceName == "" {
		m.ServiceName = defaultServiceName
	}

	switch m.Provider {
	case MetricsNone, MetricsMemory, MetricsPrometheus, MetricsOtel:
	default:
		return fmt.Errorf("unknown metrics provider %q", m.Provider)
	}

	if m.Listen != "" && m.Provider != MetricsPrometheus {
		return fmt.Errorf("listen is only supported by the %s provider", MetricsPrometheus)
	}

	return nil
}

// BuildObservability creates the providers named by the settings.
// registry is used by the Prometheus provider; nil means the default
// registerer. The otel provider uses the global meter and tracer
// providers and also supplies tracing.
func (m *MetricsSettings) BuildObservability(registry prometheus.Registerer, version string) (o11y.Config, error) {
	if err := m.normalize(); err != nil {
		return o11y.Config{}, err
	}

	switch m.Provider {
	case MetricsMemory:
		return o11y.Config{MetricsProvider: o11y.NewMemoryProvider()}, nil
	case MetricsPrometheus:
		opts := []prom.Option{prom.WithNamespace(m.Namespace)}
		if len(m.Buckets) > 0 {
			opts = append(opts, prom.WithBuckets(m.Buckets))
		}
		if registry != nil {
			opts = append(opts, prom.WithRegistry(registry))
		}
		return o11y.Config{MetricsProvider: prom.NewProvider(opts...)}, nil
	case MetricsOtel:
		provider := otel.NewProvider(m.ServiceName, version)
		return o11y.Config{MetricsProvider: provider, TracingProvider: provider}, nil
	default:
		return o11y.Config{}, nil
	}
}
