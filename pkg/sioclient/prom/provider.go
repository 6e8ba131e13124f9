// Package prom implements the o11y metrics interfaces on top of the
// Prometheus client library.
//
// Prometheus fixes a metric's label names at registration, while o11y
// instruments receive labels per call. Each vector is therefore created on
// first use with the label names of that call; later calls are mapped onto
// those names, missing labels become empty and unknown labels are dropped.
package prom

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
)

// Config configures a Provider.
type Config struct {
	// Namespace prefixes every metric name (default: "").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets. Default: prometheus.DefBuckets
	Buckets []float64

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// Option configures a Provider.
type Option func(*Config)

func WithNamespace(namespace string) Option {
	return func(c *Config) { c.Namespace = namespace }
}

func WithSubsystem(subsystem string) Option {
	return func(c *Config) { c.Subsystem = subsystem }
}

func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) { c.ConstLabels = labels }
}

func WithBuckets(buckets []float64) Option {
	return func(c *Config) { c.Buckets = buckets }
}

func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) { c.Registry = registry }
}

func defaultConfig() Config {
	return Config{
		Buckets:  prometheus.DefBuckets,
		Registry: prometheus.DefaultRegisterer,
	}
}

// Provider is an o11y.MetricsProvider registering its collectors with a
// Prometheus registerer. Asking twice for the same name returns instruments
// sharing one collector.
type Provider struct {
	config  Config
	factory promauto.Factory

	mu         sync.Mutex
	counters   map[string]*lazyVec[*prometheus.CounterVec]
	histograms map[string]*lazyVec[*prometheus.HistogramVec]
	gauges     map[string]*lazyVec[*prometheus.GaugeVec]
}

// NewProvider returns a Provider with the given options applied.
func NewProvider(opts ...Option) *Provider {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Provider{
		config:     config,
		factory:    promauto.With(config.Registry),
		counters:   make(map[string]*lazyVec[*prometheus.CounterVec]),
		histograms: make(map[string]*lazyVec[*prometheus.HistogramVec]),
		gauges:     make(map[string]*lazyVec[*prometheus.GaugeVec]),
	}
}

func (p *Provider) Counter(name string) o11y.Counter {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.counters[name]
	if !ok {
		v = &lazyVec[*prometheus.CounterVec]{create: func(labels []string) *prometheus.CounterVec {
			return p.factory.NewCounterVec(prometheus.CounterOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        metricName(name),
				Help:        helpText(name),
				ConstLabels: p.config.ConstLabels,
			}, labels)
		}}
		p.counters[name] = v
	}
	return &counter{vec: v}
}

func (p *Provider) Histogram(name string) o11y.Histogram {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.histograms[name]
	if !ok {
		v = &lazyVec[*prometheus.HistogramVec]{create: func(labels []string) *prometheus.HistogramVec {
			return p.factory.NewHistogramVec(prometheus.HistogramOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        metricName(name),
				Help:        helpText(name),
				ConstLabels: p.config.ConstLabels,
				Buckets:     p.config.Buckets,
			}, labels)
		}}
		p.histograms[name] = v
	}
	return &histogram{vec: v}
}

func (p *Provider) Gauge(name string) o11y.Gauge {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.gauges[name]
	if !ok {
		v = &lazyVec[*prometheus.GaugeVec]{create: func(labels []string) *prometheus.GaugeVec {
			return p.factory.NewGaugeVec(prometheus.GaugeOpts{
				Namespace:   p.config.Namespace,
				Subsystem:   p.config.Subsystem,
				Name:        metricName(name),
				Help:        helpText(name),
				ConstLabels: p.config.ConstLabels,
			}, labels)
		}}
		p.gauges[name] = v
	}
	return &gauge{vec: v}
}

// lazyVec creates its vector the first time label names are known.
type lazyVec[V any] struct {
	create func(labelNames []string) V

	once       sync.Once
	vec        V
	labelNames []string
}

func (l *lazyVec[V]) get(labels []o11y.Label) (V, []string) {
	l.once.Do(func() {
		names := make([]string, len(labels))
		for i, label := range labels {
			names[i] = label.Key
		}
		sort.Strings(names)
		l.labelNames = names
		l.vec = l.create(names)
	})
	return l.vec, valuesFor(l.labelNames, labels)
}

func valuesFor(names []string, labels []o11y.Label) []string {
	values := make([]string, len(names))
	for i, name := range names {
		for _, label := range labels {
			if label.Key == name {
				values[i] = label.Value
				break
			}
		}
	}
	return values
}

type counter struct {
	vec *lazyVec[*prometheus.CounterVec]
}

func (c *counter) Add(_ context.Context, value int64, labels ...o11y.Label) {
	vec, values := c.vec.get(labels)
	vec.WithLabelValues(values...).Add(float64(value))
}

type histogram struct {
	vec *lazyVec[*prometheus.HistogramVec]
}

func (h *histogram) Record(_ context.Context, value float64, labels ...o11y.Label) {
	vec, values := h.vec.get(labels)
	vec.WithLabelValues(values...).Observe(value)
}

type gauge struct {
	vec *lazyVec[*prometheus.GaugeVec]
}

func (g *gauge) Set(_ context.Context, value float64, labels ...o11y.Label) {
	vec, values := g.vec.get(labels)
	vec.WithLabelValues(values...).Set(value)
}

// metricName maps dotted instrument names to Prometheus' underscore form.
func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", "/", "_").Replace(name)
}

func helpText(name string) string {
	return strings.ReplaceAll(metricName(name), "_", " ")
}
