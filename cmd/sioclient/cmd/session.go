package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
	"github.com/tsarna/sioclient/pkg/sioclient/config"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
	"github.com/tsarna/sioclient/pkg/sioclient/websockets"
)

const connectTimeout = 30 * time.Second

// session is a started, connected client plus whatever metrics plumbing
// the flags and configuration asked for.
type session struct {
	logger   *zap.Logger
	cfg      *config.Config
	settings *config.ClientSettings
	client   *client.Client

	memory        *o11y.MemoryProvider
	metricsServer *http.Server

	disconnected chan struct{}
	closeOnce    sync.Once
}

// openSession loads configuration, applies flag overrides, connects and
// waits for the namespace handshake when one was requested. setup runs
// before connecting so handlers see the first events.
func openSession(ctx context.Context, cmd *cobra.Command, logger *zap.Logger, setup func(*client.Client)) (*session, error) {
	cfg, err := loadConfig(logger)
	if err != nil {
		return nil, err
	}

	settings, err := clientSettings(cmd, cfg)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:       logger,
		cfg:          cfg,
		settings:     settings,
		disconnected: make(chan struct{}),
	}

	obs, err := s.setupMetrics(cfg)
	if err != nil {
		return nil, err
	}

	tb, err := settings.TransportBuilder(logger)
	if err != nil {
		s.stopMetrics()
		return nil, err
	}
	transport, err := tb.Build()
	if err != nil {
		s.stopMetrics()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	s.client, err = settings.ClientBuilder(logger, transport).
		WithObservability(obs).
		WithMonitor(s).
		Build()
	if err != nil {
		s.stopMetrics()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if setup != nil {
		setup(s.client)
	}

	if err := s.client.Start(); err != nil {
		s.stopMetrics()
		return nil, err
	}

	if err := s.connect(ctx); err != nil {
		_ = s.client.Stop()
		s.stopMetrics()
		return nil, err
	}

	return s, nil
}

func (s *session) connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	connected := make(chan struct{})
	rejected := make(chan []sioclient.Data, 1)

	connectID := s.client.Once(client.EventConnect, func(_ []sioclient.Data, _ client.AckFunc) {
		close(connected)
	})
	errorID := s.client.Once(client.EventError, func(data []sioclient.Data, _ client.AckFunc) {
		rejected <- data
	})
	defer s.client.Off(connectID)
	defer s.client.Off(errorID)

	if err := s.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", s.settings.URL, err)
	}

	if !s.expectsHandshake() {
		s.logger.Info("Connected", zap.String("url", s.settings.URL))
		return nil
	}

	select {
	case <-connected:
		s.logger.Info("Connected",
			zap.String("url", s.settings.URL),
			zap.String("namespace", s.client.Namespace()),
		)
		return nil
	case data := <-rejected:
		return fmt.Errorf("connection to namespace %s refused: %s", s.client.Namespace(), payloadJSON(data))
	case <-s.disconnected:
		return errors.New("disconnected during handshake")
	case <-ctx.Done():
		return fmt.Errorf("waiting for namespace handshake: %w", ctx.Err())
	}
}

// expectsHandshake reports whether a Connect packet was sent, and so a
// Connect or Error reply is due.
func (s *session) expectsHandshake() bool {
	return s.settings.ConnectPacket ||
		s.settings.Framing == websockets.FramingEngineIO ||
		(s.client.Namespace() != sioclient.DefaultNamespace)
}

// Disconnected is closed when the session ends for any reason.
func (s *session) Disconnected() <-chan struct{} {
	return s.disconnected
}

func (s *session) OnConnect(ctx context.Context, c *client.Client) {
	s.logger.Debug("Namespace connected", zap.String("namespace", c.Namespace()))
}

func (s *session) OnDisconnect(ctx context.Context, c *client.Client, err error) {
	if err != nil {
		s.logger.Warn("Disconnected", zap.Error(err))
	} else {
		s.logger.Info("Disconnected")
	}
	s.closeOnce.Do(func() { close(s.disconnected) })
}

func (s *session) OnProtocolError(ctx context.Context, c *client.Client, err error) {
	s.logger.Warn("Protocol error", zap.Error(err))
}

// Close disconnects, stops the client and shuts down metrics.
func (s *session) Close(ctx context.Context) {
	if s.client.Connected() {
		if err := s.client.Disconnect(ctx); err != nil {
			s.logger.Warn("Error during client disconnect", zap.Error(err))
		}
	}
	if err := s.client.Stop(); err != nil {
		s.logger.Warn("Error stopping client", zap.Error(err))
	}

	s.stopMetrics()

	if s.memory != nil {
		printMetricsSummary(os.Stderr, s.memory)
	}
}

func loadConfig(logger *zap.Logger) (*config.Config, error) {
	builder := config.NewConfig().WithLogger(logger)

	if len(configPaths) > 0 {
		sources := make([]any, len(configPaths))
		for i, path := range configPaths {
			sources[i] = path
		}
		builder = builder.WithSources(sources...)

		if info, err := os.Stat(configPaths[0]); err == nil {
			if info.IsDir() {
				builder = builder.WithBaseDir(configPaths[0])
			} else {
				builder = builder.WithBaseDir(filepath.Dir(configPaths[0]))
			}
		}
	}

	cfg, diags := builder.Build()
	if diags.HasErrors() {
		return nil, diags
	}
	return cfg, nil
}

// clientSettings starts from the configuration's client block, if any,
// and applies flags given on the command line.
func clientSettings(cmd *cobra.Command, cfg *config.Config) (*config.ClientSettings, error) {
	settings := &config.ClientSettings{}
	if cfg.Client != nil {
		copied := *cfg.Client
		settings = &copied
	}

	flags := cmd.Flags()

	if flags.Changed("url") {
		settings.URL = serverURL
	}
	if flags.Changed("namespace") {
		settings.Namespace = namespace
	}
	if flags.Changed("framing") {
		f, err := websockets.ParseFraming(framing)
		if err != nil {
			return nil, err
		}
		settings.Framing = f
	}
	if flags.Changed("auth") {
		var auth any
		if err := json.Unmarshal([]byte(authJSON), &auth); err != nil {
			return nil, fmt.Errorf("invalid --auth JSON: %w", err)
		}
		settings.Auth = auth
		settings.ConnectPacket = true
	}
	if len(headers) > 0 {
		merged := make(map[string]string, len(settings.Headers)+len(headers))
		for k, v := range settings.Headers {
			merged[k] = v
		}
		for _, h := range headers {
			key, value, ok := strings.Cut(h, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid header %q, expected Key=Value", h)
			}
			merged[key] = value
		}
		settings.Headers = merged
	}

	if settings.URL == "" {
		return nil, errors.New("a server URL is required: use --url or a client block in --config")
	}

	return settings, nil
}

func (s *session) setupMetrics(cfg *config.Config) (o11y.Config, error) {
	m := &config.MetricsSettings{Provider: config.MetricsNone}
	if cfg.Metrics != nil {
		copied := *cfg.Metrics
		m = &copied
	}
	if metricsKind != "" {
		m.Provider = metricsKind
	}
	if metricsListen != "" {
		m.Listen = metricsListen
		if metricsKind == "" {
			m.Provider = config.MetricsPrometheus
		}
	}

	obs, err := m.BuildObservability(nil, Version)
	if err != nil {
		return o11y.Config{}, err
	}

	if memory, ok := obs.MetricsProvider.(*o11y.MemoryProvider); ok {
		s.memory = memory
	}

	if m.Listen != "" {
		ln, err := net.Listen("tcp", m.Listen)
		if err != nil {
			return o11y.Config{}, fmt.Errorf("failed to listen for metrics: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle(m.Path, promhttp.Handler())
		s.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		go func() {
			if err := s.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("Metrics server failed", zap.Error(err))
			}
		}()

		s.logger.Info("Serving metrics", zap.String("addr", ln.Addr().String()), zap.String("path", m.Path))
	}

	return obs, nil
}

func (s *session) stopMetrics() {
	if s.metricsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.metricsServer.Shutdown(ctx); err != nil {
		s.logger.Warn("Error stopping metrics server", zap.Error(err))
	}
	s.metricsServer = nil
}

func printMetricsSummary(w io.Writer, memory *o11y.MemoryProvider) {
	counters := memory.Counters()
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(w, "%s %d\n", name, counters[name])
	}
}

func payloadJSON(data []sioclient.Data) string {
	b, err := json.Marshal(sioclient.ToAnySlice(data))
	if err != nil {
		return fmt.Sprintf("<unprintable: %v>", err)
	}
	return string(b)
}
