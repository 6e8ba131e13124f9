package config

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
	"github.com/tsarna/sioclient/pkg/sioclient/prom"
	"github.com/tsarna/sioclient/pkg/sioclient/websockets"
)

//go:embed testdata/client.hcl
var clienttest []byte

func TestClientConfig(t *testing.T) {
	config, diags := NewConfig().WithSources(clienttest).WithLogger(zaptest.NewLogger(t)).Build()
	require.False(t, diags.HasErrors(), diags.Error())

	assert.Equal(t, "secret-abc", config.Constants["token"].AsString())

	c := config.Client
	require.NotNil(t, c)
	assert.Equal(t, "http://localhost:3000", c.URL)
	assert.Equal(t, "/chat", c.Namespace)
	assert.Equal(t, websockets.FramingEngineIO, c.Framing)
	assert.True(t, c.ConnectPacket)
	assert.True(t, c.DisconnectOnProtocolError)
	assert.Equal(t, "Bearer secret-abc", c.Authorization)
	assert.Equal(t, map[string]string{"X-Client": "sioclient"}, c.Headers)
	assert.Equal(t, map[string]any{
		"token": "secret-abc",
		"room":  int64(7),
		"tags":  []any{"a", "b"},
	}, c.Auth)
	assert.Equal(t, 10*time.Second, c.DialTimeout)
	assert.Equal(t, 2*time.Second, c.WriteTimeout)
	assert.Equal(t, 1500*time.Millisecond, c.AckTimeout)

	url, err := c.DialURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/socket.io/?EIO=4&transport=websocket", url)

	m := config.Metrics
	require.NotNil(t, m)
	assert.Equal(t, MetricsPrometheus, m.Provider)
	assert.Equal(t, "chat", m.Namespace)
	assert.Equal(t, []float64{0.01, 0.1, 1}, m.Buckets)
	assert.Equal(t, "/metrics", m.Path)

	require.Len(t, config.Emits, 2)
	hb := config.Emits["heartbeat"]
	assert.Equal(t, "ping", hb.Event)
	assert.Equal(t, []any{int64(1), "two", map[string]any{"three": true}}, hb.Args)
	assert.Equal(t, "@every 30s", hb.Schedule)
	assert.False(t, hb.Ack)

	hello := config.Emits["hello"]
	assert.True(t, hello.Ack)
	assert.Equal(t, 2*time.Second, hello.AckTimeout)
	assert.Empty(t, hello.Args)
}

func TestClientSettingsBuilders(t *testing.T) {
	config, diags := NewConfig().WithSources(clienttest).Build()
	require.False(t, diags.HasErrors(), diags.Error())

	tb, err := config.Client.TransportBuilder(zaptest.NewLogger(t))
	require.NoError(t, err)
	transport, err := tb.Build()
	require.NoError(t, err)
	assert.Equal(t, websockets.FramingEngineIO, transport.Framing())

	cl, err := config.Client.ClientBuilder(zaptest.NewLogger(t), transport).Build()
	require.NoError(t, err)
	assert.Equal(t, "/chat", cl.Namespace())
}

func TestConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"missing url", `client {}`},
		{"bad framing", `client { url = "ws://x" framing = "carrier-pigeon" }`},
		{"bad scheme", `client { url = "ftp://x" }`},
		{"bad namespace", `client { url = "ws://x" namespace = "chat" }`},
		{"bad duration", `client { url = "ws://x" ack_timeout = "soon" }`},
		{"duplicate client", "client { url = \"ws://x\" }\nclient { url = \"ws://y\" }"},
		{"unknown block", `server { url = "ws://x" }`},
		{"bad metrics provider", `metrics { provider = "statsd" }`},
		{"listen without prometheus", `metrics { provider = "memory" listen = ":9000" }`},
		{"emit without event", `emit "x" {}`},
		{"emit reserved event", `emit "x" { event = "connect" }`},
		{"emit args not a list", `emit "x" { event = "a" args = "b" }`},
		{"emit bad schedule", `emit "x" { event = "a" schedule = "every tuesday" }`},
		{"emit bad timezone", `emit "x" { event = "a" schedule = "@hourly" timezone = "Mars/Olympus" }`},
		{"duplicate emit", "emit \"x\" { event = \"a\" }\nemit \"x\" { event = \"b\" }"},
		{"duplicate const", "const { a = 1 }\nconst { a = 2 }"},
		{"reserved const", `const { env = 1 }`},
		{"circular const", `const { a = b + 1
b = a + 1 }`},
		{"undefined reference", `const { a = nope }`},
		{"syntax error", `client {`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := NewConfig().WithSources([]byte(tt.src)).Build()
			assert.True(t, diags.HasErrors(), "expected an error for %q", tt.src)
		})
	}
}

func TestConfigSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.hcl"), []byte(`const { host = "localhost" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.hcl"), []byte(`client { url = "ws://${host}:3000" }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte(`not hcl`), 0o644))

	t.Run("directory", func(t *testing.T) {
		config, diags := NewConfig().WithSources(dir).Build()
		require.False(t, diags.HasErrors(), diags.Error())
		assert.Equal(t, "ws://localhost:3000", config.Client.URL)
	})

	t.Run("file", func(t *testing.T) {
		config, diags := NewConfig().WithSources(filepath.Join(dir, "a.hcl")).Build()
		require.False(t, diags.HasErrors(), diags.Error())
		assert.Nil(t, config.Client)
		assert.Equal(t, "localhost", config.Constants["host"].AsString())
	})

	t.Run("fs", func(t *testing.T) {
		fsys := fstest.MapFS{
			"conf/client.hcl": {Data: []byte(`client { url = "wss://example.com" }`)},
		}
		config, diags := NewConfig().WithSources(fsys).Build()
		require.False(t, diags.HasErrors(), diags.Error())
		assert.Equal(t, "wss://example.com", config.Client.URL)
	})

	t.Run("file function", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "token.txt"), []byte("t0k3n"), 0o644))
		src := []byte(`client {
  url  = "ws://x"
  auth = { token = trimspace(file("token.txt")) }
}`)
		config, diags := NewConfig().WithSources(src).WithBaseDir(dir).Build()
		require.False(t, diags.HasErrors(), diags.Error())
		assert.Equal(t, map[string]any{"token": "t0k3n"}, config.Client.Auth)
	})

	t.Run("missing path", func(t *testing.T) {
		_, diags := NewConfig().WithSources(filepath.Join(dir, "nope.hcl")).Build()
		assert.True(t, diags.HasErrors())
	})

	t.Run("invalid source type", func(t *testing.T) {
		_, diags := NewConfig().WithSources(42).Build()
		assert.True(t, diags.HasErrors())
	})
}

func TestBuildObservability(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		m := &MetricsSettings{Provider: MetricsMemory}
		obs, err := m.BuildObservability(nil, "test")
		require.NoError(t, err)
		assert.IsType(t, &o11y.MemoryProvider{}, obs.MetricsProvider)
		assert.Nil(t, obs.TracingProvider)
	})

	t.Run("prometheus", func(t *testing.T) {
		registry := prometheus.NewRegistry()
		m := &MetricsSettings{Namespace: "test"}
		obs, err := m.BuildObservability(registry, "test")
		require.NoError(t, err)
		require.IsType(t, &prom.Provider{}, obs.MetricsProvider)

		obs.MetricsProvider.Counter("frames_total").Add(context.Background(), 2)
		families, err := registry.Gather()
		require.NoError(t, err)
		require.Len(t, families, 1)
		assert.Equal(t, "test_frames_total", families[0].GetName())
	})

	t.Run("otel", func(t *testing.T) {
		m := &MetricsSettings{Provider: MetricsOtel}
		obs, err := m.BuildObservability(nil, "test")
		require.NoError(t, err)
		assert.NotNil(t, obs.MetricsProvider)
		assert.NotNil(t, obs.TracingProvider)
	})

	t.Run("none", func(t *testing.T) {
		m := &MetricsSettings{Provider: MetricsNone}
		obs, err := m.BuildObservability(nil, "test")
		require.NoError(t, err)
		assert.Nil(t, obs.MetricsProvider)
	})

	t.Run("unknown", func(t *testing.T) {
		m := &MetricsSettings{Provider: "statsd"}
		_, err := m.BuildObservability(nil, "test")
		assert.Error(t, err)
	})
}

// recordingTransport captures text frames written by a client.
type recordingTransport struct {
	mu    sync.Mutex
	texts []string
}

func (r *recordingTransport) Connect(context.Context, client.Sink) error { return nil }
func (r *recordingTransport) SendBinary(context.Context, []byte) error   { return nil }
func (r *recordingTransport) Close() error                              { return nil }

func (r *recordingTransport) SendText(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recordingTransport) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func newRecordingClient(t *testing.T) (*client.Client, *recordingTransport) {
	transport := &recordingTransport{}
	cl, err := client.NewClient().
		WithLogger(zaptest.NewLogger(t)).
		WithTransport(transport).
		Build()
	require.NoError(t, err)
	require.NoError(t, cl.Start())
	t.Cleanup(func() { _ = cl.Stop() })
	return cl, transport
}

func TestEmitSend(t *testing.T) {
	t.Run("fire and forget", func(t *testing.T) {
		cl, transport := newRecordingClient(t)
		emit := &EmitSettings{Event: "ping", Args: []any{int64(1), "two"}}

		reply, err := emit.Send(context.Background(), cl)
		require.NoError(t, err)
		assert.Nil(t, reply)

		assert.Eventually(t, func() bool {
			return assert.ObjectsAreEqual([]string{`2["ping",1,"two"]`}, transport.sent())
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("with ack", func(t *testing.T) {
		cl, transport := newRecordingClient(t)
		emit := &EmitSettings{Event: "hello", Ack: true}

		type result struct {
			reply []sioclient.Data
			err   error
		}
		done := make(chan result, 1)
		go func() {
			reply, err := emit.Send(context.Background(), cl)
			done <- result{reply, err}
		}()

		require.Eventually(t, func() bool {
			return len(transport.sent()) == 1
		}, time.Second, 5*time.Millisecond)
		assert.Equal(t, `20["hello"]`, transport.sent()[0])

		require.NoError(t, cl.HandleText(context.Background(), `30["world"]`))

		select {
		case r := <-done:
			require.NoError(t, r.err)
			assert.Equal(t, []sioclient.Data{sioclient.String("world")}, r.reply)
		case <-time.After(time.Second):
			t.Fatal("ack reply not delivered")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		cl, _ := newRecordingClient(t)
		emit := &EmitSettings{Event: "hello", Ack: true}

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := emit.Send(ctx, cl)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestScheduleEmits(t *testing.T) {
	config, diags := NewConfig().WithSources(clienttest).Build()
	require.False(t, diags.HasErrors(), diags.Error())

	cl, transport := newRecordingClient(t)
	scheduler := NewScheduler(zaptest.NewLogger(t))

	added, err := config.ScheduleEmits(scheduler, cl)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	entries := scheduler.Entries()
	require.Len(t, entries, 1)

	entries[0].Job.Run()

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{`2["ping",1,"two",{"three":true}]`}, transport.sent())
	}, time.Second, 5*time.Millisecond)

	_, err = config.Emits["hello"].AddTo(scheduler, cl, nil)
	assert.Error(t, err)
}
