package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/tsarna/sioclient/pkg/sioclient/o11y"
)

func TestParseEmitArgs(t *testing.T) {
	args := parseEmitArgs([]string{`{"room":"lobby"}`, "42", "hello", `[1,"a"]`, "true", "null"})

	assert.Equal(t, []any{
		map[string]any{"room": "lobby"},
		float64(42),
		"hello",
		[]any{float64(1), "a"},
		true,
		nil,
	}, args)
}

func TestPrintMetricsSummary(t *testing.T) {
	memory := o11y.NewMemoryProvider()
	memory.Counter("b_total").Add(context.Background(), 2)
	memory.Counter("a_total").Add(context.Background(), 1, o11y.L("type", "EVENT"))

	var out bytes.Buffer
	printMetricsSummary(&out, memory)

	assert.Equal(t, "a_total{type=EVENT} 1\nb_total 2\n", out.String())
}

func TestResolveLogLevel(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		debug   bool
		verbose bool
		want    zapcore.Level
	}{
		{"default", "info", false, false, zapcore.InfoLevel},
		{"empty", "", false, false, zapcore.InfoLevel},
		{"debug flag wins", "error", true, false, zapcore.DebugLevel},
		{"verbose lowers info", "info", false, true, zapcore.DebugLevel},
		{"verbose keeps explicit level", "warn", false, true, zapcore.WarnLevel},
		{"warning alias", "WARNING", false, false, zapcore.WarnLevel},
		{"error", "error", false, false, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveLogLevel(tt.level, tt.debug, tt.verbose)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := resolveLogLevel("loud", false, false)
	assert.Error(t, err)
}
