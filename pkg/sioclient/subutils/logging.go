// Package subutils provides reusable catch-all event handlers for a
// client: logging, event-name filtering, transform pipelines and
// asynchronous queueing.
package subutils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
)

// LoggingHandler logs every event it sees and then calls the wrapped
// handler, if any.
type LoggingHandler struct {
	wrapped  client.AnyHandler // can be nil
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string
}

// NewLoggingHandler creates a LoggingHandler. If wrapped is nil it only logs.
func NewLoggingHandler(wrapped client.AnyHandler, logger *zap.Logger, logLevel zapcore.Level) *LoggingHandler {
	return NewNamedLoggingHandler(wrapped, logger, logLevel, "LoggingHandler")
}

// NewNamedLoggingHandler creates a LoggingHandler identified by name in logs.
func NewNamedLoggingHandler(wrapped client.AnyHandler, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingHandler{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

// Handle logs the event and forwards it.
func (l *LoggingHandler) Handle(event string, data []sioclient.Data) {
	l.logger.Log(l.logLevel, "Event received",
		zap.String("handler", l.name),
		zap.String("event", event),
		zap.Any("args", sioclient.ToAnySlice(data)),
		zap.Int("argCount", len(data)),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		l.wrapped(event, data)
	}
}

// AnyHandler returns Handle as a client.AnyHandler, for Client.OnAny.
func (l *LoggingHandler) AnyHandler() client.AnyHandler {
	return l.Handle
}
