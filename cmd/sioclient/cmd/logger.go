package cmd

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resolveLogLevel turns the --log-level value into a zap level. --debug
// always wins; --verbose only lowers the default info level.
func resolveLogLevel(level string, debug, verbose bool) (zapcore.Level, error) {
	if debug || (verbose && strings.EqualFold(level, "info")) {
		return zapcore.DebugLevel, nil
	}

	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}

	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", level)
	}
	return l, nil
}

// setupLogger builds the CLI logger. Logs go to stderr so stdout carries
// only received events and ack payloads.
func setupLogger() (*zap.Logger, error) {
	level, err := resolveLogLevel(logLevel, debug, verbose)
	if err != nil {
		return nil, err
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Development = debug
	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.DisableStacktrace = !debug
	config.InitialFields = map[string]any{"version": Version}

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Named("sioclient"), nil
}
