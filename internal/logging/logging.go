// Package logging provides the structured logger shared across taskflowmcp
// components. Every constructor takes a *zap.Logger explicitly; nothing in
// this package holds ambient global state except the fallback Nop logger
// used by tests that don't care about log output.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger writing to stderr (stdout is reserved for the
// MCP JSON-RPC stream) at the given level name: debug, info, warn, error.
func New(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Nop returns a logger that discards everything; used as a safe default in
// tests and in code paths invoked before configuration is loaded.
func Nop() *zap.Logger {
	return zap.NewNop()
}

// MustNew is like New but exits the process on failure; used only from
// main() where there is no sensible recovery path.
func MustNew(level string) *zap.Logger {
	logger, err := New(level)
	if err != nil {
		// The logger itself failed to build, so fall back to the stdlib.
		os.Stderr.WriteString("taskflowd: failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	return logger
}
