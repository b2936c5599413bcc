// Package logging builds the zap logger shared by the CLI and library
// packages, plus field helpers for generation events.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rcliao/monologue/internal/model"
)

// Formats accepted by New.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New returns a production logger at level ("debug", "info", "warn",
// "error") writing format ("json" or "console") to stderr.
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}

	switch strings.ToLower(format) {
	case "", FormatJSON:
	case FormatConsole:
		cfg.Encoding = FormatConsole
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("log format %q: want json or console", format)
	}
	return cfg.Build()
}

// Unit returns the fields identifying one hour of one day.
func Unit(monologueID, date string, hour int) []zap.Field {
	return []zap.Field{
		zap.String("monologue", monologueID),
		zap.String("date", date),
		zap.Int("hour", hour),
	}
}

// Stage returns the fields describing how a stage resolved.
func Stage(stage model.Stage, source model.Source, requestID string, attempts int) []zap.Field {
	fields := []zap.Field{
		zap.String("stage", string(stage)),
		zap.String("source", string(source)),
	}
	if requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if attempts > 0 {
		fields = append(fields, zap.Int("attempt", attempts))
	}
	return fields
}
