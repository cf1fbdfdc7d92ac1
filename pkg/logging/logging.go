// Package logging builds the zap logger shared by the server and the CLI.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Encodings accepted by New.
const (
	EncodingJSON    = "json"
	EncodingConsole = "console"
)

// Config selects the level and the encoder.
type Config struct {
	Level    string
	Encoding string
}

// ParseLevel accepts debug, info, warn and error; the empty string means info.
func ParseLevel(s string) (zapcore.Level, error) {
	if strings.TrimSpace(s) == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// New returns a production logger together with its level, which can be
// changed at runtime when the configuration file is reloaded.
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}
	zc := zap.NewProductionConfig()
	switch cfg.Encoding {
	case "", EncodingJSON:
	case EncodingConsole:
		zc = zap.NewDevelopmentConfig()
	default:
		return nil, zap.AtomicLevel{}, fmt.Errorf("unknown log encoding %q", cfg.Encoding)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, zc.Level, nil
}

// SetLevel applies a level string to an atomic level, leaving it unchanged on error.
func SetLevel(level zap.AtomicLevel, s string) error {
	lvl, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(lvl)
	return nil
}
