// Package logging builds the process logger.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel parses a level name. Empty or unknown names yield info.
func ParseLevel(name string) zapcore.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	var level zapcore.Level
	if name == "" || level.UnmarshalText([]byte(name)) != nil {
		return zapcore.InfoLevel
	}
	return level
}

// New builds a logger at the named level. Info and above log structured
// JSON to stderr; debug switches to the readable development console.
func New(levelName string) (*zap.Logger, error) {
	level := ParseLevel(levelName)

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.MessageKey = "message"

	if level == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return config.Build()
}
