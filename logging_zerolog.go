// logging_zerolog.go: Zerolog adapter for the pluggable Logger interface
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package goextensions

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologAdapter wraps a zerolog.Logger behind the Logger interface.
//
// Example usage:
//
//	zl := zerolog.New(os.Stdout).With().Timestamp().Logger()
//	orch := NewOrchestrator(config, NewZerologAdapter(zl))
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter creates a Logger backed by the given zerolog.Logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Debug implements Logger interface
func (z *ZerologAdapter) Debug(msg string, args ...any) {
	appendFields(z.logger.Debug(), args).Msg(msg)
}

// Info implements Logger interface
func (z *ZerologAdapter) Info(msg string, args ...any) {
	appendFields(z.logger.Info(), args).Msg(msg)
}

// Warn implements Logger interface
func (z *ZerologAdapter) Warn(msg string, args ...any) {
	appendFields(z.logger.Warn(), args).Msg(msg)
}

// Error implements Logger interface
func (z *ZerologAdapter) Error(msg string, args ...any) {
	appendFields(z.logger.Error(), args).Msg(msg)
}

// With implements Logger interface
func (z *ZerologAdapter) With(args ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(args); i += 2 {
		ctx = ctx.Interface(fieldKey(args[i]), args[i+1])
	}
	return &ZerologAdapter{logger: ctx.Logger()}
}

// appendFields attaches key-value pairs to a zerolog event. An unpaired
// trailing value is ignored rather than guessed at.
func appendFields(event *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		event = event.Interface(fieldKey(args[i]), args[i+1])
	}
	return event
}

func fieldKey(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
