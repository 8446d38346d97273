// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogBridge implements slog.Handler on top of the global zerolog logger.
// Needed for libraries that only speak slog, such as sutureslog.
type slogBridge struct {
	attrs []slog.Attr
}

// NewSlogLogger returns an slog.Logger whose records are written through the
// global zerolog logger.
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogBridge{})
}

func (h *slogBridge) Enabled(_ context.Context, level slog.Level) bool {
	return Logger().GetLevel() <= bridgeLevel(level)
}

func (h *slogBridge) Handle(_ context.Context, record slog.Record) error {
	lg := Logger()
	event := lg.WithLevel(bridgeLevel(record.Level))
	for _, attr := range h.attrs {
		event = bridgeAttr(event, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = bridgeAttr(event, attr)
		return true
	})
	event.Msg(record.Message)
	return nil
}

func (h *slogBridge) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogBridge{attrs: merged}
}

func (h *slogBridge) WithGroup(name string) slog.Handler {
	// Groups are flattened; the supervisor emits no grouped attributes.
	return h
}

func bridgeAttr(event *zerolog.Event, attr slog.Attr) *zerolog.Event {
	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(attr.Key, attr.Value.Int64())
	case slog.KindBool:
		return event.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(attr.Key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(attr.Key, attr.Value.Time())
	case slog.KindFloat64:
		return event.Float64(attr.Key, attr.Value.Float64())
	default:
		return event.Interface(attr.Key, attr.Value.Any())
	}
}

func bridgeLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
