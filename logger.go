// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shaderdbg

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/shaderdbg/shader"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so callers skip message formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with shading workers.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for shaderdbg and the shader package.
// By default, shaderdbg produces no log output.
//
// SetLogger is safe for concurrent use. Pass nil to restore the silent
// default.
//
// Log levels used by shaderdbg:
//   - [slog.LevelDebug]: per-pass and per-item diagnostics
//   - [slog.LevelInfo]: analysis lifecycle (pass rendered, breakpoints set)
//   - [slog.LevelWarn]: shader runtime errors, failed breakpoint
//     conditions, skipped items and topologies
//
// Example:
//
//	shaderdbg.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	shader.SetLogger(l)
}

// Logger returns the current logger used by shaderdbg.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
