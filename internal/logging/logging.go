// Package logging wires a colorized slog handler for the coreconn demo
// binaries. Library code under internal/coreconn, internal/pending, and
// internal/transport never imports this package — only cmd/* binaries
// construct a handler, mirroring the teacher's practice of building
// side-effecting resources (sockets, files) exclusively in cmd/*/main.go.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// New builds a *slog.Logger writing colorized, human-readable lines to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})
	return slog.New(handler)
}
