package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Options controls logger construction.
type Options struct {
	// Debug lowers the level to debug.
	Debug bool
	// Annotations, when non-nil, receives a GitHub Actions workflow command
	// (::warning:: or ::error::) for every record at warn level or above.
	Annotations io.Writer
}

// New returns a text logger writing to w.
func New(w io.Writer, opts Options) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if opts.Annotations != nil {
		h = &actionsHandler{Handler: h, out: opts.Annotations, mu: &sync.Mutex{}}
	}
	return slog.New(h)
}

// InActions reports whether the process runs inside a GitHub Actions job.
func InActions() bool {
	return os.Getenv("GITHUB_ACTIONS") == "true"
}

type actionsHandler struct {
	slog.Handler
	out io.Writer
	mu  *sync.Mutex
}

func (h *actionsHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		command := "warning"
		if r.Level >= slog.LevelError {
			command = "error"
		}
		h.mu.Lock()
		_, err := fmt.Fprintf(h.out, "::%s::%s\n", command, escapeData(r.Message))
		h.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h *actionsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &actionsHandler{Handler: h.Handler.WithAttrs(attrs), out: h.out, mu: h.mu}
}

func (h *actionsHandler) WithGroup(name string) slog.Handler {
	return &actionsHandler{Handler: h.Handler.WithGroup(name), out: h.out, mu: h.mu}
}

var dataEscaper = strings.NewReplacer("%", "%25", "\r", "%0D", "\n", "%0A")

// escapeData encodes a workflow command message so it stays on one line.
func escapeData(s string) string {
	return dataEscaper.Replace(s)
}
