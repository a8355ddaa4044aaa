package log

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

type PrettyJSONHandlerOptions struct {
	slog.HandlerOptions
	PrettyPrint bool
}

// NewPrettyJSONHandler returns a JSON handler which indents every record if PrettyPrint is set.
// Indented records are meant for a human watching the console in a terminal.
func NewPrettyJSONHandler(w io.Writer, opts *PrettyJSONHandlerOptions) slog.Handler {
	if opts == nil {
		opts = &PrettyJSONHandlerOptions{}
	}

	h := &prettyHandler{
		writer:      w,
		prettyPrint: opts.PrettyPrint,
		mu:          &sync.Mutex{},
		buf:         &bytes.Buffer{},
	}
	h.JSONHandler = slog.NewJSONHandler(h.buf, &opts.HandlerOptions)
	if !opts.PrettyPrint {
		h.JSONHandler = slog.NewJSONHandler(w, &opts.HandlerOptions)
	}
	return h
}

type prettyHandler struct {
	*slog.JSONHandler
	writer      io.Writer
	prettyPrint bool

	// mu guards buf which is shared by all handlers derived through WithAttrs and WithGroup
	mu  *sync.Mutex
	buf *bytes.Buffer
}

func (h *prettyHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.prettyPrint {
		return h.JSONHandler.Handle(ctx, r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.JSONHandler.Handle(ctx, r); err != nil {
		return err
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, h.buf.Bytes(), "", "  "); err != nil {
		// write the record as is rather than losing it
		_, err = h.writer.Write(h.buf.Bytes())
		return err
	}

	_, err := h.writer.Write(prettyJSON.Bytes())
	return err
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.derive(h.JSONHandler.WithAttrs(attrs))
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.JSONHandler.WithGroup(name))
}

func (h *prettyHandler) derive(handler slog.Handler) *prettyHandler {
	return &prettyHandler{
		JSONHandler: handler.(*slog.JSONHandler),
		writer:      h.writer,
		prettyPrint: h.prettyPrint,
		mu:          h.mu,
		buf:         h.buf,
	}
}
