// Package log provides slog handlers.
package log

import (
	"context"
	"io"
	"log/slog"

	"github.com/dhis2-sre/im-console/internal/middleware"
	"github.com/dhis2-sre/im-console/pkg/model"
)

// ContextHandler adds values from the [context.Context] to the [slog.Record]. [slog.Handler] is
// passed to [slog.Logger] which is then used throughout the app. It has to use the same attribute
// keys as the [middleware.RequestLogger] so we can find logs created by the gateway transport and
// the [slog.Logger] context aware methods. As not every use of the logger will be within the context
// of a gateway request it needs to be ok with keys not being set in the [context.Context].
type ContextHandler struct {
	slog.Handler
}

func New(handler slog.Handler) *ContextHandler {
	return &ContextHandler{
		Handler: handler,
	}
}

func (rh *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return rh.Handler.Enabled(ctx, level)
}

func (rh *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	// logs outside of a gateway request
	if id, ok := middleware.GetCorrelationID(ctx); ok {
		r.AddAttrs(slog.String(middleware.RequestLoggerKeyCorrelationID, id))
	}

	// nothing is active before the first connection is activated
	if connection, ok := model.GetConnectionFromContext(ctx); ok {
		r.AddAttrs(slog.String(middleware.RequestLoggerKeyConnection, connection.ID))
	}

	return rh.Handler.Handle(ctx, r)
}

func (rh *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return New(rh.Handler.WithAttrs(attrs))
}

func (rh *ContextHandler) WithGroup(name string) slog.Handler {
	return New(rh.Handler.WithGroup(name))
}

// NewLogger returns a logger writing JSON records to w. Records carry the values [ContextHandler]
// finds in the context.
func NewLogger(w io.Writer, level slog.Level, pretty bool) *slog.Logger {
	handler := NewPrettyJSONHandler(w, &PrettyJSONHandlerOptions{
		HandlerOptions: slog.HandlerOptions{
			AddSource: true,
			Level:     level,
		},
		PrettyPrint: pretty,
	})
	return slog.New(New(handler))
}
