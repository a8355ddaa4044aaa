// Package middleware provides the [http.RoundTripper] decorators every outgoing gateway request
// passes through.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTimestamp = "X-Timestamp"

	RequestLoggerKeyCorrelationID = "correlationId"
	RequestLoggerKeyConnection    = "connection"
)

type ctxKey int

var correlationIDKey ctxKey

// RoundTripperFunc is an adapter to allow the use of ordinary functions as [http.RoundTripper].
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// NewCorrelationID returns a new id used to correlate a request with its log lines.
func NewCorrelationID() string {
	return "req_" + uuid.NewString()
}

// NewContextWithCorrelationID returns a new [context.Context] that carries value correlationID.
func NewContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// GetCorrelationID returns the correlation ID stored in the ctx, if any.
func GetCorrelationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationIDKey).(string)
	return id, ok
}

// CorrelationID sets the X-Request-ID and X-Timestamp headers. The correlation ID is taken from the
// request context or generated if the context doesn't carry one.
func CorrelationID(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		ctx := req.Context()
		id, ok := GetCorrelationID(ctx)
		if !ok {
			id = NewCorrelationID()
			ctx = NewContextWithCorrelationID(ctx, id)
		}

		req = req.Clone(ctx)
		req.Header.Set(HeaderRequestID, id)
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))

		return next.RoundTrip(req)
	})
}

// ErrToken is returned by [BearerToken] if the access token couldn't be read.
var ErrToken = errors.New("failed to read access token")

// BearerToken sets the Authorization header if token returns a non-empty token. Requests are sent
// without the header if there is no token.
func BearerToken(token func(ctx context.Context) (string, error), next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		accessToken, err := token(req.Context())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrToken, err)
		}
		if accessToken == "" {
			return next.RoundTrip(req)
		}

		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+accessToken)
		return next.RoundTrip(req)
	})
}

// RequestLogger logs details like request time, response time, latency and more about every
// request.
func RequestLogger(logger *slog.Logger, next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		requestTime := time.Now()

		res, err := next.RoundTrip(req)

		responseTime := time.Now()

		requestAttribute := slog.Group("request",
			slog.Time("time", requestTime),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.String("query", req.URL.RawQuery),
			slog.String("host", req.URL.Host),
		)

		const msg = "Sent HTTP request"
		ctx := req.Context()
		if err != nil {
			level := slog.LevelError
			// the caller aborted the request
			if errors.Is(ctx.Err(), context.Canceled) {
				level = slog.LevelDebug
			}
			logger.LogAttrs(ctx, level, msg, slog.String("error", err.Error()), requestAttribute)
			return nil, err
		}

		responseAttribute := slog.Group("response",
			slog.Time("time", responseTime),
			slog.Duration("latency", responseTime.Sub(requestTime)),
			slog.Int("status", res.StatusCode),
		)

		level := slog.LevelDebug
		if status := res.StatusCode; status >= http.StatusBadRequest && status < http.StatusInternalServerError {
			level = slog.LevelWarn
		} else if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}

		logger.LogAttrs(ctx, level, msg, requestAttribute, responseAttribute)
		return res, nil
	})
}
