package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is the last RoundTripper of a chain, it stores the request and answers with status.
type recorder struct {
	status  int
	request *http.Request
}

func (r *recorder) RoundTrip(req *http.Request) (*http.Response, error) {
	r.request = req
	return &http.Response{StatusCode: r.status, Body: http.NoBody, Request: req}, nil
}

func TestCorrelationID(t *testing.T) {
	t.Run("Generated", func(t *testing.T) {
		rec := &recorder{status: http.StatusOK}
		req, err := http.NewRequest(http.MethodGet, "http://backend/api/containers", nil)
		require.NoError(t, err)

		before := time.Now().UnixMilli()
		_, err = CorrelationID(rec).RoundTrip(req)
		require.NoError(t, err)

		id := rec.request.Header.Get(HeaderRequestID)
		assert.True(t, strings.HasPrefix(id, "req_"), "want request id %q to start with req_", id)
		ctxID, ok := GetCorrelationID(rec.request.Context())
		require.True(t, ok)
		assert.Equal(t, id, ctxID)

		timestamp, err := strconv.ParseInt(rec.request.Header.Get(HeaderTimestamp), 10, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, timestamp, before)
		assert.Empty(t, req.Header.Get(HeaderRequestID), "want original request untouched")
	})

	t.Run("FromContext", func(t *testing.T) {
		rec := &recorder{status: http.StatusOK}
		ctx := NewContextWithCorrelationID(context.Background(), "req_fixed")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://backend/api/containers", nil)
		require.NoError(t, err)

		_, err = CorrelationID(rec).RoundTrip(req)
		require.NoError(t, err)

		assert.Equal(t, "req_fixed", rec.request.Header.Get(HeaderRequestID))
	})
}

func TestBearerToken(t *testing.T) {
	t.Run("WithToken", func(t *testing.T) {
		rec := &recorder{status: http.StatusOK}
		req, err := http.NewRequest(http.MethodGet, "http://backend/api/auth/me", nil)
		require.NoError(t, err)

		token := func(context.Context) (string, error) { return "T", nil }
		_, err = BearerToken(token, rec).RoundTrip(req)
		require.NoError(t, err)

		assert.Equal(t, "Bearer T", rec.request.Header.Get("Authorization"))
	})

	t.Run("WithoutToken", func(t *testing.T) {
		rec := &recorder{status: http.StatusOK}
		req, err := http.NewRequest(http.MethodPost, "http://backend/api/auth/login", nil)
		require.NoError(t, err)

		token := func(context.Context) (string, error) { return "", nil }
		_, err = BearerToken(token, rec).RoundTrip(req)
		require.NoError(t, err)

		_, ok := rec.request.Header["Authorization"]
		assert.False(t, ok, "want no Authorization header")
	})

	t.Run("TokenError", func(t *testing.T) {
		rec := &recorder{status: http.StatusOK}
		req, err := http.NewRequest(http.MethodGet, "http://backend/api/auth/me", nil)
		require.NoError(t, err)

		token := func(context.Context) (string, error) { return "", errors.New("disk on fire") }
		_, err = BearerToken(token, rec).RoundTrip(req)

		require.ErrorIs(t, err, ErrToken)
		assert.Nil(t, rec.request, "want request not sent")
	})
}

func TestRequestLogger(t *testing.T) {
	tests := map[string]struct {
		status int
		level  string
	}{
		"OK":          {status: http.StatusOK, level: "DEBUG"},
		"NotFound":    {status: http.StatusNotFound, level: "WARN"},
		"ServerError": {status: http.StatusBadGateway, level: "ERROR"},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var b bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}))
			req, err := http.NewRequest(http.MethodGet, "http://backend/api/containers?page=1", nil)
			require.NoError(t, err)

			_, err = RequestLogger(logger, &recorder{status: test.status}).RoundTrip(req)
			require.NoError(t, err)

			var line map[string]any
			require.NoError(t, json.Unmarshal(b.Bytes(), &line))
			assert.Equal(t, test.level, line["level"])
			request := line["request"].(map[string]any)
			assert.Equal(t, "/api/containers", request["path"])
			assert.Equal(t, "page=1", request["query"])
			response := line["response"].(map[string]any)
			assert.EqualValues(t, test.status, response["status"])
		})
	}

	t.Run("Cancelled", func(t *testing.T) {
		var b bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&b, &slog.HandlerOptions{Level: slog.LevelDebug}))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://backend/api/containers", nil)
		require.NoError(t, err)

		failing := RoundTripperFunc(func(*http.Request) (*http.Response, error) {
			return nil, context.Canceled
		})
		_, err = RequestLogger(logger, failing).RoundTrip(req)
		require.ErrorIs(t, err, context.Canceled)

		var line map[string]any
		require.NoError(t, json.Unmarshal(b.Bytes(), &line))
		assert.Equal(t, "DEBUG", line["level"])
		assert.Equal(t, context.Canceled.Error(), line["error"])
	})
}
