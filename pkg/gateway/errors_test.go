package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	t.Run("Wrapped", func(t *testing.T) {
		err := fmt.Errorf("failed to list containers: %w", newServerError(502, "", nil))

		e, ok := AsError(err)
		require.True(t, ok)
		assert.Equal(t, "Bad Gateway", e.Message)
		assert.True(t, IsServer(err))
		assert.False(t, IsNetwork(err))
	})

	t.Run("ExactlyOneKind", func(t *testing.T) {
		errs := []error{
			newServerError(500, "boom", nil),
			newNetworkError(errors.New("connection refused")),
			newClientError(errors.New("bad body")),
			newCancelledError(context.Canceled),
			newAuthExpiredError("", nil),
		}
		predicates := []func(error) bool{IsServer, IsNetwork, IsClient, IsCancelled, IsAuthExpired}

		for _, err := range errs {
			matches := 0
			for _, is := range predicates {
				if is(err) {
					matches++
				}
			}
			assert.Equal(t, 1, matches, "want %v to be of exactly one kind", err)
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		err := newCancelledError(context.Canceled)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, CodeCancelled, err.Code)
		assert.Equal(t, "cancelled", err.Kind.String())
	})

	t.Run("JSON", func(t *testing.T) {
		err := newServerError(404, "not found", json.RawMessage(`{"id":"c1"}`))

		b, marshalErr := json.Marshal(err)
		require.NoError(t, marshalErr)

		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.EqualValues(t, 404, got["code"])
		assert.Equal(t, "not found", got["message"])
		assert.Equal(t, map[string]any{"id": "c1"}, got["details"])
		assert.Contains(t, got, "timestamp")
	})

	t.Run("NotAnError", func(t *testing.T) {
		_, ok := AsError(errors.New("plain"))
		assert.False(t, ok)
		assert.False(t, IsServer(nil))
	})
}
