package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// Kind classifies a failed call. Every failure returned by the [Client] is an [*Error] of exactly
// one kind.
type Kind int

const (
	// KindServer is a response outside of 2xx or a 2xx envelope with success=false.
	KindServer Kind = iota + 1
	// KindNetwork means no response was received. This includes the client timeout.
	KindNetwork
	// KindClient means the request couldn't be built or the response couldn't be decoded.
	KindClient
	// KindCancelled means the caller cancelled the call on purpose. It's not a failure to report.
	KindCancelled
	// KindAuthExpired is a 401. The session was invalidated before the error was returned.
	KindAuthExpired
)

func (k Kind) String() string {
	switch k {
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	case KindClient:
		return "client"
	case KindCancelled:
		return "cancelled"
	case KindAuthExpired:
		return "auth_expired"
	default:
		return "unknown"
	}
}

const (
	CodeNetwork   = 0
	CodeClient    = -1
	CodeCancelled = -2
)

const networkErrorMessage = "Network error. Please check your connection."

// Error is the normalized error of a failed call.
type Error struct {
	Kind      Kind            `json:"-"`
	Code      int             `json:"code"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	err error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

// AsError returns the [*Error] in err's chain, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

func IsServer(err error) bool {
	return isKind(err, KindServer)
}

func IsNetwork(err error) bool {
	return isKind(err, KindNetwork)
}

func IsClient(err error) bool {
	return isKind(err, KindClient)
}

func IsCancelled(err error) bool {
	return isKind(err, KindCancelled)
}

func IsAuthExpired(err error) bool {
	return isKind(err, KindAuthExpired)
}

func isKind(err error, kind Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == kind
}

func newServerError(status int, message string, details json.RawMessage) *Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return &Error{
		Kind:      KindServer,
		Code:      status,
		Message:   message,
		Details:   details,
		Timestamp: now(),
	}
}

func newAuthExpiredError(message string, details json.RawMessage) *Error {
	if message == "" {
		message = "Session expired. Please sign in again."
	}
	return &Error{
		Kind:      KindAuthExpired,
		Code:      http.StatusUnauthorized,
		Message:   message,
		Details:   details,
		Timestamp: now(),
	}
}

func newNetworkError(err error) *Error {
	return &Error{
		Kind:      KindNetwork,
		Code:      CodeNetwork,
		Message:   networkErrorMessage,
		Timestamp: now(),
		err:       err,
	}
}

func newClientError(err error) *Error {
	return &Error{
		Kind:      KindClient,
		Code:      CodeClient,
		Message:   err.Error(),
		Timestamp: now(),
		err:       err,
	}
}

func newCancelledError(err error) *Error {
	return &Error{
		Kind:      KindCancelled,
		Code:      CodeCancelled,
		Message:   "Request cancelled",
		Timestamp: now(),
		err:       err,
	}
}

func now() time.Time {
	return time.Now().UTC()
}
