package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the wrapper every backend response body is sent in.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    int             `json:"code,omitempty"`
}

// Page is the data of a paginated list response.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
}

// errorBody is what the backend sends along a non 2xx status, if anything.
type errorBody struct {
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details"`
}

func decodeErrorBody(body []byte) (string, json.RawMessage) {
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		// plain text bodies are used as message
		return string(bytes.TrimSpace(body)), nil
	}
	message := e.Message
	if message == "" {
		message = e.Error
	}
	return message, e.Details
}

// decodeEnvelope decodes the data of a 2xx response into out. An empty body is a success without
// data.
func decodeEnvelope(status int, body []byte, out any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	var envelope Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return newClientError(fmt.Errorf("failed to decode response: %v", err))
	}

	if !envelope.Success {
		code := envelope.Code
		if code == 0 {
			code = status
		}
		message := envelope.Message
		if message == "" {
			message = "Request failed"
		}
		return newServerError(code, message, nil)
	}

	if out == nil || len(envelope.Data) == 0 || bytes.Equal(envelope.Data, []byte("null")) {
		return nil
	}

	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return newClientError(fmt.Errorf("failed to decode response data: %v", err))
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
