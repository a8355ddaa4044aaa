package inttest

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
)

// SetupBackend creates a fake backend HTTP server using Gin. Routes are registered by f. The
// returned Backend records every request it received.
func SetupBackend(t *testing.T, f func(engine *gin.Engine)) *Backend {
	t.Helper()

	gin.SetMode(gin.TestMode)

	backend := &Backend{}
	engine := gin.New()
	engine.Use(backend.record)
	f(engine)

	server := httptest.NewServer(engine.Handler())
	t.Cleanup(server.Close)

	backend.URL = server.URL
	return backend
}

// Backend is a fake backend exposing the URL it is served on.
type Backend struct {
	URL string

	mu       sync.Mutex
	requests []*http.Request
}

func (b *Backend) record(c *gin.Context) {
	b.mu.Lock()
	b.requests = append(b.requests, c.Request.Clone(c.Request.Context()))
	b.mu.Unlock()
	c.Next()
}

// Requests returns the requests received so far.
func (b *Backend) Requests() []*http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*http.Request(nil), b.requests...)
}

// LastRequest returns the most recently received request or nil.
func (b *Backend) LastRequest() *http.Request {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.requests) == 0 {
		return nil
	}
	return b.requests[len(b.requests)-1]
}

// OK writes a successful response envelope carrying data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

// Fail writes a response envelope with success=false using given HTTP status.
func Fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "message": message})
}
