// Package gateway is the single HTTP client every resource service talks to the backend through.
// It decorates requests with credentials and correlation headers and normalizes every failure into
// an [*Error].
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhis2-sre/im-console/internal/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 30 * time.Second

	tracerName = "github.com/dhis2-sre/im-console/pkg/gateway"
)

type Config struct {
	BaseURL string
	// Timeout is the ceiling of a single call. Calls running into it fail with [KindNetwork].
	Timeout time.Duration
}

// TokenSource yields the access token sent as bearer credential. An empty token means the request
// is sent without credential.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// SessionInvalidator is called whenever the backend rejects the credential with a 401.
type SessionInvalidator interface {
	Invalidate(ctx context.Context)
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

func WithSessionInvalidator(invalidator SessionInvalidator) Option {
	return func(c *Client) {
		c.invalidator = invalidator
	}
}

// WithTransport sets the transport requests are finally sent with. Defaults to
// [http.DefaultTransport].
func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(c *Client) {
		c.tracer = provider.Tracer(tracerName)
	}
}

func WithRegisterer(registerer prometheus.Registerer) Option {
	return func(c *Client) {
		c.registerer = registerer
	}
}

// New creates a client sending requests relative to cfg.BaseURL. It's meant to be created once and
// shared by all services.
func New(cfg Config, options ...Option) (*Client, error) {
	baseURL, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL %q: %v", cfg.BaseURL, err)
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:   baseURL,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		transport: http.DefaultTransport,
		tracer:    otel.Tracer(tracerName),
	}
	for _, option := range options {
		option(c)
	}

	c.metrics = newMetrics(c.registerer)
	c.http = &http.Client{
		Transport: c.chain(),
		Timeout:   timeout,
	}
	return c, nil
}

type Client struct {
	baseURL     *url.URL
	http        *http.Client
	logger      *slog.Logger
	transport   http.RoundTripper
	tokens      TokenSource
	invalidator SessionInvalidator
	tracer      trace.Tracer
	registerer  prometheus.Registerer
	metrics     *metrics
}

func (c *Client) chain() http.RoundTripper {
	transport := middleware.RequestLogger(c.logger, c.transport)
	if c.tokens != nil {
		transport = middleware.BearerToken(c.tokens.AccessToken, transport)
	}
	return middleware.CorrelationID(transport)
}

// Request describes a call relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is JSON encoded unless it's an [io.Reader] which is sent as is with ContentType.
	Body        any
	ContentType string
}

type RequestOption func(*Request)

// WithQuery adds values to the query string of the request.
func WithQuery(values url.Values) RequestOption {
	return func(r *Request) {
		if r.Query == nil {
			r.Query = url.Values{}
		}
		for key, vs := range values {
			r.Query[key] = append(r.Query[key], vs...)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = http.Header{}
		}
		r.Header.Set(key, value)
	}
}

func newRequest(method, path string, body any, options []RequestOption) Request {
	r := Request{Method: method, Path: path, Body: body}
	for _, option := range options {
		option(&r)
	}
	return r
}

// Get decodes the data of the response into out. out can be nil if the data isn't of interest.
func (c *Client) Get(ctx context.Context, path string, out any, options ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodGet, path, nil, options), out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodPost, path, body, options), out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodPut, path, body, options), out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any, options ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodPatch, path, body, options), out)
}

func (c *Client) Delete(ctx context.Context, path string, out any, options ...RequestOption) error {
	return c.Do(ctx, newRequest(http.MethodDelete, path, nil, options), out)
}

// Do sends the request and decodes the data of the response envelope into out. Any error returned
// is an [*Error].
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	return c.send(ctx, req, func(status int, body []byte) error {
		return decodeEnvelope(status, body, out)
	})
}

// send sends the request and hands a 2xx response to decode. It's where every call is traced,
// counted and classified.
func (c *Client) send(ctx context.Context, req Request, decode func(status int, body []byte) error) error {
	if _, ok := middleware.GetCorrelationID(ctx); !ok {
		ctx = middleware.NewContextWithCorrelationID(ctx, middleware.NewCorrelationID())
	}

	ctx, span := c.tracer.Start(ctx, req.Method+" "+req.Path, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	id, _ := middleware.GetCorrelationID(ctx)
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.path", req.Path),
		attribute.String("im.correlation_id", id),
	)

	start := time.Now()
	status, err := c.roundTrip(ctx, req, decode)
	c.metrics.observe(req.Method, start, err)

	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil && !IsCancelled(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, req Request, decode func(status int, body []byte) error) (int, error) {
	httpReq, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return 0, newClientError(err)
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		return 0, c.transportError(ctx, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, c.transportError(ctx, err)
	}

	if res.StatusCode == http.StatusUnauthorized {
		return res.StatusCode, c.authExpired(ctx, body)
	}

	if !isSuccess(res.StatusCode) {
		message, details := decodeErrorBody(body)
		return res.StatusCode, newServerError(res.StatusCode, message, details)
	}

	return res.StatusCode, decode(res.StatusCode, body)
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	u, err := c.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	contentType := req.ContentType
	switch b := req.Body.(type) {
	case nil:
	case io.Reader:
		body = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %v", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	return httpReq, nil
}

func (c *Client) resolve(path string, query url.Values) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse path %q: %v", path, err)
	}
	if ref.IsAbs() {
		return nil, fmt.Errorf("path %q must be relative to the base URL", path)
	}

	u := *c.baseURL
	u.Path = c.baseURL.Path + "/" + strings.TrimPrefix(ref.Path, "/")
	u.RawPath = c.baseURL.EscapedPath() + "/" + strings.TrimPrefix(ref.EscapedPath(), "/")
	q := ref.Query()
	for key, values := range query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	u.RawQuery = q.Encode()
	return &u, nil
}

// transportError classifies a failure without a response. A cancelled ctx takes precedence over
// whatever failed because of it, reading the access token included.
func (c *Client) transportError(ctx context.Context, err error) *Error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return newCancelledError(err)
	}
	if errors.Is(err, middleware.ErrToken) {
		return newClientError(err)
	}
	return newNetworkError(err)
}

// authExpired invalidates the session and returns the error to the caller. The credential isn't
// refreshed and the call isn't retried.
func (c *Client) authExpired(ctx context.Context, body []byte) *Error {
	message, details := decodeErrorBody(body)
	c.logger.WarnContext(ctx, "Session expired", "message", message)
	if c.invalidator != nil {
		c.invalidator.Invalidate(context.WithoutCancel(ctx))
	}
	return newAuthExpiredError(message, details)
}
