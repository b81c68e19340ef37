package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const (
	contentTypeKey = "Content-Type"
	requestIDKey   = "X-Request-ID"
)

// RateLimiter gates outgoing attempts.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// RESTTransport sends single HTTP attempts and reads the full response
type RESTTransport struct {
	httpClient  *http.Client
	retryClient *retryablehttp.Client
	headers     map[string]string
	logger      types.Logger
	hooks       *types.Hooks
	limiter     RateLimiter
}

// Request is a fully built HTTP call
type Request struct {
	Method    string
	URL       string
	Headers   http.Header
	Body      []byte
	Timeout   time.Duration
	RequestID string
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
	Duration    time.Duration
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// Options for REST transport
type Options struct {
	HTTPClient  *http.Client
	Headers     map[string]string
	RetryConfig *types.RetryConfig
	Logger      types.Logger
	Hooks       *types.Hooks
	RateLimiter RateLimiter
}

// NewRESTTransport creates a new REST transport
func NewRESTTransport(opts *Options) *RESTTransport {
	if opts == nil {
		opts = &Options{}
	}

	// Timeouts are applied per request through the context
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	var retryClient *retryablehttp.Client
	if opts.RetryConfig != nil && opts.RetryConfig.MaxRetries > 0 {
		retryClient = retryablehttp.NewClient()
		retryClient.HTTPClient = opts.HTTPClient
		retryClient.RetryMax = opts.RetryConfig.MaxRetries
		if opts.RetryConfig.RetryWait > 0 {
			retryClient.RetryWaitMin = opts.RetryConfig.RetryWait
		}
		if opts.RetryConfig.MaxWait > 0 {
			retryClient.RetryWaitMax = opts.RetryConfig.MaxWait
		}
		// The final response is classified by the caller, not turned into an error here
		retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

		if opts.Logger != nil {
			retryClient.Logger = &retryLogger{logger: opts.Logger}
		} else {
			retryClient.Logger = nil
		}
	}

	headers := map[string]string{
		"User-Agent": types.UserAgent,
	}
	for k, v := range opts.Headers {
		headers[k] = v
	}

	return &RESTTransport{
		httpClient:  opts.HTTPClient,
		retryClient: retryClient,
		headers:     headers,
		logger:      opts.Logger,
		hooks:       opts.Hooks,
		limiter:     opts.RateLimiter,
	}
}

// EncodeBody serializes a request body. GET never carries one.
func EncodeBody(method string, data interface{}) ([]byte, error) {
	if data == nil || strings.EqualFold(method, http.MethodGet) {
		return nil, nil
	}
	switch v := data.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	body, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request body")
	}
	return body, nil
}

// Do performs one HTTP attempt. Failures to obtain a response are returned as
// *types.APIError with no status.
func (t *RESTTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	reqCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	if t.limiter != nil {
		if err := t.limiter.Wait(reqCtx); err != nil {
			return nil, t.fail(ctx, reqCtx, req, errors.Wrap(err, "rate limiter"))
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(reqCtx, req.Method, req.URL, body)
	if err != nil {
		return nil, &types.APIError{
			Message:   fmt.Sprintf("invalid request: %v", err),
			Code:      types.NoCode,
			RequestID: req.RequestID,
			Err:       errors.Wrap(err, "failed to create request"),
		}
	}

	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}
	for k, values := range req.Headers {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if req.RequestID != "" {
		httpReq.Header.Set(requestIDKey, req.RequestID)
	}

	if t.hooks != nil && t.hooks.OnRequest != nil {
		t.hooks.OnRequest(ctx, httpReq)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP request", "method", req.Method, "url", req.URL, "request_id", req.RequestID)
	}

	start := time.Now()
	resp, err := t.doRequest(httpReq)
	if err != nil {
		return nil, t.fail(ctx, reqCtx, req, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	duration := time.Since(start)
	if err != nil {
		return nil, t.fail(ctx, reqCtx, req, errors.Wrap(err, "failed to read response"))
	}

	if t.hooks != nil && t.hooks.OnResponse != nil {
		t.hooks.OnResponse(ctx, resp, duration)
	}

	if t.logger != nil {
		t.logger.Debug("HTTP response", "status", resp.StatusCode, "duration", duration, "size", len(respBody), "request_id", req.RequestID)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get(contentTypeKey),
		Body:        respBody,
		Duration:    duration,
	}, nil
}

// doRequest executes the HTTP request with retry if configured
func (t *RESTTransport) doRequest(req *http.Request) (*http.Response, error) {
	if t.retryClient != nil {
		retryReq, err := retryablehttp.FromRequest(req)
		if err != nil {
			return nil, err
		}
		return t.retryClient.Do(retryReq)
	}
	return t.httpClient.Do(req)
}

// fail converts a transport failure into an APIError. A deadline on the
// per-request context while the caller's context is still live is a timeout.
func (t *RESTTransport) fail(ctx, reqCtx context.Context, req *Request, cause error) error {
	apiErr := &types.APIError{
		Code:      types.NoCode,
		RequestID: req.RequestID,
	}
	switch {
	case ctx.Err() == nil && errors.Is(reqCtx.Err(), context.DeadlineExceeded):
		apiErr.Message = types.ErrTimeout.Error()
		apiErr.Err = types.ErrTimeout
	case ctx.Err() != nil:
		apiErr.Message = fmt.Sprintf("request cancelled: %v", ctx.Err())
		apiErr.Err = ctx.Err()
	default:
		apiErr.Message = fmt.Sprintf("%s: %v", types.ErrNetwork, cause)
		apiErr.Err = types.ErrNetwork
	}

	if t.logger != nil {
		t.logger.Warn("HTTP request failed", "method", req.Method, "url", req.URL, "error", cause, "request_id", req.RequestID)
	}
	if t.hooks != nil && t.hooks.OnError != nil {
		t.hooks.OnError(ctx, apiErr)
	}
	return apiErr
}

// retryLogger adapts our logger to retryablehttp
type retryLogger struct {
	logger types.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, keysAndValues...)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Info(msg, keysAndValues...)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn(msg, keysAndValues...)
}
