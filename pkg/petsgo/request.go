package petsgo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/auth"
	"github.com/eshaffer321/petsgo-go/internal/transport"
	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/google/uuid"
)

const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	contentTypeJSON     = "application/json"
)

// RequestConfig describes one call. The zero value is a GET with the
// client's default timeout.
type RequestConfig struct {
	// Method is GET, POST, PUT, PATCH or DELETE. Empty means GET.
	Method string

	// Data is the request body. Strings and byte slices are sent verbatim,
	// anything else is JSON-encoded. GET requests never carry a body.
	Data interface{}

	// Params are appended to the URL in order
	Params Params

	// Headers are merged over the defaults; the caller wins except for
	// Authorization, which is set from the current token when there is one.
	Headers map[string]string

	// Timeout overrides the client's timeout. Zero or negative disables it.
	Timeout *time.Duration

	// Envelope overrides the client's envelope mode
	Envelope *EnvelopeMode

	// SkipAuthRefresh surfaces a 401 directly instead of refreshing
	SkipAuthRefresh bool
}

// Timeout returns a pointer suitable for RequestConfig.Timeout
func Timeout(d time.Duration) *time.Duration {
	return &d
}

// Envelope returns a pointer suitable for RequestConfig.Envelope
func Envelope(mode EnvelopeMode) *EnvelopeMode {
	return &mode
}

var allowedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// Request performs one logical call and decodes the unwrapped payload into
// result. result may be nil, *string, *[]byte, *json.RawMessage,
// *interface{} or any JSON-decodable pointer.
//
// A 401 with a registered refresh callback triggers one refresh and one
// retry; the retry's outcome is final. Every failure is an *APIError.
func (c *Client) Request(ctx context.Context, path string, cfg *RequestConfig, result interface{}) error {
	if cfg == nil {
		cfg = &RequestConfig{}
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}
	if !allowedMethods[method] {
		return &APIError{Message: fmt.Sprintf("unsupported method %q", cfg.Method), Code: NoCode}
	}
	if path == "" {
		return &APIError{Message: "path is required", Code: NoCode}
	}

	body, err := transport.EncodeBody(method, cfg.Data)
	if err != nil {
		return &APIError{Message: err.Error(), Code: NoCode, Err: err}
	}

	url := transport.BuildURL(c.registry.BaseURL(), path, cfg.Params)
	requestID := uuid.New().String()
	timeout := c.timeoutFor(cfg)

	// The token is read when each attempt is built so the retry sees the
	// value written by the refresh callback.
	build := func() *transport.Request {
		return &transport.Request{
			Method:    method,
			URL:       url,
			Headers:   c.buildHeaders(cfg.Headers),
			Body:      body,
			Timeout:   timeout,
			RequestID: requestID,
		}
	}

	resp, err := c.transport.Do(ctx, build())
	if err != nil {
		return c.fail(ctx, method, path, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && c.canRefresh(ctx, cfg) {
		refreshed, err := c.refresh(ctx, method, path, requestID)
		if err != nil {
			return c.fail(ctx, method, path, err)
		}
		if refreshed {
			resp, err = c.transport.Do(ctx, build())
			if err != nil {
				return c.fail(ctx, method, path, err)
			}
		}
	}

	respBody := transport.ReadBody(resp, c.options.LenientJSON)
	if !resp.OK() {
		apiErr := transport.ClassifyFailure(resp.StatusCode, respBody)
		apiErr.RequestID = requestID
		return c.fail(ctx, method, path, apiErr)
	}

	payload, err := transport.Unwrap(respBody, c.envelopeFor(cfg))
	if err != nil {
		return c.fail(ctx, method, path, &APIError{
			Message:    err.Error(),
			Code:       NoCode,
			StatusCode: resp.StatusCode,
			Body:       string(respBody.Raw),
			RequestID:  requestID,
			Err:        err,
		})
	}

	if err := decodeResult(payload, result); err != nil {
		return c.fail(ctx, method, path, &APIError{
			Message:    fmt.Sprintf("failed to decode response: %v", err),
			Code:       NoCode,
			StatusCode: resp.StatusCode,
			Body:       payload.Value(),
			RequestID:  requestID,
			Err:        types.ErrMalformedBody,
		})
	}
	return nil
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string, cfg *RequestConfig, result interface{}) error {
	return c.Request(ctx, path, withMethod(cfg, http.MethodGet, nil), result)
}

// Post performs a POST request with data as the body
func (c *Client) Post(ctx context.Context, path string, data interface{}, cfg *RequestConfig, result interface{}) error {
	return c.Request(ctx, path, withMethod(cfg, http.MethodPost, data), result)
}

// Put performs a PUT request with data as the body
func (c *Client) Put(ctx context.Context, path string, data interface{}, cfg *RequestConfig, result interface{}) error {
	return c.Request(ctx, path, withMethod(cfg, http.MethodPut, data), result)
}

// Patch performs a PATCH request with data as the body
func (c *Client) Patch(ctx context.Context, path string, data interface{}, cfg *RequestConfig, result interface{}) error {
	return c.Request(ctx, path, withMethod(cfg, http.MethodPatch, data), result)
}

// Delete performs a DELETE request
func (c *Client) Delete(ctx context.Context, path string, cfg *RequestConfig, result interface{}) error {
	return c.Request(ctx, path, withMethod(cfg, http.MethodDelete, nil), result)
}

func withMethod(cfg *RequestConfig, method string, data interface{}) *RequestConfig {
	out := RequestConfig{}
	if cfg != nil {
		out = *cfg
	}
	out.Method = method
	out.Data = data
	return &out
}

// buildHeaders applies defaults, then caller headers, then the bearer token.
func (c *Client) buildHeaders(extra map[string]string) http.Header {
	headers := http.Header{}
	headers.Set(headerContentType, contentTypeJSON)
	for k, v := range c.options.Headers {
		headers.Set(k, v)
	}
	for k, v := range extra {
		headers.Set(k, v)
	}
	if token := c.registry.Token(); token != "" {
		headers.Set(headerAuthorization, "Bearer "+token)
	}
	return headers
}

func (c *Client) timeoutFor(cfg *RequestConfig) time.Duration {
	if cfg.Timeout != nil {
		return *cfg.Timeout
	}
	return c.options.Timeout
}

func (c *Client) envelopeFor(cfg *RequestConfig) EnvelopeMode {
	if cfg.Envelope != nil {
		return *cfg.Envelope
	}
	return c.options.Envelope
}

// canRefresh reports whether a 401 may enter the refresh protocol. Requests
// issued by the refresh callback itself never do.
func (c *Client) canRefresh(ctx context.Context, cfg *RequestConfig) bool {
	return !cfg.SkipAuthRefresh && !auth.Refreshing(ctx) && c.registry.On401() != nil
}

// refresh runs the refresh protocol and reports whether to retry. An error
// is returned only when ctx ended while the refresh was pending; a failed or
// declined refresh leaves the original 401 to surface.
func (c *Client) refresh(ctx context.Context, method, path, requestID string) (bool, error) {
	logger := c.options.Logger
	if logger != nil {
		logger.Info("Token rejected, refreshing", "method", method, "path", path, "request_id", requestID)
	}

	refreshed, err := c.refresher.Refresh(ctx)

	if hooks := c.options.Hooks; hooks != nil && hooks.OnRefresh != nil {
		hooks.OnRefresh(ctx, refreshed, err)
	}
	if logger != nil {
		switch {
		case err != nil:
			logger.Warn("Token refresh failed", "error", err, "request_id", requestID)
		case !refreshed:
			logger.Warn("Token refresh declined", "request_id", requestID)
		default:
			logger.Info("Token refreshed, retrying", "method", method, "path", path, "request_id", requestID)
		}
	}
	if ctx.Err() != nil {
		return false, c.abandoned(ctx, requestID)
	}
	return err == nil && refreshed, nil
}

// abandoned builds the error for a caller whose context ended during a
// refresh. No transport call failed, so the OnError hook fires here.
func (c *Client) abandoned(ctx context.Context, requestID string) error {
	apiErr := &APIError{
		Message:   fmt.Sprintf("request cancelled: %v", ctx.Err()),
		Code:      NoCode,
		RequestID: requestID,
		Err:       ctx.Err(),
	}
	if hooks := c.options.Hooks; hooks != nil && hooks.OnError != nil {
		hooks.OnError(ctx, apiErr)
	}
	return apiErr
}

// fail records a terminal error and returns it
func (c *Client) fail(ctx context.Context, method, path string, err error) error {
	if c.options.Logger != nil {
		c.options.Logger.Debug("Request failed", "method", method, "path", path, "error", err)
	}
	if hooks := c.options.Hooks; hooks != nil && hooks.OnError != nil {
		if apiErr, ok := err.(*APIError); ok && apiErr.HasStatus() {
			hooks.OnError(ctx, err)
		}
	}
	c.captureError(ctx, method, path, err)
	return err
}

func decodeResult(payload *transport.Body, result interface{}) error {
	switch out := result.(type) {
	case nil:
		return nil
	case *string:
		if payload.JSON && !payload.Empty() {
			var s string
			if err := json.Unmarshal(payload.Raw, &s); err == nil {
				*out = s
				return nil
			}
		}
		*out = string(payload.Raw)
		return nil
	case *[]byte:
		*out = append([]byte(nil), payload.Raw...)
		return nil
	case *json.RawMessage:
		if payload.Empty() {
			*out = nil
			return nil
		}
		if payload.JSON {
			*out = append(json.RawMessage(nil), payload.Raw...)
			return nil
		}
		encoded, err := json.Marshal(string(payload.Raw))
		if err != nil {
			return err
		}
		*out = encoded
		return nil
	case *interface{}:
		*out = payload.Value()
		return nil
	default:
		if payload.Empty() {
			return nil
		}
		return json.Unmarshal(payload.Raw, result)
	}
}
