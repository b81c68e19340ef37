package petsgo

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/auth"
	"github.com/eshaffer321/petsgo-go/internal/transport"
	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/getsentry/sentry-go"
)

const (
	// DefaultBaseURL is the default PetsGo API base URL
	DefaultBaseURL = types.DefaultBaseURL

	// DefaultTimeout is the default per-request timeout
	DefaultTimeout = types.DefaultTimeout

	// UserAgent is the user agent string
	UserAgent = types.UserAgent
)

// Client is the PetsGo API client. It owns the token registry every request
// reads, so one Client per logged-in user.
type Client struct {
	// Service interfaces
	Auth AuthService

	// Internal fields
	registry  *auth.Registry
	refresher *auth.Refresher
	transport Transport
	options   *ClientOptions
}

// ClientOptions configures the client
type ClientOptions struct {
	// BaseURL overrides the default API base URL
	BaseURL string

	// HTTPClient allows using a custom HTTP client
	HTTPClient *http.Client

	// Timeout is the default per-request timeout. Zero uses DefaultTimeout,
	// negative disables the timeout.
	Timeout time.Duration

	// Token provides direct authentication token
	Token string

	// Headers are sent with every request, below per-request headers
	Headers map[string]string

	// Envelope selects how {code, data, message} bodies are unwrapped
	Envelope EnvelopeMode

	// LenientJSON replaces malformed JSON bodies with an empty object
	// instead of failing with ErrMalformedBody
	LenientJSON bool

	// Store persists credentials across runs
	Store Store

	// AutoRefresh registers the token refresh endpoint as the 401 callback
	AutoRefresh bool

	// Logger for debug logging
	Logger Logger

	// RetryConfig enables transport retries for connection errors and 5xx/429
	RetryConfig *RetryConfig

	// RateLimiter for rate limiting, e.g. *rate.Limiter
	RateLimiter RateLimiter

	// Hooks for observability
	Hooks *Hooks

	// SentryDSN enables Sentry error tracking when set
	SentryDSN string

	// SentryOptions allows custom Sentry configuration
	SentryOptions *sentry.ClientOptions
}

// RateLimiter interface for rate limiting
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Transport sends one HTTP attempt and returns the fully read response
type Transport interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// NewClient creates a new PetsGo client
func NewClient(opts *ClientOptions) (*Client, error) {
	if opts == nil {
		opts = &ClientOptions{}
	}

	// Initialize Sentry if DSN is provided
	if opts.SentryDSN != "" || opts.SentryOptions != nil {
		sentryOpts := sentry.ClientOptions{}
		if opts.SentryOptions != nil {
			sentryOpts = *opts.SentryOptions
		}
		if opts.SentryDSN != "" {
			sentryOpts.Dsn = opts.SentryDSN
		}
		if sentryOpts.Environment == "" {
			sentryOpts.Environment = "production"
		}
		if err := sentry.Init(sentryOpts); err != nil {
			// Log error but don't fail client creation
			if opts.Logger != nil {
				opts.Logger.Error("Failed to initialize Sentry", "error", err)
			}
		}
	}

	// Set defaults
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	var limiter transport.RateLimiter
	if opts.RateLimiter != nil {
		limiter = opts.RateLimiter
	}

	trans := transport.NewRESTTransport(&transport.Options{
		HTTPClient:  opts.HTTPClient,
		RetryConfig: opts.RetryConfig,
		Logger:      opts.Logger,
		Hooks:       opts.Hooks,
		RateLimiter: limiter,
	})

	return newClient(opts, trans), nil
}

// NewClientWithToken creates a client with an auth token
func NewClientWithToken(token string) (*Client, error) {
	return NewClient(&ClientOptions{
		Token: token,
	})
}

func newClient(opts *ClientOptions, trans Transport) *Client {
	registry := auth.NewRegistry(opts.BaseURL)
	registry.SetToken(opts.Token)

	c := &Client{
		registry:  registry,
		refresher: auth.NewRefresher(registry),
		transport: trans,
		options:   opts,
	}
	c.initServices()

	if opts.AutoRefresh {
		c.Auth.EnableAutoRefresh()
	}
	return c
}

// initServices initializes all service implementations
func (c *Client) initServices() {
	c.Auth = newAuthService(c, c.options.Store)
}

// SetAuthToken replaces the bearer token sent with every request. "" logs out.
func (c *Client) SetAuthToken(token string) {
	c.registry.SetToken(token)
}

// AuthToken returns the current bearer token
func (c *Client) AuthToken() string {
	return c.registry.Token()
}

// SetOn401 registers the callback run when a request gets a 401. When it
// returns true the request is retried once with the then-current token.
// nil clears the callback.
func (c *Client) SetOn401(fn RefreshFunc) {
	c.registry.SetOn401(fn)
}

// BaseURL returns the base URL relative paths are joined to
func (c *Client) BaseURL() string {
	return c.registry.BaseURL()
}

// SetBaseURL replaces the base URL
func (c *Client) SetBaseURL(url string) {
	c.registry.SetBaseURL(url)
}

// Close flushes any pending Sentry events and performs cleanup
func (c *Client) Close() {
	sentry.Flush(2 * time.Second)
}

// captureError reports a terminal request error to Sentry when it is configured
func (c *Client) captureError(ctx context.Context, method, path string, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("http.method", method)
		scope.SetTag("http.path", path)
		if apiErr, ok := err.(*APIError); ok {
			if apiErr.StatusCode != 0 {
				scope.SetTag("http.status_code", strconv.Itoa(apiErr.StatusCode))
			}
			scope.SetContext("petsgo", map[string]interface{}{
				"code":       apiErr.Code,
				"status":     apiErr.StatusCode,
				"request_id": apiErr.RequestID,
			})
		}
		hub.CaptureException(err)
	})
}
