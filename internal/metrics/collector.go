// Package metrics records request and refresh metrics through client hooks.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/eshaffer321/petsgo-go/internal/types"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "petsgo"

// Collector holds the client's prometheus metrics
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	failures *prometheus.CounterVec
	refresh  *prometheus.CounterVec
}

// NewCollector creates the metrics and registers them with reg when non-nil
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP responses received, by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from sending a request to reading its body.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Requests that ended in an error, by reason.",
		}, []string{"reason"}),
		refresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts triggered by 401 responses, by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		for _, col := range []prometheus.Collector{c.requests, c.duration, c.failures, c.refresh} {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// Hooks returns client hooks feeding the collector
func (c *Collector) Hooks() *types.Hooks {
	return &types.Hooks{
		OnResponse: func(ctx context.Context, resp *http.Response, duration time.Duration) {
			method := http.MethodGet
			if resp.Request != nil {
				method = resp.Request.Method
			}
			c.requests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
			c.duration.WithLabelValues(method).Observe(duration.Seconds())
		},
		OnError: func(ctx context.Context, err error) {
			c.failures.WithLabelValues(failureReason(err)).Inc()
		},
		OnRefresh: func(ctx context.Context, refreshed bool, err error) {
			result := "failed"
			switch {
			case err != nil:
				result = "error"
			case refreshed:
				result = "refreshed"
			}
			c.refresh.WithLabelValues(result).Inc()
		},
	}
}

func failureReason(err error) string {
	var apiErr *types.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.HasStatus():
		return "http"
	case errors.Is(err, types.ErrTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "network"
	}
}
