package auth

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

const refreshKey = "refresh"

type refreshingKey struct{}

// Refreshing reports whether ctx belongs to a refresh callback. Requests made
// with such a context must not start another refresh.
func Refreshing(ctx context.Context) bool {
	v, _ := ctx.Value(refreshingKey{}).(bool)
	return v
}

// Refresher runs the registry's refresh callback at most once at a time.
// Callers that hit a 401 while a refresh is in flight wait for its result.
type Refresher struct {
	registry *Registry
	group    singleflight.Group
}

// NewRefresher creates a refresher bound to registry
func NewRefresher(registry *Registry) *Refresher {
	return &Refresher{registry: registry}
}

// Refresh invokes the registered callback, sharing an in-flight invocation
// with concurrent callers. It returns false when no callback is registered.
// The callback runs detached from the first caller's cancellation so one
// caller giving up does not fail the others.
func (r *Refresher) Refresh(ctx context.Context) (bool, error) {
	fn := r.registry.On401()
	if fn == nil {
		return false, nil
	}

	ch := r.group.DoChan(refreshKey, func() (val interface{}, err error) {
		// singleflight re-panics on its own goroutine, where nobody can recover.
		defer func() {
			if p := recover(); p != nil {
				val, err = false, errors.Errorf("refresh callback panicked: %v", p)
			}
		}()
		refreshCtx := context.WithValue(context.WithoutCancel(ctx), refreshingKey{}, true)
		return fn(refreshCtx)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		ok, _ := res.Val.(bool)
		return ok, nil
	}
}
