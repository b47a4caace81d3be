package relay

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// KeyFunc selects the limiter bucket of a request.
type KeyFunc func(req *Request) string

// LimiterRegistry holds token-bucket limiters keyed by KeyFunc, with an
// optional fallback for unregistered keys.
type LimiterRegistry struct {
	limiters map[string]*rate.Limiter
	keyFunc  KeyFunc
	fallback *rate.Limiter
	mutex    sync.RWMutex
}

// NewLimiterRegistry creates a new limiter registry with the given key function and fallback limiter.
func NewLimiterRegistry(keyFunc KeyFunc, fallback *rate.Limiter) *LimiterRegistry {
	return &LimiterRegistry{
		limiters: make(map[string]*rate.Limiter),
		keyFunc:  keyFunc,
		fallback: fallback,
	}
}

// RegisterLimiter adds a limiter for the given key.
func (r *LimiterRegistry) RegisterLimiter(key string, limiter *rate.Limiter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.limiters[key] = limiter
}

// GetLimiter returns the limiter for the given request, using the key function to determine the key.
// If no specific limiter is found, returns the fallback limiter.
func (r *LimiterRegistry) GetLimiter(req *Request) (*rate.Limiter, string) {
	if r.keyFunc == nil {
		return r.fallback, "default"
	}

	key := r.keyFunc(req)

	r.mutex.RLock()
	limiter, exists := r.limiters[key]
	r.mutex.RUnlock()

	if exists {
		return limiter, key
	}
	if r.fallback != nil {
		return r.fallback, "default"
	}
	return nil, key
}

// Allow reports whether a request may proceed right now without waiting.
func (r *LimiterRegistry) Allow(req *Request) (bool, string) {
	limiter, key := r.GetLimiter(req)
	if limiter == nil {
		return true, key
	}
	return limiter.Allow(), key
}

// Wait blocks until the request's limiter grants a token or ctx ends.
func (r *LimiterRegistry) Wait(ctx context.Context, req *Request) (string, error) {
	limiter, key := r.GetLimiter(req)
	if limiter == nil {
		return key, nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return key, fmt.Errorf("%w: %s: %v", ErrRateLimited, key, err)
	}
	return key, nil
}

// DefaultHostKeyFunc generates a key based on the request host.
func DefaultHostKeyFunc(req *Request) string {
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return "host:unknown"
	}
	return "host:" + u.Host
}

// DefaultMethodKeyFunc generates a key based on the flattened method name.
func DefaultMethodKeyFunc(req *Request) string {
	if req.Descriptor == nil {
		return "method:unknown"
	}
	return "method:" + req.Descriptor.Name
}

// DefaultResourceKeyFunc generates a key based on the descriptor resource.
func DefaultResourceKeyFunc(req *Request) string {
	if req.Descriptor == nil {
		return "resource:unknown"
	}
	return "resource:" + req.Descriptor.Resource
}

// rateLimitMiddleware waits for a token before each dispatch. Waits longer
// than the call's deadline fail fast with ErrRateLimited.
func (c *Client) rateLimitMiddleware() Middleware {
	registry := c.limiters
	return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		key, err := registry.Wait(ctx, req)
		if err != nil {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit {
				c.logger.Warn("Rate limit exceeded", "requestID", req.ID, "key", key)
			}
			return nil, err
		}
		return next.Do(ctx, req)
	}
}
