package relay

import (
	"context"
	"fmt"
	"hash/fnv"
	"net/http"
	"sync"

	"github.com/bytedance/sonic"
)

// DeduplicationEntry represents an in-flight request shared between callers.
type DeduplicationEntry struct {
	response *Response
	err      error
	done     chan struct{}
	mu       sync.Mutex
	waiters  int
}

// DeduplicationTracker tracks in-flight requests to coalesce duplicates.
// An entry lives only while its request is on the wire; completed
// responses are never replayed.
type DeduplicationTracker struct {
	mu      sync.Mutex
	entries map[string]*DeduplicationEntry
}

// NewDeduplicationTracker returns an in-memory de-duplication tracker.
func NewDeduplicationTracker() *DeduplicationTracker {
	return &DeduplicationTracker{
		entries: make(map[string]*DeduplicationEntry),
	}
}

// GetOrCreateEntry returns an existing entry (not owner) or creates a new one (owner=true).
func (dt *DeduplicationTracker) GetOrCreateEntry(key string) (*DeduplicationEntry, bool) {
	dt.mu.Lock()
	defer dt.mu.Unlock()

	if entry, exists := dt.entries[key]; exists {
		entry.mu.Lock()
		entry.waiters++
		entry.mu.Unlock()
		return entry, false
	}

	entry := &DeduplicationEntry{
		done:    make(chan struct{}),
		waiters: 1,
	}
	dt.entries[key] = entry
	return entry, true
}

// Complete finalizes an entry and releases waiters.
func (dt *DeduplicationTracker) Complete(key string, resp *Response, err error) {
	dt.mu.Lock()
	entry, exists := dt.entries[key]
	delete(dt.entries, key)
	dt.mu.Unlock()

	if !exists {
		return
	}

	entry.mu.Lock()
	entry.response = resp
	entry.err = err
	close(entry.done)
	entry.mu.Unlock()
}

// Len returns the number of requests currently shared.
func (dt *DeduplicationTracker) Len() int {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return len(dt.entries)
}

// Wait blocks until the owning request completes or context cancels. Each
// waiter gets its own copy of the response.
func (entry *DeduplicationEntry) Wait(ctx context.Context) (*Response, error) {
	select {
	case <-entry.done:
		entry.mu.Lock()
		resp := entry.response
		err := entry.err
		entry.mu.Unlock()
		return copyResponse(resp), err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func copyResponse(resp *Response) *Response {
	if resp == nil {
		return nil
	}
	out := *resp
	out.Header = resp.Header.Clone()
	return &out
}

// DeduplicationKeyFunc builds a key for identifying identical in-flight requests.
type DeduplicationKeyFunc func(*Request) string

// DefaultDeduplicationKeyFunc builds a key from method + full URL (+ body for mutating verbs).
func DefaultDeduplicationKeyFunc(req *Request) string {
	h := fnv.New64a()
	h.Write([]byte(req.Method))
	h.Write([]byte(req.FullURL()))

	if req.Body != nil && sendsBody(req.Method) {
		if payload, err := sonic.Marshal(req.Body); err == nil {
			h.Write(payload)
		}
	}

	return fmt.Sprintf("%x", h.Sum64())
}

// DeduplicationCondition decides whether a request is eligible for deduplication.
type DeduplicationCondition func(req *Request) bool

// DefaultDeduplicationCondition enables deduplication for safe idempotent methods.
func DefaultDeduplicationCondition(req *Request) bool {
	return req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions
}

// deduplicationMiddleware lets concurrent identical requests share one
// transport round trip. Every call still settles on its own.
func (c *Client) deduplicationMiddleware() Middleware {
	tracker, keyFunc, condition := c.dedup, c.dedupKeyFunc, c.dedupCondition
	return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		if !condition(req) {
			return next.Do(ctx, req)
		}

		key := keyFunc(req)
		entry, owner := tracker.GetOrCreateEntry(key)
		if !owner {
			c.metrics.RecordDeduplicationHit(endpointName(req))
			if c.debug != nil && c.debug.Enabled && c.debug.LogRequests {
				c.logger.Debug("Request deduplicated", "requestID", req.ID, "key", key)
			}
			return entry.Wait(ctx)
		}

		resp, err := next.Do(ctx, req)
		tracker.Complete(key, resp, err)
		return copyResponse(resp), err
	}
}
