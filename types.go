package relay

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// Params carries the data of one call. Keys matching path placeholders are
// consumed by the templater; the rest becomes query parameters or the body.
type Params map[string]any

// clone returns a shallow copy so callers never observe our edits.
func (p Params) clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Transform maps a successful response body to the next body.
type Transform func(body any) (any, error)

// Callback receives the outcome of an immediate callback-mode call.
type Callback func(err error, resp *Response)

// Schema is the declarative input of Compile: resource -> method -> descriptor.
// Resource and Method of each Descriptor are filled in from the map keys.
type Schema map[string]map[string]Descriptor

// CallMode tells whether the caller asked for a live handle or a value.
type CallMode int

const (
	ModeImmediate CallMode = iota
	ModeDeferred
)

func (m CallMode) String() string {
	switch m {
	case ModeImmediate:
		return "immediate"
	case ModeDeferred:
		return "deferred"
	default:
		return "unknown"
	}
}

// Transport sends a prepared Request. Implementations report non-2xx
// responses as a Response, not an error; errors mean the exchange failed.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps the transport for cross-cutting concerns (auth, rate
// limiting, circuit breaking, tracing).
type Middleware func(ctx context.Context, req *Request, next Transport) (*Response, error)

// Request is the per-invocation request record. It is mutable until the call
// is dispatched: deferred handles and BeforeDispatch observers may edit it.
type Request struct {
	ID         string
	Descriptor *Descriptor
	Method     string
	URL        string
	Params     Params
	Query      url.Values
	Body       any
	Header     http.Header
	Timeout    time.Duration
	Mode       CallMode
}

// FullURL returns URL with the encoded query appended.
func (r *Request) FullURL() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	return r.URL + "?" + r.Query.Encode()
}

// Response is what a Transport returns. Body is filled by the core from Raw
// (decoded JSON or plain text) unless the transport already set it, and is
// replaced by the transform pipeline output on success.
type Response struct {
	StatusCode int
	Header     http.Header
	Raw        []byte
	Body       any
	Duration   time.Duration
}

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}
