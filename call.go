package relay

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// Handle is a prepared, not yet dispatched request.
type Handle struct {
	method *Method
	req    *Request
	sent   atomic.Bool
}

// Request exposes the request for inspection and edits before sending.
func (h *Handle) Request() *Request { return h.req }

// SetHeader sets a request header.
func (h *Handle) SetHeader(key, value string) *Handle {
	h.req.Header.Set(key, value)
	return h
}

// SetQuery adds a query parameter regardless of the HTTP method.
func (h *Handle) SetQuery(key string, value any) *Handle {
	if h.req.Query == nil {
		h.req.Query = make(map[string][]string)
	}
	h.req.Query.Set(key, formatParam(value))
	return h
}

// SetBody replaces the request body.
func (h *Handle) SetBody(body any) *Handle {
	h.req.Body = body
	return h
}

// SetTimeout overrides the client timeout for this request. Zero disables it.
func (h *Handle) SetTimeout(d time.Duration) *Handle {
	h.req.Timeout = d
	return h
}

// Send dispatches the request. A handle can be sent once; later sends
// return ErrAlreadyDispatched.
func (h *Handle) Send(ctx context.Context) (*Call, error) {
	return h.SendWithCallback(ctx, nil)
}

// SendWithCallback dispatches the request and invokes cb once with the outcome.
func (h *Handle) SendWithCallback(ctx context.Context, cb Callback) (*Call, error) {
	if !h.sent.CompareAndSwap(false, true) {
		return nil, ErrAlreadyDispatched
	}
	return h.method.client.dispatch(ctx, h.method, h.req, cb), nil
}

const (
	callPending int32 = iota
	callSettled
)

// Call is a dispatched request whose result arrives asynchronously. Exactly
// one of succeeded, failed or cancelled is reported for it.
type Call struct {
	client   *Client
	method   *Method
	req      *Request
	callback Callback
	started  time.Time

	state    atomic.Int32
	cancel   context.CancelFunc
	done     chan struct{}
	finished chan struct{}

	body any
	resp *Response
	err  error
}

// Request returns the request as it was dispatched.
func (c *Call) Request() *Request { return c.req }

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call settles and returns the transformed body.
func (c *Call) Wait() (any, error) {
	<-c.done
	return c.body, c.err
}

// WaitContext is Wait bounded by ctx. Giving up on waiting does not cancel the call.
func (c *Call) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-c.done:
		return c.body, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Response returns the response once settled, nil before or on failure
// without one.
func (c *Call) Response() *Response {
	select {
	case <-c.done:
		return c.resp
	default:
		return nil
	}
}

// Err returns the terminal error once settled.
func (c *Call) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Cancel aborts the call if it has not settled yet and reports whether it
// did. A cancelled call reports ErrCancelled and never succeeds or fails.
func (c *Call) Cancel() bool {
	if !c.state.CompareAndSwap(callPending, callSettled) {
		return false
	}
	c.err = ErrCancelled
	c.cancel()
	c.settle(EventCancelled)
	return true
}

// WaitAs waits for c and converts the body into T.
func WaitAs[T any](c *Call) (T, error) {
	body, err := c.Wait()
	if err != nil {
		var zero T
		return zero, err
	}
	return convert[T](body)
}

// dispatch emits before-dispatch, registers the call as in flight and hands
// it to the transport chain on its own goroutine.
func (c *Client) dispatch(ctx context.Context, m *Method, req *Request, cb Callback) *Call {
	if ctx == nil {
		ctx = context.Background()
	}

	c.tracker.emit(Event{Kind: EventBeforeDispatch, Descriptor: req.Descriptor, Request: req})

	var callCtx context.Context
	var cancel context.CancelFunc
	if req.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}

	call := &Call{
		client:   c,
		method:   m,
		req:      req,
		callback: cb,
		started:  time.Now(),
		cancel:   cancel,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests {
		c.logger.Debug("Dispatching request", "requestID", req.ID, "method", req.Method, "url", req.FullURL(), "name", m.desc.Name, "mode", req.Mode.String())
	}

	c.tracker.begin(Event{Descriptor: req.Descriptor, Request: req})
	go call.run(callCtx)
	return call
}

func (c *Call) run(ctx context.Context) {
	defer close(c.finished)

	resp, err := c.client.chain.Do(ctx, c.req)
	body, err := c.complete(resp, err)

	if !c.state.CompareAndSwap(callPending, callSettled) {
		return
	}
	c.cancel()
	c.resp, c.body, c.err = resp, body, err
	if err != nil {
		c.settle(EventFailed)
		return
	}
	c.settle(EventSucceeded)
}

// complete turns a transport outcome into the final body or error.
func (c *Call) complete(resp *Response, err error) (any, error) {
	elapsed := time.Since(c.started)
	if err != nil {
		return nil, c.transportError(classifyTransportError(err), "request failed", err, resp, elapsed)
	}
	if resp == nil {
		return nil, c.transportError(ErrorTypeNetwork, "transport returned no response", nil, nil, elapsed)
	}
	if resp.Duration == 0 {
		resp.Duration = elapsed
	}
	if !resp.OK() {
		return nil, c.transportError(statusErrorType(resp.StatusCode), "unexpected status", nil, resp, elapsed)
	}
	if resp.Body == nil {
		body, decodeErr := decodeBody(resp)
		if decodeErr != nil {
			return nil, c.transportError(ErrorTypeDecode, "decode response body", decodeErr, resp, elapsed)
		}
		resp.Body = body
	}

	// Transforms only see responses of calls that can still succeed.
	if c.state.Load() != callPending {
		return nil, ErrCancelled
	}
	body, err := c.method.pipeline.Apply(resp.Body)
	if err != nil {
		return nil, err
	}
	resp.Body = body
	return body, nil
}

// settle reports the terminal event, runs the callback and releases waiters.
func (c *Call) settle(kind EventKind) {
	c.client.tracker.finish(Event{
		Kind:       kind,
		Descriptor: c.req.Descriptor,
		Request:    c.req,
		Response:   c.resp,
		Err:        c.err,
		Duration:   time.Since(c.started),
	})
	if c.callback != nil {
		c.callback(c.err, c.resp)
	}
	close(c.done)
}

func (c *Call) transportError(errorType, message string, cause error, resp *Response, duration time.Duration) *TransportError {
	var transportErr *TransportError
	if errors.As(cause, &transportErr) {
		return transportErr
	}
	e := &TransportError{
		Type:      errorType,
		Message:   message,
		Cause:     cause,
		RequestID: c.req.ID,
		Method:    c.req.Method,
		URL:       c.req.FullURL(),
		Endpoint:  c.method.desc.Name,
		Timestamp: time.Now(),
		Duration:  duration,
	}
	if resp != nil {
		e.StatusCode = resp.StatusCode
		e.Body = resp.Raw
	}
	return e
}

// decodeBody parses JSON bodies and returns other bodies as text.
func decodeBody(resp *Response) (any, error) {
	if len(resp.Raw) == 0 {
		return nil, nil
	}
	contentType := resp.Header.Get("Content-Type")
	trimmed := bytes.TrimSpace(resp.Raw)
	isJSON := strings.Contains(contentType, "json") ||
		(contentType == "" && len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['))
	if !isJSON {
		return string(resp.Raw), nil
	}
	var body any
	if err := sonic.Unmarshal(resp.Raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}
