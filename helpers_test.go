package relay

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

const (
	testAPIURL      = "http://test.com"
	waitTimeout     = 2 * time.Second
	unexpectedErr   = "Unexpected error: %v"
	expectedURLMsg  = "Expected URL '%s', got '%s'"
	expectedBodyMsg = "Expected body %v, got %v"
	inFlightMsg     = "Expected InFlight()=%d, got %d"
)

// jsonResponse builds a 200 response with a JSON body.
func jsonResponse(raw string) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Raw:        []byte(raw),
	}
}

// stubTransport answers every request with fn and records what it saw.
type stubTransport struct {
	mu       sync.Mutex
	requests []*Request
	fn       func(req *Request) (*Response, error)
}

func newStubTransport(fn func(req *Request) (*Response, error)) *stubTransport {
	return &stubTransport{fn: fn}
}

func (s *stubTransport) Do(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.fn(req)
}

func (s *stubTransport) last() *Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	return s.requests[len(s.requests)-1]
}

func (s *stubTransport) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type transportResult struct {
	resp *Response
	err  error
}

// pendingRequest is a request held by manualTransport until the test
// resolves it.
type pendingRequest struct {
	req    *Request
	result chan transportResult
}

func (p *pendingRequest) respond(resp *Response, err error) {
	p.result <- transportResult{resp: resp, err: err}
}

// manualTransport blocks every request until the test answers it, which
// makes in-flight counts observable.
type manualTransport struct {
	started chan *pendingRequest
}

func newManualTransport() *manualTransport {
	return &manualTransport{started: make(chan *pendingRequest, 16)}
}

func (m *manualTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	p := &pendingRequest{req: req, result: make(chan transportResult, 1)}
	m.started <- p
	select {
	case r := <-p.result:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *manualTransport) next(t *testing.T) *pendingRequest {
	t.Helper()
	select {
	case p := <-m.started:
		return p
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for the transport to receive a request")
		return nil
	}
}

// eventRecorder collects events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *eventRecorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *eventRecorder) find(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == kind {
			return e, true
		}
	}
	return Event{}, false
}

// waitCall waits for c with a test deadline.
func waitCall(t *testing.T, c *Call) (any, error) {
	t.Helper()
	select {
	case <-c.Done():
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for call to settle")
	}
	return c.Wait()
}

// waitFinished waits until the call's worker goroutine has exited.
func waitFinished(t *testing.T, c *Call) {
	t.Helper()
	select {
	case <-c.finished:
	case <-time.After(waitTimeout):
		t.Fatal("Timed out waiting for call goroutine to exit")
	}
}

// newTestClient builds a client with one method on transport.
func newTestClient(t *testing.T, transport Transport, d Descriptor, opts ...Option) (*Client, *Method) {
	t.Helper()
	opts = append([]Option{WithTransport(transport)}, opts...)
	client := New(Config{APIURL: testAPIURL}, opts...)
	if err := client.ValidationError(); err != nil {
		t.Fatalf("Unexpected validation error: %v", err)
	}
	m, err := client.AddMethod(d)
	if err != nil {
		t.Fatalf(unexpectedErr, err)
	}
	return client, m
}
