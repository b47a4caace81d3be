package relay

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const deduplicationTestURL = "http://example.com/comments"

func TestDeduplicationTracker(t *testing.T) {
	tracker := NewDeduplicationTracker()

	key := "test-key"
	_, isOwner := tracker.GetOrCreateEntry(key)
	if !isOwner {
		t.Error("First call should be the owner")
	}

	entry2, isOwner2 := tracker.GetOrCreateEntry(key)
	if isOwner2 {
		t.Error("Second call should not be the owner")
	}

	testResp := &Response{StatusCode: http.StatusOK, Header: http.Header{"X-A": {"1"}}}
	tracker.Complete(key, testResp, nil)

	resp2, err2 := entry2.Wait(context.Background())
	if err2 != nil {
		t.Fatalf(unexpectedErr, err2)
	}
	if resp2 == testResp {
		t.Error("Waiter should receive a copy of the response")
	}
	if resp2.StatusCode != http.StatusOK || resp2.Header.Get("X-A") != "1" {
		t.Errorf("Unexpected shared response: %+v", resp2)
	}
	if tracker.Len() != 0 {
		t.Errorf("Expected completed entry to be removed, got %d entries", tracker.Len())
	}

	_, isOwner3 := tracker.GetOrCreateEntry(key)
	if !isOwner3 {
		t.Error("Completed requests must not be replayed")
	}
}

func TestDeduplicationEntryWaitContext(t *testing.T) {
	tracker := NewDeduplicationTracker()
	tracker.GetOrCreateEntry("k")
	entry, _ := tracker.GetOrCreateEntry("k")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := entry.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestDefaultDeduplicationKeyFunc(t *testing.T) {
	get := &Request{Method: http.MethodGet, URL: deduplicationTestURL}
	getPage := &Request{Method: http.MethodGet, URL: deduplicationTestURL, Query: map[string][]string{"page": {"2"}}}
	postA := &Request{Method: http.MethodPost, URL: deduplicationTestURL, Body: Params{"text": "a"}}
	postB := &Request{Method: http.MethodPost, URL: deduplicationTestURL, Body: Params{"text": "b"}}

	if DefaultDeduplicationKeyFunc(get) != DefaultDeduplicationKeyFunc(&Request{Method: http.MethodGet, URL: deduplicationTestURL}) {
		t.Error("Identical requests should share a key")
	}
	if DefaultDeduplicationKeyFunc(get) == DefaultDeduplicationKeyFunc(getPage) {
		t.Error("Query should be part of the key")
	}
	if DefaultDeduplicationKeyFunc(postA) == DefaultDeduplicationKeyFunc(postB) {
		t.Error("Body should be part of the key for mutating verbs")
	}
}

func TestDefaultDeduplicationCondition(t *testing.T) {
	testCases := map[string]bool{
		http.MethodGet:     true,
		http.MethodHead:    true,
		http.MethodOptions: true,
		http.MethodPost:    false,
		http.MethodDelete:  false,
	}
	for method, expected := range testCases {
		if got := DefaultDeduplicationCondition(&Request{Method: method}); got != expected {
			t.Errorf("DefaultDeduplicationCondition(%s) = %v, expected %v", method, got, expected)
		}
	}
}

// waitForWaiters blocks until key has n callers attached.
func waitForWaiters(t *testing.T, tracker *DeduplicationTracker, n int) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		tracker.mu.Lock()
		waiters := 0
		for _, entry := range tracker.entries {
			entry.mu.Lock()
			waiters = entry.waiters
			entry.mu.Unlock()
		}
		tracker.mu.Unlock()
		if waiters >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %d deduplicated callers", n)
}

func TestDeduplicationMiddleware(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	transport := newManualTransport()
	client, m := newTestClient(t, transport, listDescriptor,
		WithDeduplication(),
		WithMetricsCollector(collector),
	)
	rec := &eventRecorder{}
	client.Subscribe(rec)

	first, err := m.Call(context.Background(), Params{"page": 1})
	if err != nil {
		t.Fatalf(unexpectedErr, err)
	}
	pending := transport.next(t)

	second, err := m.Call(context.Background(), Params{"page": 1})
	if err != nil {
		t.Fatalf(unexpectedErr, err)
	}
	waitForWaiters(t, client.dedup, 2)
	if client.InFlight() != 2 {
		t.Errorf(inFlightMsg, 2, client.InFlight())
	}

	pending.respond(jsonResponse(`[{"id":1}]`), nil)

	for _, call := range []*Call{first, second} {
		body, err := waitCall(t, call)
		if err != nil {
			t.Fatalf(unexpectedErr, err)
		}
		if items, ok := body.([]any); !ok || len(items) != 1 {
			t.Errorf(expectedBodyMsg, `[{"id":1}]`, body)
		}
	}

	select {
	case extra := <-transport.started:
		t.Errorf("Expected one round trip, got another for %s", extra.req.FullURL())
	default:
	}
	if got := rec.count(EventSucceeded); got != 2 {
		t.Errorf("Expected each call to settle, got %d succeeded events", got)
	}
	if got := testutil.ToFloat64(collector.deduplicationHits.WithLabelValues("comments_list")); got != 1 {
		t.Errorf("Expected 1 deduplication hit, got %v", got)
	}
}

func TestDeduplicationSkipsMutatingMethods(t *testing.T) {
	transport := newStubTransport(func(*Request) (*Response, error) { return jsonResponse(`{}`), nil })
	_, m := newTestClient(t, transport, Descriptor{Resource: "comments", Method: "add", Path: "/comments", HTTPMethod: "POST"},
		WithDeduplication(),
	)

	for i := 0; i < 2; i++ {
		if _, err := m.Do(context.Background(), Params{"text": "hi"}); err != nil {
			t.Fatalf(unexpectedErr, err)
		}
	}
	if transport.count() != 2 {
		t.Errorf("Expected POST calls to bypass deduplication, got %d round trips", transport.count())
	}
}

func TestDeduplicationValidation(t *testing.T) {
	client := New(Config{}, WithDeduplication(), WithDeduplicationKeyFunc(nil))
	if client.IsValid() {
		t.Error("Expected nil key function to be rejected")
	}
}
