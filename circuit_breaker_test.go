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

func TestNewCircuitBreaker(t *testing.T) {
	config := CircuitBreakerConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}

	cb := NewCircuitBreaker(config)

	if cb == nil {
		t.Fatal("NewCircuitBreaker() returned nil")
	}
	if cb.config.FailureThreshold != 3 {
		t.Errorf("Expected FailureThreshold=3, got %d", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 30*time.Second {
		t.Errorf("Expected RecoveryTimeout=30s, got %v", cb.config.RecoveryTimeout)
	}
	if cb.State() != StateClosed {
		t.Errorf("Expected initial state=Closed, got %v", cb.State())
	}
}

func TestNewCircuitBreakerDefaults(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})

	if cb.config.FailureThreshold != 5 {
		t.Errorf("Expected default FailureThreshold=5, got %d", cb.config.FailureThreshold)
	}
	if cb.config.RecoveryTimeout != 60*time.Second {
		t.Errorf("Expected default RecoveryTimeout=60s, got %v", cb.config.RecoveryTimeout)
	}
	if cb.config.SuccessThreshold != 2 {
		t.Errorf("Expected default SuccessThreshold=2, got %d", cb.config.SuccessThreshold)
	}
}

func TestCircuitBreakerRecordFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after 2 failures, got %v", cb.State())
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=Open after 3 failures, got %v", cb.State())
	}
	if cb.Allow() {
		t.Error("Expected false when circuit breaker is open")
	}

	// failures are not counted while open
	cb.RecordFailure()
	if cb.failures != 3 {
		t.Errorf("Expected failures=3 (unchanged when open), got %d", cb.failures)
	}
}

func TestCircuitBreakerSuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()

	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed when failures are not consecutive, got %v", cb.State())
	}
}

func TestCircuitBreakerStateTransitions(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatalf("Expected state=Open after failures, got %v", cb.State())
	}

	time.Sleep(60 * time.Millisecond)
	if !cb.Allow() {
		t.Error("Expected true after recovery timeout")
	}
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=HalfOpen, got %v", cb.State())
	}

	cb.RecordSuccess()
	if cb.State() != StateHalfOpen {
		t.Errorf("Expected state=HalfOpen after 1 success, got %v", cb.State())
	}
	cb.RecordSuccess()
	if cb.State() != StateClosed {
		t.Errorf("Expected state=Closed after 2 successes, got %v", cb.State())
	}
	if cb.failures != 0 {
		t.Errorf("Expected failures=0 after closing, got %d", cb.failures)
	}
}

func TestCircuitBreakerHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  50 * time.Millisecond,
		SuccessThreshold: 2,
	})

	cb.RecordFailure()
	cb.RecordFailure()
	time.Sleep(60 * time.Millisecond)
	cb.Allow()

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("Expected state=Open after failure in half-open, got %v", cb.State())
	}
	if cb.successes != 0 {
		t.Errorf("Expected successes=0 after failure, got %d", cb.successes)
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  10 * time.Millisecond,
		SuccessThreshold: 2,
	})

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cb.Allow()
				if j%2 == 0 {
					cb.RecordSuccess()
				} else {
					cb.RecordFailure()
				}
			}
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	switch cb.State() {
	case StateClosed, StateOpen, StateHalfOpen:
	default:
		t.Errorf("Invalid circuit breaker state after concurrent access: %v", cb.State())
	}
}

func TestCircuitStateString(t *testing.T) {
	testCases := map[CircuitState]string{
		StateClosed:      "closed",
		StateOpen:        "open",
		StateHalfOpen:    "half-open",
		CircuitState(42): "unknown",
	}
	for state, expected := range testCases {
		if state.String() != expected {
			t.Errorf("Expected %s, got %s", expected, state.String())
		}
	}
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	collector := NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
	transport := newStubTransport(func(*Request) (*Response, error) {
		return &Response{StatusCode: http.StatusServiceUnavailable}, nil
	})
	client, m := newTestClient(t, transport, listDescriptor,
		WithCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour}),
		WithMetricsCollector(collector),
	)

	for i := 0; i < 2; i++ {
		if _, err := m.Do(context.Background(), nil); err == nil {
			t.Fatal("Expected 503 to fail the call")
		}
	}
	if client.circuitBreaker.State() != StateOpen {
		t.Fatalf("Expected breaker to open, got %v", client.circuitBreaker.State())
	}
	if got := testutil.ToFloat64(collector.circuitBreakerState.WithLabelValues("default")); got != 1 {
		t.Errorf("Expected breaker gauge 1, got %v", got)
	}

	_, err := m.Do(context.Background(), nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Expected ErrCircuitOpen, got %v", err)
	}
	var transportErr *TransportError
	if !errors.As(err, &transportErr) || transportErr.Type != ErrorTypeCircuitOpen {
		t.Errorf("Expected %s TransportError, got %v", ErrorTypeCircuitOpen, err)
	}
	if transport.count() != 2 {
		t.Errorf("Expected open breaker to short-circuit the transport, got %d calls", transport.count())
	}
}
