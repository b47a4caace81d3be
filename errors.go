package relay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure scenarios
var (
	// ErrMissingRequiredField is matched by MissingRequiredFieldError
	ErrMissingRequiredField = errors.New("relay: missing required field")

	// ErrMissingPathParameter is matched by MissingPathParameterError
	ErrMissingPathParameter = errors.New("relay: missing path parameter")

	// ErrDuplicateMethodName is matched by DuplicateMethodNameError
	ErrDuplicateMethodName = errors.New("relay: duplicate method name")

	// ErrTransport is matched by every TransportError
	ErrTransport = errors.New("relay: transport failure")

	// ErrTransform is matched by every TransformError
	ErrTransform = errors.New("relay: transform failure")

	// ErrCancelled is the result of a call cancelled through Call.Cancel
	ErrCancelled = errors.New("relay: call cancelled")

	// ErrAlreadyDispatched is returned when a deferred handle is sent twice
	ErrAlreadyDispatched = errors.New("relay: request already dispatched")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	ErrCircuitOpen = errors.New("relay: circuit open")

	// ErrRateLimited is returned when a request is denied due to rate limiting
	ErrRateLimited = errors.New("relay: rate limited")
)

// Transport error categories.
const (
	ErrorTypeNetwork     = "NetworkError"
	ErrorTypeTimeout     = "TimeoutError"
	ErrorTypeServer      = "ServerError"
	ErrorTypeClient      = "ClientError"
	ErrorTypeDecode      = "DecodeError"
	ErrorTypeRateLimit   = "RateLimitError"
	ErrorTypeCircuitOpen = "CircuitBreakerError"
	ErrorTypeValidation  = "ValidationError"
)

// MissingRequiredFieldError reports a descriptor without resource, method or path.
type MissingRequiredFieldError struct {
	Field    string
	Resource string
	Method   string
}

func (e *MissingRequiredFieldError) Error() string {
	if e.Resource != "" || e.Method != "" {
		return fmt.Sprintf("relay: descriptor %s.%s: missing required field %q", e.Resource, e.Method, e.Field)
	}
	return fmt.Sprintf("relay: descriptor: missing required field %q", e.Field)
}

func (e *MissingRequiredFieldError) Is(target error) bool { return target == ErrMissingRequiredField }

// MissingPathParameterError reports a required placeholder with no value.
type MissingPathParameterError struct {
	Path string
	Key  string
}

func (e *MissingPathParameterError) Error() string {
	return fmt.Sprintf("relay: path %q: missing value for parameter %q", e.Path, e.Key)
}

func (e *MissingPathParameterError) Is(target error) bool { return target == ErrMissingPathParameter }

// DuplicateMethodNameError reports a second registration under a taken name.
type DuplicateMethodNameError struct {
	Name     string
	Resource string
	Method   string
}

func (e *DuplicateMethodNameError) Error() string {
	return fmt.Sprintf("relay: method name %q (%s.%s) is already registered", e.Name, e.Resource, e.Method)
}

func (e *DuplicateMethodNameError) Is(target error) bool { return target == ErrDuplicateMethodName }

// TransformError reports the pipeline stage that failed.
type TransformError struct {
	Stage int
	Cause error
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("relay: transform stage %d: %v", e.Stage, e.Cause)
}

func (e *TransformError) Unwrap() error { return e.Cause }

func (e *TransformError) Is(target error) bool { return target == ErrTransform }

// TransportError carries the context of a failed exchange: network errors,
// timeouts, non-2xx statuses and undecodable bodies.
type TransportError struct {
	Type       string
	Message    string
	Cause      error
	RequestID  string
	Method     string
	URL        string
	Endpoint   string
	StatusCode int
	Body       []byte
	Timestamp  time.Time
	Duration   time.Duration
}

// Error implements error interface.
func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Type, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches ErrTransport and any TransportError of the same Type.
func (e *TransportError) Is(target error) bool {
	if e == nil {
		return false
	}
	if target == ErrTransport {
		return true
	}
	if targetErr, ok := target.(*TransportError); ok {
		return e.Type == targetErr.Type
	}
	return false
}

// DebugInfo renders a multi-line string with diagnostic context.
func (e *TransportError) DebugInfo() string {
	if e == nil {
		return "Error: <nil>"
	}
	info := fmt.Sprintf("Error Type: %s\n", e.Type)
	info += fmt.Sprintf("Message: %s\n", e.Message)
	if e.RequestID != "" {
		info += fmt.Sprintf("Request ID: %s\n", e.RequestID)
	}
	if e.Method != "" {
		info += fmt.Sprintf("Method: %s\n", e.Method)
	}
	if e.URL != "" {
		info += fmt.Sprintf("URL: %s\n", e.URL)
	}
	if e.Endpoint != "" {
		info += fmt.Sprintf("Endpoint: %s\n", e.Endpoint)
	}
	if e.StatusCode > 0 {
		info += fmt.Sprintf("Status Code: %d\n", e.StatusCode)
	}
	if !e.Timestamp.IsZero() {
		info += fmt.Sprintf("Timestamp: %s\n", e.Timestamp.Format(time.RFC3339))
	}
	if e.Duration > 0 {
		info += fmt.Sprintf("Duration: %v\n", e.Duration)
	}
	if e.Cause != nil {
		info += fmt.Sprintf("Cause: %v\n", e.Cause)
	}
	return info
}

// ConfigError collects the problems found by ValidateConfiguration.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: invalid client configuration: %v", ErrorTypeValidation, e.Problems)
}

// classifyTransportError maps an error out of the transport chain to a type.
func classifyTransportError(err error) string {
	switch {
	case errors.Is(err, ErrCircuitOpen):
		return ErrorTypeCircuitOpen
	case errors.Is(err, ErrRateLimited):
		return ErrorTypeRateLimit
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTypeTimeout
	default:
		return ErrorTypeNetwork
	}
}

// statusErrorType maps a non-2xx status to a type.
func statusErrorType(status int) string {
	switch {
	case status == 429:
		return ErrorTypeRateLimit
	case status >= 500:
		return ErrorTypeServer
	default:
		return ErrorTypeClient
	}
}

// IsTransient determines if an error represents a transient failure that might succeed on retry.
// Returns true for network errors, timeouts, 5xx server responses, and rate limiting (429).
// Returns false for 4xx client errors, transform failures and configuration errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrRateLimited) {
		return true
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		switch transportErr.Type {
		case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeServer, ErrorTypeRateLimit, ErrorTypeCircuitOpen:
			return true
		case ErrorTypeClient:
			return transportErr.StatusCode == 429
		default:
			return false
		}
	}

	return false
}
