package relay

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// WithTransport replaces the default resty transport.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		c.transport = transport
	}
}

// WithHTTPClient sends requests through a resty client built on hc.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.restyClient = resty.NewWithClient(hc)
	}
}

// WithRestyClient sends requests through a preconfigured resty client.
func WithRestyClient(rc *resty.Client) Option {
	return func(c *Client) {
		c.restyClient = rc
	}
}

// WithTimeout sets the default per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHeader sets a header sent with every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Set(key, value)
	}
}

// WithUserAgent overrides the default User-Agent header.
func WithUserAgent(ua string) Option {
	return WithHeader("User-Agent", ua)
}

// WithCircuitBreaker sets the circuit breaker configuration
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.circuitBreaker = NewCircuitBreaker(config)
	}
}

// WithRateLimit applies one token bucket to every request of the client.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiters = NewLimiterRegistry(nil, rate.NewLimiter(rate.Limit(rps), burst))
	}
}

// WithLimiterRegistry applies keyed rate limits.
func WithLimiterRegistry(registry *LimiterRegistry) Option {
	return func(c *Client) {
		c.limiters = registry
	}
}

// WithDeduplication lets concurrent identical GET, HEAD and OPTIONS calls
// share one round trip.
func WithDeduplication() Option {
	return func(c *Client) {
		c.dedup = NewDeduplicationTracker()
		if c.dedupKeyFunc == nil {
			c.dedupKeyFunc = DefaultDeduplicationKeyFunc
		}
		if c.dedupCondition == nil {
			c.dedupCondition = DefaultDeduplicationCondition
		}
	}
}

// WithDeduplicationKeyFunc sets a custom key function for deduplication
func WithDeduplicationKeyFunc(fn DeduplicationKeyFunc) Option {
	return func(c *Client) {
		c.dedupKeyFunc = fn
	}
}

// WithDeduplicationCondition sets a custom condition for deduplication
func WithDeduplicationCondition(fn DeduplicationCondition) Option {
	return func(c *Client) {
		c.dedupCondition = fn
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithObserver subscribes obs to every event at construction.
func WithObserver(obs Observer) Option {
	return func(c *Client) {
		c.observers = append(c.observers, obs)
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger for debug output
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithZapLogger logs through a zap logger.
func WithZapLogger(logger *zap.Logger) Option {
	return WithLogger(FromZap(logger))
}

// WithSimpleLogger enables debug logging with a development console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateTimeout()...)
	problems = append(problems, c.validateCircuitBreakerConfig()...)
	problems = append(problems, c.validateRateLimiterConfig()...)
	problems = append(problems, c.validateDebugConfig()...)
	problems = append(problems, c.validateDeduplicationConfig()...)
	problems = append(problems, c.validateMiddlewareConfig()...)

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}

	return nil
}

func (c *Client) validateTimeout() []string {
	var problems []string

	if c.timeout < 0 {
		problems = append(problems, "timeout must be non-negative")
	}
	if c.timeout > 10*time.Minute {
		problems = append(problems, "timeout > 10m may cause requests to hang for too long")
	}

	return problems
}

func (c *Client) validateCircuitBreakerConfig() []string {
	var problems []string

	if c.circuitBreaker != nil {
		if c.circuitBreaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.circuitBreaker.config.RecoveryTimeout <= 0 {
			problems = append(problems, "circuitBreaker RecoveryTimeout must be positive")
		}
		if c.circuitBreaker.config.SuccessThreshold <= 0 {
			problems = append(problems, "circuitBreaker SuccessThreshold must be positive")
		}
	}

	return problems
}

func (c *Client) validateRateLimiterConfig() []string {
	var problems []string

	if c.limiters != nil && c.limiters.fallback != nil {
		if c.limiters.fallback.Limit() <= 0 {
			problems = append(problems, "rate limit must be positive")
		}
		if c.limiters.fallback.Burst() <= 0 {
			problems = append(problems, "rate limit burst must be positive")
		}
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		problems = append(problems, "logger must be set when debug is enabled")
	}
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen == nil {
		problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
	}

	return problems
}

func (c *Client) validateDeduplicationConfig() []string {
	var problems []string

	if c.dedup != nil {
		if c.dedupKeyFunc == nil {
			problems = append(problems, "deduplication key function cannot be nil")
		}
		if c.dedupCondition == nil {
			problems = append(problems, "deduplication condition cannot be nil")
		}
	}

	return problems
}

func (c *Client) validateMiddlewareConfig() []string {
	var problems []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			problems = append(problems, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}

	return problems
}
