package relay

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// Config is the per-client settings record. APIURL is a plain prefix of
// every resolved path and may be relative when a custom transport is used;
// Extensions holds arbitrary user fields readable via Extension.
type Config struct {
	APIURL     string
	Extensions map[string]any
}

// Extension returns a user-defined config field.
func (c Config) Extension(key string) (any, bool) {
	v, ok := c.Extensions[key]
	return v, ok
}

func (c Config) clone() Config {
	out := Config{APIURL: c.APIURL}
	if c.Extensions != nil {
		out.Extensions = make(map[string]any, len(c.Extensions))
		for k, v := range c.Extensions {
			out.Extensions[k] = v
		}
	}
	return out
}

// Client is a compiled API client: a registry of methods keyed by
// resource/method and by flattened name, sharing one lifecycle tracker and
// one transport chain. It is safe for concurrent use.
type Client struct {
	config Config

	mu        sync.RWMutex
	resources map[string]map[string]*Method
	names     map[string]*Method

	tracker         *tracker
	transport       Transport
	restyClient     *resty.Client
	chain           Transport
	middleware      []Middleware
	timeout         time.Duration
	header          http.Header
	circuitBreaker  *CircuitBreaker
	limiters        *LimiterRegistry
	dedup           *DeduplicationTracker
	dedupKeyFunc    DeduplicationKeyFunc
	dedupCondition  DeduplicationCondition
	metrics         *MetricsCollector
	debug           *DebugConfig
	logger          Logger
	observers       []Observer
	validationError error
}

// DebugConfig controls what the client logs through its Logger.
type DebugConfig struct {
	Enabled      bool
	LogRequests  bool
	LogEvents    bool
	LogCircuit   bool
	LogRateLimit bool
	RequestIDGen func() string
}

// DefaultDebugConfig returns a disabled config with every category on.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogEvents:    true,
		LogCircuit:   true,
		LogRateLimit: true,
		RequestIDGen: uuid.NewString,
	}
}

// Option configures a Client.
type Option func(*Client)

// New constructs an empty Client using the provided functional options.
// Methods are added with AddMethod or, more commonly, built by Compile.
// A best effort validation is performed; call IsValid / ValidationError for errors.
func New(cfg Config, options ...Option) *Client {
	client := &Client{
		config:     cfg.clone(),
		resources:  make(map[string]map[string]*Method),
		names:      make(map[string]*Method),
		tracker:    newTracker(),
		middleware: []Middleware{},
		timeout:    30 * time.Second,
		header:     http.Header{},
		debug:      DefaultDebugConfig(),
		logger:     NopLogger(),
	}
	client.header.Set("User-Agent", "relay/"+Version)

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	if client.logger == nil {
		client.logger = NopLogger()
	}
	if client.transport == nil {
		if cfg.APIURL != "" && validate.Var(cfg.APIURL, "url") != nil {
			client.logger.Warn("apiUrl is not an absolute URL; the default transport may reject requests", "apiUrl", cfg.APIURL)
		}
		client.transport = NewRestyTransport(client.restyClient, client.logger)
	}
	client.chain = client.buildChain()

	if client.metrics != nil {
		client.tracker.subscribe(client.metrics)
	}
	if client.debug != nil && client.debug.Enabled && client.debug.LogEvents {
		client.tracker.subscribe(NewLoggingObserver(client.logger))
	}
	for _, obs := range client.observers {
		if obs != nil {
			client.tracker.subscribe(obs)
		}
	}

	return client
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	return c.config.clone()
}

// AddMethod validates and normalizes d and registers it under its
// resource/method key and its flattened name.
func (c *Client) AddMethod(d Descriptor) (*Method, error) {
	desc, err := d.normalize()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, taken := c.names[desc.Name]; taken {
		return nil, &DuplicateMethodNameError{Name: desc.Name, Resource: desc.Resource, Method: desc.Method}
	}
	if _, taken := c.resources[desc.Resource][desc.Method]; taken {
		return nil, &DuplicateMethodNameError{Name: desc.Name, Resource: desc.Resource, Method: desc.Method}
	}

	m := &Method{
		client:   c,
		desc:     desc,
		pipeline: NewPipeline(desc.Transforms...),
	}
	if c.resources[desc.Resource] == nil {
		c.resources[desc.Resource] = make(map[string]*Method)
	}
	c.resources[desc.Resource][desc.Method] = m
	c.names[desc.Name] = m

	if c.debug != nil && c.debug.Enabled {
		c.logger.Debug("Method registered", "name", desc.Name, "httpMethod", desc.HTTPMethod, "path", desc.Path)
	}
	return m, nil
}

// Method returns the method registered under resource and method.
// Lookups are case-insensitive like registration.
func (c *Client) Method(resource, method string) (*Method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.resources[lower(resource)][lower(method)]
	return m, ok
}

// Lookup returns the method registered under the flattened name.
func (c *Client) Lookup(name string) (*Method, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.names[lower(name)]
	return m, ok
}

// Resource returns a copy of the methods of one resource.
func (c *Client) Resource(name string) map[string]*Method {
	c.mu.RLock()
	defer c.mu.RUnlock()
	src := c.resources[lower(name)]
	if src == nil {
		return nil
	}
	out := make(map[string]*Method, len(src))
	for k, m := range src {
		out[k] = m
	}
	return out
}

// Resources lists resource names in sorted order.
func (c *Client) Resources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.resources))
	for name := range c.resources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Methods lists flattened method names in sorted order.
func (c *Client) Methods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.names))
	for name := range c.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Subscribe registers obs for the given event kinds, or for all kinds when
// none are listed. The returned function removes the subscription.
func (c *Client) Subscribe(obs Observer, kinds ...EventKind) (unsubscribe func()) {
	return c.tracker.subscribe(obs, kinds...)
}

// InFlight reports the number of dispatched calls that have not settled.
func (c *Client) InFlight() int {
	return c.tracker.count()
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// buildChain wraps the transport with the configured middleware. The first
// middleware is the outermost.
func (c *Client) buildChain() Transport {
	middleware := make([]Middleware, 0, len(c.middleware)+3)
	if c.dedup != nil {
		middleware = append(middleware, c.deduplicationMiddleware())
	}
	if c.limiters != nil {
		middleware = append(middleware, c.rateLimitMiddleware())
	}
	if c.circuitBreaker != nil {
		middleware = append(middleware, c.circuitBreakerMiddleware())
	}
	middleware = append(middleware, c.middleware...)

	current := c.transport
	for i := len(middleware) - 1; i >= 0; i-- {
		mw := middleware[i]
		if mw == nil {
			continue
		}
		next := current
		current = TransportFunc(func(ctx context.Context, req *Request) (*Response, error) {
			return mw(ctx, req, next)
		})
	}
	return current
}

func endpointName(req *Request) string {
	if req.Descriptor == nil {
		return "unknown"
	}
	return req.Descriptor.Name
}

func (c *Client) requestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return uuid.NewString()
}
