package relay

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
)

// RestyTransport is the default Transport, backed by a resty client.
type RestyTransport struct {
	client *resty.Client
}

// NewRestyTransport wraps client, or a fresh resty client when nil. Retries
// are left to the resty client's own configuration.
func NewRestyTransport(client *resty.Client, logger Logger) *RestyTransport {
	if client == nil {
		client = resty.New()
	}
	client.SetJSONMarshaler(sonic.Marshal).SetJSONUnmarshaler(sonic.Unmarshal)
	if logger != nil {
		client.SetLogger(restyLogger{logger})
	}
	return &RestyTransport{client: client}
}

// Client exposes the underlying resty client for advanced configuration.
func (t *RestyTransport) Client() *resty.Client { return t.client }

// Do sends req. Bodies are encoded as JSON unless already raw bytes or text.
func (t *RestyTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	r := t.client.R().SetContext(ctx)
	for key, values := range req.Header {
		for _, v := range values {
			r.Header.Add(key, v)
		}
	}
	if len(req.Query) > 0 {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		payload, contentType, err := encodeBody(req.Body)
		if err != nil {
			return nil, err
		}
		if r.Header.Get("Content-Type") == "" {
			r.Header.Set("Content-Type", contentType)
		}
		r.SetBody(payload)
	}

	res, err := r.Execute(req.Method, req.URL)
	if err != nil {
		return nil, err
	}

	return &Response{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Raw:        res.Body(),
		Duration:   res.Time(),
	}, nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case []byte:
		return b, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	default:
		payload, err := sonic.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("relay: encode request body: %w", err)
		}
		return payload, "application/json", nil
	}
}

// restyLogger forwards resty's printf-style logs to a Logger.
type restyLogger struct {
	logger Logger
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// HeaderMiddleware sets static headers on every request unless already set.
func HeaderMiddleware(headers http.Header) Middleware {
	return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		for key, values := range headers {
			if req.Header.Get(key) != "" {
				continue
			}
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
		return next.Do(ctx, req)
	}
}

// BearerTokenMiddleware authenticates every request with token().
func BearerTokenMiddleware(token func(ctx context.Context) (string, error)) Middleware {
	return func(ctx context.Context, req *Request, next Transport) (*Response, error) {
		tok, err := token(ctx)
		if err != nil {
			return nil, fmt.Errorf("relay: bearer token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
		return next.Do(ctx, req)
	}
}
