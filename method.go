package relay

import (
	"context"
	"net/http"
	"strings"
)

// Method is a compiled, callable API method. It is safe for concurrent use;
// every call builds its own Request.
type Method struct {
	client   *Client
	desc     Descriptor
	pipeline Pipeline
}

// Descriptor returns a copy of the normalized descriptor.
func (m *Method) Descriptor() Descriptor {
	d := m.desc
	d.Transforms = append([]Transform(nil), m.desc.Transforms...)
	return d
}

// Name returns the flattened method name.
func (m *Method) Name() string { return m.desc.Name }

// Call dispatches immediately and returns a live handle on the result.
func (m *Method) Call(ctx context.Context, params Params) (*Call, error) {
	h, err := m.prepare(params, ModeImmediate)
	if err != nil {
		return nil, err
	}
	return h.Send(ctx)
}

// CallWithCallback dispatches immediately and invokes cb once with the
// outcome. On success resp.Body holds the transformed body.
func (m *Method) CallWithCallback(ctx context.Context, params Params, cb Callback) (*Call, error) {
	h, err := m.prepare(params, ModeImmediate)
	if err != nil {
		return nil, err
	}
	return h.SendWithCallback(ctx, cb)
}

// Deferred builds the request without sending it. The caller may adjust it
// through the handle and must finalize with Send or SendWithCallback.
func (m *Method) Deferred(params Params) (*Handle, error) {
	return m.prepare(params, ModeDeferred)
}

// Do dispatches and waits for the transformed body.
func (m *Method) Do(ctx context.Context, params Params) (any, error) {
	call, err := m.Call(ctx, params)
	if err != nil {
		return nil, err
	}
	return call.Wait()
}

// prepare resolves the URL and places the leftover params. Nothing is
// dispatched and no event fires when it fails.
func (m *Method) prepare(params Params, mode CallMode) (*Handle, error) {
	c := m.client
	target, residual, err := ResolvePath(c.config.APIURL, m.desc.Path, params)
	if err != nil {
		if c.debug != nil && c.debug.Enabled {
			c.logger.Debug("Path resolution failed", "method", m.desc.Name, "error", err.Error())
		}
		return nil, err
	}

	desc := m.desc
	req := &Request{
		ID:         c.requestID(),
		Descriptor: &desc,
		Method:     m.desc.HTTPMethod,
		URL:        target,
		Params:     params.clone(),
		Header:     c.header.Clone(),
		Timeout:    c.timeout,
		Mode:       mode,
	}
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if sendsBody(req.Method) {
		if len(residual) > 0 {
			req.Body = map[string]any(residual)
		}
	} else {
		req.Query = encodeQuery(residual)
	}

	return &Handle{method: m, req: req}, nil
}

func lower(s string) string { return strings.ToLower(s) }
