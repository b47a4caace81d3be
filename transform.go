package relay

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Pipeline is an ordered list of transforms applied to a response body.
type Pipeline []Transform

// NewPipeline builds a pipeline, skipping nil transforms.
func NewPipeline(transforms ...Transform) Pipeline {
	p := make(Pipeline, 0, len(transforms))
	for _, t := range transforms {
		if t != nil {
			p = append(p, t)
		}
	}
	return p
}

// Apply threads body through every stage. An empty pipeline returns body
// unchanged. The first failing or panicking stage stops the run with a
// *TransformError naming it.
func (p Pipeline) Apply(body any) (any, error) {
	out := body
	for i, t := range p {
		next, err := runStage(i, t, out)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}

func runStage(stage int, t Transform, in any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &TransformError{Stage: stage, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = t(in)
	if err != nil {
		var nested *TransformError
		if errors.As(err, &nested) {
			return nil, nested
		}
		return nil, &TransformError{Stage: stage, Cause: err}
	}
	return out, nil
}

// Chain folds several transforms into one. A failure inside the chain is
// reported with the stage of the inner transform.
func Chain(transforms ...Transform) Transform {
	p := NewPipeline(transforms...)
	return func(body any) (any, error) {
		return p.Apply(body)
	}
}

// Map adapts an infallible function.
func Map(fn func(any) any) Transform {
	return func(body any) (any, error) {
		return fn(body), nil
	}
}

// Field descends into nested JSON objects, e.g. Field("data", "items").
func Field(path ...string) Transform {
	return func(body any) (any, error) {
		cur := body
		for _, key := range path {
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("field %q: body is %T, not an object", key, cur)
			}
			next, ok := obj[key]
			if !ok {
				return nil, fmt.Errorf("field %q: not found", key)
			}
			cur = next
		}
		return cur, nil
	}
}

// DecodeInto converts the body into T, re-encoding through JSON when the
// body is not already a T.
func DecodeInto[T any]() Transform {
	return func(body any) (any, error) {
		return convert[T](body)
	}
}

func convert[T any](body any) (T, error) {
	var out T
	if v, ok := body.(T); ok {
		return v, nil
	}
	raw, err := sonic.Marshal(body)
	if err != nil {
		return out, fmt.Errorf("encode %T: %w", body, err)
	}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode into %T: %w", out, err)
	}
	return out, nil
}
