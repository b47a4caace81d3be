package relay

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Descriptor declares one API method.
type Descriptor struct {
	// Resource groups methods, e.g. "comments".
	Resource string `validate:"required"`
	// Method is the method key inside the resource, e.g. "list".
	Method string `validate:"required"`
	// Name is the flattened alias. Defaults to resource_method.
	Name string
	// Path is the URL template, e.g. "/comments/:id".
	Path string `validate:"required"`
	// HTTPMethod defaults to GET.
	HTTPMethod string
	// Transforms run in order on every successful body.
	Transforms []Transform
}

// normalize validates d and returns the registered form: lower-cased
// resource, method and name, upper-cased HTTP method, copied transforms.
func (d Descriptor) normalize() (Descriptor, error) {
	if err := validate.Struct(d); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return Descriptor{}, &MissingRequiredFieldError{
				Field:    ve[0].Field(),
				Resource: d.Resource,
				Method:   d.Method,
			}
		}
		return Descriptor{}, err
	}

	out := d
	out.Resource = strings.ToLower(d.Resource)
	out.Method = strings.ToLower(d.Method)
	if out.Name == "" {
		out.Name = out.Resource + "_" + out.Method
	}
	out.Name = strings.ToLower(out.Name)
	out.HTTPMethod = strings.ToUpper(d.HTTPMethod)
	if out.HTTPMethod == "" {
		out.HTTPMethod = http.MethodGet
	}
	out.Transforms = slices.Clone(d.Transforms)
	return out, nil
}

// sendsBody reports whether leftover params travel as a JSON body.
func sendsBody(httpMethod string) bool {
	switch httpMethod {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	default:
		return false
	}
}
