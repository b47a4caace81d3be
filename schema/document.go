// Package schema loads relay schemas from YAML, TOML or JSON documents.
//
// A document names the API root and, per resource, the methods to generate:
//
//	apiUrl: https://api.example.com
//	resources:
//	  comments:
//	    list: {path: /comments}
//	    get:
//	      path: /comments/:id
//	      parse: field:data
//	    add: {path: /comments, method: POST}
//
// "parse" is a transform name or a list of them, resolved through a Registry.
package schema

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/ambiyansyah-risyal/relay"
)

// Format is a document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

var (
	ErrUnknownFormat    = errors.New("schema: unknown document format")
	ErrInvalidDocument  = errors.New("schema: invalid document")
	ErrUnknownTransform = errors.New("schema: unknown transform")
)

var validate = validator.New()

// MethodDoc is one method entry of a document.
type MethodDoc struct {
	Path   string   `json:"path" validate:"required"`
	Method string   `json:"method" validate:"omitempty,oneof=GET HEAD POST PUT PATCH DELETE OPTIONS"`
	Name   string   `json:"name"`
	Parse  []string `json:"parse" validate:"dive,required"`
}

// Document is a decoded schema file.
type Document struct {
	APIURL    string                          `json:"apiUrl"`
	Resources map[string]map[string]MethodDoc `json:"resources" validate:"required,min=1"`
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
	}
}

// Load reads and parses the document at path.
func Load(path string) (*Document, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return Parse(data, format)
}

// Parse decodes data and validates the result.
func Parse(data []byte, format Format) (*Document, error) {
	var raw map[string]any
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &raw)
	case FormatTOML:
		err = toml.Unmarshal(data, &raw)
	case FormatJSON:
		err = sonic.Unmarshal(data, &raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("schema: decode %s: %w", format, err)
	}

	normalizeParse(raw)

	// Formats differ in their generic types; one JSON pass settles them.
	canonical, err := sonic.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: normalize: %w", err)
	}
	var doc Document
	if err := sonic.Unmarshal(canonical, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// normalizeParse rewrites a scalar "parse" entry into a one-element list.
func normalizeParse(raw map[string]any) {
	resources, _ := raw["resources"].(map[string]any)
	for _, r := range resources {
		methods, _ := r.(map[string]any)
		for _, m := range methods {
			entry, ok := m.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := entry["parse"].(string); ok {
				entry["parse"] = []any{s}
			}
		}
	}
}

// Validate checks the document and every method entry.
func (d *Document) Validate() error {
	var problems []string

	if err := validate.Struct(d); err != nil {
		problems = append(problems, describe("", err)...)
	}
	for _, resource := range sortedKeys(d.Resources) {
		for _, method := range sortedKeys(d.Resources[resource]) {
			md := d.Resources[resource][method]
			md.Method = strings.ToUpper(md.Method)
			if err := validate.Struct(md); err != nil {
				problems = append(problems, describe(resource+"."+method+".", err)...)
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(problems, "; "))
	}
	return nil
}

func describe(prefix string, err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{prefix + err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fmt.Sprintf("%s%s %s", prefix, strings.ToLower(fe.Field()), formatValidationError(fe)))
	}
	return out
}

func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must have at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Config returns the client config declared by the document.
func (d *Document) Config() relay.Config {
	return relay.Config{APIURL: d.APIURL}
}

// Schema resolves transform names through reg and returns the compiled
// descriptors. A nil reg uses the built-in transforms only.
func (d *Document) Schema(reg *Registry) (relay.Schema, error) {
	if reg == nil {
		reg = NewRegistry()
	}
	out := make(relay.Schema, len(d.Resources))
	for resource, methods := range d.Resources {
		out[resource] = make(map[string]relay.Descriptor, len(methods))
		for method, md := range methods {
			transforms, err := reg.Resolve(md.Parse...)
			if err != nil {
				return nil, fmt.Errorf("schema: %s.%s: %w", resource, method, err)
			}
			out[resource][method] = relay.Descriptor{
				Name:       md.Name,
				Path:       md.Path,
				HTTPMethod: md.Method,
				Transforms: transforms,
			}
		}
	}
	return out, nil
}

// Build compiles the document into a client. cfg.APIURL, when set,
// overrides the document's apiUrl.
func (d *Document) Build(reg *Registry, cfg relay.Config, opts ...relay.Option) (*relay.Client, error) {
	s, err := d.Schema(reg)
	if err != nil {
		return nil, err
	}
	if cfg.APIURL == "" {
		cfg.APIURL = d.APIURL
	}
	return relay.Compile(s, cfg, opts...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
