package relay

import (
	"fmt"
	"net/url"
	"reflect"
	"sort"

	"github.com/gorilla/schema"
)

var paramEncoder = schema.NewEncoder()

func init() {
	paramEncoder.SetAliasTag("param")
}

// StructParams converts a tagged struct into Params. Field names come from
// the `param` tag; `param:",omitempty"` skips zero values.
//
//	type listComments struct {
//		PostID int    `param:"postId"`
//		Sort   string `param:"sort,omitempty"`
//	}
func StructParams(v any) (Params, error) {
	values := map[string][]string{}
	if err := paramEncoder.Encode(v, values); err != nil {
		return nil, fmt.Errorf("relay: encode params: %w", err)
	}
	params := make(Params, len(values))
	for k, vs := range values {
		if len(vs) == 1 {
			params[k] = vs[0]
			continue
		}
		params[k] = vs
	}
	return params, nil
}

// encodeQuery turns residual params into query values, skipping empties.
func encodeQuery(params Params) url.Values {
	if len(params) == 0 {
		return nil
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	q := url.Values{}
	for _, k := range keys {
		v := params[k]
		if isEmptyParam(v) {
			continue
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			for i := 0; i < rv.Len(); i++ {
				q.Add(k, formatParam(rv.Index(i).Interface()))
			}
			continue
		}
		q.Set(k, formatParam(v))
	}
	if len(q) == 0 {
		return nil
	}
	return q
}

// isEmptyParam reports whether a query value should be dropped: nil, empty
// strings, false, nil pointers, empty collections. Numbers are always kept.
func isEmptyParam(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case bool:
		return !val
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
