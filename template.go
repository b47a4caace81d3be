package relay

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ResolvePath expands the placeholders of template against params and
// prefixes the result with baseURL.
//
// A placeholder is a path segment starting with ':' followed by a key made of
// letters, digits and underscores, e.g. "/comments/:id" or "/files/:name.json".
// A trailing '?' ("/:id?") marks it optional: when its value is absent the
// segment is dropped together with its separator. Values are path-escaped.
//
// The returned Params holds every key that was not consumed by a placeholder.
// params itself is never modified.
func ResolvePath(baseURL, template string, params Params) (string, Params, error) {
	residual := params.clone()
	segments := strings.Split(template, "/")
	out := make([]string, 0, len(segments))

	for _, seg := range segments {
		key, suffix, optional, ok := parsePlaceholder(seg)
		if !ok {
			out = append(out, seg)
			continue
		}
		value, present := params[key]
		if !present || isAbsent(value) {
			if optional {
				continue
			}
			return "", nil, &MissingPathParameterError{Path: template, Key: key}
		}
		out = append(out, url.PathEscape(formatParam(value))+suffix)
		delete(residual, key)
	}

	path := strings.Join(out, "/")
	if path == "" && strings.HasPrefix(template, "/") {
		path = "/"
	}
	if strings.HasPrefix(path, "/") {
		baseURL = strings.TrimSuffix(baseURL, "/")
	}
	return baseURL + path, residual, nil
}

// parsePlaceholder splits ":key?" or ":key.ext" segments.
func parsePlaceholder(seg string) (key, suffix string, optional, ok bool) {
	if len(seg) < 2 || seg[0] != ':' {
		return "", "", false, false
	}
	end := 1
	for end < len(seg) && isKeyByte(seg[end]) {
		end++
	}
	if end == 1 {
		return "", "", false, false
	}
	key, suffix = seg[1:end], seg[end:]
	if suffix == "?" {
		return key, "", true, true
	}
	return key, suffix, false, true
}

func isKeyByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

// isAbsent treats nil and the empty string as a missing path value.
func isAbsent(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// formatParam renders a scalar param the way it should appear in a URL.
func formatParam(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val)
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
