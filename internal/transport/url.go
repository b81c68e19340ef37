package transport

import (
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Param is a single query parameter. Nil and empty-string values are dropped.
type Param struct {
	Key   string
	Value interface{}
}

// Params is an ordered list of query parameters
type Params []Param

// Add appends a parameter and returns the extended list
func (p Params) Add(key string, value interface{}) Params {
	return append(p, Param{Key: key, Value: value})
}

// IsAbsolute reports whether path already names a full URL.
func IsAbsolute(path string) bool {
	return strings.HasPrefix(path, "http")
}

// JoinURL joins a relative path to base, trimming exactly one slash on each side
// of the junction. Absolute paths are returned unchanged.
func JoinURL(base, path string) string {
	if IsAbsolute(path) {
		return path
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(path, "/")
}

// BuildURL joins path to base and appends the encoded query string.
func BuildURL(base, path string, params Params) string {
	target := JoinURL(base, path)
	query := EncodeQuery(params)
	if query == "" {
		return target
	}
	return target + "?" + query
}

// EncodeQuery form-encodes params in order.
func EncodeQuery(params Params) string {
	var sb strings.Builder
	for _, p := range params {
		value, ok := stringify(p.Value)
		if !ok {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(value))
	}
	return sb.String()
}

func stringify(v interface{}) (string, bool) {
	// Pointers count as unset when nil and as their target otherwise.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return "", false
		}
		if _, ok := v.(fmt.Stringer); !ok {
			return stringify(rv.Elem().Interface())
		}
	}

	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, val != ""
	case *string:
		if val == nil || *val == "" {
			return "", false
		}
		return *val, true
	case bool:
		return strconv.FormatBool(val), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case fmt.Stringer:
		s := val.String()
		return s, s != ""
	default:
		s := fmt.Sprint(val)
		return s, s != ""
	}
}
