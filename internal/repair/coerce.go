package repair

import (
	"math"
	"strconv"
	"strings"
)

// =============================================================================
// LOOSE COERCION
// =============================================================================
//
// Oracle output is decoded with encoding/json into interface{} values, so a
// field may arrive as string, float64, bool, []interface{},
// map[string]interface{} or nil. These helpers accept values that are
// semantically compatible with the expected kind and reject the rest.

// AsString converts v to a string. Numbers and booleans are stringified so that
// numeric identifiers survive. Returns ("", false) for nil, lists and objects.
func AsString(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// AsNumber converts v to a finite float64. Numeric strings are accepted after
// stripping currency symbols, thousands separators, a trailing '%' and a
// trailing ROI 'x' ("$1,200", "15%", "150x").
func AsNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		s = strings.TrimPrefix(s, "$")
		s = strings.TrimSuffix(s, "%")
		s = strings.TrimSuffix(strings.TrimSuffix(s, "x"), "X")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AsBool converts v to a bool. Accepts JSON booleans and the strings
// true/false/yes/no in any case.
func AsBool(v interface{}) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes":
			return true, true
		case "false", "no":
			return false, true
		}
	}
	return false, false
}

// AsStringList converts v to a list of non-blank strings, dropping elements
// that cannot be stringified. A lone non-blank string becomes a one-element
// list. Returns false when v is not list-like at all.
func AsStringList(v interface{}) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		out := make([]string, 0, len(x))
		for _, s := range x {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, true
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, el := range x {
			if s, ok := AsString(el); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out, true
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, false
		}
		return []string{x}, true
	default:
		return nil, false
	}
}

// asObject accepts a decoded JSON object or an already-built Payload.
func asObject(v interface{}) (map[string]interface{}, bool) {
	switch x := v.(type) {
	case map[string]interface{}:
		return x, true
	case Payload:
		return x, true
	default:
		return nil, false
	}
}

// asList accepts decoded JSON arrays and typed payload lists.
func asList(v interface{}) ([]interface{}, bool) {
	switch x := v.(type) {
	case []interface{}:
		return x, true
	case []Payload:
		out := make([]interface{}, len(x))
		for i, p := range x {
			out[i] = p
		}
		return out, true
	case []map[string]interface{}:
		out := make([]interface{}, len(x))
		for i, p := range x {
			out[i] = p
		}
		return out, true
	default:
		return nil, false
	}
}
