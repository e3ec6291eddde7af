package webhook

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Filter condition operators.
const (
	OpEquals     = "equals"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpRegex      = "regex"
)

// MatchesFilter decides whether a payload passes a subscriber's filter
// configuration. Disabled filters always match. Conditions are ANDed and
// short-circuit on the first failure. A misconfigured condition (unknown
// operator, invalid regex) fails closed so one bad subscriber cannot break
// fan-out to others.
func MatchesFilter(cfg FilterConfig, payload map[string]any) bool {
	if !cfg.Enabled {
		return true
	}
	for _, c := range cfg.Conditions {
		if !matchCondition(c, payload) {
			return false
		}
	}
	return true
}

func matchCondition(c Condition, payload map[string]any) bool {
	val, ok := resolvePath(payload, c.Field)
	if !ok {
		// Absent fields fail every operator.
		return false
	}

	switch c.Operator {
	case OpEquals:
		return jsonEqual(val, c.Value)
	case OpContains:
		return strings.Contains(stringify(val), stringify(c.Value))
	case OpStartsWith:
		return strings.HasPrefix(stringify(val), stringify(c.Value))
	case OpEndsWith:
		return strings.HasSuffix(stringify(val), stringify(c.Value))
	case OpRegex:
		re, err := regexp.Compile(stringify(c.Value))
		if err != nil {
			// Configuration error: fail closed, never panic the fan-out.
			return false
		}
		return re.MatchString(stringify(val))
	default:
		return false
	}
}

// resolvePath walks a dot-path through nested JSON objects. Resolving through
// null or a non-object yields an absent value.
func resolvePath(payload map[string]any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	var cur any = payload
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// jsonEqual compares two decoded JSON values strictly. Numbers decode as
// float64 on both sides, so DeepEqual gives value equality; an int-typed
// condition value (from Go-constructed configs) is normalized first.
func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// stringify coerces a JSON value to its string form for the string operators.
func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
