package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{path.to.value}}. Go template actions such as
// {{ .name }} do not match and are left for Render.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_\-]*(?:\.[A-Za-z0-9_\-]+)*)\s*\}\}`)

// Interpolate resolves placeholders in every string leaf of value. Maps and slices
// are copied, other leaves are returned unchanged. A string that consists of a
// single placeholder takes the referenced value with its original type. Paths that
// cannot be resolved become the empty string.
//
// Substitution is a single pass and resolved values are inserted literally. A
// second call is a no-op unless a resolved value itself contains placeholder text,
// which the second call would then expand.
func Interpolate(value any, scope map[string]any) any {
	switch v := value.(type) {
	case string:
		return interpolateLeaf(v, scope)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = Interpolate(item, scope)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Interpolate(item, scope)
		}

		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = interpolateLeaf(item, scope)
		}

		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = interpolateLeaf(item, scope)
		}

		return out
	default:
		return value
	}
}

// InterpolateMap is Interpolate for configuration maps.
func InterpolateMap(config map[string]any, scope map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	out, _ := Interpolate(config, scope).(map[string]any)

	return out
}

// InterpolateString resolves placeholders in s and always returns a string.
func InterpolateString(s string, scope map[string]any) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]

		resolved, ok := Lookup(scope, path)
		if !ok {
			return ""
		}

		return Stringify(resolved)
	})
}

// HasPlaceholders reports whether s contains at least one placeholder.
func HasPlaceholders(s string) bool {
	return placeholderPattern.MatchString(s)
}

func interpolateLeaf(s string, scope map[string]any) any {
	if loc := placeholderPattern.FindStringSubmatchIndex(s); loc != nil && loc[0] == 0 && loc[1] == len(s) {
		resolved, ok := Lookup(scope, s[loc[2]:loc[3]])
		if !ok || resolved == nil {
			return ""
		}

		return resolved
	}

	return InterpolateString(s, scope)
}

// Lookup walks a dot-separated path through nested maps and slices. Numeric
// segments index into slices.
func Lookup(scope map[string]any, path string) (any, bool) {
	var current any = scope

	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case map[string]string:
			next, ok := node[segment]
			if !ok {
				return nil, false
			}

			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}

			current = node[index]
		default:
			return nil, false
		}
	}

	return current, true
}

// Stringify renders a resolved value for embedding inside a larger string.
func Stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case map[string]any, []any:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(data)
	default:
		return fmt.Sprint(v)
	}
}
