package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var placeholderRE = regexp.MustCompile(`\\?\$\{([^{}]+)\}`)

// Interpolate replaces ${dotted.path} placeholders in every string value of
// the tree. References resolve against the original, un-substituted root in
// a single pass, so a referenced value that itself holds a placeholder is
// copied verbatim. \${ escapes a placeholder. Keys are never interpolated.
func Interpolate(root map[string]any) (map[string]any, error) {
	out, err := walk(root, root)
	if err != nil {
		return nil, err
	}
	return out.(map[string]any), nil
}

func walk(root map[string]any, node any) (any, error) {
	switch v := node.(type) {
	case string:
		return InterpolateString(root, v)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			r, err := walk(root, child)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			r, err := walk(root, child)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return node, nil
	}
}

// InterpolateString substitutes the placeholders of one string.
func InterpolateString(root map[string]any, s string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var firstErr error
	out := placeholderRE.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, `\`) {
			return match[1:]
		}
		if firstErr != nil {
			return match
		}
		ref := strings.TrimSpace(match[2 : len(match)-1])
		val, err := resolveScalar(root, ref)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func resolveScalar(root map[string]any, ref string) (string, error) {
	val, err := Resolve(root, ref)
	if err != nil {
		return "", err
	}
	switch v := val.(type) {
	case nil:
		return "", errorf(InterpolationError, "reference '%s' resolved to null", ref)
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", errorf(InterpolationError, "reference '%s' must be a scalar (string/number/bool), got %s", ref, typeName(val))
	}
}

// Resolve walks a dotted reference such as build.build_dir through nested
// mappings.
func Resolve(root map[string]any, ref string) (any, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, ".") || strings.HasSuffix(ref, ".") {
		return nil, errorf(InterpolationError, "invalid reference '%s'", ref)
	}
	var cur any = root
	parts := strings.Split(ref, ".")
	for i, key := range parts {
		prefix := strings.Join(parts[:i], ".")
		if prefix == "" {
			prefix = "<root>"
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, errorf(InterpolationError, "cannot resolve '%s': '%s' is not a mapping (got %s)", ref, prefix, typeName(cur))
		}
		next, ok := m[key]
		if !ok {
			return nil, errorf(InterpolationError, "cannot resolve '%s': missing key '%s' under '%s'", ref, key, prefix)
		}
		cur = next
	}
	return cur, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "mapping"
	case []any:
		return "list"
	default:
		return fmt.Sprintf("%T", v)
	}
}
