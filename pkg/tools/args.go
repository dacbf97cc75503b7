package tools

import (
	"fmt"
	"math"
)

// Argument helpers for the loosely typed map a tools/call carries.
// JSON numbers arrive as float64 and must be whole to count as integers.

func stringArg(args map[string]any, name string, required bool) (string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		if required {
			return "", invalidParams("%s is required", name)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidParams("%s must be a string, got %T", name, v)
	}
	if required && s == "" {
		return "", invalidParams("%s is required", name)
	}
	return s, nil
}

func intArg(args map[string]any, name string, def int) (int, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return def, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	default:
		return 0, invalidParams("%s must be a number, got %T", name, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, invalidParams("%s must be an integer, got %v", name, v)
	}
	if f > math.MaxInt32 || f < math.MinInt32 {
		return 0, invalidParams("%s is out of range: %v", name, v)
	}
	return int(f), nil
}

func threadNumberArg(args map[string]any) (int, error) {
	n, err := intArg(args, "threadNumber", 0)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, invalidParams("threadNumber must be 0 or greater, got %d", n)
	}
	return n, nil
}

func stringSliceArg(args map[string]any, name string) ([]string, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch items := v.(type) {
	case []string:
		return items, nil
	case []any:
		out := make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, invalidParams("%s[%d] must be a string, got %T", name, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, invalidParams("%s must be an array of strings, got %T", name, v)
}

func enumArg(args map[string]any, name, def string, allowed ...string) (string, error) {
	s, err := stringArg(args, name, false)
	if err != nil {
		return "", err
	}
	if s == "" {
		return def, nil
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", invalidParams("%s must be one of %v, got %q", name, allowed, s)
}

// preview shortens text to 100 characters for result payloads
func preview(text string) string {
	r := []rune(text)
	if len(r) <= 100 {
		return text
	}
	return fmt.Sprintf("%s...", string(r[:100]))
}
