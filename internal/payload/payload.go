// Package payload extracts typed values from the loosely typed maps
// workers receive. Grid files and API submissions both decode numbers as
// float64, so the accessors accept every integer shape that can reach a
// payload.
package payload

import (
	"fmt"
	"math"
	"time"
)

// String returns the named field as a string. The field must be present
// and non-empty.
func String(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("payload field %q is required", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("payload field %q must be a string, got %T", key, v)
	}
	if s == "" {
		return "", fmt.Errorf("payload field %q must not be empty", key)
	}
	return s, nil
}

// StringOr returns the named field as a string, or fallback when the
// field is absent.
func StringOr(m map[string]any, key, fallback string) (string, error) {
	if _, ok := m[key]; !ok {
		return fallback, nil
	}
	return String(m, key)
}

// Int returns the named field as an int, accepting the float64 shape
// numbers arrive in. Fractional values are rejected.
func Int(m map[string]any, key string) (int, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("payload field %q is required", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("payload field %q must be a whole number, got %v", key, n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("payload field %q must be a number, got %T", key, v)
	}
}

// IntOr returns the named field as an int, or fallback when absent.
func IntOr(m map[string]any, key string, fallback int) (int, error) {
	if _, ok := m[key]; !ok {
		return fallback, nil
	}
	return Int(m, key)
}

// Duration returns the named field parsed as a Go duration string, such
// as "250ms" or "1m30s".
func Duration(m map[string]any, key string) (time.Duration, error) {
	s, err := String(m, key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("payload field %q: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("payload field %q must not be negative, got %s", key, d)
	}
	return d, nil
}

// DurationOr returns the named duration field, or fallback when absent.
func DurationOr(m map[string]any, key string, fallback time.Duration) (time.Duration, error) {
	if _, ok := m[key]; !ok {
		return fallback, nil
	}
	return Duration(m, key)
}

// StringMap returns the named field as a map of strings, accepting both
// map[string]string and the map[string]any shape decoders produce.
func StringMap(m map[string]any, key string) (map[string]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch raw := v.(type) {
	case map[string]string:
		return raw, nil
	case map[string]any:
		out := make(map[string]string, len(raw))
		for k, elem := range raw {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("payload field %q: entry %q must be a string, got %T", key, k, elem)
			}
			out[k] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload field %q must be a map of strings, got %T", key, v)
	}
}

// Strings returns the named field as a slice of strings, accepting both
// []string and the []any shape decoders produce.
func Strings(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch raw := v.(type) {
	case []string:
		return raw, nil
	case []any:
		out := make([]string, 0, len(raw))
		for i, elem := range raw {
			s, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("payload field %q: element %d must be a string, got %T", key, i, elem)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("payload field %q must be a list of strings, got %T", key, v)
	}
}

// Map returns the named field as a nested map, or nil when absent.
func Map(m map[string]any, key string) (map[string]any, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	nested, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("payload field %q must be an object, got %T", key, v)
	}
	return nested, nil
}
