package catalogsource

import (
	"fmt"
	"strings"
)

// Settings is the loosely typed config map handed to a Factory. Values may
// come from YAML (int, bool) or JSON (float64), so the accessors accept both.
type Settings map[string]any

// String returns the string at key and whether it is present and non-empty.
func (s Settings) String(key string) (string, bool) {
	v, ok := s[key].(string)
	return v, ok && v != ""
}

// Require returns the non-empty string at key or a "<key> is required" error.
func (s Settings) Require(key string) (string, error) {
	if v, ok := s.String(key); ok {
		return v, nil
	}
	return "", fmt.Errorf("%s is required", key)
}

// Int returns the integer at key, or def when it is absent.
func (s Settings) Int(key string, def int) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Bool returns the boolean at key, or def when it is absent. The strings
// "true" and "strict" count as true.
func (s Settings) Bool(key string, def bool) bool {
	switch v := s[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(v) {
		case "true", "strict":
			return true
		case "false":
			return false
		}
	}
	return def
}

// Strings returns the string list at key. A single string is a one-element list.
func (s Settings) Strings(key string) ([]string, error) {
	switch v := s[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must be a list of strings", key)
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%s must be a list of strings", key)
}
