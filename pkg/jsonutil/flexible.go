// Package jsonutil reads loosely shaped JSON produced by language models.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// StringValue renders raw as text. Models routinely emit numbers or booleans
// where a string was asked for, or split a long statement into an array of
// lines; arrays of scalars are joined with newlines. Null and empty input
// yield "", and any other shape is returned as compact JSON.
func StringValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
	case '[':
		var parts []json.RawMessage
		if json.Unmarshal(raw, &parts) == nil {
			lines := make([]string, 0, len(parts))
			for _, p := range parts {
				p = bytes.TrimSpace(p)
				if len(p) > 0 && (p[0] == '{' || p[0] == '[') {
					return compact(raw)
				}
				if line := StringValue(p); line != "" {
					lines = append(lines, line)
				}
			}
			return strings.Join(lines, "\n")
		}
	case 't', 'f':
		var b bool
		if json.Unmarshal(raw, &b) == nil {
			return strconv.FormatBool(b)
		}
	default:
		var n json.Number
		if json.Unmarshal(raw, &n) == nil {
			if i, err := n.Int64(); err == nil {
				return strconv.FormatInt(i, 10)
			}
			if f, err := n.Float64(); err == nil {
				return strconv.FormatFloat(f, 'g', -1, 64)
			}
			return n.String()
		}
	}
	return compact(raw)
}

func compact(raw json.RawMessage) string {
	var buf bytes.Buffer
	if json.Compact(&buf, raw) != nil {
		return string(raw)
	}
	return buf.String()
}

// FirstString returns the trimmed StringValue of the first key in keys that
// holds a non-empty value. Exact key matches win over case-insensitive ones.
func FirstString(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		if v := strings.TrimSpace(StringValue(obj[k])); v != "" {
			return v, true
		}
	}
	for _, k := range keys {
		for name, raw := range obj {
			if !strings.EqualFold(name, k) {
				continue
			}
			if v := strings.TrimSpace(StringValue(raw)); v != "" {
				return v, true
			}
		}
	}
	return "", false
}
