package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStringValue(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"null", `null`, ""},
		{"string", `"SELECT 1"`, "SELECT 1"},
		{"escaped string", `"SELECT \"id\" FROM t"`, `SELECT "id" FROM t`},
		{"integer", `42`, "42"},
		{"float", `0.75`, "0.75"},
		{"large integer", `12345678901234567890`, "1.2345678901234567e+19"},
		{"bool", `true`, "true"},
		{"lines", `["SELECT region", "FROM sales", "GROUP BY region"]`, "SELECT region\nFROM sales\nGROUP BY region"},
		{"lines skip blanks", `["SELECT 1", "", null]`, "SELECT 1"},
		{"array of objects", `[ {"a": 1} ]`, `[{"a":1}]`},
		{"object", `{"text": "SELECT 1"}`, `{"text":"SELECT 1"}`},
		{"padded", "  \"x\"\n", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StringValue(json.RawMessage(tt.raw)))
		})
	}
}

func TestFirstString(t *testing.T) {
	var obj map[string]json.RawMessage
	err := json.Unmarshal([]byte(`{"SQL": "SELECT 2", "query": "  ", "statement": ["SELECT 3"], "confidence": 0.9}`), &obj)
	assert.NoError(t, err)

	tests := []struct {
		name   string
		keys   []string
		want   string
		wantOK bool
	}{
		{"exact match", []string{"statement"}, "SELECT 3", true},
		{"blank value skipped", []string{"query", "statement"}, "SELECT 3", true},
		{"case-insensitive fallback", []string{"sql"}, "SELECT 2", true},
		{"exact beats folded", []string{"sql", "statement"}, "SELECT 3", true},
		{"number rendered", []string{"confidence"}, "0.9", true},
		{"missing", []string{"answer"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FirstString(obj, tt.keys...)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
