package sql

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select without semicolon",
			input:    "SELECT 1",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon and whitespace",
			input:    "  SELECT 1;  ",
			expected: "SELECT 1",
		},
		{
			name:     "repeated trailing semicolons",
			input:    "SELECT 1;;",
			expected: "SELECT 1",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM users WHERE name = 'test;test'",
			expected: "SELECT * FROM users WHERE name = 'test;test'",
		},
		{
			name:     "semicolon inside double quoted identifier",
			input:    `SELECT * FROM "table;name"`,
			expected: `SELECT * FROM "table;name"`,
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM users WHERE name = 'O''Brien;'",
			expected: "SELECT * FROM users WHERE name = 'O''Brien;'",
		},
		{
			name:     "semicolon inside line comment",
			input:    "SELECT 1 -- a; b\nFROM t",
			expected: "SELECT 1 -- a; b\nFROM t",
		},
		{
			name:     "semicolon inside block comment",
			input:    "SELECT /* x; y */ 1",
			expected: "SELECT /* x; y */ 1",
		},
		{
			name:     "trailing comment after semicolon",
			input:    "SELECT 1; -- total revenue",
			expected: "SELECT 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result.NormalizedSQL)
			}
		})
	}
}

func TestValidateAndNormalize_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{name: "two statements", input: "SELECT 1; SELECT 2", want: ErrMultipleStatements},
		{name: "stacked delete", input: "SELECT * FROM users; DELETE FROM users", want: ErrMultipleStatements},
		{name: "statement after string", input: "SELECT 'a;b'; DROP TABLE x", want: ErrMultipleStatements},
		{name: "empty", input: "   ", want: ErrEmptyStatement},
		{name: "only semicolons", input: ";;", want: ErrEmptyStatement},
		{name: "only a comment", input: "-- nothing here", want: ErrEmptyStatement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if !errors.Is(result.Error, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, result.Error)
			}
		})
	}
}

func TestFirstStatement(t *testing.T) {
	got := FirstStatement("SELECT 'x;y' FROM t; SELECT 2")
	if got != "SELECT 'x;y' FROM t" {
		t.Errorf("unexpected first statement %q", got)
	}
	if got := FirstStatement("  SELECT 1  "); got != "SELECT 1" {
		t.Errorf("unexpected first statement %q", got)
	}
}
