// Package sql parses and inspects generated SQL: statement splitting,
// statement classification, a read-only SELECT grammar and reference analysis.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyStatement indicates nothing but whitespace, comments or semicolons.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize trims the statement, strips trailing semicolons and
// rejects input carrying more than one statement. Semicolons inside string
// literals, quoted identifiers and comments do not count as separators.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)
	normalized := stripTrailingSemicolons(sqlQuery)

	if isBlank(normalized) {
		return ValidationResult{Error: ErrEmptyStatement}
	}

	if idx := semicolonOutsideLiterals(normalized); idx >= 0 {
		// "SELECT 1; -- trailing note" is still one statement.
		if !isBlank(normalized[idx+1:]) {
			return ValidationResult{Error: ErrMultipleStatements}
		}
		normalized = stripTrailingSemicolons(normalized[:idx])
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// FirstStatement returns the text up to the first top-level semicolon.
func FirstStatement(sqlQuery string) string {
	if idx := semicolonOutsideLiterals(sqlQuery); idx >= 0 {
		return strings.TrimSpace(sqlQuery[:idx])
	}
	return strings.TrimSpace(sqlQuery)
}

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateBracket
	stateLineComment
	stateBlockComment
)

// semicolonOutsideLiterals returns the byte offset of the first semicolon
// that is not inside a literal, quoted identifier or comment, or -1.
func semicolonOutsideLiterals(sqlQuery string) int {
	state := stateNormal
	for i := 0; i < len(sqlQuery); i++ {
		c := sqlQuery[i]
		next := byte(0)
		if i+1 < len(sqlQuery) {
			next = sqlQuery[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case c == ';':
				return i
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '`':
				state = stateBacktick
			case c == '[':
				state = stateBracket
			case c == '-' && next == '-':
				state = stateLineComment
				i++
			case c == '/' && next == '*':
				state = stateBlockComment
				i++
			}
		case stateSingleQuote:
			// A doubled quote ('') closes and immediately reopens the literal.
			if c == '\\' {
				i++
			} else if c == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if c == '`' {
				state = stateNormal
			}
		case stateBracket:
			if c == ']' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && next == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return -1
}

// stripTrailingSemicolons removes trailing semicolons and the whitespace around them.
func stripTrailingSemicolons(sqlQuery string) string {
	for {
		trimmed := strings.TrimRight(sqlQuery, " \t\n\r")
		if !strings.HasSuffix(trimmed, ";") {
			return trimmed
		}
		sqlQuery = strings.TrimSuffix(trimmed, ";")
	}
}

func isBlank(sqlQuery string) bool {
	toks, err := Tokenize(sqlQuery)
	if err != nil {
		return strings.TrimSpace(sqlQuery) == ""
	}
	return len(toks) == 0
}
