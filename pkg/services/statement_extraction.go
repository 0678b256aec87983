package services

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ekaya-inc/datagenie-engine/pkg/jsonutil"
	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
	"github.com/ekaya-inc/datagenie-engine/pkg/sql"
)

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```[A-Za-z]*[ \t]*\r?\n?(.*?)```")
	statementKeyword   = regexp.MustCompile(`(?i)\b(select|with|insert|update|delete|merge|create|drop|alter|truncate)\b`)
	proseStartPattern  = regexp.MustCompile(`(?i)\bselect\b|\bwith\s+(?:recursive\s+)?\w+\s+as\s*\(`)
	blankLinePattern   = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)
)

// JSON keys a model may use for the statement.
var statementKeys = []string{"sql", "query", "statement"}

// ExtractStatement pulls the query statement out of a model reply. It accepts
// a JSON object with a "sql" (or "query") field, a fenced code block, or prose
// containing a SELECT/WITH statement, in that order, after removing reasoning
// blocks. JSON and fenced replies are returned whole so that a second
// statement is still seen by validation; prose is cut at the first semicolon.
// It returns "" when the reply holds no statement.
func ExtractStatement(reply string) string {
	cleaned := llm.StripThinking(reply)
	if cleaned == "" {
		return ""
	}

	if obj, err := llm.ParseJSONResponse[map[string]json.RawMessage](cleaned); err == nil {
		if stmt, ok := jsonutil.FirstString(obj, statementKeys...); ok && statementKeyword.MatchString(stmt) {
			return tidy(stmt)
		}
	}

	for _, m := range fencedBlockPattern.FindAllStringSubmatch(cleaned, -1) {
		if block := strings.TrimSpace(m[1]); statementKeyword.MatchString(block) {
			return tidy(block)
		}
	}

	loc := proseStartPattern.FindStringIndex(cleaned)
	if loc == nil {
		// A bare write statement is returned so validation can reject it.
		if kw := statementKeyword.FindStringIndex(cleaned); kw != nil && kw[0] == 0 {
			loc = kw
		} else {
			return ""
		}
	}
	rest := cleaned[loc[0]:]
	if gap := blankLinePattern.FindStringIndex(rest); gap != nil {
		rest = rest[:gap[0]]
	}
	return tidy(sql.FirstStatement(rest))
}

// tidy trims whitespace and trailing semicolons.
func tidy(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	for strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	}
	return stmt
}
