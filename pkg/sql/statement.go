package sql

import (
	"regexp"
	"strings"
)

// StatementType represents the type of SQL statement.
type StatementType string

const (
	StatementSelect      StatementType = "SELECT"
	StatementInsert      StatementType = "INSERT"
	StatementUpdate      StatementType = "UPDATE"
	StatementDelete      StatementType = "DELETE"
	StatementMerge       StatementType = "MERGE"
	StatementCall        StatementType = "CALL"
	StatementDDL         StatementType = "DDL" // CREATE, ALTER, DROP, TRUNCATE
	StatementDCL         StatementType = "DCL" // GRANT, REVOKE
	StatementTransaction StatementType = "TRANSACTION"
	StatementUnknown     StatementType = "UNKNOWN"
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations.
// Example: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE|MERGE)\b`)

// wordPattern is the fallback scanner used when a statement cannot be lexed.
var wordPattern = regexp.MustCompile(`[A-Za-z_]+`)

var statementKeywords = map[string]StatementType{
	"SELECT":    StatementSelect,
	"WITH":      StatementSelect,
	"INSERT":    StatementInsert,
	"UPDATE":    StatementUpdate,
	"DELETE":    StatementDelete,
	"MERGE":     StatementMerge,
	"CALL":      StatementCall,
	"EXEC":      StatementCall,
	"EXECUTE":   StatementCall,
	"CREATE":    StatementDDL,
	"ALTER":     StatementDDL,
	"DROP":      StatementDDL,
	"TRUNCATE":  StatementDDL,
	"VACUUM":    StatementDDL,
	"GRANT":     StatementDCL,
	"REVOKE":    StatementDCL,
	"BEGIN":     StatementTransaction,
	"COMMIT":    StatementTransaction,
	"ROLLBACK":  StatementTransaction,
	"SAVEPOINT": StatementTransaction,
}

// destructiveWords may not appear anywhere outside literals in a read-only query.
// INTO covers SELECT ... INTO, which creates a table.
var destructiveWords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"CREATE": true, "ALTER": true, "DROP": true, "TRUNCATE": true, "VACUUM": true,
	"GRANT": true, "REVOKE": true, "INTO": true,
	"CALL": true, "EXEC": true, "EXECUTE": true,
	"BEGIN": true, "COMMIT": true, "ROLLBACK": true, "SAVEPOINT": true,
}

// sideEffectFuncs are server functions that sleep, signal backends, touch
// the file system, change settings or advance sequences.
var sideEffectFuncs = map[string]bool{
	"pg_sleep": true, "pg_sleep_for": true, "pg_sleep_until": true,
	"pg_terminate_backend": true, "pg_cancel_backend": true, "pg_reload_conf": true,
	"pg_rotate_logfile": true, "pg_switch_wal": true, "pg_promote": true, "pg_create_restore_point": true,
	"pg_read_file": true, "pg_read_binary_file": true, "pg_ls_dir": true, "pg_stat_file": true,
	"lo_import": true, "lo_export": true, "lo_unlink": true,
	"dblink": true, "dblink_exec": true, "set_config": true,
	"pg_advisory_lock": true, "pg_advisory_xact_lock": true, "pg_try_advisory_lock": true,
	"nextval": true, "setval": true,
	"xp_cmdshell": true, "xp_regread": true, "xp_dirtree": true, "sp_executesql": true,
	"openrowset": true, "opendatasource": true, "openquery": true,
	"sleep": true, "benchmark": true, "load_file": true,
}

var funcCallPattern = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// SideEffectFunctions returns the distinct side-effecting server functions
// called outside string literals, lower-cased, in order of first appearance.
func SideEffectFunctions(statement string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range funcCallPattern.FindAllStringSubmatch(blankLiterals(statement), -1) {
		name := strings.ToLower(m[1])
		if sideEffectFuncs[name] && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// DetectStatementType determines the statement type from its first keyword.
// Leading comments and parentheses are skipped. A WITH statement whose CTEs
// modify data is reported by the modifying operation.
func DetectStatementType(statement string) StatementType {
	first := ""
	if toks, err := Tokenize(statement); err == nil {
		for _, t := range toks {
			if t.Value == "(" {
				continue
			}
			first = strings.ToUpper(t.Value)
			break
		}
	} else {
		first = strings.ToUpper(wordPattern.FindString(statement))
	}

	st, ok := statementKeywords[first]
	if !ok {
		return StatementUnknown
	}
	if first == "WITH" {
		if m := modifyingCTEPattern.FindStringSubmatch(statement); m != nil {
			return statementKeywords[strings.ToUpper(m[1])]
		}
	}
	return st
}

// IsModifyingStatement returns true if the statement type can change data,
// schema, permissions or transaction state.
func IsModifyingStatement(st StatementType) bool {
	switch st {
	case StatementSelect:
		return false
	default:
		return true
	}
}

// DestructiveKeywords returns the distinct data- or schema-modifying keywords
// found outside string literals, quoted identifiers and comments, in order of
// first appearance.
func DestructiveKeywords(statement string) []string {
	var words []string
	if toks, err := Tokenize(statement); err == nil {
		for _, t := range toks {
			if t.Kind == "Keyword" {
				words = append(words, t.Value)
			}
		}
	} else {
		for _, w := range wordPattern.FindAllString(blankLiterals(statement), -1) {
			words = append(words, strings.ToUpper(w))
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, w := range words {
		if destructiveWords[w] && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// blankLiterals replaces single-quoted literal contents with spaces.
func blankLiterals(statement string) string {
	b := []byte(statement)
	in := false
	for i, c := range b {
		if c == '\'' {
			in = !in
			continue
		}
		if in {
			b[i] = ' '
		}
	}
	return string(b)
}
