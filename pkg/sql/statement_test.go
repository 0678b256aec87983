package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectStatementType(t *testing.T) {
	tests := []struct {
		name     string
		sql      string
		expected StatementType
	}{
		{"simple select", "SELECT * FROM users", StatementSelect},
		{"lowercase select", "select id from users", StatementSelect},
		{"leading comment", "-- monthly totals\nSELECT 1", StatementSelect},
		{"parenthesized select", "(SELECT 1) UNION (SELECT 2)", StatementSelect},
		{"read-only cte", "WITH t AS (SELECT 1) SELECT * FROM t", StatementSelect},
		{"modifying cte", "WITH d AS (DELETE FROM users RETURNING *) SELECT * FROM d", StatementDelete},
		{"insert", "INSERT INTO users (name) VALUES ('x')", StatementInsert},
		{"update", "UPDATE users SET name = 'x'", StatementUpdate},
		{"delete", "DELETE FROM users", StatementDelete},
		{"merge", "MERGE INTO a USING b ON a.id = b.id WHEN MATCHED THEN DELETE", StatementMerge},
		{"drop", "DROP TABLE users", StatementDDL},
		{"truncate", "TRUNCATE users", StatementDDL},
		{"grant", "GRANT SELECT ON users TO bob", StatementDCL},
		{"begin", "BEGIN", StatementTransaction},
		{"exec", "EXEC sp_who", StatementCall},
		{"prose", "Here is the query", StatementUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectStatementType(tt.sql))
		})
	}
}

func TestIsModifyingStatement(t *testing.T) {
	assert.False(t, IsModifyingStatement(StatementSelect))
	for _, st := range []StatementType{StatementInsert, StatementUpdate, StatementDelete, StatementMerge, StatementDDL, StatementCall, StatementUnknown} {
		assert.True(t, IsModifyingStatement(st), st)
	}
}

func TestDestructiveKeywords(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"clean select", "SELECT region FROM sales", nil},
		{"keyword inside literal", "SELECT 'DROP TABLE x' AS note FROM sales", nil},
		{"keyword inside comment", "SELECT 1 -- delete later", nil},
		{"keyword inside quoted identifier", `SELECT "update" FROM sales`, nil},
		{"identifier containing keyword", "SELECT updated_at, deleted FROM sales", nil},
		{"select into", "SELECT * INTO backup FROM sales", []string{"INTO"}},
		{"modifying cte", "WITH d AS (DELETE FROM sales RETURNING *) SELECT * FROM d", []string{"DELETE"}},
		{"drop", "DROP TABLE sales", []string{"DROP"}},
		{"insert select", "INSERT INTO t SELECT * FROM sales", []string{"INSERT", "INTO"}},
		{"unlexable input falls back", "DELETE FROM sales WHERE id = #1", []string{"DELETE"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DestructiveKeywords(tt.sql))
		})
	}
}

func TestSideEffectFunctions(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{"plain aggregate", "SELECT SUM(amount), NOW() FROM sales", nil},
		{"sleep", "SELECT pg_sleep(10)", []string{"pg_sleep"}},
		{"qualified and upper case", "SELECT PG_CATALOG.PG_TERMINATE_BACKEND(pid) FROM pg_stat_activity", []string{"pg_terminate_backend"}},
		{"space before paren", "SELECT nextval ('orders_id_seq')", []string{"nextval"}},
		{"distinct names once", "SELECT pg_sleep(1), pg_sleep(2), setval('s', 1)", []string{"pg_sleep", "setval"}},
		{"inside literal", "SELECT 'pg_sleep(10)' AS note", nil},
		{"column named like a function", "SELECT sleep FROM shifts", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SideEffectFunctions(tt.sql))
		})
	}
}
