package sql

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapSchema is a minimal Schema for tests: table -> ordered columns.
type mapSchema map[string][]string

func (m mapSchema) CanonicalTableName(name string) (string, bool) {
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		name = name[dot+1:]
	}
	for t := range m {
		if strings.EqualFold(t, name) {
			return t, true
		}
	}
	return "", false
}

func (m mapSchema) HasColumn(table, column string) bool {
	t, ok := m.CanonicalTableName(table)
	if !ok {
		return false
	}
	for _, c := range m[t] {
		if strings.EqualFold(c, column) {
			return true
		}
	}
	return false
}

func (m mapSchema) ColumnNames(table string) []string {
	t, ok := m.CanonicalTableName(table)
	if !ok {
		return nil
	}
	return m[t]
}

var testSchema = mapSchema{
	"sales":     {"id", "region", "revenue", "sale_date", "customer_id"},
	"customers": {"id", "name", "region"},
}

func analyze(t *testing.T, query string) *Analysis {
	t.Helper()
	q, err := Parse(query)
	require.NoError(t, err, query)
	return Analyze(q, testSchema)
}

func TestAnalyze_CleanQueries(t *testing.T) {
	queries := []string{
		"SELECT SUM(revenue) FROM sales",
		"SELECT SUM(Revenue) FROM SALES",
		"SELECT region, SUM(revenue) AS total FROM sales GROUP BY region ORDER BY total DESC",
		"SELECT s.region, COUNT(*) FROM sales s JOIN customers c ON c.id = s.customer_id GROUP BY s.region",
		"SELECT sales.region FROM sales AS s",
		"SELECT c.name FROM customers c WHERE EXISTS (SELECT 1 FROM sales WHERE sales.customer_id = c.id)",
		"WITH t AS (SELECT region, SUM(revenue) AS total FROM sales GROUP BY region) SELECT region, total FROM t",
		"WITH t (r, v) AS (SELECT region, revenue FROM sales) SELECT r FROM t WHERE v > 0",
		"SELECT x.total FROM (SELECT SUM(revenue) AS total FROM sales) x",
		"SELECT DATE_TRUNC('month', sale_date) AS month, SUM(revenue) FROM sales GROUP BY DATE_TRUNC('month', sale_date)",
		"SELECT DATE_TRUNC('month', sale_date) AS month, SUM(revenue) FROM sales GROUP BY month",
		"SELECT EXTRACT(YEAR FROM sale_date), SUM(revenue) FROM sales GROUP BY 1",
		"SELECT region FROM sales WHERE sale_date >= CURRENT_DATE - INTERVAL '7 days'",
		"SELECT * FROM sales",
		"SELECT region, revenue, SUM(revenue) OVER (PARTITION BY region) FROM sales",
		"SELECT region FROM sales UNION SELECT region FROM customers ORDER BY region",
	}

	for _, query := range queries {
		t.Run(query, func(t *testing.T) {
			a := analyze(t, query)
			assert.Empty(t, a.Findings)
		})
	}
}

func TestAnalyze_Findings(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		kind   FindingKind
		table  string
		column string
	}{
		{
			name:   "misspelled column",
			query:  "SELECT SUM(revenu) FROM sales",
			kind:   FindingUnknownColumn,
			column: "revenu",
		},
		{
			name:  "unknown table",
			query: "SELECT SUM(revenue) FROM sale",
			kind:  FindingUnknownTable,
			table: "sale",
		},
		{
			name:   "qualified unknown column",
			query:  "SELECT s.amount FROM sales s",
			kind:   FindingUnknownColumn,
			table:  "sales",
			column: "amount",
		},
		{
			name:   "ambiguous join column",
			query:  "SELECT region FROM sales JOIN customers ON customers.id = sales.customer_id",
			kind:   FindingAmbiguousColumn,
			column: "region",
		},
		{
			name:   "qualifier not in from",
			query:  "SELECT customers.name FROM sales",
			kind:   FindingUnknownTable,
			table:  "customers",
			column: "name",
		},
		{
			name:   "ungrouped column",
			query:  "SELECT region, sale_date, SUM(revenue) FROM sales GROUP BY region",
			kind:   FindingGroupingMismatch,
			column: "sale_date",
		},
		{
			name:   "aggregate without group by",
			query:  "SELECT region, SUM(revenue) FROM sales",
			kind:   FindingGroupingMismatch,
			column: "region",
		},
		{
			name:   "star with group by",
			query:  "SELECT * FROM sales GROUP BY region",
			kind:   FindingGroupingMismatch,
			column: "*",
		},
		{
			name:   "alias is not visible in where",
			query:  "SELECT revenue AS r FROM sales WHERE r > 1",
			kind:   FindingUnknownColumn,
			column: "r",
		},
		{
			name:   "unknown column of derived table",
			query:  "SELECT x.missing FROM (SELECT region FROM sales) x",
			kind:   FindingUnknownColumn,
			table:  "x",
			column: "missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := analyze(t, tt.query)
			require.Len(t, a.Findings, 1, "%v", a.Findings)
			f := a.Findings[0]
			assert.Equal(t, tt.kind, f.Kind)
			assert.Equal(t, tt.table, f.Table)
			assert.Equal(t, tt.column, f.Column)
			assert.NotEmpty(t, f.String())
		})
	}
}

func TestAnalyze_AmbiguousCandidates(t *testing.T) {
	a := analyze(t, "SELECT region FROM sales s JOIN customers c ON c.id = s.customer_id")
	require.Len(t, a.Findings, 1)
	assert.Equal(t, []string{"s", "c"}, a.Findings[0].Candidates)
}

func TestAnalyze_TablesAndLiterals(t *testing.T) {
	a := analyze(t, "SELECT c.name FROM customers c JOIN sales s ON s.customer_id = c.id WHERE s.region = 'North' AND c.name LIKE 'O''B%'")
	assert.Equal(t, []string{"customers", "sales"}, a.Tables)
	assert.Equal(t, []string{"North", "O'B%"}, a.Literals)
}

func TestAnalyze_UnknownTableDoesNotCascade(t *testing.T) {
	a := analyze(t, "SELECT amount, total FROM orders")
	require.Len(t, a.Findings, 1)
	assert.Equal(t, FindingUnknownTable, a.Findings[0].Kind)
	assert.Empty(t, a.Tables)
}
