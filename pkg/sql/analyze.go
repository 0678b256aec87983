package sql

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Schema is the catalog view needed to resolve table and column references.
type Schema interface {
	CanonicalTableName(name string) (string, bool)
	HasColumn(table, column string) bool
	ColumnNames(table string) []string
}

// FindingKind categorises a reference or grouping problem.
type FindingKind string

const (
	FindingUnknownTable     FindingKind = "unknown_table"
	FindingUnknownColumn    FindingKind = "unknown_column"
	FindingAmbiguousColumn  FindingKind = "ambiguous_column"
	FindingGroupingMismatch FindingKind = "grouping_mismatch"
)

// Finding is one problem discovered while analysing a parsed query.
type Finding struct {
	Kind       FindingKind
	Table      string   // table or qualifier as written
	Column     string   // column as written
	Scope      []string // catalog tables visible where the reference appears
	Candidates []string // sources declaring an ambiguous column
	NotInFrom  bool     // the qualifier is a catalog table absent from FROM
}

func (f Finding) String() string {
	switch f.Kind {
	case FindingUnknownTable:
		if f.NotInFrom {
			return fmt.Sprintf("table %s is referenced but not joined in the FROM clause", f.Table)
		}
		return fmt.Sprintf("table %s does not exist", f.Table)
	case FindingUnknownColumn:
		if f.Table != "" {
			return fmt.Sprintf("column %s does not exist in table %s", f.Column, f.Table)
		}
		return fmt.Sprintf("column %s does not exist in %s", f.Column, describeScope(f.Scope))
	case FindingAmbiguousColumn:
		return fmt.Sprintf("column %s is ambiguous; it exists in %s", f.Column, strings.Join(f.Candidates, ", "))
	case FindingGroupingMismatch:
		if f.Column == "*" {
			return "SELECT * cannot be combined with GROUP BY or aggregates"
		}
		return fmt.Sprintf("column %s must appear in GROUP BY or inside an aggregate", f.Column)
	default:
		return string(f.Kind)
	}
}

func describeScope(tables []string) string {
	switch len(tables) {
	case 0:
		return "the query"
	case 1:
		return "table " + tables[0]
	default:
		return "tables " + strings.Join(tables, ", ")
	}
}

// Analysis is the outcome of resolving a query against a schema.
type Analysis struct {
	Tables   []string // canonical catalog tables referenced, sorted
	Literals []string // unquoted string literals, in order of appearance
	Findings []Finding
}

// builtinIdentifiers are niladic SQL functions written without parentheses.
var builtinIdentifiers = map[string]bool{
	"current_date": true, "current_time": true, "current_timestamp": true,
	"localtime": true, "localtimestamp": true, "current_user": true,
	"session_user": true, "sysdate": true,
}

// Analyze resolves every table and column reference of q against schema and
// checks aggregate/grouping consistency of each SELECT.
func Analyze(q *Query, schema Schema) *Analysis {
	a := &analyzer{schema: schema, tables: make(map[string]bool), seen: make(map[string]bool)}
	a.query(q, nil)

	out := &Analysis{Literals: a.literals, Findings: a.findings}
	for t := range a.tables {
		out.Tables = append(out.Tables, t)
	}
	sort.Strings(out.Tables)
	return out
}

type source struct {
	key     string          // lower-cased alias or name that qualifies columns
	table   string          // canonical catalog table; "" for derived tables and CTEs
	columns map[string]bool // output columns of a derived table
	open    bool            // derived table whose outputs are not fully known
}

func (s *source) has(column string, schema Schema) (definite, maybe bool) {
	if s.table != "" {
		return schema.HasColumn(s.table, column), false
	}
	if s.columns[strings.ToLower(column)] {
		return true, false
	}
	return false, s.open
}

func (s *source) label() string {
	if s.table != "" && s.key == strings.ToLower(s.table) {
		return s.table
	}
	return s.key
}

type scope struct {
	parent  *scope
	sources []*source
	ctes    map[string]*source
	aliases map[string]bool
}

func (s *scope) cte(name string) *source {
	for sc := s; sc != nil; sc = sc.parent {
		if c, ok := sc.ctes[name]; ok {
			return c
		}
	}
	return nil
}

// lookup finds a source of this scope by alias, falling back to the
// underlying table name of an aliased source.
func (s *scope) lookup(qualifier string) *source {
	key := strings.ToLower(qualifier)
	for _, src := range s.sources {
		if src.key == key {
			return src
		}
	}
	for _, src := range s.sources {
		if src.table != "" && strings.ToLower(src.table) == key {
			return src
		}
	}
	return nil
}

func (s *scope) visibleTables() []string {
	seen := make(map[string]bool)
	var out []string
	for sc := s; sc != nil; sc = sc.parent {
		for _, src := range sc.sources {
			if src.table != "" && !seen[src.table] {
				seen[src.table] = true
				out = append(out, src.table)
			}
		}
	}
	return out
}

type analyzer struct {
	schema   Schema
	tables   map[string]bool
	literals []string
	findings []Finding
	seen     map[string]bool
}

func (a *analyzer) find(f Finding) {
	key := fmt.Sprintf("%s|%s|%s", f.Kind, strings.ToLower(f.Table), strings.ToLower(f.Column))
	if a.seen[key] {
		return
	}
	a.seen[key] = true
	a.findings = append(a.findings, f)
}

// query analyses q in a new scope below parent and returns its output column names.
func (a *analyzer) query(q *Query, parent *scope) ([]string, bool) {
	sc := &scope{parent: parent, ctes: make(map[string]*source)}
	for _, cte := range q.With {
		outs, open := a.query(cte.Query, sc)
		if len(cte.Columns) > 0 {
			outs = make([]string, 0, len(cte.Columns))
			for _, c := range cte.Columns {
				outs = append(outs, unquoteIdent(c))
			}
			open = false
		}
		name := strings.ToLower(unquoteIdent(cte.Name))
		sc.ctes[name] = &source{key: name, columns: nameSet(outs), open: open}
	}

	first, outs, open := a.selectStmt(q.Select, sc)
	for _, op := range q.SetOps {
		a.selectStmt(op.Select, sc)
	}

	if len(q.OrderBy) > 0 {
		orderScope := first
		if len(q.SetOps) > 0 {
			orderScope = &scope{parent: sc, aliases: nameSet(outs)}
		}
		for _, item := range q.OrderBy {
			a.expr(item.Expr, orderScope, true)
		}
	}
	return outs, open
}

func (a *analyzer) selectStmt(s *Select, parent *scope) (*scope, []string, bool) {
	ss := &scope{parent: parent, aliases: make(map[string]bool)}
	for _, item := range s.Items {
		if item.Alias != nil {
			ss.aliases[strings.ToLower(aliasName(*item.Alias))] = true
		}
	}

	for _, te := range s.From {
		a.tableFactor(te.Base, ss, parent)
		for _, j := range te.Joins {
			a.tableFactor(j.Table, ss, parent)
		}
	}
	for _, te := range s.From {
		for _, j := range te.Joins {
			if j.On != nil {
				a.expr(j.On, ss, false)
			}
			for _, u := range j.Using {
				a.usingColumn(unquoteIdent(u), ss)
			}
		}
	}

	var outs []string
	open := false
	for _, item := range s.Items {
		switch {
		case item.Star:
			for _, src := range ss.sources {
				cols, op := a.sourceColumns(src)
				outs = append(outs, cols...)
				open = open || op
			}
		case item.TableStar != nil:
			name := unquoteIdent(*item.TableStar)
			src := ss.lookup(name)
			if src == nil {
				_, known := a.schema.CanonicalTableName(name)
				a.find(Finding{Kind: FindingUnknownTable, Table: name, Scope: ss.visibleTables(), NotInFrom: known})
				open = true
				continue
			}
			cols, op := a.sourceColumns(src)
			outs = append(outs, cols...)
			open = open || op
		default:
			a.expr(item.Expr, ss, false)
			if item.Alias != nil {
				outs = append(outs, aliasName(*item.Alias))
			} else if ref := simpleColumn(item.Expr); ref != nil {
				outs = append(outs, ref.Name())
			}
		}
	}

	if s.Where != nil {
		a.expr(s.Where, ss, false)
	}
	for _, g := range s.GroupBy {
		a.expr(g, ss, true)
	}
	if s.Having != nil {
		a.expr(s.Having, ss, true)
	}

	a.checkGrouping(s)
	return ss, outs, open
}

func (a *analyzer) tableFactor(tf *TableFactor, ss, outer *scope) {
	alias := ""
	if tf.Alias != nil {
		alias = unquoteIdent(*tf.Alias)
	}

	if tf.Subquery != nil {
		outs, open := a.query(tf.Subquery, outer)
		ss.sources = append(ss.sources, &source{key: strings.ToLower(alias), columns: nameSet(outs), open: open})
		return
	}

	parts := make([]string, len(tf.Name))
	for i, p := range tf.Name {
		parts[i] = unquoteIdent(p)
	}
	name := strings.Join(parts, ".")
	last := parts[len(parts)-1]
	key := strings.ToLower(alias)
	if key == "" {
		key = strings.ToLower(last)
	}

	if len(parts) == 1 {
		if cte := ss.cte(strings.ToLower(last)); cte != nil {
			ss.sources = append(ss.sources, &source{key: key, columns: cte.columns, open: cte.open})
			return
		}
	}

	if canonical, ok := a.schema.CanonicalTableName(name); ok {
		a.tables[canonical] = true
		ss.sources = append(ss.sources, &source{key: key, table: canonical})
		return
	}

	a.find(Finding{Kind: FindingUnknownTable, Table: name})
	// Unknown tables stay in scope so their columns are not reported twice.
	ss.sources = append(ss.sources, &source{key: key, open: true})
}

func (a *analyzer) sourceColumns(src *source) ([]string, bool) {
	if src.table != "" {
		return a.schema.ColumnNames(src.table), false
	}
	cols := make([]string, 0, len(src.columns))
	for c := range src.columns {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, src.open
}

func (a *analyzer) expr(e *Expr, sc *scope, allowAliases bool) {
	v := &visitor{
		column:   func(ref *ColumnRef) { a.column(ref, sc, allowAliases) },
		subquery: func(q *Query) { a.query(q, sc) },
		literal:  func(s string) { a.literals = append(a.literals, s) },
	}
	v.expr(e)
}

func (a *analyzer) column(ref *ColumnRef, sc *scope, allowAliases bool) {
	name := ref.Name()

	if q := ref.Qualifier(); q != "" {
		for s := sc; s != nil; s = s.parent {
			src := s.lookup(q)
			if src == nil {
				continue
			}
			definite, maybe := src.has(name, a.schema)
			if !definite && !maybe {
				f := Finding{Kind: FindingUnknownColumn, Table: src.label(), Column: name}
				if src.table != "" {
					f.Table = src.table
					f.Scope = []string{src.table}
				}
				a.find(f)
			}
			return
		}
		_, known := a.schema.CanonicalTableName(q)
		a.find(Finding{Kind: FindingUnknownTable, Table: q, Column: name, Scope: sc.visibleTables(), NotInFrom: known})
		return
	}

	key := strings.ToLower(name)
	if builtinIdentifiers[key] {
		return
	}

	for s := sc; s != nil; s = s.parent {
		var matches []string
		maybe := false
		for _, src := range s.sources {
			definite, m := src.has(name, a.schema)
			if definite {
				matches = append(matches, src.label())
			}
			maybe = maybe || m
		}
		if len(matches) > 1 {
			a.find(Finding{Kind: FindingAmbiguousColumn, Column: name, Candidates: matches, Scope: s.visibleTables()})
			return
		}
		if len(matches) == 1 || maybe {
			return
		}
		if allowAliases && s == sc && s.aliases[key] {
			return
		}
	}

	a.find(Finding{Kind: FindingUnknownColumn, Column: name, Scope: sc.visibleTables()})
}

func (a *analyzer) usingColumn(name string, ss *scope) {
	for _, src := range ss.sources {
		if definite, maybe := src.has(name, a.schema); definite || maybe {
			return
		}
	}
	a.find(Finding{Kind: FindingUnknownColumn, Column: name, Scope: ss.visibleTables()})
}

// checkGrouping reports select-list columns that are neither grouped nor
// aggregated when the SELECT aggregates or has a GROUP BY clause.
func (a *analyzer) checkGrouping(s *Select) {
	aggregated := false
	for _, item := range s.Items {
		if item.Expr != nil && containsAggregate(item.Expr) {
			aggregated = true
		}
	}
	if s.Having != nil && containsAggregate(s.Having) {
		aggregated = true
	}
	if !aggregated && len(s.GroupBy) == 0 {
		return
	}

	aliasIndex := make(map[string]int)
	for i, item := range s.Items {
		if item.Alias != nil {
			aliasIndex[strings.ToLower(aliasName(*item.Alias))] = i
		}
	}

	grouped := make(map[string]bool)
	itemGrouped := make(map[int]bool)
	for _, g := range s.GroupBy {
		if p := singlePrimary(g); p != nil {
			if p.Number != nil {
				if n, err := strconv.Atoi(*p.Number); err == nil && n >= 1 && n <= len(s.Items) {
					itemGrouped[n-1] = true
				}
				continue
			}
			if p.Column != nil && p.Column.Qualifier() == "" {
				if idx, ok := aliasIndex[strings.ToLower(p.Column.Name())]; ok {
					itemGrouped[idx] = true
				}
			}
		}
		for _, ref := range bareColumns(g) {
			grouped[strings.ToLower(ref.Name())] = true
		}
	}

	for i, item := range s.Items {
		if item.Star || item.TableStar != nil {
			a.find(Finding{Kind: FindingGroupingMismatch, Column: "*"})
			continue
		}
		if itemGrouped[i] {
			continue
		}
		for _, ref := range bareColumns(item.Expr) {
			if grouped[strings.ToLower(ref.Name())] || builtinIdentifiers[strings.ToLower(ref.Name())] {
				continue
			}
			a.find(Finding{Kind: FindingGroupingMismatch, Column: ref.String()})
		}
	}
}

func aliasName(alias string) string {
	if strings.HasPrefix(alias, "'") {
		return unquoteString(alias)
	}
	return unquoteIdent(alias)
}

func nameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(n)] = true
	}
	return out
}
