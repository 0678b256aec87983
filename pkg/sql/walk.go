package sql

import "strings"

// visitor walks an expression tree. Subqueries are reported to subquery and
// not descended into. A nil callback is skipped.
type visitor struct {
	column   func(*ColumnRef)
	function func(*FuncCall) bool // returning false skips the call's arguments
	subquery func(*Query)
	literal  func(string)
}

func (v *visitor) expr(e *Expr) {
	if e == nil {
		return
	}
	for _, and := range e.Or {
		for _, n := range and.And {
			v.predicate(n.Pred)
		}
	}
}

func (v *visitor) predicate(p *Predicate) {
	if p == nil {
		return
	}
	v.additive(p.Left)
	switch {
	case p.Compare != nil:
		v.additive(p.Compare.Right)
	case p.In != nil:
		if p.In.Subquery != nil {
			v.query(p.In.Subquery)
		}
		for _, e := range p.In.Values {
			v.expr(e)
		}
	case p.Between != nil:
		v.additive(p.Between.Low)
		v.additive(p.Between.High)
	case p.Like != nil:
		v.additive(p.Like.Pattern)
	}
}

func (v *visitor) additive(a *Additive) {
	if a == nil {
		return
	}
	v.multiplicative(a.Left)
	for _, op := range a.Ops {
		v.multiplicative(op.Right)
	}
}

func (v *visitor) multiplicative(m *Multiplicative) {
	if m == nil {
		return
	}
	v.unary(m.Left)
	for _, op := range m.Ops {
		v.unary(op.Right)
	}
}

func (v *visitor) unary(u *Unary) {
	if u == nil || u.Value == nil {
		return
	}
	v.primary(u.Value.Value)
}

func (v *visitor) primary(p *Primary) {
	switch {
	case p == nil:
	case p.Case != nil:
		v.expr(p.Case.Operand)
		for _, w := range p.Case.Whens {
			v.expr(w.When)
			v.expr(w.Then)
		}
		v.expr(p.Case.Else)
	case p.Cast != nil:
		v.expr(p.Cast.Value)
	case p.Extract != nil:
		v.expr(p.Extract.Source)
	case p.Exists != nil:
		v.query(p.Exists)
	case p.Subquery != nil:
		v.query(p.Subquery)
	case p.Paren != nil:
		v.expr(p.Paren)
	case p.Func != nil:
		if v.function != nil && !v.function(p.Func) {
			return
		}
		for i, arg := range p.Func.Args {
			if i == 0 && isDatePartArg(p.Func.Name, arg) {
				continue
			}
			v.expr(arg)
		}
		if p.Func.Over != nil {
			for _, e := range p.Func.Over.Partition {
				v.expr(e)
			}
			for _, o := range p.Func.Over.OrderBy {
				v.expr(o.Expr)
			}
		}
	case p.Typed != nil:
		v.lit(p.Typed.Value)
	case p.Column != nil:
		if v.column != nil {
			v.column(p.Column)
		}
	case p.String != nil:
		v.lit(*p.String)
	}
}

func (v *visitor) query(q *Query) {
	if v.subquery != nil && q != nil {
		v.subquery(q)
	}
}

func (v *visitor) lit(s string) {
	if v.literal != nil {
		v.literal(unquoteString(s))
	}
}

var aggregateFuncs = map[string]bool{
	"count": true, "count_big": true, "sum": true, "avg": true, "min": true, "max": true,
	"stddev": true, "stddev_pop": true, "stddev_samp": true, "stdev": true,
	"variance": true, "var_pop": true, "var_samp": true, "var": true,
	"array_agg": true, "string_agg": true, "group_concat": true, "listagg": true, "json_agg": true,
	"median": true, "percentile_cont": true, "percentile_disc": true,
	"bool_and": true, "bool_or": true, "every": true,
}

// datePartFuncs take an unquoted date part keyword as their first argument,
// e.g. DATEADD(month, -1, GETDATE()).
var datePartFuncs = map[string]bool{
	"dateadd": true, "datediff": true, "datediff_big": true, "datepart": true,
	"datename": true, "datetrunc": true, "date_bucket": true, "timestampadd": true, "timestampdiff": true,
}

func isDatePartArg(funcName string, arg *Expr) bool {
	if !datePartFuncs[strings.ToLower(funcName)] {
		return false
	}
	ref := simpleColumn(arg)
	return ref != nil && len(ref.Parts) == 1
}

// IsAggregate reports whether the call is a plain (non-window) aggregate.
func (f *FuncCall) IsAggregate() bool {
	return f.Over == nil && aggregateFuncs[strings.ToLower(f.Name)]
}

// containsAggregate reports whether e calls an aggregate outside subqueries.
func containsAggregate(e *Expr) bool {
	found := false
	v := &visitor{function: func(f *FuncCall) bool {
		if f.IsAggregate() {
			found = true
			return false
		}
		return true
	}}
	v.expr(e)
	return found
}

// bareColumns returns the column references of e that are not inside an
// aggregate call or a subquery.
func bareColumns(e *Expr) []*ColumnRef {
	var refs []*ColumnRef
	v := &visitor{
		column:   func(c *ColumnRef) { refs = append(refs, c) },
		function: func(f *FuncCall) bool { return !f.IsAggregate() },
	}
	v.expr(e)
	return refs
}

// singlePrimary returns the primary of an expression without operators, or nil.
func singlePrimary(e *Expr) *Primary {
	if e == nil || len(e.Or) != 1 || len(e.Or[0].And) != 1 {
		return nil
	}
	n := e.Or[0].And[0]
	if n.Not || n.Pred == nil {
		return nil
	}
	p := n.Pred
	if p.Compare != nil || p.Is != nil || p.In != nil || p.Between != nil || p.Like != nil || p.Negated {
		return nil
	}
	if p.Left == nil || len(p.Left.Ops) != 0 || p.Left.Left == nil || len(p.Left.Left.Ops) != 0 {
		return nil
	}
	u := p.Left.Left.Left
	if u == nil || u.Neg || u.Value == nil || len(u.Value.Casts) != 0 {
		return nil
	}
	return u.Value.Value
}

// simpleColumn returns e's column reference when e is nothing but a column.
func simpleColumn(e *Expr) *ColumnRef {
	if p := singlePrimary(e); p != nil {
		return p.Column
	}
	return nil
}
