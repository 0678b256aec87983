package sql

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// reservedWords are lexed as Keyword tokens and may not be used as bare
// identifiers. Statement keywords outside the read-only grammar are included
// so that destructive statements are recognised by the tokenizer.
var reservedWords = []string{
	"SELECT", "DISTINCT", "TOP", "FROM", "WHERE", "GROUP", "BY", "HAVING", "ORDER", "ASC", "DESC",
	"LIMIT", "OFFSET", "AS", "AND", "OR", "NOT", "IN", "IS", "NULL", "LIKE", "ILIKE", "BETWEEN",
	"CASE", "WHEN", "THEN", "ELSE", "END", "JOIN", "INNER", "LEFT", "RIGHT", "FULL", "OUTER",
	"CROSS", "ON", "USING", "UNION", "ALL", "INTERSECT", "EXCEPT", "WITH", "EXISTS", "CAST",
	"EXTRACT", "OVER", "PARTITION", "TRUE", "FALSE", "NULLS", "FIRST", "LAST", "FETCH", "NEXT",
	"ROW", "ROWS", "ONLY",
	"INSERT", "UPDATE", "DELETE", "MERGE", "DROP", "CREATE", "ALTER", "TRUNCATE", "GRANT",
	"REVOKE", "INTO", "CALL", "EXEC", "EXECUTE", "BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT", "VACUUM",
}

var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "Keyword", Pattern: `(?i)\b(?:` + strings.Join(reservedWords, "|") + `)\b`},
	{Name: "QuotedIdent", Pattern: `"(?:[^"]|"")*"|` + "`[^`]*`" + `|\[[^\]]*\]`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "Number", Pattern: `(?:\d+(?:\.\d*)?|\.\d+)(?:[eE][+-]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Operator", Pattern: `<>|!=|<=|>=|\|\||::|[-+*/%=<>(),.;]`},
	{Name: "Param", Pattern: `\$\d+|\?|:[A-Za-z_][A-Za-z0-9_]*|@[A-Za-z_][A-Za-z0-9_]*`},
})

// Query is a read-only SELECT statement, optionally with CTEs and set operations.
type Query struct {
	With    []*CTE       `( "WITH" @@ ( "," @@ )* )?`
	Select  *Select      `@@`
	SetOps  []*SetOp     `@@*`
	OrderBy []*OrderItem `( "ORDER" "BY" @@ ( "," @@ )* )?`
	Limit   *string      `( "LIMIT" @( Number | "ALL" ) )?`
	Offset  *string      `( "OFFSET" @Number ( "ROW" | "ROWS" )? )?`
	Fetch   *Fetch       `@@?`
}

// Fetch is FETCH { FIRST | NEXT } [n] { ROW | ROWS } ONLY.
type Fetch struct {
	Count *string `"FETCH" ( "FIRST" | "NEXT" ) @Number? ( "ROW" | "ROWS" ) "ONLY"`
}

// CTE is one common table expression of a WITH clause.
type CTE struct {
	Name    string   `@( Ident | QuotedIdent )`
	Columns []string `( "(" @( Ident | QuotedIdent ) ( "," @( Ident | QuotedIdent ) )* ")" )?`
	Query   *Query   `"AS" "(" @@ ")"`
}

type SetOp struct {
	Op     string  `@( "UNION" | "INTERSECT" | "EXCEPT" )`
	All    bool    `@"ALL"?`
	Select *Select `@@`
}

type Select struct {
	Top      *string       `"SELECT" ( "TOP" @Number )?`
	Distinct bool          `@"DISTINCT"?`
	Items    []*SelectItem `@@ ( "," @@ )*`
	From     []*TableExpr  `( "FROM" @@ ( "," @@ )* )?`
	Where    *Expr         `( "WHERE" @@ )?`
	GroupBy  []*Expr       `( "GROUP" "BY" @@ ( "," @@ )* )?`
	Having   *Expr         `( "HAVING" @@ )?`
}

type SelectItem struct {
	Star      bool    `  @"*"`
	TableStar *string `| @( Ident | QuotedIdent ) "." "*"`
	Expr      *Expr   `| @@`
	Alias     *string `  ( "AS"? @( Ident | QuotedIdent | String ) )?`
}

type TableExpr struct {
	Base  *TableFactor `@@`
	Joins []*Join      `@@*`
}

type TableFactor struct {
	Subquery *Query   `( "(" @@ ")"`
	Name     []string `| @( Ident | QuotedIdent ) ( "." @( Ident | QuotedIdent ) )* )`
	Alias    *string  `( "AS"? @( Ident | QuotedIdent ) )?`
}

type Join struct {
	Kind  string       `@( "INNER" | "CROSS" | "LEFT" | "RIGHT" | "FULL" )? "OUTER"? "JOIN"`
	Table *TableFactor `@@`
	On    *Expr        `( "ON" @@`
	Using []string     `| "USING" "(" @( Ident | QuotedIdent ) ( "," @( Ident | QuotedIdent ) )* ")" )?`
}

type OrderItem struct {
	Expr      *Expr  `@@`
	Direction string `@( "ASC" | "DESC" )?`
	Nulls     string `( "NULLS" @( "FIRST" | "LAST" ) )?`
}

type Expr struct {
	Or []*AndExpr `@@ ( "OR" @@ )*`
}

type AndExpr struct {
	And []*NotExpr `@@ ( "AND" @@ )*`
}

type NotExpr struct {
	Not  bool       `@"NOT"?`
	Pred *Predicate `@@`
}

type Predicate struct {
	Left    *Additive    `@@`
	Compare *Comparison  `( @@`
	Is      *IsNull      `| @@`
	Negated bool         `| ( @"NOT"?`
	In      *InPredicate `    ( @@`
	Between *Between     `    | @@`
	Like    *Like        `    | @@ ) ) )?`
}

type Comparison struct {
	Op    string    `@( "=" | "<>" | "!=" | "<=" | ">=" | "<" | ">" )`
	Right *Additive `@@`
}

type IsNull struct {
	Not bool `"IS" @"NOT"? "NULL"`
}

type InPredicate struct {
	Subquery *Query  `"IN" "(" ( @@`
	Values   []*Expr `| @@ ( "," @@ )* ) ")"`
}

type Between struct {
	Low  *Additive `"BETWEEN" @@`
	High *Additive `"AND" @@`
}

type Like struct {
	Op      string    `@( "LIKE" | "ILIKE" )`
	Pattern *Additive `@@`
}

type Additive struct {
	Left *Multiplicative `@@`
	Ops  []*AddOp        `@@*`
}

type AddOp struct {
	Op    string          `@( "+" | "-" | "||" )`
	Right *Multiplicative `@@`
}

type Multiplicative struct {
	Left *Unary   `@@`
	Ops  []*MulOp `@@*`
}

type MulOp struct {
	Op    string `@( "*" | "/" | "%" )`
	Right *Unary `@@`
}

type Unary struct {
	Neg   bool     `@"-"?`
	Value *Postfix `@@`
}

type Postfix struct {
	Value *Primary    `@@`
	Casts []*TypeName `( "::" @@ )*`
}

type TypeName struct {
	Name   string   `@Ident`
	Params []string `( "(" @Number ( "," @Number )* ")" )?`
}

type Primary struct {
	Case     *CaseExpr     `  @@`
	Cast     *CastExpr     `| @@`
	Extract  *ExtractExpr  `| @@`
	Exists   *Query        `| "EXISTS" "(" @@ ")"`
	Subquery *Query        `| "(" @@ ")"`
	Paren    *Expr         `| "(" @@ ")"`
	Func     *FuncCall     `| @@`
	Typed    *TypedLiteral `| @@`
	Column   *ColumnRef    `| @@`
	Number   *string       `| @Number`
	String   *string       `| @String`
	Null     bool          `| @"NULL"`
	Bool     *string       `| @( "TRUE" | "FALSE" )`
	Param    *string       `| @Param`
}

type CaseExpr struct {
	Operand *Expr         `"CASE" @@?`
	Whens   []*WhenClause `@@+`
	Else    *Expr         `( "ELSE" @@ )? "END"`
}

type WhenClause struct {
	When *Expr `"WHEN" @@`
	Then *Expr `"THEN" @@`
}

type CastExpr struct {
	Value *Expr     `"CAST" "(" @@`
	Type  *TypeName `"AS" @@ ")"`
}

type ExtractExpr struct {
	Field  string `"EXTRACT" "(" @( Ident | String )`
	Source *Expr  `"FROM" @@ ")"`
}

// TypedLiteral is a literal prefixed by its type, e.g. DATE '2024-01-01'.
type TypedLiteral struct {
	Type  string `@Ident`
	Value string `@String`
}

type FuncCall struct {
	Name     string      `@Ident "("`
	Star     bool        `( @"*"`
	Distinct bool        `| @"DISTINCT"?`
	Args     []*Expr     `  @@ ( "," @@ )* )? ")"`
	Over     *WindowSpec `( "OVER" @@ )?`
}

type WindowSpec struct {
	Partition []*Expr      `"(" ( "PARTITION" "BY" @@ ( "," @@ )* )?`
	OrderBy   []*OrderItem `( "ORDER" "BY" @@ ( "," @@ )* )? ")"`
}

// ColumnRef is a possibly qualified column name: col, t.col or schema.t.col.
type ColumnRef struct {
	Parts []string `@( Ident | QuotedIdent ) ( "." @( Ident | QuotedIdent ) )*`
}

// Name returns the unquoted column name.
func (c *ColumnRef) Name() string {
	return unquoteIdent(c.Parts[len(c.Parts)-1])
}

// Qualifier returns the unquoted table qualifier, or "".
func (c *ColumnRef) Qualifier() string {
	if len(c.Parts) < 2 {
		return ""
	}
	return unquoteIdent(c.Parts[len(c.Parts)-2])
}

func (c *ColumnRef) String() string {
	parts := make([]string, len(c.Parts))
	for i, p := range c.Parts {
		parts[i] = unquoteIdent(p)
	}
	return strings.Join(parts, ".")
}

var selectParser = participle.MustBuild[Query](
	participle.Lexer(sqlLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.CaseInsensitive("Keyword"),
	participle.UseLookahead(4),
)

// SyntaxError reports where the read-only grammar rejected a statement.
type SyntaxError struct {
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line == 0 {
		return "syntax error: " + e.Message
	}
	return fmt.Sprintf("syntax error at line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Parse parses a single read-only SELECT statement (no trailing semicolon).
// Parser panics are returned as a *SyntaxError.
func Parse(statement string) (q *Query, err error) {
	defer func() {
		if r := recover(); r != nil {
			q, err = nil, &SyntaxError{Message: fmt.Sprint(r)}
		}
	}()

	q, err = selectParser.ParseString("", statement)
	if err != nil {
		if perr, ok := err.(participle.Error); ok {
			pos := perr.Position()
			return nil, &SyntaxError{Line: pos.Line, Column: pos.Column, Message: perr.Message()}
		}
		return nil, &SyntaxError{Message: err.Error()}
	}
	return q, nil
}

// Token is a lexed SQL token with whitespace and comments removed.
type Token struct {
	Kind  string
	Value string
}

var symbolNames = func() map[lexer.TokenType]string {
	out := make(map[lexer.TokenType]string)
	for name, tt := range sqlLexer.Symbols() {
		out[tt] = name
	}
	return out
}()

// Tokenize lexes a statement. Keyword values are upper-cased.
func Tokenize(statement string) ([]Token, error) {
	lex, err := sqlLexer.LexString("", statement)
	if err != nil {
		return nil, err
	}
	raw, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, err
	}

	out := make([]Token, 0, len(raw))
	for _, t := range raw {
		if t.EOF() {
			break
		}
		kind := symbolNames[t.Type]
		switch kind {
		case "Whitespace", "Comment":
			continue
		case "Keyword":
			out = append(out, Token{Kind: kind, Value: strings.ToUpper(t.Value)})
		default:
			out = append(out, Token{Kind: kind, Value: t.Value})
		}
	}
	return out, nil
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"':
			return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
		case s[0] == '`' && s[len(s)-1] == '`', s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}

func unquoteString(s string) string {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
