package services

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/sql"
)

// ValidationReport is the outcome of checking one draft.
type ValidationReport struct {
	// Query is the normalized statement: trimmed, without trailing semicolons.
	Query  string
	Tables []string
	Issues []models.Issue
}

// Valid reports whether no issue has error severity.
func (r *ValidationReport) Valid() bool {
	for _, is := range r.Issues {
		if is.Severity == models.SeverityError {
			return false
		}
	}
	return true
}

// Repairable reports whether the draft failed only on issues a repair pass
// may fix: references and grouping.
func (r *ValidationReport) Repairable() bool {
	failed := false
	for _, is := range r.Issues {
		if is.Severity != models.SeverityError {
			continue
		}
		if !is.Code.Repairable() {
			return false
		}
		failed = true
	}
	return failed
}

// QueryValidator checks drafts against the catalog and the read-only rules.
type QueryValidator interface {
	Validate(draft *models.DraftQuery, cat *catalog.Catalog) *ValidationReport
}

type queryValidator struct {
	logger *zap.Logger
}

var _ QueryValidator = (*queryValidator)(nil)

// NewQueryValidator creates a validator.
func NewQueryValidator(logger *zap.Logger) QueryValidator {
	return &queryValidator{logger: logger.Named("query-validator")}
}

// Validate runs the checks in order: statement shape, destructive content,
// grammar, references and grouping, then literals. Shape, destructive and
// grammar failures stop the later checks.
func (v *queryValidator) Validate(draft *models.DraftQuery, cat *catalog.Catalog) *ValidationReport {
	report := &ValidationReport{Tables: []string{}}
	if draft == nil {
		report.Issues = append(report.Issues, errorIssue(models.IssueSyntaxError, "no query was produced", ""))
		return report
	}

	normalized := sql.ValidateAndNormalize(draft.Text)
	switch {
	case errors.Is(normalized.Error, sql.ErrEmptyStatement):
		report.Issues = append(report.Issues, errorIssue(models.IssueSyntaxError, "the query is empty", ""))
		return report
	case errors.Is(normalized.Error, sql.ErrMultipleStatements):
		report.Issues = append(report.Issues, errorIssue(models.IssueMultipleStatements,
			"the reply contains more than one statement", "return a single SELECT statement"))
	}
	report.Query = normalized.NormalizedSQL
	if report.Query == "" {
		report.Query = strings.TrimSpace(draft.Text)
	}

	if words := sql.DestructiveKeywords(draft.Text); len(words) > 0 {
		msg := "data-modifying operation not allowed: " + strings.Join(words, ", ")
		if st := sql.DetectStatementType(draft.Text); st != sql.StatementUnknown && sql.IsModifyingStatement(st) {
			msg += " (" + string(st) + " statement)"
		}
		report.Issues = append(report.Issues, errorIssue(models.IssueDestructiveOperation, msg, ""))
	}
	if funcs := sql.SideEffectFunctions(draft.Text); len(funcs) > 0 {
		report.Issues = append(report.Issues, errorIssue(models.IssueDestructiveOperation,
			"server function with side effects not allowed: "+strings.Join(funcs, ", "), ""))
	}
	if len(report.Issues) > 0 {
		v.log(draft, report)
		return report
	}

	q, err := sql.Parse(report.Query)
	if err != nil {
		report.Issues = append(report.Issues, errorIssue(models.IssueSyntaxError, err.Error(), ""))
		v.log(draft, report)
		return report
	}

	analysis := sql.Analyze(q, cat)
	if analysis.Tables != nil {
		report.Tables = analysis.Tables
	}
	for _, f := range analysis.Findings {
		report.Issues = append(report.Issues, findingIssue(f, cat))
	}
	for _, hit := range sql.CheckLiterals(analysis.Literals) {
		report.Issues = append(report.Issues, errorIssue(models.IssueSuspiciousLiteral,
			fmt.Sprintf("string literal %q looks like an injection payload (%s)", logging.TruncateString(hit.Literal, 40), hit.Fingerprint), ""))
	}

	v.log(draft, report)
	return report
}

func (v *queryValidator) log(draft *models.DraftQuery, report *ValidationReport) {
	codes := make([]string, len(report.Issues))
	for i, is := range report.Issues {
		codes[i] = string(is.Code)
	}
	v.logger.Debug("Validated draft",
		zap.String("query", logging.SanitizeQuery(draft.Text)),
		zap.Bool("valid", report.Valid()),
		zap.Strings("issues", codes))
}

func findingIssue(f sql.Finding, cat *catalog.Catalog) models.Issue {
	code := models.IssueCode(f.Kind)
	suggestion := ""

	switch f.Kind {
	case sql.FindingUnknownTable:
		if f.NotInFrom {
			canonical, _ := cat.CanonicalTableName(f.Table)
			suggestion = "join " + canonical + " in the FROM clause"
		} else if t := cat.SuggestTable(f.Table); t != "" {
			suggestion = t
		}
	case sql.FindingUnknownColumn:
		table, column := cat.SuggestColumn(f.Column, f.Scope...)
		if column == "" && len(f.Scope) > 0 {
			table, column = cat.SuggestColumn(f.Column)
		}
		switch {
		case column == "":
		case len(f.Scope) == 1 && strings.EqualFold(table, f.Scope[0]):
			suggestion = column
		default:
			suggestion = table + "." + column
		}
	case sql.FindingAmbiguousColumn:
		if len(f.Candidates) > 0 {
			suggestion = "qualify it, e.g. " + f.Candidates[0] + "." + f.Column
		}
	case sql.FindingGroupingMismatch:
		if f.Column != "*" {
			suggestion = "add " + f.Column + " to GROUP BY or wrap it in an aggregate"
		} else {
			suggestion = "list the grouped columns explicitly"
		}
	}
	return errorIssue(code, f.String(), suggestion)
}

func errorIssue(code models.IssueCode, msg, suggestion string) models.Issue {
	return models.Issue{Code: code, Message: msg, Severity: models.SeverityError, Suggestion: suggestion}
}
