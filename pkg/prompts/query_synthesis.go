// Package prompts builds the instructions sent to generation backends.
package prompts

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// DefaultDialect is described to the model when no dialect is configured.
const DefaultDialect = "PostgreSQL"

// SynthesisContext is everything the model sees about one question.
type SynthesisContext struct {
	Question string
	Intent   models.Intent
	Entities []models.Entity
	Tables   []models.Table
	Examples models.RetrievedContext
	Dialect  string
}

// intentGuidance tells the model what query shape each intent usually needs.
var intentGuidance = map[models.IntentLabel]string{
	models.IntentAggregate:  "a single aggregate (SUM, COUNT, AVG, MIN or MAX), optionally grouped",
	models.IntentTrend:      "values over time, grouped by a truncated date column and ordered by it",
	models.IntentComparison: "values side by side for the groups or periods being compared",
	models.IntentLookup:     "rows or attributes matching the filters, without aggregation unless asked",
	models.IntentUnknown:    "whatever shape best answers the question",
}

// BuildSynthesisSystemMessage returns the system message for query synthesis.
func BuildSynthesisSystemMessage(dialect string) string {
	if dialect == "" {
		dialect = DefaultDialect
	}
	return fmt.Sprintf(`You are a %s expert. You translate business questions into exactly one read-only SELECT statement over the schema you are given. You never modify data or schema, and you only use the tables and columns listed.`, dialect)
}

// BuildSynthesisPrompt creates the user prompt for the first synthesis attempt.
func BuildSynthesisPrompt(sc SynthesisContext) string {
	var prompt strings.Builder

	prompt.WriteString("# Question to SQL\n\n")
	writeSchema(&prompt, sc.Tables)
	writeUnderstanding(&prompt, sc.Intent, sc.Entities)
	writeExamples(&prompt, sc.Examples)

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(sc.Question)
	prompt.WriteString("\n\n")

	writeRules(&prompt)
	writeOutputFormat(&prompt)
	return prompt.String()
}

// BuildStrictPrompt asks again after a reply that contained no statement.
func BuildStrictPrompt(sc SynthesisContext, previousReply string) string {
	var prompt strings.Builder

	prompt.WriteString(BuildSynthesisPrompt(sc))
	prompt.WriteString("## Previous Reply Was Rejected\n\n")
	prompt.WriteString("Your previous reply did not contain a usable SELECT statement")
	if snippet := truncate(strings.TrimSpace(previousReply), 200); snippet != "" {
		prompt.WriteString(fmt.Sprintf(":\n\n> %s\n", strings.ReplaceAll(snippet, "\n", "\n> ")))
	}
	prompt.WriteString("\n\nReply with the JSON object only. Do not explain, do not ask questions, do not use markdown.\n")
	return prompt.String()
}

// BuildRepairPrompt asks the model to fix a statement that failed validation.
func BuildRepairPrompt(sc SynthesisContext, draft string, issues []models.Issue) string {
	var prompt strings.Builder

	prompt.WriteString("# Repair SQL\n\n")
	writeSchema(&prompt, sc.Tables)
	writeUnderstanding(&prompt, sc.Intent, sc.Entities)

	prompt.WriteString("## Question\n\n")
	prompt.WriteString(sc.Question)
	prompt.WriteString("\n\n")

	prompt.WriteString("## Rejected Statement\n\n")
	prompt.WriteString("```sql\n")
	prompt.WriteString(strings.TrimSpace(draft))
	prompt.WriteString("\n```\n\n")

	prompt.WriteString("## Problems Found\n\n")
	for _, is := range issues {
		prompt.WriteString(fmt.Sprintf("- [%s] %s", is.Code, is.Message))
		if is.Suggestion != "" {
			prompt.WriteString(fmt.Sprintf(" (suggestion: %s)", is.Suggestion))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\nFix every problem above and change nothing else.\n\n")

	writeRules(&prompt)
	writeOutputFormat(&prompt)
	return prompt.String()
}

func writeSchema(prompt *strings.Builder, tables []models.Table) {
	prompt.WriteString("## Database Schema\n\n")
	for _, table := range tables {
		prompt.WriteString(fmt.Sprintf("### %s\n", table.Name))
		if table.Description != "" {
			prompt.WriteString(table.Description + "\n")
		}
		prompt.WriteString("Columns:\n")
		for _, col := range table.Columns {
			flags := ""
			if len(col.SemanticTags) > 0 {
				flags = fmt.Sprintf(" [%s]", strings.Join(col.SemanticTags, ", "))
			}
			nullInfo := ""
			if col.Nullable {
				nullInfo = " (nullable)"
			}
			desc := ""
			if col.Description != "" {
				desc = " - " + col.Description
			}
			prompt.WriteString(fmt.Sprintf("- %s (%s)%s%s%s\n", col.Name, col.Type, flags, nullInfo, desc))
		}
		prompt.WriteString("\n")
	}
}

func writeUnderstanding(prompt *strings.Builder, intent models.Intent, entities []models.Entity) {
	prompt.WriteString("## Question Analysis\n\n")
	label := intent.Label
	if label == "" {
		label = models.IntentUnknown
	}
	prompt.WriteString(fmt.Sprintf("- **Intent**: %s, expect %s\n", label, intentGuidance[label]))
	for _, e := range entities {
		prompt.WriteString(fmt.Sprintf("- **%s**: %q", e.Kind, e.Text))
		if e.Normalized != "" && e.Normalized != e.Text {
			prompt.WriteString(fmt.Sprintf(" → %s", e.Normalized))
		}
		prompt.WriteString("\n")
	}
	prompt.WriteString("\n")
}

func writeExamples(prompt *strings.Builder, examples models.RetrievedContext) {
	if len(examples) == 0 {
		return
	}
	prompt.WriteString("## Similar Answered Questions\n\n")
	for i, hit := range examples {
		prompt.WriteString(fmt.Sprintf("Example %d: %s\n", i+1, hit.Example.Question))
		prompt.WriteString("```sql\n")
		prompt.WriteString(strings.TrimSpace(hit.Example.Query))
		prompt.WriteString("\n```\n\n")
	}
}

func writeRules(prompt *strings.Builder) {
	prompt.WriteString("## Rules\n\n")
	prompt.WriteString("- Write exactly one SELECT statement (a WITH clause is allowed).\n")
	prompt.WriteString("- Never use INSERT, UPDATE, DELETE, MERGE, DDL, SELECT INTO or transaction statements.\n")
	prompt.WriteString("- Use only the tables and columns listed in the schema.\n")
	prompt.WriteString("- Every selected column that is not aggregated must appear in GROUP BY.\n")
	prompt.WriteString("- Express relative dates with CURRENT_DATE and interval arithmetic.\n\n")
}

func writeOutputFormat(prompt *strings.Builder) {
	prompt.WriteString("## Output Format\n\n")
	prompt.WriteString("Respond in JSON with a single key `sql` holding the statement:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString(`{"sql": "SELECT region, SUM(amount) FROM sales GROUP BY region"}`)
	prompt.WriteString("\n```\n\n")
	prompt.WriteString("Return ONLY the JSON, no additional text.\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
