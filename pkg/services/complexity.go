package services

import "strings"

// ComplexityLevel is a coarse estimate of how hard a question is to answer.
type ComplexityLevel string

const (
	ComplexityLow    ComplexityLevel = "low"
	ComplexityMedium ComplexityLevel = "medium"
	ComplexityHigh   ComplexityLevel = "high"
)

var complexIndicators = []string{
	"join", "subquery", "having", "window function", "partition",
	"case when", "union", "intersect", "complex", "nested",
	"multiple tables", "across", "compare", "trend", "forecast",
}

var mediumIndicators = []string{
	"group by", "order by", "filter", "aggregate", "sum", "count",
	"average", "total", "by region", "by month", "top", "bottom",
}

// Complexity is the result of AnalyzeComplexity.
type Complexity struct {
	Level        ComplexityLevel `json:"level"`
	ComplexCount int             `json:"complex_indicators"`
	MediumCount  int             `json:"medium_indicators"`
}

// AnalyzeComplexity counts indicator substrings in the lowercased question.
// Two complex indicators, or one with two medium ones, make it high; one
// complex or two medium make it medium.
func AnalyzeComplexity(question string) Complexity {
	q := strings.ToLower(question)
	c := Complexity{Level: ComplexityLow}
	for _, ind := range complexIndicators {
		if strings.Contains(q, ind) {
			c.ComplexCount++
		}
	}
	for _, ind := range mediumIndicators {
		if strings.Contains(q, ind) {
			c.MediumCount++
		}
	}

	switch {
	case c.ComplexCount >= 2 || (c.ComplexCount >= 1 && c.MediumCount >= 2):
		c.Level = ComplexityHigh
	case c.MediumCount >= 2 || c.ComplexCount >= 1:
		c.Level = ComplexityMedium
	}
	return c
}
