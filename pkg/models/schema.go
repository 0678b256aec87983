package models

import "strings"

// Semantic tags attached to catalog columns. They steer entity extraction
// and schema pruning; unknown tags are carried through untouched.
const (
	TagMetric    = "metric"
	TagMeasure   = "measure"
	TagDimension = "dimension"
	TagTemporal  = "temporal"
	TagKey       = "key"
	TagCurrency  = "currency"
)

// Table describes one queryable relation in the schema catalog.
type Table struct {
	Name        string   `json:"name" yaml:"name"`
	Schema      string   `json:"schema,omitempty" yaml:"schema,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Columns     []Column `json:"columns" yaml:"columns"`
}

// Column describes one column of a catalog table.
type Column struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Nullable     bool     `json:"nullable" yaml:"nullable"`
	Description  string   `json:"description,omitempty" yaml:"description,omitempty"`
	SemanticTags []string `json:"semantic_tags,omitempty" yaml:"semantic_tags,omitempty"`
	Synonyms     []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// HasTag reports whether the column carries the given semantic tag (case-insensitive).
func (c Column) HasTag(tag string) bool {
	for _, t := range c.SemanticTags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// IsNumeric reports whether the column type is a numeric SQL type.
func (c Column) IsNumeric() bool {
	t := normalizeType(c.Type)
	if strings.HasPrefix(t, "interval") {
		return false
	}
	for _, p := range []string{"int", "numeric", "decimal", "float", "double", "real", "money", "number", "bigint", "smallint"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

// IsTemporal reports whether the column holds dates or timestamps.
func (c Column) IsTemporal() bool {
	if c.HasTag(TagTemporal) {
		return true
	}
	t := normalizeType(c.Type)
	return strings.HasPrefix(t, "date") || strings.HasPrefix(t, "timestamp") || strings.HasPrefix(t, "time")
}

// IsText reports whether the column holds character data.
func (c Column) IsText() bool {
	t := normalizeType(c.Type)
	for _, p := range []string{"text", "varchar", "char", "nvarchar", "nchar", "string", "character", "citext"} {
		if strings.HasPrefix(t, p) {
			return true
		}
	}
	return false
}

func normalizeType(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := t
	out.Columns = make([]Column, len(t.Columns))
	for i, c := range t.Columns {
		c.SemanticTags = append([]string(nil), c.SemanticTags...)
		c.Synonyms = append([]string(nil), c.Synonyms...)
		out.Columns[i] = c
	}
	return out
}
