package catalog

import (
	"regexp"
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// DefaultMaxPromptTables caps how many tables are described to a model.
const DefaultMaxPromptTables = 6

var wordPattern = regexp.MustCompile(`[a-z0-9_]+`)

// Words lower-cases and splits text into identifier-like tokens.
func Words(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

// NameForms returns a lower-cased name with its singular and plural forms.
func NameForms(name string) []string {
	n := strings.ToLower(name)
	forms := []string{n}
	for _, f := range []string{inflection.Singular(n), inflection.Plural(n)} {
		if f != n && f != forms[len(forms)-1] {
			forms = append(forms, f)
		}
	}
	return forms
}

type tableScore struct {
	idx   int
	score int
}

// Prune selects the tables most relevant to a question. Tables are scored by
// entity references, question words naming the table or its columns, and
// date entities matching temporal columns. At most max tables are kept; when
// nothing scores, the first max tables by name are returned.
func (c *Catalog) Prune(question string, entities []models.Entity, max int) []models.Table {
	if max <= 0 {
		max = DefaultMaxPromptTables
	}

	words := make(map[string]bool)
	for _, w := range Words(question) {
		words[w] = true
		words[inflection.Singular(w)] = true
	}

	entityTables := make(map[string]int)
	hasDate := false
	for _, e := range entities {
		switch e.Kind {
		case models.EntityDate:
			hasDate = true
		case models.EntityMetric, models.EntityDimension:
			if dot := strings.IndexByte(e.Normalized, '.'); dot > 0 {
				entityTables[strings.ToLower(e.Normalized[:dot])]++
			}
		}
	}

	var scored []tableScore
	for i, t := range c.tables {
		score := 4 * entityTables[strings.ToLower(t.Name)]
		for _, form := range NameForms(t.Name) {
			if words[form] {
				score += 3
				break
			}
		}
		temporal := false
		for _, col := range t.Columns {
			if matchesAny(words, col) {
				score++
			}
			temporal = temporal || col.IsTemporal()
		}
		// A date entity alone is not enough to select a table.
		if hasDate && temporal && score > 0 {
			score++
		}
		if score > 0 {
			scored = append(scored, tableScore{idx: i, score: score})
		}
	}

	if len(scored) == 0 {
		return c.firstByName(max)
	}

	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].score != scored[b].score {
			return scored[a].score > scored[b].score
		}
		return strings.ToLower(c.tables[scored[a].idx].Name) < strings.ToLower(c.tables[scored[b].idx].Name)
	})
	if len(scored) > max {
		scored = scored[:max]
	}

	out := make([]models.Table, len(scored))
	for i, s := range scored {
		out[i] = c.tables[s.idx].Clone()
	}
	return out
}

func matchesAny(words map[string]bool, col models.Column) bool {
	for _, form := range NameForms(col.Name) {
		if words[form] {
			return true
		}
	}
	for _, syn := range col.Synonyms {
		if words[strings.ToLower(syn)] {
			return true
		}
	}
	return false
}

func (c *Catalog) firstByName(max int) []models.Table {
	names := c.TableNames()
	if len(names) > max {
		names = names[:max]
	}
	out := make([]models.Table, 0, len(names))
	for _, n := range names {
		t, _ := c.Table(n)
		out = append(out, t)
	}
	return out
}
