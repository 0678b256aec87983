package catalog

import (
	"strings"
)

// maxSuggestionDistance bounds how far a name may be from a catalog name
// before it is no longer offered as a close match.
func maxSuggestionDistance(name string) int {
	d := len(name) / 3
	if d < 1 {
		return 1
	}
	if d > 3 {
		return 3
	}
	return d
}

// SuggestTable returns the closest table name to name, or "" when nothing is close.
func (c *Catalog) SuggestTable(name string) string {
	candidates := make([]string, len(c.tables))
	for i, t := range c.tables {
		candidates[i] = t.Name
	}
	return closest(name, candidates)
}

// SuggestColumn returns the closest column among the given tables (all
// tables when none are given) as (table, column). Both are "" when nothing is close.
func (c *Catalog) SuggestColumn(column string, tables ...string) (string, string) {
	var idxs []int
	if len(tables) == 0 {
		for i := range c.tables {
			idxs = append(idxs, i)
		}
	} else {
		for _, t := range tables {
			if idx, ok := c.tableIndex(t); ok {
				idxs = append(idxs, idx)
			}
		}
	}

	bestTable, bestCol := "", ""
	bestDist := maxSuggestionDistance(column) + 1
	target := strings.ToLower(column)
	for _, idx := range idxs {
		for _, col := range c.tables[idx].Columns {
			d := Levenshtein(target, strings.ToLower(col.Name))
			if d < bestDist {
				bestDist = d
				bestTable, bestCol = c.tables[idx].Name, col.Name
			}
		}
	}
	return bestTable, bestCol
}

func closest(name string, candidates []string) string {
	target := strings.ToLower(name)
	best := ""
	bestDist := maxSuggestionDistance(name) + 1
	for _, cand := range candidates {
		d := Levenshtein(target, strings.ToLower(cand))
		if d < bestDist {
			bestDist = d
			best = cand
		}
	}
	return best
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
