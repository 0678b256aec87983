package services

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// MaxQuestionLength bounds the accepted question size in bytes.
const MaxQuestionLength = 2000

// Confidence assigned to each kind of match.
const (
	confExactDate      = 0.95
	confRelativeDate   = 0.9
	confMonthName      = 0.85
	confYear           = 0.8
	confGranularity    = 0.6
	confQuoted         = 0.9
	confNumber         = 0.6
	confByDimension    = 0.9
	confColumnUnique   = 0.85
	confColumnShared   = 0.7
	confUnknownGroupBy = 0.5
)

// EntityExtractor pulls typed spans out of a question.
type EntityExtractor interface {
	// Extract returns non-overlapping entities ordered by start offset.
	// An empty question fails with *apperrors.InvalidInputError.
	Extract(question string) ([]models.Entity, error)
}

// columnRef is a catalog column a lexicon term resolves to.
type columnRef struct {
	table  string
	column string
}

func (r columnRef) String() string { return r.table + "." + r.column }

// Lexicon maps question words onto catalog columns. It is built once per
// snapshot and never mutated.
type Lexicon struct {
	metrics    map[string][]columnRef
	dimensions map[string][]columnRef
	tables     map[string]string
	maxWords   int
}

// NewLexicon indexes every metric and dimension column of the catalog under
// its name, singular and plural forms, the spaced form of snake_case names and
// its synonyms. Key and temporal columns are not indexed.
func NewLexicon(cat *catalog.Catalog) *Lexicon {
	lx := &Lexicon{
		metrics:    make(map[string][]columnRef),
		dimensions: make(map[string][]columnRef),
		tables:     make(map[string]string),
		maxWords:   1,
	}

	for _, t := range cat.Tables() {
		for _, form := range catalog.NameForms(t.Name) {
			lx.tables[form] = t.Name
		}
		for _, col := range t.Columns {
			kind := columnKind(col)
			if kind == "" {
				continue
			}
			ref := columnRef{table: t.Name, column: col.Name}
			terms := catalog.NameForms(col.Name)
			for _, syn := range col.Synonyms {
				terms = append(terms, catalog.NameForms(strings.ReplaceAll(strings.TrimSpace(syn), " ", "_"))...)
			}
			for _, term := range terms {
				lx.add(lx.terms(kind), term, ref)
			}
		}
	}

	for _, refs := range [](map[string][]columnRef){lx.metrics, lx.dimensions} {
		for term, list := range refs {
			sort.Slice(list, func(i, j int) bool { return list[i].String() < list[j].String() })
			refs[term] = list
		}
	}
	return lx
}

// columnKind classifies a column for the lexicon. Key and temporal columns
// return the empty kind.
func columnKind(col models.Column) models.EntityKind {
	name := strings.ToLower(col.Name)
	if col.HasTag(models.TagKey) || name == "id" || strings.HasSuffix(name, "_id") || col.IsTemporal() {
		return ""
	}
	switch {
	case col.HasTag(models.TagMetric), col.HasTag(models.TagMeasure):
		return models.EntityMetric
	case col.HasTag(models.TagDimension):
		return models.EntityDimension
	case col.IsNumeric():
		return models.EntityMetric
	case col.IsText():
		return models.EntityDimension
	default:
		return ""
	}
}

func (lx *Lexicon) terms(kind models.EntityKind) map[string][]columnRef {
	if kind == models.EntityMetric {
		return lx.metrics
	}
	return lx.dimensions
}

func (lx *Lexicon) add(m map[string][]columnRef, term string, ref columnRef) {
	term = strings.ToLower(term)
	if term == "" {
		return
	}
	for _, existing := range m[term] {
		if existing == ref {
			return
		}
	}
	m[term] = append(m[term], ref)
	if n := strings.Count(term, "_") + 1; n > lx.maxWords {
		lx.maxWords = n
	}
}

// lookup resolves a snake_case term. The singular form of the last word is
// tried as well.
func (lx *Lexicon) lookup(term string) (models.EntityKind, []columnRef) {
	candidates := []string{term}
	if idx := strings.LastIndexByte(term, '_'); idx >= 0 {
		candidates = append(candidates, term[:idx+1]+inflection.Singular(term[idx+1:]))
	} else {
		candidates = append(candidates, inflection.Singular(term))
	}
	for _, c := range candidates {
		if refs, ok := lx.metrics[c]; ok {
			return models.EntityMetric, refs
		}
		if refs, ok := lx.dimensions[c]; ok {
			return models.EntityDimension, refs
		}
	}
	return "", nil
}

var (
	wordSpanPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

	relativeDayPattern    = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow)\b`)
	relativePeriodPattern = regexp.MustCompile(`(?i)\b(last|this|next|previous|past|current)\s+(week|month|quarter|year)\b`)
	relativeRangePattern  = regexp.MustCompile(`(?i)\b(last|past|previous|next)\s+(\d{1,4})\s+(day|week|month|quarter|year)s?\b`)
	toDatePattern         = regexp.MustCompile(`(?i)\b(ytd|mtd|qtd|year[\s-]to[\s-]date|month[\s-]to[\s-]date|quarter[\s-]to[\s-]date)\b`)
	isoDatePattern        = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	quarterYearPattern    = regexp.MustCompile(`(?i)\bq([1-4])\s*(\d{4})\b`)
	yearQuarterPattern    = regexp.MustCompile(`(?i)\b(\d{4})\s*q([1-4])\b`)
	monthPattern          = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sept|sep|oct|nov|dec)\b(?:\s+(\d{4})\b)?`)
	yearPattern           = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	granularityPattern    = regexp.MustCompile(`(?i)\b(daily|weekly|monthly|quarterly|yearly|annually|per\s+(?:day|week|month|quarter|year)|each\s+(?:day|week|month|quarter|year))\b`)

	quotedPattern = regexp.MustCompile(`'([^']+)'|"([^"]+)"`)
	numberPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	byPattern     = regexp.MustCompile(`(?i)\b(?:by|per)\s+([A-Za-z_][A-Za-z0-9_]*(?:\s+[A-Za-z_][A-Za-z0-9_]*)?)`)
)

var monthNumbers = map[string]int{
	"jan": 1, "january": 1, "feb": 2, "february": 2, "mar": 3, "march": 3,
	"apr": 4, "april": 4, "may": 5, "jun": 6, "june": 6, "jul": 7, "july": 7,
	"aug": 8, "august": 8, "sep": 9, "sept": 9, "september": 9,
	"oct": 10, "october": 10, "nov": 11, "november": 11, "dec": 12, "december": 12,
}

// Time units that follow "by"/"per" and are granularity, not dimensions.
var timeUnits = map[string]bool{
	"day": true, "days": true, "date": true, "week": true, "weeks": true,
	"month": true, "months": true, "quarter": true, "quarters": true,
	"year": true, "years": true,
}

type entityExtractor struct {
	lexicon *Lexicon
	logger  *zap.Logger
}

var _ EntityExtractor = (*entityExtractor)(nil)

// NewEntityExtractor creates an extractor over a prebuilt lexicon.
func NewEntityExtractor(lexicon *Lexicon, logger *zap.Logger) EntityExtractor {
	return &entityExtractor{
		lexicon: lexicon,
		logger:  logger.Named("entity-extractor"),
	}
}

// ValidateQuestion rejects empty, oversized or non-text questions.
func ValidateQuestion(question string) error {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return apperrors.NewInvalidInput("question", "must not be empty")
	}
	if len(question) > MaxQuestionLength {
		return apperrors.NewInvalidInput("question", "exceeds "+strconv.Itoa(MaxQuestionLength)+" bytes")
	}
	if !wordSpanPattern.MatchString(trimmed) {
		return apperrors.NewInvalidInput("question", "contains no words")
	}
	return nil
}

func (e *entityExtractor) Extract(question string) ([]models.Entity, error) {
	if err := ValidateQuestion(question); err != nil {
		return nil, err
	}

	focus := e.focusTables(question)

	var candidates []models.Entity
	candidates = append(candidates, e.dates(question)...)
	candidates = append(candidates, e.values(question)...)
	candidates = append(candidates, e.groupings(question, focus)...)
	candidates = append(candidates, e.columns(question, focus)...)

	entities := resolveOverlaps(candidates)
	e.logger.Debug("Extracted entities",
		zap.Int("candidates", len(candidates)),
		zap.Int("entities", len(entities)))
	return entities, nil
}

func span(question string, loc []int, kind models.EntityKind, normalized string, conf float64) models.Entity {
	return models.Entity{
		Text:       question[loc[0]:loc[1]],
		Kind:       kind,
		Normalized: normalized,
		Confidence: conf,
		Start:      loc[0],
		End:        loc[1],
	}
}

func (e *entityExtractor) dates(q string) []models.Entity {
	var out []models.Entity

	for _, m := range relativeDayPattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, strings.ToLower(q[m[2]:m[3]]), confRelativeDate))
	}
	for _, m := range relativePeriodPattern.FindAllStringSubmatchIndex(q, -1) {
		rel := strings.ToLower(q[m[2]:m[3]])
		switch rel {
		case "previous", "past":
			rel = "last"
		case "current":
			rel = "this"
		}
		out = append(out, span(q, m[:2], models.EntityDate, rel+"_"+strings.ToLower(q[m[4]:m[5]]), confRelativeDate))
	}
	for _, m := range relativeRangePattern.FindAllStringSubmatchIndex(q, -1) {
		rel := "last"
		if strings.EqualFold(q[m[2]:m[3]], "next") {
			rel = "next"
		}
		n, _ := strconv.Atoi(q[m[4]:m[5]])
		unit := strings.ToLower(q[m[6]:m[7]]) + "s"
		out = append(out, span(q, m[:2], models.EntityDate, rel+"_"+strconv.Itoa(n)+"_"+unit, confRelativeDate))
	}
	for _, m := range toDatePattern.FindAllStringSubmatchIndex(q, -1) {
		word := strings.ToLower(q[m[2]:m[3]])
		out = append(out, span(q, m[:2], models.EntityDate, string(word[0])+"td", confRelativeDate))
	}
	for _, m := range isoDatePattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, q[m[0]:m[1]], confExactDate))
	}
	for _, m := range quarterYearPattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, q[m[4]:m[5]]+"-Q"+q[m[2]:m[3]], confExactDate))
	}
	for _, m := range yearQuarterPattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, q[m[2]:m[3]]+"-Q"+q[m[4]:m[5]], confExactDate))
	}
	for _, m := range monthPattern.FindAllStringSubmatchIndex(q, -1) {
		name := strings.ToLower(q[m[2]:m[3]])
		hasYear := m[4] >= 0
		// "may" is too common a word to stand alone.
		if name == "may" && !hasYear {
			continue
		}
		month := monthNumbers[name]
		if hasYear {
			out = append(out, span(q, m[:2], models.EntityDate, q[m[4]:m[5]]+"-"+twoDigits(month), confMonthName))
		} else {
			out = append(out, span(q, m[:2], models.EntityDate, "month_"+twoDigits(month), confMonthName))
		}
	}
	for _, m := range yearPattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, "year_"+q[m[2]:m[3]], confYear))
	}
	for _, m := range granularityPattern.FindAllStringSubmatchIndex(q, -1) {
		out = append(out, span(q, m[:2], models.EntityDate, "per_"+granularityUnit(q[m[2]:m[3]]), confGranularity))
	}
	return out
}

func granularityUnit(word string) string {
	w := strings.ToLower(word)
	if fields := strings.Fields(w); len(fields) == 2 {
		return fields[1]
	}
	switch w {
	case "daily":
		return "day"
	case "yearly", "annually":
		return "year"
	default:
		return strings.TrimSuffix(w, "ly")
	}
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func (e *entityExtractor) values(q string) []models.Entity {
	var out []models.Entity
	for _, m := range quotedPattern.FindAllStringSubmatchIndex(q, -1) {
		var inner string
		if m[2] >= 0 {
			inner = q[m[2]:m[3]]
		} else {
			inner = q[m[4]:m[5]]
		}
		out = append(out, span(q, m[:2], models.EntityValue, inner, confQuoted))
	}
	for _, m := range numberPattern.FindAllStringIndex(q, -1) {
		out = append(out, span(q, m, models.EntityValue, q[m[0]:m[1]], confNumber))
	}
	return out
}

// groupings finds "by <column>" phrases. A phrase naming a time unit is left
// to the granularity pattern.
func (e *entityExtractor) groupings(q string, focus map[string]bool) []models.Entity {
	var out []models.Entity
	for _, m := range byPattern.FindAllStringSubmatchIndex(q, -1) {
		phrase := strings.ToLower(q[m[2]:m[3]])
		words := strings.Fields(phrase)
		if timeUnits[words[0]] {
			continue
		}

		// Prefer the two-word column name, then the first word.
		matched := false
		for n := len(words); n >= 1 && !matched; n-- {
			kind, refs := e.lexicon.lookup(strings.Join(words[:n], "_"))
			if kind != models.EntityDimension {
				continue
			}
			end := m[2] + wordsEnd(q[m[2]:m[3]], n)
			out = append(out, span(q, []int{m[0], end}, models.EntityDimension,
				pick(refs, focus).String(), confByDimension))
			matched = true
		}
		if !matched {
			end := m[2] + wordsEnd(q[m[2]:m[3]], 1)
			out = append(out, span(q, []int{m[0], end}, models.EntityDimension, inflection.Singular(words[0]), confUnknownGroupBy))
		}
	}
	return out
}

// wordsEnd returns the byte offset just past the n-th word of s.
func wordsEnd(s string, n int) int {
	locs := wordSpanPattern.FindAllStringIndex(s, n)
	if len(locs) == 0 {
		return 0
	}
	return locs[len(locs)-1][1]
}

// columns matches n-grams of question words against the lexicon, longest first.
func (e *entityExtractor) columns(q string, focus map[string]bool) []models.Entity {
	locs := wordSpanPattern.FindAllStringIndex(q, -1)
	words := make([]string, len(locs))
	for i, l := range locs {
		words[i] = strings.ToLower(q[l[0]:l[1]])
	}

	var out []models.Entity
	for i := range words {
		for n := e.lexicon.maxWords; n >= 1; n-- {
			if i+n > len(words) {
				continue
			}
			kind, refs := e.lexicon.lookup(strings.Join(words[i:i+n], "_"))
			if kind == "" {
				continue
			}
			conf := confColumnUnique
			if len(refs) > 1 {
				conf = confColumnShared
			}
			out = append(out, span(q, []int{locs[i][0], locs[i+n-1][1]}, kind, pick(refs, focus).String(), conf))
			break
		}
	}
	return out
}

// focusTables returns the tables a question points at: those it names and
// those owning a column only one table has.
func (e *entityExtractor) focusTables(q string) map[string]bool {
	focus := make(map[string]bool)
	for _, w := range wordSpanPattern.FindAllString(strings.ToLower(q), -1) {
		if t, ok := e.lexicon.tables[w]; ok {
			focus[t] = true
		}
		if _, refs := e.lexicon.lookup(w); len(refs) == 1 {
			focus[refs[0].table] = true
		}
	}
	return focus
}

// pick chooses among columns sharing a name, preferring a focus table.
func pick(refs []columnRef, focus map[string]bool) columnRef {
	for _, r := range refs {
		if focus[r.table] {
			return r
		}
	}
	return refs[0]
}

// resolveOverlaps keeps the highest-confidence span of every overlapping
// group (ties: longer span, then earlier) and drops unknown kinds. The result
// is ordered by start offset.
func resolveOverlaps(candidates []models.Entity) []models.Entity {
	valid := make([]models.Entity, 0, len(candidates))
	for _, c := range candidates {
		if c.Kind.IsValid() && c.End > c.Start {
			valid = append(valid, c)
		}
	}

	sort.SliceStable(valid, func(i, j int) bool {
		a, b := valid[i], valid[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if la, lb := a.End-a.Start, b.End-b.Start; la != lb {
			return la > lb
		}
		return a.Start < b.Start
	})

	kept := make([]models.Entity, 0, len(valid))
	for _, c := range valid {
		overlaps := false
		for _, k := range kept {
			if c.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
