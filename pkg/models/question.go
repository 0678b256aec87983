package models

// EntityKind classifies a span recognised in a question.
type EntityKind string

const (
	EntityDate      EntityKind = "date"
	EntityMetric    EntityKind = "metric"
	EntityDimension EntityKind = "dimension"
	EntityValue     EntityKind = "value"
)

// ValidEntityKinds lists every kind the extractor may emit.
var ValidEntityKinds = []EntityKind{EntityDate, EntityMetric, EntityDimension, EntityValue}

// IsValid reports whether k is one of the known entity kinds.
func (k EntityKind) IsValid() bool {
	for _, v := range ValidEntityKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Entity is a typed span of the question. Start/End are byte offsets into
// the original question text, End exclusive.
type Entity struct {
	Text       string     `json:"text"`
	Kind       EntityKind `json:"kind"`
	Normalized string     `json:"normalized"`
	Confidence float64    `json:"confidence"`
	Start      int        `json:"start"`
	End        int        `json:"end"`
}

// Overlaps reports whether the two spans share at least one byte.
func (e Entity) Overlaps(other Entity) bool {
	return e.Start < other.End && other.Start < e.End
}

// IntentLabel is the closed set of question intents.
type IntentLabel string

const (
	IntentAggregate  IntentLabel = "aggregate"
	IntentTrend      IntentLabel = "trend"
	IntentComparison IntentLabel = "comparison"
	IntentLookup     IntentLabel = "lookup"
	IntentUnknown    IntentLabel = "unknown"
)

// Intent is the single classification of a question.
type Intent struct {
	Label      IntentLabel `json:"label"`
	Confidence float64     `json:"confidence"`
	// RawLabel is the best-scoring label before the confidence threshold was applied.
	RawLabel IntentLabel `json:"raw_label,omitempty"`
	// Scores holds the normalized score of every label.
	Scores map[IntentLabel]float64 `json:"scores,omitempty"`
}

// ContextExample is a prior question/query pair used as few-shot context.
type ContextExample struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Query    string `json:"query"`
}

// ContextHit is a retrieved example with its similarity to the question in [0,1].
type ContextHit struct {
	Example    ContextExample `json:"example"`
	Similarity float64        `json:"similarity"`
}

// RetrievedContext is ordered by similarity, highest first.
type RetrievedContext []ContextHit

// TopSimilarity returns the highest similarity, or 0 for an empty context.
func (rc RetrievedContext) TopSimilarity() float64 {
	if len(rc) == 0 {
		return 0
	}
	return rc[0].Similarity
}
