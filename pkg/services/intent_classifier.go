package services

import (
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// DefaultIntentThreshold is the softmax confidence below which a question is
// classified as unknown.
const DefaultIntentThreshold = 0.45

const (
	strongCue        = 2.0
	weakCue          = 1.0
	entityCue        = 0.5
	unknownBaseScore = 1.0
)

// IntentClassifier assigns a single intent to a question.
type IntentClassifier interface {
	Classify(question string, entities []models.Entity) models.Intent
}

type intentCue struct {
	phrase string
	weight float64
}

// Cues are matched as whole words against the lowercased question.
var intentCues = map[models.IntentLabel][]intentCue{
	models.IntentAggregate: {
		{"total", strongCue}, {"sum", strongCue}, {"how many", strongCue}, {"count", strongCue},
		{"average", strongCue}, {"avg", strongCue}, {"mean", weakCue}, {"number of", weakCue},
		{"overall", weakCue}, {"maximum", weakCue}, {"minimum", weakCue}, {"max", weakCue}, {"min", weakCue},
	},
	models.IntentTrend: {
		{"trend", strongCue}, {"over time", strongCue}, {"growth", strongCue}, {"monthly", weakCue},
		{"weekly", weakCue}, {"daily", weakCue}, {"yearly", weakCue}, {"per month", weakCue},
		{"each month", weakCue}, {"changed", weakCue}, {"history", weakCue}, {"evolution", strongCue},
	},
	models.IntentComparison: {
		{"compare", strongCue}, {"comparison", strongCue}, {"versus", strongCue}, {"vs", strongCue},
		{"difference between", strongCue}, {"than", weakCue}, {"relative to", weakCue},
		{"against", weakCue}, {"better", weakCue}, {"worse", weakCue},
	},
	models.IntentLookup: {
		{"list", strongCue}, {"show", weakCue}, {"find", weakCue}, {"which", weakCue}, {"what is", weakCue},
		{"who", strongCue}, {"details", strongCue}, {"display", weakCue}, {"get", weakCue}, {"names", weakCue},
	},
}

// Tie-breaking order among known labels.
var intentOrder = []models.IntentLabel{
	models.IntentAggregate,
	models.IntentTrend,
	models.IntentComparison,
	models.IntentLookup,
}

type intentClassifier struct {
	threshold float64
	logger    *zap.Logger
}

var _ IntentClassifier = (*intentClassifier)(nil)

// NewIntentClassifier creates a keyword classifier. A threshold outside (0, 1)
// falls back to DefaultIntentThreshold.
func NewIntentClassifier(threshold float64, logger *zap.Logger) IntentClassifier {
	if threshold <= 0 || threshold >= 1 {
		threshold = DefaultIntentThreshold
	}
	return &intentClassifier{
		threshold: threshold,
		logger:    logger.Named("intent-classifier"),
	}
}

// Classify scores each label from cue phrases and entity kinds and converts
// the scores to a softmax distribution that includes a fixed unknown score.
// When the best known label does not reach the threshold the intent is
// unknown and RawLabel keeps the best guess.
func (c *intentClassifier) Classify(question string, entities []models.Entity) models.Intent {
	text := " " + strings.Join(strings.Fields(strings.ToLower(stripPunctuation(question))), " ") + " "

	raw := make(map[models.IntentLabel]float64, len(intentOrder))
	for _, label := range intentOrder {
		for _, cue := range intentCues[label] {
			if strings.Contains(text, " "+cue.phrase+" ") {
				raw[label] += cue.weight
			}
		}
	}
	for _, e := range entities {
		switch e.Kind {
		case models.EntityMetric:
			raw[models.IntentAggregate] += entityCue
		case models.EntityDate:
			raw[models.IntentTrend] += entityCue
		}
	}

	scores := softmax(raw)

	best := intentOrder[0]
	for _, label := range intentOrder[1:] {
		if scores[label] > scores[best] {
			best = label
		}
	}

	intent := models.Intent{Label: best, Confidence: scores[best], Scores: scores}
	if scores[best] < c.threshold {
		intent.RawLabel = best
		intent.Label = models.IntentUnknown
	}

	c.logger.Debug("Classified intent",
		zap.String("label", string(intent.Label)),
		zap.String("raw_label", string(best)),
		zap.Float64("confidence", intent.Confidence))
	return intent
}

func softmax(raw map[models.IntentLabel]float64) map[models.IntentLabel]float64 {
	scores := make(map[models.IntentLabel]float64, len(intentOrder)+1)
	sum := math.Exp(unknownBaseScore)
	for _, label := range intentOrder {
		sum += math.Exp(raw[label])
	}
	for _, label := range intentOrder {
		scores[label] = math.Exp(raw[label]) / sum
	}
	scores[models.IntentUnknown] = math.Exp(unknownBaseScore) / sum
	return scores
}

func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', '.', ',', ';', ':', '(', ')', '"', '\'':
			return ' '
		}
		return r
	}, s)
}
