package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/embedding"
	"github.com/ekaya-inc/datagenie-engine/pkg/index"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
)

// DefaultContextK is the number of examples retrieved when the caller does not
// say otherwise.
const DefaultContextK = 3

// ContextRetriever looks up previously answered questions similar to the
// current one.
type ContextRetriever interface {
	// Retrieve returns at most k hits from idx. A failed embedding degrades to
	// an empty context plus a warning issue; only a done context is an error.
	Retrieve(ctx context.Context, idx index.Index, question string, entities []models.Entity, k int) (models.RetrievedContext, *models.Issue, error)
}

type contextRetriever struct {
	embedder embedding.Embedder
	logger   *zap.Logger
}

var _ ContextRetriever = (*contextRetriever)(nil)

// NewContextRetriever creates a retriever that embeds questions with embedder.
func NewContextRetriever(embedder embedding.Embedder, logger *zap.Logger) ContextRetriever {
	return &contextRetriever{
		embedder: embedder,
		logger:   logger.Named("context-retriever"),
	}
}

// RetrievalText is the text embedded for a question: the question followed
// by the normalized value of every entity.
func RetrievalText(question string, entities []models.Entity) string {
	var b strings.Builder
	b.WriteString(question)
	for _, e := range entities {
		if e.Normalized == "" {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(strings.NewReplacer("_", " ", ".", " ").Replace(e.Normalized))
	}
	return b.String()
}

func (r *contextRetriever) Retrieve(ctx context.Context, idx index.Index, question string, entities []models.Entity, k int) (models.RetrievedContext, *models.Issue, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if idx == nil || idx.Len() == 0 || k <= 0 {
		return models.RetrievedContext{}, nil, nil
	}

	vector, err := r.embedder.Embed(ctx, RetrievalText(question, entities))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, nil, ctxErr
		}
		r.logger.Warn("Embedding failed, continuing without examples",
			zap.String("error", logging.SanitizeError(err)))
		return models.RetrievedContext{}, skipped("embedding failed: " + logging.SanitizeError(err)), nil
	}

	hits, err := idx.Nearest(ctx, vector, k)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		r.logger.Warn("Index lookup failed, continuing without examples", zap.Error(err))
		return models.RetrievedContext{}, skipped("index lookup failed: " + err.Error()), nil
	}

	r.logger.Debug("Retrieved context",
		zap.Int("hits", len(hits)),
		zap.Float64("top_similarity", hits.TopSimilarity()))
	return hits, nil, nil
}

func skipped(msg string) *models.Issue {
	return &models.Issue{
		Code:     models.IssueRetrievalSkipped,
		Message:  msg,
		Severity: models.SeverityWarning,
	}
}
