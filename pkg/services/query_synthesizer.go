package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/catalog"
	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/prompts"
	"github.com/ekaya-inc/datagenie-engine/pkg/sql"
)

// Generator produces model text for a routed request. *llm.Router implements it.
type Generator interface {
	Generate(ctx context.Context, req llm.GenerateRequest) (*llm.ModelOutput, error)
}

var _ Generator = (*llm.Router)(nil)

// SynthesisRequest is everything the synthesizer needs for one question.
type SynthesisRequest struct {
	RequestID  string
	Question   string
	Intent     models.Intent
	Entities   []models.Entity
	Context    models.RetrievedContext
	Catalog    *catalog.Catalog
	Hint       models.BackendHint
	Escalation llm.Escalation
}

// SynthesisOutcome carries the draft plus every routing decision taken to
// produce it. It is returned even when synthesis fails.
type SynthesisOutcome struct {
	Draft     *models.DraftQuery
	Decisions []models.RoutingDecision
	Attempts  int
}

// QuerySynthesizer turns a question into a draft query through a language model.
type QuerySynthesizer interface {
	// Synthesize generates a draft. A reply with no statement is retried once
	// with a stricter instruction before failing with *apperrors.SynthesisError.
	Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisOutcome, error)

	// Repair regenerates a draft with the validation issues appended. It is
	// always escalated as validation_rejected and never retried.
	Repair(ctx context.Context, req SynthesisRequest, draft *models.DraftQuery, issues []models.Issue) (*SynthesisOutcome, error)
}

// SynthesizerConfig tunes prompt construction.
type SynthesizerConfig struct {
	Dialect         string
	MaxPromptTables int
	Temperature     float64
	MaxTokens       int
}

// DefaultSynthesizerConfig returns deterministic settings for PostgreSQL.
func DefaultSynthesizerConfig() SynthesizerConfig {
	return SynthesizerConfig{
		Dialect:         prompts.DefaultDialect,
		MaxPromptTables: catalog.DefaultMaxPromptTables,
		Temperature:     0,
		MaxTokens:       1024,
	}
}

type querySynthesizer struct {
	generator Generator
	cfg       SynthesizerConfig
	logger    *zap.Logger
}

var _ QuerySynthesizer = (*querySynthesizer)(nil)

// NewQuerySynthesizer creates a synthesizer that generates through generator.
func NewQuerySynthesizer(generator Generator, cfg SynthesizerConfig, logger *zap.Logger) QuerySynthesizer {
	def := DefaultSynthesizerConfig()
	if cfg.Dialect == "" {
		cfg.Dialect = def.Dialect
	}
	if cfg.MaxPromptTables <= 0 {
		cfg.MaxPromptTables = def.MaxPromptTables
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &querySynthesizer{
		generator: generator,
		cfg:       cfg,
		logger:    logger.Named("query-synthesizer"),
	}
}

func (s *querySynthesizer) promptContext(req SynthesisRequest) prompts.SynthesisContext {
	return prompts.SynthesisContext{
		Question: req.Question,
		Intent:   req.Intent,
		Entities: req.Entities,
		Tables:   req.Catalog.Prune(req.Question, req.Entities, s.cfg.MaxPromptTables),
		Examples: req.Context,
		Dialect:  s.cfg.Dialect,
	}
}

func (s *querySynthesizer) prompt(user string) llm.Prompt {
	return llm.Prompt{
		System:      prompts.BuildSynthesisSystemMessage(s.cfg.Dialect),
		User:        user,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}
}

func (s *querySynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*SynthesisOutcome, error) {
	outcome := &SynthesisOutcome{}
	sc := s.promptContext(req)

	s.logger.Debug("Synthesizing query",
		zap.String("request_id", req.RequestID),
		zap.Int("prompt_tables", len(sc.Tables)),
		zap.Int("examples", len(sc.Examples)))

	out, err := s.generate(ctx, req, outcome, models.PurposeSynthesis, req.Escalation, prompts.BuildSynthesisPrompt(sc))
	if err != nil {
		return outcome, err
	}
	if draft := s.draft(out, req.Catalog); draft != nil {
		outcome.Draft = draft
		return outcome, nil
	}

	s.logger.Info("Reply held no statement, retrying with stricter instruction",
		zap.String("request_id", req.RequestID),
		zap.String("backend", string(out.Backend)),
		zap.String("reply", logging.SanitizeQuery(out.Text)))

	first := out.Text
	out, err = s.generate(ctx, req, outcome, models.PurposeStrictRetry, req.Escalation, prompts.BuildStrictPrompt(sc, first))
	if err != nil {
		return outcome, err
	}
	if draft := s.draft(out, req.Catalog); draft != nil {
		outcome.Draft = draft
		return outcome, nil
	}
	return outcome, &apperrors.SynthesisError{
		Attempts:  outcome.Attempts,
		RawOutput: out.Text,
		Cause:     errors.New("no statement found in model reply"),
	}
}

func (s *querySynthesizer) Repair(ctx context.Context, req SynthesisRequest, draft *models.DraftQuery, issues []models.Issue) (*SynthesisOutcome, error) {
	outcome := &SynthesisOutcome{}
	if draft == nil {
		return outcome, fmt.Errorf("repair requires a draft")
	}
	sc := s.promptContext(req)

	s.logger.Debug("Repairing query",
		zap.String("request_id", req.RequestID),
		zap.Int("issues", len(issues)))

	out, err := s.generate(ctx, req, outcome, models.PurposeRepair, llm.EscalationValidationRejected,
		prompts.BuildRepairPrompt(sc, draft.Text, issues))
	if err != nil {
		return outcome, err
	}
	repaired := s.draft(out, req.Catalog)
	if repaired == nil {
		return outcome, &apperrors.SynthesisError{
			Attempts:  outcome.Attempts,
			RawOutput: out.Text,
			Cause:     errors.New("no statement found in repair reply"),
		}
	}
	outcome.Draft = repaired
	return outcome, nil
}

func (s *querySynthesizer) generate(
	ctx context.Context,
	req SynthesisRequest,
	outcome *SynthesisOutcome,
	purpose models.RoutingPurpose,
	escalation llm.Escalation,
	user string,
) (*llm.ModelOutput, error) {
	outcome.Attempts++
	out, err := s.generator.Generate(ctx, llm.GenerateRequest{
		Prompt:     s.prompt(user),
		Hint:       req.Hint,
		Escalation: escalation,
		Purpose:    purpose,
		RequestID:  req.RequestID,
	})
	if out != nil {
		outcome.Decisions = append(outcome.Decisions, out.Decisions...)
	}
	return out, err
}

// draft builds a DraftQuery from a reply, or nil when it holds no statement.
// Target tables are the catalog tables the statement reads; a statement the
// grammar rejects keeps an empty set and is reported by validation.
func (s *querySynthesizer) draft(out *llm.ModelOutput, cat *catalog.Catalog) *models.DraftQuery {
	stmt := ExtractStatement(out.Text)
	if stmt == "" {
		return nil
	}
	d := &models.DraftQuery{
		Text:           stmt,
		TargetTables:   []string{},
		BackendUsed:    out.Backend,
		RawModelOutput: out.Text,
	}
	if q, err := sql.Parse(stmt); err == nil {
		if tables := sql.Analyze(q, cat).Tables; tables != nil {
			d.TargetTables = tables
		}
	}
	return d
}
