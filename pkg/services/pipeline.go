package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/llm"
	"github.com/ekaya-inc/datagenie-engine/pkg/logging"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/observability"
)

// Stage names used for timings, spans and stage events.
const (
	StageExtract    = "extract"
	StageClassify   = "classify"
	StageRetrieve   = "retrieve"
	StageSynthesize = "synthesize"
	StageValidate   = "validate"
	StageRepair     = "repair"
	StageRevalidate = "revalidate"
)

// Options are per-request settings.
type Options struct {
	// K is the number of context examples to retrieve. Zero uses the
	// configured default.
	K           int
	BackendHint models.BackendHint
}

// PipelineConfig tunes request handling.
type PipelineConfig struct {
	DefaultK int
	// EscalateOnComplexity sends high-complexity questions to the remote
	// backend under the auto hint.
	EscalateOnComplexity bool
	BatchConcurrency     int
}

// DefaultPipelineConfig returns the defaults used by the CLI.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		DefaultK:             DefaultContextK,
		EscalateOnComplexity: true,
		BatchConcurrency:     llm.DefaultWorkerPoolConfig().MaxConcurrent,
	}
}

// Pipeline turns questions into validated read-only queries. It holds no
// per-request state; every request reads the snapshot current at its start.
type Pipeline struct {
	snapshots   *SnapshotStore
	classifier  IntentClassifier
	retriever   ContextRetriever
	synthesizer QuerySynthesizer
	validator   QueryValidator
	scorer      *ConfidenceScorer
	pool        *llm.WorkerPool
	cfg         PipelineConfig
	sink        observability.Sink
	logger      *zap.Logger
	newID       func() string
}

// NewPipeline wires the stages together. A nil scorer uses the default
// formula and a nil sink discards events.
func NewPipeline(
	snapshots *SnapshotStore,
	classifier IntentClassifier,
	retriever ContextRetriever,
	synthesizer QuerySynthesizer,
	validator QueryValidator,
	scorer *ConfidenceScorer,
	cfg PipelineConfig,
	sink observability.Sink,
	logger *zap.Logger,
) *Pipeline {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultContextK
	}
	if scorer == nil {
		scorer = MustNewConfidenceScorer("")
	}
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Pipeline{
		snapshots:   snapshots,
		classifier:  classifier,
		retriever:   retriever,
		synthesizer: synthesizer,
		validator:   validator,
		scorer:      scorer,
		pool:        llm.NewWorkerPool(llm.WorkerPoolConfig{MaxConcurrent: cfg.BatchConcurrency}, logger),
		cfg:         cfg,
		sink:        sink,
		logger:      logger.Named("pipeline"),
		newID:       uuid.NewString,
	}
}

// request is the state of one ProcessQuestion call. It is never shared.
type request struct {
	id         string
	question   string
	k          int
	hint       models.BackendHint
	snap       *Snapshot
	complexity Complexity
	state      *requestState
	diag       models.Diagnostics
	warnings   []models.Issue
	started    time.Time
}

// ProcessQuestion runs one question through the pipeline. It never returns
// an error: every failure becomes a rejected result with a descriptive issue.
func (p *Pipeline) ProcessQuestion(ctx context.Context, question string, opts Options) models.ValidationResult {
	req := &request{
		id:       p.newID(),
		question: question,
		state:    newRequestState(),
		started:  time.Now(),
	}
	req.diag = models.Diagnostics{
		RequestID:   req.id,
		Question:    question,
		Entities:    []models.Entity{},
		ContextHits: models.RetrievedContext{},
		Routing:     []models.RoutingDecision{},
		Timings:     map[string]time.Duration{},
	}

	ctx, finish := observability.StartSpan(ctx, "pipeline.process_question",
		attribute.String("request_id", req.id))

	result := p.process(ctx, req, opts)

	req.diag.States = req.state.states()
	for _, d := range req.diag.Routing {
		req.diag.EstimatedCostUSD += d.EstimatedCostUSD
	}
	result.Diagnostics = req.diag
	if result.Issues == nil {
		result.Issues = []models.Issue{}
	}

	code := ""
	if !result.Accepted() && len(result.Issues) > 0 {
		code = string(result.Issues[0].Code)
	}
	observability.Annotate(ctx,
		attribute.String("status", string(result.Status)),
		attribute.Float64("confidence", result.Confidence))
	finish(nil)

	ev := observability.NewEvent(observability.EventRequestDone, req.id)
	ev[observability.FieldStatus] = string(result.Status)
	ev[observability.FieldCode] = code
	ev[observability.FieldLatencyMS] = observability.Millis(time.Since(req.started))
	ev[observability.FieldCostUSD] = req.diag.EstimatedCostUSD
	ev["confidence"] = result.Confidence
	ev["repair_attempted"] = req.diag.RepairAttempted
	p.sink.Emit(ev)

	p.logger.Info("Processed question",
		zap.String("request_id", req.id),
		zap.String("status", string(result.Status)),
		zap.Float64("confidence", result.Confidence),
		zap.String("code", code),
		zap.Duration("elapsed", time.Since(req.started)))
	return result
}

// ProcessBatch runs questions concurrently, bounded by the configured batch
// concurrency. Results are in question order.
func (p *Pipeline) ProcessBatch(ctx context.Context, questions []string, opts Options, onProgress func(completed, total int)) []models.ValidationResult {
	p.logger.Debug("Processing batch",
		zap.Int("questions", len(questions)),
		zap.Int("concurrency", p.pool.MaxConcurrent()))

	items := make([]llm.WorkItem[models.ValidationResult], len(questions))
	for i, q := range questions {
		items[i] = llm.WorkItem[models.ValidationResult]{
			ID: strconv.Itoa(i),
			Execute: func(ctx context.Context) (models.ValidationResult, error) {
				return p.ProcessQuestion(ctx, q, opts), nil
			},
		}
	}

	results := llm.Process(ctx, p.pool, items, onProgress)
	out := make([]models.ValidationResult, len(results))
	for i, r := range results {
		if r.Err != nil {
			// Never started before ctx ended; this yields a canceled result.
			out[i] = p.ProcessQuestion(ctx, questions[i], opts)
			continue
		}
		out[i] = r.Result
	}
	return out
}

func (p *Pipeline) process(ctx context.Context, req *request, opts Options) models.ValidationResult {
	hint, ok := models.ParseBackendHint(string(opts.BackendHint))
	if !ok {
		return p.reject(req, apperrors.NewInvalidInput("backend_hint", "must be one of auto, local, remote"))
	}
	req.hint = hint
	switch {
	case opts.K < 0:
		return p.reject(req, apperrors.NewInvalidInput("k", "must not be negative"))
	case opts.K == 0:
		req.k = p.cfg.DefaultK
	default:
		req.k = opts.K
	}
	if err := ValidateQuestion(req.question); err != nil {
		return p.reject(req, err)
	}
	if err := ctx.Err(); err != nil {
		return p.reject(req, err)
	}

	snap, err := p.snapshots.Load()
	if err != nil {
		return p.reject(req, err)
	}
	req.snap = snap
	req.diag.SnapshotVersion = snap.Version

	if err := p.understand(ctx, req); err != nil {
		return p.reject(req, err)
	}
	if err := p.retrieve(ctx, req); err != nil {
		return p.reject(req, err)
	}

	synthReq := SynthesisRequest{
		RequestID:  req.id,
		Question:   req.question,
		Intent:     req.diag.Intent,
		Entities:   req.diag.Entities,
		Context:    req.diag.ContextHits,
		Catalog:    snap.Catalog,
		Hint:       req.hint,
		Escalation: p.escalation(req),
	}

	var outcome *SynthesisOutcome
	err = p.run(ctx, req, StageSynthesize, func(ctx context.Context) error {
		var err error
		outcome, err = p.synthesizer.Synthesize(ctx, synthReq)
		return err
	})
	if outcome != nil {
		req.diag.Routing = append(req.diag.Routing, outcome.Decisions...)
	}
	if err != nil {
		return p.reject(req, err)
	}
	req.diag.Draft = outcome.Draft
	if err := p.enter(req, StageSynthesize, models.StateSynthesized); err != nil {
		return p.reject(req, err)
	}

	return p.validateAndRepair(ctx, req, synthReq, outcome.Draft)
}

// understand runs extraction and classification concurrently. The
// classifier sees only the question so neither stage waits on the other.
func (p *Pipeline) understand(ctx context.Context, req *request) error {
	var (
		entities             []models.Entity
		intent               models.Intent
		extractDur, classDur time.Duration
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, finish := observability.StartSpan(gctx, "pipeline."+StageExtract)
		start := time.Now()
		var err error
		entities, err = req.snap.Extractor.Extract(req.question)
		extractDur = time.Since(start)
		finish(err)
		return err
	})
	g.Go(func() error {
		_, finish := observability.StartSpan(gctx, "pipeline."+StageClassify)
		start := time.Now()
		intent = p.classifier.Classify(req.question, nil)
		classDur = time.Since(start)
		finish(nil)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	req.diag.Entities = entities
	req.diag.Intent = intent
	req.complexity = AnalyzeComplexity(req.question)
	req.diag.Complexity = string(req.complexity.Level)
	req.diag.Timings[StageExtract] = extractDur
	req.diag.Timings[StageClassify] = classDur

	if err := p.enter(req, StageExtract, models.StateExtracted); err != nil {
		return err
	}
	return p.enter(req, StageClassify, models.StateClassified)
}

func (p *Pipeline) retrieve(ctx context.Context, req *request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var hits models.RetrievedContext
	err := p.run(ctx, req, StageRetrieve, func(ctx context.Context) error {
		h, issue, err := p.retriever.Retrieve(ctx, req.snap.Index, req.question, req.diag.Entities, req.k)
		if issue != nil {
			req.warnings = append(req.warnings, *issue)
		}
		hits = h
		return err
	})
	if err != nil {
		return err
	}
	if hits != nil {
		req.diag.ContextHits = hits
	}
	return p.enter(req, StageRetrieve, models.StateRetrieved)
}

func (p *Pipeline) escalation(req *request) llm.Escalation {
	if req.diag.Intent.Label == models.IntentUnknown {
		return llm.EscalationIntentUnknown
	}
	if p.cfg.EscalateOnComplexity && req.complexity.Level == ComplexityHigh {
		return llm.EscalationComplexityHigh
	}
	return llm.EscalationNone
}

// validateAndRepair validates the draft and, when the failure is one a
// repair may fix, runs the single allowed repair pass and validates again.
func (p *Pipeline) validateAndRepair(ctx context.Context, req *request, synthReq SynthesisRequest, draft *models.DraftQuery) models.ValidationResult {
	report, err := p.validate(ctx, req, StageValidate, draft)
	if err != nil {
		return p.reject(req, err)
	}
	if report.Valid() {
		return p.accept(req, report, false)
	}
	if !report.Repairable() || !req.state.canRepair() {
		return p.rejectReport(req, report)
	}
	if err := ctx.Err(); err != nil {
		return p.reject(req, err)
	}

	req.diag.RepairAttempted = true
	var outcome *SynthesisOutcome
	err = p.run(ctx, req, StageRepair, func(ctx context.Context) error {
		var err error
		outcome, err = p.synthesizer.Repair(ctx, synthReq, draft, errorIssues(report.Issues))
		return err
	})
	if outcome != nil {
		req.diag.Routing = append(req.diag.Routing, outcome.Decisions...)
	}
	if err != nil {
		if ctx.Err() != nil {
			return p.reject(req, err)
		}
		p.logger.Info("Repair produced no usable draft",
			zap.String("request_id", req.id),
			zap.String("error", logging.SanitizeError(err)))
		return p.rejectReport(req, report, failureIssue(err))
	}

	req.diag.Draft = outcome.Draft
	if err := p.enter(req, StageRepair, models.StateRepaired); err != nil {
		return p.reject(req, err)
	}

	second, err := p.validate(ctx, req, StageRevalidate, outcome.Draft)
	if err != nil {
		return p.reject(req, err)
	}
	if second.Valid() {
		return p.accept(req, second, true)
	}
	return p.rejectReport(req, second)
}

func (p *Pipeline) validate(ctx context.Context, req *request, stage string, draft *models.DraftQuery) (*ValidationReport, error) {
	if err := p.enter(req, stage, models.StateValidating); err != nil {
		return nil, err
	}
	var report *ValidationReport
	_ = p.run(ctx, req, stage, func(context.Context) error {
		report = p.validator.Validate(draft, req.snap.Catalog)
		return nil
	})

	outcome := "valid"
	switch {
	case report.Valid():
	case report.Repairable():
		outcome = "repairable"
	default:
		outcome = "invalid"
	}
	ev := observability.NewEvent(observability.EventValidation, req.id)
	ev[observability.FieldStage] = stage
	ev[observability.FieldOutcome] = outcome
	ev["issues"] = len(report.Issues)
	if errs := errorIssues(report.Issues); len(errs) > 0 {
		ev[observability.FieldCode] = string(errs[0].Code)
	}
	p.sink.Emit(ev)
	return report, nil
}

// run times fn as one stage inside its own span.
func (p *Pipeline) run(ctx context.Context, req *request, stage string, fn func(context.Context) error) error {
	ctx, finish := observability.StartSpan(ctx, "pipeline."+stage, attribute.String("request_id", req.id))
	start := time.Now()
	err := fn(ctx)
	req.diag.Timings[stage] += time.Since(start)
	finish(err)
	return err
}

// enter advances the request state and emits a stage event.
func (p *Pipeline) enter(req *request, stage string, state models.RequestState) error {
	if err := req.state.advance(state); err != nil {
		return err
	}
	p.emitStage(req, stage, state, nil)
	return nil
}

func (p *Pipeline) emitStage(req *request, stage string, state models.RequestState, err error) {
	ev := observability.NewEvent(observability.EventStage, req.id)
	ev[observability.FieldStage] = stage
	ev[observability.FieldState] = string(state)
	if d, ok := req.diag.Timings[stage]; ok {
		ev[observability.FieldLatencyMS] = observability.Millis(d)
	}
	if err != nil {
		ev[observability.FieldError] = logging.SanitizeError(err)
	}
	p.sink.Emit(ev)
}

func (p *Pipeline) accept(req *request, report *ValidationReport, repaired bool) models.ValidationResult {
	status := models.StatusValid
	if repaired {
		status = models.StatusRepaired
	}
	if err := req.state.advance(models.StateValid); err != nil {
		return p.reject(req, err)
	}
	p.emitStage(req, StageValidate, models.StateValid, nil)

	issues := append([]models.Issue{}, req.warnings...)
	for _, is := range report.Issues {
		if is.Severity != models.SeverityError {
			issues = append(issues, is)
		}
	}
	return models.ValidationResult{
		Status:     status,
		FinalQuery: report.Query,
		Confidence: p.scorer.Score(ConfidenceInputs{
			Intent:    req.diag.Intent.Confidence,
			Retrieval: req.diag.ContextHits.TopSimilarity(),
			Repaired:  repaired,
		}),
		Issues: issues,
	}
}

// rejectReport rejects with the validation issues of the last pass.
func (p *Pipeline) rejectReport(req *request, report *ValidationReport, extra ...models.Issue) models.ValidationResult {
	p.markRejected(req, nil)
	issues := append([]models.Issue{}, report.Issues...)
	issues = append(issues, extra...)
	issues = append(issues, req.warnings...)
	return models.ValidationResult{Status: models.StatusRejected, Issues: issues}
}

// reject converts a stage failure into a rejected result.
func (p *Pipeline) reject(req *request, err error) models.ValidationResult {
	p.markRejected(req, err)
	issues := append([]models.Issue{failureIssue(err)}, req.warnings...)
	return models.ValidationResult{Status: models.StatusRejected, Issues: issues}
}

func (p *Pipeline) markRejected(req *request, err error) {
	req.state.reject()
	p.emitStage(req, "reject", models.StateRejected, err)
	if err != nil {
		p.logger.Debug("Request rejected",
			zap.String("request_id", req.id),
			zap.String("error", logging.SanitizeError(err)))
	}
}

// failureIssue maps a stage error onto the issue reported to the caller.
// Backend unavailability is checked before context errors because a backend
// deadline is a backend failure, not a canceled request.
func failureIssue(err error) models.Issue {
	issue := models.Issue{Severity: models.SeverityError}
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		issue.Code = models.IssueInvalidInput
		issue.Message = err.Error()
	case errors.Is(err, apperrors.ErrSnapshotNotLoaded):
		issue.Code = models.IssueSnapshotMissing
		issue.Message = err.Error()
	case errors.Is(err, apperrors.ErrBackendUnavailable):
		issue.Code = models.IssueBackendUnavailable
		issue.Message = logging.SanitizeError(err)
	case errors.Is(err, apperrors.ErrSynthesisFailed):
		issue.Code = models.IssueSynthesisFailed
		issue.Message = apperrors.ErrSynthesisFailed.Error()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		issue.Code = models.IssueRequestCanceled
		issue.Message = "request canceled: " + err.Error()
	default:
		issue.Code = models.IssueSynthesisFailed
		issue.Message = apperrors.ErrSynthesisFailed.Error() + ": " + logging.SanitizeError(err)
	}
	return issue
}

func errorIssues(issues []models.Issue) []models.Issue {
	var out []models.Issue
	for _, is := range issues {
		if is.Severity == models.SeverityError {
			out = append(out, is)
		}
	}
	return out
}
