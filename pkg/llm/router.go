package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/observability"
	"github.com/ekaya-inc/datagenie-engine/pkg/retry"
)

// Escalation is a caller signal that the request deserves the remote backend.
type Escalation string

const (
	EscalationNone               Escalation = ""
	EscalationIntentUnknown      Escalation = "intent_unknown"
	EscalationValidationRejected Escalation = "validation_rejected"
	EscalationComplexityHigh     Escalation = "complexity_high"
)

// Routing reasons recorded on each decision.
const (
	ReasonDefaultLocal     = "default_local"
	ReasonForcedLocal      = "forced_local"
	ReasonForcedRemote     = "forced_remote"
	ReasonLocalFailed      = "local_failed"
	ReasonLocalCircuitOpen = "local_circuit_open"
	ReasonLocalMissing     = "local_not_configured"
	ReasonRemoteFailed     = "remote_failed"
	ReasonRemoteUnusable   = "remote_unavailable"
	ReasonRetry            = "retry"
)

// RouterConfig configures backend deadlines and health tracking.
type RouterConfig struct {
	LocalTimeout         time.Duration
	RemoteTimeout        time.Duration
	LocalRetries         int // Retries of a failed local call, default 1
	Breaker              CircuitBreakerConfig
	ExpectedOutputTokens int // Used for cost estimates
}

// DefaultRouterConfig returns 8s local and 30s remote deadlines with one local retry.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		LocalTimeout:         8 * time.Second,
		RemoteTimeout:        30 * time.Second,
		LocalRetries:         1,
		Breaker:              DefaultCircuitBreakerConfig(),
		ExpectedOutputTokens: defaultExpectedOutputToks,
	}
}

// GenerateRequest is one routed generation call.
type GenerateRequest struct {
	Prompt     Prompt
	Hint       models.BackendHint
	Escalation Escalation
	Purpose    models.RoutingPurpose
	RequestID  string
}

// ModelOutput is the text produced by whichever backend served the request,
// with one routing decision per backend attempt.
type ModelOutput struct {
	Text      string
	Backend   models.BackendKind
	Decisions []models.RoutingDecision
}

// BackendStatus describes one backend for status reports.
type BackendStatus struct {
	Kind                models.BackendKind `json:"kind"`
	Name                string             `json:"name"`
	Configured          bool               `json:"configured"`
	Circuit             string             `json:"circuit"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
}

// Router chooses between the local and the remote backend for each call.
// Circuit breakers are the only state shared between requests.
type Router struct {
	local, remote Backend
	localBreaker  *CircuitBreaker
	remoteBreaker *CircuitBreaker
	cfg           RouterConfig
	sink          observability.Sink
	logger        *zap.Logger
	now           func() time.Time
}

// NewRouter creates a router. Either backend may be nil when not configured.
func NewRouter(local, remote Backend, cfg RouterConfig, sink observability.Sink, logger *zap.Logger) *Router {
	def := DefaultRouterConfig()
	if cfg.LocalTimeout <= 0 {
		cfg.LocalTimeout = def.LocalTimeout
	}
	if cfg.RemoteTimeout <= 0 {
		cfg.RemoteTimeout = def.RemoteTimeout
	}
	if cfg.LocalRetries < 0 {
		cfg.LocalRetries = 0
	}
	if cfg.ExpectedOutputTokens <= 0 {
		cfg.ExpectedOutputTokens = def.ExpectedOutputTokens
	}
	if sink == nil {
		sink = observability.NopSink{}
	}
	return &Router{
		local:         local,
		remote:        remote,
		localBreaker:  NewCircuitBreaker(string(models.BackendLocal), cfg.Breaker),
		remoteBreaker: NewCircuitBreaker(string(models.BackendRemote), cfg.Breaker),
		cfg:           cfg,
		sink:          sink,
		logger:        logger.Named("router"),
		now:           time.Now,
	}
}

// route is one backend call within a request.
type route struct {
	kind           models.BackendKind
	reason         string
	consultBreaker bool
}

// Generate sends the prompt to a backend chosen from the hint and escalation.
// The returned output is never nil and carries every decision made, including
// on error. A done request context returns ctx.Err() and never counts as a
// backend failure. When every eligible backend fails the error is an
// *apperrors.BackendUnavailableError.
func (r *Router) Generate(ctx context.Context, req GenerateRequest) (*ModelOutput, error) {
	out := &ModelOutput{}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if req.Purpose == "" {
		req.Purpose = models.PurposeSynthesis
	}

	causes := make(map[string]error)

	switch req.Hint {
	case models.HintLocal:
		return r.finish(ctx, out, causes, r.try(ctx, req, out, causes, route{models.BackendLocal, ReasonForcedLocal, false}))
	case models.HintRemote:
		return r.finish(ctx, out, causes, r.try(ctx, req, out, causes, route{models.BackendRemote, ReasonForcedRemote, false}))
	}

	if req.Escalation != EscalationNone {
		reason := string(req.Escalation)
		if ok := r.try(ctx, req, out, causes, route{models.BackendRemote, reason, true}); ok || ctx.Err() != nil {
			return r.finish(ctx, out, causes, ok)
		}
		fallback := ReasonRemoteFailed
		if r.remote == nil || GetErrorType(causes[string(models.BackendRemote)]) == ErrorTypeCircuit {
			fallback = ReasonRemoteUnusable
		}
		return r.finish(ctx, out, causes, r.try(ctx, req, out, causes, route{models.BackendLocal, fallback, true}))
	}

	if ok := r.try(ctx, req, out, causes, route{models.BackendLocal, ReasonDefaultLocal, true}); ok || ctx.Err() != nil {
		return r.finish(ctx, out, causes, ok)
	}

	reason := ReasonLocalFailed
	switch {
	case r.local == nil:
		reason = ReasonLocalMissing
	case GetErrorType(causes[string(models.BackendLocal)]) == ErrorTypeCircuit:
		reason = ReasonLocalCircuitOpen
	}
	return r.finish(ctx, out, causes, r.try(ctx, req, out, causes, route{models.BackendRemote, reason, true}))
}

func (r *Router) finish(ctx context.Context, out *ModelOutput, causes map[string]error, ok bool) (*ModelOutput, error) {
	if ok {
		return out, nil
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, &apperrors.BackendUnavailableError{Causes: causes}
}

// try runs one route, retrying local calls, and reports whether it produced text.
func (r *Router) try(ctx context.Context, req GenerateRequest, out *ModelOutput, causes map[string]error, rt route) bool {
	backend, breaker, timeout, retries := r.local, r.localBreaker, r.cfg.LocalTimeout, r.cfg.LocalRetries
	if rt.kind == models.BackendRemote {
		backend, breaker, timeout, retries = r.remote, r.remoteBreaker, r.cfg.RemoteTimeout, 0
	}

	if backend == nil {
		e := NewError(ErrorTypeEndpoint, "backend not configured", false, nil)
		e.Backend = string(rt.kind)
		causes[string(rt.kind)] = e
		return false
	}
	if rt.consultBreaker {
		if allowed, err := breaker.Allow(); !allowed {
			causes[string(rt.kind)] = err
			r.logger.Debug("Skipping backend with open circuit",
				zap.String("request_id", req.RequestID),
				zap.String("backend", string(rt.kind)))
			return false
		}
	}

	cfg := retry.Once()
	cfg.MaxRetries = retries
	cfg.ShouldRetry = func(error) bool { return ctx.Err() == nil }

	text, err := retry.DoWithResult(ctx, cfg, func(attempt int) (string, error) {
		reason := rt.reason
		if attempt > 1 {
			reason = ReasonRetry
		}
		return r.call(ctx, req, out, backend, breaker, rt.kind, reason, attempt, timeout)
	})
	if err != nil {
		if ctx.Err() == nil {
			causes[string(rt.kind)] = err
		}
		return false
	}

	out.Text = text
	out.Backend = rt.kind
	return true
}

// call performs a single backend attempt under its deadline and records the decision.
func (r *Router) call(
	ctx context.Context,
	req GenerateRequest,
	out *ModelOutput,
	backend Backend,
	breaker *CircuitBreaker,
	kind models.BackendKind,
	reason string,
	attempt int,
	timeout time.Duration,
) (string, error) {
	deadline := r.deadline(ctx, timeout)
	callCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := r.now()
	text, err := invoke(callCtx, backend, req.Prompt, deadline)
	latency := r.now().Sub(start)

	decision := models.RoutingDecision{
		Backend:          kind,
		Reason:           reason,
		Purpose:          req.Purpose,
		Attempt:          attempt,
		Latency:          latency,
		EstimatedCostUSD: EstimateCost(kind, req.Prompt, r.cfg.ExpectedOutputTokens),
	}

	outcome := "ok"
	switch {
	case err == nil:
		breaker.RecordSuccess()
	case ctx.Err() != nil:
		// The request ended; this is not evidence against the backend.
		outcome = "canceled"
		err = ctx.Err()
	default:
		var classified *Error
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			classified = NewError(ErrorTypeTimeout, "backend deadline exceeded", true, err)
		} else {
			classified = ClassifyError(err)
		}
		if classified.Backend == "" {
			classified.Backend = backend.Name()
		}
		err = classified
		breaker.RecordFailure()
		outcome = "error"
	}
	if err != nil {
		decision.Err = err.Error()
	}
	out.Decisions = append(out.Decisions, decision)
	r.emit(req.RequestID, decision, outcome)

	return text, err
}

// deadline is now+timeout, or the request deadline when that comes first.
func (r *Router) deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := r.now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

type completion struct {
	text string
	err  error
}

// invoke calls the backend and stops waiting when ctx ends, discarding late results.
func invoke(ctx context.Context, backend Backend, prompt Prompt, deadline time.Time) (string, error) {
	done := make(chan completion, 1)
	go func() {
		text, err := backend.Complete(ctx, prompt, deadline)
		done <- completion{text, err}
	}()

	select {
	case c := <-done:
		return c.text, c.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Router) emit(requestID string, d models.RoutingDecision, outcome string) {
	e := observability.NewEvent(observability.EventRoutingDecision, requestID)
	e[observability.FieldBackend] = string(d.Backend)
	e[observability.FieldReason] = d.Reason
	e[observability.FieldPurpose] = string(d.Purpose)
	e[observability.FieldAttempt] = d.Attempt
	e[observability.FieldOutcome] = outcome
	e[observability.FieldLatencyMS] = observability.Millis(d.Latency)
	e[observability.FieldCostUSD] = d.EstimatedCostUSD
	if d.Err != "" {
		e[observability.FieldError] = d.Err
	}
	r.sink.Emit(e)

	r.logger.Debug("Routing decision",
		zap.String("request_id", requestID),
		zap.String("backend", string(d.Backend)),
		zap.String("reason", d.Reason),
		zap.String("purpose", string(d.Purpose)),
		zap.Int("attempt", d.Attempt),
		zap.String("outcome", outcome),
		zap.Duration("latency", d.Latency))
}

// Status reports configuration and circuit state for both backends.
func (r *Router) Status() []BackendStatus {
	return []BackendStatus{
		r.status(models.BackendLocal, r.local, r.localBreaker),
		r.status(models.BackendRemote, r.remote, r.remoteBreaker),
	}
}

func (r *Router) status(kind models.BackendKind, b Backend, cb *CircuitBreaker) BackendStatus {
	s := BackendStatus{
		Kind:                kind,
		Configured:          b != nil,
		Circuit:             cb.State().String(),
		ConsecutiveFailures: cb.ConsecutiveFailures(),
	}
	if b != nil {
		s.Name = b.Name()
	}
	return s
}
