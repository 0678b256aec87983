package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie-engine/pkg/apperrors"
	"github.com/ekaya-inc/datagenie-engine/pkg/models"
	"github.com/ekaya-inc/datagenie-engine/pkg/observability"
)

var testPrompt = Prompt{System: "sys", User: "total sales last month"}

func failing(err error) func(context.Context, Prompt, time.Time) (string, error) {
	return func(context.Context, Prompt, time.Time) (string, error) { return "", err }
}

func blocking() func(context.Context, Prompt, time.Time) (string, error) {
	return func(ctx context.Context, _ Prompt, _ time.Time) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

func newTestRouter(local, remote Backend, sink observability.Sink) *Router {
	cfg := DefaultRouterConfig()
	cfg.LocalTimeout = 50 * time.Millisecond
	cfg.RemoteTimeout = 200 * time.Millisecond
	return NewRouter(local, remote, cfg, sink, zap.NewNop())
}

func reasons(out *ModelOutput) []string {
	var rs []string
	for _, d := range out.Decisions {
		rs = append(rs, string(d.Backend)+":"+d.Reason)
	}
	return rs
}

func TestRouter_AutoUsesLocal(t *testing.T) {
	local := NewMockBackend("ollama", "SELECT 1")
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Hint: models.HintAuto})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 1", out.Text)
	assert.Equal(t, models.BackendLocal, out.Backend)
	assert.Equal(t, []string{"local:default_local"}, reasons(out))
	assert.Equal(t, models.PurposeSynthesis, out.Decisions[0].Purpose)
	assert.Equal(t, 1, out.Decisions[0].Attempt)
	assert.Zero(t, out.Decisions[0].EstimatedCostUSD)
	assert.Equal(t, 0, remote.Calls())
}

func TestRouter_EscalationGoesRemote(t *testing.T) {
	for _, esc := range []Escalation{EscalationIntentUnknown, EscalationValidationRejected, EscalationComplexityHigh} {
		t.Run(string(esc), func(t *testing.T) {
			local := NewMockBackend("ollama", "SELECT 1")
			remote := NewMockBackend("claude", "SELECT 2")
			r := newTestRouter(local, remote, nil)

			out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Escalation: esc, Purpose: models.PurposeRepair})
			require.NoError(t, err)

			assert.Equal(t, "SELECT 2", out.Text)
			assert.Equal(t, models.BackendRemote, out.Backend)
			assert.Equal(t, []string{"remote:" + string(esc)}, reasons(out))
			assert.Equal(t, models.PurposeRepair, out.Decisions[0].Purpose)
			assert.Greater(t, out.Decisions[0].EstimatedCostUSD, 0.0)
			assert.Equal(t, 0, local.Calls())
		})
	}
}

func TestRouter_LocalRetriedOnceThenRemote(t *testing.T) {
	local := &MockBackend{BackendName: "ollama", CompleteFunc: failing(errors.New("status code: 503"))}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)

	assert.Equal(t, "SELECT 2", out.Text)
	assert.Equal(t, []string{"local:default_local", "local:retry", "remote:local_failed"}, reasons(out))
	assert.Equal(t, 2, out.Decisions[1].Attempt)
	assert.NotEmpty(t, out.Decisions[0].Err)
	assert.Equal(t, 2, local.Calls())
	assert.Equal(t, 1, remote.Calls())

	// Same prompt on the retry.
	prompts := local.Prompts()
	assert.Equal(t, prompts[0], prompts[1])
}

func TestRouter_LocalTimeoutFallsBack(t *testing.T) {
	local := &MockBackend{BackendName: "ollama", CompleteFunc: blocking()}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)

	start := time.Now()
	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)

	assert.Equal(t, models.BackendRemote, out.Backend)
	assert.Contains(t, out.Decisions[0].Err, "timeout")
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, r.localBreaker.ConsecutiveFailures())
}

func TestRouter_IgnoresBackendThatOverrunsDeadline(t *testing.T) {
	local := &MockBackend{CompleteFunc: func(context.Context, Prompt, time.Time) (string, error) {
		time.Sleep(300 * time.Millisecond)
		return "SELECT late", nil
	}}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)
	r.cfg.LocalRetries = 0

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 2", out.Text)
}

func TestRouter_ForcedRemoteNeverRetriedOrFallsBack(t *testing.T) {
	local := NewMockBackend("ollama", "SELECT 1")
	remote := &MockBackend{BackendName: "claude", CompleteFunc: failing(errors.New("status code: 529 overloaded"))}
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Hint: models.HintRemote})
	require.Error(t, err)

	assert.True(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, []string{"remote:forced_remote"}, reasons(out))
	assert.Equal(t, 1, remote.Calls())
	assert.Equal(t, 0, local.Calls())
}

func TestRouter_ForcedLocalOnly(t *testing.T) {
	local := &MockBackend{BackendName: "ollama", CompleteFunc: failing(errors.New("connection refused"))}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Hint: models.HintLocal})
	require.Error(t, err)

	var unavailable *apperrors.BackendUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Contains(t, unavailable.Causes, "local")
	assert.NotContains(t, unavailable.Causes, "remote")
	assert.Equal(t, []string{"local:forced_local", "local:retry"}, reasons(out))
	assert.Equal(t, 0, remote.Calls())
}

func TestRouter_BothFail(t *testing.T) {
	local := &MockBackend{CompleteFunc: failing(errors.New("connection refused"))}
	remote := &MockBackend{CompleteFunc: failing(errors.New("invalid x-api-key"))}
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})

	var unavailable *apperrors.BackendUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Len(t, unavailable.Causes, 2)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(unavailable.Causes["remote"]))
	assert.Equal(t, ErrorTypeEndpoint, GetErrorType(unavailable.Causes["local"]))
	assert.True(t, IsRetryable(unavailable.Causes["local"]))

	var backendErr *Error
	require.True(t, errors.As(unavailable.Causes["remote"], &backendErr))
	assert.Equal(t, "mock", backendErr.Backend)
	assert.True(t, strings.HasPrefix(err.Error(), "no generation backend available"))
	assert.Len(t, out.Decisions, 3)
}

func TestRouter_CanceledBeforeStart(t *testing.T) {
	local := NewMockBackend("ollama", "SELECT 1")
	r := newTestRouter(local, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := r.Generate(ctx, GenerateRequest{Prompt: testPrompt})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.Decisions)
	assert.Equal(t, 0, local.Calls())
}

func TestRouter_CancellationIsNotABackendFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	local := &MockBackend{CompleteFunc: func(c context.Context, _ Prompt, _ time.Time) (string, error) {
		cancel()
		<-c.Done()
		return "", c.Err()
	}}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(ctx, GenerateRequest{Prompt: testPrompt})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, apperrors.ErrBackendUnavailable))
	assert.Equal(t, 1, local.Calls())
	assert.Equal(t, 0, remote.Calls())
	assert.Equal(t, 0, r.localBreaker.ConsecutiveFailures())
	require.Len(t, out.Decisions, 1)
}

func TestRouter_OpenCircuitRoutesRemote(t *testing.T) {
	local := &MockBackend{CompleteFunc: failing(errors.New("connection refused"))}
	remote := NewMockBackend("claude", "SELECT 2")
	cfg := DefaultRouterConfig()
	cfg.Breaker = CircuitBreakerConfig{Threshold: 2, ResetAfter: time.Hour}
	r := NewRouter(local, remote, cfg, nil, zap.NewNop())

	_, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)
	require.Equal(t, CircuitOpen, r.localBreaker.State())

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, []string{"remote:local_circuit_open"}, reasons(out))
	assert.Equal(t, 2, local.Calls())

	// A forced hint bypasses the breaker.
	_, err = r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Hint: models.HintLocal})
	require.Error(t, err)
	assert.Equal(t, 4, local.Calls())
}

func TestRouter_EscalatedRemoteFailureFallsBackToLocal(t *testing.T) {
	local := NewMockBackend("ollama", "SELECT 1")
	remote := &MockBackend{CompleteFunc: failing(errors.New("status code: 500"))}
	r := newTestRouter(local, remote, nil)

	out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Escalation: EscalationIntentUnknown})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out.Text)
	assert.Equal(t, []string{"remote:intent_unknown", "local:remote_failed"}, reasons(out))
}

func TestRouter_MissingBackends(t *testing.T) {
	t.Run("no remote on escalation", func(t *testing.T) {
		r := newTestRouter(NewMockBackend("ollama", "SELECT 1"), nil, nil)
		out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, Escalation: EscalationIntentUnknown})
		require.NoError(t, err)
		assert.Equal(t, []string{"local:remote_unavailable"}, reasons(out))
	})

	t.Run("no local", func(t *testing.T) {
		r := newTestRouter(nil, NewMockBackend("claude", "SELECT 2"), nil)
		out, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
		require.NoError(t, err)
		assert.Equal(t, []string{"remote:local_not_configured"}, reasons(out))
	})

	t.Run("none", func(t *testing.T) {
		r := newTestRouter(nil, nil, nil)
		_, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
		assert.ErrorIs(t, err, apperrors.ErrBackendUnavailable)
	})
}

func TestRouter_DeadlineIsEarliestOfTimeoutAndRequest(t *testing.T) {
	var seen time.Time
	local := &MockBackend{CompleteFunc: func(_ context.Context, _ Prompt, d time.Time) (string, error) {
		seen = d
		return "SELECT 1", nil
	}}
	cfg := DefaultRouterConfig()
	r := NewRouter(local, nil, cfg, nil, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reqDeadline, _ := ctx.Deadline()

	_, err := r.Generate(ctx, GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)
	assert.Equal(t, reqDeadline, seen)

	_, err = r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(cfg.LocalTimeout), seen, time.Second)
}

func TestRouter_EmitsDecisionEvents(t *testing.T) {
	sink := &observability.RecorderSink{}
	local := &MockBackend{CompleteFunc: failing(errors.New("connection refused"))}
	remote := NewMockBackend("claude", "SELECT 2")
	r := newTestRouter(local, remote, sink)

	_, err := r.Generate(context.Background(), GenerateRequest{Prompt: testPrompt, RequestID: "req-1"})
	require.NoError(t, err)

	events := sink.Named(observability.EventRoutingDecision)
	require.Len(t, events, 3)
	assert.Equal(t, "req-1", events[0].String(observability.FieldRequestID))
	assert.Equal(t, "error", events[0].String(observability.FieldOutcome))
	assert.Equal(t, "remote", events[2].String(observability.FieldBackend))
	assert.Equal(t, "local_failed", events[2].String(observability.FieldReason))
	assert.Equal(t, "ok", events[2].String(observability.FieldOutcome))
}

func TestRouter_Status(t *testing.T) {
	r := newTestRouter(NewMockBackend("ollama", ""), nil, nil)
	r.localBreaker.RecordFailure()

	status := r.Status()
	require.Len(t, status, 2)
	assert.Equal(t, BackendStatus{Kind: models.BackendLocal, Name: "ollama", Configured: true, Circuit: "closed", ConsecutiveFailures: 1}, status[0])
	assert.Equal(t, BackendStatus{Kind: models.BackendRemote, Configured: false, Circuit: "closed"}, status[1])
}

func TestEstimateCost(t *testing.T) {
	p := Prompt{User: strings.Repeat("x", 400)}

	assert.Equal(t, 300, EstimateTokens(p, 200))
	assert.Equal(t, 0.0, EstimateCost(models.BackendLocal, p, 200))
	assert.InDelta(t, 0.00306, EstimateCost(models.BackendRemote, p, 200), 1e-9)
	assert.Equal(t, 100+defaultExpectedOutputToks, EstimateTokens(p, 0))
}
