package llm

import (
	"context"
	"fmt"
	"time"
)

const probeTimeout = 30 * time.Second

// ProbeResult is the outcome of a connectivity check against one backend.
type ProbeResult struct {
	Backend        string    `json:"backend"`
	Success        bool      `json:"success"`
	Message        string    `json:"message"`
	ErrorType      ErrorType `json:"error_type,omitempty"`
	ResponseTimeMs int64     `json:"response_time_ms,omitempty"`
}

var probePrompt = Prompt{User: "Say 'ok' and nothing else.", MaxTokens: 10}

// Probe sends a tiny prompt to b and reports whether it answered.
// It bypasses routing and circuit breakers.
func Probe(ctx context.Context, b Backend) ProbeResult {
	if b == nil {
		return ProbeResult{Message: "not configured", ErrorType: ErrorTypeEndpoint}
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	start := time.Now()
	_, err := b.Complete(ctx, probePrompt, deadline)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		classified := ClassifyError(err)
		return ProbeResult{
			Backend:        b.Name(),
			Message:        probeMessage(classified),
			ErrorType:      classified.Type,
			ResponseTimeMs: elapsed,
		}
	}

	return ProbeResult{
		Backend:        b.Name(),
		Success:        true,
		Message:        fmt.Sprintf("connection successful (%dms)", elapsed),
		ResponseTimeMs: elapsed,
	}
}

func probeMessage(e *Error) string {
	switch e.Type {
	case ErrorTypeAuth:
		return "authentication failed: check the API key"
	case ErrorTypeModel:
		return "model not found: check the model name"
	case ErrorTypeEndpoint:
		return "cannot reach endpoint: " + e.Message
	case ErrorTypeTimeout:
		return "request timed out"
	default:
		return e.Error()
	}
}

// Probe checks both configured backends.
func (r *Router) Probe(ctx context.Context) []ProbeResult {
	local := Probe(ctx, r.local)
	if r.local == nil {
		local.Backend = "local"
	}
	remote := Probe(ctx, r.remote)
	if r.remote == nil {
		remote.Backend = "remote"
	}
	return []ProbeResult{local, remote}
}
