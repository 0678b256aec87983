// Package llm routes text generation between a local model and a remote model.
package llm

import (
	"context"
	"time"
)

// Prompt is a single generation request sent to a backend.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Len returns the combined length of the prompt text in bytes.
func (p Prompt) Len() int {
	return len(p.System) + len(p.User)
}

// Backend is a text generation service. Implementations must honour both the
// context and the deadline, whichever comes first.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt Prompt, deadline time.Time) (string, error)
}

// withDeadline derives a call context that ends at deadline unless the parent ends first.
func withDeadline(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	if deadline.IsZero() {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline)
}
