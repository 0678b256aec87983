package llm

import (
	"context"
	"sync"
	"time"
)

// MockBackend is a configurable Backend for tests.
// Set CompleteFunc to control behavior; it is safe for concurrent use.
type MockBackend struct {
	// BackendName is returned by Name. Defaults to "mock".
	BackendName string

	// CompleteFunc is called when Complete is invoked.
	// If nil, Complete returns Response.
	CompleteFunc func(ctx context.Context, prompt Prompt, deadline time.Time) (string, error)

	// Response is returned when CompleteFunc is nil.
	Response string

	mu      sync.Mutex
	prompts []Prompt
}

var _ Backend = (*MockBackend)(nil)

// NewMockBackend creates a mock that always answers with response.
func NewMockBackend(name, response string) *MockBackend {
	return &MockBackend{BackendName: name, Response: response}
}

// Name implements Backend.
func (m *MockBackend) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

// Complete implements Backend.
func (m *MockBackend) Complete(ctx context.Context, prompt Prompt, deadline time.Time) (string, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt, deadline)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Response, nil
}

// Calls returns how many times Complete was invoked.
func (m *MockBackend) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

// Prompts returns a copy of every prompt received, in call order.
func (m *MockBackend) Prompts() []Prompt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Prompt(nil), m.prompts...)
}
