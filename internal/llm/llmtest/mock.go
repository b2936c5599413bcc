// Package llmtest provides scripted fakes for the llm package.
//
// Usage:
//
//	// Same JSON for every call
//	mock := &llmtest.MockCompleter{
//	    Handler: func(req llm.Request) (*llm.Response, error) {
//	        return &llm.Response{Content: body}, nil
//	    },
//	}
//
//	// Sequence of outcomes (for retry testing)
//	p := &llmtest.MockProvider{Steps: []llmtest.Step{
//	    {Err: llm.NewTransientError(errors.New("429"))},
//	    {Content: `{"hour":0}`},
//	}}
package llmtest

import (
	"context"
	"sync"

	"github.com/rcliao/monologue/internal/llm"
)

// Step is one scripted outcome.
type Step struct {
	Content string
	Err     error
}

// MockCompleter is a thread-safe llm.Completer. Handler takes precedence over
// Steps; when both are exhausted it returns an empty response.
type MockCompleter struct {
	mu       sync.Mutex
	Handler  func(req llm.Request) (*llm.Response, error)
	Steps    []Step
	requests []llm.Request
	index    int
}

// Complete implements llm.Completer.
func (m *MockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	handler := m.Handler
	var step *Step
	if handler == nil && m.index < len(m.Steps) {
		step = &m.Steps[m.index]
		m.index++
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if handler != nil {
		return handler(req)
	}
	if step == nil {
		return &llm.Response{Content: "", Model: "test-model"}, nil
	}
	if step.Err != nil {
		return nil, step.Err
	}
	return &llm.Response{Content: step.Content, Model: "test-model", Attempts: 1}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every captured request.
func (m *MockCompleter) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// MockProvider is a thread-safe llm.Provider that replays Steps in order and
// then repeats the last one.
type MockProvider struct {
	mu    sync.Mutex
	Steps []Step
	calls int
}

func (p *MockProvider) Name() string  { return "mock" }
func (p *MockProvider) Model() string { return "mock-model" }

// Generate implements llm.Provider.
func (p *MockProvider) Generate(ctx context.Context, _ llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if len(p.Steps) == 0 {
		return &llm.Response{Content: "{}", Model: "mock-model", Provider: "mock"}, nil
	}
	i := p.calls - 1
	if i >= len(p.Steps) {
		i = len(p.Steps) - 1
	}
	s := p.Steps[i]
	if s.Err != nil {
		return nil, s.Err
	}
	return &llm.Response{Content: s.Content, Model: "mock-model", Provider: "mock"}, nil
}

// Calls returns the number of Generate calls.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
