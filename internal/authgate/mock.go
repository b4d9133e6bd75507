package authgate

import (
	"context"
	"errors"
	"sync"
)

var ErrNoPrompt = errors.New("no prompt for request")

// MockProvider records prompts and lets the caller report outcomes later.
// Tests use it in place of a device with a lock screen.
type MockProvider struct {
	mu         sync.Mutex
	configured bool
	promptErr  error
	requests   []Request
	reports    map[string]func(Outcome)
	dismissed  []string
	prompted   chan Request
}

func NewMockProvider(configured bool) *MockProvider {
	return &MockProvider{
		configured: configured,
		reports:    make(map[string]func(Outcome)),
		prompted:   make(chan Request, 16),
	}
}

func (p *MockProvider) SetPromptError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.promptErr = err
}

func (p *MockProvider) Configured() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.configured
}

func (p *MockProvider) Prompt(_ context.Context, req Request, report func(Outcome)) error {
	p.mu.Lock()
	if p.promptErr != nil {
		err := p.promptErr
		p.mu.Unlock()
		return err
	}
	p.requests = append(p.requests, req)
	p.reports[req.ID] = report
	p.mu.Unlock()

	select {
	case p.prompted <- req:
	default:
	}
	return nil
}

// Prompted delivers each request as it is shown.
func (p *MockProvider) Prompted() <-chan Request { return p.prompted }

// Report answers the prompt with the given request ID.
func (p *MockProvider) Report(requestID string, o Outcome) error {
	p.mu.Lock()
	report, ok := p.reports[requestID]
	delete(p.reports, requestID)
	p.mu.Unlock()
	if !ok {
		return ErrNoPrompt
	}
	report(o)
	return nil
}

func (p *MockProvider) Dismiss(requestID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dismissed = append(p.dismissed, requestID)
}

func (p *MockProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

func (p *MockProvider) Dismissed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.dismissed))
	copy(out, p.dismissed)
	return out
}
