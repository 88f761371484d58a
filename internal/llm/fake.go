package llm

import (
	"context"
	"sync"
)

// Fake is a scripted LLM client for tests. Responses are returned in
// order; when the script runs out, Default is returned. All prompts
// are recorded for assertions.
type Fake struct {
	mu        sync.Mutex
	Responses []string
	Default   string
	Err       error

	// Prompts holds every prompt received, in call order.
	Prompts []string
}

// Verify interface implementation at compile time.
var _ Client = (*Fake)(nil)

// NewFake creates a fake client with the given scripted responses.
func NewFake(responses ...string) *Fake {
	return &Fake{Responses: responses}
}

// Complete pops the next scripted response.
func (f *Fake) Complete(_ context.Context, prompt string, _ Params) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Prompts = append(f.Prompts, prompt)

	if f.Err != nil {
		return "", f.Err
	}

	if len(f.Responses) > 0 {
		resp := f.Responses[0]
		f.Responses = f.Responses[1:]
		return resp, nil
	}

	return f.Default, nil
}

// CallCount returns the number of Complete calls received.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Prompts)
}
