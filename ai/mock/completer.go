package mock

import (
	"context"

	"github.com/poiesic/lectern/ai"
)

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via function fields.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, echoes the last user message.
	CompleteFunc func(ctx context.Context, messages []ai.Message, temperature float64, maxTokens int) (*ai.Completion, error)

	callCount int
}

// NewMockCompleter creates a mock completer with default echo behavior.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns a canned completion or invokes the injected function.
func (m *MockCompleter) Complete(ctx context.Context, messages []ai.Message, temperature float64, maxTokens int) (*ai.Completion, error) {
	m.callCount++

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, temperature, maxTokens)
	}

	var last string
	for _, msg := range messages {
		if msg.Role == ai.RoleUser {
			last = msg.Text
		}
	}
	return &ai.Completion{
		Text:         "echo: " + last,
		InputTokens:  len(messages),
		OutputTokens: 1,
	}, nil
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	return m.callCount
}

// Reset clears the call count and injected function.
func (m *MockCompleter) Reset() {
	m.callCount = 0
	m.CompleteFunc = nil
}
