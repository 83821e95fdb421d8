package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockChatModel is a scripted chat model for tests.
type MockChatModel struct {
	mu        sync.Mutex
	responses []string
	next      int
	err       error

	// Calls records every Generate call in order.
	Calls []MockCall
}

// MockCall is one recorded call.
type MockCall struct {
	Messages []*schema.Message
	Options  *model.Options
}

// NewMockChatModel creates a mock that always replies with response.
func NewMockChatModel(response string) *MockChatModel {
	return &MockChatModel{responses: []string{response}}
}

// WithResponses replies with each response in turn, cycling back to the
// first after the last.
func (m *MockChatModel) WithResponses(responses ...string) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.next = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockChatModel) WithError(err error) *MockChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Generate records the call and returns the next scripted reply.
func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{
		Messages: input,
		Options:  model.GetCommonOptions(&model.Options{}, opts...),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.err != nil {
		return nil, m.err
	}

	var content string
	if len(m.responses) > 0 {
		content = m.responses[m.next%len(m.responses)]
		m.next++
	}
	return schema.AssistantMessage(content, nil), nil
}

// Stream yields the Generate reply as a single chunk.
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// CallCount returns the number of calls made.
func (m *MockChatModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call, or nil.
func (m *MockChatModel) LastCall() *MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	c := m.Calls[len(m.Calls)-1]
	return &c
}

// Reset clears recorded calls and restarts the response cycle.
func (m *MockChatModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.next = 0
}
