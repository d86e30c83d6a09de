package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. Responses are consumed in
// order; once exhausted, Response is returned.
type MockProvider struct {
	Response  string
	Responses []string
	Err       error

	// StreamChunks are sent by StreamComplete, followed by StreamErr if set.
	StreamChunks []string
	StreamErr    error

	// Gate, when non-nil, blocks every call until it is closed or the
	// context ends.
	Gate chan struct{}

	LastRequest *CompletionRequest // captures the last request for inspection

	mu       sync.Mutex
	calls    int
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

// Calls returns how many Complete and StreamComplete calls were made.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns a copy of every request received.
func (m *MockProvider) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

func (m *MockProvider) record(req CompletionRequest) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	m.LastRequest = &req
	if len(m.Responses) > 0 {
		resp := m.Responses[0]
		m.Responses = m.Responses[1:]
		return resp
	}
	return m.Response
}

func (m *MockProvider) wait(ctx context.Context) error {
	if m.Gate == nil {
		return nil
	}
	select {
	case <-m.Gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	content := m.record(req)
	if err := m.wait(ctx); err != nil {
		return CompletionResponse{}, err
	}
	if m.Err != nil {
		return CompletionResponse{}, m.Err
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	content := m.record(req)
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.StreamChunks
	if chunks == nil {
		chunks = []string{content}
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		if err := m.wait(ctx); err != nil {
			return
		}
		for _, c := range chunks {
			if !sendChunk(ctx, ch, StreamChunk{Content: c}) {
				return
			}
		}
		if m.StreamErr != nil {
			sendChunk(ctx, ch, StreamChunk{Error: m.StreamErr, Done: true})
			return
		}
		sendChunk(ctx, ch, StreamChunk{Done: true})
	}()
	return ch, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
