// Package ai provides a provider-agnostic AI gateway with task-based model
// selection and ordered fallback.
package ai

import "context"

// TaskType defines the kind of content being generated. Providers use it to
// pick a model.
type TaskType int

const (
	TaskChat TaskType = iota
	TaskTopics
	TaskExplanation
	TaskVisualPrompt
	TaskQuiz
	TaskRealWorldExample
	TaskUnitTest
	TaskSummary
)

func (t TaskType) String() string {
	switch t {
	case TaskChat:
		return "chat"
	case TaskTopics:
		return "topics"
	case TaskExplanation:
		return "explanation"
	case TaskVisualPrompt:
		return "visual_prompt"
	case TaskQuiz:
		return "quiz"
	case TaskRealWorldExample:
		return "real_world_example"
	case TaskUnitTest:
		return "unit_test"
	case TaskSummary:
		return "summary"
	default:
		return "unknown"
	}
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to an AI completion.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	Task        TaskType  `json:"task,omitempty"`

	// Schema constrains the response to JSON matching the definition.
	Schema *Schema `json:"-"`
	// DisableThinking turns off model reasoning where the provider supports it.
	DisableThinking bool `json:"disable_thinking,omitempty"`
}

// CompletionResponse is the output from an AI completion.
type CompletionResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// TotalTokens returns the sum of input and output tokens.
func (r CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// StreamChunk represents a streaming response chunk. A chunk with a non-nil
// Error is the last one sent.
type StreamChunk struct {
	Content string
	Done    bool
	Error   error
}

// ModelInfo describes an available model.
type ModelInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxTokens   int    `json:"max_tokens"`
	Description string `json:"description"`
}

// Provider is the interface all AI providers must implement.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	Models() []ModelInfo
	HealthCheck(ctx context.Context) error
}

// systemPrompt joins all system messages of a request.
func systemPrompt(msgs []Message) string {
	var out string
	for _, m := range msgs {
		if m.Role != RoleSystem {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += m.Content
	}
	return out
}

// sendChunk delivers a chunk unless the context is done.
func sendChunk(ctx context.Context, ch chan<- StreamChunk, c StreamChunk) bool {
	select {
	case ch <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
