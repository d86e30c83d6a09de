package ai_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/muse/internal/ai"
)

func TestMockProvider_Complete(t *testing.T) {
	mock := ai.NewMockProvider("test response")

	resp, err := mock.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "user", Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "test response" {
		t.Errorf("Content = %q, want %q", resp.Content, "test response")
	}
	if resp.Model != "mock" {
		t.Errorf("Model = %q, want %q", resp.Model, "mock")
	}
	if mock.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", mock.Calls())
	}
}

func TestMockProvider_ScriptedResponses(t *testing.T) {
	mock := &ai.MockProvider{Response: "fallback", Responses: []string{"first", "second"}}

	want := []string{"first", "second", "fallback"}
	for i, w := range want {
		resp, err := mock.Complete(context.Background(), ai.CompletionRequest{Task: ai.TaskTopics})
		if err != nil {
			t.Fatalf("Complete() #%d error = %v", i, err)
		}
		if resp.Content != w {
			t.Errorf("Complete() #%d = %q, want %q", i, resp.Content, w)
		}
	}
	if got := len(mock.Requests()); got != 3 {
		t.Errorf("Requests() = %d, want 3", got)
	}
}

func TestMockProvider_Gate(t *testing.T) {
	mock := &ai.MockProvider{Response: "late", Gate: make(chan struct{})}

	done := make(chan string)
	go func() {
		resp, _ := mock.Complete(context.Background(), ai.CompletionRequest{})
		done <- resp.Content
	}()

	select {
	case <-done:
		t.Fatal("Complete() returned before the gate opened")
	case <-time.After(20 * time.Millisecond):
	}

	close(mock.Gate)
	if got := <-done; got != "late" {
		t.Errorf("Content = %q, want late", got)
	}
}

func TestMockProvider_GateCancelled(t *testing.T) {
	mock := &ai.MockProvider{Response: "never", Gate: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := mock.Complete(ctx, ai.CompletionRequest{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
}

func TestMockProvider_HealthCheck(t *testing.T) {
	mock := ai.NewMockProvider("response")
	if err := mock.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestMockProvider_Models(t *testing.T) {
	mock := ai.NewMockProvider("response")
	models := mock.Models()
	if len(models) == 0 {
		t.Error("Models() returned empty")
	}
}

func TestTaskType_String(t *testing.T) {
	tests := []struct {
		task     ai.TaskType
		expected string
	}{
		{ai.TaskChat, "chat"},
		{ai.TaskTopics, "topics"},
		{ai.TaskExplanation, "explanation"},
		{ai.TaskVisualPrompt, "visual_prompt"},
		{ai.TaskQuiz, "quiz"},
		{ai.TaskRealWorldExample, "real_world_example"},
		{ai.TaskUnitTest, "unit_test"},
		{ai.TaskSummary, "summary"},
		{ai.TaskType(99), "unknown"},
	}
	for _, tt := range tests {
		if tt.task.String() != tt.expected {
			t.Errorf("TaskType.String() = %q, want %q", tt.task.String(), tt.expected)
		}
	}
}

func TestCompletionResponse_TotalTokens(t *testing.T) {
	resp := ai.CompletionResponse{InputTokens: 100, OutputTokens: 50}
	if got := resp.TotalTokens(); got != 150 {
		t.Errorf("TotalTokens() = %d, want 150", got)
	}
}
