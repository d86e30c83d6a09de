package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func geminiText(text string) geminiResponse {
	return geminiResponse{
		Candidates: []geminiCandidate{
			{Content: geminiContent{Role: "model", Parts: []geminiPart{{Text: text}}}},
		},
		UsageMetadata: geminiUsage{PromptTokenCount: 8, CandidatesTokenCount: 12},
	}
}

func TestGoogleProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify Gemini-specific URL pattern.
		if !strings.Contains(r.URL.Path, "/models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing or wrong API key in query")
		}

		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)

		if len(req.Contents) == 0 {
			t.Error("no contents in request")
		}

		json.NewEncoder(w).Encode(geminiText("Gemini response"))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Gemini response" {
		t.Errorf("content = %q, want %q", resp.Content, "Gemini response")
	}
	if resp.InputTokens != 8 {
		t.Errorf("input_tokens = %d, want 8", resp.InputTokens)
	}
}

func TestGoogleProvider_Complete_RoleMappings(t *testing.T) {
	var received geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		json.NewEncoder(w).Encode(geminiText("ok"))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	_, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: "system", Content: "You are a study buddy."},
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
			{Role: "user", Content: "explain recursion"},
		},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// System messages move to systemInstruction, assistant maps to "model".
	if len(received.Contents) != 3 {
		t.Fatalf("got %d contents, want 3 (system should be lifted out)", len(received.Contents))
	}
	if received.Contents[1].Role != "model" {
		t.Errorf("assistant role mapped to %q, want %q", received.Contents[1].Role, "model")
	}
	if received.SystemInstruction == nil || received.SystemInstruction.Parts[0].Text != "You are a study buddy." {
		t.Errorf("systemInstruction = %+v, want the system message", received.SystemInstruction)
	}
}

func TestGoogleProvider_Complete_StructuredOutput(t *testing.T) {
	var raw map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		json.NewEncoder(w).Encode(geminiText(`["Loops","Recursion"]`))
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))

	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages:        []Message{{Role: "user", Content: "list topics"}},
		Schema:          StringArraySchema("topics"),
		DisableThinking: true,
		Temperature:     0.5,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != `["Loops","Recursion"]` {
		t.Errorf("content = %q", resp.Content)
	}

	cfg, ok := raw["generationConfig"].(map[string]any)
	if !ok {
		t.Fatalf("generationConfig missing from request: %v", raw)
	}
	if cfg["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v, want application/json", cfg["responseMimeType"])
	}
	schema, _ := cfg["responseJsonSchema"].(map[string]any)
	if schema["type"] != "array" {
		t.Errorf("responseJsonSchema.type = %v, want array", schema["type"])
	}
	thinking, _ := cfg["thinkingConfig"].(map[string]any)
	if thinking == nil || thinking["thinkingBudget"] != float64(0) {
		t.Errorf("thinkingConfig = %v, want thinkingBudget 0", cfg["thinkingConfig"])
	}
	if cfg["temperature"] != 0.5 {
		t.Errorf("temperature = %v, want 0.5", cfg["temperature"])
	}
}

func TestGoogleProvider_TaskModels(t *testing.T) {
	tests := []struct {
		name string
		opts []GoogleOption
		req  CompletionRequest
		want string
	}{
		{"default", nil, CompletionRequest{Task: TaskExplanation}, "gemini-2.5-flash"},
		{"unit test uses pro", nil, CompletionRequest{Task: TaskUnitTest}, "gemini-2.5-pro"},
		{"override default", []GoogleOption{WithGoogleModel("gemini-2.0-flash")}, CompletionRequest{Task: TaskQuiz}, "gemini-2.0-flash"},
		{"override task", []GoogleOption{WithGoogleTaskModel(TaskUnitTest, "gemini-exp")}, CompletionRequest{Task: TaskUnitTest}, "gemini-exp"},
		{"request wins", nil, CompletionRequest{Task: TaskUnitTest, Model: "custom"}, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := NewGoogleProvider("test-key", tt.opts...)
			if got := provider.model(tt.req); got != tt.want {
				t.Errorf("model() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGoogleProvider_Complete_SkipsThoughtParts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{{Content: geminiContent{Parts: []geminiPart{
				{Text: "thinking...", Thought: true},
				{Text: "answer"},
			}}}},
		})
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	resp, err := provider.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "answer" {
		t.Errorf("content = %q, want %q", resp.Content, "answer")
	}
}

func TestGoogleProvider_Complete_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error": "forbidden"}`))
		}},
		{"no candidates", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates": []}`))
		}},
		{"blocked", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"promptFeedback": {"blockReason": "SAFETY"}}`))
		}},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
			_, err := provider.Complete(context.Background(), CompletionRequest{
				Messages: []Message{{Role: "user", Content: "hello"}},
			})
			if err == nil {
				t.Fatal("Complete() should return error")
			}
		})
	}
}

func TestGoogleProvider_StreamComplete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("alt") != "sse" {
			t.Errorf("alt = %q, want sse", r.URL.Query().Get("alt"))
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("missing or wrong API key in query")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Functions ", "group ", "code."} {
			data, _ := json.Marshal(geminiText(part))
			fmt.Fprintf(w, "data: %s\r\n\r\n", data)
		}
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	stream, err := provider.StreamComplete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "what is a function?"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var parts []string
	var done bool
	for chunk := range stream {
		if chunk.Error != nil {
			t.Fatalf("chunk error = %v", chunk.Error)
		}
		if chunk.Content != "" {
			parts = append(parts, chunk.Content)
		}
		done = done || chunk.Done
	}
	if strings.Join(parts, "") != "Functions group code." {
		t.Errorf("parts = %q", parts)
	}
	if len(parts) != 3 {
		t.Errorf("got %d fragments, want 3 in order", len(parts))
	}
	if !done {
		t.Error("stream should end with a Done chunk")
	}
}

func TestGoogleProvider_StreamComplete_MalformedChunk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := json.Marshal(geminiText("partial"))
		fmt.Fprintf(w, "data: %s\n\n", data)
		fmt.Fprint(w, "data: {broken\n\n")
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	stream, err := provider.StreamComplete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}

	var content string
	var streamErr error
	for chunk := range stream {
		content += chunk.Content
		if chunk.Error != nil {
			streamErr = chunk.Error
		}
	}
	if content != "partial" {
		t.Errorf("content = %q, want %q", content, "partial")
	}
	if streamErr == nil {
		t.Error("expected a stream error for the malformed chunk")
	}
}

func TestGoogleProvider_StreamComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
	if _, err := provider.StreamComplete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "q"}},
	}); err == nil {
		t.Fatal("StreamComplete() should return error before streaming on API error")
	}
}

func TestGoogleProvider_HealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    bool
	}{
		{"healthy", http.StatusOK, false},
		{"unhealthy", http.StatusForbidden, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.URL.Path, "/models") {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			provider := NewGoogleProvider("test-key", WithGoogleBaseURL(server.URL))
			err := provider.HealthCheck(context.Background())

			if (err != nil) != tt.wantErr {
				t.Errorf("HealthCheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoogleProvider_Models(t *testing.T) {
	provider := NewGoogleProvider("test-key")
	models := provider.Models()

	if len(models) == 0 {
		t.Fatal("Models() returned empty list")
	}
	for _, m := range models {
		if m.Name == "" {
			t.Errorf("model %q has empty name", m.ID)
		}
	}
}
