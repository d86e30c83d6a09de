package ai_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/p-n-ai/muse/internal/ai"
)

func TestRouter_SingleProvider(t *testing.T) {
	router := ai.NewRouter()
	mock := ai.NewMockProvider("Hello!")
	router.Register("google", mock)

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Hello!" {
		t.Errorf("Content = %q, want %q", resp.Content, "Hello!")
	}
}

func TestRouter_Fallback(t *testing.T) {
	router := ai.NewRouter()

	failing := &ai.MockProvider{Err: errors.New("rate limited")}
	fallback := ai.NewMockProvider("Fallback response")

	router.Register("google", failing)
	router.Register("ollama", fallback)

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "Fallback response" {
		t.Errorf("Content = %q, want %q", resp.Content, "Fallback response")
	}
}

func TestRouter_AllProvidersFail(t *testing.T) {
	router := ai.NewRouter()

	router.Register("google", &ai.MockProvider{Err: errors.New("fail 1")})
	router.Register("ollama", &ai.MockProvider{Err: errors.New("fail 2")})

	_, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err == nil {
		t.Fatal("Complete() should return error when all providers fail")
	}
	if !errors.Is(err, ai.ErrNoProvider) {
		t.Errorf("error = %v, want ErrNoProvider", err)
	}
	if !strings.Contains(err.Error(), "fail 2") {
		t.Errorf("error = %q, want last provider error included", err.Error())
	}
}

func TestRouter_NoProviders(t *testing.T) {
	router := ai.NewRouter()

	_, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if !errors.Is(err, ai.ErrNoProvider) {
		t.Fatalf("Complete() error = %v, want ErrNoProvider", err)
	}
}

func TestRouter_Providers(t *testing.T) {
	router := ai.NewRouter()
	if got := router.Providers(); len(got) != 0 {
		t.Errorf("Providers() = %v, want none", got)
	}

	router.Register("mock", ai.NewMockProvider("ok"))
	if got := router.Providers(); len(got) != 1 || got[0] != "mock" {
		t.Errorf("Providers() = %v, want [mock]", got)
	}
}

func TestRouter_FallbackOrder(t *testing.T) {
	router := ai.NewRouter()

	// First registered should be tried first.
	first := ai.NewMockProvider("first")
	second := ai.NewMockProvider("second")

	router.Register("first", first)
	router.Register("second", second)

	resp, err := router.Complete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})

	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("Content = %q, want %q (first registered should be tried first)", resp.Content, "first")
	}
	if second.Calls() != 0 {
		t.Errorf("second provider called %d times, want 0", second.Calls())
	}
}

func collect(t *testing.T, stream <-chan ai.StreamChunk) (string, error) {
	t.Helper()
	var b strings.Builder
	var err error
	for chunk := range stream {
		b.WriteString(chunk.Content)
		if chunk.Error != nil {
			err = chunk.Error
		}
	}
	return b.String(), err
}

func TestRouter_StreamComplete(t *testing.T) {
	router := ai.NewRouter()
	mock := &ai.MockProvider{StreamChunks: []string{"one ", "two ", "three"}}
	router.Register("google", mock)

	stream, err := router.StreamComplete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "count"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	got, streamErr := collect(t, stream)
	if streamErr != nil {
		t.Fatalf("stream error = %v", streamErr)
	}
	if got != "one two three" {
		t.Errorf("streamed = %q, want %q", got, "one two three")
	}
}

func TestRouter_StreamComplete_FallbackBeforeFirstChunk(t *testing.T) {
	router := ai.NewRouter()
	router.Register("google", &ai.MockProvider{Err: errors.New("unavailable")})
	router.Register("openai", &ai.MockProvider{StreamChunks: []string{}, StreamErr: errors.New("broken stream")})
	router.Register("ollama", &ai.MockProvider{StreamChunks: []string{"fallback"}})

	stream, err := router.StreamComplete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	got, streamErr := collect(t, stream)
	if streamErr != nil {
		t.Fatalf("stream error = %v", streamErr)
	}
	if got != "fallback" {
		t.Errorf("streamed = %q, want fallback", got)
	}
}

func TestRouter_StreamComplete_NoFallbackAfterFirstChunk(t *testing.T) {
	router := ai.NewRouter()
	primary := &ai.MockProvider{StreamChunks: []string{"partial"}, StreamErr: errors.New("connection reset")}
	secondary := &ai.MockProvider{StreamChunks: []string{"other"}}
	router.Register("google", primary)
	router.Register("openai", secondary)

	stream, err := router.StreamComplete(context.Background(), ai.CompletionRequest{
		Messages: []ai.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("StreamComplete() error = %v", err)
	}
	got, streamErr := collect(t, stream)
	if got != "partial" {
		t.Errorf("streamed = %q, want partial", got)
	}
	if streamErr == nil {
		t.Error("expected the mid-stream error to be relayed")
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.Calls())
	}
}

func TestRouter_StreamComplete_AllFail(t *testing.T) {
	router := ai.NewRouter()
	router.Register("google", &ai.MockProvider{Err: errors.New("down")})

	if _, err := router.StreamComplete(context.Background(), ai.CompletionRequest{}); !errors.Is(err, ai.ErrNoProvider) {
		t.Fatalf("StreamComplete() error = %v, want ErrNoProvider", err)
	}
}
