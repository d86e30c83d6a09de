package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrNoProvider is returned when no registered provider could serve a request.
var ErrNoProvider = errors.New("all AI providers failed")

// Router tries registered providers in registration order.
type Router struct {
	providers map[string]Provider
	fallback  []string // ordered fallback chain
	mu        sync.RWMutex
}

// NewRouter creates a new AI router.
func NewRouter() *Router {
	return &Router{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the router.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = provider
	r.fallback = append(r.fallback, name)
}

type namedProvider struct {
	name     string
	provider Provider
}

func (r *Router) chain() []namedProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]namedProvider, 0, len(r.fallback))
	for _, name := range r.fallback {
		out = append(out, namedProvider{name: name, provider: r.providers[name]})
	}
	return out
}

// Complete routes a request to the first provider that succeeds.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	var lastErr error
	for _, np := range r.chain() {
		resp, err := np.provider.Complete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return CompletionResponse{}, ctx.Err()
			}
			slog.Warn("AI provider failed, trying next",
				"provider", np.name,
				"task", req.Task.String(),
				"error", err,
			)
			lastErr = err
			continue
		}

		slog.Debug("AI request completed",
			"provider", np.name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	if lastErr != nil {
		return CompletionResponse{}, fmt.Errorf("%w: %w", ErrNoProvider, lastErr)
	}
	return CompletionResponse{}, ErrNoProvider
}

// StreamComplete routes a streaming request. A provider is skipped if it fails
// before its first chunk arrives; once a chunk has been relayed the stream is
// committed to that provider.
func (r *Router) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	var lastErr error
	for _, np := range r.chain() {
		stream, err := np.provider.StreamComplete(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("AI provider stream failed, trying next", "provider", np.name, "error", err)
			lastErr = err
			continue
		}

		var first StreamChunk
		var ok bool
		select {
		case first, ok = <-stream:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if ok && first.Error != nil && first.Content == "" {
			slog.Warn("AI provider stream failed, trying next", "provider", np.name, "error", first.Error)
			lastErr = first.Error
			continue
		}

		out := make(chan StreamChunk)
		go func() {
			defer close(out)
			if !ok {
				return
			}
			if !sendChunk(ctx, out, first) {
				return
			}
			for chunk := range stream {
				if !sendChunk(ctx, out, chunk) {
					return
				}
			}
		}()
		return out, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoProvider, lastErr)
	}
	return nil, ErrNoProvider
}

// Providers returns the registered provider names in fallback order.
func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.fallback...)
}
