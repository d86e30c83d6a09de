// Package imagegen calls a Hugging Face text-to-image inference endpoint.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
)

// DefaultModelURL is the Stable Diffusion XL inference endpoint.
const DefaultModelURL = "https://api-inference.huggingface.co/models/stabilityai/stable-diffusion-xl-base-1.0"

const maxImageBytes = 20 << 20

var (
	// ErrDisabled is returned when no API key is configured.
	ErrDisabled = errors.New("image generation disabled: no API key")
	// ErrWarmingUp is returned on HTTP 503 while the model loads.
	ErrWarmingUp = errors.New("image model is loading")
	// ErrNotImage is returned when a successful response carries no image.
	ErrNotImage = errors.New("response is not an image")
	// ErrRequestFailed wraps any other non-200 status.
	ErrRequestFailed = errors.New("image request failed")
)

// Message returns the learner-facing text for an image generation error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrDisabled):
		return "Image generation is not configured."
	case errors.Is(err, ErrWarmingUp):
		return "The visualization model is currently loading. Please wait about 20 seconds and try again."
	case errors.Is(err, ErrNotImage):
		return "The model did not return a valid image. It may be under maintenance."
	case errors.Is(err, ErrRequestFailed):
		var se *StatusError
		if errors.As(err, &se) {
			return fmt.Sprintf("Failed to generate image. Status: %d.", se.Status)
		}
	}
	return "Failed to visualize the concept. Please try again."
}

// StatusError carries the HTTP status of a failed request.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusServiceUnavailable {
		return ErrWarmingUp
	}
	return ErrRequestFailed
}

// Client generates images from prompts.
type Client struct {
	apiKey   string
	modelURL string
	client   *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithModelURL overrides the inference endpoint. Empty values are ignored.
func WithModelURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.modelURL = url
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.client = client }
}

// New creates a client. An empty apiKey yields a client whose every call
// fails with ErrDisabled.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:   apiKey,
		modelURL: DefaultModelURL,
		client:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool { return c.apiKey != "" }

// Generate renders the prompt and returns the image bytes and their MIME
// type.
func (c *Client) Generate(ctx context.Context, prompt string) ([]byte, string, error) {
	if !c.Enabled() {
		return nil, "", ErrDisabled
	}

	body, err := json.Marshal(map[string]string{"inputs": prompt})
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.modelURL, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		slog.Warn("image request failed", "status", resp.StatusCode, "body", truncate(string(data), 200))
		return nil, "", &StatusError{Status: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mediaType, "image/") || len(data) == 0 {
		slog.Warn("image endpoint returned non-image data", "content_type", contentType, "body", truncate(string(data), 200))
		return nil, "", ErrNotImage
	}
	return data, mediaType, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
