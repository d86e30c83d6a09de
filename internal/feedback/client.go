// Package feedback relays learner feedback to a form endpoint such as
// Formspree.
package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrDisabled is returned when no endpoint is configured.
	ErrDisabled = errors.New("feedback disabled: no endpoint configured")
	// ErrInvalid is returned for a submission without a message.
	ErrInvalid = errors.New("feedback message is required")
)

// Status is the outcome of a submission as shown to the learner.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Submission is one feedback form entry. Class is the learner's standard.
type Submission struct {
	Name    string `json:"name"`
	Class   string `json:"class"`
	Message string `json:"message"`
}

// Client posts submissions to the relay.
type Client struct {
	endpoint string
	client   *http.Client
}

// New creates a client. An empty endpoint disables submissions.
func New(endpoint string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{endpoint: endpoint, client: client}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.endpoint != "" }

// Submit posts the submission and returns StatusSuccess when the relay
// accepts it. Any other outcome returns StatusError with the cause.
func (c *Client) Submit(ctx context.Context, sub Submission) (Status, error) {
	if !c.Enabled() {
		return StatusError, ErrDisabled
	}
	sub.Name = strings.TrimSpace(sub.Name)
	sub.Class = strings.TrimSpace(sub.Class)
	sub.Message = strings.TrimSpace(sub.Message)
	if sub.Message == "" {
		return StatusError, ErrInvalid
	}

	body, err := json.Marshal(sub)
	if err != nil {
		return StatusError, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return StatusError, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Error("feedback submission failed", "error", err)
		return StatusError, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("feedback relay rejected submission", "status", resp.StatusCode, "body", string(data))
		return StatusError, fmt.Errorf("feedback relay returned status %d", resp.StatusCode)
	}

	slog.Info("feedback submitted", "class", sub.Class)
	return StatusSuccess, nil
}
