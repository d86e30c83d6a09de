package content

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/p-n-ai/muse/internal/imagegen"
)

// ErrNoImager is returned when no image provider is configured.
var ErrNoImager = errors.New("image generation is not configured")

// FetchImage renders a diagram for the topic and returns the image bytes
// base64-encoded. A non-empty visualPrompt replaces the default diagram
// description.
func (s *Service) FetchImage(ctx context.Context, topic, subject, visualPrompt string) (string, error) {
	if s.imager == nil {
		return "", providerError("image", imagegen.Message(imagegen.ErrDisabled), ErrNoImager)
	}

	prompt := strings.TrimSpace(visualPrompt)
	if prompt == "" {
		prompt = imagePrompt(topic, subject, s.style(subject))
	}

	data, _, err := s.imager.Generate(ctx, prompt)
	if err == nil && len(data) == 0 {
		err = errEmpty
	}
	if err != nil {
		return "", providerError("image", imagegen.Message(err), err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
