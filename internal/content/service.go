// Package content builds study prompts and turns provider output into
// validated study material: topic lists, explanations, quizzes, unit tests,
// narrated summaries and chat replies.
package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/muse/internal/ai"
	"github.com/p-n-ai/muse/internal/curriculum"
)

// DefaultVoice is the prebuilt voice used for narrated summaries.
const DefaultVoice = "Kore"

// Generator produces completions. *ai.Router satisfies it.
type Generator interface {
	Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)
	StreamComplete(ctx context.Context, req ai.CompletionRequest) (<-chan ai.StreamChunk, error)
}

// Speaker turns a script into raw 24 kHz mono 16-bit PCM.
type Speaker interface {
	Synthesize(ctx context.Context, script, voice string) ([]byte, error)
}

// Imager renders a prompt into encoded image bytes.
type Imager interface {
	Generate(ctx context.Context, prompt string) ([]byte, string, error)
}

// StyleLookup reports the prompt style of a subject. *curriculum.Loader
// satisfies it.
type StyleLookup interface {
	Style(subject string) curriculum.SubjectStyle
}

// ProviderError is the failure of a content operation. Message is safe to
// show to the learner as-is.
type ProviderError struct {
	Op      string
	Message string
	Err     error
}

func (e *ProviderError) Error() string { return e.Message }

func (e *ProviderError) Unwrap() error { return e.Err }

func providerError(op, message string, err error) error {
	slog.Error("content request failed", "op", op, "error", err)
	return &ProviderError{Op: op, Message: message, Err: err}
}

// errEmpty marks a response that parsed but held nothing usable.
var errEmpty = errors.New("empty result")

// ServiceConfig holds dependencies for the content service.
type ServiceConfig struct {
	Generator Generator
	Speaker   Speaker // optional; audio summaries fail without it
	Imager    Imager  // optional; image requests fail without it
	Styles    StyleLookup
	Voice     string

	// Chat history compaction; zero values use the defaults.
	CompactThreshold int
	KeepRecent       int
}

// Service is the content boundary between study state and the AI providers.
type Service struct {
	gen              Generator
	speaker          Speaker
	imager           Imager
	styles           StyleLookup
	voice            string
	compactThreshold int
	keepRecent       int
}

const (
	defaultCompactThreshold = 20
	defaultKeepRecent       = 6
)

// NewService creates a content service.
func NewService(cfg ServiceConfig) *Service {
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	threshold := cfg.CompactThreshold
	if threshold == 0 {
		threshold = defaultCompactThreshold
	}
	keepRecent := cfg.KeepRecent
	if keepRecent == 0 {
		keepRecent = defaultKeepRecent
	}
	return &Service{
		gen:              cfg.Generator,
		speaker:          cfg.Speaker,
		imager:           cfg.Imager,
		styles:           cfg.Styles,
		voice:            voice,
		compactThreshold: threshold,
		keepRecent:       keepRecent,
	}
}

// Voice returns the default narration voice.
func (s *Service) Voice() string { return s.voice }

func (s *Service) style(subject string) curriculum.SubjectStyle {
	if s.styles == nil {
		return curriculum.StyleGeneral
	}
	return s.styles.Style(subject)
}

// generateJSON runs a schema-constrained completion and decodes the result
// into out. The provider's schema support is not trusted; the raw JSON is
// validated again before decoding.
func (s *Service) generateJSON(ctx context.Context, req ai.CompletionRequest, out any) error {
	resp, err := s.gen.Complete(ctx, req)
	if err != nil {
		return err
	}

	raw := []byte(stripFences(resp.Content))
	if req.Schema != nil {
		if err := req.Schema.Validate(raw); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.Task, err)
	}

	slog.Debug("content generated",
		"task", req.Task.String(),
		"model", resp.Model,
		"tokens", resp.TotalTokens(),
	)
	return nil
}

// stripFences removes a surrounding markdown code fence some models add to
// JSON output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func userPrompt(prompt string) []ai.Message {
	return []ai.Message{{Role: ai.RoleUser, Content: prompt}}
}
