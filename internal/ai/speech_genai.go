package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultSpeechModel = "gemini-2.5-flash-preview-tts"

// ErrNoAudio is returned when the speech model answers without audio data.
var ErrNoAudio = errors.New("no audio data received")

// GenAISpeech synthesizes speech with the Gemini TTS models through the genai
// SDK. Audio is returned as raw 16-bit PCM, mono, 24 kHz.
type GenAISpeech struct {
	client *genai.Client
	model  string
}

// SpeechOption configures a GenAISpeech.
type SpeechOption func(*speechOptions)

type speechOptions struct {
	model      string
	baseURL    string
	httpClient *http.Client
}

// WithSpeechModel sets the TTS model.
func WithSpeechModel(model string) SpeechOption {
	return func(o *speechOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithSpeechBaseURL sets the API base URL (for testing).
func WithSpeechBaseURL(url string) SpeechOption {
	return func(o *speechOptions) {
		o.baseURL = url
	}
}

// WithSpeechHTTPClient sets a custom HTTP client.
func WithSpeechHTTPClient(client *http.Client) SpeechOption {
	return func(o *speechOptions) {
		o.httpClient = client
	}
}

// NewGenAISpeech creates a speech synthesizer for the Gemini API.
func NewGenAISpeech(ctx context.Context, apiKey string, opts ...SpeechOption) (*GenAISpeech, error) {
	o := speechOptions{model: defaultSpeechModel}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GenAISpeech{client: client, model: o.model}, nil
}

// Synthesize reads script aloud with a prebuilt voice.
func (s *GenAISpeech) Synthesize(ctx context.Context, script, voice string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(script), config)
	if err != nil {
		return nil, fmt.Errorf("generate speech: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, ErrNoAudio
}
