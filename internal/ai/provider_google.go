package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"
)

// GoogleProvider implements Provider for Google Gemini.
type GoogleProvider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	taskModels   map[TaskType]string
	models       []ModelInfo
}

// GoogleOption configures a GoogleProvider.
type GoogleOption func(*GoogleProvider)

// WithGoogleBaseURL sets the base URL (for testing).
func WithGoogleBaseURL(url string) GoogleOption {
	return func(p *GoogleProvider) {
		p.baseURL = url
	}
}

// WithGoogleHTTPClient sets a custom HTTP client.
func WithGoogleHTTPClient(client *http.Client) GoogleOption {
	return func(p *GoogleProvider) {
		p.client = client
	}
}

// WithGoogleModel sets the model used when neither the request nor a task
// override names one.
func WithGoogleModel(model string) GoogleOption {
	return func(p *GoogleProvider) {
		if model != "" {
			p.defaultModel = model
		}
	}
}

// WithGoogleTaskModel routes a task to a specific model.
func WithGoogleTaskModel(task TaskType, model string) GoogleOption {
	return func(p *GoogleProvider) {
		if model != "" {
			p.taskModels[task] = model
		}
	}
}

// NewGoogleProvider creates a new Google Gemini provider.
func NewGoogleProvider(apiKey string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		apiKey:       apiKey,
		baseURL:      defaultGeminiBaseURL,
		client:       http.DefaultClient,
		defaultModel: defaultGeminiModel,
		taskModels: map[TaskType]string{
			TaskUnitTest: "gemini-2.5-pro",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// geminiRequest is the request body for the Gemini generateContent API.
type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text    string `json:"text"`
	Thought bool   `json:"thought,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens    int                   `json:"maxOutputTokens,omitempty"`
	Temperature        *float64              `json:"temperature,omitempty"`
	ResponseMIMEType   string                `json:"responseMimeType,omitempty"`
	ResponseJSONSchema map[string]any        `json:"responseJsonSchema,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingBudget int `json:"thinkingBudget"`
}

// geminiResponse is the response from the Gemini API. Streaming responses
// send one of these per event.
type geminiResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata geminiUsage `json:"usageMetadata"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiUsage struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
}

// text concatenates the non-thought parts of the first candidate.
func (r geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, part := range r.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	return b.String()
}

func (p *GoogleProvider) model(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	if m, ok := p.taskModels[req.Task]; ok {
		return m
	}
	return p.defaultModel
}

func (p *GoogleProvider) buildRequest(req CompletionRequest) geminiRequest {
	contents := make([]geminiContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := m.Role
		// Gemini uses "user" and "model" roles; map "assistant" to "model".
		if role == RoleAssistant {
			role = "model"
		}
		// System messages travel as systemInstruction.
		if role == RoleSystem {
			continue
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: m.Content}},
		})
	}

	gemReq := geminiRequest{Contents: contents}
	if sys := systemPrompt(req.Messages); sys != "" {
		gemReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: sys}}}
	}

	if req.MaxTokens == 0 && req.Temperature <= 0 && req.Schema == nil && !req.DisableThinking {
		return gemReq
	}
	config := &geminiGenerationConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		temp := req.Temperature
		config.Temperature = &temp
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJSONSchema = req.Schema.Definition
	}
	if req.DisableThinking {
		config.ThinkingConfig = &geminiThinkingConfig{ThinkingBudget: 0}
	}
	gemReq.GenerationConfig = config
	return gemReq
}

func (p *GoogleProvider) post(ctx context.Context, model, method string, gemReq geminiRequest) (*http.Response, error) {
	body, err := json.Marshal(gemReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:%s", p.baseURL, model, method)
	if strings.Contains(url, "?") {
		url += "&key=" + p.apiKey
	} else {
		url += "?key=" + p.apiKey
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini api error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return resp, nil
}

func (p *GoogleProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	model := p.model(req)

	resp, err := p.post(ctx, model, "generateContent", p.buildRequest(req))
	if err != nil {
		return CompletionResponse{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	var gemResp geminiResponse
	if err := json.Unmarshal(respBody, &gemResp); err != nil {
		return CompletionResponse{}, fmt.Errorf("unmarshal response: %w", err)
	}

	if gemResp.PromptFeedback != nil && gemResp.PromptFeedback.BlockReason != "" {
		return CompletionResponse{}, fmt.Errorf("prompt blocked: %s", gemResp.PromptFeedback.BlockReason)
	}
	if len(gemResp.Candidates) == 0 || len(gemResp.Candidates[0].Content.Parts) == 0 {
		return CompletionResponse{}, fmt.Errorf("no content in response")
	}

	return CompletionResponse{
		Content:      gemResp.text(),
		Model:        model,
		InputTokens:  gemResp.UsageMetadata.PromptTokenCount,
		OutputTokens: gemResp.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// StreamComplete streams text fragments via streamGenerateContent over SSE.
func (p *GoogleProvider) StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, p.model(req), "streamGenerateContent?alt=sse", p.buildRequest(req))
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		err := readSSE(resp.Body, func(data string) error {
			var chunk geminiResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				return fmt.Errorf("unmarshal stream chunk: %w", err)
			}
			if chunk.PromptFeedback != nil && chunk.PromptFeedback.BlockReason != "" {
				return fmt.Errorf("prompt blocked: %s", chunk.PromptFeedback.BlockReason)
			}
			if text := chunk.text(); text != "" {
				if !sendChunk(ctx, ch, StreamChunk{Content: text}) {
					return errStopStream
				}
			}
			return nil
		})
		if err != nil {
			sendChunk(ctx, ch, StreamChunk{Error: fmt.Errorf("gemini stream: %w", err), Done: true})
			return
		}
		if ctx.Err() != nil {
			return
		}
		sendChunk(ctx, ch, StreamChunk{Done: true})
	}()
	return ch, nil
}

func (p *GoogleProvider) Models() []ModelInfo {
	if p.models != nil {
		return p.models
	}
	return []ModelInfo{
		{ID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", MaxTokens: 1048576, Description: "Most capable Google model"},
		{ID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", MaxTokens: 1048576, Description: "Fast, affordable Google model"},
	}
}

func (p *GoogleProvider) HealthCheck(ctx context.Context) error {
	url := fmt.Sprintf("%s/models?key=%s", p.baseURL, p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}
