package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

// GeminiBackend calls the Generative Language REST API.
type GeminiBackend struct {
	httpClient  *resty.Client
	model       string
	system      string
	temperature float64
	maxTokens   int
}

// NewGeminiBackend creates a Resty-backed Gemini client.
func NewGeminiBackend(cfg config.AIConfig, tmpl PromptTemplate) *GeminiBackend {
	return &GeminiBackend{
		httpClient: resty.New().
			SetBaseURL(strings.TrimRight(cfg.GeminiBaseURL, "/")).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-goog-api-key", cfg.GeminiAPIKey).
			SetTimeout(cfg.Timeout + 5*time.Second),
		model:       cfg.GeminiModel,
		system:      tmpl.System(),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

func (b *GeminiBackend) Name() string { return config.ProviderGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

// Generate posts one generateContent request.
func (b *GeminiBackend) Generate(ctx context.Context, history []chat.ContextMessage, message string) (string, error) {
	req := b.buildRequest(history, message)

	var result geminiResponse
	resp, err := b.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post(fmt.Sprintf("/models/%s:generateContent", b.model))
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	if resp.IsError() {
		return "", &StatusError{StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return "", retry.Permanent(fmt.Errorf("gemini blocked prompt: %s", result.PromptFeedback.BlockReason))
	}
	if len(result.Candidates) == 0 {
		return "", retry.Transient(ErrEmptyReply)
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return text.String(), nil
}

func (b *GeminiBackend) buildRequest(history []chat.ContextMessage, message string) geminiRequest {
	contents := make([]geminiContent, 0, len(history)+1)
	for _, msg := range history {
		role := msg.Role
		if role != chat.ContextRoleModel {
			role = chat.ContextRoleUser
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Text}}})
	}
	contents = append(contents, geminiContent{Role: chat.ContextRoleUser, Parts: []geminiPart{{Text: message}}})

	req := geminiRequest{
		Contents: contents,
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     b.temperature,
			MaxOutputTokens: b.maxTokens,
		},
	}
	if b.system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: b.system}}}
	}
	return req
}
