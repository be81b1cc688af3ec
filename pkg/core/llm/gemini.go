package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"billaudit/pkg/core/prompt"
	"billaudit/pkg/models"
)

// GeminiProvider adapts Google's Gemini models via the GenAI SDK. It is a
// text-only analyzer: the orchestrator falls back to AnalyzeDocument when
// it sees the fact-aware capability is absent.
type GeminiProvider struct {
	name   string
	model  string
	client *genai.Client
	logger *zap.Logger
}

var _ Provider = (*GeminiProvider)(nil)

// NewGeminiProvider creates the adapter. Construction fails when the API
// key is missing or the client cannot be built; the caller skips
// registration in that case and other providers are unaffected.
func NewGeminiProvider(ctx context.Context, model, apiKey string, logger *zap.Logger) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not set")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiProvider{name: model, model: model, client: client, logger: logger}, nil
}

func (p *GeminiProvider) Name() string { return p.name }

func (p *GeminiProvider) HealthCheck(ctx context.Context) bool {
	return p.client != nil
}

// RunPrompt submits the prompt requesting a JSON response. All of our
// prompts prescribe JSON shapes, so the MIME type is fixed.
func (p *GeminiProvider) RunPrompt(ctx context.Context, promptText string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
	}
	result, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(promptText), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return result.Text(), nil
}

func (p *GeminiProvider) AnalyzeDocument(ctx context.Context, text string) (*models.AnalysisResult, error) {
	resp, err := p.RunPrompt(ctx, prompt.Analysis(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAnalyzerFailed, err)
	}
	return ParseIssues(resp, p.name, models.SourceLLM)
}
