package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"billaudit/pkg/core/prompt"
	"billaudit/pkg/models"
)

const openAIBaseURL = "https://api.openai.com/v1"

// chatRequest is the OpenAI-compatible chat/completions wire shape. The
// same client serves api.openai.com and local OpenAI-compatible servers
// (the medgemma endpoint speaks this protocol).
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIProvider adapts any OpenAI-compatible chat endpoint to the
// Provider contract. It is fact-aware.
type OpenAIProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	retry   RetryConfig
	logger  *zap.Logger
}

var _ FactAwareAnalyzer = (*OpenAIProvider)(nil)

// NewOpenAIProvider builds the standard OpenAI adapter registered under
// the model name (e.g. "gpt-4o-mini").
func NewOpenAIProvider(model, apiKey string, logger *zap.Logger) *OpenAIProvider {
	return newChatProvider(model, model, apiKey, openAIBaseURL, logger)
}

// NewMedGemmaProvider builds an adapter for a locally hosted MedGemma
// served behind an OpenAI-compatible endpoint.
func NewMedGemmaProvider(baseURL string, logger *zap.Logger) *OpenAIProvider {
	p := newChatProvider("medgemma", "medgemma", "local", baseURL, logger)
	return p
}

func newChatProvider(name, model, apiKey, baseURL string, logger *zap.Logger) *OpenAIProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAIProvider{
		name:    name,
		model:   model,
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
		retry:   DefaultRetry,
		logger:  logger,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

// HealthCheck passes when credentials are configured. No network call:
// registration must stay cheap and offline-safe.
func (p *OpenAIProvider) HealthCheck(ctx context.Context) bool {
	return p.apiKey != "" && p.baseURL != ""
}

// RunPrompt submits the prompt as a single user message.
func (p *OpenAIProvider) RunPrompt(ctx context.Context, promptText string) (string, error) {
	return p.chat(ctx, promptText)
}

// AnalyzeDocument runs the text-only analysis prompt.
func (p *OpenAIProvider) AnalyzeDocument(ctx context.Context, text string) (*models.AnalysisResult, error) {
	resp, err := p.chat(ctx, prompt.Analysis(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAnalyzerFailed, err)
	}
	return ParseIssues(resp, p.name, models.SourceLLM)
}

// AnalyzeDocumentWithFacts includes the extracted fact map in the prompt.
func (p *OpenAIProvider) AnalyzeDocumentWithFacts(ctx context.Context, text string, facts *models.FactMap) (*models.AnalysisResult, error) {
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal facts: %v", models.ErrAnalyzerFailed, err)
	}
	resp, err := p.chat(ctx, prompt.AnalysisWithFacts(text, string(factsJSON)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAnalyzerFailed, err)
	}
	return ParseIssues(resp, p.name, models.SourceLLM)
}

// chat posts one chat/completions request with rate-limit backoff. Only
// 429-class failures retry; every other failure class propagates after a
// single attempt.
func (p *OpenAIProvider) chat(ctx context.Context, userPrompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "user", Content: userPrompt},
		},
		MaxTokens:   4096,
		Temperature: 0.1,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			hint := time.Duration(0)
			if lastErr != nil {
				hint = parseRetryHint(lastErr.Error())
			}
			d := p.retry.delay(attempt-1, hint)
			p.logger.Debug("rate limited, backing off",
				zap.String("provider", p.name),
				zap.Int("attempt", attempt),
				zap.Duration("delay", d))
			if err := sleepCtx(ctx, d); err != nil {
				return "", err
			}
		}

		content, retryable, err := p.doChat(ctx, payload)
		if err == nil {
			return content, nil
		}
		if !retryable {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: retries exhausted: %v", models.ErrRateLimited, lastErr)
}

func (p *OpenAIProvider) doChat(ctx context.Context, payload []byte) (content string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	res, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", false, err
		}
		// Transient transport failure; retry on the same schedule.
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	if res.StatusCode == http.StatusTooManyRequests {
		return "", true, fmt.Errorf("%w: %s", models.ErrRateLimited, string(body))
	}
	if res.StatusCode != http.StatusOK {
		return "", false, fmt.Errorf("api status %d: %s", res.StatusCode, string(body))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("api error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, false, nil
}
