// Package ai runs AI-analysis steps against an OpenAI-compatible chat completions API.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/bizflow/pkg/protocol"
)

const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "gpt-4o-mini"
	endpointPath   = "/v1/chat/completions"
)

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client implements protocol.AIAnalyzer.
type Client struct {
	config Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(config Config, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger.With("module", "ai_client"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze sends the prompt with the run context attached. Rate limits and server
// errors are transient; other rejected requests are validation errors.
func (c *Client) Analyze(ctx context.Context, req protocol.AnalysisRequest) (protocol.AnalysisResult, error) {
	if c.config.APIKey == "" {
		return protocol.AnalysisResult{}, protocol.Configurationf("AI api key is not configured")
	}

	model := req.Model
	if model == "" {
		model = c.config.Model
	}

	userPrompt, err := withContext(req.Prompt, req.Context)
	if err != nil {
		return protocol.AnalysisResult{}, protocol.Validationf("encoding analysis context: %w", err)
	}

	body := chatRequest{
		Model:       model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}

	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: userPrompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return protocol.AnalysisResult{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + endpointPath

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return protocol.AnalysisResult{}, protocol.Configurationf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.AnalysisResult{}, fmt.Errorf("AI request failed: %w", ctx.Err())
		}

		return protocol.AnalysisResult{}, protocol.Transientf("AI request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode >= 400 {
		return protocol.AnalysisResult{}, mapHTTPError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return protocol.AnalysisResult{}, protocol.Transientf("decoding AI response: %w", err)
	}

	if len(decoded.Choices) == 0 {
		return protocol.AnalysisResult{}, protocol.Transientf("AI response has no choices")
	}

	if decoded.Model == "" {
		decoded.Model = model
	}

	c.logger.DebugContext(ctx, "analysis finished", "model", decoded.Model, "tokens", decoded.Usage.TotalTokens)

	return protocol.AnalysisResult{
		Model:   decoded.Model,
		Content: decoded.Choices[0].Message.Content,
		Tokens:  decoded.Usage.TotalTokens,
	}, nil
}

func withContext(prompt string, scope map[string]any) (string, error) {
	if len(scope) == 0 {
		return prompt, nil
	}

	data, err := json.Marshal(scope)
	if err != nil {
		return "", err
	}

	return prompt + "\n\nContext:\n" + string(data), nil
}

func mapHTTPError(resp *http.Response) error {
	msg := readErrorMessage(resp.Body)

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return protocol.Transientf("AI provider returned status=%d msg=%s", resp.StatusCode, msg)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return protocol.Configurationf("AI provider rejected credentials: status=%d msg=%s", resp.StatusCode, msg)
	}

	return protocol.Validationf("AI provider rejected request: status=%d msg=%s", resp.StatusCode, msg)
}

func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return ""
	}

	var decoded errorResponse
	if err := json.Unmarshal(data, &decoded); err == nil && decoded.Error.Message != "" {
		return decoded.Error.Message
	}

	return strings.TrimSpace(string(data))
}
