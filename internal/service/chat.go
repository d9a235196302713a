package service

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ChatService generates text through an OpenAI-compatible chat completion API.
type ChatService struct {
	client    *resty.Client
	model     string
	maxTokens int
	endpoint  string
}

// ChatConfig holds configuration for the chat service.
type ChatConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	MaxTokens  int
	Timeout    time.Duration
	RetryCount int
}

// NewChatService creates a new chat service.
// Parameters:
//   - cfg: chat configuration including model, API key and retry policy.
//
// Returns:
//   - *ChatService: initialized chat client wrapper.
func NewChatService(cfg *ChatConfig) *ChatService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	configureThrottleRetry(client, cfg.RetryCount)

	return &ChatService{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		endpoint:  strings.TrimRight(baseURL, "/") + "/chat/completions",
	}
}

// GetModel returns the model name being used.
func (s *ChatService) GetModel() string {
	return s.model
}

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
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Generate sends systemPrompt and prompt and returns the reply text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - systemPrompt: instructions framing the request.
//   - prompt: the rendered user prompt.
//
// Returns:
//   - string: reply text.
//   - error: non-nil if the API request fails after retries.
func (s *ChatService) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   s.maxTokens,
		Temperature: 0.7,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call chat API: %w", err)
	}
	if err := checkStatus("chat", httpResp, resp.Error); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response (status: %d)", httpResp.StatusCode())
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty chat response")
	}
	return content, nil
}

// configureThrottleRetry retries throttled and 5xx responses with exponential
// backoff starting at one second.
func configureThrottleRetry(client *resty.Client, retries int) {
	if retries < 0 {
		retries = 0
	}
	client.SetRetryCount(retries)
	client.SetRetryWaitTime(time.Second)
	client.SetRetryMaxWaitTime(4 * time.Second)
	client.AddRetryCondition(func(r *resty.Response, err error) bool {
		if r == nil {
			return false
		}
		return isThrottled(r.StatusCode())
	})
}

func isThrottled(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable || status == http.StatusBadGateway
}

func checkStatus(api string, httpResp *resty.Response, apiErr *apiError) error {
	status := httpResp.StatusCode()
	if status >= 200 && status < 300 {
		if apiErr != nil && apiErr.Message != "" {
			return fmt.Errorf("%s API error: %s", api, apiErr.Message)
		}
		return nil
	}
	if apiErr != nil && apiErr.Message != "" {
		return fmt.Errorf("%s API returned error: HTTP %d: %s", api, status, apiErr.Message)
	}
	return fmt.Errorf("%s API returned error: HTTP %d: %s", api, status, string(httpResp.Body()))
}
