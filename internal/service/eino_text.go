package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoTextGenerator generates text through an eino chat model.
type EinoTextGenerator struct {
	chatModel model.BaseChatModel
	model     string
}

// NewEinoTextGenerator creates a text generator backed by the eino OpenAI chat model.
// Parameters:
//   - ctx: context used while constructing the model client.
//   - cfg: chat configuration; RetryCount and Timeout are left to the model client.
//
// Returns:
//   - *EinoTextGenerator: initialized generator.
//   - error: non-nil if the chat model cannot be created.
func NewEinoTextGenerator(ctx context.Context, cfg *ChatConfig) (*EinoTextGenerator, error) {
	config := &openai.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
	}
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		config.MaxTokens = &maxTokens
	}

	chatModel, err := openai.NewChatModel(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}
	return NewEinoTextGeneratorWithModel(chatModel, cfg.Model), nil
}

// NewEinoTextGeneratorWithModel wraps an existing eino chat model.
func NewEinoTextGeneratorWithModel(chatModel model.BaseChatModel, modelName string) *EinoTextGenerator {
	return &EinoTextGenerator{chatModel: chatModel, model: modelName}
}

// GetModel returns the model name being used.
func (g *EinoTextGenerator) GetModel() string {
	return g.model
}

// Generate sends systemPrompt and prompt and returns the reply text.
func (g *EinoTextGenerator) Generate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}
	resp, err := g.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate with eino: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("empty chat response")
	}
	return strings.TrimSpace(resp.Content), nil
}
