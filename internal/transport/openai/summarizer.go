package openai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const condenseSystemPrompt = "You condense agent memory. Produce a concise, " +
	"factual summary of the following notes. Preserve identifiers, decisions, " +
	"constraints and open questions. Do not add information."

// Summarizer condenses text via an OpenAI-compatible chat completion API.
type Summarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *zap.Logger
}

// SummarizerConfig holds the condenser provider settings.
type SummarizerConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
	Logger    *zap.Logger
}

// NewSummarizer creates an OpenAI-compatible condenser.
func NewSummarizer(cfg *SummarizerConfig) *Summarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Summarizer{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Condense produces a summary of the given text.
func (s *Summarizer) Condense(ctx context.Context, text string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: condenseSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion response")
	}

	s.logger.Debug("Text condensed",
		zap.String("model", s.model),
		zap.Int("input_chars", len(text)),
		zap.Int("output_chars", len(resp.Choices[0].Message.Content)),
	)
	return resp.Choices[0].Message.Content, nil
}
