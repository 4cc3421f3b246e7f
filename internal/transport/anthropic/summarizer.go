// Package anthropic adapts the Anthropic Messages API to the condenser
// contract.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
)

const condenseSystemPrompt = "You condense agent memory. Produce a concise, " +
	"factual summary of the following notes. Preserve identifiers, decisions, " +
	"constraints and open questions. Do not add information."

// Summarizer condenses text via the Anthropic Messages API.
type Summarizer struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	logger    *zap.Logger
}

// Config holds the condenser provider settings.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
	Logger    *zap.Logger
}

// NewSummarizer creates an Anthropic condenser.
func NewSummarizer(cfg *Config) *Summarizer {
	return &Summarizer{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    cfg.Logger,
	}
}

// Condense produces a summary of the given text.
func (s *Summarizer) Condense(ctx context.Context, text string) (string, error) {
	resp, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: condenseSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages api: %w", err)
	}

	var out string
	for _, block := range resp.Content {
		if block.Type == "text" {
			out += block.Text
		}
	}
	if out == "" {
		return "", fmt.Errorf("empty completion response")
	}

	s.logger.Debug("Text condensed",
		zap.String("model", s.model),
		zap.Int("input_chars", len(text)),
		zap.Int("output_chars", len(out)),
	)
	return out, nil
}
