package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JakeFAU/creator-discovery/internal/scraping"
)

// AnthropicConfig configures the Claude-backed generator.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	MaxTokens int64
	// BaseURL overrides the API endpoint (tests).
	BaseURL string
}

// AnthropicGenerator asks a Claude model for related search keywords.
type AnthropicGenerator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicGenerator builds a generator. The API key is required.
func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicGenerator{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Generate returns the model's keyword list for seed.
func (g *AnthropicGenerator) Generate(ctx context.Context, seed string, platform scraping.Platform) ([]string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt(seed, platform))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseKeywords(text.String()), nil
}

func prompt(seed string, platform scraping.Platform) string {
	target := "social media"
	if platform != "" {
		target = string(platform)
	}
	return fmt.Sprintf(
		"Suggest up to %d short search keywords for finding %s creators related to %q. "+
			"Reply with a JSON array of strings and nothing else.",
		scraping.MaxKeywords, target, seed,
	)
}

// parseKeywords reads a JSON array from the reply, falling back to one
// keyword per line.
func parseKeywords(reply string) []string {
	start := strings.Index(reply, "[")
	end := strings.LastIndex(reply, "]")
	if start >= 0 && end > start {
		var out []string
		if err := json.Unmarshal([]byte(reply[start:end+1]), &out); err == nil {
			return out
		}
	}
	var out []string
	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*0123456789.)"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
