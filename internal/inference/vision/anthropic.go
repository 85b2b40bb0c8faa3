// Package vision provides concrete VisionBackend implementations that plug
// into the extraction adapter kernel's image-description path.
package vision

import (
	"context"
	"encoding/base64"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"matric/internal/matricerr"
)

const defaultPrompt = "Describe this image in detail, including any text, objects, people, and notable visual elements."

// AnthropicBackend describes images using a Claude vision-capable model.
type AnthropicBackend struct {
	sdk        anthropic.Client
	model      string
	configured bool
}

// NewAnthropicBackend builds a backend against the given model name (e.g.
// "claude-3-7-sonnet-latest"). apiKey and baseURL follow ANTHROPIC_API_KEY /
// ANTHROPIC_BASE_URL conventions when empty.
func NewAnthropicBackend(apiKey, baseURL, model string) *AnthropicBackend {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(apiKey))}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	if model == "" {
		model = string(anthropic.ModelClaude3_7SonnetLatest)
	}
	return &AnthropicBackend{sdk: anthropic.NewClient(opts...), model: model, configured: apiKey != ""}
}

// FromEnv builds a backend from ANTHROPIC_API_KEY, or returns nil if unset.
func FromEnv() *AnthropicBackend {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil
	}
	return NewAnthropicBackend(key, os.Getenv("ANTHROPIC_BASE_URL"), os.Getenv("ANTHROPIC_VISION_MODEL"))
}

func (b *AnthropicBackend) ModelName() string { return b.model }

func (b *AnthropicBackend) HealthCheck(ctx context.Context) (bool, error) {
	return b.configured, nil
}

func (b *AnthropicBackend) DescribeImage(ctx context.Context, data []byte, mimeType string, prompt *string) (string, error) {
	p := defaultPrompt
	if prompt != nil && *prompt != "" {
		p = *prompt
	}

	imageBlock := anthropic.NewImageBlockBase64(mimeType, base64.StdEncoding.EncodeToString(data))
	textBlock := anthropic.NewTextBlock(p)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(b.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(imageBlock, textBlock),
		},
	}

	resp, err := b.sdk.Messages.New(ctx, params)
	if err != nil {
		return "", matricerr.Inference(err, "anthropic vision request failed")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
