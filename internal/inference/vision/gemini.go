package vision

import (
	"context"
	"os"
	"strings"

	"google.golang.org/genai"

	"matric/internal/matricerr"
)

// GeminiBackend is the alternate VisionBackend, selectable by config
// instead of AnthropicBackend while satisfying the same narrow contract.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

func NewGeminiBackend(apiKey, model string) (*GeminiBackend, error) {
	if model == "" {
		model = "gemini-1.5-flash"
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{APIKey: strings.TrimSpace(apiKey)})
	if err != nil {
		return nil, matricerr.Internal("init gemini client: %v", err)
	}
	return &GeminiBackend{client: client, model: model}, nil
}

func FromEnvGemini() *GeminiBackend {
	key := os.Getenv("GOOGLE_API_KEY")
	if key == "" {
		return nil
	}
	backend, err := NewGeminiBackend(key, os.Getenv("GOOGLE_VISION_MODEL"))
	if err != nil {
		return nil
	}
	return backend
}

func (b *GeminiBackend) ModelName() string { return b.model }

func (b *GeminiBackend) HealthCheck(ctx context.Context) (bool, error) { return b.client != nil, nil }

func (b *GeminiBackend) DescribeImage(ctx context.Context, data []byte, mimeType string, prompt *string) (string, error) {
	p := defaultPrompt
	if prompt != nil && *prompt != "" {
		p = *prompt
	}

	parts := []*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText(p),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := b.client.Models.GenerateContent(ctx, b.model, contents, nil)
	if err != nil {
		return "", matricerr.Inference(err, "gemini vision request failed")
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
