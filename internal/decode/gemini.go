package decode

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-flash"

// GeminiBackend decodes images with the Gemini API. It is the preferred
// backend under the auto policy because of its free tier.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini vision backend.
func NewGeminiBackend(ctx context.Context, apiKey, model string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiBackend{client: client, model: model}, nil
}

// Name identifies the backend in logs.
func (g *GeminiBackend) Name() string {
	return fmt.Sprintf("gemini:%s", g.model)
}

// DecodeImage sends the image plus the extraction prompt and parses the
// line-oriented answer.
func (g *GeminiBackend) DecodeImage(ctx context.Context, data []byte, mimeType string) ([]string, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			genai.NewPartFromText(visionPrompt),
		}, genai.RoleUser),
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.1),
		MaxOutputTokens: 256,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	return ParseResponse(result.Text()), nil
}
