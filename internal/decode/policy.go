package decode

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend selection policies.
const (
	PolicyAuto   = "auto"
	PolicyGemini = "gemini"
	PolicyOpenAI = "openai"
	PolicyNone   = "none"
)

// Options selects and configures the vision backend.
type Options struct {
	Policy       string
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
}

// SelectBackend resolves the policy to a concrete backend. Auto prefers
// Gemini (free tier) when its key is present, falls back to OpenAI, and
// yields no backend when neither key is configured. A nil backend with
// a nil error means decoding is disabled.
func SelectBackend(ctx context.Context, opts Options, log *zap.Logger) (Backend, error) {
	if log == nil {
		log = zap.NewNop()
	}

	switch opts.Policy {
	case PolicyNone:
		return nil, nil
	case PolicyGemini:
		return NewGeminiBackend(ctx, opts.GeminiAPIKey, opts.GeminiModel)
	case PolicyOpenAI:
		return NewOpenAIBackend(opts.OpenAIAPIKey, opts.OpenAIModel)
	case PolicyAuto, "":
		if opts.GeminiAPIKey != "" {
			return NewGeminiBackend(ctx, opts.GeminiAPIKey, opts.GeminiModel)
		}
		if opts.OpenAIAPIKey != "" {
			return NewOpenAIBackend(opts.OpenAIAPIKey, opts.OpenAIModel)
		}
		log.Info("no vision API key configured, image decoding disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown decode policy: %q", opts.Policy)
	}
}
