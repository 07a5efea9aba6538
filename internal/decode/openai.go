package decode

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	openAITimeout        = 60 * time.Second
	openAIMaxRetries     = 3
)

// OpenAIBackend decodes images via the OpenAI chat completions API.
// Used when no Gemini key is configured, or when selected explicitly.
type OpenAIBackend struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client

	mu          sync.Mutex
	lastRequest time.Time
}

// NewOpenAIBackend creates an OpenAI vision backend.
func NewOpenAIBackend(apiKey, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIBackend{
		apiKey:     apiKey,
		baseURL:    defaultOpenAIBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: openAITimeout},
	}, nil
}

// Name identifies the backend in logs.
func (o *OpenAIBackend) Name() string {
	return fmt.Sprintf("openai:%s", o.model)
}

type openAIContentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL *struct {
		URL string `json:"url"`
	} `json:"image_url,omitempty"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeImage sends the image as a data URL and parses the answer.
func (o *OpenAIBackend) DecodeImage(ctx context.Context, data []byte, mimeType string) ([]string, error) {
	// Auto-apply timeout if context has no deadline (centralized timeout handling)
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.httpClient.Timeout)
		defer cancel()
	}

	if mimeType == "" {
		mimeType = "image/png"
	}
	dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))

	// Rate limiting
	o.mu.Lock()
	elapsed := time.Since(o.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	o.lastRequest = time.Now()
	o.mu.Unlock()

	reqBody := openAIRequest{
		Model: o.model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContentPart{
				{Type: "text", Text: visionPrompt},
				{Type: "image_url", ImageURL: &struct {
					URL string `json:"url"`
				}{URL: dataURL}},
			},
		}},
		MaxTokens:   256,
		Temperature: 0.1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for i := 0; i <= openAIMaxRetries; i++ {
		if i > 0 {
			time.Sleep(time.Duration(1<<uint(i-1)) * time.Second)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+o.apiKey)

		resp, err := o.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limit exceeded (429)")
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
		}

		var parsed openAIResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("no completion returned")
		}

		return ParseResponse(strings.TrimSpace(parsed.Choices[0].Message.Content)), nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
