package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/JakeFAU/roastd/internal/roast"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 2048
)

// ErrQuotaExceeded is returned when the provider rejects a request for billing
// or quota reasons.
var ErrQuotaExceeded = errors.New("vision model quota exceeded")

// ErrEmptyReply is returned when the provider answers without any choice.
var ErrEmptyReply = errors.New("vision model returned no choices")

// OpenAIConfig configures the OpenAI-compatible vision client. BaseURL may
// point at any OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	BaseURL   string        `mapstructure:"base_url"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// OpenAIVision implements roast.VisionModel with go-openai chat completions.
type OpenAIVision struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIVision builds a vision client.
func NewOpenAIVision(cfg OpenAIConfig) (*OpenAIVision, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("analysis.api_key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &OpenAIVision{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

// Critique sends the image as a data URI alongside prompt and returns the
// first choice's text.
func (c *OpenAIVision) Critique(ctx context.Context, image roast.Raster, prompt string) (string, error) {
	contentType := image.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	dataURI := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image.Data)

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURI,
							Detail: openai.ImageURLDetailHigh,
						},
					},
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
				},
			},
		},
	}
	// Reasoning models reject max_tokens.
	if usesCompletionTokens(c.model) {
		req.MaxCompletionTokens = c.maxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

func usesCompletionTokens(model string) bool {
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests && apiErr.Code == "insufficient_quota" {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return fmt.Errorf("create chat completion: %w", err)
}

// Transient reports whether a vision model error is worth retrying: rate
// limits, provider 5xx responses and network timeouts. Quota errors are not.
func Transient(err error) bool {
	if err == nil || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
