// internal/gpt/client.go
package gpt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const DefaultModel = "gpt-4o-mini"

var (
	ErrNoChoices = errors.New("no response from GPT API")
	ErrTruncated = errors.New("GPT response was cut off at the token limit")
)

// Image is an inline image sent alongside the prompt.
type Image struct {
	MimeType string
	Base64   string
}

func (i Image) DataURL() string {
	return "data:" + i.MimeType + ";base64," + i.Base64
}

// Request is one schema-constrained generation call.
type Request struct {
	System     string
	Prompt     string
	Image      *Image
	SchemaName string
	Schema     jsonschema.Definition
}

type Client struct {
	config      openai.ClientConfig
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

func NewClient(apiKey string) *Client {
	config := openai.DefaultConfig(apiKey)
	return &Client{
		config:      config,
		client:      openai.NewClientWithConfig(config),
		model:       DefaultModel,
		maxTokens:   4096,
		temperature: 0.7,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func (c *Client) WithBaseURL(baseURL string) *Client {
	if baseURL == "" {
		return c
	}
	c.config.BaseURL = baseURL
	c.client = openai.NewClientWithConfig(c.config)
	return c
}

func (c *Client) WithLimits(maxTokens int, temperature float32) *Client {
	if maxTokens > 0 {
		c.maxTokens = maxTokens
	}
	c.temperature = temperature
	return c
}

// WithTimeout bounds every call. Zero leaves the caller's context alone.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

// Generate sends req and returns the raw text of the first choice. The
// text is expected to be JSON matching req.Schema but is not checked here.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	user := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
	if req.Image != nil {
		user.MultiContent = []openai.ChatMessagePart{
			{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    req.Image.DataURL(),
					Detail: openai.ImageURLDetailAuto,
				},
			},
			{
				Type: openai.ChatMessagePartTypeText,
				Text: req.Prompt,
			},
		}
	} else {
		user.Content = req.Prompt
	}
	messages = append(messages, user)

	schema := req.Schema
	chatReq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: &schema,
			},
		},
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonLength {
		return "", ErrTruncated
	}

	return choice.Message.Content, nil
}
