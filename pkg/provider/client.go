// Package provider talks to the hosted OpenAI-compatible completion and
// image-understanding service.
package provider

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"sync"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"github.com/uchilka-bot/uchilka/pkg/config"
	"github.com/uchilka-bot/uchilka/pkg/models"
)

// CompletionRequest is one text completion call.
type CompletionRequest struct {
	Model       string
	Messages    []models.ChatMessage
	Temperature float64
	TopP        float64
	MaxTokens   int
}

// ImageRequest is one multimodal call: an instruction plus an inlined image.
type ImageRequest struct {
	Model       string
	Prompt      string
	Image       []byte
	MIMEType    string // defaults to image/jpeg
	Temperature float64
	MaxTokens   int
}

// Completer produces a text completion with the given credential.
type Completer interface {
	Complete(ctx context.Context, apiKey string, req CompletionRequest) (string, error)
}

// Describer answers a prompt about an image with the given credential.
type Describer interface {
	Describe(ctx context.Context, apiKey string, req ImageRequest) (string, error)
}

// Client implements Completer and Describer with the openai-go SDK. One SDK
// client is built per credential and reused.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu      sync.Mutex
	clients map[string]openai.Client
}

// NewClient creates a Client for the configured endpoint.
func NewClient(cfg config.ProviderConfig) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: http.DefaultClient,
		clients:    make(map[string]openai.Client),
	}
}

// WithHTTPClient replaces the HTTP client used for new SDK clients.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.httpClient = hc
	c.clients = make(map[string]openai.Client)
	return c
}

func (c *Client) sdk(apiKey string) openai.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[apiKey]; ok {
		return cl
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(c.httpClient),
		// Retries belong to the router, which rotates credentials between attempts.
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	cl := openai.NewClient(opts...)
	c.clients[apiKey] = cl
	return cl
}

// Complete sends a chat completion and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, apiKey string, req CompletionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model),
		Messages: toParams(req.Messages),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return c.send(ctx, apiKey, "complete", params)
}

// Describe sends the prompt and the image as a single user message.
func (c *Client) Describe(ctx context.Context, apiKey string, req ImageRequest) (string, error) {
	mime := req.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return c.send(ctx, apiKey, "describe", params)
}

func (c *Client) send(ctx context.Context, apiKey, op string, params openai.ChatCompletionNewParams) (string, error) {
	cl := c.sdk(apiKey)
	resp, err := cl.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classify(op, err)
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: op, Err: ErrEmptyResponse}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Op: op, Err: ErrEmptyResponse}
	}
	return text, nil
}

func toParams(msgs []models.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case models.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}
