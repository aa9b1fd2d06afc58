// Package completions provides an Invoker backed by an OpenAI-compatible chat
// completions endpoint (Groq, llama.cpp server and similar).
package completions

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mwiater/stochprobe/internal/logging"
	"github.com/mwiater/stochprobe/internal/providers"
)

var errNoChoices = errors.New("response contained no choices")

// Options configures a Client.
type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Debug   bool
}

// Client implements providers.Invoker.
type Client struct {
	client  *openai.Client
	model   string
	baseURL string
	debug   bool
}

// New constructs a Client. The HTTP timeout bounds every call; there is no
// other deadline.
func New(opts Options) *Client {
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		baseURL: cfg.BaseURL,
		debug:   opts.Debug,
	}
}

// Invoke sends one non-streaming chat completion request.
func (c *Client) Invoke(ctx context.Context, req providers.InvokeRequest) (string, error) {
	payload := c.buildRequest(req)
	if c.debug {
		logging.LogCall("request", c.baseURL+"/chat/completions", c.model, payload)
	}

	resp, err := c.client.CreateChatCompletion(ctx, payload)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", providers.Failed(errNoChoices)
	}

	text := resp.Choices[0].Message.Content
	if c.debug {
		logging.LogCall("response", c.baseURL+"/chat/completions", c.model, text)
	}
	return text, nil
}

func (c *Client) buildRequest(req providers.InvokeRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	out := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: wireFloat(req.Temperature),
		TopP:        wireFloat(req.TopP),
	}
	if req.MaxOutputTokens != nil {
		out.MaxTokens = *req.MaxOutputTokens
	}
	return out
}

// wireFloat keeps an explicit zero on the wire; the request struct omits zero values.
func wireFloat(v float64) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(v)
}

func classify(err error) error {
	if status := httpStatus(err); status == http.StatusTooManyRequests {
		return providers.RateLimited(err)
	}
	return providers.Failed(err)
}

func httpStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("completions(%s, %s)", c.baseURL, c.model)
}
