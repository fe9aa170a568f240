// Package anthropic provides an llm.Provider for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/user/vernacular/pkg/llm"
)

const defaultMaxTokens = 4096

// Client wraps the official SDK client behind llm.Provider.
type Client struct {
	client *anthropic.Client
	config *llm.Config
}

// New creates a client. An empty BaseURL uses the SDK default endpoint.
func New(config *llm.Config, opts ...option.RequestOption) *Client {
	var clientOpts []option.RequestOption
	if config.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(config.APIKey))
	}
	if config.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(config.BaseURL))
	}
	clientOpts = append(clientOpts, opts...)

	client := anthropic.NewClient(clientOpts...)
	return &Client{client: &client, config: config}
}

// Complete sends the conversation as one Messages request. System messages
// are lifted into the request's system field.
func (c *Client) Complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return nil, fmt.Errorf("anthropic: at least one non-system message is required")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.config.Model),
		Messages:  buildMessages(rest),
		MaxTokens: defaultMaxTokens,
	}
	if c.config.MaxTokens > 0 {
		params.MaxTokens = int64(c.config.MaxTokens)
	}
	if c.config.Temperature != 0 {
		params.Temperature = anthropic.Float(float64(c.config.Temperature))
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, &llm.APIError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &llm.Response{
		Content: text.String(),
		Usage: llm.Usage{
			InputTokens:  in,
			OutputTokens: out,
			TotalTokens:  in + out,
		},
	}, nil
}

func buildMessages(messages []llm.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == llm.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}
