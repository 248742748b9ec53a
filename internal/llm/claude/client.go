// Package claude provides an llm.Provider backed by the Anthropic API,
// using Claude's vision support to analyze prepared medical images.
package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/medtriage/internal/llm"
)

const responseTokens = 2048

// Client implements llm.Provider for the Claude API.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a new Claude client with the given API key and model name.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Analyze sends the prepared image plus the triage prompt and returns
// the raw model text. The text is not parsed here; extraction and
// validation belong to the triage pipeline.
func (c *Client) Analyze(ctx context.Context, img llm.Image, clinicalContext string) (*llm.Result, error) {
	msg, err := c.client.Messages.New(ctx, buildParams(c.model, img, clinicalContext))
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	return &llm.Result{
		Text:         sb.String(),
		Model:        string(msg.Model),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

func buildParams(model string, img llm.Image, clinicalContext string) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: llm.SystemInstructions},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64(img.MediaType, base64.StdEncoding.EncodeToString(img.Data)),
				anthropic.NewTextBlock(llm.BuildPrompt(clinicalContext)),
			),
		},
	}
}
