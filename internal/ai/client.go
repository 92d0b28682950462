// internal/ai/client.go
package ai

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	client *openai.Client
	model  string
}

func NewClient(apiKey string) *Client {
	return &Client{
		client: openai.NewClient(apiKey),
		model:  openai.GPT4,
	}
}

func (c *Client) WithModel(model string) *Client {
	if model != "" {
		c.model = model
	}
	return c
}

// Commentary asks for a one-paragraph market read on a generated signal.
// Callers treat failures as non-fatal: log and continue without commentary.
func (c *Client) Commentary(ctx context.Context, signalText string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "Ти досвідчений криптотрейдер. Дай короткий коментар до торгового сигналу: один абзац, без порад щодо розміру позиції.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: signalText,
			},
		},
		MaxTokens:   300,
		Temperature: 0.7,
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from completion API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Name identifies the client on the maintenance probe.
func (c *Client) Name() string { return "completion-api" }

// Ping issues a minimal completion to verify the credentials still work.
func (c *Client) Ping(ctx context.Context) error {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "test"}},
		MaxTokens: 1,
	}
	_, err := c.client.CreateChatCompletion(ctx, req)
	return err
}
