package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
)

// ChatAdapter generates text through the chat completions endpoint and
// returns choices[0].message.content.
type ChatAdapter struct {
	platform     string
	defaultModel string
	httpClient   *http.Client
}

func NewChatAdapter(opts Options) *ChatAdapter {
	opts = resolveOptions(opts)
	return &ChatAdapter{
		platform:     opts.Platform,
		defaultModel: opts.DefaultModel,
		httpClient:   opts.HTTPClient,
	}
}

func (a *ChatAdapter) GenerateText(ctx context.Context, cred domain.Credential, req providers.TextRequest) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", providers.Unavailable(a.platform, "missing_api_key", nil)
	}
	system := req.System
	if system == "" {
		system = "You are a helpful assistant."
	}
	client := newClient(cred, a.httpClient)
	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: modelFor(cred, a.defaultModel),
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: 0.3,
	})
	if err != nil {
		return "", providers.Unavailable(a.platform, failureReason(err), err)
	}
	if len(resp.Choices) == 0 {
		return "", providers.Unavailable(a.platform, "empty_choices", errors.New("no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", providers.Unavailable(a.platform, "empty_response", errors.New("empty message content"))
	}
	return text, nil
}

var _ providers.TextAdapter = (*ChatAdapter)(nil)
