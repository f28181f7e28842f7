// Package anthropic adapts Claude's messages API to providers.TextAdapter.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
)

const (
	platform         = "claude"
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 4096
)

// Options configures the adapter.
type Options struct {
	DefaultModel string
	MaxTokens    int64
	HTTPClient   *http.Client
}

type Adapter struct {
	defaultModel string
	maxTokens    int64
	httpClient   *http.Client
}

func NewAdapter(opts Options) *Adapter {
	if opts.DefaultModel == "" {
		opts.DefaultModel = defaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	}
	return &Adapter{
		defaultModel: opts.DefaultModel,
		maxTokens:    opts.MaxTokens,
		httpClient:   opts.HTTPClient,
	}
}

// GenerateText sends one user turn and concatenates the text blocks of the reply.
func (a *Adapter) GenerateText(ctx context.Context, cred domain.Credential, req providers.TextRequest) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", providers.Unavailable(platform, "missing_api_key", nil)
	}

	// Retries belong to the orchestrator, which moves on to the next platform.
	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cred.Token)),
		option.WithHTTPClient(a.httpClient),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimRight(strings.TrimSpace(cred.Endpoint), "/"); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(base, "/v1/messages")))
	}
	client := anthropic.NewClient(opts...)

	model := a.defaultModel
	if m := strings.TrimSpace(cred.Model); m != "" {
		model = m
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if s := strings.TrimSpace(req.System); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}

	message, err := client.Messages.New(ctx, params)
	if err != nil {
		return "", providers.Unavailable(platform, failureReason(err), err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			b.WriteString(variant.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", providers.Unavailable(platform, "empty_response", errors.New("no text blocks"))
	}
	return text, nil
}

func failureReason(err error) string {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode > 0 {
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	return "http_request"
}

var _ providers.TextAdapter = (*Adapter)(nil)
