// Package openai adapts OpenAI-compatible vendors (deepseek, openai, doubao,
// gemini's compatibility endpoint, seedream image generation) through
// go-openai with a per-credential base URL.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
)

const defaultTimeout = 60 * time.Second

// Options configures the adapters in this package. Platform labels errors and
// picks the default model. DownloadClient fetches returned image links and
// defaults to a client that only dials public addresses.
type Options struct {
	Platform       string
	DefaultModel   string
	HTTPClient     *http.Client
	DownloadClient *http.Client
}

var defaultModels = map[string]string{
	"deepseek": "deepseek-chat",
	"openai":   "gpt-4o-mini",
	"gemini":   "gemini-2.0-flash",
	"doubao":   "doubao-1-5-pro-32k-250115",
	"seedream": "doubao-seedream-3-0-t2i-250415",
	"dreamina": "doubao-seedream-3-0-t2i-250415",
}

func resolveOptions(opts Options) Options {
	opts.Platform = strings.ToLower(strings.TrimSpace(opts.Platform))
	if opts.DefaultModel == "" {
		opts.DefaultModel = defaultModels[opts.Platform]
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}
	if opts.DownloadClient == nil {
		opts.DownloadClient = providers.NewDownloadClient(defaultTimeout)
	}
	return opts
}

// newClient builds a go-openai client pointed at the credential's endpoint.
func newClient(cred domain.Credential, httpClient *http.Client) *goopenai.Client {
	config := goopenai.DefaultConfig(cred.Token)
	if base := baseURL(cred.Endpoint); base != "" {
		config.BaseURL = base
	}
	config.HTTPClient = httpClient
	return goopenai.NewClientWithConfig(config)
}

// baseURL strips operation paths that callers sometimes paste with the endpoint.
func baseURL(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	for _, suffix := range []string{"/chat/completions", "/images/generations"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return base
}

func modelFor(cred domain.Credential, fallback string) string {
	if m := strings.TrimSpace(cred.Model); m != "" {
		return m
	}
	return fallback
}

// failureReason maps go-openai errors onto the short reason codes used in logs.
func failureReason(err error) string {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return fmt.Sprintf("http_%d", apiErr.HTTPStatusCode)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return fmt.Sprintf("http_%d", reqErr.HTTPStatusCode)
	}
	return "http_request"
}
