// Package jimeng adapts chat-style image vendors (jimeng, dreamina proxies)
// that answer with image links inside the assistant message.
package jimeng

import (
	"context"
	"errors"
	"net/http"
	"time"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
	"wordbento/internal/providers/openai"
)

const defaultModel = "jimeng-3.0"

// Options configures the adapter. DownloadClient fetches the links in the
// reply and defaults to a client that only dials public addresses.
type Options struct {
	Platform       string
	DefaultModel   string
	HTTPClient     *http.Client
	DownloadClient *http.Client
}

type Adapter struct {
	platform  string
	chat      providers.TextAdapter
	downloads *http.Client
}

func NewAdapter(opts Options) *Adapter {
	if opts.Platform == "" {
		opts.Platform = "jimeng"
	}
	if opts.DefaultModel == "" {
		opts.DefaultModel = defaultModel
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 120 * time.Second}
	}
	if opts.DownloadClient == nil {
		opts.DownloadClient = providers.NewDownloadClient(120 * time.Second)
	}
	return &Adapter{
		platform: opts.Platform,
		chat: openai.NewChatAdapter(openai.Options{
			Platform:     opts.Platform,
			DefaultModel: opts.DefaultModel,
			HTTPClient:   opts.HTTPClient,
		}),
		downloads: opts.DownloadClient,
	}
}

// GenerateImages asks the chat endpoint for a picture, then downloads every
// link found in the reply.
func (a *Adapter) GenerateImages(ctx context.Context, cred domain.Credential, req providers.ImageRequest) ([]providers.Image, error) {
	text, err := a.chat.GenerateText(ctx, cred, providers.TextRequest{Prompt: req.Prompt})
	if err != nil {
		return nil, err
	}
	urls := providers.ExtractURLs(text)
	if len(urls) == 0 {
		return nil, providers.Unavailable(a.platform, "no_image_links", errors.New("reply carried no links"))
	}
	images, err := providers.DownloadAll(ctx, a.downloads, urls)
	if err != nil {
		return nil, providers.Unavailable(a.platform, "download_failed", err)
	}
	return images, nil
}

var _ providers.ImageAdapter = (*Adapter)(nil)
