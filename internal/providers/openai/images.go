package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
	"wordbento/internal/storage"
)

// ImageAdapter calls the images/generations endpoint, which seedream and
// dreamina expose in the OpenAI shape, and downloads the returned links.
type ImageAdapter struct {
	platform     string
	defaultModel string
	httpClient   *http.Client
	downloads    *http.Client
}

func NewImageAdapter(opts Options) *ImageAdapter {
	opts = resolveOptions(opts)
	return &ImageAdapter{
		platform:     opts.Platform,
		defaultModel: opts.DefaultModel,
		httpClient:   opts.HTTPClient,
		downloads:    opts.DownloadClient,
	}
}

func (a *ImageAdapter) GenerateImages(ctx context.Context, cred domain.Credential, req providers.ImageRequest) ([]providers.Image, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return nil, providers.Unavailable(a.platform, "missing_api_key", nil)
	}
	size := req.Size
	if size == "" {
		size = "1024x1024"
	}
	client := newClient(cred, a.httpClient)
	resp, err := client.CreateImage(ctx, goopenai.ImageRequest{
		Prompt:         req.Prompt,
		Model:          modelFor(cred, a.defaultModel),
		N:              1,
		Size:           size,
		ResponseFormat: goopenai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return nil, providers.Unavailable(a.platform, failureReason(err), err)
	}

	var (
		images []providers.Image
		urls   []string
	)
	for _, item := range resp.Data {
		switch {
		case strings.TrimSpace(item.URL) != "":
			urls = append(urls, item.URL)
		case item.B64JSON != "":
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil {
				continue
			}
			mime, ok := storage.SniffImage(data)
			if !ok {
				continue
			}
			images = append(images, providers.Image{Data: data, MIMEType: mime})
		}
	}
	if len(urls) > 0 {
		downloaded, err := providers.DownloadAll(ctx, a.downloads, urls)
		if err != nil && len(images) == 0 {
			return nil, providers.Unavailable(a.platform, "download", err)
		}
		images = append(images, downloaded...)
	}
	if len(images) == 0 {
		return nil, providers.Unavailable(a.platform, "empty_images", errors.New("no images returned"))
	}
	return images, nil
}

var _ providers.ImageAdapter = (*ImageAdapter)(nil)
