// Package article turns a web page into plain text suitable for vocabulary
// extraction.
package article

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	"github.com/rs/zerolog"

	"wordbento/internal/providers"
)

const (
	defaultMaxBytes = 2 << 20
	// Below this many characters readability probably missed the body.
	minReadableChars = 200
)

// ErrEmptyArticle is returned when nothing readable was found.
var ErrEmptyArticle = errors.New("article: no readable content")

type Options struct {
	HTTPClient *http.Client
	MaxBytes   int64
	Logger     *zerolog.Logger
}

type Fetcher struct {
	client   *http.Client
	maxBytes int64
	logger   zerolog.Logger
}

// NewFetcher builds a Fetcher. Links are caller supplied, so the default
// client only dials public addresses.
func NewFetcher(opts Options) *Fetcher {
	client := opts.HTTPClient
	if client == nil {
		client = providers.NewDownloadClient(30 * time.Second)
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Fetcher{client: client, maxBytes: maxBytes, logger: logger.With().Str("component", "article").Logger()}
}

// IsURL reports whether content is a single absolute http(s) link.
func IsURL(content string) bool {
	content = strings.TrimSpace(content)
	if strings.ContainsAny(content, " \n\t") {
		return false
	}
	u, err := url.Parse(content)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Fetch downloads rawURL and returns its readable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("article: invalid url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", fmt.Errorf("article: create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; wordbento/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("article: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("article: fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return "", fmt.Errorf("article: read body: %w", err)
	}
	page := string(body)

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		text := strings.TrimSpace(page)
		if text == "" {
			return "", ErrEmptyArticle
		}
		return text, nil
	}

	article, err := readability.FromReader(strings.NewReader(page), parsed)
	if err == nil {
		text := strings.TrimSpace(article.TextContent)
		if len(text) >= minReadableChars {
			f.logger.Debug().Str("url", parsed.String()).Int("chars", len(text)).Msg("article: readability extracted")
			return text, nil
		}
		f.logger.Debug().Str("url", parsed.String()).Int("chars", len(text)).Msg("article: minimal readability content, converting page")
	} else {
		f.logger.Warn().Err(err).Str("url", parsed.String()).Msg("article: readability failed, converting page")
	}

	markdown, err := htmltomd.ConvertString(page)
	if err != nil {
		return "", fmt.Errorf("article: convert html: %w", err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return "", ErrEmptyArticle
	}
	return markdown, nil
}
