// Package genai talks to the Gemini generateContent REST endpoint for both
// text and inline image generation.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
	"wordbento/internal/providers"
	"wordbento/internal/storage"
)

const (
	platform          = "gemini"
	defaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"
)

// Options controls how the Gemini client is configured.
// DownloadClient fetches fileData links and defaults to a client that only
// dials public addresses.
type Options struct {
	TextModel      string
	ImageModel     string
	HTTPClient     *http.Client
	DownloadClient *http.Client
	Logger         *infra.Logger
}

// Client implements providers.TextAdapter and providers.ImageAdapter.
type Client struct {
	textModel  string
	imageModel string
	httpClient *http.Client
	downloads  *http.Client
	logger     *infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
	FileData   *geminiFileData   `json:"fileData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// statusError carries the HTTP status of a failed Gemini call.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gemini status %d", e.Status)
	}
	return fmt.Sprintf("gemini status %d: %s", e.Status, e.Message)
}

// NewClient constructs a Gemini client. A nil HTTP client gets a 60s default.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}
	downloads := opts.DownloadClient
	if downloads == nil {
		downloads = providers.NewDownloadClient(60 * time.Second)
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		logger = &discard
	}
	return &Client{
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: client,
		downloads:  downloads,
		logger:     logger,
	}
}

// GenerateText joins the text parts of the first candidate.
func (c *Client) GenerateText(ctx context.Context, cred domain.Credential, req providers.TextRequest) (string, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return "", providers.Unavailable(platform, "missing_api_key", nil)
	}
	temperature := 0.3
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: req.Prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{Temperature: &temperature},
	}
	if s := strings.TrimSpace(req.System); s != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: s}}}
	}

	model := modelFor(cred, c.textModel)
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, cred, model, payload, &response); err != nil {
		return "", providers.Unavailable(platform, failureReason(err), err)
	}
	if len(response.Candidates) == 0 {
		return "", providers.Unavailable(platform, "empty_candidates", errors.New("no candidates"))
	}
	var b strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", providers.Unavailable(platform, "empty_response", errors.New("candidate has no text"))
	}
	return text, nil
}

// GenerateImages requests inline image parts and decodes them.
func (c *Client) GenerateImages(ctx context.Context, cred domain.Credential, req providers.ImageRequest) ([]providers.Image, error) {
	if strings.TrimSpace(cred.Token) == "" {
		return nil, providers.Unavailable(platform, "missing_api_key", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if size := strings.TrimSpace(req.Size); size != "" {
		prompt += "\nImage size: " + size
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: prompt}},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseModalities: []string{"TEXT", "IMAGE"}},
	}

	model := modelFor(cred, c.imageModel)
	var response geminiGenerateContentResponse
	if err := c.invoke(ctx, cred, model, payload, &response); err != nil {
		return nil, providers.Unavailable(platform, failureReason(err), err)
	}

	var images []providers.Image
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			img, err := c.decodePart(ctx, cred, part)
			if err != nil {
				c.logger.Warn().Err(err).Str("model", model).Msg("genai: skipping undecodable image part")
				continue
			}
			if len(img.Data) == 0 {
				continue
			}
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, providers.Unavailable(platform, "empty_images", errors.New("response carried no image parts"))
	}

	c.logger.Debug().
		Str("model", model).
		Int("quantity", len(images)).
		Msg("genai: generated images")
	return images, nil
}

func (c *Client) invoke(ctx context.Context, cred domain.Credential, model string, payload any, out any) error {
	endpoint := baseURL(cred.Endpoint) + fmt.Sprintf("/models/%s:generateContent", url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := req.URL.Query()
	q.Set("key", strings.TrimSpace(cred.Token))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &statusError{Status: resp.StatusCode, Message: apiErr.Error.Message}
		}
		return &statusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) decodePart(ctx context.Context, cred domain.Credential, part geminiPart) (providers.Image, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return providers.Image{}, fmt.Errorf("decode inline data: %w", err)
		}
		mime, ok := storage.SniffImage(data)
		if !ok {
			return providers.Image{}, fmt.Errorf("inline data is not an image: %s", mime)
		}
		return providers.Image{Data: data, MIMEType: mime}, nil
	}
	if part.FileData != nil && part.FileData.FileURI != "" {
		target := part.FileData.FileURI
		if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
			target = baseURL(cred.Endpoint) + "/" + strings.TrimLeft(target, "/")
		}
		return providers.Download(ctx, c.downloads, target)
	}
	return providers.Image{}, nil
}

func baseURL(endpoint string) string {
	base := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if base == "" {
		return defaultBaseURL
	}
	return base
}

func modelFor(cred domain.Credential, fallback string) string {
	if m := strings.TrimSpace(cred.Model); m != "" {
		return m
	}
	return fallback
}

func failureReason(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return fmt.Sprintf("http_%d", se.Status)
	}
	if strings.Contains(err.Error(), "decode gemini response") {
		return "bad_envelope"
	}
	return "http_request"
}

var (
	_ providers.TextAdapter  = (*Client)(nil)
	_ providers.ImageAdapter = (*Client)(nil)
)
