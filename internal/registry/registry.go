// Package registry maps platform identifiers onto provider adapters.
package registry

import (
	"net/http"

	"github.com/rs/zerolog"

	"wordbento/internal/providers"
	"wordbento/internal/providers/anthropic"
	"wordbento/internal/providers/genai"
	"wordbento/internal/providers/jimeng"
	"wordbento/internal/providers/openai"
)

// Adapters builds the text and image adapters for every supported platform.
// Platforms missing from a map cannot serve that capability. client talks to
// vendor endpoints; downloads fetches image links found in vendor replies.
func Adapters(client, downloads *http.Client, logger *zerolog.Logger) (map[string]providers.TextAdapter, map[string]providers.ImageAdapter) {
	gemini := genai.NewClient(genai.Options{HTTPClient: client, DownloadClient: downloads, Logger: logger})

	text := map[string]providers.TextAdapter{
		"deepseek": openai.NewChatAdapter(openai.Options{Platform: "deepseek", HTTPClient: client}),
		"openai":   openai.NewChatAdapter(openai.Options{Platform: "openai", HTTPClient: client}),
		"doubao":   openai.NewChatAdapter(openai.Options{Platform: "doubao", HTTPClient: client}),
		"gemini":   gemini,
		"claude":   anthropic.NewAdapter(anthropic.Options{HTTPClient: client}),
	}
	images := map[string]providers.ImageAdapter{
		"jimeng":   jimeng.NewAdapter(jimeng.Options{HTTPClient: client, DownloadClient: downloads}),
		"seedream": openai.NewImageAdapter(openai.Options{Platform: "seedream", HTTPClient: client, DownloadClient: downloads}),
		"dreamina": openai.NewImageAdapter(openai.Options{Platform: "dreamina", HTTPClient: client, DownloadClient: downloads}),
		"openai":   openai.NewImageAdapter(openai.Options{Platform: "openai", HTTPClient: client, DownloadClient: downloads}),
		"gemini":   gemini,
	}
	return text, images
}
