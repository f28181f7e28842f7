package registry

import (
	"net/http"
	"testing"

	"wordbento/internal/infra"
)

func TestAdaptersCoverDefaultPriorities(t *testing.T) {
	text, images := Adapters(http.DefaultClient, nil, nil)

	for _, p := range []string{"deepseek", "gemini"} {
		if text[p] == nil {
			t.Fatalf("no text adapter for %s", p)
		}
	}
	for _, p := range []string{"jimeng", "seedream", "gemini"} {
		if images[p] == nil {
			t.Fatalf("no image adapter for %s", p)
		}
	}

	known := make(map[string]bool, len(infra.KnownPlatforms))
	for _, p := range infra.KnownPlatforms {
		known[p] = true
	}
	for p := range text {
		if !known[p] {
			t.Fatalf("text adapter for unknown platform %s", p)
		}
	}
	for p := range images {
		if !known[p] {
			t.Fatalf("image adapter for unknown platform %s", p)
		}
	}
}
