package jimeng

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
)

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{
			"index":   0,
			"message": map[string]string{"role": "assistant", "content": content},
		}},
	})
}

const jpegMagic = "\xff\xd8\xff\xe0"

func TestGenerateImagesFollowsLinks(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			chatReply(w, "![a]("+srv.URL+"/img/a.jpeg) and ![b]("+srv.URL+"/img/b.jpeg)")
		case "/img/a.jpeg", "/img/b.jpeg":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write(append([]byte(jpegMagic), r.URL.Path...))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	adapter := NewAdapter(Options{HTTPClient: srv.Client(), DownloadClient: srv.Client()})
	images, err := adapter.GenerateImages(context.Background(), domain.Credential{Endpoint: srv.URL + "/v1", Token: "k"}, providers.ImageRequest{Prompt: "abate"})
	if err != nil {
		t.Fatalf("GenerateImages returned error: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if string(images[0].Data) != jpegMagic+"/img/a.jpeg" || images[1].MIMEType != "image/jpeg" {
		t.Fatalf("unexpected images %+v", images)
	}
}

func TestGenerateImagesWithoutLinks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, "I cannot draw that")
	}))
	defer srv.Close()

	adapter := NewAdapter(Options{HTTPClient: srv.Client()})
	_, err := adapter.GenerateImages(context.Background(), domain.Credential{Endpoint: srv.URL, Token: "k"}, providers.ImageRequest{Prompt: "abate"})
	var perr *providers.Error
	if !errors.As(err, &perr) || perr.Reason != "no_image_links" {
		t.Fatalf("expected no_image_links, got %v", err)
	}
}

func TestGenerateImagesRefusesPrivateLinks(t *testing.T) {
	var fetched bool
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			chatReply(w, "![a]("+srv.URL+"/latest/meta-data/credentials)")
		default:
			fetched = true
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte(jpegMagic))
		}
	}))
	defer srv.Close()

	// The chat call may reach the loopback endpoint; the link download may not.
	adapter := NewAdapter(Options{HTTPClient: srv.Client()})
	_, err := adapter.GenerateImages(context.Background(), domain.Credential{Endpoint: srv.URL + "/v1", Token: "k"}, providers.ImageRequest{Prompt: "abate"})
	var perr *providers.Error
	if !errors.As(err, &perr) || perr.Reason != "download_failed" {
		t.Fatalf("expected download_failed, got %v", err)
	}
	if !errors.Is(err, providers.ErrBlockedAddress) {
		t.Fatalf("expected ErrBlockedAddress in chain, got %v", err)
	}
	if fetched {
		t.Fatal("loopback link was fetched")
	}
}
