package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"reflect"
	"testing"
	"time"

	"wordbento/internal/domain"
)

func TestExtractURLs(t *testing.T) {
	text := "Here is your image: ![img](https://cdn.example.com/a.png) and " +
		"\"https://cdn.example.com/b.jpeg\" plus https://cdn.example.com/a.png again."
	got := ExtractURLs(text)
	want := []string{"https://cdn.example.com/a.png", "https://cdn.example.com/b.jpeg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
	if urls := ExtractURLs("no links here"); len(urls) != 0 {
		t.Fatalf("expected no urls, got %#v", urls)
	}
}

func TestDownload(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	img, err := Download(context.Background(), srv.Client(), srv.URL+"/a.png")
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if img.MIMEType != "image/png" || string(img.Data) != string(png) {
		t.Fatalf("unexpected image %+v", img)
	}

	if _, err := Download(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Fatalf("expected error for 404")
	}
	if _, err := Download(context.Background(), srv.Client(), "ftp://example.com/x"); err == nil {
		t.Fatalf("expected error for non-http scheme")
	}

	imgs, err := DownloadAll(context.Background(), srv.Client(), []string{srv.URL + "/missing", srv.URL + "/b.png"})
	if err != nil || len(imgs) != 1 {
		t.Fatalf("DownloadAll = %d images, err %v", len(imgs), err)
	}
}

func TestDownloadRejectsNonImageBodies(t *testing.T) {
	bodies := map[string]string{
		"/creds.json": `{"AccessKeyId":"secret"}`,
		"/page.html":  "<html><body>hi</body></html>",
		"/icon.svg":   `<svg xmlns="http://www.w3.org/2000/svg"><script>alert(1)</script></svg>`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A lying header must not matter.
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(bodies[r.URL.Path]))
	}))
	defer srv.Close()

	for path := range bodies {
		if img, err := Download(context.Background(), srv.Client(), srv.URL+path); err == nil {
			t.Fatalf("Download(%s) accepted %q as %s", path, img.Data, img.MIMEType)
		}
	}
}

func TestDownloadClientRefusesPrivateAddresses(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("\x89PNG\r\n\x1a\n"))
	}))
	defer srv.Close()

	_, err := Download(context.Background(), NewDownloadClient(5*time.Second), srv.URL+"/a.png")
	if !errors.Is(err, ErrBlockedAddress) {
		t.Fatalf("expected ErrBlockedAddress, got %v", err)
	}
	if hits != 0 {
		t.Fatalf("loopback server was reached %d times", hits)
	}
}

func TestPublicAddr(t *testing.T) {
	tests := map[string]bool{
		"93.184.216.34":   true,
		"2606:4700::1111": true,
		"127.0.0.1":       false,
		"10.1.2.3":        false,
		"172.16.0.9":      false,
		"192.168.1.1":     false,
		"169.254.169.254": false,
		"100.64.0.1":      false,
		"0.0.0.0":         false,
		"::1":             false,
		"fe80::1":         false,
		"fd00::1":         false,
		"::ffff:10.0.0.1": false,
		"224.0.0.1":       false,
	}
	for raw, want := range tests {
		if got := PublicAddr(netip.MustParseAddr(raw)); got != want {
			t.Fatalf("PublicAddr(%s) = %v, want %v", raw, got, want)
		}
	}
}

func TestErrorUnwrapsToProviderUnavailable(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Unavailable("deepseek", "http_request", cause)
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to be preserved")
	}
	if err.Error() != "deepseek: http_request: dial tcp: refused" {
		t.Fatalf("Error() = %q", err.Error())
	}
}
