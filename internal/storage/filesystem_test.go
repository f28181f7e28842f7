package storage

import (
	"context"
	"errors"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()

	key, err := store.Put(ctx, "/images/abc.png", []byte("png"), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "images/abc.png" {
		t.Fatalf("key = %q", key)
	}
	data, contentType, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(data) != "png" || contentType != "image/png" {
		t.Fatalf("got %q %q", data, contentType)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
	if _, _, err := store.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete err = %v", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	for _, key := range []string{"", "  ", "..", "../etc/passwd", "a/../../b"} {
		if _, err := sanitizeKey(key); err == nil {
			t.Fatalf("sanitizeKey(%q) accepted", key)
		}
	}
	got, err := sanitizeKey(`.\dir\file.jpg`)
	if err != nil || got != "dir/file.jpg" {
		t.Fatalf("sanitizeKey = %q, %v", got, err)
	}
}

func TestExtensionFor(t *testing.T) {
	cases := map[string]string{
		"image/jpeg":               ".jpg",
		"image/webp; charset=x":    ".webp",
		"":                         ".png",
		"application/octet-stream": ".png",
	}
	for in, want := range cases {
		if got := ExtensionFor(in); got != want {
			t.Fatalf("ExtensionFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewGCSStoreRequiresBucket(t *testing.T) {
	if _, err := NewGCSStore(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty bucket")
	}
}

func TestSniffImage(t *testing.T) {
	cases := []struct {
		data string
		want string
		ok   bool
	}{
		{data: "\x89PNG\r\n\x1a\nrest", want: "image/png", ok: true},
		{data: "\xff\xd8\xffjpeg", want: "image/jpeg", ok: true},
		{data: "GIF89a....", want: "image/gif", ok: true},
		{data: `<svg xmlns="http://www.w3.org/2000/svg"></svg>`, ok: false},
		{data: `{"token":"x"}`, ok: false},
		{data: "", ok: false},
	}
	for _, tc := range cases {
		got, ok := SniffImage([]byte(tc.data))
		if ok != tc.ok || (tc.ok && got != tc.want) {
			t.Fatalf("SniffImage(%q) = %q %v, want %q %v", tc.data, got, ok, tc.want, tc.ok)
		}
	}
	if ServableImageType("image/svg+xml") {
		t.Fatal("svg must not be servable")
	}
	if !ServableImageType("image/webp; q=1") {
		t.Fatal("webp should be servable")
	}
}
