// Package storage keeps generated asset bytes in an object store.
package storage

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore persists opaque blobs under server generated keys.
type ObjectStore interface {
	// Put stores data and returns the canonical key.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
	// Delete removes the object. Missing objects are not an error.
	Delete(ctx context.Context, key string) error
}

// ExtensionFor maps an image content type onto a file extension.
func ExtensionFor(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

// ContentTypeForKey guesses the content type from the key extension.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	switch {
	case strings.HasSuffix(s, ".png"):
		return "image/png"
	case strings.HasSuffix(s, ".jpg"), strings.HasSuffix(s, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(s, ".webp"):
		return "image/webp"
	case strings.HasSuffix(s, ".gif"):
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// servableTypes are the raster formats stored and served back to clients.
// Scriptable formats such as SVG are never accepted.
var servableTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

// SniffImage reports the content type of data from its leading bytes. Declared
// types are ignored; ok is false unless data is a servable raster image.
func SniffImage(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	ct := http.DetectContentType(data)
	return ct, ServableImageType(ct)
}

// ServableImageType reports whether contentType may be served from the image route.
func ServableImageType(contentType string) bool {
	_, ok := servableTypes[strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))]
	return ok
}
