package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"wordbento/internal/storage"
)

// Image serves a stored asset by key.
func (a *App) Image(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	// Keys are flat uuid names; anything else was never issued.
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, "/\\") {
		a.error(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	data, contentType, err := a.Assets.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "image not found")
			return
		}
		a.logger.Error().Err(err).Str("key", key).Msg("http: open image failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load image")
		return
	}
	if contentType == "" {
		contentType = storage.ContentTypeForKey(key)
	}
	if !storage.ServableImageType(contentType) {
		// Never render anything but a raster image from this origin.
		contentType = "application/octet-stream"
		w.Header().Set("Content-Disposition", "attachment")
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
