// Package assets stores generated images and keeps their rows in sync.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
	"wordbento/internal/storage"
)

// Stored is the public view of a persisted asset.
type Stored struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type Options struct {
	Repo  domain.AssetRepository
	Store storage.ObjectStore
	// PublicBaseURL prefixes the /v1/images/{key} links handed to clients.
	PublicBaseURL string
	Logger        *zerolog.Logger
}

type Service struct {
	repo    domain.AssetRepository
	store   storage.ObjectStore
	baseURL string
	logger  zerolog.Logger
}

func NewService(opts Options) *Service {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Service{
		repo:    opts.Repo,
		store:   opts.Store,
		baseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		logger:  logger.With().Str("component", "assets").Logger(),
	}
}

// ErrUnsupportedImage rejects bytes that do not sniff as a servable raster image.
var ErrUnsupportedImage = errors.New("assets: unsupported image type")

// Replace drops the owner's previous assets and stores images under fresh
// keys. Content types come from the bytes; if any image is not a servable
// raster format nothing is changed.
func (s *Service) Replace(ctx context.Context, ownerID, prompt string, images []providers.Image) ([]Stored, error) {
	types := make([]string, len(images))
	for i, img := range images {
		ct, ok := storage.SniffImage(img.Data)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedImage, ct)
		}
		types[i] = ct
	}

	previous, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for _, asset := range previous {
		if err := s.store.Delete(ctx, asset.ObjectKey); err != nil {
			s.logger.Warn().Err(err).Str("object_key", asset.ObjectKey).Msg("assets: delete previous object failed")
		}
	}
	if len(previous) > 0 {
		if err := s.repo.DeleteByOwner(ctx, ownerID); err != nil {
			return nil, err
		}
	}

	out := make([]Stored, 0, len(images))
	for i, img := range images {
		contentType := types[i]
		key, err := s.store.Put(ctx, uuid.NewString()+storage.ExtensionFor(contentType), img.Data, contentType)
		if err != nil {
			return nil, fmt.Errorf("store image: %w", err)
		}
		asset := &domain.Asset{
			OwnerID:     ownerID,
			ObjectKey:   key,
			Prompt:      prompt,
			ContentType: contentType,
		}
		if err := s.repo.Create(ctx, asset); err != nil {
			_ = s.store.Delete(ctx, key)
			return nil, err
		}
		out = append(out, Stored{Key: key, URL: s.URL(key)})
	}
	s.logger.Info().
		Str("owner_id", ownerID).
		Int("replaced", len(previous)).
		Int("stored", len(out)).
		Msg("assets: replaced")
	return out, nil
}

// Open returns the bytes and content type of a stored object.
func (s *Service) Open(ctx context.Context, key string) ([]byte, string, error) {
	return s.store.Get(ctx, key)
}

// URL is the public link of an object key.
func (s *Service) URL(key string) string {
	return s.baseURL + "/v1/images/" + key
}
