package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
)

// CacheKey is the key-value cache key of a caller's credential for platform.
func CacheKey(platform, callerID string) string {
	return "credential:" + platform + ":" + callerID
}

// ResolverOptions configures a Resolver.
type ResolverOptions struct {
	Repo     domain.CredentialRepository
	Cache    redis.Cmdable
	Defaults map[string]infra.ProviderDefault
	Logger   *zerolog.Logger
}

// Resolver answers which credential a caller uses for a platform. Callers
// with an id read through the cache into the relational store; anonymous
// callers get the operator default. A nil credential means the platform is
// not usable for that caller.
type Resolver struct {
	repo     domain.CredentialRepository
	cache    redis.Cmdable
	defaults map[string]infra.ProviderDefault
	logger   zerolog.Logger
}

func NewResolver(opts ResolverOptions) *Resolver {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	defaults := opts.Defaults
	if defaults == nil {
		defaults = map[string]infra.ProviderDefault{}
	}
	return &Resolver{
		repo:     opts.Repo,
		cache:    opts.Cache,
		defaults: defaults,
		logger:   logger,
	}
}

// Resolve returns the credential for (platform, callerID) or nil when the platform is unusable.
func (r *Resolver) Resolve(ctx context.Context, platform, callerID string) (*domain.Credential, error) {
	platform = strings.ToLower(strings.TrimSpace(platform))
	callerID = strings.TrimSpace(callerID)
	if callerID == "" {
		return r.fallback(platform), nil
	}

	if cred, ok := r.fromCache(ctx, platform, callerID); ok {
		if !cred.Active {
			return nil, nil
		}
		return cred, nil
	}

	if r.repo == nil {
		return nil, nil
	}
	cred, err := r.repo.Active(ctx, callerID, platform)
	if err != nil {
		return nil, fmt.Errorf("credentials: load %s for caller: %w", platform, err)
	}
	if cred == nil {
		return nil, nil
	}
	r.writeCache(ctx, *cred)
	return cred, nil
}

// Save persists the credential and refreshes the cached copy.
func (r *Resolver) Save(ctx context.Context, cred domain.Credential) error {
	if r.repo == nil {
		return errors.New("credentials: no repository configured")
	}
	cred = normalize(cred)
	if err := r.repo.Save(ctx, cred); err != nil {
		return err
	}
	if !cred.Active {
		r.dropCache(ctx, cred.Platform, cred.CallerID)
		return nil
	}
	r.writeCache(ctx, cred)
	return nil
}

// List returns the caller's stored credentials.
func (r *Resolver) List(ctx context.Context, callerID string) ([]domain.Credential, error) {
	if r.repo == nil {
		return nil, nil
	}
	return r.repo.List(ctx, strings.TrimSpace(callerID))
}

func (r *Resolver) fallback(platform string) *domain.Credential {
	def, ok := r.defaults[platform]
	if !ok || def.Endpoint == "" || def.Token == "" {
		return nil
	}
	return &domain.Credential{
		Platform: platform,
		Endpoint: def.Endpoint,
		Token:    def.Token,
		Model:    def.Model,
		Active:   true,
	}
}

func (r *Resolver) fromCache(ctx context.Context, platform, callerID string) (*domain.Credential, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, CacheKey(platform, callerID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("platform", platform).Msg("credentials: cache read failed, using store")
		}
		return nil, false
	}
	var cred domain.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		r.logger.Warn().Err(err).Str("platform", platform).Msg("credentials: cache entry corrupt, using store")
		return nil, false
	}
	return &cred, true
}

// writeCache stores the credential without TTL; entries live until the caller changes them.
func (r *Resolver) writeCache(ctx context.Context, cred domain.Credential) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, CacheKey(cred.Platform, cred.CallerID), raw, 0).Err(); err != nil {
		r.logger.Warn().Err(err).Str("platform", cred.Platform).Msg("credentials: cache write failed")
	}
}

func (r *Resolver) dropCache(ctx context.Context, platform, callerID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, CacheKey(platform, callerID)).Err(); err != nil {
		r.logger.Warn().Err(err).Str("platform", platform).Msg("credentials: cache delete failed")
	}
}
