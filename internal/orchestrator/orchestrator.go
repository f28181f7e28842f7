// Package orchestrator walks a capability's platform priority list and
// returns the first usable result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/providers"
	"wordbento/internal/repair"
)

// Capability names a category of generation work.
type Capability string

const (
	CapabilityText  Capability = "text-generation"
	CapabilityImage Capability = "image-generation"
)

// ReasonNotConfigured marks a platform skipped for lack of credentials.
const ReasonNotConfigured = "not configured"

// CredentialResolver resolves the credential a caller should use on a platform.
// A nil credential means the platform is not configured for this caller.
type CredentialResolver interface {
	Resolve(ctx context.Context, platform, callerID string) (*domain.Credential, error)
}

// Attempt records why one platform did not produce a result.
type Attempt struct {
	Platform string
	Reason   string
}

// ExhaustedError is returned when every platform in a priority list failed.
type ExhaustedError struct {
	Capability Capability
	Attempts   []Attempt
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: %s", domain.ErrAllProvidersExhausted.Error(), e.Summary())
}

func (e *ExhaustedError) Unwrap() error {
	return domain.ErrAllProvidersExhausted
}

// Summary is the caller facing description of the failed attempts.
func (e *ExhaustedError) Summary() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no %s platforms configured", e.Capability)
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.Platform+": "+a.Reason)
	}
	return fmt.Sprintf("all %s platforms failed (%s)", e.Capability, strings.Join(parts, "; "))
}

// Options wires the orchestrator.
type Options struct {
	Resolver       CredentialResolver
	TextAdapters   map[string]providers.TextAdapter
	ImageAdapters  map[string]providers.ImageAdapter
	TextPlatforms  []string
	ImagePlatforms []string
	// Timeout bounds each adapter call. Zero means 60s.
	Timeout time.Duration
	Repair  *repair.Pipeline
	Logger  *zerolog.Logger
}

type Orchestrator struct {
	resolver       CredentialResolver
	textAdapters   map[string]providers.TextAdapter
	imageAdapters  map[string]providers.ImageAdapter
	textPlatforms  []string
	imagePlatforms []string
	timeout        time.Duration
	repair         *repair.Pipeline
	logger         zerolog.Logger
}

func New(opts Options) *Orchestrator {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	pipeline := opts.Repair
	if pipeline == nil {
		pipeline = repair.NewPipeline(repair.DefaultFields)
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Orchestrator{
		resolver:       opts.Resolver,
		textAdapters:   opts.TextAdapters,
		imageAdapters:  opts.ImageAdapters,
		textPlatforms:  opts.TextPlatforms,
		imagePlatforms: opts.ImagePlatforms,
		timeout:        timeout,
		repair:         pipeline,
		logger:         logger.With().Str("component", "orchestrator").Logger(),
	}
}

// GenerateText tries each text platform in order and returns the repaired
// structured value together with the platform that produced it.
func (o *Orchestrator) GenerateText(ctx context.Context, callerID string, req providers.TextRequest) (any, string, error) {
	var attempts []Attempt
	for _, platform := range o.textPlatforms {
		adapter, ok := o.textAdapters[platform]
		if !ok {
			attempts = append(attempts, Attempt{Platform: platform, Reason: "no adapter"})
			continue
		}
		cred, reason := o.credential(ctx, platform, callerID)
		if cred == nil {
			attempts = append(attempts, Attempt{Platform: platform, Reason: reason})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		raw, err := adapter.GenerateText(callCtx, *cred, req)
		cancel()
		if err != nil {
			attempts = append(attempts, o.failed(platform, err))
			continue
		}

		value, stage, err := o.repair.Parse(raw)
		if err != nil {
			o.logger.Warn().
				Str("platform", platform).
				Str("raw", truncate(raw, 512)).
				Msg("orchestrator: unparseable response")
			attempts = append(attempts, Attempt{Platform: platform, Reason: "unparseable response"})
			continue
		}
		o.logger.Info().
			Str("platform", platform).
			Str("repair_stage", stage.String()).
			Int("attempts", len(attempts)+1).
			Msg("orchestrator: text generated")
		return value, platform, nil
	}
	return nil, "", o.exhausted(CapabilityText, attempts)
}

// GenerateImages tries each image platform in order. A platform that answers
// with zero images counts as failed.
func (o *Orchestrator) GenerateImages(ctx context.Context, callerID string, req providers.ImageRequest) ([]providers.Image, string, error) {
	var attempts []Attempt
	for _, platform := range o.imagePlatforms {
		adapter, ok := o.imageAdapters[platform]
		if !ok {
			attempts = append(attempts, Attempt{Platform: platform, Reason: "no adapter"})
			continue
		}
		cred, reason := o.credential(ctx, platform, callerID)
		if cred == nil {
			attempts = append(attempts, Attempt{Platform: platform, Reason: reason})
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		images, err := adapter.GenerateImages(callCtx, *cred, req)
		cancel()
		if err != nil {
			attempts = append(attempts, o.failed(platform, err))
			continue
		}
		if len(images) == 0 {
			attempts = append(attempts, Attempt{Platform: platform, Reason: "no images returned"})
			continue
		}
		o.logger.Info().
			Str("platform", platform).
			Int("images", len(images)).
			Msg("orchestrator: images generated")
		return images, platform, nil
	}
	return nil, "", o.exhausted(CapabilityImage, attempts)
}

// credential returns nil and a reason when the platform must be skipped.
func (o *Orchestrator) credential(ctx context.Context, platform, callerID string) (*domain.Credential, string) {
	if o.resolver == nil {
		return nil, ReasonNotConfigured
	}
	cred, err := o.resolver.Resolve(ctx, platform, callerID)
	if err != nil {
		o.logger.Warn().Err(err).Str("platform", platform).Msg("orchestrator: credential lookup failed")
		return nil, "credential lookup failed"
	}
	if cred == nil {
		return nil, ReasonNotConfigured
	}
	return cred, ""
}

func (o *Orchestrator) failed(platform string, err error) Attempt {
	o.logger.Warn().Err(err).Str("platform", platform).Msg("orchestrator: platform failed")
	reason := "request failed"
	var perr *providers.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = "timeout"
	case errors.As(err, &perr) && perr.Reason != "":
		reason = perr.Reason
	}
	return Attempt{Platform: platform, Reason: reason}
}

func (o *Orchestrator) exhausted(capability Capability, attempts []Attempt) error {
	err := &ExhaustedError{Capability: capability, Attempts: attempts}
	o.logger.Error().
		Str("capability", string(capability)).
		Str("summary", err.Summary()).
		Msg("orchestrator: all platforms exhausted")
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
