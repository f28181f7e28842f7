// Package pipeline executes one orchestration run per task and hands runs
// to workers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wordbento/internal/article"
	"wordbento/internal/assets"
	"wordbento/internal/domain"
	"wordbento/internal/orchestrator"
	"wordbento/internal/providers"
)

var (
	errNoWords       = errors.New("extract words failed")
	errBadWordObject = errors.New("enrich word failed")
)

// Lifecycle is the slice of the task manager a run needs.
type Lifecycle interface {
	Read(ctx context.Context, id string) (*domain.Task, error)
	Start(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, result any) error
	Fail(ctx context.Context, id string, msg string) error
}

type TextGenerator interface {
	GenerateText(ctx context.Context, callerID string, req providers.TextRequest) (any, string, error)
}

type ImageGenerator interface {
	GenerateImages(ctx context.Context, callerID string, req providers.ImageRequest) ([]providers.Image, string, error)
}

type ArticleFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, error)
}

type AssetReplacer interface {
	Replace(ctx context.Context, ownerID, prompt string, images []providers.Image) ([]assets.Stored, error)
}

type Options struct {
	Tasks    Lifecycle
	Text     TextGenerator
	Images   ImageGenerator
	Articles ArticleFetcher
	Assets   AssetReplacer
	Logger   *zerolog.Logger
}

type Runner struct {
	tasks    Lifecycle
	text     TextGenerator
	images   ImageGenerator
	articles ArticleFetcher
	assets   AssetReplacer
	logger   zerolog.Logger
}

func NewRunner(opts Options) *Runner {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Runner{
		tasks:    opts.Tasks,
		text:     opts.Text,
		images:   opts.Images,
		articles: opts.Articles,
		assets:   opts.Assets,
		logger:   logger.With().Str("component", "runner").Logger(),
	}
}

// RunByID loads the task and runs it.
func (r *Runner) RunByID(ctx context.Context, id string) error {
	task, err := r.tasks.Read(ctx, id)
	if err != nil {
		return err
	}
	return r.Run(ctx, task)
}

// Run drives one task to a terminal state. The run ignores cancellation of
// ctx so a departing client never aborts it.
func (r *Runner) Run(ctx context.Context, task *domain.Task) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	log := r.logger.With().Str("task_id", task.ID).Str("work_kind", string(task.WorkKind)).Logger()

	if err := r.tasks.Start(ctx, task.ID); err != nil {
		log.Warn().Err(err).Msg("runner: start failed")
	}

	result, err := r.execute(ctx, task)
	if err != nil {
		msg := failureMessage(err)
		log.Warn().Err(err).Dur("took", time.Since(start)).Msg("runner: task failed")
		return r.tasks.Fail(ctx, task.ID, msg)
	}
	log.Info().Dur("took", time.Since(start)).Msg("runner: task completed")
	return r.tasks.Complete(ctx, task.ID, result)
}

func (r *Runner) execute(ctx context.Context, task *domain.Task) (any, error) {
	caller := ""
	if task.CallerID != nil {
		caller = *task.CallerID
	}
	switch task.WorkKind {
	case domain.WorkExtractVocabulary:
		return r.extractVocabulary(ctx, caller, task)
	case domain.WorkEnrichWord:
		return r.enrichWord(ctx, caller, task)
	case domain.WorkGenerateImage:
		return r.generateImage(ctx, caller, task)
	default:
		return nil, fmt.Errorf("%w: unsupported work kind %q", domain.ErrInvalidInput, task.WorkKind)
	}
}

func (r *Runner) extractVocabulary(ctx context.Context, caller string, task *domain.Task) (any, error) {
	content := task.Content
	if article.IsURL(content) {
		if r.articles == nil {
			return nil, errors.New("article fetching is not configured")
		}
		text, err := r.articles.Fetch(ctx, content)
		if err != nil {
			return nil, &runError{msg: "fetch article failed", err: err}
		}
		content = text
	}

	value, _, err := r.text.GenerateText(ctx, caller, providers.TextRequest{
		System: extractSystem,
		Prompt: extractPrompt(task.ContentSubtype, content),
	})
	if err != nil {
		return nil, err
	}
	words := r.normalizeWords(value)
	if len(words) == 0 {
		return nil, errNoWords
	}
	return words, nil
}

func (r *Runner) enrichWord(ctx context.Context, caller string, task *domain.Task) (any, error) {
	word := r.normalizeWord(task.Content)
	value, _, err := r.text.GenerateText(ctx, caller, providers.TextRequest{
		System: enrichSystem,
		Prompt: enrichPrompt(word, task.ContentSubtype),
	})
	if err != nil {
		return nil, err
	}
	obj, ok := unwrapWordObject(value, word)
	if !ok {
		return nil, errBadWordObject
	}
	return obj, nil
}

func (r *Runner) generateImage(ctx context.Context, caller string, task *domain.Task) (any, error) {
	if r.images == nil || r.assets == nil {
		return nil, errors.New("image generation is not configured")
	}
	word := r.normalizeWord(task.Content)
	prompt := imagePrompt(word, task.ContentSubtype)
	images, _, err := r.images.GenerateImages(ctx, caller, providers.ImageRequest{Prompt: prompt})
	if err != nil {
		return nil, err
	}
	stored, err := r.assets.Replace(ctx, domain.ImageOwnerID(task.ContentSubtype, word), prompt, images)
	if err != nil {
		return nil, &runError{msg: "store images failed", err: err}
	}
	return map[string]any{"assets": stored}, nil
}

// normalizeWords lowercases, trims and dedups string items, dropping the rest.
func (r *Runner) normalizeWords(value any) []string {
	items, ok := value.([]any)
	if !ok {
		// Some models wrap the list, e.g. {"words": [...]}.
		if obj, isObj := value.(map[string]any); isObj && len(obj) == 1 {
			for _, v := range obj {
				items, ok = v.([]any)
			}
		}
		if !ok {
			return nil
		}
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = r.normalizeWord(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func (r *Runner) normalizeWord(s string) string {
	return domain.NormalizeWord(s)
}

// unwrapWordObject accepts both the bare object and {"<word>": {...}}.
func unwrapWordObject(value any, word string) (map[string]any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	if len(obj) == 1 {
		for k, v := range obj {
			if inner, isObj := v.(map[string]any); isObj && strings.EqualFold(strings.TrimSpace(k), word) {
				obj = inner
			}
		}
	}
	for _, field := range enrichFields {
		if _, ok := obj[field]; ok {
			return obj, true
		}
	}
	return nil, false
}

type runError struct {
	msg string
	err error
}

func (e *runError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *runError) Unwrap() error { return e.err }

// failureMessage is the caller facing error text. Raw diagnostics stay in logs.
func failureMessage(err error) string {
	var exhausted *orchestrator.ExhaustedError
	var rerr *runError
	switch {
	case errors.As(err, &exhausted):
		return exhausted.Summary()
	case errors.As(err, &rerr):
		return rerr.msg
	case errors.Is(err, errNoWords), errors.Is(err, errBadWordObject):
		return err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		return err.Error()
	default:
		return "internal error"
	}
}
