// Package tasks owns the generation task lifecycle:
// pending -> processing -> completed|failed.
package tasks

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/realtime"
)

const (
	// DefaultHistoryLimit is how many recent completed tasks History returns.
	DefaultHistoryLimit = 4
	historyPreviewRunes = 47
)

// Publisher announces status transitions.
type Publisher interface {
	Publish(ctx context.Context, evt realtime.TaskEvent) error
}

// CreateInput is a task submission.
type CreateInput struct {
	CallerID       string
	WorkKind       string `validate:"required,oneof=extract-vocabulary enrich-word generate-image"`
	Content        string `validate:"required,max=100000"`
	ContentSubtype string `validate:"required,max=64"`
}

// HistoryEntry is a compact view of a completed task.
type HistoryEntry struct {
	ID             string          `json:"id"`
	WorkKind       domain.WorkKind `json:"workKind"`
	Content        string          `json:"content"`
	ContentSubtype string          `json:"contentSubtype"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Options struct {
	Repo      domain.TaskRepository
	Publisher Publisher
	Logger    *zerolog.Logger
}

type Manager struct {
	repo   domain.TaskRepository
	pub    Publisher
	logger zerolog.Logger
}

func NewManager(opts Options) *Manager {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Manager{
		repo:   opts.Repo,
		pub:    opts.Publisher,
		logger: logger.With().Str("component", "tasks").Logger(),
	}
}

// ContentHash fingerprints a submission for dedup.
func ContentHash(content, subtype string) string {
	sum := md5.Sum([]byte(content + "|" + subtype))
	return hex.EncodeToString(sum[:])
}

var inputValidator = validator.New()

// Normalize trims the submission and checks it against the CreateInput rules.
// It touches no storage, so callers can reject bad input before spending
// anything on it.
func Normalize(in CreateInput) (CreateInput, error) {
	in.CallerID = strings.TrimSpace(in.CallerID)
	in.WorkKind = strings.ToLower(strings.TrimSpace(in.WorkKind))
	in.Content = strings.TrimSpace(in.Content)
	in.ContentSubtype = strings.TrimSpace(in.ContentSubtype)
	if err := inputValidator.Struct(in); err != nil {
		return in, fmt.Errorf("%w: %s", domain.ErrInvalidInput, describeValidation(err))
	}
	return in, nil
}

// Create validates the input and inserts a pending task. When an identical
// submission already completed, its id is returned with created=false.
func (m *Manager) Create(ctx context.Context, in CreateInput) (string, bool, error) {
	in, err := Normalize(in)
	if err != nil {
		return "", false, err
	}

	kind := domain.WorkKind(in.WorkKind)
	hash := ContentHash(kind.DedupContent(in.Content), in.ContentSubtype)

	existing, err := m.repo.FindCompletedByHash(ctx, kind, hash)
	switch {
	case err == nil:
		m.logger.Info().Str("task_id", existing).Str("work_kind", in.WorkKind).Msg("tasks: reusing completed task")
		return existing, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return "", false, err
	}

	task := &domain.Task{
		ID:             uuid.NewString(),
		WorkKind:       kind,
		Content:        in.Content,
		ContentSubtype: in.ContentSubtype,
		ContentHash:    hash,
		Status:         domain.TaskPending,
	}
	if in.CallerID != "" {
		caller := in.CallerID
		task.CallerID = &caller
	}
	if err := m.repo.Create(ctx, task); err != nil {
		return "", false, err
	}
	m.logger.Info().Str("task_id", task.ID).Str("work_kind", in.WorkKind).Msg("tasks: created")
	return task.ID, true, nil
}

// Start marks a pending task as processing. It is a no-op for any other status.
func (m *Manager) Start(ctx context.Context, id string) error {
	id, ok := parseID(id)
	if !ok {
		return domain.ErrTaskNotFound
	}
	changed, err := m.repo.MarkProcessing(ctx, id)
	if err != nil {
		return err
	}
	if changed {
		m.publish(ctx, id, domain.TaskProcessing)
	}
	return nil
}

// Claim hands the oldest pending task to a queue worker.
func (m *Manager) Claim(ctx context.Context) (*domain.Task, error) {
	task, err := m.repo.ClaimPending(ctx)
	if err != nil {
		return nil, err
	}
	m.publish(ctx, task.ID, domain.TaskProcessing)
	return task, nil
}

// Complete stores the result of a task. Completing an already terminal task
// is a no-op.
func (m *Manager) Complete(ctx context.Context, id string, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	return m.finish(ctx, id, domain.TaskCompleted, raw, "")
}

// Fail records the error of a task. Failing an already terminal task is a no-op.
func (m *Manager) Fail(ctx context.Context, id string, msg string) error {
	return m.finish(ctx, id, domain.TaskFailed, nil, msg)
}

func (m *Manager) finish(ctx context.Context, id string, status domain.TaskStatus, result []byte, errMsg string) error {
	id, ok := parseID(id)
	if !ok {
		return domain.ErrTaskNotFound
	}
	changed, err := m.repo.Finish(ctx, id, status, result, errMsg)
	if err != nil {
		return err
	}
	if !changed {
		// Either unknown or already terminal.
		if _, err := m.repo.GetByID(ctx, id); err != nil {
			return err
		}
		m.logger.Debug().Str("task_id", id).Str("status", string(status)).Msg("tasks: already terminal, ignoring")
		return nil
	}
	m.logger.Info().Str("task_id", id).Str("status", string(status)).Msg("tasks: finished")
	m.publish(ctx, id, status)
	return nil
}

// Read returns the task or ErrTaskNotFound.
func (m *Manager) Read(ctx context.Context, id string) (*domain.Task, error) {
	id, ok := parseID(id)
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	return m.repo.GetByID(ctx, id)
}

// parseID trims id and reports whether it is a uuid the store can look up.
func parseID(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// History lists the newest completed tasks. An empty caller id lists across callers.
func (m *Manager) History(ctx context.Context, callerID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var owner *string
	if c := strings.TrimSpace(callerID); c != "" {
		owner = &c
	}
	tasks, err := m.repo.ListCompleted(ctx, owner, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, HistoryEntry{
			ID:             t.ID,
			WorkKind:       t.WorkKind,
			Content:        preview(t.Content),
			ContentSubtype: t.ContentSubtype,
			CreatedAt:      t.CreatedAt,
		})
	}
	return out, nil
}

func (m *Manager) publish(ctx context.Context, id string, status domain.TaskStatus) {
	if m.pub == nil {
		return
	}
	if err := m.pub.Publish(ctx, realtime.TaskEvent{TaskID: id, Status: status}); err != nil {
		m.logger.Warn().Err(err).Str("task_id", id).Msg("tasks: publish event failed")
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= historyPreviewRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:historyPreviewRunes]) + "..."
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, e.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
