package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"wordbento/internal/domain"
	"wordbento/internal/infra"
	"wordbento/internal/sqlinline"
)

// TaskRepositoryPG implements domain.TaskRepository.
type TaskRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewTaskRepository creates a task repository backed by PostgreSQL.
func NewTaskRepository(sql infra.SQLExecutor) *TaskRepositoryPG {
	return &TaskRepositoryPG{sql: sql}
}

// Create inserts a pending task. ID and ContentHash must already be set.
func (r *TaskRepositoryPG) Create(ctx context.Context, task *domain.Task) error {
	callerID := ""
	if task.CallerID != nil {
		callerID = *task.CallerID
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertTask,
		task.ID,
		callerID,
		string(task.WorkKind),
		task.Content,
		task.ContentSubtype,
		task.ContentHash,
	)
	if err := row.Scan(&task.CreatedAt, &task.UpdatedAt); err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	task.Status = domain.TaskPending
	return nil
}

// GetByID fetches a task by its identifier.
func (r *TaskRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QSelectTaskByID, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrTaskNotFound
		}
		return nil, fmt.Errorf("select task: %w", err)
	}
	return task, nil
}

// FindCompletedByHash returns the newest completed task with the same fingerprint.
func (r *TaskRepositoryPG) FindCompletedByHash(ctx context.Context, kind domain.WorkKind, hash string) (string, error) {
	var id string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectCompletedTaskByHash, string(kind), hash).Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("select task by hash: %w", err)
	}
	return id, nil
}

// MarkProcessing moves a pending task to processing.
func (r *TaskRepositoryPG) MarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QMarkTaskProcessing, id)
	if err != nil {
		return false, fmt.Errorf("mark task processing: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Finish writes a terminal status if the task is still in flight.
func (r *TaskRepositoryPG) Finish(ctx context.Context, id string, status domain.TaskStatus, result []byte, errMsg string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("finish task: %q is not a terminal status", status)
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishTask, id, string(status), nullableBytes(result), errMsg)
	if err != nil {
		return false, fmt.Errorf("finish task: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListCompleted returns the newest completed tasks, optionally scoped to a caller.
func (r *TaskRepositoryPG) ListCompleted(ctx context.Context, callerID *string, limit int) ([]domain.Task, error) {
	owner := ""
	if callerID != nil {
		owner = strings.TrimSpace(*callerID)
	}
	rows, err := r.sql.Query(ctx, sqlinline.QListCompletedTasks, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ClaimPending locks the oldest pending task and moves it to processing.
func (r *TaskRepositoryPG) ClaimPending(ctx context.Context) (*domain.Task, error) {
	task, err := scanTask(r.sql.QueryRow(ctx, sqlinline.QClaimPendingTask))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("claim task: %w", err)
	}
	return task, nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	var (
		task     domain.Task
		callerID string
		kind     string
		status   string
		result   []byte
	)
	if err := row.Scan(
		&task.ID,
		&callerID,
		&kind,
		&task.Content,
		&task.ContentSubtype,
		&task.ContentHash,
		&status,
		&result,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if callerID != "" {
		task.CallerID = &callerID
	}
	task.WorkKind = domain.WorkKind(kind)
	task.Status = domain.TaskStatus(status)
	if len(result) > 0 {
		task.Result = append([]byte(nil), result...)
	}
	return &task, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
