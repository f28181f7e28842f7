// Package taskstest provides an in-memory domain.TaskRepository for tests.
package taskstest

import (
	"context"
	"sort"
	"sync"
	"time"

	"wordbento/internal/domain"
)

// Repository keeps tasks in a map and honours the same transition guards as
// the Postgres repository.
type Repository struct {
	mu    sync.Mutex
	tasks map[string]*domain.Task
	seq   int
	now   func() time.Time

	// Err, when set, is returned by every method.
	Err error
}

func NewRepository() *Repository {
	return &Repository{tasks: map[string]*domain.Task{}, now: time.Now}
}

func (r *Repository) Create(ctx context.Context, task *domain.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.seq++
	// Spread timestamps so ordering is deterministic.
	ts := r.now().Add(time.Duration(r.seq) * time.Millisecond)
	task.Status = domain.TaskPending
	task.CreatedAt = ts
	task.UpdatedAt = ts
	cp := *task
	r.tasks[task.ID] = &cp
	return nil
}

func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	t, ok := r.tasks[id]
	if !ok {
		return nil, domain.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *Repository) FindCompletedByHash(ctx context.Context, kind domain.WorkKind, hash string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	var best *domain.Task
	for _, t := range r.tasks {
		if t.WorkKind == kind && t.ContentHash == hash && t.Status == domain.TaskCompleted {
			if best == nil || t.CreatedAt.After(best.CreatedAt) {
				best = t
			}
		}
	}
	if best == nil {
		return "", domain.ErrNotFound
	}
	return best.ID, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	t, ok := r.tasks[id]
	if !ok || t.Status != domain.TaskPending {
		return false, nil
	}
	t.Status = domain.TaskProcessing
	t.UpdatedAt = r.now()
	return true, nil
}

func (r *Repository) Finish(ctx context.Context, id string, status domain.TaskStatus, result []byte, errMsg string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return false, r.Err
	}
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		return false, nil
	}
	t.Status = status
	t.Result = append([]byte(nil), result...)
	t.Error = errMsg
	t.UpdatedAt = r.now()
	return true, nil
}

func (r *Repository) ListCompleted(ctx context.Context, callerID *string, limit int) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var out []domain.Task
	for _, t := range r.tasks {
		if t.Status != domain.TaskCompleted {
			continue
		}
		if callerID != nil && (t.CallerID == nil || *t.CallerID != *callerID) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Repository) ClaimPending(ctx context.Context) (*domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var oldest *domain.Task
	for _, t := range r.tasks {
		if t.Status == domain.TaskPending && (oldest == nil || t.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = t
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = domain.TaskProcessing
	oldest.UpdatedAt = r.now()
	cp := *oldest
	return &cp, nil
}

// Delete removes a task, simulating a row that vanished.
func (r *Repository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
}

var _ domain.TaskRepository = (*Repository)(nil)
