package domain

import "context"

// TaskRepository persists generation tasks.
type TaskRepository interface {
	Create(ctx context.Context, task *Task) error
	// GetByID returns ErrTaskNotFound when the id is unknown.
	GetByID(ctx context.Context, id string) (*Task, error)
	// FindCompletedByHash returns ErrNotFound when no completed task matches.
	FindCompletedByHash(ctx context.Context, kind WorkKind, hash string) (string, error)
	// MarkProcessing moves a pending task to processing and reports whether it did.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	// Finish applies a terminal status only when the task is not already
	// terminal and reports whether a row changed.
	Finish(ctx context.Context, id string, status TaskStatus, result []byte, errMsg string) (bool, error)
	ListCompleted(ctx context.Context, callerID *string, limit int) ([]Task, error)
	// ClaimPending moves the oldest pending task to processing. Returns ErrNotFound when the queue is empty.
	ClaimPending(ctx context.Context) (*Task, error)
}

// CredentialRepository persists provider credentials.
type CredentialRepository interface {
	// Active returns nil without error when no active row exists.
	Active(ctx context.Context, callerID, platform string) (*Credential, error)
	Save(ctx context.Context, cred Credential) error
	List(ctx context.Context, callerID string) ([]Credential, error)
}

// AssetRepository persists asset rows.
type AssetRepository interface {
	ListByOwner(ctx context.Context, ownerID string) ([]Asset, error)
	DeleteByOwner(ctx context.Context, ownerID string) error
	Create(ctx context.Context, asset *Asset) error
}
