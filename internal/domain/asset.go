package domain

import "time"

// Asset is a stored binary artifact owned by a generated entity.
type Asset struct {
	ID          string
	OwnerID     string
	ObjectKey   string
	Prompt      string
	ContentType string
	CreatedAt   time.Time
}
