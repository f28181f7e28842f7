package domain

import (
	"encoding/json"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WorkKind enumerates the generation work a caller can submit.
type WorkKind string

const (
	WorkExtractVocabulary WorkKind = "extract-vocabulary"
	WorkEnrichWord        WorkKind = "enrich-word"
	WorkGenerateImage     WorkKind = "generate-image"
)

// Valid reports whether k is a supported work kind.
func (k WorkKind) Valid() bool {
	switch k {
	case WorkExtractVocabulary, WorkEnrichWord, WorkGenerateImage:
		return true
	}
	return false
}

// TaskStatus enumerates task lifecycle states. Status only moves forward:
// pending -> processing -> completed|failed.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions may occur from s.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Task is one unit of submitted generation work.
type Task struct {
	ID             string
	CallerID       *string
	WorkKind       WorkKind
	Content        string
	ContentSubtype string
	ContentHash    string
	Status         TaskStatus
	Result         json.RawMessage
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Anonymous reports whether the task was submitted without an authenticated caller.
func (t *Task) Anonymous() bool {
	return t.CallerID == nil || *t.CallerID == ""
}

// NormalizeWord is the canonical form of a single word: trimmed and lowercased.
// A fresh Caser is built per call since Casers keep state between calls.
func NormalizeWord(s string) string {
	return strings.TrimSpace(cases.Lower(language.English).String(strings.TrimSpace(s)))
}

// DedupContent is the form of the content that feeds the dedup fingerprint.
// Word kinds are keyed by the normalized word so that every spelling of one
// word shares one fingerprint and one asset owner.
func (k WorkKind) DedupContent(content string) string {
	switch k {
	case WorkEnrichWord, WorkGenerateImage:
		return NormalizeWord(content)
	}
	return strings.TrimSpace(content)
}

// ImageOwnerID names the owner of a word's generated images. It carries the
// subtype because the dedup fingerprint does, so regenerating one subtype
// never touches the assets another completed task points at.
func ImageOwnerID(subtype, word string) string {
	return "word:" + strings.TrimSpace(subtype) + ":" + NormalizeWord(word)
}
