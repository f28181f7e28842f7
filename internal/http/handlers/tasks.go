package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"wordbento/internal/domain"
	"wordbento/internal/middleware"
	"wordbento/internal/quota"
	"wordbento/internal/tasks"
)

// FreeCallsHeader reports an anonymous caller's remaining free calls.
const FreeCallsHeader = "X-Free-Calls-Remaining"

// maxSubmitBytes bounds a submission body. Content may hold up to 100000
// runes of up to 4 bytes each, plus the envelope.
const maxSubmitBytes = 512 << 10

type submitTaskRequest struct {
	WorkKind       string `json:"workKind"`
	Content        string `json:"content"`
	ContentSubtype string `json:"contentSubtype"`
}

type submitTaskResponse struct {
	TaskID string `json:"taskId"`
}

type taskResponse struct {
	TaskID         string          `json:"taskId"`
	WorkKind       domain.WorkKind `json:"workKind"`
	ContentSubtype string          `json:"contentSubtype"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// SubmitTask creates a generation task. Anonymous callers spend one free call;
// identical completed work is returned with 200 instead of 201.
func (a *App) SubmitTask(w http.ResponseWriter, r *http.Request) {
	var req submitTaskRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxSubmitBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large", "submission body too large")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	userID := a.currentUserID(r)
	// Rejected input must never spend a free call.
	input, err := tasks.Normalize(tasks.CreateInput{
		CallerID:       userID,
		WorkKind:       req.WorkKind,
		Content:        req.Content,
		ContentSubtype: req.ContentSubtype,
	})
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	if userID == "" && a.Quota != nil {
		fp := middleware.ClientFingerprint(r)
		log := a.logger.With().Str("fingerprint", fp).Str("country", middleware.CountryFromContext(r.Context())).Logger()
		allowed, err := a.Quota.TryConsume(r.Context(), quota.Caller{Fingerprint: fp})
		if err != nil {
			log.Warn().Err(err).Bool("allowed", allowed).Msg("http: quota check degraded")
		}
		if !allowed {
			log.Info().Msg("http: free calls exhausted")
			w.Header().Set(FreeCallsHeader, "0")
			a.error(w, http.StatusTooManyRequests, "quota_exceeded", "free calls exhausted, sign in to continue")
			return
		}
		if remaining, err := a.Quota.Remaining(r.Context(), fp); err == nil {
			w.Header().Set(FreeCallsHeader, strconv.Itoa(remaining))
		}
	}

	id, created, err := a.Tasks.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		a.logger.Error().Err(err).Msg("http: create task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create task")
		return
	}

	if !created {
		a.json(w, http.StatusOK, submitTaskResponse{TaskID: id})
		return
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Dispatch(id)
	}
	a.json(w, http.StatusCreated, submitTaskResponse{TaskID: id})
}

func (a *App) GetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := a.loadTask(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, taskResponse{
		TaskID:         task.ID,
		WorkKind:       task.WorkKind,
		ContentSubtype: task.ContentSubtype,
		Status:         string(task.Status),
		Result:         task.Result,
		Error:          task.Error,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
	})
}

// TaskStatusSocket hands the connection to the status bridge. Plain HTTP
// requests get 426 and unknown ids 404, both before any upgrade.
func (a *App) TaskStatusSocket(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		a.error(w, http.StatusUpgradeRequired, "upgrade_required", "expected websocket upgrade")
		return
	}
	task, ok := a.loadTask(w, r)
	if !ok {
		return
	}
	a.Bridge.Serve(w, r, task)
}

func (a *App) History(w http.ResponseWriter, r *http.Request) {
	limit := tasks.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 50 {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be between 1 and 50")
			return
		}
		limit = n
	}
	items, err := a.Tasks.History(r.Context(), a.currentUserID(r), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("http: history failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	if items == nil {
		items = []tasks.HistoryEntry{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) loadTask(w http.ResponseWriter, r *http.Request) (*domain.Task, bool) {
	id := chi.URLParam(r, "id")
	task, err := a.Tasks.Read(r.Context(), id)
	switch {
	case err == nil:
		return task, true
	case errors.Is(err, domain.ErrTaskNotFound):
		a.error(w, http.StatusNotFound, "not_found", "task not found")
	default:
		a.logger.Error().Err(err).Str("task_id", id).Msg("http: read task failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load task")
	}
	return nil, false
}
