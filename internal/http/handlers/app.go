package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
	"wordbento/internal/middleware"
	"wordbento/internal/quota"
	"wordbento/internal/tasks"
)

// TaskService is the task lifecycle surface the handlers need.
type TaskService interface {
	Create(ctx context.Context, in tasks.CreateInput) (string, bool, error)
	Read(ctx context.Context, id string) (*domain.Task, error)
	History(ctx context.Context, callerID string, limit int) ([]tasks.HistoryEntry, error)
}

type QuotaGate interface {
	TryConsume(ctx context.Context, caller quota.Caller) (bool, error)
	Remaining(ctx context.Context, fingerprint string) (int, error)
}

type CredentialService interface {
	Save(ctx context.Context, cred domain.Credential) error
	List(ctx context.Context, callerID string) ([]domain.Credential, error)
}

type AssetOpener interface {
	Open(ctx context.Context, key string) ([]byte, string, error)
}

// StatusBridge streams task updates over an upgraded connection.
type StatusBridge interface {
	Serve(w http.ResponseWriter, r *http.Request, task *domain.Task)
}

// Dispatcher starts a run for a freshly created task. Nil in queue mode.
type Dispatcher interface {
	Dispatch(taskID string)
}

type Options struct {
	Tasks       TaskService
	Quota       QuotaGate
	Credentials CredentialService
	Assets      AssetOpener
	Bridge      StatusBridge
	Dispatcher  Dispatcher
	Platforms   []string
	Logger      *zerolog.Logger
}

type App struct {
	Tasks       TaskService
	Quota       QuotaGate
	Credentials CredentialService
	Assets      AssetOpener
	Bridge      StatusBridge
	Dispatcher  Dispatcher

	platforms map[string]struct{}
	validate  *validator.Validate
	logger    zerolog.Logger
}

func NewApp(opts Options) *App {
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	platforms := make(map[string]struct{}, len(opts.Platforms))
	for _, p := range opts.Platforms {
		platforms[p] = struct{}{}
	}
	return &App{
		Tasks:       opts.Tasks,
		Quota:       opts.Quota,
		Credentials: opts.Credentials,
		Assets:      opts.Assets,
		Bridge:      opts.Bridge,
		Dispatcher:  opts.Dispatcher,
		platforms:   platforms,
		validate:    validator.New(),
		logger:      logger.With().Str("component", "http").Logger(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) error(w http.ResponseWriter, code int, errCode, msg string) {
	a.json(w, code, errorBody{Error: errCode, Message: msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
