package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
)

const (
	defaultPollInterval = 5 * time.Second
	writeTimeout        = 10 * time.Second
	maxClientMessage    = 4 << 10

	reasonDisappeared = "task disappeared"
	reasonReadFailed  = "error fetching task status"
)

// TaskReader loads the current state of a task.
type TaskReader interface {
	Read(ctx context.Context, id string) (*domain.Task, error)
}

// Subscriber delivers task events for one task.
type Subscriber interface {
	Subscribe(ctx context.Context, taskID string) (<-chan TaskEvent, func(), error)
}

// Message is what the status channel pushes.
type Message struct {
	TaskID   string            `json:"taskId"`
	Status   domain.TaskStatus `json:"status"`
	Progress *int              `json:"progress,omitempty"`
	Message  string            `json:"message,omitempty"`
	Result   json.RawMessage   `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// ClientMessage is what a client may send. Only "cancel" is recognized.
type ClientMessage struct {
	Type string `json:"type"`
}

type BridgeOptions struct {
	Tasks TaskReader
	// Bus is optional. Without it the bridge only polls.
	Bus          Subscriber
	PollInterval time.Duration
	CheckOrigin  func(r *http.Request) bool
	Logger       *zerolog.Logger
}

// Bridge streams status updates of one task over a websocket until the task
// reaches a terminal state.
type Bridge struct {
	tasks    TaskReader
	bus      Subscriber
	interval time.Duration
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewBridge(opts BridgeOptions) *Bridge {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Bridge{
		tasks:    opts.Tasks,
		bus:      opts.Bus,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: logger.With().Str("component", "status_bridge").Logger(),
	}
}

// Serve upgrades the request and streams task updates. The caller has
// already loaded task so unknown ids are rejected before the upgrade.
func (b *Bridge) Serve(w http.ResponseWriter, r *http.Request, task *domain.Task) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		b.logger.Warn().Err(err).Str("task_id", task.ID).Msg("status_bridge: upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	log := b.logger.With().Str("task_id", task.ID).Logger()
	log.Debug().Msg("status_bridge: opened")

	var events <-chan TaskEvent
	if b.bus != nil {
		ch, stop, err := b.bus.Subscribe(ctx, task.ID)
		if err != nil {
			log.Warn().Err(err).Msg("status_bridge: subscribe failed, polling only")
		} else {
			defer stop()
			events = ch
		}
	}

	go b.readClient(conn, cancel, log)

	if err := b.push(conn, messageFor(task)); err != nil {
		return
	}
	if task.Status.Terminal() {
		b.close(conn, websocket.CloseNormalClosure, "")
		return
	}
	last := task.Status

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("status_bridge: client went away")
			return
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		}

		current, err := b.tasks.Read(ctx, task.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reason := reasonReadFailed
			if errors.Is(err, domain.ErrTaskNotFound) {
				reason = reasonDisappeared
			}
			log.Error().Err(err).Msg("status_bridge: " + reason)
			_ = b.push(conn, Message{TaskID: task.ID, Status: domain.TaskFailed, Error: reason})
			b.close(conn, websocket.CloseInternalServerErr, reason)
			return
		}

		if current.Status == last {
			continue
		}
		last = current.Status
		if err := b.push(conn, messageFor(current)); err != nil {
			return
		}
		if current.Status.Terminal() {
			log.Debug().Str("status", string(current.Status)).Msg("status_bridge: terminal, closing")
			b.close(conn, websocket.CloseNormalClosure, "")
			return
		}
	}
}

// readClient drains client frames. A cancel request is advisory and only
// logged; any read error ends the session but never the run.
func (b *Bridge) readClient(conn *websocket.Conn, cancel context.CancelFunc, log zerolog.Logger) {
	defer cancel()
	conn.SetReadLimit(maxClientMessage)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Debug().Err(err).Msg("status_bridge: ignoring malformed client message")
			continue
		}
		if msg.Type == "cancel" {
			log.Info().Msg("status_bridge: cancel requested, run continues")
		}
	}
}

func (b *Bridge) push(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		b.logger.Debug().Err(err).Str("task_id", msg.TaskID).Msg("status_bridge: write failed")
		return err
	}
	return nil
}

func (b *Bridge) close(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text),
		time.Now().Add(writeTimeout))
}

func messageFor(task *domain.Task) Message {
	msg := Message{TaskID: task.ID, Status: task.Status}
	var progress int
	switch task.Status {
	case domain.TaskPending:
		msg.Message = "queued"
	case domain.TaskProcessing:
		progress = 50
		msg.Message = "generating"
	case domain.TaskCompleted:
		progress = 100
		msg.Result = task.Result
	case domain.TaskFailed:
		progress = 100
		msg.Error = task.Error
	}
	msg.Progress = &progress
	return msg
}
