// Package realtime pushes task status changes to connected clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"wordbento/internal/domain"
)

const channelPrefix = "task-events:"

// TaskEvent announces that a task moved to a new status.
type TaskEvent struct {
	TaskID string            `json:"taskId"`
	Status domain.TaskStatus `json:"status"`
}

// Bus fans task events out over redis pub/sub so that any API replica
// holding the socket hears about transitions made by any runner.
type Bus struct {
	rdb    redis.UniversalClient
	logger zerolog.Logger
}

func NewBus(rdb redis.UniversalClient, logger *zerolog.Logger) *Bus {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &Bus{rdb: rdb, logger: l.With().Str("component", "task_bus").Logger()}
}

func channel(taskID string) string {
	return channelPrefix + taskID
}

func (b *Bus) Publish(ctx context.Context, evt TaskEvent) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("task bus not initialized")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channel(evt.TaskID), raw).Err()
}

// Subscribe listens for events of one task until ctx ends or the returned
// stop function is called.
func (b *Bus) Subscribe(ctx context.Context, taskID string) (<-chan TaskEvent, func(), error) {
	if b == nil || b.rdb == nil {
		return nil, nil, fmt.Errorf("task bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, channel(taskID))
	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan TaskEvent, 4)
	done := make(chan struct{})
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var evt TaskEvent
				if err := json.Unmarshal([]byte(m.Payload), &evt); err != nil {
					b.logger.Warn().Err(err).Msg("task_bus: bad payload")
					continue
				}
				select {
				case out <- evt:
				default:
					// the reader re-reads the task anyway, one pending event is enough
				}
			}
		}
	}()

	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }
	return out, stop, nil
}
