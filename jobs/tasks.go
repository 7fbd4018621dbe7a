package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCloseDay consolidates one business day into history and snapshots.
	TaskCloseDay = "inventory:close-day"
)

// CloseDayPayload identifies the day to close. An empty Date means the day
// before the one on which the task runs.
type CloseDayPayload struct {
	Date       string            `json:"date,omitempty"`
	Directions []stock.Direction `json:"directions,omitempty"`
	Source     closeday.Source   `json:"source"`
	ActorID    int64             `json:"actor_id,omitempty"`
}

// NewCloseDayTask constructs an Asynq task for closing date. A zero date
// targets yesterday at run time.
func NewCloseDayTask(date time.Time, dirs []stock.Direction, source closeday.Source, actorID int64) (*asynq.Task, error) {
	payload := CloseDayPayload{Directions: dirs, Source: source, ActorID: actorID}
	if !date.IsZero() {
		payload.Date = shared.FormatDate(date)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCloseDay, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}
