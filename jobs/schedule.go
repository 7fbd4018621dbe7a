package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/settings"
)

// ScheduleSource resolves the current close-day schedule.
type ScheduleSource interface {
	CloseDaySchedule(ctx context.Context) settings.Schedule
}

// CloseDayScheduleProvider feeds the periodic task manager from settings, so
// schedule edits apply on the next sync without a restart.
type CloseDayScheduleProvider struct {
	Settings ScheduleSource
	Timeout  time.Duration
	Logger   *slog.Logger
}

// GetConfigs implements asynq.PeriodicTaskConfigProvider.
func (p *CloseDayScheduleProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	schedule := p.Settings.CloseDaySchedule(ctx)
	task, err := NewCloseDayTask(time.Time{}, nil, closeday.SourceScheduler, 0)
	if err != nil {
		return nil, err
	}
	if p.Logger != nil {
		p.Logger.Debug("close-day schedule synced", slog.String("cronspec", schedule.Cronspec()))
	}
	return []*asynq.PeriodicTaskConfig{{Cronspec: schedule.Cronspec(), Task: task}}, nil
}
