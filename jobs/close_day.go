package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	jobmetrics "github.com/kitchenstock/kitchenstock/internal/jobs"
	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/shared"
)

const closeDayLockTTL = 5 * time.Minute

// ErrCloseDayBusy is returned while another worker holds the date's lock.
var ErrCloseDayBusy = errors.New("close-day: another run holds the lock")

// CloseDayRunner is the engine invoked by the job.
type CloseDayRunner interface {
	CloseDay(ctx context.Context, input closeday.Input) (closeday.Result, error)
}

// Locker obtains short-lived distributed locks.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// CloseDayJob runs scheduled and queued closes.
type CloseDayJob struct {
	Service CloseDayRunner
	Locker  Locker
	Clock   *shared.BusinessClock
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCloseDayJob constructs the job handler.
func NewCloseDayJob(service CloseDayRunner, locker Locker, clock *shared.BusinessClock, logger *slog.Logger, metrics *jobmetrics.Metrics) *CloseDayJob {
	return &CloseDayJob{Service: service, Locker: locker, Clock: clock, Logger: logger, Metrics: metrics}
}

// Handle executes the close-day task.
func (j *CloseDayJob) Handle(ctx context.Context, task *asynq.Task) (resultErr error) {
	if j == nil || j.Service == nil || j.Clock == nil {
		return errors.New("close-day: dependencies not configured")
	}
	var payload CloseDayPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		j.log().Error("decode close-day payload", slog.Any("error", err))
		return fmt.Errorf("close-day: decode payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx = shared.ContextWithClock(ctx, j.Clock)
	date := j.Clock.Yesterday()
	if payload.Date != "" {
		parsed, err := j.Clock.ParseDate(payload.Date)
		if err != nil {
			j.log().Error("invalid close-day date", slog.String("date", payload.Date), slog.Any("error", err))
			return fmt.Errorf("close-day: %v: %w", err, asynq.SkipRetry)
		}
		date = parsed
	}
	source := payload.Source
	if source == "" {
		source = closeday.SourceScheduler
	}

	if j.Locker != nil {
		lock, err := j.Locker.Obtain(ctx, shared.CloseDayLockKey(date), closeDayLockTTL, nil)
		if errors.Is(err, redislock.ErrNotObtained) {
			j.log().Warn("close-day already running", slog.String("date", shared.FormatDate(date)))
			return ErrCloseDayBusy
		}
		if err != nil {
			return fmt.Errorf("close-day: obtain lock: %w", err)
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				j.log().Warn("release close-day lock", slog.Any("error", err))
			}
		}()
	}

	// A run skipped because another holds the lock is not a failure.
	tracker := j.Metrics.Track(TaskCloseDay)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	result, err := j.Service.CloseDay(ctx, closeday.Input{
		Date:       date,
		Directions: payload.Directions,
		Source:     source,
		ActorID:    payload.ActorID,
	})
	if err != nil {
		if httpx.IsClientError(err) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}
	j.log().Info("close-day task completed",
		slog.String("date", shared.FormatDate(result.Date)),
		slog.String("source", string(source)),
		slog.Int("run", result.Run))
	return nil
}

func (j *CloseDayJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
