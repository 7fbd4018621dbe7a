package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bsm/redislock"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	jobmetrics "github.com/kitchenstock/kitchenstock/internal/jobs"
	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/settings"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

var saigon = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		panic(err)
	}
	return loc
}()

type fakeRunner struct {
	inputs  []closeday.Input
	clocks  []*shared.BusinessClock
	err     error
	onClose func(ctx context.Context)
}

func (f *fakeRunner) CloseDay(ctx context.Context, input closeday.Input) (closeday.Result, error) {
	f.inputs = append(f.inputs, input)
	f.clocks = append(f.clocks, shared.ClockFromContext(ctx))
	if f.onClose != nil {
		f.onClose(ctx)
	}
	if f.err != nil {
		return closeday.Result{}, f.err
	}
	return closeday.Result{Success: true, Date: input.Date, Run: 1}, nil
}

func testClock() *shared.BusinessClock {
	now := time.Date(2024, 1, 6, 0, 5, 0, 0, saigon)
	return shared.NewBusinessClock(saigon).WithNow(func() time.Time { return now })
}

func closeTask(t *testing.T, payload CloseDayPayload) *asynq.Task {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TaskCloseDay, body)
}

func TestCloseDayJobDefaultsToYesterday(t *testing.T) {
	runner := &fakeRunner{}
	clock := testClock()
	reg := prometheus.NewRegistry()
	job := NewCloseDayJob(runner, nil, clock, nil, jobmetrics.NewMetrics(reg))

	task, err := NewCloseDayTask(time.Time{}, nil, closeday.SourceScheduler, 0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Len(t, runner.inputs, 1)
	require.Equal(t, "2024-01-05", shared.FormatDate(runner.inputs[0].Date))
	require.Equal(t, closeday.SourceScheduler, runner.inputs[0].Source)
	require.Same(t, clock, runner.clocks[0], "the job injects its clock")
	count, err := testutil.GatherAndCount(reg, "kitchenstock_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCloseDayJobExplicitDate(t *testing.T) {
	runner := &fakeRunner{}
	job := NewCloseDayJob(runner, nil, testClock(), nil, nil)

	err := job.Handle(context.Background(), closeTask(t, CloseDayPayload{
		Date:       "2024-01-02",
		Directions: []stock.Direction{stock.DirectionOut},
		Source:     closeday.SourceManual,
		ActorID:    7,
	}))
	require.NoError(t, err)
	in := runner.inputs[0]
	require.Equal(t, "2024-01-02", shared.FormatDate(in.Date))
	require.Equal(t, []stock.Direction{stock.DirectionOut}, in.Directions)
	require.Equal(t, closeday.SourceManual, in.Source)
	require.Equal(t, int64(7), in.ActorID)
}

func TestCloseDayJobSkipsRetryOnBadInput(t *testing.T) {
	runner := &fakeRunner{}
	job := NewCloseDayJob(runner, nil, testClock(), nil, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskCloseDay, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), closeTask(t, CloseDayPayload{Date: "05/01/2024"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, runner.inputs)

	runner.err = shared.ErrFutureDate
	err = job.Handle(context.Background(), closeTask(t, CloseDayPayload{Date: "2024-01-07"}))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestCloseDayJobRetriesEngineFailures(t *testing.T) {
	runner := &fakeRunner{err: errors.New("deadline exceeded")}
	reg := prometheus.NewRegistry()
	job := NewCloseDayJob(runner, nil, testClock(), nil, jobmetrics.NewMetrics(reg))

	err := job.Handle(context.Background(), closeTask(t, CloseDayPayload{}))
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
	count, err := testutil.GatherAndCount(reg, "kitchenstock_jobs_failures_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestCloseDayJobLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := redislock.New(client)
	ctx := context.Background()
	clock := testClock()
	key := shared.CloseDayLockKey(clock.Yesterday())

	runner := &fakeRunner{onClose: func(context.Context) {
		require.True(t, mr.Exists(key), "lock held while closing")
	}}
	reg := prometheus.NewRegistry()
	job := NewCloseDayJob(runner, locker, clock, nil, jobmetrics.NewMetrics(reg))
	require.NoError(t, job.Handle(ctx, closeTask(t, CloseDayPayload{})))
	require.False(t, mr.Exists(key), "lock released after closing")

	held, err := locker.Obtain(ctx, key, time.Minute, nil)
	require.NoError(t, err)
	defer func() { _ = held.Release(ctx) }()

	err = job.Handle(ctx, closeTask(t, CloseDayPayload{}))
	require.ErrorIs(t, err, ErrCloseDayBusy)
	require.Len(t, runner.inputs, 1)

	failures, err := testutil.GatherAndCount(reg, "kitchenstock_jobs_failures_total")
	require.NoError(t, err)
	require.Zero(t, failures, "a busy lock is not a job failure")
	runs, err := testutil.GatherAndCount(reg, "kitchenstock_jobs_total")
	require.NoError(t, err)
	require.Equal(t, 1, runs, "only the successful run is counted")
}

type fakeSchedule struct{ schedule settings.Schedule }

func (f fakeSchedule) CloseDaySchedule(context.Context) settings.Schedule { return f.schedule }

func TestCloseDayScheduleProvider(t *testing.T) {
	provider := &CloseDayScheduleProvider{Settings: fakeSchedule{settings.Schedule{Cron: "30 1 * * *", Timezone: "Asia/Ho_Chi_Minh"}}}
	configs, err := provider.GetConfigs()
	require.NoError(t, err)
	require.Len(t, configs, 1)
	require.Equal(t, "CRON_TZ=Asia/Ho_Chi_Minh 30 1 * * *", configs[0].Cronspec)
	require.Equal(t, TaskCloseDay, configs[0].Task.Type())

	var payload CloseDayPayload
	require.NoError(t, json.Unmarshal(configs[0].Task.Payload(), &payload))
	require.Empty(t, payload.Date, "scheduled closes resolve yesterday when they run")
	require.Equal(t, closeday.SourceScheduler, payload.Source)
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Queue: QueueDefault}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

func TestClientEnqueueCloseDay(t *testing.T) {
	fake := &fakeEnqueuer{}
	client := &Client{client: fake, uniqueTTL: time.Minute}
	date := time.Date(2024, 1, 4, 0, 0, 0, 0, saigon)

	id, err := client.EnqueueCloseDay(context.Background(), date, nil, 3)
	require.NoError(t, err)
	require.Equal(t, "task-1", id)
	var payload CloseDayPayload
	require.NoError(t, json.Unmarshal(fake.tasks[0].Payload(), &payload))
	require.Equal(t, "2024-01-04", payload.Date)
	require.Equal(t, closeday.SourceManual, payload.Source)
	require.Len(t, fake.opts[0], 2)

	fake.err = asynq.ErrDuplicateTask
	_, err = client.EnqueueCloseDay(context.Background(), date, nil, 3)
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0}`, rr.Body.String())
}
