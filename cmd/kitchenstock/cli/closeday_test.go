package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

type fakeCloser struct {
	inputs []closeday.Input
	failOn string
}

func (f *fakeCloser) CloseDay(ctx context.Context, input closeday.Input) (closeday.Result, error) {
	f.inputs = append(f.inputs, input)
	if shared.FormatDate(input.Date) == f.failOn {
		return closeday.Result{}, errors.New("boom")
	}
	return closeday.Result{
		Success: true,
		Date:    input.Date,
		Run:     1,
		Directions: []closeday.DirectionResult{
			{Direction: stock.DirectionIn, Headers: 2, Items: 3, Snapshots: 1, Quantity: decimal.NewFromInt(12)},
		},
	}, nil
}

type fakeEnqueuer struct {
	date time.Time
	dirs []stock.Direction
}

func (f *fakeEnqueuer) EnqueueCloseDay(ctx context.Context, date time.Time, dirs []stock.Direction, actorID int64) (string, error) {
	f.date = date
	f.dirs = dirs
	return "task-1", nil
}

func testClock(t *testing.T) *shared.BusinessClock {
	t.Helper()
	clock, err := shared.LoadBusinessClock("Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, clock.Location())
	return clock.WithNow(func() time.Time { return now })
}

func TestCloseDayCommandDefaultsToYesterday(t *testing.T) {
	closer := &fakeCloser{}
	c, err := NewCloseDayCLI(closer, nil, testClock(t))
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := c.CloseDayCommand(context.Background(), CloseDayOptions{JSONOutput: true, Stdout: stdout, Stderr: stderr})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	require.Len(t, closer.inputs, 1)
	require.Equal(t, "2024-01-04", shared.FormatDate(closer.inputs[0].Date))
	require.Empty(t, closer.inputs[0].Directions)
	require.Equal(t, closeday.SourceManual, closer.inputs[0].Source)

	var summaries []CloseDaySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summaries))
	require.Len(t, summaries, 1)
	require.Equal(t, "2024-01-04", summaries[0].Date)
	require.Equal(t, "12", summaries[0].Directions[0].Quantity)
}

func TestCloseDayCommandRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		opts CloseDayOptions
		want string
	}{
		{name: "bad date", opts: CloseDayOptions{Date: "05/01/2024"}, want: "invalid --date"},
		{name: "future", opts: CloseDayOptions{Date: "2024-01-06"}, want: "in the future"},
		{name: "direction", opts: CloseDayOptions{Directions: "sideways"}, want: "invalid --direction"},
		{name: "no queue", opts: CloseDayOptions{Enqueue: true}, want: "not configured"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			closer := &fakeCloser{}
			c, err := NewCloseDayCLI(closer, nil, testClock(t))
			require.NoError(t, err)
			stderr := new(bytes.Buffer)
			tc.opts.Stdout = new(bytes.Buffer)
			tc.opts.Stderr = stderr
			require.Equal(t, 1, c.CloseDayCommand(context.Background(), tc.opts))
			require.Contains(t, stderr.String(), tc.want)
			require.Empty(t, closer.inputs)
		})
	}
}

func TestCloseDayCommandEnqueue(t *testing.T) {
	closer := &fakeCloser{}
	enq := &fakeEnqueuer{}
	c, err := NewCloseDayCLI(closer, enq, testClock(t))
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.CloseDayCommand(context.Background(), CloseDayOptions{
		Date:       "2024-01-05",
		Directions: "out",
		Enqueue:    true,
		Stdout:     stdout,
		Stderr:     new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Empty(t, closer.inputs)
	require.Equal(t, "2024-01-05", shared.FormatDate(enq.date))
	require.Equal(t, []stock.Direction{stock.DirectionOut}, enq.dirs)
	require.Contains(t, stdout.String(), "queued as task-1")
}

func TestBackfillClosesOldestFirst(t *testing.T) {
	closer := &fakeCloser{}
	c, err := NewCloseDayCLI(closer, nil, testClock(t))
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.BackfillCommand(context.Background(), CloseDayOptions{From: "2024-01-01", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)

	var dates []string
	for _, in := range closer.inputs {
		dates = append(dates, shared.FormatDate(in.Date))
	}
	require.Equal(t, []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"}, dates)
	require.Contains(t, stdout.String(), "2024-01-04 closed (run 1)")
}

func TestBackfillStopsOnFailure(t *testing.T) {
	closer := &fakeCloser{failOn: "2024-01-02"}
	c, err := NewCloseDayCLI(closer, nil, testClock(t))
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := c.BackfillCommand(context.Background(), CloseDayOptions{From: "2024-01-01", To: "2024-01-03", Stdout: stdout, Stderr: stderr})
	require.Equal(t, 1, code)
	require.Len(t, closer.inputs, 2)
	require.Contains(t, stdout.String(), "2024-01-01 closed")
	require.Contains(t, stderr.String(), "boom")
}

func TestBackfillValidatesRange(t *testing.T) {
	c, err := NewCloseDayCLI(&fakeCloser{}, nil, testClock(t))
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.BackfillCommand(context.Background(), CloseDayOptions{Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "--from is required")

	stderr.Reset()
	require.Equal(t, 1, c.BackfillCommand(context.Background(), CloseDayOptions{From: "2024-01-04", To: "2024-01-02", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "must not be after")
}

func TestRunDispatchesFlags(t *testing.T) {
	closer := &fakeCloser{}
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	deps := Deps{CloseDay: closer, Clock: testClock(t), Stdout: stdout, Stderr: stderr}

	require.Zero(t, Run(context.Background(), []string{"close-day", "-date", "2024-01-03", "-direction", "in"}, deps))
	require.Len(t, closer.inputs, 1)
	require.Equal(t, []stock.Direction{stock.DirectionIn}, closer.inputs[0].Directions)

	require.Equal(t, 2, Run(context.Background(), []string{"reopen"}, deps))
	require.Contains(t, stderr.String(), "unknown command")
	require.Equal(t, 2, Run(context.Background(), nil, deps))
}
