// Package cli implements the operator subcommands of the kitchenstock binary.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Closer runs a close synchronously.
type Closer interface {
	CloseDay(ctx context.Context, input closeday.Input) (closeday.Result, error)
}

// Deps carries the services the subcommands drive.
type Deps struct {
	CloseDay Closer
	Enqueuer closeday.Enqueuer
	Clock    *shared.BusinessClock
	Stdout   io.Writer
	Stderr   io.Writer
}

// CloseDayOptions configures the close-day and backfill commands.
type CloseDayOptions struct {
	Date       string
	From       string
	To         string
	Directions string
	Enqueue    bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// CloseDaySummary is the structured outcome printed per closed date.
type CloseDaySummary struct {
	Date       string               `json:"date"`
	Run        int                  `json:"run,omitempty"`
	TaskID     string               `json:"task_id,omitempty"`
	Directions []CloseDirectionLine `json:"directions,omitempty"`
}

// CloseDirectionLine summarises one archived direction.
type CloseDirectionLine struct {
	Direction string `json:"direction"`
	Headers   int    `json:"headers"`
	Items     int    `json:"items"`
	Snapshots int    `json:"snapshots"`
	Quantity  string `json:"quantity"`
}

// CloseDayCLI drives manual and backfill closes from the command line.
type CloseDayCLI struct {
	closer   Closer
	enqueuer closeday.Enqueuer
	clock    *shared.BusinessClock
}

// NewCloseDayCLI constructs the helper.
func NewCloseDayCLI(closer Closer, enqueuer closeday.Enqueuer, clock *shared.BusinessClock) (*CloseDayCLI, error) {
	if closer == nil {
		return nil, errors.New("cli: close-day service is required")
	}
	if clock == nil {
		return nil, errors.New("cli: business clock is required")
	}
	return &CloseDayCLI{closer: closer, enqueuer: enqueuer, clock: clock}, nil
}

// Run dispatches args to a subcommand and returns the process exit code.
func Run(ctx context.Context, args []string, deps Deps) int {
	stdout, stderr := deps.Stdout, deps.Stderr
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: kitchenstock <close-day|backfill> [flags]")
		return 2
	}
	c, err := NewCloseDayCLI(deps.CloseDay, deps.Enqueuer, deps.Clock)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	opts := CloseDayOptions{Stdout: stdout, Stderr: stderr}
	fs := flag.NewFlagSet(args[0], flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.Directions, "direction", "", "in, out or empty for both")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print JSON output")

	switch args[0] {
	case "close-day":
		fs.StringVar(&opts.Date, "date", "", "business date YYYY-MM-DD (default yesterday)")
		fs.BoolVar(&opts.Enqueue, "enqueue", false, "queue the close on the worker instead of running it")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return c.CloseDayCommand(ctx, opts)
	case "backfill":
		fs.StringVar(&opts.From, "from", "", "first business date YYYY-MM-DD")
		fs.StringVar(&opts.To, "to", "", "last business date YYYY-MM-DD (default yesterday)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		return c.BackfillCommand(ctx, opts)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[0])
		return 2
	}
}

// CloseDayCommand closes a single business date.
func (c *CloseDayCLI) CloseDayCommand(ctx context.Context, opts CloseDayOptions) int {
	opts = withWriters(opts)
	dirs, err := parseDirections(opts.Directions)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "close-day: %v\n", err)
		return 1
	}
	date, err := c.clock.ParseDateOr(opts.Date, c.clock.Yesterday())
	if err != nil {
		fmt.Fprintf(opts.Stderr, "close-day: invalid --date %q (expected YYYY-MM-DD)\n", opts.Date)
		return 1
	}
	if date.After(c.clock.Today()) {
		fmt.Fprintf(opts.Stderr, "close-day: %s is in the future\n", shared.FormatDate(date))
		return 1
	}

	var summary CloseDaySummary
	if opts.Enqueue {
		if c.enqueuer == nil {
			fmt.Fprintln(opts.Stderr, "close-day: job queue is not configured")
			return 1
		}
		id, err := c.enqueuer.EnqueueCloseDay(ctx, date, dirs, 0)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "close-day: enqueue %s: %v\n", shared.FormatDate(date), err)
			return 1
		}
		summary = CloseDaySummary{Date: shared.FormatDate(date), TaskID: id}
	} else {
		summary, err = c.closeOne(ctx, date, dirs)
		if err != nil {
			fmt.Fprintf(opts.Stderr, "close-day: %v\n", err)
			return 1
		}
	}
	return c.print(opts, []CloseDaySummary{summary})
}

// BackfillCommand closes every date in [from, to] oldest first, stopping on
// the first failure.
func (c *CloseDayCLI) BackfillCommand(ctx context.Context, opts CloseDayOptions) int {
	opts = withWriters(opts)
	dirs, err := parseDirections(opts.Directions)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
		return 1
	}
	if strings.TrimSpace(opts.From) == "" {
		fmt.Fprintln(opts.Stderr, "backfill: --from is required")
		return 1
	}
	from, err := c.clock.ParseDate(opts.From)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: invalid --from %q (expected YYYY-MM-DD)\n", opts.From)
		return 1
	}
	to, err := c.clock.ParseDateOr(opts.To, c.clock.Yesterday())
	if err != nil {
		fmt.Fprintf(opts.Stderr, "backfill: invalid --to %q (expected YYYY-MM-DD)\n", opts.To)
		return 1
	}
	if from.After(to) {
		fmt.Fprintln(opts.Stderr, "backfill: --from must not be after --to")
		return 1
	}
	if to.After(c.clock.Today()) {
		fmt.Fprintln(opts.Stderr, "backfill: --to must not be in the future")
		return 1
	}

	summaries := make([]CloseDaySummary, 0)
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		summary, err := c.closeOne(ctx, day, dirs)
		if err != nil {
			c.print(opts, summaries)
			fmt.Fprintf(opts.Stderr, "backfill: %v\n", err)
			return 1
		}
		summaries = append(summaries, summary)
	}
	return c.print(opts, summaries)
}

func (c *CloseDayCLI) closeOne(ctx context.Context, date time.Time, dirs []stock.Direction) (CloseDaySummary, error) {
	res, err := c.closer.CloseDay(ctx, closeday.Input{Date: date, Directions: dirs, Source: closeday.SourceManual})
	if err != nil {
		return CloseDaySummary{}, err
	}
	summary := CloseDaySummary{Date: shared.FormatDate(res.Date), Run: res.Run}
	for _, dr := range res.Directions {
		summary.Directions = append(summary.Directions, CloseDirectionLine{
			Direction: dr.Direction.String(),
			Headers:   dr.Headers,
			Items:     dr.Items,
			Snapshots: dr.Snapshots,
			Quantity:  dr.Quantity.String(),
		})
	}
	return summary, nil
}

func (c *CloseDayCLI) print(opts CloseDayOptions, summaries []CloseDaySummary) int {
	if opts.JSONOutput {
		enc := json.NewEncoder(opts.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(summaries); err != nil {
			fmt.Fprintf(opts.Stderr, "encode output: %v\n", err)
			return 1
		}
		return 0
	}
	for _, s := range summaries {
		if s.TaskID != "" {
			fmt.Fprintf(opts.Stdout, "%s queued as %s\n", s.Date, s.TaskID)
			continue
		}
		fmt.Fprintf(opts.Stdout, "%s closed (run %d)\n", s.Date, s.Run)
		for _, d := range s.Directions {
			fmt.Fprintf(opts.Stdout, "  %-3s headers=%d items=%d snapshots=%d quantity=%s\n",
				d.Direction, d.Headers, d.Items, d.Snapshots, d.Quantity)
		}
	}
	return 0
}

func withWriters(opts CloseDayOptions) CloseDayOptions {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return opts
}

func parseDirections(value string) ([]stock.Direction, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	dir, err := stock.ParseDirection(value)
	if err != nil {
		return nil, fmt.Errorf("invalid --direction %q (expected in or out)", value)
	}
	return []stock.Direction{dir}, nil
}
