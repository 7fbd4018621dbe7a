package closeday

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	jobmetrics "github.com/kitchenstock/kitchenstock/internal/jobs"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithCloseTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetRun(ctx context.Context, date time.Time) (Run, bool, error)
}

// TxRepository exposes the statements a close runs inside its transaction.
type TxRepository interface {
	ClaimDate(ctx context.Context, date time.Time, source Source, actorID int64, at time.Time) (int, error)
	ListDailiesForDate(ctx context.Context, dir stock.Direction, date time.Time) ([]stock.DailyHeader, error)
	ListItemsForDate(ctx context.Context, dir stock.Direction, date time.Time) ([]stock.DailyItem, error)
	DeleteHistoryForDate(ctx context.Context, dir stock.Direction, date time.Time) (int64, error)
	InsertHistory(ctx context.Context, dir stock.Direction, h stock.HistoryHeader) (int64, error)
	InsertHistoryItems(ctx context.Context, dir stock.Direction, historyID int64, items []stock.HistoryItem) error
	UpsertSnapshots(ctx context.Context, dir stock.Direction, date time.Time, totals []snapshot.Total) (int64, error)
	PruneSnapshots(ctx context.Context, dir stock.Direction, date time.Time, keep []int64) (int64, error)
	RecordDirection(ctx context.Context, date time.Time, result DirectionResult) error
}

// Invalidator drops cached reports after a close commits.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Config groups optional collaborators.
type Config struct {
	Timeout time.Duration
	Cache   Invalidator
	Metrics *jobmetrics.Metrics
	Logger  *slog.Logger
}

// Service runs close-day.
type Service struct {
	repo    RepositoryPort
	clock   *shared.BusinessClock
	timeout time.Duration
	cache   Invalidator
	metrics *jobmetrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewService builds Service.
func NewService(repo RepositoryPort, clock *shared.BusinessClock, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		clock:   clock,
		timeout: cfg.Timeout,
		cache:   cfg.Cache,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("github.com/kitchenstock/kitchenstock/internal/closeday"),
		logger:  logger.With(slog.String("component", "closeday")),
	}
}

// CloseYesterday closes the business day before today.
func (s *Service) CloseYesterday(ctx context.Context, source Source) (Result, error) {
	clock := shared.ClockOr(ctx, s.clock)
	return s.CloseDay(ctx, Input{Date: clock.Yesterday(), Source: source})
}

// CloseDay archives the date's ledgers and rewrites its snapshots. Closing a
// date again replaces the history written by the previous close.
func (s *Service) CloseDay(ctx context.Context, input Input) (Result, error) {
	clock := shared.ClockOr(ctx, s.clock)
	if input.Date.IsZero() {
		return Result{}, ErrDateRequired
	}
	date := clock.DateOf(input.Date)
	if date.After(clock.Today()) {
		return Result{}, shared.ErrFutureDate
	}
	dirs, err := normalizeDirections(input.Directions)
	if err != nil {
		return Result{}, err
	}
	source := input.Source
	if source == "" {
		source = SourceManual
	}
	day := shared.FormatDate(date)

	ctx, span := s.tracer.Start(ctx, "closeday.CloseDay", trace.WithAttributes(
		attribute.String("stock_date", day),
		attribute.String("source", string(source)),
	))
	defer span.End()

	txCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		txCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	now := clock.Now()
	result := Result{Date: date, ClosedAt: now}
	err = s.repo.WithCloseTx(txCtx, func(ctx context.Context, tx TxRepository) error {
		run, err := tx.ClaimDate(ctx, date, source, input.ActorID, now)
		if err != nil {
			return err
		}
		result.Run = run
		result.Directions = result.Directions[:0]
		for _, dir := range dirs {
			dirCtx, dirSpan := s.tracer.Start(ctx, "closeday.closeDirection",
				trace.WithAttributes(attribute.String("direction", dir.String())))
			dr, err := closeDirection(dirCtx, tx, dir, date, now)
			if err != nil {
				dirSpan.RecordError(err)
			}
			dirSpan.End()
			if err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			if err := tx.RecordDirection(ctx, date, dr); err != nil {
				return err
			}
			result.Directions = append(result.Directions, dr)
		}
		return nil
	})
	s.metrics.ObserveClose(string(source), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "close-day failed")
		s.logger.ErrorContext(ctx, "close-day failed",
			slog.String("date", day),
			slog.String("source", string(source)),
			slog.Any("error", err))
		return Result{}, fmt.Errorf("closeday: close %s: %w", day, err)
	}
	result.Success = true

	for _, dr := range result.Directions {
		s.metrics.AddArchived(dr.Direction.String(), dr.Headers, dr.Items)
		s.logger.InfoContext(ctx, "close-day direction archived",
			slog.String("date", day),
			slog.String("direction", dr.Direction.String()),
			slog.Int("headers", dr.Headers),
			slog.Int("items", dr.Items),
			slog.Int("snapshots", dr.Snapshots),
			slog.Int64("replaced_history", dr.ReplacedHistory),
			slog.Int64("pruned", dr.Pruned))
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil {
			s.logger.WarnContext(ctx, "report cache invalidation failed", slog.Any("error", err))
		}
	}
	s.logger.InfoContext(ctx, "close-day committed", slog.String("date", day), slog.Int("run", result.Run))
	return result, nil
}

func closeDirection(ctx context.Context, tx TxRepository, dir stock.Direction, date, now time.Time) (DirectionResult, error) {
	headers, err := tx.ListDailiesForDate(ctx, dir, date)
	if err != nil {
		return DirectionResult{}, err
	}
	items, err := tx.ListItemsForDate(ctx, dir, date)
	if err != nil {
		return DirectionResult{}, err
	}

	// Read committed lets a header committed between the two reads surface
	// items without a listed header; archive and aggregate only the items
	// whose header was listed so history and snapshots agree.
	byDaily := make(map[int64][]stock.DailyItem, len(headers))
	for _, h := range headers {
		byDaily[h.ID] = nil
	}
	kept := items[:0:0]
	for _, it := range items {
		if _, ok := byDaily[it.DailyID]; !ok {
			continue
		}
		byDaily[it.DailyID] = append(byDaily[it.DailyID], it)
		kept = append(kept, it)
	}

	replaced, err := tx.DeleteHistoryForDate(ctx, dir, date)
	if err != nil {
		return DirectionResult{}, err
	}
	for _, h := range headers {
		historyID, err := tx.InsertHistory(ctx, dir, stock.ArchiveHeader(h, now))
		if err != nil {
			return DirectionResult{}, err
		}
		archived := make([]stock.HistoryItem, 0, len(byDaily[h.ID]))
		for _, it := range byDaily[h.ID] {
			archived = append(archived, stock.ArchiveItem(it))
		}
		if err := tx.InsertHistoryItems(ctx, dir, historyID, archived); err != nil {
			return DirectionResult{}, err
		}
	}

	totals := snapshot.Aggregate(kept)
	if _, err := tx.UpsertSnapshots(ctx, dir, date, totals); err != nil {
		return DirectionResult{}, err
	}
	pruned, err := tx.PruneSnapshots(ctx, dir, date, snapshot.IngredientIDs(totals))
	if err != nil {
		return DirectionResult{}, err
	}
	return DirectionResult{
		Direction:       dir,
		Headers:         len(headers),
		Items:           len(kept),
		Snapshots:       len(totals),
		Pruned:          pruned,
		ReplacedHistory: replaced,
		Quantity:        snapshot.Sum(totals),
	}, nil
}

func normalizeDirections(dirs []stock.Direction) ([]stock.Direction, error) {
	if len(dirs) == 0 {
		return stock.AllDirections(), nil
	}
	want := make(map[stock.Direction]bool, len(dirs))
	for _, d := range dirs {
		parsed, err := stock.ParseDirection(string(d))
		if err != nil {
			return nil, err
		}
		want[parsed] = true
	}
	var out []stock.Direction
	for _, d := range stock.AllDirections() {
		if want[d] {
			out = append(out, d)
		}
	}
	return out, nil
}

// Status reports the bookkeeping of a date's last close.
func (s *Service) Status(ctx context.Context, date time.Time) (Status, error) {
	date = shared.ClockOr(ctx, s.clock).DateOf(date)
	run, ok, err := s.repo.GetRun(ctx, date)
	if err != nil {
		return Status{}, err
	}
	status := Status{Date: date, Closed: ok}
	if ok {
		run.StockDate = date
		status.Run = &run
	}
	return status, nil
}

// Total returns the quantity closed for dir.
func (r Result) Total(dir stock.Direction) decimal.Decimal {
	for _, dr := range r.Directions {
		if dr.Direction == dir {
			return dr.Quantity
		}
	}
	return decimal.Zero
}
