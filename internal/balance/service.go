package balance

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// SnapshotReader serves closed per-day totals.
type SnapshotReader interface {
	SumUpTo(ctx context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error)
	SumBefore(ctx context.Context, dir stock.Direction, ingredientID int64, date time.Time) (decimal.Decimal, error)
	SumRange(ctx context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) (decimal.Decimal, error)
	SumUpToByIngredient(ctx context.Context, dir stock.Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error)
	SumRangeByIngredient(ctx context.Context, dir stock.Direction, from, to time.Time) ([]snapshot.Total, error)
	SumRangeByDate(ctx context.Context, dir stock.Direction, from, to time.Time) ([]snapshot.DayTotal, error)
	ListRange(ctx context.Context, dir stock.Direction, ingredientID int64, from, to time.Time) ([]snapshot.DayTotal, error)
}

// DailyReader serves live, not yet closed daily totals.
type DailyReader interface {
	SumItemsForDate(ctx context.Context, dir stock.Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error)
}

// Directory resolves ingredients.
type Directory interface {
	GetByPublicID(ctx context.Context, publicID uuid.UUID) (ingredient.Ingredient, error)
	ListByIDs(ctx context.Context, ids []int64) ([]ingredient.Ingredient, error)
	List(ctx context.Context, filter ingredient.Filter) ([]ingredient.Ingredient, error)
}

// ThresholdSource supplies the fallback low-stock threshold.
type ThresholdSource interface {
	LowStockThreshold(ctx context.Context) decimal.Decimal
}

// Service computes balances and reports.
type Service struct {
	snapshots   SnapshotReader
	dailies     DailyReader
	ingredients Directory
	thresholds  ThresholdSource
	cache       *Cache
	clock       *shared.BusinessClock
	group       singleflight.Group
	logger      *slog.Logger
}

// NewService wires the readers with an optional cache.
func NewService(snapshots SnapshotReader, dailies DailyReader, ingredients Directory, thresholds ThresholdSource,
	cache *Cache, clock *shared.BusinessClock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		snapshots:   snapshots,
		dailies:     dailies,
		ingredients: ingredients,
		thresholds:  thresholds,
		cache:       cache,
		clock:       clock,
		logger:      logger.With(slog.String("component", "balance")),
	}
}

func cached[T any](ctx context.Context, s *Service, live bool, parts []string, load func(context.Context) (T, error)) (T, error) {
	if live || s.cache == nil {
		return load(ctx)
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		s.logger.WarnContext(ctx, "report cache unavailable", slog.Any("error", err))
		return load(ctx)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var out, value T
		var loaded bool
		var loadErr error
		err := s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
			value, loadErr = load(ctx)
			loaded = loadErr == nil
			return value, loadErr
		})
		if loadErr != nil {
			return out, loadErr
		}
		if err != nil {
			s.logger.WarnContext(ctx, "report cache unavailable", slog.String("key", key), slog.Any("error", err))
			// A failed write still leaves the freshly loaded value.
			if loaded {
				return value, nil
			}
			return load(ctx)
		}
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

type window struct {
	from, to time.Time
	// snapTo is the last date answered from snapshots.
	snapTo time.Time
	live   bool
}

func (w window) hasSnapshots() bool {
	return !w.snapTo.Before(w.from)
}

func (s *Service) window(clock *shared.BusinessClock, from, to time.Time) (window, error) {
	today := clock.Today()
	if to.IsZero() {
		to = today
	}
	to = clock.DateOf(to)
	if to.After(today) {
		to = today
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -defaultRangeDays)
	}
	from = clock.DateOf(from)
	if from.After(to) {
		return window{}, ErrInvalidRange
	}
	w := window{from: from, to: to, snapTo: to}
	if shared.SameDate(to, today) {
		w.live = true
		w.snapTo = today.AddDate(0, 0, -1)
	}
	return w, nil
}

func (s *Service) asOf(clock *shared.BusinessClock, date time.Time) (time.Time, error) {
	if date.IsZero() {
		return clock.Today(), nil
	}
	date = clock.DateOf(date)
	if date.After(clock.Today()) {
		return time.Time{}, shared.ErrFutureDate
	}
	return date, nil
}

// EndingBalance returns an ingredient's balance as of date. Today's balance
// is the closed history before today plus today's live daily items.
func (s *Service) EndingBalance(ctx context.Context, publicID uuid.UUID, date time.Time) (Balance, error) {
	clock := shared.ClockOr(ctx, s.clock)
	date, err := s.asOf(clock, date)
	if err != nil {
		return Balance{}, err
	}
	ing, err := s.ingredients.GetByPublicID(ctx, publicID)
	if err != nil {
		return Balance{}, err
	}
	live := clock.IsToday(date)
	return cached(ctx, s, live, []string{"ending", publicID.String(), shared.FormatDate(date)}, func(ctx context.Context) (Balance, error) {
		in, err := s.cumulative(ctx, stock.DirectionIn, ing.ID, date, live)
		if err != nil {
			return Balance{}, err
		}
		out, err := s.cumulative(ctx, stock.DirectionOut, ing.ID, date, live)
		if err != nil {
			return Balance{}, err
		}
		return Balance{Ingredient: refOf(ing), Date: date, In: in, Out: out, Ending: in.Sub(out), Live: live}, nil
	})
}

func (s *Service) cumulative(ctx context.Context, dir stock.Direction, ingredientID int64, date time.Time, live bool) (decimal.Decimal, error) {
	if !live {
		return s.snapshots.SumUpTo(ctx, dir, ingredientID, date)
	}
	closed, err := s.snapshots.SumBefore(ctx, dir, ingredientID, date)
	if err != nil {
		return decimal.Zero, err
	}
	today, err := s.dailies.SumItemsForDate(ctx, dir, date, []int64{ingredientID})
	if err != nil {
		return decimal.Zero, err
	}
	return closed.Add(today[ingredientID]), nil
}

// NetMovement returns total in minus total out of an ingredient over
// [from, to]. Opening plus net movement equals the ending balance at to.
func (s *Service) NetMovement(ctx context.Context, publicID uuid.UUID, from, to time.Time) (decimal.Decimal, error) {
	clock := shared.ClockOr(ctx, s.clock)
	w, err := s.window(clock, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	ing, err := s.ingredients.GetByPublicID(ctx, publicID)
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, dir := range stock.AllDirections() {
		days, err := s.rangeByDate(ctx, clock, dir, w, &ing.ID)
		if err != nil {
			return decimal.Zero, err
		}
		for _, d := range days {
			if dir == stock.DirectionIn {
				net = net.Add(d.Quantity)
			} else {
				net = net.Sub(d.Quantity)
			}
		}
	}
	return net, nil
}

// EndingByDate returns the balance of every ingredient with activity up to
// date, optionally limited to a category. An unknown category yields an empty
// list.
func (s *Service) EndingByDate(ctx context.Context, date time.Time, category string) ([]Balance, error) {
	clock := shared.ClockOr(ctx, s.clock)
	date, err := s.asOf(clock, date)
	if err != nil {
		return nil, err
	}
	live := clock.IsToday(date)
	return cached(ctx, s, live, []string{"ending-by-date", shared.FormatDate(date), category}, func(ctx context.Context) ([]Balance, error) {
		ings, err := s.listIngredients(ctx, category)
		if err != nil {
			return nil, err
		}
		return s.balances(ctx, ings, date, live, true)
	})
}

func (s *Service) listIngredients(ctx context.Context, category string) ([]ingredient.Ingredient, error) {
	ings, err := s.ingredients.List(ctx, ingredient.Filter{CategoryCode: category})
	if errors.Is(err, ingredient.ErrCategoryNotFound) {
		return nil, nil
	}
	return ings, err
}

// balances computes each ingredient's position as of date. With activeOnly,
// ingredients without any snapshot or live row up to date are left out.
func (s *Service) balances(ctx context.Context, ings []ingredient.Ingredient, date time.Time, live, activeOnly bool) ([]Balance, error) {
	out := make([]Balance, 0, len(ings))
	if len(ings) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(ings))
	for _, ing := range ings {
		ids = append(ids, ing.ID)
	}
	cum := make(map[stock.Direction]map[int64]decimal.Decimal, 2)
	for _, dir := range stock.AllDirections() {
		through := date
		if live {
			through = date.AddDate(0, 0, -1)
		}
		sums, err := s.snapshots.SumUpToByIngredient(ctx, dir, through, ids)
		if err != nil {
			return nil, err
		}
		if live {
			today, err := s.dailies.SumItemsForDate(ctx, dir, date, ids)
			if err != nil {
				return nil, err
			}
			for id, qty := range today {
				sums[id] = sums[id].Add(qty)
			}
		}
		cum[dir] = sums
	}
	for _, ing := range ings {
		in, hasIn := cum[stock.DirectionIn][ing.ID]
		outQty, hasOut := cum[stock.DirectionOut][ing.ID]
		if activeOnly && !hasIn && !hasOut {
			continue
		}
		out = append(out, Balance{Ingredient: refOf(ing), Date: date, In: in, Out: outQty, Ending: in.Sub(outQty), Live: live})
	}
	return out, nil
}

// StockAlerts splits ingredients into out-of-stock (ending <= 0) and low-stock
// (ending <= own minimum, or threshold when none is set). A nil or zero
// threshold uses the configured fallback.
func (s *Service) StockAlerts(ctx context.Context, date time.Time, threshold *decimal.Decimal, category string) (Alerts, error) {
	clock := shared.ClockOr(ctx, s.clock)
	date, err := s.asOf(clock, date)
	if err != nil {
		return Alerts{}, err
	}
	fallback := decimal.Zero
	if threshold != nil && !threshold.IsZero() {
		fallback = *threshold
	} else if s.thresholds != nil {
		fallback = s.thresholds.LowStockThreshold(ctx)
	}
	live := clock.IsToday(date)
	parts := []string{"stock-alerts", shared.FormatDate(date), fallback.String(), category}
	return cached(ctx, s, live, parts, func(ctx context.Context) (Alerts, error) {
		ings, err := s.listIngredients(ctx, category)
		if err != nil {
			return Alerts{}, err
		}
		balances, err := s.balances(ctx, ings, date, live, false)
		if err != nil {
			return Alerts{}, err
		}
		alerts := Alerts{Date: date, Threshold: fallback, Low: []AlertItem{}, Out: []AlertItem{}}
		for i, b := range balances {
			limit := fallback
			if ings[i].MinStock.Valid {
				limit = ings[i].MinStock.Decimal
			}
			item := AlertItem{Ingredient: b.Ingredient, Ending: b.Ending, Threshold: limit}
			switch {
			case !b.Ending.IsPositive():
				alerts.Out = append(alerts.Out, item)
			case b.Ending.LessThanOrEqual(limit):
				alerts.Low = append(alerts.Low, item)
			}
		}
		return alerts, nil
	})
}

// TopMovers ranks ingredients by quantity moved in dir over [from, to].
// Equal quantities keep ingredient id order.
func (s *Service) TopMovers(ctx context.Context, dir stock.Direction, from, to time.Time, limit int) ([]Mover, error) {
	dir, err := stock.ParseDirection(string(dir))
	if err != nil {
		return nil, err
	}
	clock := shared.ClockOr(ctx, s.clock)
	w, err := s.window(clock, from, to)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultMoversLimit
	case limit > maxMoversLimit:
		limit = maxMoversLimit
	}
	parts := []string{"top-movers", dir.String(), shared.FormatDate(w.from), shared.FormatDate(w.to), strconv.Itoa(limit)}
	return cached(ctx, s, w.live, parts, func(ctx context.Context) ([]Mover, error) {
		totals, err := s.rangeByIngredient(ctx, dir, w)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(totals, func(i, j int) bool {
			if c := totals[i].Quantity.Cmp(totals[j].Quantity); c != 0 {
				return c > 0
			}
			return totals[i].IngredientID < totals[j].IngredientID
		})
		if len(totals) > limit {
			totals = totals[:limit]
		}
		ings, err := s.ingredients.ListByIDs(ctx, snapshot.IngredientIDs(totals))
		if err != nil {
			return nil, err
		}
		byID := make(map[int64]ingredient.Ingredient, len(ings))
		for _, ing := range ings {
			byID[ing.ID] = ing
		}
		movers := make([]Mover, 0, len(totals))
		for _, t := range totals {
			movers = append(movers, Mover{Ingredient: refOf(byID[t.IngredientID]), Quantity: t.Quantity})
		}
		return movers, nil
	})
}

func (s *Service) rangeByIngredient(ctx context.Context, dir stock.Direction, w window) ([]snapshot.Total, error) {
	sums := make(map[int64]decimal.Decimal)
	if w.hasSnapshots() {
		totals, err := s.snapshots.SumRangeByIngredient(ctx, dir, w.from, w.snapTo)
		if err != nil {
			return nil, err
		}
		for _, t := range totals {
			sums[t.IngredientID] = t.Quantity
		}
	}
	if w.live {
		today, err := s.dailies.SumItemsForDate(ctx, dir, w.to, nil)
		if err != nil {
			return nil, err
		}
		for id, qty := range today {
			sums[id] = sums[id].Add(qty)
		}
	}
	out := make([]snapshot.Total, 0, len(sums))
	for id, qty := range sums {
		if qty.IsZero() {
			continue
		}
		out = append(out, snapshot.Total{IngredientID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IngredientID < out[j].IngredientID })
	return out, nil
}

// MovementSummary totals in and out across all ingredients per date.
func (s *Service) MovementSummary(ctx context.Context, from, to time.Time) (Summary, error) {
	clock := shared.ClockOr(ctx, s.clock)
	w, err := s.window(clock, from, to)
	if err != nil {
		return Summary{}, err
	}
	parts := []string{"movement-summary", shared.FormatDate(w.from), shared.FormatDate(w.to)}
	return cached(ctx, s, w.live, parts, func(ctx context.Context) (Summary, error) {
		days := map[string]*DaySummary{}
		for _, dir := range stock.AllDirections() {
			totals, err := s.rangeByDate(ctx, clock, dir, w, nil)
			if err != nil {
				return Summary{}, err
			}
			for _, t := range totals {
				key := shared.FormatDate(t.StockDate)
				day, ok := days[key]
				if !ok {
					day = &DaySummary{Date: t.StockDate}
					days[key] = day
				}
				if dir == stock.DirectionIn {
					day.In = day.In.Add(t.Quantity)
				} else {
					day.Out = day.Out.Add(t.Quantity)
				}
			}
		}
		summary := Summary{From: w.from, To: w.to, Days: make([]DaySummary, 0, len(days))}
		for _, day := range days {
			day.Net = day.In.Sub(day.Out)
			summary.Days = append(summary.Days, *day)
			summary.TotalIn = summary.TotalIn.Add(day.In)
			summary.TotalOut = summary.TotalOut.Add(day.Out)
		}
		sort.Slice(summary.Days, func(i, j int) bool { return summary.Days[i].Date.Before(summary.Days[j].Date) })
		summary.Net = summary.TotalIn.Sub(summary.TotalOut)
		return summary, nil
	})
}

// rangeByDate returns per-date totals in w, for one ingredient when
// ingredientID is set. Today's entry comes from the live ledger.
func (s *Service) rangeByDate(ctx context.Context, clock *shared.BusinessClock, dir stock.Direction, w window, ingredientID *int64) ([]snapshot.DayTotal, error) {
	var out []snapshot.DayTotal
	if w.hasSnapshots() {
		var rows []snapshot.DayTotal
		var err error
		if ingredientID != nil {
			rows, err = s.snapshots.ListRange(ctx, dir, *ingredientID, w.from, w.snapTo)
		} else {
			rows, err = s.snapshots.SumRangeByDate(ctx, dir, w.from, w.snapTo)
		}
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			out = append(out, snapshot.DayTotal{StockDate: clock.DateOf(r.StockDate), Quantity: r.Quantity})
		}
	}
	if w.live {
		var ids []int64
		if ingredientID != nil {
			ids = []int64{*ingredientID}
		}
		today, err := s.dailies.SumItemsForDate(ctx, dir, w.to, ids)
		if err != nil {
			return nil, err
		}
		sum := decimal.Zero
		for _, qty := range today {
			sum = sum.Add(qty)
		}
		if !sum.IsZero() {
			out = append(out, snapshot.DayTotal{StockDate: w.to, Quantity: sum})
		}
	}
	return out, nil
}

// Ledger folds an ingredient's daily movement over [from, to] into a running
// balance starting from the closed balance before from.
func (s *Service) Ledger(ctx context.Context, publicID uuid.UUID, from, to time.Time) (Ledger, error) {
	clock := shared.ClockOr(ctx, s.clock)
	w, err := s.window(clock, from, to)
	if err != nil {
		return Ledger{}, err
	}
	ing, err := s.ingredients.GetByPublicID(ctx, publicID)
	if err != nil {
		return Ledger{}, err
	}
	parts := []string{"ledger", publicID.String(), shared.FormatDate(w.from), shared.FormatDate(w.to)}
	return cached(ctx, s, w.live, parts, func(ctx context.Context) (Ledger, error) {
		openIn, err := s.snapshots.SumBefore(ctx, stock.DirectionIn, ing.ID, w.from)
		if err != nil {
			return Ledger{}, err
		}
		openOut, err := s.snapshots.SumBefore(ctx, stock.DirectionOut, ing.ID, w.from)
		if err != nil {
			return Ledger{}, err
		}
		ins, err := s.rangeByDate(ctx, clock, stock.DirectionIn, w, &ing.ID)
		if err != nil {
			return Ledger{}, err
		}
		outs, err := s.rangeByDate(ctx, clock, stock.DirectionOut, w, &ing.ID)
		if err != nil {
			return Ledger{}, err
		}

		ledger := Ledger{Ingredient: refOf(ing), From: w.from, To: w.to, Opening: openIn.Sub(openOut), Rows: []LedgerRow{}}
		ledger.Rows = foldLedger(ledger.Opening, ins, outs)
		ledger.Closing = ledger.Opening
		if n := len(ledger.Rows); n > 0 {
			ledger.Closing = ledger.Rows[n-1].Ending
		}
		return ledger, nil
	})
}

func foldLedger(opening decimal.Decimal, ins, outs []snapshot.DayTotal) []LedgerRow {
	byDate := map[string]*LedgerRow{}
	add := func(t snapshot.DayTotal, in bool) {
		key := shared.FormatDate(t.StockDate)
		row, ok := byDate[key]
		if !ok {
			row = &LedgerRow{Date: t.StockDate}
			byDate[key] = row
		}
		if in {
			row.In = row.In.Add(t.Quantity)
		} else {
			row.Out = row.Out.Add(t.Quantity)
		}
	}
	for _, t := range ins {
		add(t, true)
	}
	for _, t := range outs {
		add(t, false)
	}
	keys := make([]string, 0, len(byDate))
	for k := range byDate {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rows := make([]LedgerRow, 0, len(keys))
	running := opening
	for _, k := range keys {
		row := byDate[k]
		running = running.Add(row.In).Sub(row.Out)
		row.Ending = running
		rows = append(rows, *row)
	}
	return rows
}
