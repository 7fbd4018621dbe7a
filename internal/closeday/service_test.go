package closeday_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/balance"
	"github.com/kitchenstock/kitchenstock/internal/closeday"
	jobmetrics "github.com/kitchenstock/kitchenstock/internal/jobs"
	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
	"github.com/kitchenstock/kitchenstock/internal/testing/memstore"
)

var saigon = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		panic(err)
	}
	return loc
}()

func qty(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

type countingCache struct{ bumps atomic.Int64 }

func (c *countingCache) Bump(context.Context) error {
	c.bumps.Add(1)
	return nil
}

type fixture struct {
	store *memstore.Store
	svc   *closeday.Service
	clock *shared.BusinessClock
	cache *countingCache
	day   time.Time
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := memstore.New()
	now := time.Date(2024, 1, 6, 0, 5, 0, 0, saigon)
	clock := shared.NewBusinessClock(saigon).WithNow(func() time.Time { return now })
	cache := &countingCache{}
	svc := closeday.NewService(store, clock, closeday.Config{
		Timeout: time.Minute,
		Cache:   cache,
		Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry()),
	})
	return fixture{store: store, svc: svc, clock: clock, cache: cache, day: clock.Yesterday()}
}

func TestCloseDayArchivesAndAggregates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.store.AddIngredient("RICE", "Gạo", "GRAIN", nil)
	fish := f.store.AddIngredient("FISH", "Cá", "SEAFOOD", nil)

	f.store.SeedDaily(stock.DirectionIn, f.day,
		memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("12.5")},
		memstore.SeedItem{IngredientID: fish.ID, Quantity: qty("3")},
	)
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("0.5")})
	f.store.SeedDaily(stock.DirectionIn, f.day)
	f.store.SeedDaily(stock.DirectionOut, f.day, memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("4")})
	// A different date must not leak in.
	f.store.SeedDaily(stock.DirectionIn, f.day.AddDate(0, 0, -1), memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("100")})

	result, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.Run)
	require.Len(t, result.Directions, 2)

	in := result.Directions[0]
	require.Equal(t, stock.DirectionIn, in.Direction)
	require.Equal(t, 3, in.Headers)
	require.Equal(t, 3, in.Items)
	require.Equal(t, 2, in.Snapshots)
	require.True(t, result.Total(stock.DirectionIn).Equal(qty("16")))

	histories := f.store.Histories(stock.DirectionIn, f.day)
	require.Len(t, histories, 3)
	require.Empty(t, histories[2].Items, "empty headers still archive")

	riceIn, ok := f.store.Snapshot(stock.DirectionIn, f.day, rice.ID)
	require.True(t, ok)
	require.True(t, riceIn.Equal(qty("13")))
	fishIn, _ := f.store.Snapshot(stock.DirectionIn, f.day, fish.ID)
	require.True(t, fishIn.Equal(qty("3")))
	riceOut, _ := f.store.Snapshot(stock.DirectionOut, f.day, rice.ID)
	require.True(t, riceOut.Equal(qty("4")))

	require.EqualValues(t, 1, f.cache.bumps.Load())

	status, err := f.svc.Status(ctx, f.day)
	require.NoError(t, err)
	require.True(t, status.Closed)
	require.Equal(t, 3, status.Run.HeadersIn)
	require.Equal(t, 1, status.Run.ItemsOut)
}

func TestHistoryConservesQuantity(t *testing.T) {
	f := newFixture(t)
	a := f.store.AddIngredient("A", "A", "", nil)
	b := f.store.AddIngredient("B", "B", "", nil)
	f.store.SeedDaily(stock.DirectionOut, f.day,
		memstore.SeedItem{IngredientID: a.ID, Quantity: qty("1.111")},
		memstore.SeedItem{IngredientID: b.ID, Quantity: qty("2.222")},
	)
	f.store.SeedDaily(stock.DirectionOut, f.day, memstore.SeedItem{IngredientID: a.ID, Quantity: qty("3.333")})

	_, err := f.svc.CloseDay(context.Background(), closeday.Input{Date: f.day})
	require.NoError(t, err)

	archived := decimal.Zero
	for _, h := range f.store.Histories(stock.DirectionOut, f.day) {
		for _, it := range h.Items {
			archived = archived.Add(it.Quantity)
		}
	}
	snapA, _ := f.store.Snapshot(stock.DirectionOut, f.day, a.ID)
	snapB, _ := f.store.Snapshot(stock.DirectionOut, f.day, b.ID)
	require.True(t, archived.Equal(snapA.Add(snapB)))
	require.True(t, archived.Equal(qty("6.666")))
}

func TestRecloseReplacesHistoryAndKeepsSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	salt := f.store.AddIngredient("SALT", "Muối", "", nil)
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("10")})

	_, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.NoError(t, err)
	first := f.store.Histories(stock.DirectionIn, f.day)
	require.Len(t, first, 1)

	again, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.NoError(t, err)
	require.Equal(t, 2, again.Run)
	require.Equal(t, int64(1), again.Directions[0].ReplacedHistory)

	second := f.store.Histories(stock.DirectionIn, f.day)
	require.Len(t, second, 1, "re-close must not duplicate history")
	require.NotEqual(t, first[0].PublicID, second[0].PublicID)
	require.Equal(t, first[0].DailyID, second[0].DailyID)

	v, _ := f.store.Snapshot(stock.DirectionIn, f.day, salt.ID)
	require.True(t, v.Equal(qty("10")))
	require.Equal(t, 1, f.store.SnapshotCount(stock.DirectionIn, f.day))
}

func TestReclosePrunesVanishedIngredients(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	salt := f.store.AddIngredient("SALT", "Muối", "", nil)
	f.store.SetSnapshot(stock.DirectionIn, f.day, 99, qty("5"))
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("1")})

	result, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day, Directions: []stock.Direction{stock.DirectionIn}})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Directions[0].Pruned)
	_, ok := f.store.Snapshot(stock.DirectionIn, f.day, 99)
	require.False(t, ok)
}

func TestFailureRollsBackEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	salt := f.store.AddIngredient("SALT", "Muối", "", nil)
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("10")})
	f.store.SeedDaily(stock.DirectionOut, f.day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("3")})

	boom := errors.New("connection reset")
	f.store.FailOn("UpsertSnapshots:out", boom)

	_, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.ErrorIs(t, err, boom)
	require.Empty(t, f.store.Histories(stock.DirectionIn, f.day))
	_, ok := f.store.Snapshot(stock.DirectionIn, f.day, salt.ID)
	require.False(t, ok, "stock-in snapshot must roll back with stock-out failure")
	status, err := f.svc.Status(ctx, f.day)
	require.NoError(t, err)
	require.False(t, status.Closed)
	require.Zero(t, f.cache.bumps.Load())

	f.store.FailOn("UpsertSnapshots:out", nil)
	result, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.NoError(t, err)
	require.Equal(t, 1, result.Run)
	require.Len(t, f.store.Histories(stock.DirectionIn, f.day), 1)
}

func TestCloseDayValidatesDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CloseDay(ctx, closeday.Input{})
	require.ErrorIs(t, err, closeday.ErrDateRequired)

	_, err = f.svc.CloseDay(ctx, closeday.Input{Date: f.clock.Today().AddDate(0, 0, 1)})
	require.ErrorIs(t, err, shared.ErrFutureDate)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = f.svc.CloseDay(ctx, closeday.Input{Date: f.day, Directions: []stock.Direction{"sideways"}})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestCloseDayHonoursCancellation(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCloseYesterdayUsesBusinessClock(t *testing.T) {
	f := newFixture(t)
	salt := f.store.AddIngredient("SALT", "Muối", "", nil)
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("2")})

	// 17:10 UTC on Jan 5 is 00:10 on Jan 6 in Saigon, so yesterday is Jan 5.
	clock := shared.NewBusinessClock(saigon).WithNow(func() time.Time {
		return time.Date(2024, 1, 5, 17, 10, 0, 0, time.UTC)
	})
	ctx := shared.ContextWithClock(context.Background(), clock)

	result, err := f.svc.CloseYesterday(ctx, closeday.SourceScheduler)
	require.NoError(t, err)
	require.Equal(t, "2024-01-05", shared.FormatDate(result.Date))
	status, err := f.svc.Status(ctx, result.Date)
	require.NoError(t, err)
	require.Equal(t, closeday.SourceScheduler, status.Run.LastSource)
}

func TestSaltScenario(t *testing.T) {
	store := memstore.New()
	// 2024-01-05 is today in this scenario.
	clock := shared.NewBusinessClock(saigon).WithNow(func() time.Time {
		return time.Date(2024, 1, 5, 20, 0, 0, 0, saigon)
	})
	svc := closeday.NewService(store, clock, closeday.Config{})
	salt := store.AddIngredient("SALT", "Muối", "", nil)
	day := clock.Today()
	store.SeedDaily(stock.DirectionIn, day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("10")})
	store.SeedDaily(stock.DirectionOut, day, memstore.SeedItem{IngredientID: salt.ID, Quantity: qty("3")})

	for run := 1; run <= 2; run++ {
		result, err := svc.CloseDay(context.Background(), closeday.Input{Date: day})
		require.NoError(t, err)
		require.Equal(t, run, result.Run)

		in, _ := store.Snapshot(stock.DirectionIn, day, salt.ID)
		out, _ := store.Snapshot(stock.DirectionOut, day, salt.ID)
		require.True(t, in.Equal(qty("10")))
		require.True(t, out.Equal(qty("3")))
		require.Len(t, store.Histories(stock.DirectionIn, day), 1)
		require.Len(t, store.Histories(stock.DirectionOut, day), 1)
	}
}

func TestCloseDayConcurrentClosesAndReaders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rice := f.store.AddIngredient("RICE", "Gạo", "GRAIN", nil)
	fish := f.store.AddIngredient("FISH", "Cá", "SEAFOOD", nil)
	earlier := f.day.AddDate(0, 0, -1)

	f.store.SeedDaily(stock.DirectionIn, earlier, memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("5")})
	f.store.SeedDaily(stock.DirectionIn, f.day,
		memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("12")},
		memstore.SeedItem{IngredientID: fish.ID, Quantity: qty("2")},
	)
	f.store.SeedDaily(stock.DirectionIn, f.day, memstore.SeedItem{IngredientID: fish.ID, Quantity: qty("1")})
	f.store.SeedDaily(stock.DirectionOut, f.day, memstore.SeedItem{IngredientID: rice.ID, Quantity: qty("4")})

	reports := balance.NewService(f.store, f.store, f.store, nil, nil, f.clock, nil)

	const sameDate, otherDate, readers, reads = 8, 4, 4, 25
	errs := make(chan error, sameDate+otherDate)
	var wg sync.WaitGroup
	for i := 0; i < sameDate; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CloseDay(ctx, closeday.Input{Date: f.day, Source: closeday.SourceManual})
			errs <- err
		}()
	}
	for i := 0; i < otherDate; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CloseDay(ctx, closeday.Input{Date: earlier, Source: closeday.SourceManual})
			errs <- err
		}()
	}

	// Each close commits atomically, so a reader sees either none or all of
	// a date's snapshots for a direction.
	var mu sync.Mutex
	var seenIn, seenOut []decimal.Decimal
	var readErr error
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < reads; j++ {
				b, err := reports.EndingBalance(ctx, rice.PublicID, f.day)
				mu.Lock()
				if err != nil && readErr == nil {
					readErr = err
				}
				seenIn = append(seenIn, b.In)
				seenOut = append(seenOut, b.Out)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, readErr)
	for _, in := range seenIn {
		require.Truef(t, in.Equal(qty("0")) || in.Equal(qty("5")) || in.Equal(qty("12")) || in.Equal(qty("17")),
			"torn inbound read %s", in)
	}
	for _, out := range seenOut {
		require.Truef(t, out.Equal(qty("0")) || out.Equal(qty("4")), "torn outbound read %s", out)
	}

	require.Equal(t, 2, f.store.SnapshotCount(stock.DirectionIn, f.day))
	require.Equal(t, 1, f.store.SnapshotCount(stock.DirectionOut, f.day))
	require.Equal(t, 1, f.store.SnapshotCount(stock.DirectionIn, earlier))
	require.Zero(t, f.store.SnapshotCount(stock.DirectionOut, earlier))

	fishIn, ok := f.store.Snapshot(stock.DirectionIn, f.day, fish.ID)
	require.True(t, ok)
	require.True(t, fishIn.Equal(qty("3")))

	require.Len(t, f.store.Histories(stock.DirectionIn, f.day), 2, "one archived copy per header")
	require.Len(t, f.store.Histories(stock.DirectionOut, f.day), 1)
	require.Len(t, f.store.Histories(stock.DirectionIn, earlier), 1)

	run, ok, err := f.store.GetRun(ctx, f.day)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, sameDate, run.RunCount)
	run, ok, err = f.store.GetRun(ctx, earlier)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, otherDate, run.RunCount)

	final, err := reports.EndingBalance(ctx, rice.PublicID, f.day)
	require.NoError(t, err)
	require.True(t, final.Ending.Equal(qty("13")))
	require.EqualValues(t, sameDate+otherDate, f.cache.bumps.Load())
}
