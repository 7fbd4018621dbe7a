package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

type tx struct {
	st       *state
	failures map[string]error
}

func (t *tx) fail(op string) error {
	return t.failures[op]
}

func (t *tx) InsertDaily(_ context.Context, dir stock.Direction, h stock.DailyHeader) (stock.DailyHeader, error) {
	if err := t.fail("InsertDaily"); err != nil {
		return stock.DailyHeader{}, err
	}
	h.ID = t.st.id()
	h.Direction = dir
	stored := h
	stored.Items = nil
	t.st.dailies[dir] = append(t.st.dailies[dir], stored)
	return h, nil
}

func (t *tx) InsertItem(_ context.Context, dir stock.Direction, it stock.DailyItem) (stock.DailyItem, error) {
	if err := t.fail("InsertItem"); err != nil {
		return stock.DailyItem{}, err
	}
	it.ID = t.st.id()
	t.st.items[dir] = append(t.st.items[dir], it)
	return it, nil
}

func (t *tx) LoadDailyForUpdate(_ context.Context, dir stock.Direction, publicID uuid.UUID) (stock.DailyHeader, error) {
	for _, h := range t.st.dailies[dir] {
		if h.PublicID == publicID {
			return h, nil
		}
	}
	return stock.DailyHeader{}, stock.ErrDailyNotFound
}

func (t *tx) UpdateDaily(_ context.Context, dir stock.Direction, h stock.DailyHeader) error {
	if err := t.fail("UpdateDaily"); err != nil {
		return err
	}
	for i := range t.st.dailies[dir] {
		if t.st.dailies[dir][i].ID == h.ID {
			h.Items = nil
			t.st.dailies[dir][i] = h
			return nil
		}
	}
	return stock.ErrDailyNotFound
}

func (t *tx) DeleteDaily(_ context.Context, dir stock.Direction, id int64) error {
	headers := t.st.dailies[dir][:0:0]
	for _, h := range t.st.dailies[dir] {
		if h.ID != id {
			headers = append(headers, h)
		}
	}
	t.st.dailies[dir] = headers
	items := t.st.items[dir][:0:0]
	for _, it := range t.st.items[dir] {
		if it.DailyID != id {
			items = append(items, it)
		}
	}
	t.st.items[dir] = items
	return nil
}

func (t *tx) LoadItemForUpdate(_ context.Context, dir stock.Direction, publicID uuid.UUID) (stock.DailyItem, error) {
	for _, it := range t.st.items[dir] {
		if it.PublicID == publicID {
			return it, nil
		}
	}
	return stock.DailyItem{}, stock.ErrItemNotFound
}

func (t *tx) UpdateItem(_ context.Context, dir stock.Direction, it stock.DailyItem) error {
	if err := t.fail("UpdateItem"); err != nil {
		return err
	}
	for i := range t.st.items[dir] {
		if t.st.items[dir][i].ID == it.ID {
			t.st.items[dir][i] = it
			return nil
		}
	}
	return stock.ErrItemNotFound
}

func (t *tx) DeleteItem(_ context.Context, dir stock.Direction, id int64) error {
	items := t.st.items[dir][:0:0]
	for _, it := range t.st.items[dir] {
		if it.ID != id {
			items = append(items, it)
		}
	}
	t.st.items[dir] = items
	return nil
}

func (t *tx) ClaimDate(_ context.Context, date time.Time, source closeday.Source, actorID int64, at time.Time) (int, error) {
	if err := t.fail("ClaimDate"); err != nil {
		return 0, err
	}
	day := shared.FormatDate(date)
	run, ok := t.st.runs[day]
	if !ok {
		run = closeday.Run{StockDate: date, FirstClosedAt: at}
	}
	run.RunCount++
	run.LastSource = source
	run.LastClosedAt = at
	run.LastActorID = nil
	if actorID != 0 {
		id := actorID
		run.LastActorID = &id
	}
	t.st.runs[day] = run
	return run.RunCount, nil
}

func (t *tx) ListDailiesForDate(_ context.Context, dir stock.Direction, date time.Time) ([]stock.DailyHeader, error) {
	if err := t.fail("ListDailiesForDate"); err != nil {
		return nil, err
	}
	day := shared.FormatDate(date)
	var out []stock.DailyHeader
	for _, h := range t.st.dailies[dir] {
		if shared.FormatDate(h.StockDate) == day {
			out = append(out, h)
		}
	}
	return out, nil
}

func (t *tx) ListItemsForDate(_ context.Context, dir stock.Direction, date time.Time) ([]stock.DailyItem, error) {
	if err := t.fail("ListItemsForDate"); err != nil {
		return nil, err
	}
	day := shared.FormatDate(date)
	var out []stock.DailyItem
	for _, it := range t.st.items[dir] {
		if shared.FormatDate(it.StockDate) == day {
			out = append(out, it)
		}
	}
	return out, nil
}

func (t *tx) DeleteHistoryForDate(_ context.Context, dir stock.Direction, date time.Time) (int64, error) {
	if err := t.fail("DeleteHistoryForDate"); err != nil {
		return 0, err
	}
	day := shared.FormatDate(date)
	removed := map[int64]bool{}
	headers := t.st.histories[dir][:0:0]
	for _, h := range t.st.histories[dir] {
		if shared.FormatDate(h.StockDate) == day {
			removed[h.ID] = true
			continue
		}
		headers = append(headers, h)
	}
	t.st.histories[dir] = headers
	items := t.st.historyItems[dir][:0:0]
	for _, it := range t.st.historyItems[dir] {
		if !removed[it.HistoryID] {
			items = append(items, it)
		}
	}
	t.st.historyItems[dir] = items
	return int64(len(removed)), nil
}

func (t *tx) InsertHistory(_ context.Context, dir stock.Direction, h stock.HistoryHeader) (int64, error) {
	if err := t.fail("InsertHistory"); err != nil {
		return 0, err
	}
	h.ID = t.st.id()
	t.st.histories[dir] = append(t.st.histories[dir], h)
	return h.ID, nil
}

func (t *tx) InsertHistoryItems(_ context.Context, dir stock.Direction, historyID int64, items []stock.HistoryItem) error {
	if err := t.fail("InsertHistoryItems"); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = t.st.id()
		it.HistoryID = historyID
		t.st.historyItems[dir] = append(t.st.historyItems[dir], it)
	}
	return nil
}

func (t *tx) UpsertSnapshots(_ context.Context, dir stock.Direction, date time.Time, totals []snapshot.Total) (int64, error) {
	if err := t.fail("UpsertSnapshots:" + dir.String()); err != nil {
		return 0, err
	}
	day := shared.FormatDate(date)
	for _, total := range totals {
		t.st.snapshots[dir][snapKey{day, total.IngredientID}] = total.Quantity
	}
	return int64(len(totals)), nil
}

func (t *tx) PruneSnapshots(_ context.Context, dir stock.Direction, date time.Time, keep []int64) (int64, error) {
	day := shared.FormatDate(date)
	keepSet := idSet(keep)
	var pruned int64
	for k := range t.st.snapshots[dir] {
		if k.date == day && !keepSet[k.ingredientID] {
			delete(t.st.snapshots[dir], k)
			pruned++
		}
	}
	return pruned, nil
}

func (t *tx) RecordDirection(_ context.Context, date time.Time, result closeday.DirectionResult) error {
	day := shared.FormatDate(date)
	run := t.st.runs[day]
	switch result.Direction {
	case stock.DirectionIn:
		run.HeadersIn, run.ItemsIn, run.SnapshotsIn = result.Headers, result.Items, result.Snapshots
	case stock.DirectionOut:
		run.HeadersOut, run.ItemsOut, run.SnapshotsOut = result.Headers, result.Items, result.Snapshots
	}
	t.st.runs[day] = run
	return nil
}

// SetSnapshot writes a snapshot row directly.
func (s *Store) SetSnapshot(dir stock.Direction, date time.Time, ingredientID int64, qty decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.snapshots[dir][snapKey{shared.FormatDate(date), ingredientID}] = qty
}
