// Package memstore is an in-memory stand-in for the PostgreSQL repositories
// used by service tests. Transactions work on a copy of the state that is
// swapped in only when the callback succeeds.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/closeday"
	"github.com/kitchenstock/kitchenstock/internal/ingredient"
	"github.com/kitchenstock/kitchenstock/internal/shared"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

type snapKey struct {
	date         string
	ingredientID int64
}

type state struct {
	nextID       int64
	dailies      map[stock.Direction][]stock.DailyHeader
	items        map[stock.Direction][]stock.DailyItem
	histories    map[stock.Direction][]stock.HistoryHeader
	historyItems map[stock.Direction][]stock.HistoryItem
	snapshots    map[stock.Direction]map[snapKey]decimal.Decimal
	runs         map[string]closeday.Run
}

func newState() *state {
	st := &state{
		dailies:      map[stock.Direction][]stock.DailyHeader{},
		items:        map[stock.Direction][]stock.DailyItem{},
		histories:    map[stock.Direction][]stock.HistoryHeader{},
		historyItems: map[stock.Direction][]stock.HistoryItem{},
		snapshots:    map[stock.Direction]map[snapKey]decimal.Decimal{},
		runs:         map[string]closeday.Run{},
	}
	for _, dir := range stock.AllDirections() {
		st.snapshots[dir] = map[snapKey]decimal.Decimal{}
	}
	return st
}

func (st *state) clone() *state {
	out := newState()
	out.nextID = st.nextID
	for _, dir := range stock.AllDirections() {
		out.dailies[dir] = append([]stock.DailyHeader(nil), st.dailies[dir]...)
		out.items[dir] = append([]stock.DailyItem(nil), st.items[dir]...)
		out.histories[dir] = append([]stock.HistoryHeader(nil), st.histories[dir]...)
		out.historyItems[dir] = append([]stock.HistoryItem(nil), st.historyItems[dir]...)
		for k, v := range st.snapshots[dir] {
			out.snapshots[dir][k] = v
		}
	}
	for k, v := range st.runs {
		out.runs[k] = v
	}
	return out
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

// Store holds ledgers, history, snapshots and ingredients in memory.
type Store struct {
	mu          sync.RWMutex
	st          *state
	ingredients []ingredient.Ingredient
	categories  map[string]bool
	failures    map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st:         newState(),
		categories: map[string]bool{},
		failures:   map[string]error{},
	}
}

// FailOn makes the named transactional operation return err until cleared
// with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// AddIngredient registers an ingredient under category (created on demand).
func (s *Store) AddIngredient(code, name, category string, minStock *decimal.Decimal) ingredient.Ingredient {
	s.mu.Lock()
	defer s.mu.Unlock()
	ing := ingredient.Ingredient{
		ID:           int64(len(s.ingredients) + 1),
		PublicID:     uuid.New(),
		Code:         code,
		Name:         name,
		CategoryCode: category,
	}
	if minStock != nil {
		ing.MinStock = decimal.NewNullDecimal(*minStock)
	}
	if category != "" {
		s.categories[category] = true
	}
	s.ingredients = append(s.ingredients, ing)
	return ing
}

// SeedItem is one item of a seeded daily header.
type SeedItem struct {
	IngredientID int64
	Quantity     decimal.Decimal
}

// SeedDaily writes a header with items dated date, bypassing the today check.
func (s *Store) SeedDaily(dir stock.Direction, date time.Time, items ...SeedItem) stock.DailyHeader {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := stock.DailyHeader{
		ID:              s.st.id(),
		PublicID:        uuid.New(),
		Direction:       dir,
		StockDate:       date,
		CreatedByUserID: 1,
		CreatedAt:       date.Add(9 * time.Hour),
	}
	s.st.dailies[dir] = append(s.st.dailies[dir], h)
	for _, seed := range items {
		it := stock.DailyItem{
			ID:                 s.st.id(),
			PublicID:           uuid.New(),
			DailyID:            h.ID,
			StockDate:          date,
			IngredientID:       seed.IngredientID,
			IngredientPublicID: s.ingredientPublicID(seed.IngredientID),
			Quantity:           seed.Quantity,
			CreatedByUserID:    1,
			CreatedAt:          h.CreatedAt,
		}
		s.st.items[dir] = append(s.st.items[dir], it)
		h.Items = append(h.Items, it)
	}
	h.ItemCount = len(h.Items)
	return h
}

func (s *Store) ingredientPublicID(id int64) uuid.UUID {
	for _, ing := range s.ingredients {
		if ing.ID == id {
			return ing.PublicID
		}
	}
	return uuid.Nil
}

// Histories returns the archived headers of date with their items.
func (s *Store) Histories(dir stock.Direction, date time.Time) []stock.HistoryHeader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := shared.FormatDate(date)
	var out []stock.HistoryHeader
	for _, h := range s.st.histories[dir] {
		if shared.FormatDate(h.StockDate) == day {
			out = append(out, s.st.withHistoryItems(dir, h))
		}
	}
	return out
}

// Snapshot returns the stored total of one ingredient on date.
func (s *Store) Snapshot(dir stock.Direction, date time.Time, ingredientID int64) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.st.snapshots[dir][snapKey{shared.FormatDate(date), ingredientID}]
	return v, ok
}

// SnapshotCount returns the number of snapshot rows stored for date.
func (s *Store) SnapshotCount(dir stock.Direction, date time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := shared.FormatDate(date)
	n := 0
	for k := range s.st.snapshots[dir] {
		if k.date == day {
			n++
		}
	}
	return n
}

// DailyCount returns the number of live headers in dir.
func (s *Store) DailyCount(dir stock.Direction) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.dailies[dir])
}

func (s *Store) begin() (*tx, func(error) error) {
	s.mu.Lock()
	t := &tx{st: s.st.clone(), failures: s.failures}
	return t, func(err error) error {
		defer s.mu.Unlock()
		if err != nil {
			return err
		}
		s.st = t.st
		return nil
	}
}

// WithTx satisfies stock.RepositoryPort.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, stock.TxRepository) error) error {
	t, done := s.begin()
	return done(fn(ctx, t))
}

// WithCloseTx satisfies closeday.RepositoryPort.
func (s *Store) WithCloseTx(ctx context.Context, fn func(context.Context, closeday.TxRepository) error) error {
	t, done := s.begin()
	if err := ctx.Err(); err != nil {
		return done(err)
	}
	return done(fn(ctx, t))
}

// GetRun satisfies closeday.RepositoryPort.
func (s *Store) GetRun(_ context.Context, date time.Time) (closeday.Run, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.st.runs[shared.FormatDate(date)]
	return run, ok, nil
}

// GetDaily satisfies stock.RepositoryPort.
func (s *Store) GetDaily(_ context.Context, dir stock.Direction, publicID uuid.UUID) (stock.DailyHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.st.dailies[dir] {
		if h.PublicID == publicID {
			h.Items = s.st.itemsOf(dir, h.ID)
			h.ItemCount = len(h.Items)
			return h, nil
		}
	}
	return stock.DailyHeader{}, stock.ErrDailyNotFound
}

// ListDailies satisfies stock.RepositoryPort.
func (s *Store) ListDailies(_ context.Context, dir stock.Direction, from, to time.Time) ([]stock.DailyHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []stock.DailyHeader
	for _, h := range s.st.dailies[dir] {
		if inRange(h.StockDate, from, to) {
			h.ItemCount = len(s.st.itemsOf(dir, h.ID))
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if da, db := shared.FormatDate(a.StockDate), shared.FormatDate(b.StockDate); da != db {
			return da > db
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

// GetArchived satisfies stock.RepositoryPort.
func (s *Store) GetArchived(_ context.Context, dir stock.Direction, publicID uuid.UUID) (stock.HistoryHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.st.histories[dir] {
		if h.PublicID == publicID {
			return s.st.withHistoryItems(dir, h), nil
		}
	}
	return stock.HistoryHeader{}, stock.ErrHistoryNotFound
}

// ListArchived satisfies stock.RepositoryPort.
func (s *Store) ListArchived(_ context.Context, dir stock.Direction, from, to time.Time) ([]stock.HistoryHeader, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []stock.HistoryHeader
	for _, h := range s.st.histories[dir] {
		if inRange(h.StockDate, from, to) {
			h.ItemCount = len(s.st.withHistoryItems(dir, h).Items)
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if da, db := shared.FormatDate(out[i].StockDate), shared.FormatDate(out[j].StockDate); da != db {
			return da > db
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// SumItemsForDate sums live daily items per ingredient.
func (s *Store) SumItemsForDate(_ context.Context, dir stock.Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	filter := idSet(ingredientIDs)
	out := map[int64]decimal.Decimal{}
	day := shared.FormatDate(date)
	for _, it := range s.st.items[dir] {
		if shared.FormatDate(it.StockDate) != day {
			continue
		}
		if filter != nil && !filter[it.IngredientID] {
			continue
		}
		out[it.IngredientID] = out[it.IngredientID].Add(it.Quantity)
	}
	return out, nil
}

func (st *state) itemsOf(dir stock.Direction, dailyID int64) []stock.DailyItem {
	var out []stock.DailyItem
	for _, it := range st.items[dir] {
		if it.DailyID == dailyID {
			out = append(out, it)
		}
	}
	return out
}

func (st *state) withHistoryItems(dir stock.Direction, h stock.HistoryHeader) stock.HistoryHeader {
	h.Items = nil
	for _, it := range st.historyItems[dir] {
		if it.HistoryID == h.ID {
			h.Items = append(h.Items, it)
		}
	}
	h.ItemCount = len(h.Items)
	return h
}

func inRange(d, from, to time.Time) bool {
	day := shared.FormatDate(d)
	return day >= shared.FormatDate(from) && day <= shared.FormatDate(to)
}

func idSet(ids []int64) map[int64]bool {
	if ids == nil {
		return nil
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

var (
	_ stock.RepositoryPort    = (*Store)(nil)
	_ closeday.RepositoryPort = (*Store)(nil)
	_ stock.TxRepository      = (*tx)(nil)
	_ closeday.TxRepository   = (*tx)(nil)
)
