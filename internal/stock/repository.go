package stock

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kitchenstock/kitchenstock/internal/platform/db"
)

// Repository persists daily ledgers and history in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	store *Store
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, store: NewStore(pool)}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewStore(tx))
	})
}

// GetDaily loads a daily header with its items.
func (r *Repository) GetDaily(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error) {
	return r.store.GetDaily(ctx, dir, publicID)
}

// ListDailies lists headers dated within [from, to], newest first.
func (r *Repository) ListDailies(ctx context.Context, dir Direction, from, to time.Time) ([]DailyHeader, error) {
	return r.store.ListDailies(ctx, dir, from, to)
}

// GetArchived loads a history header with its items.
func (r *Repository) GetArchived(ctx context.Context, dir Direction, publicID uuid.UUID) (HistoryHeader, error) {
	return r.store.GetArchived(ctx, dir, publicID)
}

// ListArchived lists history headers dated within [from, to], newest first.
func (r *Repository) ListArchived(ctx context.Context, dir Direction, from, to time.Time) ([]HistoryHeader, error) {
	return r.store.ListArchived(ctx, dir, from, to)
}

// SumItemsForDate totals live daily quantities per ingredient for one date.
func (r *Repository) SumItemsForDate(ctx context.Context, dir Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error) {
	return r.store.SumItemsForDate(ctx, dir, date, ingredientIDs)
}

// Store runs ledger statements against a pool or an open transaction.
type Store struct {
	db      db.Querier
	builder squirrel.StatementBuilderType
}

// NewStore binds ledger statements to q.
func NewStore(q db.Querier) *Store {
	return &Store{
		db:      q,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

const dailyColumns = `d.id, d.public_id, d.stock_date, d.note, d.created_by_user_id, d.created_at, d.updated_by_user_id, d.updated_at`

const itemColumns = `i.id, i.public_id, i.daily_id, i.stock_date, i.ingredient_id, g.public_id, i.quantity, i.note,
	i.created_by_user_id, i.created_at, i.updated_by_user_id, i.updated_at`

func scanDaily(dir Direction) pgx.RowToFunc[DailyHeader] {
	return func(row pgx.CollectableRow) (DailyHeader, error) {
		h := DailyHeader{Direction: dir}
		err := row.Scan(&h.ID, &h.PublicID, &h.StockDate, &h.Note, &h.CreatedByUserID, &h.CreatedAt,
			&h.UpdatedByUserID, &h.UpdatedAt, &h.ItemCount)
		return h, err
	}
}

func scanItem(row pgx.CollectableRow) (DailyItem, error) {
	var it DailyItem
	err := row.Scan(&it.ID, &it.PublicID, &it.DailyID, &it.StockDate, &it.IngredientID, &it.IngredientPublicID,
		&it.Quantity, &it.Note, &it.CreatedByUserID, &it.CreatedAt, &it.UpdatedByUserID, &it.UpdatedAt)
	return it, err
}

// InsertDaily stores a new header and returns it with its id.
func (s *Store) InsertDaily(ctx context.Context, dir Direction, h DailyHeader) (DailyHeader, error) {
	sql := fmt.Sprintf(`INSERT INTO %s (public_id, stock_date, note, created_by_user_id, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`, dir.dailyTable())
	if err := s.db.QueryRow(ctx, sql, h.PublicID, h.StockDate, h.Note, h.CreatedByUserID, h.CreatedAt).Scan(&h.ID); err != nil {
		return DailyHeader{}, fmt.Errorf("stock: insert %s daily: %w", dir, err)
	}
	h.Direction = dir
	return h, nil
}

// InsertItem stores a new item and returns it with its id.
func (s *Store) InsertItem(ctx context.Context, dir Direction, it DailyItem) (DailyItem, error) {
	sql := fmt.Sprintf(`INSERT INTO %s (public_id, daily_id, stock_date, ingredient_id, quantity, note, created_by_user_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`, dir.dailyItemTable())
	err := s.db.QueryRow(ctx, sql, it.PublicID, it.DailyID, it.StockDate, it.IngredientID, it.Quantity, it.Note,
		it.CreatedByUserID, it.CreatedAt).Scan(&it.ID)
	if err != nil {
		return DailyItem{}, fmt.Errorf("stock: insert %s item: %w", dir, err)
	}
	return it, nil
}

// LoadDailyForUpdate locks a header row for the rest of the transaction.
func (s *Store) LoadDailyForUpdate(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error) {
	sql := fmt.Sprintf(`SELECT %s, 0 FROM %s d WHERE d.public_id = $1 FOR UPDATE`, dailyColumns, dir.dailyTable())
	rows, err := s.db.Query(ctx, sql, publicID)
	if err != nil {
		return DailyHeader{}, fmt.Errorf("stock: lock %s daily: %w", dir, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanDaily(dir))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DailyHeader{}, ErrDailyNotFound
		}
		return DailyHeader{}, fmt.Errorf("stock: lock %s daily: %w", dir, err)
	}
	return h, nil
}

// UpdateDaily writes the editable header fields.
func (s *Store) UpdateDaily(ctx context.Context, dir Direction, h DailyHeader) error {
	sql := fmt.Sprintf(`UPDATE %s SET note = $2, updated_by_user_id = $3, updated_at = $4 WHERE id = $1`, dir.dailyTable())
	if _, err := s.db.Exec(ctx, sql, h.ID, h.Note, h.UpdatedByUserID, h.UpdatedAt); err != nil {
		return fmt.Errorf("stock: update %s daily: %w", dir, err)
	}
	return nil
}

// DeleteDaily removes a header; its items cascade.
func (s *Store) DeleteDaily(ctx context.Context, dir Direction, id int64) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, dir.dailyTable())
	if _, err := s.db.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("stock: delete %s daily: %w", dir, err)
	}
	return nil
}

// LoadItemForUpdate locks an item row together with its header.
func (s *Store) LoadItemForUpdate(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyItem, error) {
	sql := fmt.Sprintf(`SELECT %s
FROM %s i
JOIN %s d ON d.id = i.daily_id
JOIN ingredients g ON g.id = i.ingredient_id
WHERE i.public_id = $1
FOR UPDATE OF i, d`, itemColumns, dir.dailyItemTable(), dir.dailyTable())
	rows, err := s.db.Query(ctx, sql, publicID)
	if err != nil {
		return DailyItem{}, fmt.Errorf("stock: lock %s item: %w", dir, err)
	}
	it, err := pgx.CollectExactlyOneRow(rows, scanItem)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DailyItem{}, ErrItemNotFound
		}
		return DailyItem{}, fmt.Errorf("stock: lock %s item: %w", dir, err)
	}
	return it, nil
}

// UpdateItem writes the editable item fields.
func (s *Store) UpdateItem(ctx context.Context, dir Direction, it DailyItem) error {
	sql := fmt.Sprintf(`UPDATE %s SET quantity = $2, note = $3, updated_by_user_id = $4, updated_at = $5 WHERE id = $1`, dir.dailyItemTable())
	if _, err := s.db.Exec(ctx, sql, it.ID, it.Quantity, it.Note, it.UpdatedByUserID, it.UpdatedAt); err != nil {
		return fmt.Errorf("stock: update %s item: %w", dir, err)
	}
	return nil
}

// DeleteItem removes a single item.
func (s *Store) DeleteItem(ctx context.Context, dir Direction, id int64) error {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, dir.dailyItemTable())
	if _, err := s.db.Exec(ctx, sql, id); err != nil {
		return fmt.Errorf("stock: delete %s item: %w", dir, err)
	}
	return nil
}

// GetDaily loads a header and its items.
func (s *Store) GetDaily(ctx context.Context, dir Direction, publicID uuid.UUID) (DailyHeader, error) {
	sql := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM %s x WHERE x.daily_id = d.id)
FROM %s d WHERE d.public_id = $1`, dailyColumns, dir.dailyItemTable(), dir.dailyTable())
	rows, err := s.db.Query(ctx, sql, publicID)
	if err != nil {
		return DailyHeader{}, fmt.Errorf("stock: get %s daily: %w", dir, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanDaily(dir))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DailyHeader{}, ErrDailyNotFound
		}
		return DailyHeader{}, fmt.Errorf("stock: get %s daily: %w", dir, err)
	}
	items, err := s.listItems(ctx, dir, "i.daily_id = $1", h.ID)
	if err != nil {
		return DailyHeader{}, err
	}
	h.Items = items
	return h, nil
}

// ListDailies lists headers dated within [from, to], newest first.
func (s *Store) ListDailies(ctx context.Context, dir Direction, from, to time.Time) ([]DailyHeader, error) {
	return s.listDailies(ctx, dir, from, to, "d.stock_date DESC, d.created_at DESC, d.id DESC")
}

// ListDailiesForDate lists the headers of one date in creation order.
func (s *Store) ListDailiesForDate(ctx context.Context, dir Direction, date time.Time) ([]DailyHeader, error) {
	return s.listDailies(ctx, dir, date, date, "d.id")
}

func (s *Store) listDailies(ctx context.Context, dir Direction, from, to time.Time, order string) ([]DailyHeader, error) {
	sql := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM %s x WHERE x.daily_id = d.id)
FROM %s d
WHERE d.stock_date BETWEEN $1 AND $2
ORDER BY %s`, dailyColumns, dir.dailyItemTable(), dir.dailyTable(), order)
	rows, err := s.db.Query(ctx, sql, from, to)
	if err != nil {
		return nil, fmt.Errorf("stock: list %s dailies: %w", dir, err)
	}
	headers, err := pgx.CollectRows(rows, scanDaily(dir))
	if err != nil {
		return nil, fmt.Errorf("stock: list %s dailies: %w", dir, err)
	}
	return headers, nil
}

// ListItemsForDate returns every live item of one date ordered by header then id.
func (s *Store) ListItemsForDate(ctx context.Context, dir Direction, date time.Time) ([]DailyItem, error) {
	return s.listItems(ctx, dir, "i.stock_date = $1", date)
}

func (s *Store) listItems(ctx context.Context, dir Direction, where string, arg any) ([]DailyItem, error) {
	sql := fmt.Sprintf(`SELECT %s
FROM %s i
JOIN ingredients g ON g.id = i.ingredient_id
WHERE %s
ORDER BY i.daily_id, i.id`, itemColumns, dir.dailyItemTable(), where)
	rows, err := s.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("stock: list %s items: %w", dir, err)
	}
	items, err := pgx.CollectRows(rows, scanItem)
	if err != nil {
		return nil, fmt.Errorf("stock: list %s items: %w", dir, err)
	}
	return items, nil
}

// SumItemsForDate totals live quantities per ingredient for date. A nil
// ingredientIDs slice covers every ingredient.
func (s *Store) SumItemsForDate(ctx context.Context, dir Direction, date time.Time, ingredientIDs []int64) (map[int64]decimal.Decimal, error) {
	q := s.builder.Select("ingredient_id", "SUM(quantity)").
		From(dir.dailyItemTable()).
		Where(squirrel.Eq{"stock_date": date}).
		GroupBy("ingredient_id")
	if ingredientIDs != nil {
		q = q.Where(squirrel.Eq{"ingredient_id": ingredientIDs})
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("stock: build %s daily sum: %w", dir, err)
	}
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("stock: %s daily sum: %w", dir, err)
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var qty decimal.Decimal
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("stock: scan %s daily sum: %w", dir, err)
		}
		out[id] = qty
	}
	return out, rows.Err()
}

// DeleteHistoryForDate drops archived headers of date; their items cascade.
func (s *Store) DeleteHistoryForDate(ctx context.Context, dir Direction, date time.Time) (int64, error) {
	sql := fmt.Sprintf(`DELETE FROM %s WHERE stock_date = $1`, dir.historyTable())
	tag, err := s.db.Exec(ctx, sql, date)
	if err != nil {
		return 0, fmt.Errorf("stock: delete %s history: %w", dir, err)
	}
	return tag.RowsAffected(), nil
}

// InsertHistory archives one header and returns its id.
func (s *Store) InsertHistory(ctx context.Context, dir Direction, h HistoryHeader) (int64, error) {
	sql := fmt.Sprintf(`INSERT INTO %s (public_id, daily_id, stock_date, note, created_by_user_id, created_at,
	updated_by_user_id, updated_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`, dir.historyTable())
	var id int64
	err := s.db.QueryRow(ctx, sql, h.PublicID, h.DailyID, h.StockDate, h.Note, h.CreatedByUserID, h.CreatedAt,
		h.UpdatedByUserID, h.UpdatedAt, h.ArchivedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("stock: insert %s history: %w", dir, err)
	}
	return id, nil
}

// InsertHistoryItems archives the items of one history header, one statement
// per db.InsertBatchRows items.
func (s *Store) InsertHistoryItems(ctx context.Context, dir Direction, historyID int64, items []HistoryItem) error {
	for batch := range slices.Chunk(items, db.InsertBatchRows) {
		q := s.builder.Insert(dir.historyItemTable()).Columns(
			"public_id", "history_id", "daily_item_id", "stock_date", "ingredient_id", "quantity", "note",
			"created_by_user_id", "created_at", "updated_by_user_id", "updated_at",
		)
		for _, it := range batch {
			q = q.Values(it.PublicID, historyID, it.DailyItemID, it.StockDate, it.IngredientID, it.Quantity, it.Note,
				it.CreatedByUserID, it.CreatedAt, it.UpdatedByUserID, it.UpdatedAt)
		}
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("stock: build %s history items: %w", dir, err)
		}
		if _, err := s.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("stock: insert %s history items: %w", dir, err)
		}
	}
	return nil
}

const historyColumns = `h.id, h.public_id, h.daily_id, h.stock_date, h.note, h.created_by_user_id, h.created_at,
	h.updated_by_user_id, h.updated_at, h.archived_at`

func scanHistory(dir Direction) pgx.RowToFunc[HistoryHeader] {
	return func(row pgx.CollectableRow) (HistoryHeader, error) {
		h := HistoryHeader{Direction: dir}
		err := row.Scan(&h.ID, &h.PublicID, &h.DailyID, &h.StockDate, &h.Note, &h.CreatedByUserID, &h.CreatedAt,
			&h.UpdatedByUserID, &h.UpdatedAt, &h.ArchivedAt, &h.ItemCount)
		return h, err
	}
}

// GetArchived loads a history header and its items.
func (s *Store) GetArchived(ctx context.Context, dir Direction, publicID uuid.UUID) (HistoryHeader, error) {
	sql := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM %s x WHERE x.history_id = h.id)
FROM %s h WHERE h.public_id = $1`, historyColumns, dir.historyItemTable(), dir.historyTable())
	rows, err := s.db.Query(ctx, sql, publicID)
	if err != nil {
		return HistoryHeader{}, fmt.Errorf("stock: get %s history: %w", dir, err)
	}
	h, err := pgx.CollectExactlyOneRow(rows, scanHistory(dir))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HistoryHeader{}, ErrHistoryNotFound
		}
		return HistoryHeader{}, fmt.Errorf("stock: get %s history: %w", dir, err)
	}

	itemSQL := fmt.Sprintf(`SELECT i.id, i.public_id, i.history_id, i.daily_item_id, i.stock_date, i.ingredient_id, g.public_id,
	i.quantity, i.note, i.created_by_user_id, i.created_at, i.updated_by_user_id, i.updated_at
FROM %s i
JOIN ingredients g ON g.id = i.ingredient_id
WHERE i.history_id = $1
ORDER BY i.id`, dir.historyItemTable())
	rows, err = s.db.Query(ctx, itemSQL, h.ID)
	if err != nil {
		return HistoryHeader{}, fmt.Errorf("stock: list %s history items: %w", dir, err)
	}
	h.Items, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (HistoryItem, error) {
		var it HistoryItem
		err := row.Scan(&it.ID, &it.PublicID, &it.HistoryID, &it.DailyItemID, &it.StockDate, &it.IngredientID,
			&it.IngredientPublicID, &it.Quantity, &it.Note, &it.CreatedByUserID, &it.CreatedAt,
			&it.UpdatedByUserID, &it.UpdatedAt)
		return it, err
	})
	if err != nil {
		return HistoryHeader{}, fmt.Errorf("stock: list %s history items: %w", dir, err)
	}
	return h, nil
}

// ListArchived lists history headers dated within [from, to], newest first.
func (s *Store) ListArchived(ctx context.Context, dir Direction, from, to time.Time) ([]HistoryHeader, error) {
	sql := fmt.Sprintf(`SELECT %s, (SELECT COUNT(*) FROM %s x WHERE x.history_id = h.id)
FROM %s h
WHERE h.stock_date BETWEEN $1 AND $2
ORDER BY h.stock_date DESC, h.id DESC`, historyColumns, dir.historyItemTable(), dir.historyTable())
	rows, err := s.db.Query(ctx, sql, from, to)
	if err != nil {
		return nil, fmt.Errorf("stock: list %s history: %w", dir, err)
	}
	headers, err := pgx.CollectRows(rows, scanHistory(dir))
	if err != nil {
		return nil, fmt.Errorf("stock: list %s history: %w", dir, err)
	}
	return headers, nil
}
