package closeday

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kitchenstock/kitchenstock/internal/platform/db"
	"github.com/kitchenstock/kitchenstock/internal/snapshot"
	"github.com/kitchenstock/kitchenstock/internal/stock"
)

// Repository runs close-day transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithCloseTx runs fn in a read-committed transaction. Same-date closes are
// serialised by the close_day_runs row that ClaimDate upserts first.
func (r *Repository) WithCloseTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{Store: stock.NewStore(tx), tx: tx, snapshots: snapshot.NewStore(tx)})
	})
}

// GetRun loads the bookkeeping row of date.
func (r *Repository) GetRun(ctx context.Context, date time.Time) (Run, bool, error) {
	var run Run
	var source string
	err := r.pool.QueryRow(ctx, `SELECT stock_date, run_count, last_source, last_actor_user_id, first_closed_at, last_closed_at,
	headers_in, items_in, snapshots_in, headers_out, items_out, snapshots_out
FROM close_day_runs WHERE stock_date = $1`, date).Scan(
		&run.StockDate, &run.RunCount, &source, &run.LastActorID, &run.FirstClosedAt, &run.LastClosedAt,
		&run.HeadersIn, &run.ItemsIn, &run.SnapshotsIn, &run.HeadersOut, &run.ItemsOut, &run.SnapshotsOut,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, false, nil
		}
		return Run{}, false, fmt.Errorf("closeday: get run: %w", err)
	}
	run.LastSource = Source(source)
	return run, true, nil
}

type txRepo struct {
	*stock.Store
	tx        pgx.Tx
	snapshots *snapshot.Store
}

func (r *txRepo) ClaimDate(ctx context.Context, date time.Time, source Source, actorID int64, at time.Time) (int, error) {
	var runs int
	err := r.tx.QueryRow(ctx, `INSERT INTO close_day_runs (stock_date, run_count, last_source, last_actor_user_id, first_closed_at, last_closed_at)
VALUES ($1, 1, $2, NULLIF($3::bigint, 0), $4, $4)
ON CONFLICT (stock_date) DO UPDATE SET
	run_count = close_day_runs.run_count + 1,
	last_source = EXCLUDED.last_source,
	last_actor_user_id = EXCLUDED.last_actor_user_id,
	last_closed_at = EXCLUDED.last_closed_at
RETURNING run_count`, date, string(source), actorID, at).Scan(&runs)
	if err != nil {
		return 0, fmt.Errorf("closeday: claim %s: %w", date.Format("2006-01-02"), err)
	}
	return runs, nil
}

func (r *txRepo) UpsertSnapshots(ctx context.Context, dir stock.Direction, date time.Time, totals []snapshot.Total) (int64, error) {
	return r.snapshots.Upsert(ctx, dir, date, totals)
}

func (r *txRepo) PruneSnapshots(ctx context.Context, dir stock.Direction, date time.Time, keep []int64) (int64, error) {
	return r.snapshots.Prune(ctx, dir, date, keep)
}

func (r *txRepo) RecordDirection(ctx context.Context, date time.Time, result DirectionResult) error {
	sql := fmt.Sprintf(`UPDATE close_day_runs SET headers_%[1]s = $2, items_%[1]s = $3, snapshots_%[1]s = $4 WHERE stock_date = $1`,
		result.Direction)
	if _, err := r.tx.Exec(ctx, sql, date, result.Headers, result.Items, result.Snapshots); err != nil {
		return fmt.Errorf("closeday: record %s run: %w", result.Direction, err)
	}
	return nil
}
