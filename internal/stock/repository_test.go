package stock

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/platform/db"
)

type recordingQuerier struct {
	sqls []string
	args [][]any
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.sqls = append(q.sqls, sql)
	q.args = append(q.args, args)
	return pgconn.NewCommandTag("INSERT 0 0"), nil
}

func (q *recordingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("not used")
}

func (q *recordingQuerier) QueryRow(context.Context, string, ...any) pgx.Row {
	panic("not used")
}

func TestInsertHistoryItemsSplitsLargeHeaders(t *testing.T) {
	q := &recordingQuerier{}
	items := make([]HistoryItem, db.InsertBatchRows+1)
	for i := range items {
		items[i] = HistoryItem{DailyItemID: int64(i + 1), IngredientID: 1}
	}

	err := NewStore(q).InsertHistoryItems(context.Background(), DirectionOut, 42, items)
	require.NoError(t, err)
	require.Len(t, q.sqls, 2)
	for _, sql := range q.sqls {
		require.True(t, strings.HasPrefix(sql, "INSERT INTO stock_out_history_items"), sql)
	}
	require.Len(t, q.args[0], db.InsertBatchRows*11)
	require.Len(t, q.args[1], 11)
	require.Equal(t, int64(42), q.args[1][1], "every batch carries the history id")
	require.Less(t, len(q.args[0]), 65535)
}

func TestInsertHistoryItemsSkipsEmpty(t *testing.T) {
	q := &recordingQuerier{}
	require.NoError(t, NewStore(q).InsertHistoryItems(context.Background(), DirectionIn, 1, nil))
	require.Empty(t, q.sqls)
}
