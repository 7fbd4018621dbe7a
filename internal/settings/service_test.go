package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/kitchenstock/kitchenstock/internal/platform/httpx"
)

type memoryStore struct {
	values map[string]string
	getErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	if m.getErr != nil {
		return "", false, m.getErr
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

type countingInvalidator struct{ bumps int }

func (c *countingInvalidator) Bump(context.Context) error {
	c.bumps++
	return nil
}

func newTestService(store Store, cache Invalidator) *Service {
	return NewService(store, Config{
		DefaultThreshold: decimal.NewFromInt(5),
		Timezone:         "Asia/Ho_Chi_Minh",
	}, cache, nil)
}

func TestLowStockThresholdFallsBackToConfig(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	require.True(t, decimal.NewFromInt(5).Equal(svc.LowStockThreshold(ctx)))

	store.values[KeyLowStockThreshold] = "not-a-number"
	require.True(t, decimal.NewFromInt(5).Equal(svc.LowStockThreshold(ctx)))

	store.values[KeyLowStockThreshold] = "2.5"
	require.True(t, decimal.RequireFromString("2.5").Equal(svc.LowStockThreshold(ctx)))

	store.getErr = errors.New("relation does not exist")
	require.True(t, decimal.NewFromInt(5).Equal(svc.LowStockThreshold(ctx)))
}

func TestSetLowStockThreshold(t *testing.T) {
	store := newMemoryStore()
	cache := &countingInvalidator{}
	svc := newTestService(store, cache)
	ctx := context.Background()

	_, err := svc.SetLowStockThreshold(ctx, decimal.NewFromInt(-1))
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Zero(t, cache.bumps)

	value, err := svc.SetLowStockThreshold(ctx, decimal.RequireFromString("7.25"))
	require.NoError(t, err)
	require.Equal(t, "7.25", value.String())
	require.Equal(t, "7.25", store.values[KeyLowStockThreshold])
	require.Equal(t, 1, cache.bumps)
}

func TestCloseDaySchedule(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store, nil)
	ctx := context.Background()

	schedule := svc.CloseDaySchedule(ctx)
	require.Equal(t, DefaultCloseDayCron, schedule.Cron)
	require.Equal(t, "CRON_TZ=Asia/Ho_Chi_Minh 5 0 * * *", schedule.Cronspec())

	_, err := svc.SetCloseDaySchedule(ctx, "61 0 * * *", "")
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.SetCloseDaySchedule(ctx, "10 0 * * *", "UTC")
	require.ErrorIs(t, err, ErrTimezoneFixed)

	_, err = svc.SetCloseDaySchedule(ctx, "CRON_TZ=UTC 10 0 * * *", "")
	require.ErrorIs(t, err, ErrTimezoneFixed)

	schedule, err = svc.SetCloseDaySchedule(ctx, "30 0 * * *", "Asia/Ho_Chi_Minh")
	require.NoError(t, err)
	require.Equal(t, "30 0 * * *", schedule.Cron)
	require.Equal(t, "30 0 * * *", svc.CloseDaySchedule(ctx).Cron)
	require.Equal(t, "Asia/Ho_Chi_Minh", store.values[KeyCloseDayTimezone])

	store.values[KeyCloseDayCron] = "garbage"
	require.Equal(t, DefaultCloseDayCron, svc.CloseDaySchedule(ctx).Cron)
}

func TestAllResolvesEveryKey(t *testing.T) {
	store := newMemoryStore()
	store.values[KeyCloseDayCron] = "@daily"
	store.values[KeyLowStockThreshold] = "3"
	svc := newTestService(store, nil)

	all := svc.All(context.Background())
	require.Equal(t, "@daily", all.CloseDayCron)
	require.Equal(t, "Asia/Ho_Chi_Minh", all.CloseDayTimezone)
	require.Equal(t, "3", all.LowStockThreshold.String())
}
